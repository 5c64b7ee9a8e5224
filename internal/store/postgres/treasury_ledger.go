package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/bondledger/internal/domain"
)

// TreasuryLedger implements domain.TreasuryLedger using PostgreSQL. Rows are
// only ever inserted; compensation happens through reversal rows.
type TreasuryLedger struct {
	pool *pgxpool.Pool
}

// NewTreasuryLedger creates a new TreasuryLedger backed by the given connection pool.
func NewTreasuryLedger(pool *pgxpool.Pool) *TreasuryLedger {
	return &TreasuryLedger{pool: pool}
}

// Append inserts one ledger row.
func (s *TreasuryLedger) Append(ctx context.Context, e domain.TreasuryEntry) error {
	const query = `
		INSERT INTO treasury_ledger (id, bond_id, wallet, direction, kind, amount, tx_ref, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := s.pool.Exec(ctx, query,
		e.ID, e.BondID, e.Wallet.Hex(), string(e.Direction), string(e.Kind),
		e.Amount, e.TxRef, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: append treasury entry: %w", err)
	}
	return nil
}

// Sum returns the net balance over all rows: in minus out.
func (s *TreasuryLedger) Sum(ctx context.Context) (int64, error) {
	const query = `
		SELECT COALESCE(SUM(CASE WHEN direction = 'in' THEN amount ELSE -amount END), 0)
		FROM treasury_ledger`

	var sum int64
	if err := s.pool.QueryRow(ctx, query).Scan(&sum); err != nil {
		return 0, fmt.Errorf("postgres: sum treasury ledger: %w", err)
	}
	return sum, nil
}

const ledgerCols = `id, bond_id, wallet, direction, kind, amount, tx_ref, created_at`

// ListByBond returns rows for one bond in insertion order.
func (s *TreasuryLedger) ListByBond(ctx context.Context, bondID int64, opts domain.ListOpts) ([]domain.TreasuryEntry, error) {
	query := `SELECT ` + ledgerCols + ` FROM treasury_ledger WHERE bond_id = $1`
	args := []any{bondID}
	return s.listQuery(ctx, query, args, opts, 2)
}

// List returns all rows in insertion order.
func (s *TreasuryLedger) List(ctx context.Context, opts domain.ListOpts) ([]domain.TreasuryEntry, error) {
	query := `SELECT ` + ledgerCols + ` FROM treasury_ledger WHERE 1=1`
	return s.listQuery(ctx, query, nil, opts, 1)
}

func (s *TreasuryLedger) listQuery(ctx context.Context, query string, args []any, opts domain.ListOpts, argIdx int) ([]domain.TreasuryEntry, error) {
	if opts.Since != nil {
		query += fmt.Sprintf(" AND created_at >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}
	if opts.Until != nil {
		query += fmt.Sprintf(" AND created_at <= $%d", argIdx)
		args = append(args, *opts.Until)
		argIdx++
	}

	query += " ORDER BY created_at ASC"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list treasury entries: %w", err)
	}
	defer rows.Close()
	return scanLedgerRows(rows)
}

// ListBefore returns rows created strictly before the cutoff, for archival.
func (s *TreasuryLedger) ListBefore(ctx context.Context, before time.Time) ([]domain.TreasuryEntry, error) {
	query := `SELECT ` + ledgerCols + ` FROM treasury_ledger
		WHERE created_at < $1 ORDER BY created_at ASC`
	rows, err := s.pool.Query(ctx, query, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list treasury entries before: %w", err)
	}
	defer rows.Close()
	return scanLedgerRows(rows)
}

func scanLedgerRows(rows pgx.Rows) ([]domain.TreasuryEntry, error) {
	var entries []domain.TreasuryEntry
	for rows.Next() {
		var e domain.TreasuryEntry
		var wallet, direction, kind string
		if err := rows.Scan(
			&e.ID, &e.BondID, &wallet, &direction, &kind,
			&e.Amount, &e.TxRef, &e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan treasury entry: %w", err)
		}
		e.Wallet = common.HexToAddress(wallet)
		e.Direction = domain.EntryDirection(direction)
		e.Kind = domain.EntryKind(kind)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: treasury entry rows: %w", err)
	}
	return entries, nil
}

var _ domain.TreasuryLedger = (*TreasuryLedger)(nil)
