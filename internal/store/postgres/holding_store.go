package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/bondledger/internal/domain"
)

// HoldingStore implements domain.HoldingStore using PostgreSQL.
type HoldingStore struct {
	pool *pgxpool.Pool
}

// NewHoldingStore creates a new HoldingStore backed by the given connection pool.
func NewHoldingStore(pool *pgxpool.Pool) *HoldingStore {
	return &HoldingStore{pool: pool}
}

// Get retrieves the holding for (bondID, wallet).
func (s *HoldingStore) Get(ctx context.Context, bondID int64, wallet common.Address) (domain.Holding, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT bond_id, wallet, units, updated_at FROM holdings
		 WHERE bond_id = $1 AND wallet = $2`, bondID, wallet.Hex())
	h, err := scanHolding(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Holding{}, domain.ErrNotFound
		}
		return domain.Holding{}, fmt.Errorf("postgres: get holding %d/%s: %w", bondID, wallet.Hex(), err)
	}
	return h, nil
}

// Upsert inserts or overwrites the holding row.
func (s *HoldingStore) Upsert(ctx context.Context, h domain.Holding) error {
	const query = `
		INSERT INTO holdings (bond_id, wallet, units, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (bond_id, wallet) DO UPDATE SET
			units      = EXCLUDED.units,
			updated_at = EXCLUDED.updated_at`

	_, err := s.pool.Exec(ctx, query, h.BondID, h.Wallet.Hex(), h.Units, h.UpdatedAt)
	if err != nil {
		return fmt.Errorf("postgres: upsert holding %d/%s: %w", h.BondID, h.Wallet.Hex(), err)
	}
	return nil
}

// ListByBond returns all holdings in a bond ordered by wallet.
func (s *HoldingStore) ListByBond(ctx context.Context, bondID int64) ([]domain.Holding, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT bond_id, wallet, units, updated_at FROM holdings
		 WHERE bond_id = $1 ORDER BY wallet ASC`, bondID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list holdings by bond %d: %w", bondID, err)
	}
	defer rows.Close()
	return scanHoldingRows(rows)
}

// ListByWallet returns all of a wallet's holdings ordered by bond id.
func (s *HoldingStore) ListByWallet(ctx context.Context, wallet common.Address) ([]domain.Holding, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT bond_id, wallet, units, updated_at FROM holdings
		 WHERE wallet = $1 ORDER BY bond_id ASC`, wallet.Hex())
	if err != nil {
		return nil, fmt.Errorf("postgres: list holdings by wallet %s: %w", wallet.Hex(), err)
	}
	defer rows.Close()
	return scanHoldingRows(rows)
}

func scanHolding(row pgx.Row) (domain.Holding, error) {
	var h domain.Holding
	var wallet string
	if err := row.Scan(&h.BondID, &wallet, &h.Units, &h.UpdatedAt); err != nil {
		return domain.Holding{}, err
	}
	h.Wallet = common.HexToAddress(wallet)
	return h, nil
}

func scanHoldingRows(rows pgx.Rows) ([]domain.Holding, error) {
	var holdings []domain.Holding
	for rows.Next() {
		h, err := scanHolding(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan holding: %w", err)
		}
		holdings = append(holdings, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: holding rows: %w", err)
	}
	return holdings, nil
}

var _ domain.HoldingStore = (*HoldingStore)(nil)
