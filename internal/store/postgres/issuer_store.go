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

// IssuerStore implements domain.IssuerStore using PostgreSQL.
type IssuerStore struct {
	pool *pgxpool.Pool
}

// NewIssuerStore creates a new IssuerStore backed by the given connection pool.
func NewIssuerStore(pool *pgxpool.Pool) *IssuerStore {
	return &IssuerStore{pool: pool}
}

// Create inserts a new issuer row. A duplicate wallet fails with
// ErrAlreadyRegistered.
func (s *IssuerStore) Create(ctx context.Context, i domain.Issuer) error {
	const query = `
		INSERT INTO issuers (wallet, registered, kyc_approved, registered_at, kyc_updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (wallet) DO NOTHING`

	tag, err := s.pool.Exec(ctx, query,
		i.Wallet.Hex(), i.Registered, i.KYCApproved, i.RegisteredAt, i.KYCUpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: create issuer %s: %w", i.Wallet.Hex(), err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrAlreadyRegistered
	}
	return nil
}

// Update overwrites an existing issuer row.
func (s *IssuerStore) Update(ctx context.Context, i domain.Issuer) error {
	const query = `
		UPDATE issuers SET
			registered     = $2,
			kyc_approved   = $3,
			registered_at  = $4,
			kyc_updated_at = $5
		WHERE wallet = $1`

	tag, err := s.pool.Exec(ctx, query,
		i.Wallet.Hex(), i.Registered, i.KYCApproved, i.RegisteredAt, i.KYCUpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: update issuer %s: %w", i.Wallet.Hex(), err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

const issuerCols = `wallet, registered, kyc_approved, registered_at, kyc_updated_at`

func scanIssuer(row pgx.Row) (domain.Issuer, error) {
	var i domain.Issuer
	var wallet string
	err := row.Scan(&wallet, &i.Registered, &i.KYCApproved, &i.RegisteredAt, &i.KYCUpdatedAt)
	if err != nil {
		return domain.Issuer{}, err
	}
	i.Wallet = common.HexToAddress(wallet)
	return i, nil
}

// GetByWallet retrieves an issuer by wallet address.
func (s *IssuerStore) GetByWallet(ctx context.Context, wallet common.Address) (domain.Issuer, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+issuerCols+` FROM issuers WHERE wallet = $1`, wallet.Hex())
	i, err := scanIssuer(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Issuer{}, domain.ErrNotFound
		}
		return domain.Issuer{}, fmt.Errorf("postgres: get issuer %s: %w", wallet.Hex(), err)
	}
	return i, nil
}

// List returns issuers ordered by registration time.
func (s *IssuerStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.Issuer, error) {
	query := `SELECT ` + issuerCols + ` FROM issuers WHERE 1=1`
	args := []any{}
	argIdx := 1

	if opts.Since != nil {
		query += fmt.Sprintf(" AND registered_at >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}
	if opts.Until != nil {
		query += fmt.Sprintf(" AND registered_at <= $%d", argIdx)
		args = append(args, *opts.Until)
		argIdx++
	}

	query += " ORDER BY registered_at ASC"

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
		return nil, fmt.Errorf("postgres: list issuers: %w", err)
	}
	defer rows.Close()

	var issuers []domain.Issuer
	for rows.Next() {
		i, err := scanIssuer(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan issuer: %w", err)
		}
		issuers = append(issuers, i)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: issuer rows: %w", err)
	}
	return issuers, nil
}

var _ domain.IssuerStore = (*IssuerStore)(nil)
