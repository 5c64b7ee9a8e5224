package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/bondledger/internal/domain"
)

// BondStore implements domain.BondStore using PostgreSQL. Bond ids come from
// a BIGSERIAL sequence, so they are monotonic and never reused.
type BondStore struct {
	pool *pgxpool.Pool
}

// NewBondStore creates a new BondStore backed by the given connection pool.
func NewBondStore(pool *pgxpool.Pool) *BondStore {
	return &BondStore{pool: pool}
}

const bondCols = `id, issuer, interest_rate_bp, coupon_rate_bp, face_value,
	available_units, issued_units, target_raise, duration_seconds,
	status, token_handle, created_at, issued_at, maturity_at, settled_at`

// Create inserts a new bond and returns its assigned id.
func (s *BondStore) Create(ctx context.Context, b domain.Bond) (int64, error) {
	const query = `
		INSERT INTO bonds (
			issuer, interest_rate_bp, coupon_rate_bp, face_value,
			available_units, issued_units, target_raise, duration_seconds,
			status, token_handle, created_at, issued_at, maturity_at, settled_at
		) VALUES (
			$1, $2, $3, $4,
			$5, $6, $7, $8,
			$9, $10, $11, $12, $13, $14
		) RETURNING id`

	var id int64
	err := s.pool.QueryRow(ctx, query,
		b.Issuer.Hex(), b.InterestRateBP, b.CouponRateBP, b.FaceValue,
		b.AvailableUnits, b.IssuedUnits, b.TargetRaise, int64(b.Duration/time.Second),
		string(b.Status), b.TokenHandle, b.CreatedAt,
		nullTime(b.IssuedAt), nullTime(b.MaturityAt), nullTime(b.SettledAt),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("postgres: create bond: %w", err)
	}
	return id, nil
}

// Update overwrites an existing bond row.
func (s *BondStore) Update(ctx context.Context, b domain.Bond) error {
	const query = `
		UPDATE bonds SET
			issuer           = $2,
			interest_rate_bp = $3,
			coupon_rate_bp   = $4,
			face_value       = $5,
			available_units  = $6,
			issued_units     = $7,
			target_raise     = $8,
			duration_seconds = $9,
			status           = $10,
			token_handle     = $11,
			created_at       = $12,
			issued_at        = $13,
			maturity_at      = $14,
			settled_at       = $15
		WHERE id = $1`

	tag, err := s.pool.Exec(ctx, query,
		b.ID, b.Issuer.Hex(), b.InterestRateBP, b.CouponRateBP, b.FaceValue,
		b.AvailableUnits, b.IssuedUnits, b.TargetRaise, int64(b.Duration/time.Second),
		string(b.Status), b.TokenHandle, b.CreatedAt,
		nullTime(b.IssuedAt), nullTime(b.MaturityAt), nullTime(b.SettledAt),
	)
	if err != nil {
		return fmt.Errorf("postgres: update bond %d: %w", b.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func scanBond(row pgx.Row) (domain.Bond, error) {
	var b domain.Bond
	var issuer, status string
	var durationSec int64
	var issuedAt, maturityAt, settledAt *time.Time
	err := row.Scan(
		&b.ID, &issuer, &b.InterestRateBP, &b.CouponRateBP, &b.FaceValue,
		&b.AvailableUnits, &b.IssuedUnits, &b.TargetRaise, &durationSec,
		&status, &b.TokenHandle, &b.CreatedAt, &issuedAt, &maturityAt, &settledAt,
	)
	if err != nil {
		return domain.Bond{}, err
	}
	b.Issuer = common.HexToAddress(issuer)
	b.Status = domain.BondStatus(status)
	b.Duration = time.Duration(durationSec) * time.Second
	b.IssuedAt = timeValue(issuedAt)
	b.MaturityAt = timeValue(maturityAt)
	b.SettledAt = timeValue(settledAt)
	return b, nil
}

// GetByID retrieves a bond by its primary key.
func (s *BondStore) GetByID(ctx context.Context, id int64) (domain.Bond, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+bondCols+` FROM bonds WHERE id = $1`, id)
	b, err := scanBond(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Bond{}, domain.ErrNotFound
		}
		return domain.Bond{}, fmt.Errorf("postgres: get bond %d: %w", id, err)
	}
	return b, nil
}

// ListByIssuer returns the issuer's bonds ordered by id.
func (s *BondStore) ListByIssuer(ctx context.Context, issuer common.Address, opts domain.ListOpts) ([]domain.Bond, error) {
	return s.listWhere(ctx, "issuer = $1", issuer.Hex(), opts)
}

// ListByStatus returns bonds in the given status ordered by id.
func (s *BondStore) ListByStatus(ctx context.Context, status domain.BondStatus, opts domain.ListOpts) ([]domain.Bond, error) {
	return s.listWhere(ctx, "status = $1", string(status), opts)
}

func (s *BondStore) listWhere(ctx context.Context, where string, arg any, opts domain.ListOpts) ([]domain.Bond, error) {
	query := `SELECT ` + bondCols + ` FROM bonds WHERE ` + where
	args := []any{arg}
	argIdx := 2

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

	query += " ORDER BY id ASC"

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
		return nil, fmt.Errorf("postgres: list bonds: %w", err)
	}
	defer rows.Close()
	return scanBondRows(rows)
}

// ListMaturedBefore returns issued bonds with maturity at or before the
// cutoff, oldest first, for the maturity sweeper.
func (s *BondStore) ListMaturedBefore(ctx context.Context, cutoff time.Time) ([]domain.Bond, error) {
	query := `SELECT ` + bondCols + ` FROM bonds
		WHERE status = 'issued' AND maturity_at IS NOT NULL AND maturity_at <= $1
		ORDER BY maturity_at ASC`
	rows, err := s.pool.Query(ctx, query, cutoff)
	if err != nil {
		return nil, fmt.Errorf("postgres: list matured bonds: %w", err)
	}
	defer rows.Close()
	return scanBondRows(rows)
}

// Count returns the total number of bonds ever created.
func (s *BondStore) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM bonds").Scan(&count); err != nil {
		return 0, fmt.Errorf("postgres: count bonds: %w", err)
	}
	return count, nil
}

func scanBondRows(rows pgx.Rows) ([]domain.Bond, error) {
	var bonds []domain.Bond
	for rows.Next() {
		b, err := scanBond(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan bond: %w", err)
		}
		bonds = append(bonds, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: bond rows: %w", err)
	}
	return bonds, nil
}

// nullTime maps the zero time to SQL NULL.
func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}

func timeValue(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}

var _ domain.BondStore = (*BondStore)(nil)
