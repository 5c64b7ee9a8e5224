package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/bondledger/internal/domain"
)

// SchemaStore implements domain.SchemaStore using PostgreSQL. Versions are
// kept as history rows; the current version is the highest applied.
type SchemaStore struct {
	pool *pgxpool.Pool
}

// NewSchemaStore creates a new SchemaStore backed by the given connection pool.
func NewSchemaStore(pool *pgxpool.Pool) *SchemaStore {
	return &SchemaStore{pool: pool}
}

// Version returns the current schema version, zero if none was ever set.
func (s *SchemaStore) Version(ctx context.Context) (int, error) {
	var version int
	err := s.pool.QueryRow(ctx,
		"SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("postgres: get schema version: %w", err)
	}
	return version, nil
}

// SetVersion records a new schema version with an operator note.
func (s *SchemaStore) SetVersion(ctx context.Context, version int, note string) error {
	_, err := s.pool.Exec(ctx,
		"INSERT INTO schema_version (version, note) VALUES ($1, $2)", version, note)
	if err != nil {
		return fmt.Errorf("postgres: set schema version %d: %w", version, err)
	}
	return nil
}

var _ domain.SchemaStore = (*SchemaStore)(nil)
