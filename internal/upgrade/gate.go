// Package upgrade gates changes to the persisted data layout. Schema
// migrations only run through an admin-authorized upgrade, and the gate
// refuses to run against data written by a newer version.
package upgrade

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/bondledger/internal/domain"
)

// CodeVersion is the schema version this build reads and writes.
const CodeVersion = 1

// Migrator applies pending schema migrations.
type Migrator interface {
	RunMigrations(ctx context.Context) error
}

// Gate authorizes and applies schema upgrades.
type Gate struct {
	admin    common.Address
	schema   domain.SchemaStore
	migrator Migrator
	logger   *slog.Logger
}

// New creates a Gate. Only the given admin wallet may trigger upgrades.
func New(admin common.Address, schema domain.SchemaStore, migrator Migrator, logger *slog.Logger) *Gate {
	return &Gate{
		admin:    admin,
		schema:   schema,
		migrator: migrator,
		logger:   logger.With(slog.String("component", "upgrade")),
	}
}

// Current returns the persisted schema version.
func (g *Gate) Current(ctx context.Context) (int, error) {
	return g.schema.Version(ctx)
}

// Verify fails when the persisted data layout is newer than this build
// understands. Call at startup before serving.
func (g *Gate) Verify(ctx context.Context) error {
	stored, err := g.schema.Version(ctx)
	if err != nil {
		return fmt.Errorf("upgrade: read schema version: %w", err)
	}
	if stored > CodeVersion {
		return fmt.Errorf("upgrade: data layout is version %d, this build understands %d: %w",
			stored, CodeVersion, domain.ErrInvalidState)
	}
	return nil
}

// Upgrade migrates the persisted layout to target. It refuses downgrades and
// no-op targets, and refuses targets beyond what this build ships. Admin
// only.
func (g *Gate) Upgrade(ctx context.Context, caller common.Address, target int, note string) error {
	if caller != g.admin {
		return fmt.Errorf("upgrade: caller %s is not admin: %w", caller.Hex(), domain.ErrUnauthorized)
	}
	if target > CodeVersion {
		return fmt.Errorf("upgrade: target %d beyond build version %d: %w", target, CodeVersion, domain.ErrInvalidParams)
	}

	current, err := g.schema.Version(ctx)
	if err != nil {
		return fmt.Errorf("upgrade: read schema version: %w", err)
	}
	if target <= current {
		return fmt.Errorf("upgrade: target %d is not above current %d: %w", target, current, domain.ErrInvalidState)
	}

	g.logger.InfoContext(ctx, "applying schema upgrade",
		slog.Int("from", current),
		slog.Int("to", target),
		slog.String("note", note),
	)
	if err := g.migrator.RunMigrations(ctx); err != nil {
		return fmt.Errorf("upgrade: run migrations: %w", err)
	}
	if err := g.schema.SetVersion(ctx, target, note); err != nil {
		return fmt.Errorf("upgrade: record version %d: %w", target, err)
	}
	return nil
}
