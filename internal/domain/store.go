package domain

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// BondStore persists bond records. Create assigns and returns the bond id
// from a monotonically increasing counter; ids are never reused.
type BondStore interface {
	Create(ctx context.Context, bond Bond) (int64, error)
	Update(ctx context.Context, bond Bond) error
	GetByID(ctx context.Context, id int64) (Bond, error)
	ListByIssuer(ctx context.Context, issuer common.Address, opts ListOpts) ([]Bond, error)
	ListByStatus(ctx context.Context, status BondStatus, opts ListOpts) ([]Bond, error)
	// ListMaturedBefore returns issued bonds whose maturity time is at or
	// before the cutoff, for the maturity sweeper.
	ListMaturedBefore(ctx context.Context, cutoff time.Time) ([]Bond, error)
	Count(ctx context.Context) (int64, error)
}

// IssuerStore persists issuer registrations.
type IssuerStore interface {
	Create(ctx context.Context, issuer Issuer) error
	Update(ctx context.Context, issuer Issuer) error
	GetByWallet(ctx context.Context, wallet common.Address) (Issuer, error)
	List(ctx context.Context, opts ListOpts) ([]Issuer, error)
}

// HoldingStore persists investor positions per bond.
type HoldingStore interface {
	Get(ctx context.Context, bondID int64, wallet common.Address) (Holding, error)
	Upsert(ctx context.Context, holding Holding) error
	ListByBond(ctx context.Context, bondID int64) ([]Holding, error)
	ListByWallet(ctx context.Context, wallet common.Address) ([]Holding, error)
}

// TreasuryLedger persists the append-only treasury movement log.
type TreasuryLedger interface {
	Append(ctx context.Context, entry TreasuryEntry) error
	// Sum returns the net balance: sum of "in" amounts minus sum of "out".
	Sum(ctx context.Context) (int64, error)
	ListByBond(ctx context.Context, bondID int64, opts ListOpts) ([]TreasuryEntry, error)
	List(ctx context.Context, opts ListOpts) ([]TreasuryEntry, error)
	// ListBefore returns entries created strictly before the cutoff, for
	// archival.
	ListBefore(ctx context.Context, before time.Time) ([]TreasuryEntry, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64          `json:"id"`
	Event     string         `json:"event"`
	Detail    map[string]any `json:"detail,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}

// SchemaStore tracks the persisted data layout version for the upgrade gate.
type SchemaStore interface {
	Version(ctx context.Context) (int, error)
	SetVersion(ctx context.Context, version int, note string) error
}
