// Package memory implements the domain store interfaces with in-process
// maps. It backs sim mode and tests; the postgres package is the production
// implementation.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/bondledger/internal/domain"
)

// BondStore is an in-memory domain.BondStore.
type BondStore struct {
	mu     sync.RWMutex
	nextID int64
	bonds  map[int64]domain.Bond
}

// NewBondStore creates an empty BondStore.
func NewBondStore() *BondStore {
	return &BondStore{bonds: make(map[int64]domain.Bond)}
}

// Create assigns the next id and stores the bond.
func (s *BondStore) Create(ctx context.Context, bond domain.Bond) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	bond.ID = s.nextID
	s.bonds[bond.ID] = bond
	return bond.ID, nil
}

// Update overwrites an existing bond.
func (s *BondStore) Update(ctx context.Context, bond domain.Bond) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.bonds[bond.ID]; !ok {
		return domain.ErrNotFound
	}
	s.bonds[bond.ID] = bond
	return nil
}

// GetByID returns a bond by id.
func (s *BondStore) GetByID(ctx context.Context, id int64) (domain.Bond, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	bond, ok := s.bonds[id]
	if !ok {
		return domain.Bond{}, domain.ErrNotFound
	}
	return bond, nil
}

// ListByIssuer returns the issuer's bonds ordered by id.
func (s *BondStore) ListByIssuer(ctx context.Context, issuer common.Address, opts domain.ListOpts) ([]domain.Bond, error) {
	return s.list(func(b domain.Bond) bool { return b.Issuer == issuer }, opts), nil
}

// ListByStatus returns bonds in the given status ordered by id.
func (s *BondStore) ListByStatus(ctx context.Context, status domain.BondStatus, opts domain.ListOpts) ([]domain.Bond, error) {
	return s.list(func(b domain.Bond) bool { return b.Status == status }, opts), nil
}

// ListMaturedBefore returns issued bonds with maturity at or before cutoff.
func (s *BondStore) ListMaturedBefore(ctx context.Context, cutoff time.Time) ([]domain.Bond, error) {
	return s.list(func(b domain.Bond) bool {
		return b.Status == domain.BondIssued && !b.MaturityAt.IsZero() && !b.MaturityAt.After(cutoff)
	}, domain.ListOpts{}), nil
}

// Count returns the number of bonds ever created.
func (s *BondStore) Count(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.bonds)), nil
}

func (s *BondStore) list(keep func(domain.Bond) bool, opts domain.ListOpts) []domain.Bond {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Bond
	for _, b := range s.bonds {
		if keep(b) {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return paginate(out, opts)
}

// IssuerStore is an in-memory domain.IssuerStore.
type IssuerStore struct {
	mu      sync.RWMutex
	issuers map[common.Address]domain.Issuer
}

// NewIssuerStore creates an empty IssuerStore.
func NewIssuerStore() *IssuerStore {
	return &IssuerStore{issuers: make(map[common.Address]domain.Issuer)}
}

// Create stores a new issuer record.
func (s *IssuerStore) Create(ctx context.Context, issuer domain.Issuer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.issuers[issuer.Wallet]; ok {
		return domain.ErrAlreadyRegistered
	}
	s.issuers[issuer.Wallet] = issuer
	return nil
}

// Update overwrites an existing issuer record.
func (s *IssuerStore) Update(ctx context.Context, issuer domain.Issuer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.issuers[issuer.Wallet]; !ok {
		return domain.ErrNotFound
	}
	s.issuers[issuer.Wallet] = issuer
	return nil
}

// GetByWallet returns an issuer by wallet.
func (s *IssuerStore) GetByWallet(ctx context.Context, wallet common.Address) (domain.Issuer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	issuer, ok := s.issuers[wallet]
	if !ok {
		return domain.Issuer{}, domain.ErrNotFound
	}
	return issuer, nil
}

// List returns all issuers ordered by registration time.
func (s *IssuerStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.Issuer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Issuer, 0, len(s.issuers))
	for _, issuer := range s.issuers {
		out = append(out, issuer)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RegisteredAt.Before(out[j].RegisteredAt) })
	return paginate(out, opts), nil
}

type holdingKey struct {
	bondID int64
	wallet common.Address
}

// HoldingStore is an in-memory domain.HoldingStore.
type HoldingStore struct {
	mu       sync.RWMutex
	holdings map[holdingKey]domain.Holding
}

// NewHoldingStore creates an empty HoldingStore.
func NewHoldingStore() *HoldingStore {
	return &HoldingStore{holdings: make(map[holdingKey]domain.Holding)}
}

// Get returns the holding for (bondID, wallet).
func (s *HoldingStore) Get(ctx context.Context, bondID int64, wallet common.Address) (domain.Holding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.holdings[holdingKey{bondID, wallet}]
	if !ok {
		return domain.Holding{}, domain.ErrNotFound
	}
	return h, nil
}

// Upsert stores the holding, overwriting any existing row.
func (s *HoldingStore) Upsert(ctx context.Context, holding domain.Holding) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.holdings[holdingKey{holding.BondID, holding.Wallet}] = holding
	return nil
}

// ListByBond returns all holdings in a bond.
func (s *HoldingStore) ListByBond(ctx context.Context, bondID int64) ([]domain.Holding, error) {
	return s.list(func(h domain.Holding) bool { return h.BondID == bondID }), nil
}

// ListByWallet returns all of a wallet's holdings.
func (s *HoldingStore) ListByWallet(ctx context.Context, wallet common.Address) ([]domain.Holding, error) {
	return s.list(func(h domain.Holding) bool { return h.Wallet == wallet }), nil
}

func (s *HoldingStore) list(keep func(domain.Holding) bool) []domain.Holding {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Holding
	for _, h := range s.holdings {
		if keep(h) {
			out = append(out, h)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].BondID != out[j].BondID {
			return out[i].BondID < out[j].BondID
		}
		return out[i].Wallet.Hex() < out[j].Wallet.Hex()
	})
	return out
}

// TreasuryLedger is an in-memory domain.TreasuryLedger.
type TreasuryLedger struct {
	mu      sync.RWMutex
	entries []domain.TreasuryEntry
}

// NewTreasuryLedger creates an empty TreasuryLedger.
func NewTreasuryLedger() *TreasuryLedger {
	return &TreasuryLedger{}
}

// Append adds a ledger row.
func (s *TreasuryLedger) Append(ctx context.Context, entry domain.TreasuryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
	return nil
}

// Sum returns in minus out over all rows.
func (s *TreasuryLedger) Sum(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var sum int64
	for _, e := range s.entries {
		if e.Direction == domain.DirectionIn {
			sum += e.Amount
		} else {
			sum -= e.Amount
		}
	}
	return sum, nil
}

// ListByBond returns rows for one bond in insertion order.
func (s *TreasuryLedger) ListByBond(ctx context.Context, bondID int64, opts domain.ListOpts) ([]domain.TreasuryEntry, error) {
	return s.list(func(e domain.TreasuryEntry) bool { return e.BondID == bondID }, opts), nil
}

// List returns all rows in insertion order.
func (s *TreasuryLedger) List(ctx context.Context, opts domain.ListOpts) ([]domain.TreasuryEntry, error) {
	return s.list(func(domain.TreasuryEntry) bool { return true }, opts), nil
}

// ListBefore returns rows created strictly before the cutoff.
func (s *TreasuryLedger) ListBefore(ctx context.Context, before time.Time) ([]domain.TreasuryEntry, error) {
	return s.list(func(e domain.TreasuryEntry) bool { return e.CreatedAt.Before(before) }, domain.ListOpts{}), nil
}

func (s *TreasuryLedger) list(keep func(domain.TreasuryEntry) bool, opts domain.ListOpts) []domain.TreasuryEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.TreasuryEntry
	for _, e := range s.entries {
		if keep(e) {
			out = append(out, e)
		}
	}
	return paginate(out, opts)
}

// AuditStore is an in-memory domain.AuditStore.
type AuditStore struct {
	mu      sync.RWMutex
	nextID  int64
	entries []domain.AuditEntry
}

// NewAuditStore creates an empty AuditStore.
func NewAuditStore() *AuditStore {
	return &AuditStore{}
}

// Log appends an audit entry.
func (s *AuditStore) Log(ctx context.Context, event string, detail map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	s.entries = append(s.entries, domain.AuditEntry{
		ID:        s.nextID,
		Event:     event,
		Detail:    detail,
		CreatedAt: time.Now().UTC(),
	})
	return nil
}

// List returns audit entries newest first, honoring the Since/Until window.
func (s *AuditStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.AuditEntry
	for _, e := range s.entries {
		if opts.Since != nil && e.CreatedAt.Before(*opts.Since) {
			continue
		}
		if opts.Until != nil && e.CreatedAt.After(*opts.Until) {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return paginate(out, opts), nil
}

// SchemaStore is an in-memory domain.SchemaStore.
type SchemaStore struct {
	mu      sync.RWMutex
	version int
}

// NewSchemaStore creates a SchemaStore at version zero.
func NewSchemaStore() *SchemaStore {
	return &SchemaStore{}
}

// Version returns the current schema version.
func (s *SchemaStore) Version(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version, nil
}

// SetVersion records a new schema version.
func (s *SchemaStore) SetVersion(ctx context.Context, version int, note string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.version = version
	return nil
}

func paginate[T any](in []T, opts domain.ListOpts) []T {
	if opts.Offset > 0 {
		if opts.Offset >= len(in) {
			return nil
		}
		in = in[opts.Offset:]
	}
	if opts.Limit > 0 && opts.Limit < len(in) {
		in = in[:opts.Limit]
	}
	return in
}

// Compile-time interface checks.
var (
	_ domain.BondStore      = (*BondStore)(nil)
	_ domain.IssuerStore    = (*IssuerStore)(nil)
	_ domain.HoldingStore   = (*HoldingStore)(nil)
	_ domain.TreasuryLedger = (*TreasuryLedger)(nil)
	_ domain.AuditStore     = (*AuditStore)(nil)
	_ domain.SchemaStore    = (*SchemaStore)(nil)
)
