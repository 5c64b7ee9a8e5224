// Package engine implements the bond lifecycle and settlement engine: the
// status state machine from draft to settlement and the accounting that
// moves native currency and token units in lock-step with transitions.
//
// Every mutating operation follows checks-effects-interactions: record
// mutation is finalized before any external token or value transfer, so a
// reentrant callback sees already-updated state. External-call failures are
// unwound by compensation; nothing is left partially applied.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/alanyoungcy/bondledger/internal/domain"
	"github.com/alanyoungcy/bondledger/internal/token"
	"github.com/alanyoungcy/bondledger/internal/treasury"
)

// Recorder receives every event the engine emits. Implementations must not
// fail the operation; delivery problems are theirs to log.
type Recorder interface {
	Record(ctx context.Context, ev domain.Event)
}

// nopRecorder drops events.
type nopRecorder struct{}

func (nopRecorder) Record(context.Context, domain.Event) {}

// Config carries the engine's tunables.
type Config struct {
	// Admin is the administrator wallet at startup.
	Admin common.Address
	// MaxRateBP is the inclusive ceiling for each rate leg, in basis points.
	// Zero means the default of 10000 (100%).
	MaxRateBP int64
}

// Engine owns all bond and issuer records. There is no ambient global
// state: administrator, pause flag, and counters live here or in the stores.
type Engine struct {
	bonds    domain.BondStore
	issuers  domain.IssuerStore
	holdings domain.HoldingStore
	treasury *treasury.Treasury
	backend  token.Backend
	guard    *Guard
	events   Recorder
	logger   *slog.Logger
	clock    func() time.Time

	maxRateBP int64

	mu     sync.RWMutex // guards admin, paused, backend, and treasury
	admin  common.Address
	paused bool
}

// New creates an Engine. The recorder and clock have working defaults and
// can be overridden with the With* methods.
func New(
	cfg Config,
	bonds domain.BondStore,
	issuers domain.IssuerStore,
	holdings domain.HoldingStore,
	treas *treasury.Treasury,
	backend token.Backend,
	logger *slog.Logger,
) *Engine {
	maxRate := cfg.MaxRateBP
	if maxRate <= 0 {
		maxRate = BasisPointDenom
	}
	return &Engine{
		bonds:     bonds,
		issuers:   issuers,
		holdings:  holdings,
		treasury:  treas,
		backend:   backend,
		guard:     NewGuard(),
		events:    nopRecorder{},
		logger:    logger.With(slog.String("component", "engine")),
		clock:     func() time.Time { return time.Now().UTC() },
		maxRateBP: maxRate,
		admin:     cfg.Admin,
	}
}

// WithRecorder attaches an event recorder.
func (e *Engine) WithRecorder(r Recorder) *Engine {
	e.events = r
	return e
}

// WithClock overrides the time source. Used by tests.
func (e *Engine) WithClock(clock func() time.Time) *Engine {
	e.clock = clock
	return e
}

// Admin returns the current administrator wallet.
func (e *Engine) Admin() common.Address {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.admin
}

// Paused reports whether mutation is halted.
func (e *Engine) Paused() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.paused
}

// TreasuryBalance returns the engine's held native balance.
func (e *Engine) TreasuryBalance() int64 {
	return e.treasuryRef().Balance()
}

// GetBond returns a bond record. Reads stay available while paused.
func (e *Engine) GetBond(ctx context.Context, id int64) (domain.Bond, error) {
	return e.bonds.GetByID(ctx, id)
}

// GetIssuer returns an issuer record.
func (e *Engine) GetIssuer(ctx context.Context, wallet common.Address) (domain.Issuer, error) {
	return e.issuers.GetByWallet(ctx, wallet)
}

// Pause halts all state-mutating bond operations. Admin only.
func (e *Engine) Pause(ctx context.Context, caller common.Address) error {
	if err := e.requireAdmin(caller); err != nil {
		return err
	}
	e.mu.Lock()
	e.paused = true
	e.mu.Unlock()
	e.emit(ctx, domain.EventPaused, 0, caller, nil)
	return nil
}

// Unpause resumes mutation. Admin only.
func (e *Engine) Unpause(ctx context.Context, caller common.Address) error {
	if err := e.requireAdmin(caller); err != nil {
		return err
	}
	e.mu.Lock()
	e.paused = false
	e.mu.Unlock()
	e.emit(ctx, domain.EventUnpaused, 0, caller, nil)
	return nil
}

// TransferAdmin hands the administrator role to next. Admin only.
func (e *Engine) TransferAdmin(ctx context.Context, caller, next common.Address) error {
	if err := e.requireAdmin(caller); err != nil {
		return err
	}
	if next == (common.Address{}) {
		return fmt.Errorf("engine: zero admin address: %w", domain.ErrInvalidParams)
	}
	e.mu.Lock()
	e.admin = next
	e.mu.Unlock()
	e.emit(ctx, domain.EventAdminChanged, 0, caller, map[string]any{
		"next_admin": next.Hex(),
	})
	return nil
}

// SetTokenBackend swaps the token backend. Admin only. Calls already past
// their entry checks finish against the old backend.
func (e *Engine) SetTokenBackend(ctx context.Context, caller common.Address, backend token.Backend) error {
	if err := e.requireAdmin(caller); err != nil {
		return err
	}
	if backend == nil {
		return fmt.Errorf("engine: nil token backend: %w", domain.ErrInvalidParams)
	}
	e.mu.Lock()
	e.backend = backend
	e.mu.Unlock()
	e.emit(ctx, domain.EventBackendChanged, 0, caller, nil)
	return nil
}

// SetTreasury swaps the treasury. Admin only. Calls already past their entry
// checks finish against the old treasury.
func (e *Engine) SetTreasury(ctx context.Context, caller common.Address, treas *treasury.Treasury) error {
	if err := e.requireAdmin(caller); err != nil {
		return err
	}
	if treas == nil {
		return fmt.Errorf("engine: nil treasury: %w", domain.ErrInvalidParams)
	}
	e.mu.Lock()
	e.treasury = treas
	e.mu.Unlock()
	e.emit(ctx, domain.EventTreasuryChanged, 0, caller, nil)
	return nil
}

// FundTreasury accepts a native-currency deposit into the shared treasury.
// Any caller may fund; issuers use this to cover coupon obligations before
// their bonds mature.
func (e *Engine) FundTreasury(ctx context.Context, caller common.Address, amount int64) error {
	if err := e.requireRunning(); err != nil {
		return err
	}
	return e.treasuryRef().Deposit(ctx, 0, caller, amount, domain.KindFunding)
}

// EmergencyWithdraw pays out treasury funds to an admin-chosen recipient. It
// is the incident-response escape hatch and works while paused.
func (e *Engine) EmergencyWithdraw(ctx context.Context, caller, to common.Address, amount int64) error {
	if err := e.requireAdmin(caller); err != nil {
		return err
	}
	if err := e.treasuryRef().Payout(ctx, 0, to, amount, domain.KindEmergency); err != nil {
		return err
	}
	e.emit(ctx, domain.EventEmergencyPayout, 0, caller, map[string]any{
		"to":     to.Hex(),
		"amount": amount,
	})
	return nil
}

func (e *Engine) backendRef() token.Backend {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.backend
}

func (e *Engine) treasuryRef() *treasury.Treasury {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.treasury
}

func (e *Engine) requireAdmin(caller common.Address) error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if caller != e.admin {
		return fmt.Errorf("engine: caller %s is not admin: %w", caller.Hex(), domain.ErrUnauthorized)
	}
	return nil
}

func (e *Engine) requireRunning() error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.paused {
		return fmt.Errorf("engine: %w", domain.ErrPaused)
	}
	return nil
}

func (e *Engine) emit(ctx context.Context, typ string, bondID int64, actor common.Address, detail map[string]any) {
	e.events.Record(ctx, domain.Event{
		ID:     uuid.New().String(),
		Type:   typ,
		BondID: bondID,
		Actor:  actor,
		Detail: detail,
		At:     e.clock(),
	})
}

// notFoundAs maps a store miss to a domain gating error.
func notFoundAs(err, gate error) error {
	if errors.Is(err, domain.ErrNotFound) {
		return gate
	}
	return err
}
