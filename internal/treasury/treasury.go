// Package treasury implements the engine's native-currency accounting. The
// in-memory balance is authoritative during a call; every movement is also
// persisted as an append-only ledger row, so the balance is recoverable as
// sum(in) - sum(out) after a restart. Failed operations are unwound with
// explicit reversal rows, never deletions.
package treasury

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/alanyoungcy/bondledger/internal/domain"
)

// Transferor moves native currency out of the engine's custody. The chain
// implementation sends a real transaction; the sim implementation credits an
// in-memory account and can be rigged to re-enter the engine in tests.
type Transferor interface {
	// Transfer sends amount to the recipient and returns a transaction
	// reference on success.
	Transfer(ctx context.Context, to common.Address, amount int64) (string, error)
}

// Treasury is the shared pool of native currency backing redemptions. Funds
// are not partitioned per bond; sufficiency is validated at each payout.
type Treasury struct {
	mu         sync.Mutex
	balance    int64
	ledger     domain.TreasuryLedger
	transferor Transferor
	clock      func() time.Time
	logger     *slog.Logger
}

// New creates a Treasury over the given ledger and transferor.
func New(ledger domain.TreasuryLedger, transferor Transferor, logger *slog.Logger) *Treasury {
	return &Treasury{
		ledger:     ledger,
		transferor: transferor,
		clock:      func() time.Time { return time.Now().UTC() },
		logger:     logger.With(slog.String("component", "treasury")),
	}
}

// WithClock overrides the time source. Used by tests.
func (t *Treasury) WithClock(clock func() time.Time) *Treasury {
	t.clock = clock
	return t
}

// Load recomputes the balance from the persisted ledger. Call once at
// startup before serving requests.
func (t *Treasury) Load(ctx context.Context) error {
	sum, err := t.ledger.Sum(ctx)
	if err != nil {
		return fmt.Errorf("treasury: load balance: %w", err)
	}
	t.mu.Lock()
	t.balance = sum
	t.mu.Unlock()
	return nil
}

// Balance returns the current native balance.
func (t *Treasury) Balance() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.balance
}

// Deposit credits a purchase payment. The balance is updated before the
// ledger row is written; a ledger failure reverts the credit.
func (t *Treasury) Deposit(ctx context.Context, bondID int64, from common.Address, amount int64, kind domain.EntryKind) error {
	if amount <= 0 {
		return fmt.Errorf("treasury: deposit amount %d: %w", amount, domain.ErrInvalidParams)
	}

	t.mu.Lock()
	t.balance += amount
	t.mu.Unlock()

	entry := domain.TreasuryEntry{
		ID:        uuid.New().String(),
		BondID:    bondID,
		Wallet:    from,
		Direction: domain.DirectionIn,
		Kind:      kind,
		Amount:    amount,
		CreatedAt: t.clock(),
	}
	if err := t.ledger.Append(ctx, entry); err != nil {
		t.mu.Lock()
		t.balance -= amount
		t.mu.Unlock()
		return fmt.Errorf("treasury: record deposit: %w", err)
	}
	return nil
}

// Reverse unwinds a prior deposit when the rest of the operation failed. It
// debits the balance and appends a reversal row so the ledger stays
// append-only while sum(in)-sum(out) returns to its prior value.
func (t *Treasury) Reverse(ctx context.Context, bondID int64, wallet common.Address, amount int64) error {
	t.mu.Lock()
	t.balance -= amount
	t.mu.Unlock()

	entry := domain.TreasuryEntry{
		ID:        uuid.New().String(),
		BondID:    bondID,
		Wallet:    wallet,
		Direction: domain.DirectionOut,
		Kind:      domain.KindReversal,
		Amount:    amount,
		CreatedAt: t.clock(),
	}
	if err := t.ledger.Append(ctx, entry); err != nil {
		return fmt.Errorf("treasury: record reversal: %w", err)
	}
	return nil
}

// Payout is the only path by which funds leave the treasury. It validates
// sufficiency, debits the balance, then performs the external transfer last.
// A transfer failure re-credits the balance and surfaces ErrExternalCall; a
// short balance fails with ErrInsufficientTreasury before anything moves.
func (t *Treasury) Payout(ctx context.Context, bondID int64, to common.Address, amount int64, kind domain.EntryKind) error {
	if amount <= 0 {
		return fmt.Errorf("treasury: payout amount %d: %w", amount, domain.ErrInvalidParams)
	}

	t.mu.Lock()
	if t.balance < amount {
		t.mu.Unlock()
		return fmt.Errorf("treasury: payout %d exceeds balance: %w", amount, domain.ErrInsufficientTreasury)
	}
	t.balance -= amount
	t.mu.Unlock()

	txRef, err := t.transferor.Transfer(ctx, to, amount)
	if err != nil {
		t.mu.Lock()
		t.balance += amount
		t.mu.Unlock()
		return fmt.Errorf("treasury: transfer to %s: %w: %v", to.Hex(), domain.ErrExternalCall, err)
	}

	entry := domain.TreasuryEntry{
		ID:        uuid.New().String(),
		BondID:    bondID,
		Wallet:    to,
		Direction: domain.DirectionOut,
		Kind:      kind,
		Amount:    amount,
		TxRef:     txRef,
		CreatedAt: t.clock(),
	}
	if err := t.ledger.Append(ctx, entry); err != nil {
		// The transfer already happened; the debit stands. Log loudly so the
		// row can be replayed from the tx reference.
		t.logger.ErrorContext(ctx, "payout ledger write failed after transfer",
			slog.String("tx_ref", txRef),
			slog.Int64("amount", amount),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("treasury: record payout: %w", err)
	}
	return nil
}

// SimTransferor is an in-memory Transferor for sim mode and tests. Accounts
// accumulate received amounts; an optional OnTransfer hook runs before the
// credit, letting tests model a malicious recipient that re-enters the
// engine during its own payout.
type SimTransferor struct {
	mu       sync.Mutex
	accounts map[common.Address]int64
	seq      int64

	// OnTransfer, when set, is invoked before the credit. Returning an error
	// fails the transfer.
	OnTransfer func(ctx context.Context, to common.Address, amount int64) error
}

// NewSimTransferor creates an empty SimTransferor.
func NewSimTransferor() *SimTransferor {
	return &SimTransferor{accounts: make(map[common.Address]int64)}
}

// Transfer credits the recipient's in-memory account.
func (s *SimTransferor) Transfer(ctx context.Context, to common.Address, amount int64) (string, error) {
	if s.OnTransfer != nil {
		if err := s.OnTransfer(ctx, to, amount); err != nil {
			return "", err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[to] += amount
	s.seq++
	return fmt.Sprintf("sim-tx-%d", s.seq), nil
}

// Received reports the total amount credited to addr.
func (s *SimTransferor) Received(addr common.Address) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accounts[addr]
}

var _ Transferor = (*SimTransferor)(nil)
