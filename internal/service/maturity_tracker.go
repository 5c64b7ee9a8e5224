package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/bondledger/internal/domain"
	"github.com/alanyoungcy/bondledger/internal/engine"
)

// MaturityTracker sweeps issued bonds past their maturity time into the
// matured state and watches treasury coverage of matured obligations.
type MaturityTracker struct {
	engine  *engine.Engine
	bonds   domain.BondStore
	events  engine.Recorder
	pollDur time.Duration
	logger  *slog.Logger

	// lowWarned suppresses repeated treasury_low noise until coverage
	// recovers.
	lowWarned bool
}

// NewMaturityTracker creates a MaturityTracker. pollInterval is how often to
// sweep for newly matured bonds; events may be nil.
func NewMaturityTracker(eng *engine.Engine, bonds domain.BondStore, events engine.Recorder, pollInterval time.Duration, logger *slog.Logger) *MaturityTracker {
	if pollInterval <= 0 {
		pollInterval = time.Minute
	}
	return &MaturityTracker{
		engine:  eng,
		bonds:   bonds,
		events:  events,
		pollDur: pollInterval,
		logger:  logger.With(slog.String("component", "maturity_tracker")),
	}
}

// Run sweeps on a fixed interval until the context is cancelled. Call in a
// goroutine.
func (t *MaturityTracker) Run(ctx context.Context) error {
	ticker := time.NewTicker(t.pollDur)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := t.sweep(ctx); err != nil {
				t.logger.ErrorContext(ctx, "maturity sweep failed", slog.String("error", err.Error()))
			}
		}
	}
}

// sweep marks every due bond matured, then compares outstanding redemption
// obligations with the treasury balance.
func (t *MaturityTracker) sweep(ctx context.Context) error {
	due, err := t.bonds.ListMaturedBefore(ctx, time.Now().UTC())
	if err != nil {
		return err
	}
	for _, bond := range due {
		if err := t.engine.MarkMature(ctx, t.engine.Admin(), bond.ID); err != nil {
			// Races with manual MarkMature calls are expected; the sweep
			// catches the bond again next tick if it is still due.
			t.logger.WarnContext(ctx, "mark mature failed",
				slog.Int64("bond_id", bond.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		t.logger.InfoContext(ctx, "bond matured",
			slog.Int64("bond_id", bond.ID),
			slog.Time("maturity_at", bond.MaturityAt),
		)
	}

	return t.checkCoverage(ctx)
}

// checkCoverage sums the payout owed on all matured bonds and compares it to
// the treasury balance, flagging a shortfall once per episode.
func (t *MaturityTracker) checkCoverage(ctx context.Context) error {
	matured, err := t.bonds.ListByStatus(ctx, domain.BondMatured, domain.ListOpts{})
	if err != nil {
		return err
	}

	var owed int64
	for _, bond := range matured {
		payout, err := engine.RedemptionPayout(bond, bond.IssuedUnits)
		if err != nil {
			t.logger.ErrorContext(ctx, "obligation computation failed",
				slog.Int64("bond_id", bond.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		owed += payout
	}

	balance := t.engine.TreasuryBalance()
	if balance < owed {
		if !t.lowWarned {
			t.lowWarned = true
			t.logger.WarnContext(ctx, "treasury below matured obligations",
				slog.Int64("balance", balance),
				slog.Int64("owed", owed),
			)
			if t.events != nil {
				t.events.Record(ctx, domain.Event{
					ID:   uuid.New().String(),
					Type: domain.EventTreasuryLow,
					Detail: map[string]any{
						"balance": balance,
						"owed":    owed,
					},
					At: time.Now().UTC(),
				})
			}
		}
		return nil
	}
	t.lowWarned = false
	return nil
}
