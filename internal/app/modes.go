package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/bondledger/internal/domain"
	"github.com/alanyoungcy/bondledger/internal/engine"
	"github.com/alanyoungcy/bondledger/internal/server"
	"github.com/alanyoungcy/bondledger/internal/server/handler"
	"github.com/alanyoungcy/bondledger/internal/server/ws"
	"github.com/alanyoungcy/bondledger/internal/service"
	"github.com/alanyoungcy/bondledger/internal/upgrade"
)

// ServeMode runs the full ledger: the HTTP + WebSocket API, the maturity
// tracker, and the cold-storage archiver when configured.
func (a *App) ServeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting serve mode")

	// Refuse to serve data written by a newer build.
	if err := deps.Gate.Verify(ctx); err != nil {
		return fmt.Errorf("serve mode: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)

	bondSvc := service.NewBondService(
		deps.Engine, deps.BondStore, deps.HoldingStore,
		deps.BondCache, deps.LockManager, deps.Signer, a.logger,
	)
	issuerSvc := service.NewIssuerService(deps.Engine, deps.IssuerStore, deps.RateLimiter, a.logger)
	treasurySvc := service.NewTreasuryService(deps.Engine, deps.TreasuryLedger, a.logger)

	// WebSocket hub needs the Redis signal bus to relay events.
	var hub *ws.Hub
	if deps.SignalBus != nil {
		hub = ws.NewHub(deps.SignalBus, a.logger, ws.Config{
			Mode:      a.cfg.Mode,
			StartedAt: time.Now().UTC(),
		})
		g.Go(func() error {
			return hub.Run(ctx)
		})
	}

	if a.cfg.Server.Enabled {
		handlers := server.Handlers{
			Health:   handler.NewHealthHandler(a.logger),
			Bonds:    handler.NewBondHandler(bondSvc, a.logger),
			Issuers:  handler.NewIssuerHandler(issuerSvc, a.logger),
			Treasury: handler.NewTreasuryHandler(treasurySvc, a.logger),
			Admin:    handler.NewAdminHandler(deps.Engine, deps.Gate, deps.AuditStore, deps.BlobReader, a.logger),
		}
		srv := server.NewServer(server.Config{
			Port:        a.cfg.Server.Port,
			CORSOrigins: a.cfg.Server.CORSOrigins,
			APIKey:      a.cfg.Server.APIKey,
			RateLimit:   a.cfg.Server.RateLimit,
		}, handlers, hub, deps.RateLimiter, a.logger)

		g.Go(func() error {
			return srv.Start()
		})
		g.Go(func() error {
			<-ctx.Done()
			shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutCtx)
		})
	}

	// Maturity tracker: sweeps issued bonds past their maturity time.
	tracker := service.NewMaturityTracker(
		deps.Engine, deps.BondStore, deps.Recorder,
		a.cfg.Engine.MaturityPollInterval.Duration, a.logger,
	)
	g.Go(func() error {
		return tracker.Run(ctx)
	})

	// Cold-storage archiver.
	if deps.Archiver != nil {
		interval := a.cfg.Archive.Interval.Duration
		if interval <= 0 {
			interval = 24 * time.Hour
		}
		retention := time.Duration(a.cfg.Archive.RetentionDays) * 24 * time.Hour
		g.Go(func() error {
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
					a.runArchival(ctx, deps, time.Now().UTC().Add(-retention))
				}
			}
		})
	}

	return g.Wait()
}

// runArchival exports settled bonds, old treasury entries, and old audit
// entries to blob storage. Failures are logged and retried on the next tick.
func (a *App) runArchival(ctx context.Context, deps *Dependencies, before time.Time) {
	bonds, err := deps.Archiver.ArchiveSettledBonds(ctx, before)
	if err != nil {
		a.logger.ErrorContext(ctx, "archival: settled bonds failed", slog.String("error", err.Error()))
	}
	entries, err := deps.Archiver.ArchiveTreasuryLedger(ctx, before)
	if err != nil {
		a.logger.ErrorContext(ctx, "archival: treasury ledger failed", slog.String("error", err.Error()))
	}
	audits, err := deps.Archiver.ArchiveAuditLog(ctx, before)
	if err != nil {
		a.logger.ErrorContext(ctx, "archival: audit log failed", slog.String("error", err.Error()))
	}
	a.logger.InfoContext(ctx, "archival cycle complete",
		slog.Time("before", before),
		slog.Int64("settled_bonds", bonds),
		slog.Int64("treasury_entries", entries),
		slog.Int64("audit_entries", audits),
	)
}

// SimMode walks one bond through its entire lifecycle against the in-process
// simulators: registration, KYC, issuance, purchase, maturity, and
// redemption. It exists to exercise the full flow end to end without a chain,
// a database, or an HTTP client.
func (a *App) SimMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting sim mode")

	// A controllable clock lets the walkthrough jump past the maturity time
	// instead of sleeping through it.
	now := time.Now().UTC()
	eng := deps.Engine.WithClock(func() time.Time { return now })

	admin := eng.Admin()
	issuer := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	investor := common.HexToAddress("0x00000000000000000000000000000000000000bb")

	if err := eng.RegisterIssuer(ctx, issuer); err != nil {
		return fmt.Errorf("sim: register issuer: %w", err)
	}
	if err := eng.ApproveKYC(ctx, admin, issuer); err != nil {
		return fmt.Errorf("sim: approve kyc: %w", err)
	}

	const units = int64(40)
	id, err := eng.CreateBond(ctx, issuer, domain.BondParams{
		FaceValue:      1_000,
		AvailableUnits: 100,
		InterestRateBP: 800,
		CouponRateBP:   250,
		Duration:       30 * 24 * time.Hour,
	})
	if err != nil {
		return fmt.Errorf("sim: create bond: %w", err)
	}
	if err := eng.SubmitBond(ctx, issuer, id); err != nil {
		return fmt.Errorf("sim: submit: %w", err)
	}
	if err := eng.ReviewBond(ctx, admin, id); err != nil {
		return fmt.Errorf("sim: review: %w", err)
	}
	if err := eng.ApproveBond(ctx, admin, id); err != nil {
		return fmt.Errorf("sim: approve: %w", err)
	}
	if err := eng.IssueBond(ctx, admin, id, engine.TokenMetadata{
		Name:   "Simulated Bond",
		Symbol: "SIMB",
	}); err != nil {
		return fmt.Errorf("sim: issue: %w", err)
	}

	bond, err := eng.GetBond(ctx, id)
	if err != nil {
		return fmt.Errorf("sim: get bond: %w", err)
	}
	cost, err := engine.PurchaseCost(bond, units)
	if err != nil {
		return fmt.Errorf("sim: purchase cost: %w", err)
	}
	if err := eng.BuyBond(ctx, investor, id, units, cost); err != nil {
		return fmt.Errorf("sim: buy: %w", err)
	}
	a.logger.InfoContext(ctx, "sim: investor bought units",
		slog.Int64("bond_id", id),
		slog.Int64("units", units),
		slog.Int64("cost", cost),
	)

	// Cover the redemption obligation before maturity.
	payout, err := engine.RedemptionPayout(bond, units)
	if err != nil {
		return fmt.Errorf("sim: redemption payout: %w", err)
	}
	if err := eng.FundTreasury(ctx, admin, payout); err != nil {
		return fmt.Errorf("sim: fund treasury: %w", err)
	}

	// Jump past maturity.
	now = now.Add(bond.Duration + time.Minute)
	if err := eng.MarkMature(ctx, admin, id); err != nil {
		return fmt.Errorf("sim: mark mature: %w", err)
	}
	if err := eng.RedeemBond(ctx, investor, id, units); err != nil {
		return fmt.Errorf("sim: redeem: %w", err)
	}

	final, err := eng.GetBond(ctx, id)
	if err != nil {
		return fmt.Errorf("sim: get final bond: %w", err)
	}
	a.logger.InfoContext(ctx, "sim: lifecycle complete",
		slog.Int64("bond_id", id),
		slog.String("status", string(final.Status)),
		slog.Int64("payout", payout),
		slog.Int64("treasury_balance", eng.TreasuryBalance()),
	)
	return nil
}

// MigrateMode applies pending schema migrations through the upgrade gate and
// records the resulting schema version.
func (a *App) MigrateMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting migrate mode")

	current, err := deps.Gate.Current(ctx)
	if err != nil {
		return fmt.Errorf("migrate mode: read schema version: %w", err)
	}
	if current >= upgrade.CodeVersion {
		a.logger.InfoContext(ctx, "schema already current",
			slog.Int("version", current),
		)
		return nil
	}

	admin := common.HexToAddress(a.cfg.Admin.Address)
	if err := deps.Gate.Upgrade(ctx, admin, upgrade.CodeVersion, "cli migration"); err != nil {
		return fmt.Errorf("migrate mode: %w", err)
	}
	a.logger.InfoContext(ctx, "schema upgraded",
		slog.Int("from", current),
		slog.Int("to", upgrade.CodeVersion),
	)
	return nil
}
