package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"

	s3blob "github.com/alanyoungcy/bondledger/internal/blob/s3"
	"github.com/alanyoungcy/bondledger/internal/cache/redis"
	"github.com/alanyoungcy/bondledger/internal/config"
	"github.com/alanyoungcy/bondledger/internal/crypto"
	"github.com/alanyoungcy/bondledger/internal/domain"
	"github.com/alanyoungcy/bondledger/internal/engine"
	"github.com/alanyoungcy/bondledger/internal/notify"
	"github.com/alanyoungcy/bondledger/internal/platform/chain"
	"github.com/alanyoungcy/bondledger/internal/service"
	"github.com/alanyoungcy/bondledger/internal/store/memory"
	"github.com/alanyoungcy/bondledger/internal/store/postgres"
	"github.com/alanyoungcy/bondledger/internal/token"
	"github.com/alanyoungcy/bondledger/internal/treasury"
	"github.com/alanyoungcy/bondledger/internal/upgrade"
)

// Dependencies bundles every domain-level dependency that the application
// modes need to operate. It is constructed by Wire and torn down by the
// returned cleanup function.
type Dependencies struct {
	// Stores
	BondStore      domain.BondStore
	IssuerStore    domain.IssuerStore
	HoldingStore   domain.HoldingStore
	TreasuryLedger domain.TreasuryLedger
	AuditStore     domain.AuditStore
	SchemaStore    domain.SchemaStore

	// Caches (nil when Redis is not configured)
	BondCache   domain.BondCache
	RateLimiter domain.RateLimiter
	LockManager domain.LockManager
	SignalBus   domain.SignalBus

	// Blob storage (nil when archival is not configured)
	BlobWriter domain.BlobWriter
	BlobReader domain.BlobReader
	Archiver   domain.Archiver

	// Core
	Engine   *engine.Engine
	Treasury *treasury.Treasury
	Gate     *upgrade.Gate
	Signer   *crypto.Signer
	Recorder *service.EventRecorder

	// Notifications
	Notifier *notify.Notifier
}

// needsEngine returns true for modes that run the lifecycle engine and thus
// require the operator wallet key.
func needsEngine(mode string) bool {
	switch mode {
	case "serve", "sim":
		return true
	default:
		return false
	}
}

// noopMigrator backs the upgrade gate when the in-memory stores are active
// and there is no persisted layout to migrate.
type noopMigrator struct{}

func (noopMigrator) RunMigrations(ctx context.Context) error { return nil }

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config) (*Dependencies, func(), error) {
	logger := slog.Default()

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}
	admin := common.HexToAddress(cfg.Admin.Address)

	// --- Stores: PostgreSQL when configured, in-memory otherwise ---
	var migrator upgrade.Migrator = noopMigrator{}
	if cfg.Postgres.Enabled() {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)
		migrator = pgClient

		// In migrate mode the upgrade gate applies migrations explicitly.
		if cfg.Postgres.RunMigrations && cfg.Mode != "migrate" {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		pool := pgClient.Pool()
		deps.BondStore = postgres.NewBondStore(pool)
		deps.IssuerStore = postgres.NewIssuerStore(pool)
		deps.HoldingStore = postgres.NewHoldingStore(pool)
		deps.TreasuryLedger = postgres.NewTreasuryLedger(pool)
		deps.AuditStore = postgres.NewAuditStore(pool)
		deps.SchemaStore = postgres.NewSchemaStore(pool)
	} else {
		deps.BondStore = memory.NewBondStore()
		deps.IssuerStore = memory.NewIssuerStore()
		deps.HoldingStore = memory.NewHoldingStore()
		deps.TreasuryLedger = memory.NewTreasuryLedger()
		deps.AuditStore = memory.NewAuditStore()
		deps.SchemaStore = memory.NewSchemaStore()
	}

	// --- Redis (optional) ---
	if cfg.Redis.Enabled() {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.BondCache = redis.NewBondCache(redisClient).WithTTL(cfg.Engine.CacheTTL.Duration)
		deps.RateLimiter = redis.NewRateLimiter(redisClient)
		deps.LockManager = redis.NewLockManager(redisClient)
		deps.SignalBus = redis.NewSignalBus(redisClient)
	}

	// --- S3 blob storage (only when archival is enabled) ---
	if cfg.Archive.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		closers = append(closers, func() { _ = s3Client.Close() })

		deps.BlobWriter = s3blob.NewWriter(s3Client)
		deps.BlobReader = s3blob.NewReader(s3Client)
		deps.Archiver = s3blob.NewArchiver(
			deps.BlobWriter,
			deps.BondStore,
			deps.HoldingStore,
			deps.TreasuryLedger,
			deps.AuditStore,
		)
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	if cfg.Notify.WebhookURL != "" {
		webhookSigner := &crypto.WebhookSigner{Secret: cfg.Notify.WebhookSecret}
		wh, err := notify.NewWebhookSender(cfg.Notify.WebhookURL, webhookSigner)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: webhook sender: %w", err)
		}
		senders = append(senders, wh)
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)
	deps.Recorder = service.NewEventRecorder(deps.AuditStore, deps.SignalBus, deps.Notifier, logger)

	// --- Upgrade gate ---
	deps.Gate = upgrade.New(admin, deps.SchemaStore, migrator, logger)

	// --- Lifecycle engine (not needed for migrate) ---
	if needsEngine(cfg.Mode) {
		keyHex, err := crypto.LoadKey(crypto.KeyConfig{
			RawPrivateKey:    cfg.Wallet.PrivateKey,
			EncryptedKeyPath: cfg.Wallet.EncryptedKeyPath,
			KeyPassword:      cfg.Wallet.KeyPassword,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: load wallet key: %w", err)
		}
		deps.Signer, err = crypto.NewSigner(keyHex, cfg.Chain.ChainID)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: signer: %w", err)
		}

		// Token backend and treasury transferor: real chain when an RPC
		// endpoint is configured, in-process simulators otherwise.
		var backend token.Backend
		var transferor treasury.Transferor
		if cfg.Chain.RPCURL != "" {
			chainClient, err := chain.New(ctx, chain.Config{
				RPCURL:         cfg.Chain.RPCURL,
				ChainID:        int64(cfg.Chain.ChainID),
				ContractAddr:   cfg.Chain.ContractAddr,
				PrivateKeyHex:  keyHex,
				GasLimit:       cfg.Chain.GasLimit,
				ReceiptTimeout: cfg.Chain.ReceiptTimeout.Duration,
			})
			if err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: chain: %w", err)
			}
			closers = append(closers, chainClient.Close)
			backend = chain.NewBackend(chainClient)
			transferor = chain.NewTransferor(chainClient)
		} else {
			backend = token.NewSimBackend()
			transferor = treasury.NewSimTransferor()
		}

		treas := treasury.New(deps.TreasuryLedger, transferor, logger)
		if err := treas.Load(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: treasury load: %w", err)
		}
		deps.Treasury = treas

		deps.Engine = engine.New(
			engine.Config{Admin: admin, MaxRateBP: cfg.Engine.MaxRateBP},
			deps.BondStore,
			deps.IssuerStore,
			deps.HoldingStore,
			treas,
			backend,
			logger,
		).WithRecorder(deps.Recorder)
	}

	return deps, cleanup, nil
}
