package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies BONDLEDGER_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known BONDLEDGER_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Admin ──
	setStr(&cfg.Admin.Address, "BONDLEDGER_ADMIN_ADDRESS")

	// ── Wallet ──
	setStr(&cfg.Wallet.PrivateKey, "BONDLEDGER_WALLET_PRIVATE_KEY")
	setStr(&cfg.Wallet.EncryptedKeyPath, "BONDLEDGER_WALLET_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Wallet.KeyPassword, "BONDLEDGER_WALLET_KEY_PASSWORD")

	// ── Chain ──
	setStr(&cfg.Chain.RPCURL, "BONDLEDGER_CHAIN_RPC_URL")
	setInt(&cfg.Chain.ChainID, "BONDLEDGER_CHAIN_CHAIN_ID")
	setStr(&cfg.Chain.ContractAddr, "BONDLEDGER_CHAIN_CONTRACT_ADDR")
	setUint64(&cfg.Chain.GasLimit, "BONDLEDGER_CHAIN_GAS_LIMIT")
	setDuration(&cfg.Chain.ReceiptTimeout, "BONDLEDGER_CHAIN_RECEIPT_TIMEOUT")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "BONDLEDGER_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "BONDLEDGER_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "BONDLEDGER_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "BONDLEDGER_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "BONDLEDGER_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "BONDLEDGER_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "BONDLEDGER_POSTGRES_SSLMODE")
	setInt(&cfg.Postgres.PoolMaxConns, "BONDLEDGER_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "BONDLEDGER_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "BONDLEDGER_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "BONDLEDGER_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "BONDLEDGER_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "BONDLEDGER_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "BONDLEDGER_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "BONDLEDGER_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "BONDLEDGER_REDIS_TLS_ENABLED")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "BONDLEDGER_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "BONDLEDGER_S3_REGION")
	setStr(&cfg.S3.Bucket, "BONDLEDGER_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "BONDLEDGER_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "BONDLEDGER_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "BONDLEDGER_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "BONDLEDGER_S3_FORCE_PATH_STYLE")

	// ── Engine ──
	setInt64(&cfg.Engine.MaxRateBP, "BONDLEDGER_ENGINE_MAX_RATE_BP")
	setDuration(&cfg.Engine.MaturityPollInterval, "BONDLEDGER_ENGINE_MATURITY_POLL_INTERVAL")
	setDuration(&cfg.Engine.CacheTTL, "BONDLEDGER_ENGINE_CACHE_TTL")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "BONDLEDGER_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "BONDLEDGER_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "BONDLEDGER_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "BONDLEDGER_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimit, "BONDLEDGER_SERVER_RATE_LIMIT")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "BONDLEDGER_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "BONDLEDGER_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "BONDLEDGER_NOTIFY_DISCORD_WEBHOOK_URL")
	setStr(&cfg.Notify.WebhookURL, "BONDLEDGER_NOTIFY_WEBHOOK_URL")
	setStr(&cfg.Notify.WebhookSecret, "BONDLEDGER_NOTIFY_WEBHOOK_SECRET")
	setStringSlice(&cfg.Notify.Events, "BONDLEDGER_NOTIFY_EVENTS")

	// ── Archive ──
	setBool(&cfg.Archive.Enabled, "BONDLEDGER_ARCHIVE_ENABLED")
	setInt(&cfg.Archive.RetentionDays, "BONDLEDGER_ARCHIVE_RETENTION_DAYS")
	setDuration(&cfg.Archive.Interval, "BONDLEDGER_ARCHIVE_INTERVAL")

	// ── Top-level ──
	setStr(&cfg.Mode, "BONDLEDGER_MODE")
	setStr(&cfg.LogLevel, "BONDLEDGER_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setUint64(dst *uint64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
