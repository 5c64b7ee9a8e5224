package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// validConfig returns a Config that passes Validate, built on the defaults.
func validConfig() Config {
	cfg := Defaults()
	cfg.Admin.Address = "0x00000000000000000000000000000000000000a1"
	cfg.Wallet.PrivateKey = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"
	return cfg
}

func TestValidateDefaults(t *testing.T) {
	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}
}

func TestValidateFailures(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantSub string
	}{
		{
			"unknown mode",
			func(c *Config) { c.Mode = "replay" },
			"unknown mode",
		},
		{
			"unknown log level",
			func(c *Config) { c.LogLevel = "loud" },
			"unknown log_level",
		},
		{
			"empty admin address",
			func(c *Config) { c.Admin.Address = "" },
			"admin: address must not be empty",
		},
		{
			"malformed admin address",
			func(c *Config) { c.Admin.Address = "not-an-address" },
			"not a valid hex address",
		},
		{
			"missing wallet key",
			func(c *Config) { c.Wallet = WalletConfig{} },
			"wallet: either private_key or encrypted_key_path",
		},
		{
			"encrypted key without password",
			func(c *Config) {
				c.Wallet = WalletConfig{EncryptedKeyPath: "/keys/op.enc"}
			},
			"key_password is required",
		},
		{
			"chain rpc without contract",
			func(c *Config) { c.Chain.RPCURL = "https://rpc.example" },
			"contract_addr must be set",
		},
		{
			"migrate needs postgres",
			func(c *Config) {
				c.Mode = "migrate"
				c.Postgres.DSN = ""
				c.Postgres.Host = ""
			},
			"connection is required for mode migrate",
		},
		{
			"pool bounds inverted",
			func(c *Config) {
				c.Postgres.PoolMinConns = 20
				c.Postgres.PoolMaxConns = 5
			},
			"pool_min_conns must not exceed pool_max_conns",
		},
		{
			"archive without bucket",
			func(c *Config) { c.Archive.Enabled = true },
			"bucket must be set when archive is enabled",
		},
		{
			"negative max rate",
			func(c *Config) { c.Engine.MaxRateBP = -1 },
			"max_rate_bp must be >= 0",
		},
		{
			"server port out of range",
			func(c *Config) { c.Server.Port = 99999 },
			"port must be 1-65535",
		},
		{
			"webhook without secret",
			func(c *Config) {
				c.Notify.WebhookURL = "https://hooks.example/ledger"
				c.Notify.WebhookSecret = ""
			},
			"webhook_secret is required",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantSub) {
				t.Fatalf("error %q does not mention %q", err, tt.wantSub)
			}
		})
	}
}

func TestValidateCollectsAllErrors(t *testing.T) {
	cfg := validConfig()
	cfg.Mode = "replay"
	cfg.Admin.Address = ""
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error, got nil")
	}
	for _, sub := range []string{"unknown mode", "admin: address"} {
		if !strings.Contains(err.Error(), sub) {
			t.Fatalf("combined error %q missing %q", err, sub)
		}
	}
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	body := `
mode = "sim"
log_level = "debug"

[admin]
address = "0x00000000000000000000000000000000000000a1"

[engine]
max_rate_bp = 2500
maturity_poll_interval = "30s"
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Mode != "sim" {
		t.Fatalf("mode = %q, want sim", cfg.Mode)
	}
	if cfg.Engine.MaxRateBP != 2500 {
		t.Fatalf("max_rate_bp = %d, want 2500", cfg.Engine.MaxRateBP)
	}
	if cfg.Engine.MaturityPollInterval.Duration != 30*time.Second {
		t.Fatalf("maturity_poll_interval = %v, want 30s", cfg.Engine.MaturityPollInterval.Duration)
	}
	// Untouched fields keep their defaults.
	if cfg.Server.Port != 8000 {
		t.Fatalf("server port = %d, want default 8000", cfg.Server.Port)
	}
	if cfg.Chain.ReceiptTimeout.Duration != 90*time.Second {
		t.Fatalf("receipt_timeout = %v, want default 90s", cfg.Chain.ReceiptTimeout.Duration)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	body := `
[admin]
address = "0x00000000000000000000000000000000000000a1"
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("BONDLEDGER_MODE", "migrate")
	t.Setenv("BONDLEDGER_POSTGRES_HOST", "db.internal")
	t.Setenv("BONDLEDGER_ENGINE_MAX_RATE_BP", "5000")
	t.Setenv("BONDLEDGER_ENGINE_CACHE_TTL", "90s")
	t.Setenv("BONDLEDGER_SERVER_CORS_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("BONDLEDGER_POSTGRES_RUN_MIGRATIONS", "false")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Mode != "migrate" {
		t.Fatalf("mode = %q, want migrate", cfg.Mode)
	}
	if cfg.Postgres.Host != "db.internal" {
		t.Fatalf("postgres host = %q, want db.internal", cfg.Postgres.Host)
	}
	if cfg.Engine.MaxRateBP != 5000 {
		t.Fatalf("max_rate_bp = %d, want 5000", cfg.Engine.MaxRateBP)
	}
	if cfg.Engine.CacheTTL.Duration != 90*time.Second {
		t.Fatalf("cache_ttl = %v, want 90s", cfg.Engine.CacheTTL.Duration)
	}
	want := []string{"https://a.example", "https://b.example"}
	if len(cfg.Server.CORSOrigins) != 2 || cfg.Server.CORSOrigins[0] != want[0] || cfg.Server.CORSOrigins[1] != want[1] {
		t.Fatalf("cors_origins = %v, want %v", cfg.Server.CORSOrigins, want)
	}
	if cfg.Postgres.RunMigrations {
		t.Fatal("run_migrations should be overridden to false")
	}
}

func TestEnabledGates(t *testing.T) {
	var pg PostgresConfig
	if pg.Enabled() {
		t.Fatal("empty postgres config reported enabled")
	}
	pg.DSN = "postgres://u:p@h/db"
	if !pg.Enabled() {
		t.Fatal("dsn-configured postgres reported disabled")
	}
	pg = PostgresConfig{Host: "localhost"}
	if !pg.Enabled() {
		t.Fatal("host-configured postgres reported disabled")
	}

	var rd RedisConfig
	if rd.Enabled() {
		t.Fatal("empty redis config reported enabled")
	}
	rd.Addr = "localhost:6379"
	if !rd.Enabled() {
		t.Fatal("addr-configured redis reported disabled")
	}

	var s3 S3Config
	if s3.Enabled() {
		t.Fatal("empty s3 config reported enabled")
	}
	s3.Bucket = "ledger-archive"
	if !s3.Enabled() {
		t.Fatal("bucket-configured s3 reported disabled")
	}
}
