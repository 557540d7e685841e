// Package config defines the top-level configuration for wagerd and provides
// validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by WAGERD_* environment variables.
type Config struct {
	Ledger   LedgerConfig   `toml:"ledger"`
	Treasury TreasuryConfig `toml:"treasury"`
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Engine   EngineConfig   `toml:"engine"`
	Server   ServerConfig   `toml:"server"`
	Notify   NotifyConfig   `toml:"notify"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// LedgerConfig holds ledger node connection parameters.
type LedgerConfig struct {
	RPCURL string `toml:"rpc_url"`
	// Commitment is the confirmation level required before a transfer is
	// considered final.
	Commitment     string   `toml:"commitment"`
	ConfirmTimeout duration `toml:"confirm_timeout"`
	RequestTimeout duration `toml:"request_timeout"`
}

// TreasuryConfig holds the pooled treasury account credentials. Exactly one
// key source must be configured.
type TreasuryConfig struct {
	// PrivateKey is the base58-encoded treasury signing key. Prefer
	// EncryptedKeyPath outside development.
	PrivateKey       string `toml:"private_key"`
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters for settlement
// report archiving. Leave the bucket empty to disable archiving.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// EngineConfig holds wagering engine parameters.
type EngineConfig struct {
	// MinStake is the minimum bet amount in ledger units.
	MinStake float64 `toml:"min_stake"`

	// KeyEncryptionSecret derives the AES key protecting custodial user
	// keys at rest.
	KeyEncryptionSecret string `toml:"key_encryption_secret"`

	// LockTTL bounds how long a market or treasury lock may be held before
	// it expires on its own.
	LockTTL duration `toml:"lock_ttl"`

	// LockWait bounds how long an operation waits to acquire a contended
	// lock before giving up.
	LockWait duration `toml:"lock_wait"`

	// PlaceRateLimit / PlaceRateWindow bound bet placements per user.
	PlaceRateLimit  int      `toml:"place_rate_limit"`
	PlaceRateWindow duration `toml:"place_rate_window"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`

	// AdminAPIKey protects the privileged endpoints (market creation,
	// resolution, treasury status). Empty disables them.
	AdminAPIKey string `toml:"admin_api_key"`

	// RateLimit / RateWindow throttle HTTP requests per client IP. A zero
	// limit disables HTTP-level throttling.
	RateLimit  int      `toml:"rate_limit"`
	RateWindow duration `toml:"rate_window"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
func Defaults() Config {
	return Config{
		Ledger: LedgerConfig{
			RPCURL:         "https://api.devnet.solana.com",
			Commitment:     "confirmed",
			ConfirmTimeout: duration{30 * time.Second},
			RequestTimeout: duration{10 * time.Second},
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "wagerd",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
		},
		S3: S3Config{
			Region:         "us-east-1",
			UseSSL:         true,
			ForcePathStyle: true,
		},
		Engine: EngineConfig{
			MinStake:        0.001,
			LockTTL:         duration{15 * time.Second},
			LockWait:        duration{5 * time.Second},
			PlaceRateLimit:  10,
			PlaceRateWindow: duration{time.Second},
		},
		Server: ServerConfig{
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000"},
			RateLimit:   100,
			RateWindow:  duration{time.Second},
		},
		Notify: NotifyConfig{
			Events: []string{"market_resolved", "reconcile_required", "error"},
		},
		Mode:     "serve",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"serve": true,
	"seed":  true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns
// a combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: serve, seed)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Ledger
	if c.Ledger.RPCURL == "" {
		errs = append(errs, "ledger: rpc_url must not be empty")
	}
	switch c.Ledger.Commitment {
	case "processed", "confirmed", "finalized":
	default:
		errs = append(errs, fmt.Sprintf("ledger: unknown commitment %q (valid: processed, confirmed, finalized)", c.Ledger.Commitment))
	}

	// Treasury -- one key source must be configured in serve mode.
	if strings.ToLower(c.Mode) == "serve" {
		if c.Treasury.PrivateKey == "" && c.Treasury.EncryptedKeyPath == "" {
			errs = append(errs, "treasury: either private_key or encrypted_key_path must be set")
		}
		if c.Treasury.EncryptedKeyPath != "" && c.Treasury.KeyPassword == "" {
			errs = append(errs, "treasury: key_password is required when encrypted_key_path is set")
		}
		if c.Engine.KeyEncryptionSecret == "" {
			errs = append(errs, "engine: key_encryption_secret must be set")
		}
	}

	// Postgres
	if strings.TrimSpace(c.Postgres.DSN) == "" {
		if c.Postgres.Host == "" {
			errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
		}
		if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
			errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
		}
		if c.Postgres.Database == "" {
			errs = append(errs, "postgres: database must not be empty")
		}
	}
	if c.Postgres.PoolMaxConns < 1 {
		errs = append(errs, "postgres: pool_max_conns must be >= 1")
	}
	if c.Postgres.PoolMinConns < 0 || c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
		errs = append(errs, "postgres: pool_min_conns must be between 0 and pool_max_conns")
	}

	// Redis
	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	// S3 -- optional, but when a bucket is set the region must be too.
	if c.S3.Bucket != "" && c.S3.Region == "" {
		errs = append(errs, "s3: region must not be empty when a bucket is configured")
	}

	// Engine
	if c.Engine.MinStake <= 0 {
		errs = append(errs, "engine: min_stake must be > 0")
	}
	if c.Engine.LockTTL.Duration <= 0 {
		errs = append(errs, "engine: lock_ttl must be > 0")
	}
	if c.Engine.LockWait.Duration <= 0 {
		errs = append(errs, "engine: lock_wait must be > 0")
	}
	if c.Engine.PlaceRateLimit < 1 {
		errs = append(errs, "engine: place_rate_limit must be >= 1")
	}

	// Server
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
