package infra

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Store drivers.
const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"
)

// Config holds all application configuration parsed from environment variables.
type Config struct {
	// Database
	DatabaseURL    string        `env:"DATABASE_URL"`
	PGHost         string        `env:"PGHOST" envDefault:"localhost"`
	PGPort         int           `env:"PGPORT" envDefault:"5435"`
	PGUser         string        `env:"PGUSER" envDefault:"arena"`
	PGPassword     string        `env:"PGPASSWORD" envDefault:"arena"`
	PGDatabase     string        `env:"PGDATABASE" envDefault:"arena"`
	PGMaxConns     int32         `env:"PG_MAX_CONNS" envDefault:"20"`
	PGMinConns     int32         `env:"PG_MIN_CONNS" envDefault:"2"`
	PGLockTimeout  time.Duration `env:"PG_LOCK_TIMEOUT" envDefault:"10s"`
	StoreDriver    string        `env:"STORE_DRIVER" envDefault:"postgres"`
	MigrateOnStart bool          `env:"MIGRATE_ON_START" envDefault:"false"`

	// Redis
	RedisURL     string `env:"REDIS_URL" envDefault:"redis://localhost:6380"`
	RedisEnabled bool   `env:"REDIS_ENABLED" envDefault:"false"`

	// JWT
	JWTSecret       string        `env:"JWT_SECRET" envDefault:"change-me-in-production"`
	JWTPlayerExpiry time.Duration `env:"JWT_PLAYER_EXPIRY" envDefault:"24h"`
	JWTAdminExpiry  time.Duration `env:"JWT_ADMIN_EXPIRY" envDefault:"8h"`

	// Server
	APIPort int `env:"API_PORT" envDefault:"3100"`

	// Kafka
	KafkaBrokers      string `env:"KAFKA_BROKERS" envDefault:"localhost:9092"`
	KafkaEnabled      bool   `env:"KAFKA_ENABLED" envDefault:"false"`
	NotificationTopic string `env:"NOTIFICATION_TOPIC" envDefault:"user-notifications"`

	// Settlement
	SettlementBatchSize int           `env:"SETTLEMENT_BATCH_SIZE" envDefault:"200"`
	SettlementTxTimeout time.Duration `env:"SETTLEMENT_TX_TIMEOUT" envDefault:"60s"`
	SettlementLockTTL   time.Duration `env:"SETTLEMENT_LOCK_TTL" envDefault:"2m"`

	// Admin rate limiting
	AdminRateLimitRPS   float64 `env:"ADMIN_RATE_LIMIT_RPS" envDefault:"5"`
	AdminRateLimitBurst int     `env:"ADMIN_RATE_LIMIT_BURST" envDefault:"10"`

	// Reconciliation
	ReconcileEnabled  bool          `env:"RECONCILE_ENABLED" envDefault:"true"`
	ReconcileInterval time.Duration `env:"RECONCILE_INTERVAL" envDefault:"15m"`

	// Audit archive
	AuditBucket   string `env:"AUDIT_BUCKET"`
	AuditRegion   string `env:"AUDIT_REGION" envDefault:"us-east-1"`
	AuditEndpoint string `env:"AUDIT_ENDPOINT"`
	AuditKeyID    string `env:"AUDIT_ACCESS_KEY_ID"`
	AuditSecret   string `env:"AUDIT_SECRET_ACCESS_KEY"`

	// Outbox relay
	OutboxPollInterval time.Duration `env:"OUTBOX_POLL_INTERVAL" envDefault:"1s"`
	OutboxBatchSize    int           `env:"OUTBOX_BATCH_SIZE" envDefault:"100"`

	// CORS
	CORSAllowedOrigins string `env:"CORS_ALLOWED_ORIGINS" envDefault:"*"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	// Dev
	AllowInsecureDefaults bool `env:"ALLOW_INSECURE_DEFAULTS" envDefault:"false"`
}

// LoadConfig loads an optional .env file and parses environment variables
// into a Config struct. Variables already set in the environment win.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// Validate checks for insecure configuration that must not run in production.
// Set ALLOW_INSECURE_DEFAULTS=true to bypass (local dev only).
func (c *Config) Validate() error {
	switch c.StoreDriver {
	case StoreDriverPostgres, StoreDriverMemory:
	default:
		return fmt.Errorf("STORE_DRIVER must be %q or %q, got %q", StoreDriverPostgres, StoreDriverMemory, c.StoreDriver)
	}
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		return err
	}
	if c.StoreDriver == StoreDriverPostgres && (c.PGMaxConns <= 0 || c.PGLockTimeout <= 0) {
		return fmt.Errorf("PG_MAX_CONNS and PG_LOCK_TIMEOUT must be positive")
	}
	if c.SettlementBatchSize <= 0 {
		return fmt.Errorf("SETTLEMENT_BATCH_SIZE must be positive, got %d", c.SettlementBatchSize)
	}
	if c.SettlementTxTimeout <= 0 || c.SettlementLockTTL <= 0 {
		return fmt.Errorf("SETTLEMENT_TX_TIMEOUT and SETTLEMENT_LOCK_TTL must be positive")
	}
	if c.SettlementLockTTL < c.SettlementTxTimeout {
		return fmt.Errorf("SETTLEMENT_LOCK_TTL (%s) must not be shorter than SETTLEMENT_TX_TIMEOUT (%s)", c.SettlementLockTTL, c.SettlementTxTimeout)
	}
	if c.AllowInsecureDefaults {
		return nil
	}
	if c.JWTSecret == "change-me-in-production" {
		return fmt.Errorf("JWT_SECRET is set to the insecure default; set a strong secret or set ALLOW_INSECURE_DEFAULTS=true for local dev")
	}
	if len(c.JWTSecret) < 32 {
		return fmt.Errorf("JWT_SECRET is too short (%d chars); minimum 32 characters required", len(c.JWTSecret))
	}
	return nil
}

// DSN returns the PostgreSQL connection string, preferring DATABASE_URL if set.
func (c *Config) DSN() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.PGUser, c.PGPassword, c.PGHost, c.PGPort, c.PGDatabase)
}
