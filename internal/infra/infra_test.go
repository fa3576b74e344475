package infra

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/arenadesk/platform/internal/domain"
	"github.com/jackc/pgx/v5/tracelog"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestLoadConfigDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, StoreDriverPostgres, cfg.StoreDriver)
	assert.Equal(t, 200, cfg.SettlementBatchSize)
	assert.Equal(t, 60*time.Second, cfg.SettlementTxTimeout)
	assert.Equal(t, 2*time.Minute, cfg.SettlementLockTTL)
	assert.Equal(t, 15*time.Minute, cfg.ReconcileInterval)
	assert.Equal(t, int32(20), cfg.PGMaxConns)
	assert.Equal(t, 10*time.Second, cfg.PGLockTimeout)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoadConfigDotEnv(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("SETTLEMENT_BATCH_SIZE=25\nSTORE_DRIVER=memory\n"), 0o600))
	t.Chdir(dir)
	t.Setenv("STORE_DRIVER", "postgres")
	t.Setenv("SETTLEMENT_BATCH_SIZE", "")
	require.NoError(t, os.Unsetenv("SETTLEMENT_BATCH_SIZE"))

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, 25, cfg.SettlementBatchSize)
	assert.Equal(t, StoreDriverPostgres, cfg.StoreDriver, "process environment wins over .env")
}

func TestConfigValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			StoreDriver:         StoreDriverMemory,
			SettlementBatchSize: 200,
			SettlementTxTimeout: time.Minute,
			SettlementLockTTL:   2 * time.Minute,
			JWTSecret:           "0123456789abcdef0123456789abcdef",
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"unknown driver", func(c *Config) { c.StoreDriver = "mongo" }, "STORE_DRIVER"},
		{"bad log level", func(c *Config) { c.LogLevel = "chatty" }, "LOG_LEVEL"},
		{"zero batch", func(c *Config) { c.SettlementBatchSize = 0 }, "SETTLEMENT_BATCH_SIZE"},
		{"lease shorter than tx", func(c *Config) { c.SettlementLockTTL = time.Second }, "SETTLEMENT_LOCK_TTL"},
		{"default secret", func(c *Config) { c.JWTSecret = "change-me-in-production" }, "insecure default"},
		{"short secret", func(c *Config) { c.JWTSecret = "short" }, "too short"},
		{"insecure allowed", func(c *Config) { c.JWTSecret = "short"; c.AllowInsecureDefaults = true }, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			err := c.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, &Config{LogLevel: "warn"}, "arena-api")
	logger.Info("dropped")
	logger.Warn("settlement slow", "tournament_id", "t-1")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "WARN", line["level"])
	assert.Equal(t, "arena-api", line["service"])
	assert.Equal(t, "t-1", line["tournament_id"])

	buf.Reset()
	NewLogger(&buf, &Config{LogFormat: "TEXT"}, "settlectl").Info("hello")
	assert.Contains(t, buf.String(), "service=settlectl")

	level, err := ParseLogLevel(" debug ")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, level)
}

func TestPgxTraceLogging(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	log := pgxLogFunc(logger)

	log(context.Background(), tracelog.LogLevelInfo, "Query", map[string]any{
		"sql":  "SELECT 1",
		"args": []any{"secret"},
	})

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "INFO", line["level"])
	assert.Equal(t, "pgx", line["component"])
	assert.Equal(t, "SELECT 1", line["sql"])
	assert.NotContains(t, buf.String(), "secret")

	assert.Equal(t, slog.LevelError, pgxToSlog(tracelog.LogLevelError))
	assert.Equal(t, slog.LevelDebug, pgxToSlog(tracelog.LogLevelTrace))
}

func TestDSN(t *testing.T) {
	c := &Config{PGUser: "u", PGPassword: "p", PGHost: "h", PGPort: 1, PGDatabase: "d"}
	assert.Equal(t, "postgres://u:p@h:1/d?sslmode=disable", c.DSN())
	c.DatabaseURL = "postgres://override"
	assert.Equal(t, "postgres://override", c.DSN())
}

func TestSettlementMetrics(t *testing.T) {
	reg := NewMetricsRegistry()
	m := NewSettlementMetrics(reg)

	m.ObserveSettlement(OutcomeSettled, 20*time.Millisecond)
	m.ObserveSettlement(OutcomeRejected, 0)
	m.AddCredited(3, 990)
	m.AddSkipped(domain.SkipUserNotFound)
	m.SetReconcileFailures(2)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.settlements.WithLabelValues(OutcomeSettled)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.settlements.WithLabelValues(OutcomeRejected)))
	assert.Equal(t, 990.0, testutil.ToFloat64(m.credited))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.winners))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.reconcileFailures))

	rec := httptest.NewRecorder()
	MetricsHandler(reg).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.Contains(t, rec.Body.String(), "arena_prize_skipped_total")

	var nilMetrics *SettlementMetrics
	assert.NotPanics(t, func() { nilMetrics.ObserveSettlement(OutcomeFailed, time.Second) })
}

func TestFindMigrationDir(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "db", "migrations"), 0o755))
	nested := filepath.Join(root, "internal", "x")
	require.NoError(t, os.MkdirAll(nested, 0o755))
	t.Chdir(nested)

	got, err := filepath.EvalSymlinks(FindMigrationDir())
	require.NoError(t, err)
	want, err := filepath.EvalSymlinks(filepath.Join(root, "db", "migrations"))
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestKafkaDisabled(t *testing.T) {
	p := NewKafkaProducer(" , ", true, discardLogger())
	assert.False(t, p.Enabled())
	assert.NoError(t, p.PublishJSON(context.Background(), "arena.test", "k", map[string]int{"n": 1}))
	assert.NoError(t, p.Close())

	c := NewKafkaConsumer("localhost:9092", "arena.test", "g", false, discardLogger())
	assert.ErrorIs(t, c.Consume(context.Background(), nil), ErrKafkaDisabled)
	assert.NoError(t, c.Close())

	assert.Equal(t, []string{"a:9092", "b:9092"}, brokerList(" a:9092,,b:9092 "))
}
