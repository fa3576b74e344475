//go:build integration

package testutil

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http/httptest"
	"net/url"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/arenadesk/platform/internal/app"
	"github.com/arenadesk/platform/internal/auth"
	"github.com/arenadesk/platform/internal/infra"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	TestJWTSecret = "integration-test-secret-0123456789"
	TestDBUser    = "arena"
	TestDBPass    = "arena"
	TestDBName    = "arena_test"
	postgresImage = "postgres:16-alpine"
)

// TestEnv holds all resources for an integration test.
type TestEnv struct {
	App    *app.App
	Server *httptest.Server
	Pool   *pgxpool.Pool
	JWTMgr *auth.JWTManager
	t      *testing.T
}

var (
	container  *postgres.PostgresContainer
	sharedDSN  string
	sharedPool *pgxpool.Pool
	setupOnce  sync.Once
	setupErr   error
)

// Main runs the package tests and terminates the Postgres container
// afterwards. Call it from TestMain.
func Main(m *testing.M) int {
	code := m.Run()
	if sharedPool != nil {
		sharedPool.Close()
	}
	if container != nil {
		_ = container.Terminate(context.Background())
	}
	return code
}

func startPostgres(ctx context.Context) (*postgres.PostgresContainer, string, error) {
	c, err := postgres.Run(ctx,
		postgresImage,
		postgres.WithDatabase(TestDBName),
		postgres.WithUsername(TestDBUser),
		postgres.WithPassword(TestDBPass),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		if c != nil {
			_ = c.Terminate(ctx)
		}
		return nil, "", fmt.Errorf("start postgres container: %w", err)
	}

	connStr, err := c.ConnectionString(ctx)
	if err != nil {
		_ = c.Terminate(ctx)
		return nil, "", fmt.Errorf("postgres connection string: %w", err)
	}

	parsed, err := url.Parse(connStr)
	if err != nil {
		_ = c.Terminate(ctx)
		return nil, "", fmt.Errorf("parse connection string: %w", err)
	}
	query := parsed.Query()
	query.Set("sslmode", "disable")
	parsed.RawQuery = query.Encode()

	return c, parsed.String(), nil
}

func setup(t *testing.T) {
	t.Helper()
	setupOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()

		container, sharedDSN, setupErr = startPostgres(ctx)
		if setupErr != nil {
			return
		}

		logger := slog.New(slog.NewTextHandler(io.Discard, nil))
		if setupErr = infra.RunMigrations(sharedDSN, "", logger); setupErr != nil {
			setupErr = fmt.Errorf("run migrations: %w", setupErr)
			return
		}

		poolCfg, err := pgxpool.ParseConfig(sharedDSN)
		if err != nil {
			setupErr = fmt.Errorf("parse pool config: %w", err)
			return
		}
		poolCfg.MaxConns = 10
		poolCfg.MinConns = 1

		sharedPool, setupErr = pgxpool.NewWithConfig(ctx, poolCfg)
	})

	if setupErr != nil {
		t.Fatalf("failed to initialize integration database: %v", setupErr)
	}
}

// Config returns the application config pointing at the test database.
func Config() *infra.Config {
	return &infra.Config{
		DatabaseURL:         sharedDSN,
		StoreDriver:         infra.StoreDriverPostgres,
		PGMaxConns:          16,
		PGMinConns:          1,
		PGLockTimeout:       5 * time.Second,
		SettlementBatchSize: 50,
		SettlementTxTimeout: 30 * time.Second,
		SettlementLockTTL:   time.Minute,
		AdminRateLimitRPS:   1000,
		AdminRateLimitBurst: 1000,
		CORSAllowedOrigins:  "*",
		NotificationTopic:   "user-notifications",
	}
}

// NewTestEnv creates a test environment with an httptest.Server backed by
// the real router, the Postgres store and a clean database.
func NewTestEnv(t *testing.T) *TestEnv {
	t.Helper()
	setup(t)

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	a, err := app.Build(context.Background(), Config(), logger, "arena-integration")
	if err != nil {
		t.Fatalf("build app: %v", err)
	}

	jwtMgr := auth.NewJWTManager(TestJWTSecret, time.Hour, time.Hour)
	server := httptest.NewServer(a.Router(jwtMgr))

	env := &TestEnv{
		App:    a,
		Server: server,
		Pool:   sharedPool,
		JWTMgr: jwtMgr,
		t:      t,
	}

	t.Cleanup(func() {
		server.Close()
		a.Close()
		env.CleanAll()
	})

	env.CleanAll()

	return env
}
