// Command api serves the prize settlement HTTP API and runs scheduled
// ledger reconciliation.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/arenadesk/platform/internal/app"
	"github.com/arenadesk/platform/internal/auth"
	"github.com/arenadesk/platform/internal/infra"
	"golang.org/x/sync/errgroup"
)

const serviceName = "arena-api"

func main() {
	if err := run(); err != nil {
		slog.Error("api exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := infra.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger := infra.NewLogger(os.Stdout, cfg, serviceName)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(ctx, cfg, logger, serviceName)
	if err != nil {
		return err
	}
	defer a.Close()

	jwtMgr := auth.NewJWTManager(cfg.JWTSecret, cfg.JWTPlayerExpiry, cfg.JWTAdminExpiry)
	srv := &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.APIPort),
		Handler:           a.Router(jwtMgr),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      cfg.SettlementTxTimeout + 15*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	if cfg.ReconcileEnabled {
		sched, err := a.StartReconciler(gctx, cfg.ReconcileInterval)
		if err != nil {
			return err
		}
		g.Go(func() error {
			<-gctx.Done()
			return sched.Shutdown()
		})
	}

	g.Go(func() error {
		logger.Info("listening", "addr", srv.Addr, "store", cfg.StoreDriver, "kafka", cfg.KafkaEnabled)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("draining in-flight requests")
		// Let a running settlement commit even though the client may be gone.
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), cfg.SettlementTxTimeout+10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("stopped")
	return nil
}
