package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/arenadesk/platform/internal/infra"
	"github.com/arenadesk/platform/internal/outbox"
	"github.com/arenadesk/platform/internal/repository"
)

func main() {
	if err := run(); err != nil {
		slog.Error("outbox relay failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := infra.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := infra.NewLogger(os.Stdout, cfg, "arena-outbox-relay")
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.StoreDriver != infra.StoreDriverPostgres {
		return fmt.Errorf("outbox relay needs STORE_DRIVER=%s, got %q", infra.StoreDriverPostgres, cfg.StoreDriver)
	}

	pool, err := infra.NewPostgresPool(ctx, cfg, "arena-outbox-relay", logger)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pool.Close()
	logger.Info("outbox relay connected to postgres")

	var publisher outbox.Publisher = logPublisher{logger: logger}
	producer := infra.NewKafkaProducer(cfg.KafkaBrokers, cfg.KafkaEnabled, logger)
	defer producer.Close()
	if producer.Enabled() {
		publisher = producer
	}

	poller := outbox.NewPoller(
		repository.NewPgTransactor(pool),
		repository.NewOutboxRepository(),
		publisher,
		logger,
		cfg.OutboxPollInterval,
		cfg.OutboxBatchSize,
	)
	logger.Info("outbox relay starting",
		"poll_interval", cfg.OutboxPollInterval,
		"batch_size", cfg.OutboxBatchSize,
		"kafka", producer.Enabled(),
	)
	poller.Run(ctx)

	logger.Info("outbox relay stopped")
	return nil
}

// logPublisher writes events to the log when Kafka is disabled.
type logPublisher struct {
	logger *slog.Logger
}

func (p logPublisher) Publish(_ context.Context, topic string, key, value []byte) error {
	p.logger.Info("outbox event", "topic", topic, "key", string(key), "bytes", len(value))
	return nil
}
