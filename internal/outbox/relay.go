// Package outbox relays committed event_outbox rows to the message broker.
package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/arenadesk/platform/internal/domain"
	"github.com/arenadesk/platform/internal/repository"
)

// Publisher sends one message to a topic.
type Publisher interface {
	Publish(ctx context.Context, topic string, key, value []byte) error
}

// Poller polls the event_outbox table and publishes events to Kafka.
type Poller struct {
	store       repository.Transactor
	outbox      repository.OutboxRepository
	publisher   Publisher
	logger      *slog.Logger
	topicPrefix string
	interval    time.Duration
	batchSize   int
}

// NewPoller creates an outbox poller.
func NewPoller(store repository.Transactor, outbox repository.OutboxRepository, publisher Publisher, logger *slog.Logger, interval time.Duration, batchSize int) *Poller {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	return &Poller{
		store:       store,
		outbox:      outbox,
		publisher:   publisher,
		logger:      logger,
		topicPrefix: "arena.",
		interval:    interval,
		batchSize:   batchSize,
	}
}

// Run polls until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) {
	p.logger.Info("outbox poller started", "interval", p.interval, "batch_size", p.batchSize)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("outbox poller stopped")
			return
		case <-ticker.C:
			if _, err := p.Poll(ctx); err != nil {
				p.logger.Error("outbox poll error", "error", err)
			}
		}
	}
}

// Topic returns the Kafka topic of an outbox event.
func (p *Poller) Topic(d domain.OutboxDraft) string {
	return p.topicPrefix + string(d.EventType)
}

// Poll publishes one batch in insertion order and returns how many events
// were marked published. It stops at the first publish failure so later
// events never overtake an earlier one.
func (p *Poller) Poll(ctx context.Context) (int, error) {
	var published int
	err := p.store.WithinTx(ctx, func(ctx context.Context, tx repository.DBTX) error {
		events, err := p.outbox.FetchUnpublished(ctx, tx, p.batchSize)
		if err != nil {
			return err
		}

		done := make([]int64, 0, len(events))
		for _, e := range events {
			msg, err := json.Marshal(map[string]interface{}{
				"event_id":       e.EventID,
				"aggregate_type": e.AggregateType,
				"aggregate_id":   e.AggregateID,
				"event_type":     e.EventType,
				"payload":        e.Payload,
				"occurred_at":    e.OccurredAt,
			})
			if err != nil {
				return fmt.Errorf("marshal event %s: %w", e.EventID, err)
			}

			if err := p.publisher.Publish(ctx, p.Topic(e), []byte(e.PartitionKey), msg); err != nil {
				p.logger.Error("kafka publish failed", "event_id", e.EventID, "error", err)
				break
			}
			done = append(done, e.SeqID)
		}

		if err := p.outbox.MarkPublished(ctx, tx, done); err != nil {
			return err
		}
		published = len(done)
		return nil
	})
	if err != nil {
		return 0, err
	}

	if published > 0 {
		p.logger.Debug("outbox poll complete", "published", published)
	}
	return published, nil
}
