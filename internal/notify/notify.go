// Package notify delivers best-effort user notifications after a settlement
// has committed. Delivery failures are logged and never reach the caller.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/arenadesk/platform/internal/domain"
	"github.com/arenadesk/platform/internal/guard"
	"github.com/arenadesk/platform/internal/infra"
)

// Notification types.
const (
	TypePrizeWon = "prize_won"
)

// Notifier delivers a single notification.
type Notifier interface {
	Notify(ctx context.Context, n domain.Notification) error
}

// KafkaNotifier publishes notifications to a topic keyed by user.
type KafkaNotifier struct {
	producer *infra.KafkaProducer
	topic    string
}

// NewKafkaNotifier creates a Kafka-backed notifier.
func NewKafkaNotifier(producer *infra.KafkaProducer, topic string) *KafkaNotifier {
	return &KafkaNotifier{producer: producer, topic: topic}
}

func (k *KafkaNotifier) Notify(ctx context.Context, n domain.Notification) error {
	return k.producer.PublishJSON(ctx, k.topic, n.UserID.String(), n)
}

// LogNotifier writes notifications to the log. Used when Kafka is disabled.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a log-only notifier.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (l *LogNotifier) Notify(_ context.Context, n domain.Notification) error {
	l.logger.Info("notification", "user_id", n.UserID, "type", n.Type, "title", n.Title)
	return nil
}

// Dispatcher sends notifications asynchronously behind a circuit breaker.
type Dispatcher struct {
	notifier Notifier
	breaker  *guard.CircuitBreaker
	logger   *slog.Logger
	timeout  time.Duration
	wg       sync.WaitGroup
}

const breakerKey = "notifier"

// NewDispatcher creates a dispatcher. Each notification gets its own timeout.
func NewDispatcher(notifier Notifier, logger *slog.Logger, timeout time.Duration) *Dispatcher {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	breaker := guard.NewCircuitBreaker(5, 30*time.Second)
	breaker.OnStateChange = func(key string, from, to guard.CircuitState) {
		logger.Warn("notifier circuit changed", "circuit", key, "from", from.String(), "to", to.String())
	}
	return &Dispatcher{
		notifier: notifier,
		breaker:  breaker,
		logger:   logger,
		timeout:  timeout,
	}
}

// Dispatch returns immediately; delivery happens in the background and is
// detached from the caller's context.
func (d *Dispatcher) Dispatch(notes ...domain.Notification) {
	if len(notes) == 0 {
		return
	}
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		for _, n := range notes {
			d.deliver(n)
		}
	}()
}

func (d *Dispatcher) deliver(n domain.Notification) {
	err := d.breaker.Do(context.Background(), breakerKey, func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, d.timeout)
		defer cancel()
		return d.notifier.Notify(ctx, n)
	})
	switch {
	case errors.Is(err, guard.ErrCircuitOpen):
		d.logger.Warn("notification dropped", "user_id", n.UserID, "type", n.Type, "reason", err.Error())
	case err != nil:
		d.logger.Error("notification failed", "user_id", n.UserID, "type", n.Type, "error", err)
	}
}

// Wait blocks until every dispatched batch has been attempted.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// PrizeNotifications builds one notification per credited winner.
func PrizeNotifications(t *domain.Tournament, summary *domain.DistributionSummary) []domain.Notification {
	notes := make([]domain.Notification, 0, len(summary.Distributions))
	for _, rec := range summary.Distributions {
		data := map[string]any{
			"tournament_id": t.ID.String(),
			"amount":        rec.PrizeAmount,
			"currency":      t.Currency,
			"prize_type":    rec.PrizeType,
			"kills":         rec.Kills,
		}
		msg := fmt.Sprintf("You won %s in %s.", FormatAmount(rec.PrizeAmount, t.Currency), t.Name)
		if rec.Position != nil {
			data["position"] = *rec.Position
			msg = fmt.Sprintf("You finished #%d in %s and won %s.", *rec.Position, t.Name, FormatAmount(rec.PrizeAmount, t.Currency))
		}
		notes = append(notes, domain.Notification{
			UserID:  rec.UserID,
			Title:   "Tournament prize credited",
			Message: msg,
			Type:    TypePrizeWon,
			Data:    data,
		})
	}
	return notes
}

// FormatAmount renders minor units with their currency, e.g. 810 USD → "8.10 USD".
func FormatAmount(minor int64, currency string) string {
	return domain.DisplayAmount(minor) + " " + currency
}
