package outbox

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/arenadesk/platform/internal/domain"
	"github.com/arenadesk/platform/internal/repository/memstore"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	topics []string
	keys   []string
	failAt int
}

func (p *recordingPublisher) Publish(_ context.Context, topic string, key, _ []byte) error {
	if p.failAt > 0 && len(p.topics)+1 == p.failAt {
		return errors.New("broker down")
	}
	p.topics = append(p.topics, topic)
	p.keys = append(p.keys, string(key))
	return nil
}

func newPoller(store *memstore.Store, pub Publisher) *Poller {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewPoller(store, store.Repositories().Outbox, pub, logger, time.Second, 10)
}

func TestPollerPublishesInOrder(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	repos := store.Repositories()
	for _, key := range []string{"t1", "t2", "t3"} {
		require.NoError(t, repos.Outbox.Insert(ctx, nil, domain.OutboxDraft{
			EventID:       uuid.New(),
			AggregateType: domain.AggregateTournament,
			EventType:     domain.EventPrizesDistributed,
			PartitionKey:  key,
		}))
	}

	pub := &recordingPublisher{failAt: 3}
	poller := newPoller(store, pub)

	n, err := poller.Poll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"arena.tournament.prizes.distributed", "arena.tournament.prizes.distributed"}, pub.topics)
	assert.Equal(t, []string{"t1", "t2"}, pub.keys)

	pub.failAt = 0
	n, err = poller.Poll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, "t3", pub.keys[2])

	pending, err := repos.Outbox.FetchUnpublished(ctx, nil, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestPollerEmptyOutbox(t *testing.T) {
	store := memstore.New()
	pub := &recordingPublisher{}

	n, err := newPoller(store, pub).Poll(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, pub.topics)
}

func TestPollerRunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan struct{})
	go func() {
		newPoller(memstore.New(), &recordingPublisher{}).Run(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
}
