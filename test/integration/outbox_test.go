//go:build integration

package integration

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/arenadesk/platform/internal/auth"
	"github.com/arenadesk/platform/internal/domain"
	"github.com/arenadesk/platform/internal/outbox"
	"github.com/arenadesk/platform/internal/repository"
	"github.com/arenadesk/platform/test/integration/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	mu     sync.Mutex
	topics []string
	failAt int
}

func (p *recordingPublisher) Publish(_ context.Context, topic string, _, _ []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failAt > 0 && len(p.topics)+1 == p.failAt {
		return errors.New("broker unavailable")
	}
	p.topics = append(p.topics, topic)
	return nil
}

func TestOutboxRelay_PublishesSettlementEventsInOrder(t *testing.T) {
	env := testutil.NewTestEnv(t)

	tr := env.CreateTournament(domain.TournamentCompleted, 100, 8)
	env.AddPlayer(tr, 1, 2, "USD")
	env.AddPlayer(tr, 2, 1, "USD")

	resp := env.Do(http.MethodPost, distributePath(tr.ID), env.AdminToken(auth.RoleAdmin), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	newPoller := func(pub outbox.Publisher) *outbox.Poller {
		return outbox.NewPoller(
			repository.NewPgTransactor(env.Pool),
			repository.NewOutboxRepository(),
			pub, logger, time.Second, 100,
		)
	}

	// A failure on the second event stops the batch after the first.
	flaky := &recordingPublisher{failAt: 2}
	n, err := newPoller(flaky).Poll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"arena." + string(domain.EventTransactionPosted)}, flaky.topics)
	assert.Equal(t, 2, env.Count(`SELECT COUNT(*) FROM event_outbox WHERE "publishedAt" IS NULL`))

	pub := &recordingPublisher{}
	poller := newPoller(pub)
	n, err = poller.Poll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{
		"arena." + string(domain.EventTransactionPosted),
		"arena." + string(domain.EventPrizesDistributed),
	}, pub.topics)
	assert.Equal(t, 0, env.Count(`SELECT COUNT(*) FROM event_outbox WHERE "publishedAt" IS NULL`))

	n, err = poller.Poll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}
