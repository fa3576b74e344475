// Package memstore is an in-memory document store implementing every
// repository interface. Transactions are serialized and rolled back by
// restoring a snapshot, which gives the same all-or-nothing behaviour as the
// Postgres backend. Reads outside a transaction may observe uncommitted writes.
package memstore

import (
	"context"
	"sync"
	"time"

	"github.com/arenadesk/platform/internal/domain"
	"github.com/arenadesk/platform/internal/repository"
	"github.com/google/uuid"
)

// Store holds all collections.
type Store struct {
	txMu sync.Mutex
	mu   sync.RWMutex
	data *state
	now  func() time.Time
}

type state struct {
	users         map[uuid.UUID]domain.User
	transactions  []domain.Transaction
	outbox        []domain.OutboxDraft
	outboxSeq     int64
	published     map[int64]bool
	tournaments   map[uuid.UUID]domain.Tournament
	registrations []domain.Registration
	results       []domain.Result
	distributions []domain.DistributionRecord
}

// New returns an empty store.
func New() *Store {
	return &Store{
		data: &state{
			users:       make(map[uuid.UUID]domain.User),
			published:   make(map[int64]bool),
			tournaments: make(map[uuid.UUID]domain.Tournament),
		},
		now: time.Now,
	}
}

// Repositories returns the repository set backed by this store.
func (s *Store) Repositories() repository.Repositories {
	return repository.Repositories{
		Users:         &userRepo{s},
		Transactions:  &transactionRepo{s},
		Outbox:        &outboxRepo{s},
		Tournaments:   &tournamentRepo{s},
		Registrations: &registrationRepo{s},
		Results:       &resultRepo{s},
		Distributions: &distributionRepo{s},
	}
}

// WithinTx runs fn with exclusive access to the store. A non-nil error
// restores the state captured before fn ran.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx repository.DBTX) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.RLock()
	snapshot := s.data.clone()
	s.mu.RUnlock()

	if err := fn(ctx, nil); err != nil {
		s.mu.Lock()
		s.data = snapshot
		s.mu.Unlock()
		return err
	}
	return nil
}

// Ping always succeeds.
func (s *Store) Ping(context.Context) error { return nil }

// DB returns the handle passed to repositories outside a transaction.
func (s *Store) DB() repository.DBTX { return nil }

func (st *state) clone() *state {
	c := &state{
		users:         make(map[uuid.UUID]domain.User, len(st.users)),
		transactions:  append([]domain.Transaction(nil), st.transactions...),
		outbox:        append([]domain.OutboxDraft(nil), st.outbox...),
		outboxSeq:     st.outboxSeq,
		published:     make(map[int64]bool, len(st.published)),
		tournaments:   make(map[uuid.UUID]domain.Tournament, len(st.tournaments)),
		registrations: append([]domain.Registration(nil), st.registrations...),
		results:       append([]domain.Result(nil), st.results...),
		distributions: append([]domain.DistributionRecord(nil), st.distributions...),
	}
	for k, v := range st.users {
		c.users[k] = v
	}
	for k, v := range st.published {
		c.published[k] = v
	}
	for k, v := range st.tournaments {
		c.tournaments[k] = v
	}
	return c
}

func (s *Store) read(fn func(st *state)) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fn(s.data)
}

func (s *Store) write(fn func(st *state) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.data)
}
