package repository

import (
	"context"
	"time"

	"github.com/arenadesk/platform/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX abstracts pgx.Tx and pgxpool.Pool so repositories work with both.
// The in-memory store ignores it.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// Transactor runs fn inside a single store transaction. fn's error rolls
// everything back; a nil return commits.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx DBTX) error) error
	Ping(ctx context.Context) error
}

// UserRepository provides access to users and their wallet balance.
type UserRepository interface {
	// FindByID returns a user by ID, or nil if absent.
	FindByID(ctx context.Context, db DBTX, id uuid.UUID) (*domain.User, error)

	// LockForUpdate acquires a row-level lock (SELECT FOR UPDATE) and returns the user, or nil.
	LockForUpdate(ctx context.Context, db DBTX, id uuid.UUID) (*domain.User, error)

	// Create inserts a new user.
	Create(ctx context.Context, db DBTX, user *domain.User) error

	// AddBalance applies delta with server-side arithmetic and returns the updated row.
	AddBalance(ctx context.Context, db DBTX, id uuid.UUID, delta int64) (*domain.User, error)

	// List pages through users ordered by ID.
	List(ctx context.Context, db DBTX, after *uuid.UUID, limit int) ([]domain.User, error)
}

// TransactionRepository provides access to wallet_transactions.
type TransactionRepository interface {
	// Insert creates a new ledger entry with the post-update balance snapshot.
	Insert(ctx context.Context, db DBTX, params domain.PostLedgerEntryParams, balanceAfter int64) (*domain.Transaction, error)

	// FindByID returns a transaction by ID.
	FindByID(ctx context.Context, db DBTX, id uuid.UUID) (*domain.Transaction, error)

	// ListByUser returns transactions for a user, newest first, with cursor pagination.
	ListByUser(ctx context.Context, db DBTX, userID uuid.UUID, cursor *string, limit int) ([]domain.Transaction, error)

	// SumByUser returns the sum of all transaction amounts of a user.
	SumByUser(ctx context.Context, db DBTX, userID uuid.UUID) (int64, error)
}

// OutboxRepository provides access to the event_outbox table.
type OutboxRepository interface {
	// Insert writes an outbox event (within the same transaction as the state change).
	Insert(ctx context.Context, db DBTX, draft domain.OutboxDraft) error

	// FetchUnpublished returns unpublished events in insertion order.
	FetchUnpublished(ctx context.Context, db DBTX, limit int) ([]domain.OutboxDraft, error)

	// MarkPublished stamps events as published.
	MarkPublished(ctx context.Context, db DBTX, seqIDs []int64) error
}

// TournamentRepository provides access to tournaments.
type TournamentRepository interface {
	FindByID(ctx context.Context, db DBTX, id uuid.UUID) (*domain.Tournament, error)

	// LockForUpdate locks the tournament row for the rest of the transaction.
	LockForUpdate(ctx context.Context, db DBTX, id uuid.UUID) (*domain.Tournament, error)

	Create(ctx context.Context, db DBTX, t *domain.Tournament) error

	// UpdatePrizeRule replaces the stored prize distribution rule.
	UpdatePrizeRule(ctx context.Context, db DBTX, id uuid.UUID, rule *domain.PrizeDistributionRule) error

	// MarkDistributed flips prizes_distributed from false to true. It reports
	// false when the flag was already set.
	MarkDistributed(ctx context.Context, db DBTX, id uuid.UUID, total int64, at time.Time) (bool, error)

	// ListDistributed returns settled tournaments, most recent first. A
	// non-nil after resumes the listing past that tournament.
	ListDistributed(ctx context.Context, db DBTX, after *uuid.UUID, limit int) ([]domain.Tournament, error)
}

// RegistrationRepository provides access to registrations.
type RegistrationRepository interface {
	Create(ctx context.Context, db DBTX, reg *domain.Registration) error
	ListByTournament(ctx context.Context, db DBTX, tournamentID uuid.UUID) ([]domain.Registration, error)
}

// ResultRepository provides access to results.
type ResultRepository interface {
	Create(ctx context.Context, db DBTX, result *domain.Result) error
	ListByTournament(ctx context.Context, db DBTX, tournamentID uuid.UUID) ([]domain.Result, error)

	// ApplyRewards writes reward and reward_status for every entry as one batch.
	ApplyRewards(ctx context.Context, db DBTX, rewards []domain.ResultReward) error
}

// DistributionRepository provides access to prize_distributions.
type DistributionRepository interface {
	// InsertBatch appends records as one batch.
	InsertBatch(ctx context.Context, db DBTX, records []domain.DistributionRecord) error
	ListByTournament(ctx context.Context, db DBTX, tournamentID uuid.UUID) ([]domain.DistributionRecord, error)
	SumByTournament(ctx context.Context, db DBTX, tournamentID uuid.UUID) (int64, error)
}

// Repositories bundles every repository of one backend.
type Repositories struct {
	Users         UserRepository
	Transactions  TransactionRepository
	Outbox        OutboxRepository
	Tournaments   TournamentRepository
	Registrations RegistrationRepository
	Results       ResultRepository
	Distributions DistributionRepository
}

// NewPostgresRepositories returns the pgx-backed repositories.
func NewPostgresRepositories() Repositories {
	return Repositories{
		Users:         NewUserRepository(),
		Transactions:  NewTransactionRepository(),
		Outbox:        NewOutboxRepository(),
		Tournaments:   NewTournamentRepository(),
		Registrations: NewRegistrationRepository(),
		Results:       NewResultRepository(),
		Distributions: NewDistributionRepository(),
	}
}
