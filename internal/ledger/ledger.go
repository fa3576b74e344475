// Package ledger owns every write to a wallet balance. A balance only moves
// together with an append-only transaction row and a transaction.posted
// outbox event, all inside the caller's database transaction.
package ledger

import (
	"context"
	"fmt"

	"github.com/arenadesk/platform/internal/domain"
	"github.com/arenadesk/platform/internal/repository"
	"github.com/google/uuid"
)

// Engine posts ledger entries against user wallets.
type Engine struct {
	users        repository.UserRepository
	transactions repository.TransactionRepository
	outbox       repository.OutboxRepository
}

// NewEngine creates a ledger engine with the given repositories.
func NewEngine(
	users repository.UserRepository,
	transactions repository.TransactionRepository,
	outbox repository.OutboxRepository,
) *Engine {
	return &Engine{users: users, transactions: transactions, outbox: outbox}
}

// lockWallet row-locks the user so concurrent credits to the same wallet
// serialize on the database.
func (e *Engine) lockWallet(ctx context.Context, tx repository.DBTX, userID uuid.UUID) (*domain.User, error) {
	user, err := e.users.LockForUpdate(ctx, tx, userID)
	switch {
	case err != nil:
		return nil, fmt.Errorf("lock wallet %s: %w", userID, err)
	case user == nil:
		return nil, domain.ErrUserNotFound(userID.String())
	}
	return user, nil
}

// post applies params.Amount to the balance, records the entry with its
// balance snapshot and queues the posted event.
func (e *Engine) post(ctx context.Context, tx repository.DBTX, params domain.PostLedgerEntryParams) (*domain.CommandResult, error) {
	user, err := e.users.AddBalance(ctx, tx, params.UserID, params.Amount)
	if err != nil {
		return nil, fmt.Errorf("add balance: %w", err)
	}

	entry, err := e.transactions.Insert(ctx, tx, params, user.Balance)
	if err != nil {
		return nil, fmt.Errorf("append %s entry: %w", params.Type, err)
	}

	posted := domain.NewTransactionPostedEvent(entry)
	if err := e.outbox.Insert(ctx, tx, posted); err != nil {
		return nil, err
	}

	return &domain.CommandResult{
		Transaction: entry,
		User:        user,
		Events:      []domain.OutboxDraft{posted},
	}, nil
}
