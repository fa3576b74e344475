package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// TransactionType enumerates wallet transaction types.
type TransactionType string

const (
	TxTournamentPrize TransactionType = "tournament_prize"
	TxAdjustment      TransactionType = "adjustment"
)

// ReferenceTournamentResult marks a transaction that paid a tournament result.
const ReferenceTournamentResult = "tournament_result"

// Transaction represents a wallet_transactions row (append-only ledger entry).
type Transaction struct {
	ID            uuid.UUID       `json:"id"`
	UserID        uuid.UUID       `json:"user_id"`
	Type          TransactionType `json:"type"`
	Amount        int64           `json:"amount"`
	BalanceAfter  int64           `json:"balance_after"`
	Currency      string          `json:"currency"`
	Description   string          `json:"description"`
	ReferenceType *string         `json:"reference_type,omitempty"`
	ReferenceID   *string         `json:"reference_id,omitempty"`
	Metadata      json.RawMessage `json:"metadata"`
	CreatedAt     time.Time       `json:"created_at"`
}
