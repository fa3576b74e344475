package domain

import (
	"encoding/json"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DisplayAmount renders minor units with two decimals, e.g. 810 → "8.10".
func DisplayAmount(minor int64) string {
	return decimal.New(minor, -2).StringFixed(2)
}

// PostLedgerEntryParams is the input to the atomic PostLedgerEntry operation.
type PostLedgerEntryParams struct {
	UserID        uuid.UUID
	Type          TransactionType
	Amount        int64
	Currency      string
	Description   string
	ReferenceType *string
	ReferenceID   *string
	Metadata      json.RawMessage
}

// CommandResult is the return value of wallet commands.
type CommandResult struct {
	Transaction *Transaction
	User        *User
	Events      []OutboxDraft
}

// CreditWalletParams holds the input for ExecuteCreditWallet.
type CreditWalletParams struct {
	UserID        uuid.UUID
	Amount        int64
	Currency      string
	Description   string
	ReferenceType string
	ReferenceID   string
	Metadata      json.RawMessage
}
