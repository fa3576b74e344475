package ledger

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/arenadesk/platform/internal/domain"
	"github.com/arenadesk/platform/internal/repository"
)

const defaultPrizeDescription = "Tournament prize"

// ExecuteCreditWallet credits a positive amount to a user's wallet inside the
// caller's transaction. The wallet currency must match the credit currency.
// Deduplication is the caller's job; the reference unique index only backstops it.
func (e *Engine) ExecuteCreditWallet(ctx context.Context, tx repository.DBTX, params domain.CreditWalletParams) (*domain.CommandResult, error) {
	if err := domain.ValidatePositiveAmount(params.Amount); err != nil {
		return nil, domain.ErrInvalidAmount(err.Error())
	}
	if err := domain.ValidateCurrency(params.Currency); err != nil {
		return nil, domain.ErrValidation(err.Error())
	}
	meta, err := prizeMetadata(params.Metadata)
	if err != nil {
		return nil, domain.ErrValidation(err.Error())
	}

	user, err := e.lockWallet(ctx, tx, params.UserID)
	if err != nil {
		return nil, err
	}
	if user.Currency != params.Currency {
		return nil, domain.ErrCurrencyMismatch(user.Currency, params.Currency)
	}

	desc := params.Description
	if desc == "" {
		desc = defaultPrizeDescription
	}

	res, err := e.post(ctx, tx, domain.PostLedgerEntryParams{
		UserID:        params.UserID,
		Type:          domain.TxTournamentPrize,
		Amount:        params.Amount,
		Currency:      params.Currency,
		Description:   desc,
		ReferenceType: optional(params.ReferenceType),
		ReferenceID:   optional(params.ReferenceID),
		Metadata:      meta,
	})
	if err != nil {
		return nil, fmt.Errorf("credit wallet %s: %w", params.UserID, err)
	}
	return res, nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// prizeMetadata stamps the entry source onto the caller's metadata object.
// The caller cannot override source.
func prizeMetadata(base json.RawMessage) (json.RawMessage, error) {
	fields := map[string]any{}
	if len(base) > 0 && string(base) != "null" {
		if err := json.Unmarshal(base, &fields); err != nil {
			return nil, fmt.Errorf("metadata must be a JSON object: %w", err)
		}
	}
	fields["source"] = string(domain.TxTournamentPrize)
	return json.Marshal(fields)
}
