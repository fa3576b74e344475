package projection

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/arenadesk/platform/internal/domain"
	"github.com/google/uuid"
)

// BalanceProjection represents a cached wallet balance.
type BalanceProjection struct {
	UserID    string `json:"user_id"`
	Balance   int64  `json:"balance"`
	Currency  string `json:"currency"`
	UpdatedAt string `json:"updated_at"`
}

const balanceTTL = 5 * time.Minute

func balanceKey(userID string) string {
	return "projection:balance:" + userID
}

func balanceCounterKey(userID string) string {
	return "projection:balance-version:" + userID
}

// UpdateBalance caches a user's balance projection.
func UpdateBalance(ctx context.Context, store Store, p BalanceProjection) error {
	p.UpdatedAt = time.Now().UTC().Format(time.RFC3339)
	return SetJSON(ctx, store, balanceKey(p.UserID), p, balanceTTL)
}

// GetBalance retrieves a cached balance projection.
func GetBalance(ctx context.Context, store Store, userID string) (*BalanceProjection, error) {
	var p BalanceProjection
	if err := GetJSON(ctx, store, balanceKey(userID), &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// InvalidateBalances removes the cached balance of every given user and
// moves each user's balance counter forward, so a read that loaded the user
// before the invalidation cannot cache what it loaded.
func InvalidateBalances(ctx context.Context, store Store, userIDs ...uuid.UUID) error {
	for _, id := range userIDs {
		if err := store.Bump(ctx, balanceCounterKey(id.String()), balanceKey(id.String())); err != nil {
			return err
		}
	}
	return nil
}

// ReadThroughBalance serves the cached projection, loading the user on a
// miss. The loaded balance is cached only if no invalidation happened while
// it was being loaded. Cache failures other than a miss fall back to load.
func ReadThroughBalance(ctx context.Context, store Store, userID uuid.UUID, load func(ctx context.Context) (*domain.User, error)) (*BalanceProjection, error) {
	cached, err := GetBalance(ctx, store, userID.String())
	if err == nil {
		return cached, nil
	}
	cacheable := errors.Is(err, ErrMiss)

	var version int64
	if cacheable {
		if version, err = store.Counter(ctx, balanceCounterKey(userID.String())); err != nil {
			cacheable = false
		}
	}

	user, err := load(ctx)
	if err != nil {
		return nil, err
	}
	p := BalanceProjection{
		UserID:    user.ID.String(),
		Balance:   user.Balance,
		Currency:  user.Currency,
		UpdatedAt: time.Now().UTC().Format(time.RFC3339),
	}
	if cacheable {
		if data, err := json.Marshal(p); err == nil {
			_, _ = store.SetIfCounter(ctx, balanceKey(p.UserID), data, balanceTTL, balanceCounterKey(p.UserID), version)
		}
	}
	p.UpdatedAt = user.UpdatedAt.UTC().Format(time.RFC3339)
	return &p, nil
}
