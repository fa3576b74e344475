package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/arenadesk/platform/internal/auth"
	"github.com/arenadesk/platform/internal/domain"
	"github.com/arenadesk/platform/internal/projection"
	"github.com/arenadesk/platform/internal/repository"
	"github.com/google/uuid"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// WalletHandler serves a player's own balance and prize ledger.
type WalletHandler struct {
	users        repository.UserRepository
	transactions repository.TransactionRepository
	db           repository.DBTX
	balances     projection.Store
}

// NewWalletHandler creates a WalletHandler. Balances are read through the
// projection store and loaded from users on a miss.
func NewWalletHandler(users repository.UserRepository, transactions repository.TransactionRepository, db repository.DBTX, balances projection.Store) *WalletHandler {
	return &WalletHandler{users: users, transactions: transactions, db: db, balances: balances}
}

type balanceResponse struct {
	Balance  int64  `json:"balance"`
	Display  string `json:"display"`
	Currency string `json:"currency"`
}

// GetBalance handles GET /wallet/balance.
func (h *WalletHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	userID, err := subjectUserID(r)
	if err != nil {
		RespondError(w, err)
		return
	}

	p, err := projection.ReadThroughBalance(r.Context(), h.balances, userID, h.loadUser(userID))
	if err != nil {
		RespondError(w, err)
		return
	}

	RespondJSON(w, http.StatusOK, balanceResponse{
		Balance:  p.Balance,
		Display:  domain.DisplayAmount(p.Balance),
		Currency: p.Currency,
	})
}

func (h *WalletHandler) loadUser(id uuid.UUID) func(context.Context) (*domain.User, error) {
	return func(ctx context.Context) (*domain.User, error) {
		user, err := h.users.FindByID(ctx, h.db, id)
		switch {
		case err != nil:
			return nil, domain.ErrInternal("find user", err)
		case user == nil:
			return nil, domain.ErrNotFound("user", id.String())
		}
		return user, nil
	}
}

type txListResponse struct {
	Transactions []domain.Transaction `json:"transactions"`
	NextCursor   *string              `json:"next_cursor,omitempty"`
}

// GetTransactions handles GET /wallet/transactions?limit=&cursor=. The cursor
// is the id of the first transaction of the next page.
func (h *WalletHandler) GetTransactions(w http.ResponseWriter, r *http.Request) {
	userID, err := subjectUserID(r)
	if err != nil {
		RespondError(w, err)
		return
	}
	limit, cursor, err := pageParams(r)
	if err != nil {
		RespondError(w, err)
		return
	}

	// One extra row tells us whether another page exists.
	txs, err := h.transactions.ListByUser(r.Context(), h.db, userID, cursor, limit+1)
	if err != nil {
		RespondError(w, domain.ErrInternal("list transactions", err))
		return
	}

	resp := txListResponse{Transactions: []domain.Transaction{}}
	if len(txs) > limit {
		next := txs[limit].ID.String()
		resp.NextCursor = &next
		txs = txs[:limit]
	}
	resp.Transactions = append(resp.Transactions, txs...)

	RespondJSON(w, http.StatusOK, resp)
}

func pageParams(r *http.Request) (int, *string, error) {
	q := r.URL.Query()

	limit := defaultPageSize
	if s := q.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 || n > maxPageSize {
			return 0, nil, domain.ErrValidation("limit must be between 1 and " + strconv.Itoa(maxPageSize))
		}
		limit = n
	}

	c := q.Get("cursor")
	if c == "" {
		return limit, nil, nil
	}
	if _, err := uuid.Parse(c); err != nil {
		return 0, nil, domain.ErrValidation("cursor must be a transaction id")
	}
	return limit, &c, nil
}

// subjectUserID returns the authenticated player's id.
func subjectUserID(r *http.Request) (uuid.UUID, error) {
	sub := auth.SubjectFromContext(r.Context())
	if sub == "" {
		return uuid.Nil, domain.ErrUnauthorized("no subject in context")
	}
	id, err := uuid.Parse(sub)
	if err != nil {
		return uuid.Nil, domain.ErrUnauthorized("invalid subject")
	}
	return id, nil
}
