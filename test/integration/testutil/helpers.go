//go:build integration

package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/arenadesk/platform/internal/auth"
	"github.com/arenadesk/platform/internal/domain"
	"github.com/arenadesk/platform/internal/infra"
	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

// Player is a seeded wallet with a result in a tournament.
type Player struct {
	UserID         uuid.UUID
	RegistrationID uuid.UUID
	ResultID       uuid.UUID
}

// CreateTournament inserts a tournament plus registrations that have no
// result, so they only contribute entry fees.
func (env *TestEnv) CreateTournament(status domain.TournamentStatus, entryFee int64, extraRegistrations int, mutate ...func(*domain.Tournament)) *domain.Tournament {
	env.t.Helper()
	ctx := context.Background()
	now := time.Now()
	t := &domain.Tournament{
		ID:        uuid.New(),
		Name:      gofakeit.Company() + " Cup",
		Currency:  "USD",
		Status:    status,
		EntryFee:  entryFee,
		CreatedAt: now,
		UpdatedAt: now,
	}
	for _, m := range mutate {
		m(t)
	}
	if err := env.App.Repos.Tournaments.Create(ctx, env.Pool, t); err != nil {
		env.t.Fatalf("create tournament: %v", err)
	}
	for i := 0; i < extraRegistrations; i++ {
		env.register(t.ID, uuid.New())
	}
	return t
}

// CreateUser inserts a wallet with the given currency.
func (env *TestEnv) CreateUser(currency string) uuid.UUID {
	env.t.Helper()
	now := time.Now()
	id := uuid.New()
	err := env.App.Repos.Users.Create(context.Background(), env.Pool, &domain.User{
		ID:        id,
		Username:  gofakeit.Username() + "-" + id.String()[:8],
		Email:     id.String()[:8] + "." + gofakeit.Email(),
		Currency:  currency,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		env.t.Fatalf("create user: %v", err)
	}
	return id
}

// AddPlayer creates a wallet, registers it and records its result. A
// position of 0 leaves the result unplaced.
func (env *TestEnv) AddPlayer(t *domain.Tournament, position, kills int, currency string) Player {
	env.t.Helper()
	return env.AddResult(t, env.CreateUser(currency), position, kills)
}

// AddResult registers an existing user and records its result.
func (env *TestEnv) AddResult(t *domain.Tournament, userID uuid.UUID, position, kills int) Player {
	env.t.Helper()
	regID := env.register(t.ID, userID)
	res := &domain.Result{
		ID:             uuid.New(),
		TournamentID:   t.ID,
		RegistrationID: regID,
		UserID:         &userID,
		Kills:          kills,
	}
	if position > 0 {
		res.Position = &position
	}
	if err := env.App.Repos.Results.Create(context.Background(), env.Pool, res); err != nil {
		env.t.Fatalf("create result: %v", err)
	}
	return Player{UserID: userID, RegistrationID: regID, ResultID: res.ID}
}

func (env *TestEnv) register(tournamentID, userID uuid.UUID) uuid.UUID {
	env.t.Helper()
	id := uuid.New()
	err := env.App.Repos.Registrations.Create(context.Background(), env.Pool, &domain.Registration{
		ID:            id,
		TournamentID:  tournamentID,
		UserID:        userID,
		PaymentStatus: domain.PaymentPaid,
		CreatedAt:     time.Now(),
	})
	if err != nil {
		env.t.Fatalf("create registration: %v", err)
	}
	return id
}

// Balance reads a wallet balance straight from the users table.
func (env *TestEnv) Balance(userID uuid.UUID) int64 {
	env.t.Helper()
	var n pgtype.Numeric
	if err := env.Pool.QueryRow(context.Background(), `SELECT balance FROM users WHERE id = $1`, userID).Scan(&n); err != nil {
		env.t.Fatalf("read balance: %v", err)
	}
	v, err := infra.NumericToInt64(n)
	if err != nil {
		env.t.Fatalf("convert balance: %v", err)
	}
	return v
}

// Count returns the number of rows matched by a COUNT(*) query.
func (env *TestEnv) Count(query string, args ...any) int {
	env.t.Helper()
	var n int
	if err := env.Pool.QueryRow(context.Background(), query, args...).Scan(&n); err != nil {
		env.t.Fatalf("count: %v", err)
	}
	return n
}

// AdminToken issues an admin-realm bearer token with the given role.
func (env *TestEnv) AdminToken(role string) string {
	env.t.Helper()
	tok, err := env.JWTMgr.GenerateToken(auth.RealmAdmin, uuid.New(), "ops@arenadesk.gg", role)
	if err != nil {
		env.t.Fatalf("generate admin token: %v", err)
	}
	return tok
}

// PlayerToken issues a player-realm bearer token for userID.
func (env *TestEnv) PlayerToken(userID uuid.UUID) string {
	env.t.Helper()
	tok, err := env.JWTMgr.GenerateToken(auth.RealmPlayer, userID, "", "")
	if err != nil {
		env.t.Fatalf("generate player token: %v", err)
	}
	return tok
}

// Do sends an authenticated request. body is JSON-encoded when non-nil.
func (env *TestEnv) Do(method, path, token string, body any) *http.Response {
	env.t.Helper()
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			env.t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(buf)
	}
	req, err := http.NewRequest(method, env.Server.URL+path, reader)
	if err != nil {
		env.t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		env.t.Fatalf("%s %s: %v", method, path, err)
	}
	return resp
}

// Decode reads a JSON response body into v and closes it.
func (env *TestEnv) Decode(resp *http.Response, v any) {
	env.t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		env.t.Fatalf("decode response: %v", err)
	}
}
