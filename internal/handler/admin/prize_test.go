package admin

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/arenadesk/platform/internal/domain"
	"github.com/arenadesk/platform/internal/infra"
	"github.com/arenadesk/platform/internal/ledger"
	"github.com/arenadesk/platform/internal/repository"
	"github.com/arenadesk/platform/internal/repository/memstore"
	"github.com/arenadesk/platform/internal/settlement"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	repos  repository.Repositories
	router chi.Router
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memstore.New()
	repos := store.Repositories()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	metrics := infra.NewSettlementMetrics(infra.NewMetricsRegistry())

	svc := settlement.NewService(settlement.Deps{
		Store:   store,
		Repos:   repos,
		Ledger:  ledger.NewEngine(repos.Users, repos.Transactions, repos.Outbox),
		Metrics: metrics,
		Logger:  logger,
		Config:  settlement.Config{BatchSize: 50, TxTimeout: 5 * time.Second},
	})
	t.Cleanup(svc.Wait)

	prizes := NewPrizeHandler(svc)
	reports := NewReportsHandler(ledger.NewReconciler(store, repos), repos.Tournaments, store.DB(), metrics)

	r := chi.NewRouter()
	r.Get("/tournaments/{id}/prize-distribution", prizes.GetPrizeDistribution)
	r.Post("/tournaments/{id}/prize-distribution", prizes.SavePrizeDistribution)
	r.Post("/tournaments/{id}/distribute-prizes", prizes.DistributePrizes)
	r.Get("/tournaments/{id}/prize-distributions", prizes.ListDistributions)
	r.Get("/tournaments/{id}/prize-distributions/export", prizes.ExportDistributions)
	r.Get("/reports/reconciliation", reports.GetReconciliation)
	r.Get("/reports/settlements", reports.GetSettlements)
	return &fixture{repos: repos, router: r}
}

// seed creates a completed tournament with 10 paid registrations of 100 and
// three ranked players holding 3, 2 and 1 kills.
func (f *fixture) seed(t *testing.T, status domain.TournamentStatus) uuid.UUID {
	t.Helper()
	ctx := context.Background()
	tr := &domain.Tournament{ID: uuid.New(), Name: "Night Cup", Currency: "USD", Status: status, EntryFee: 100}
	require.NoError(t, f.repos.Tournaments.Create(ctx, nil, tr))
	for i := 0; i < 7; i++ {
		require.NoError(t, f.repos.Registrations.Create(ctx, nil, &domain.Registration{
			ID: uuid.New(), TournamentID: tr.ID, UserID: uuid.New(), PaymentStatus: domain.PaymentPaid,
		}))
	}
	for pos, kills := range []int{3, 2, 1} {
		userID := uuid.New()
		require.NoError(t, f.repos.Users.Create(ctx, nil, &domain.User{ID: userID, Username: uuid.NewString(), Currency: "USD"}))
		regID := uuid.New()
		require.NoError(t, f.repos.Registrations.Create(ctx, nil, &domain.Registration{
			ID: regID, TournamentID: tr.ID, UserID: userID, PaymentStatus: domain.PaymentPaid,
		}))
		position := pos + 1
		require.NoError(t, f.repos.Results.Create(ctx, nil, &domain.Result{
			ID: uuid.New(), TournamentID: tr.ID, RegistrationID: regID, UserID: &userID, Position: &position, Kills: kills,
		}))
	}
	return tr.ID
}

func (f *fixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = bytes.NewBufferString(body)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, httptest.NewRequest(method, path, reader))
	return w
}

func decodeCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Code string `json:"code"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	return body.Code
}

func TestDistributePrizesEndpoint(t *testing.T) {
	f := newFixture(t)
	id := f.seed(t, domain.TournamentCompleted)
	path := "/tournaments/" + id.String() + "/distribute-prizes"

	w := f.do(t, http.MethodPost, path, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var summary domain.DistributionSummary
	require.NoError(t, json.NewDecoder(w.Body).Decode(&summary))
	assert.Equal(t, int64(900), summary.TotalDistributed)
	assert.Equal(t, int64(630), summary.FirstPlaceWinner.Amount)
	assert.Len(t, summary.Distributions, 3)

	w = f.do(t, http.MethodPost, path, "")
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, domain.CodeAlreadyDistributed, decodeCode(t, w))
}

func TestDistributePrizesEndpointRejections(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodPost, "/tournaments/not-a-uuid/distribute-prizes", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, http.MethodPost, "/tournaments/"+uuid.NewString()+"/distribute-prizes", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	live := f.seed(t, domain.TournamentLive)
	w = f.do(t, http.MethodPost, "/tournaments/"+live.String()+"/distribute-prizes", "")
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, domain.CodeInvalidState, decodeCode(t, w))
}

func TestPrizeDistributionPreviewAndSave(t *testing.T) {
	f := newFixture(t)
	id := f.seed(t, domain.TournamentCompleted)
	path := "/tournaments/" + id.String() + "/prize-distribution"

	w := f.do(t, http.MethodGet, path, "")
	require.Equal(t, http.StatusOK, w.Code)
	var preview domain.DistributionPreview
	require.NoError(t, json.NewDecoder(w.Body).Decode(&preview))
	assert.Equal(t, domain.RuleComputed, preview.Rule.Mode)
	assert.Equal(t, int64(900), preview.Plan.ActualPrizePool)
	assert.False(t, preview.PrizesDistributed)

	w = f.do(t, http.MethodPost, path, `{"adminOverride":true,"overrideDistribution":[{"position":1,"amount":500},{"position":2,"amount":200}]}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.NoError(t, json.NewDecoder(w.Body).Decode(&preview))
	assert.Equal(t, domain.RuleOverride, preview.Rule.Mode)
	assert.Equal(t, int64(700), preview.Plan.TotalPayable)

	w = f.do(t, http.MethodPost, path, `{"adminOverride":true,"overrideDistribution":[]}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, domain.CodeInvalidRule, decodeCode(t, w))

	w = f.do(t, http.MethodPost, path, `{"adminOverride":`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, domain.CodeValidation, decodeCode(t, w))

	w = f.do(t, http.MethodPost, "/tournaments/"+id.String()+"/distribute-prizes", "")
	require.Equal(t, http.StatusOK, w.Code)
	var summary domain.DistributionSummary
	require.NoError(t, json.NewDecoder(w.Body).Decode(&summary))
	assert.Equal(t, int64(700), summary.TotalDistributed)

	w = f.do(t, http.MethodPost, path, `{"firstPlacePercent":"30"}`)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, domain.CodeAlreadyDistributed, decodeCode(t, w))
}

func TestListAndExportEndpoints(t *testing.T) {
	f := newFixture(t)
	id := f.seed(t, domain.TournamentCompleted)
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/tournaments/"+id.String()+"/distribute-prizes", "").Code)

	w := f.do(t, http.MethodGet, "/tournaments/"+id.String()+"/prize-distributions", "")
	require.Equal(t, http.StatusOK, w.Code)
	var list distributionList
	require.NoError(t, json.NewDecoder(w.Body).Decode(&list))
	assert.True(t, list.PrizesDistributed)
	assert.Equal(t, int64(900), list.TotalDistributed)
	assert.Len(t, list.Distributions, 3)

	w = f.do(t, http.MethodGet, "/tournaments/"+id.String()+"/prize-distributions/export", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, xlsxContentType, w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), ".xlsx")
	assert.NotZero(t, w.Body.Len())
}

func TestReportsEndpoints(t *testing.T) {
	f := newFixture(t)
	id := f.seed(t, domain.TournamentCompleted)
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/tournaments/"+id.String()+"/distribute-prizes", "").Code)

	w := f.do(t, http.MethodGet, "/reports/reconciliation", "")
	require.Equal(t, http.StatusOK, w.Code)
	var report ledger.ReconciliationReport
	require.NoError(t, json.NewDecoder(w.Body).Decode(&report))
	assert.True(t, report.AllPassed, "%+v", report.Failures)
	assert.Equal(t, 3, report.UsersChecked)
	assert.Equal(t, 1, report.TournamentsChecked)

	w = f.do(t, http.MethodGet, "/reports/settlements?limit=5", "")
	require.Equal(t, http.StatusOK, w.Code)
	var rows []settlementRow
	require.NoError(t, json.NewDecoder(w.Body).Decode(&rows))
	require.Len(t, rows, 1)
	assert.Equal(t, id.String(), rows[0].TournamentID)
	assert.Equal(t, int64(900), rows[0].TotalDistributed)

	w = f.do(t, http.MethodGet, "/reports/settlements?after="+id.String(), "")
	require.Equal(t, http.StatusOK, w.Code)
	rows = nil
	require.NoError(t, json.NewDecoder(w.Body).Decode(&rows))
	assert.Empty(t, rows)

	w = f.do(t, http.MethodGet, "/reports/settlements?after=latest", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
