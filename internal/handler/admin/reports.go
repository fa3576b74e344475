package admin

import (
	"net/http"
	"strconv"
	"time"

	"github.com/arenadesk/platform/internal/domain"
	"github.com/arenadesk/platform/internal/handler"
	"github.com/arenadesk/platform/internal/infra"
	"github.com/arenadesk/platform/internal/ledger"
	"github.com/arenadesk/platform/internal/repository"
	"github.com/google/uuid"
)

// ReportsHandler serves settlement reports and on-demand reconciliation.
type ReportsHandler struct {
	reconciler  *ledger.Reconciler
	tournaments repository.TournamentRepository
	db          repository.DBTX
	metrics     *infra.SettlementMetrics
}

// NewReportsHandler creates a new ReportsHandler.
func NewReportsHandler(reconciler *ledger.Reconciler, tournaments repository.TournamentRepository, db repository.DBTX, metrics *infra.SettlementMetrics) *ReportsHandler {
	return &ReportsHandler{reconciler: reconciler, tournaments: tournaments, db: db, metrics: metrics}
}

// GetReconciliation handles GET /reports/reconciliation.
func (h *ReportsHandler) GetReconciliation(w http.ResponseWriter, r *http.Request) {
	report, err := h.reconciler.Run(r.Context())
	if err != nil {
		handler.RespondError(w, domain.ErrInternal("run reconciliation", err))
		return
	}
	h.metrics.SetReconcileFailures(len(report.Failures))
	handler.RespondJSON(w, http.StatusOK, report)
}

type settlementRow struct {
	TournamentID        string `json:"tournament_id"`
	Name                string `json:"name"`
	Currency            string `json:"currency"`
	TotalDistributed    int64  `json:"total_distributed"`
	PrizesDistributedAt string `json:"prizes_distributed_at"`
}

// GetSettlements handles GET /reports/settlements, most recent first.
// ?after=<tournament id> continues from the last row of a previous page.
func (h *ReportsHandler) GetSettlements(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if n, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && n > 0 && n <= 500 {
		limit = n
	}
	var after *uuid.UUID
	if raw := r.URL.Query().Get("after"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			handler.RespondError(w, domain.ErrValidation("after must be a tournament id"))
			return
		}
		after = &id
	}

	tournaments, err := h.tournaments.ListDistributed(r.Context(), h.db, after, limit)
	if err != nil {
		handler.RespondError(w, domain.ErrInternal("list settlements", err))
		return
	}

	rows := make([]settlementRow, 0, len(tournaments))
	for _, t := range tournaments {
		row := settlementRow{
			TournamentID:     t.ID.String(),
			Name:             t.Name,
			Currency:         t.Currency,
			TotalDistributed: t.TotalDistributed,
		}
		if t.PrizesDistributedAt != nil {
			row.PrizesDistributedAt = t.PrizesDistributedAt.UTC().Format(time.RFC3339)
		}
		rows = append(rows, row)
	}
	handler.RespondJSON(w, http.StatusOK, rows)
}
