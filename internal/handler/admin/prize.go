package admin

import (
	"bytes"
	"net/http"

	"github.com/arenadesk/platform/internal/auth"
	"github.com/arenadesk/platform/internal/domain"
	"github.com/arenadesk/platform/internal/handler"
	"github.com/arenadesk/platform/internal/report"
	"github.com/arenadesk/platform/internal/settlement"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// PrizeHandler exposes prize distribution preview, configuration and settlement.
type PrizeHandler struct {
	svc *settlement.Service
}

// NewPrizeHandler creates a new PrizeHandler.
func NewPrizeHandler(svc *settlement.Service) *PrizeHandler {
	return &PrizeHandler{svc: svc}
}

// GetPrizeDistribution handles GET /tournaments/{id}/prize-distribution.
func (h *PrizeHandler) GetPrizeDistribution(w http.ResponseWriter, r *http.Request) {
	id, err := tournamentID(r)
	if err != nil {
		handler.RespondError(w, err)
		return
	}

	preview, err := h.svc.Preview(r.Context(), id)
	if err != nil {
		handler.RespondError(w, err)
		return
	}
	handler.RespondJSON(w, http.StatusOK, preview)
}

// SavePrizeDistribution handles POST /tournaments/{id}/prize-distribution.
func (h *PrizeHandler) SavePrizeDistribution(w http.ResponseWriter, r *http.Request) {
	id, err := tournamentID(r)
	if err != nil {
		handler.RespondError(w, err)
		return
	}

	var rule domain.PrizeDistributionRule
	if err := handler.DecodeJSON(r, &rule); err != nil {
		handler.RespondError(w, domain.ErrValidation("invalid request body: "+err.Error()))
		return
	}

	preview, err := h.svc.SaveRule(r.Context(), id, &rule, actor(r))
	if err != nil {
		handler.RespondError(w, err)
		return
	}
	handler.RespondJSON(w, http.StatusOK, preview)
}

// DistributePrizes handles POST /tournaments/{id}/distribute-prizes.
func (h *PrizeHandler) DistributePrizes(w http.ResponseWriter, r *http.Request) {
	id, err := tournamentID(r)
	if err != nil {
		handler.RespondError(w, err)
		return
	}

	summary, err := h.svc.DistributePrizes(r.Context(), id)
	if err != nil {
		handler.RespondError(w, err)
		return
	}
	handler.RespondJSON(w, http.StatusOK, summary)
}

type distributionList struct {
	TournamentID      uuid.UUID                   `json:"tournament_id"`
	PrizesDistributed bool                        `json:"prizes_distributed"`
	TotalDistributed  int64                       `json:"total_distributed"`
	Distributions     []domain.DistributionRecord `json:"distributions"`
}

// ListDistributions handles GET /tournaments/{id}/prize-distributions.
func (h *PrizeHandler) ListDistributions(w http.ResponseWriter, r *http.Request) {
	id, err := tournamentID(r)
	if err != nil {
		handler.RespondError(w, err)
		return
	}

	t, records, err := h.svc.ListDistributions(r.Context(), id)
	if err != nil {
		handler.RespondError(w, err)
		return
	}
	handler.RespondJSON(w, http.StatusOK, distributionList{
		TournamentID:      t.ID,
		PrizesDistributed: t.PrizesDistributed,
		TotalDistributed:  t.TotalDistributed,
		Distributions:     records,
	})
}

// ExportDistributions handles GET /tournaments/{id}/prize-distributions/export.
func (h *PrizeHandler) ExportDistributions(w http.ResponseWriter, r *http.Request) {
	id, err := tournamentID(r)
	if err != nil {
		handler.RespondError(w, err)
		return
	}

	var buf bytes.Buffer
	t, err := h.svc.Export(r.Context(), id, &buf)
	if err != nil {
		handler.RespondError(w, err)
		return
	}

	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+report.ExportFilename(t)+`"`)
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}

func tournamentID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		return uuid.Nil, domain.ErrValidation("invalid tournament id")
	}
	return id, nil
}

// actor names the admin making a change, for the audit event.
func actor(r *http.Request) string {
	claims := auth.ClaimsFromContext(r.Context())
	if claims == nil {
		return ""
	}
	if claims.Email != "" {
		return claims.Email
	}
	return claims.Subject
}
