package handler

import (
	"net/http"
	"time"

	"github.com/arenadesk/platform/internal/infra"
)

type healthResponse struct {
	Status    string `json:"status"`
	Store     string `json:"store"`
	LatencyMS int64  `json:"latency_ms"`
	Error     string `json:"error,omitempty"`
}

// HealthHandler reports whether the store answers a ping. An unreachable
// store makes the service unhealthy (503) since no settlement can run.
func HealthHandler(store infra.Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		err := infra.HealthCheck(r.Context(), store)
		resp := healthResponse{Status: "healthy", Store: "ok", LatencyMS: time.Since(start).Milliseconds()}
		if err != nil {
			resp.Status, resp.Store, resp.Error = "unhealthy", "unreachable", err.Error()
			RespondJSON(w, http.StatusServiceUnavailable, resp)
			return
		}
		RespondJSON(w, http.StatusOK, resp)
	}
}
