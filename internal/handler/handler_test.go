package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/arenadesk/platform/internal/domain"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func serve(h http.Handler, r *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

var ok = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func TestRespondJSON_NilBodyWritesNothing(t *testing.T) {
	w := httptest.NewRecorder()
	RespondJSON(w, http.StatusNoContent, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, w.Body.String())
}

func TestRespondError(t *testing.T) {
	tests := []struct {
		name          string
		err           error
		wantStatus    int
		wantCode      string
		wantRetryable bool
	}{
		{"not found", domain.ErrNotFound("tournament", "123"), 404, "NOT_FOUND", false},
		{"validation", domain.ErrValidation("bad input"), 400, "VALIDATION_ERROR", false},
		{"unauthorized", domain.ErrUnauthorized("no token"), 401, "UNAUTHORIZED", false},
		{"forbidden", domain.ErrForbidden("not allowed"), 403, "FORBIDDEN", false},
		{"invalid state", domain.ErrInvalidState("t1", "live"), 409, "INVALID_STATE", false},
		{"already distributed", domain.ErrAlreadyDistributed("t1"), 409, "ALREADY_DISTRIBUTED", false},
		{"in progress", domain.ErrSettlementInProgress("t1"), 409, "SETTLEMENT_IN_PROGRESS", true},
		{"no results", domain.ErrNoResults("t1"), 422, "NO_RESULTS", false},
		{"invalid rule", domain.ErrInvalidRule("bad rule"), 400, "INVALID_RULE", false},
		{"rate limited", domain.ErrRateLimited("slow down"), 429, "RATE_LIMITED", false},
		{"settlement failed", domain.ErrSettlementFailed("t1", assert.AnError), 500, "SETTLEMENT_FAILED", true},
		{"wrapped", fmt.Errorf("handler: %w", domain.ErrNoResults("t1")), 422, "NO_RESULTS", false},
		{"plain error", assert.AnError, 500, "INTERNAL_ERROR", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			RespondError(w, tt.err)
			assert.Equal(t, tt.wantStatus, w.Code)

			var body errorBody
			require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
			assert.Equal(t, tt.wantCode, body.Code)
			assert.Equal(t, tt.wantRetryable, body.Retryable)
			assert.NotEmpty(t, body.Message)
		})
	}
}

func TestRespondError_HidesInternalCause(t *testing.T) {
	w := httptest.NewRecorder()
	RespondError(w, fmt.Errorf("dial tcp 10.0.0.5:5432: connection refused"))
	assert.NotContains(t, w.Body.String(), "10.0.0.5")
	assert.Contains(t, w.Body.String(), "internal server error")
}

func TestDecodeJSON(t *testing.T) {
	type ruleBody struct {
		FirstPlacePercent string `json:"firstPlacePercent"`
		AdminOverride     bool   `json:"adminOverride"`
	}

	tests := []struct {
		name    string
		body    string
		wantErr bool
	}{
		{"valid", `{"firstPlacePercent":"40","adminOverride":false}`, false},
		{"unknown field", `{"firstPlacePercent":"40","firstPlacePct":"40"}`, true},
		{"malformed", `{"firstPlacePercent":`, true},
		{"over 1 MiB", `{"firstPlacePercent":"` + strings.Repeat("9", 1<<20) + `"}`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(tt.body))
			var dst ruleBody
			err := DecodeJSON(r, &dst)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "40", dst.FirstPlacePercent)
		})
	}
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name       string
		forwarded  string
		remoteAddr string
		want       string
	}{
		{"forwarded single", "1.2.3.4", "10.0.0.1:5000", "1.2.3.4"},
		{"forwarded chain takes first", "1.2.3.4, 5.6.7.8", "10.0.0.1:5000", "1.2.3.4"},
		{"forwarded padded", "  1.2.3.4  ", "", "1.2.3.4"},
		{"remote addr with port", "", "10.0.0.1:54321", "10.0.0.1"},
		{"remote addr without port", "", "10.0.0.1", "10.0.0.1"},
		{"ipv6 remote addr", "", "[::1]:8080", "::1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tt.remoteAddr
			if tt.forwarded != "" {
				r.Header.Set("X-Forwarded-For", tt.forwarded)
			}
			assert.Equal(t, tt.want, ClientIP(r))
		})
	}
}

func TestRequestID(t *testing.T) {
	var seen string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
	}))

	w := serve(h, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.NotEmpty(t, seen)
	assert.Equal(t, seen, w.Header().Get("X-Request-ID"))

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("X-Request-ID", "settle-7")
	w = serve(h, r)
	assert.Equal(t, "settle-7", seen)
	assert.Equal(t, "settle-7", w.Header().Get("X-Request-ID"))

	assert.Empty(t, GetRequestID(context.Background()))
}

func TestRequestLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	r := chi.NewRouter()
	r.Use(RequestID)
	r.Use(RequestLogger(logger))
	r.Post("/tournaments/{id}/distribute-prizes", func(w http.ResponseWriter, r *http.Request) {
		RespondError(w, domain.ErrSettlementFailed(chi.URLParam(r, "id"), assert.AnError))
	})
	r.Get("/tournaments/{id}/prize-distribution", ok)

	serve(r, httptest.NewRequest(http.MethodGet, "/tournaments/t-1/prize-distribution", nil))
	serve(r, httptest.NewRequest(http.MethodPost, "/tournaments/t-1/distribute-prizes", nil))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)

	var first, second map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &second))

	assert.Equal(t, "INFO", first["level"])
	assert.Equal(t, "/tournaments/{id}/prize-distribution", first["route"])
	assert.Equal(t, float64(200), first["status"])
	assert.NotEmpty(t, first["request_id"])

	assert.Equal(t, "ERROR", second["level"])
	assert.Equal(t, float64(500), second["status"])
	assert.Equal(t, "/tournaments/t-1/distribute-prizes", second["path"])
}

func TestJSONContentType(t *testing.T) {
	w := serve(JSONContentType(ok), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
}

func TestCORSWithOrigins(t *testing.T) {
	request := func(method, origin string) *http.Request {
		r := httptest.NewRequest(method, "/tournaments/x/prize-distribution", nil)
		if origin != "" {
			r.Header.Set("Origin", origin)
		}
		return r
	}

	t.Run("wildcard", func(t *testing.T) {
		w := serve(CORSWithOrigins("*")(ok), request(http.MethodGet, "https://anywhere.example"))
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
		assert.Contains(t, w.Header().Get("Access-Control-Allow-Headers"), "Authorization")
		assert.Contains(t, w.Header().Get("Access-Control-Expose-Headers"), "Retry-After")
	})

	allowList := CORSWithOrigins("https://admin.arenadesk.gg, https://ops.arenadesk.gg")(ok)

	t.Run("listed origin is echoed", func(t *testing.T) {
		w := serve(allowList, request(http.MethodGet, "https://ops.arenadesk.gg"))
		assert.Equal(t, "https://ops.arenadesk.gg", w.Header().Get("Access-Control-Allow-Origin"))
		assert.Equal(t, "Origin", w.Header().Get("Vary"))
	})

	t.Run("preflight for listed origin", func(t *testing.T) {
		w := serve(allowList, request(http.MethodOptions, "https://admin.arenadesk.gg"))
		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), "POST")
	})

	t.Run("unlisted origin gets no headers", func(t *testing.T) {
		w := serve(allowList, request(http.MethodGet, "https://evil.example"))
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))

		w = serve(allowList, request(http.MethodOptions, "https://evil.example"))
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("same-origin request passes through", func(t *testing.T) {
		w := serve(allowList, request(http.MethodGet, ""))
		assert.Equal(t, http.StatusOK, w.Code)
	})
}

func TestRecovery(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	h := Recovery(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("nil summary")
	}))

	var w *httptest.ResponseRecorder
	assert.NotPanics(t, func() {
		w = serve(h, httptest.NewRequest(http.MethodPost, "/tournaments/x/distribute-prizes", nil))
	})
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var body errorBody
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, domain.CodeInternal, body.Code)
	assert.Contains(t, buf.String(), "panic recovered")
	assert.Contains(t, buf.String(), "nil summary")

	w = serve(Recovery(logger)(ok), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}
