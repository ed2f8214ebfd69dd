// Package handler exposes the client's local ops surface: health,
// readiness, Prometheus metrics and a status snapshot of the
// synchronized state. This is observability plumbing for the
// long-running client process, not the banking UI.
package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/ferrao/bankctl-go/internal/infra/observability"
	"github.com/ferrao/bankctl-go/internal/port"
	"github.com/ferrao/bankctl-go/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// NewRouter creates the ops router.
func NewRouter(session *service.SessionManager, engine *service.SyncEngine, ledger port.LedgerAPI, metrics *observability.Metrics, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(observability.ZapLoggerMiddleware(logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/ping"))

	r.Get("/healthz", healthzHandler(ledger))
	r.Get("/readyz", readyzHandler())
	r.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))
	r.Get("/statusz", statuszHandler(session, engine, metrics))

	return r
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// healthzHandler reports whether the remote ledger is reachable.
func healthzHandler(ledger port.LedgerAPI) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if ledger == nil {
			writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := ledger.Ping(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "ledger unreachable: " + err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "ledger": "reachable"})
	}
}

func readyzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

type statusResponse struct {
	Authenticated bool                    `json:"authenticated"`
	Username      string                  `json:"username,omitempty"`
	AccountCount  int                     `json:"account_count"`
	SelectedAcct  string                  `json:"selected_account,omitempty"`
	TotalBalance  string                  `json:"total_balance"`
	Calls         observability.CallStats `json:"calls"`
}

// statuszHandler serves a snapshot of session and sync state.
func statuszHandler(session *service.SessionManager, engine *service.SyncEngine, metrics *observability.Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := statusResponse{Calls: metrics.Snapshot(), TotalBalance: "0"}
		if session != nil {
			resp.Authenticated = session.Authenticated()
			resp.Username = session.Username()
		}
		if engine != nil {
			view := engine.Snapshot()
			resp.AccountCount = len(view.Accounts)
			if view.Selected != nil {
				resp.SelectedAcct = view.Selected.AccountNumber
			}
			resp.TotalBalance = view.TotalBalance.StringFixed(2)
		}
		writeJSON(w, http.StatusOK, resp)
	}
}
