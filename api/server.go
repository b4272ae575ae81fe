/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request, echoed in logs
  2. Logger:     zerolog access log (method, path, status, duration)
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. CORS:       Cross-origin requests for frontends

ROUTE GROUPS:
  /api/transactions/*   Ledger writes and reads
  /api/items/*          Per-item stock, ledger, lifecycle
  /api/reasons/*        Adjustment reason lifecycle
  /api/stock/*          Stock-wide queries
  /api/reports/*        Monthly movement report
  /api/alerts/*         Low-stock alerts
  /api/admin/*          Aggregate verification
  /api/scenarios/*      Demo data

SECURITY NOTE:
  No authentication middleware. The actor id is taken on trust from the
  X-Actor-ID header or the body and only checked for existence.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, allowedOrigins []string) *chi.Mux {
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(requestLogger(h.Log))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", ActorHeader},
		ExposedHeaders: []string{"Content-Disposition", middleware.RequestIDHeader},
		MaxAge:         300,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Route("/transactions", func(r chi.Router) {
			r.Get("/", h.ListTransactions)
			r.Post("/inward", h.CreateInward)
			r.Post("/outward", h.CreateOutward)
			r.Post("/adjustment", h.CreateAdjustment)
			r.Get("/lookup", h.LookupTransaction)
			r.Get("/{id}", h.GetTransaction)
			r.Post("/{id}/reverse", h.ReverseTransaction)
		})

		r.Route("/items/{id}", func(r chi.Router) {
			r.Get("/stock", h.GetItemStock)
			r.Get("/ledger", h.GetItemLedger)
			r.Get("/ledger.xlsx", h.ExportItemLedger)
			r.Post("/deactivate", h.DeactivateItem)
		})

		r.Delete("/reasons/{id}", h.DeleteReason)
		r.Get("/stock/low", h.GetLowStock)

		r.Route("/reports", func(r chi.Router) {
			r.Get("/monthly-movement", h.MonthlyMovement)
			r.Get("/monthly-movement.xlsx", h.ExportMonthlyMovement)
		})

		r.Route("/alerts", func(r chi.Router) {
			r.Get("/", h.ListAlerts)
			r.Get("/summary", h.AlertSummary)
			r.Post("/acknowledge", h.AcknowledgeAlerts)
			r.Post("/reconcile", h.ReconcileAlerts)
			r.Get("/{id}", h.GetAlert)
			r.Post("/{id}/acknowledge", h.AcknowledgeAlert)
			r.Delete("/{id}", h.DeleteAlert)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Get("/verify", h.VerifyAggregates)
		})

		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.Post("/load", h.LoadScenario)
		})
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	return r
}

// requestLogger writes one access log line per request at info level, or
// warn for 5xx responses.
func requestLogger(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				ev := log.Info()
				if ww.Status() >= http.StatusInternalServerError {
					ev = log.Warn()
				}
				ev.Str("request_id", middleware.GetReqID(r.Context())).
					Str("method", r.Method).
					Str("path", r.URL.Path).
					Int("status", ww.Status()).
					Int("bytes", ww.BytesWritten()).
					Dur("duration", time.Since(start)).
					Msg("http request")
			}()
			next.ServeHTTP(ww, r)
		})
	}
}
