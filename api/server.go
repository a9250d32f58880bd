/*
server.go - Router and middleware configuration

Chi router with the teacher middleware stack: request logging, panic
recovery, request ids, CORS for the app frontends. Prometheus metrics
are scraped from /metrics.
*/
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter wires all routes to the handler.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		})

		r.Route("/connections", func(r chi.Router) {
			r.Get("/", h.ListConnections)
			r.Post("/requests", h.CreateConnectionRequest)
			r.Post("/requests/{id}/respond", h.RespondToConnectionRequest)

			r.Route("/{id}", func(r chi.Router) {
				r.Put("/", h.UpdateConnection)
				r.Post("/block", h.BlockConnection)
				r.Get("/balance", h.GetBalance)
				r.Get("/entries", h.ListLinkEntries)
				r.Get("/statement", h.GetStatement)
				r.Post("/authorize", h.AuthorizeBookingCredit)
				r.Post("/fees", h.AccrueAppFee)
				r.Post("/settlements", h.InitiateSettlement)
			})
		})

		r.Route("/entries", func(r chi.Router) {
			r.Post("/{id}/reverse", h.ReverseEntry)
			r.Post("/{id}/reconcile", h.ReconcileEntry)
		})

		r.Route("/accountbook", func(r chi.Router) {
			r.Get("/summary", h.GetAccountSummary)
			r.Get("/entries", h.ListAccountEntries)
		})
	})

	r.Handle("/metrics", promhttp.Handler())

	return r
}
