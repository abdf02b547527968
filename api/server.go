/*
server.go - HTTP router and middleware configuration

ROUTE GROUPS:
  /webhook        Channel provider callbacks (verify + inbound messages)
  /api/*          Back-office operations, shared-token protected
  /documents/*    Rendered statement files

MIDDLEWARE STACK:
  RequestID, structured request logging, panic recovery, CORS for the
  back-office frontend. The webhook route stays outside the token check:
  the provider authenticates via its verify token instead.
*/
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter wires all routes.
func NewRouter(h *Handler, documentsDir string) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(h.requestLogger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
	}))

	r.Get("/healthz", h.Health)

	// Provider callbacks.
	r.Get("/webhook", h.VerifyWebhook)
	r.Post("/webhook", h.ReceiveWebhook)

	// Back-office API.
	r.Route("/api", func(r chi.Router) {
		r.Use(h.requireToken)

		r.Route("/holders", func(r chi.Router) {
			r.Get("/", h.ListHolders)
			r.Post("/", h.CreateHolder)
			r.Get("/{id}/balance", h.GetBalance)
		})

		r.Route("/accounts", func(r chi.Router) {
			r.Post("/{id}/close", h.CloseAccount)
			r.Get("/{id}/statements", h.ListStatements)
		})

		r.Post("/close", h.CloseAll)

		r.Route("/transactions", func(r chi.Router) {
			r.Post("/{id}", h.CorrectTransaction)
		})

		r.Route("/imports", func(r chi.Router) {
			r.Post("/{recordType}", h.Import)
		})

		r.Route("/cases", func(r chi.Router) {
			r.Get("/", h.ListCases)
			r.Post("/{id}/close", h.CloseCase)
		})
	})

	// Rendered statement documents.
	if documentsDir != "" {
		fs := http.StripPrefix("/documents/", http.FileServer(http.Dir(documentsDir)))
		r.Get("/documents/*", fs.ServeHTTP)
	}

	return r
}
