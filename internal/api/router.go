package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func NewRouter(apiHandler *APIHandler) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Logger)       // Basic request logging
	r.Use(middleware.Recoverer)    // Recover from panics
	r.Use(middleware.StripSlashes) // Ensure consistent path handling

	// All API routes will be under /api
	r.Route("/api", func(r chi.Router) {
		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"status":"ok"}`))
		})

		// Chat-handling collaborator boundary
		r.Post("/turns", apiHandler.RecordTurnHandler)
		r.Post("/replies", apiHandler.RecordReplyHandler)

		// Dashboard collaborator boundary
		r.Get("/account/summary", apiHandler.AccountSummaryHandler)
		r.Get("/conversations", apiHandler.ListConversationsHandler)
		r.Post("/messages/{messageID}/action", apiHandler.MessageActionHandler)
	})

	return r
}
