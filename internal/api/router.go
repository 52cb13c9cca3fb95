package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(v Vault, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(v)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	r.Get("/notes", h.ListNotes)
	r.Get("/notes/{slug}", h.GetNote)
	r.Get("/notes/{slug}/backlinks", h.Backlinks)
	r.Get("/search", h.Search)

	r.Get("/progress", h.Progress)
	r.Post("/reload", h.Reload)
	r.Post("/cache/clear", h.ClearCache)

	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
