package api

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/starford/laguz/internal/apperr"
)

// Handler holds API route handlers.
type Handler struct {
	vault Vault
}

// NewHandler creates a new Handler.
func NewHandler(v Vault) *Handler {
	return &Handler{vault: v}
}

// slugParam extracts the slug from the URL, accepting encoded characters.
func slugParam(r *http.Request) string {
	raw := chi.URLParam(r, "slug")
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return raw
	}
	return decoded
}

// ListNotes handles GET /notes.
//
//	@Summary		List notes in title order
//	@Tags			notes
//	@Produce		json
//	@Success		200	{object}	NoteListResponse
//	@Security		BearerAuth
//	@Router			/notes [get]
func (h *Handler) ListNotes(w http.ResponseWriter, r *http.Request) {
	notes := h.vault.Notes()
	writeJSON(w, http.StatusOK, NoteListResponse{
		Notes: listItems(notes),
		Total: len(notes),
	})
}

// GetNote handles GET /notes/{slug}.
//
//	@Summary		Get a resolved note with backlinks
//	@Tags			notes
//	@Produce		json
//	@Param			slug	path		string	true	"Note slug"
//	@Success		200		{object}	NoteDetail
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/{slug} [get]
func (h *Handler) GetNote(w http.ResponseWriter, r *http.Request) {
	slug := slugParam(r)
	note, rendered, err := h.vault.Render(slug)
	if err != nil {
		h.notFoundOrInternal(w, "get note", slug, err)
		return
	}
	backlinks, err := h.vault.Backlinks(slug)
	if err != nil {
		h.notFoundOrInternal(w, "get note", slug, err)
		return
	}
	writeJSON(w, http.StatusOK, noteDetail(note, rendered, backlinks))
}

// Backlinks handles GET /notes/{slug}/backlinks.
func (h *Handler) Backlinks(w http.ResponseWriter, r *http.Request) {
	slug := slugParam(r)
	backlinks, err := h.vault.Backlinks(slug)
	if err != nil {
		h.notFoundOrInternal(w, "backlinks", slug, err)
		return
	}
	items := listItems(backlinks)
	writeJSON(w, http.StatusOK, NoteListResponse{Notes: items, Total: len(items)})
}

// Search handles GET /search.
//
//	@Summary		Substring search over titles, slugs and bodies
//	@Tags			search
//	@Produce		json
//	@Param			q		query		string	true	"Search query"
//	@Param			limit	query		int		false	"Max results"
//	@Success		200		{object}	SearchResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/search [get]
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'q' is required"))
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	writeJSON(w, http.StatusOK, SearchResponse{Results: searchResults(h.vault.Search(q, limit))})
}

// Progress handles GET /progress.
func (h *Handler) Progress(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, ProgressResponse{
		Status: h.vault.Status(),
		Tasks:  nonNil(h.vault.Progress()),
	})
}

// Reload handles POST /reload.
//
//	@Summary		Re-run ingestion
//	@Tags			vault
//	@Produce		json
//	@Success		200	{object}	ProgressResponse
//	@Failure		502	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/reload [post]
func (h *Handler) Reload(w http.ResponseWriter, r *http.Request) {
	if err := h.vault.Reload(r.Context()); err != nil {
		slog.Error("reload failed", slog.String("error", err.Error()))
		writeIngestError(w, err)
		return
	}
	h.Progress(w, r)
}

// ClearCache handles POST /cache/clear.
func (h *Handler) ClearCache(w http.ResponseWriter, r *http.Request) {
	if err := h.vault.Clear(r.Context()); err != nil {
		slog.Error("clear cache failed", slog.String("error", err.Error()))
		writeIngestError(w, err)
		return
	}
	h.Progress(w, r)
}

func (h *Handler) notFoundOrInternal(w http.ResponseWriter, op, slug string, err error) {
	if errors.Is(err, apperr.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
		return
	}
	slog.Error(op+" failed", slog.String("slug", slug), slog.String("error", err.Error()))
	writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
}
