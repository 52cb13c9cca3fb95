package api

import (
	"github.com/starford/laguz/internal/models"
	"github.com/starford/laguz/internal/pipeline"
	"github.com/starford/laguz/internal/progress"
	"github.com/starford/laguz/internal/resolver"
)

// NoteListItem is a lightweight item in a list response.
type NoteListItem struct {
	Slug  string `json:"slug" example:"projects.laguz"`
	Title string `json:"title" example:"Projects › Laguz"`
	Path  string `json:"path" example:"notes/projects.laguz.md"`
}

// NoteListResponse wraps note listings.
type NoteListResponse struct {
	Notes []NoteListItem `json:"notes"`
	Total int            `json:"total" example:"42"`
}

// NoteDetail is a note with its resolved content.
type NoteDetail struct {
	Slug          string                         `json:"slug"`
	Title         string                         `json:"title"`
	Path          string                         `json:"path"`
	Body          string                         `json:"body"`
	Frontmatter   models.Frontmatter             `json:"frontmatter"`
	HTML          string                         `json:"html"`
	Links         []models.LinkReference         `json:"links"`
	Transclusions []models.TransclusionReference `json:"transclusions"`
	Tags          []string                       `json:"tags"`
	Diagnostics   []resolver.Diagnostic          `json:"diagnostics,omitempty"`
	Backlinks     []NoteListItem                 `json:"backlinks"`
}

// SearchResult is a single search hit in the API response.
type SearchResult struct {
	Slug    string `json:"slug" example:"projects.laguz"`
	Title   string `json:"title" example:"Projects › Laguz"`
	Snippet string `json:"snippet" example:"Laguz turns a vault..."`
}

// SearchResponse wraps search results.
type SearchResponse struct {
	Results []SearchResult `json:"results"`
}

// ProgressResponse is the latest ingestion snapshot.
type ProgressResponse struct {
	Status pipeline.Status      `json:"status"`
	Tasks  []progress.StageTask `json:"tasks"`
}

func listItems(notes []models.Note) []NoteListItem {
	items := make([]NoteListItem, len(notes))
	for i, n := range notes {
		items[i] = NoteListItem{Slug: n.Slug, Title: n.Title, Path: n.Path}
	}
	return items
}

const snippetLen = 200

func searchResults(notes []models.Note) []SearchResult {
	out := make([]SearchResult, len(notes))
	for i, n := range notes {
		snippet := []rune(n.Body)
		if len(snippet) > snippetLen {
			snippet = snippet[:snippetLen]
		}
		out[i] = SearchResult{Slug: n.Slug, Title: n.Title, Snippet: string(snippet)}
	}
	return out
}

func noteDetail(n models.Note, r resolver.Rendered, backlinks []models.Note) NoteDetail {
	fm := n.Frontmatter
	if fm == nil {
		fm = models.Frontmatter{}
	}
	return NoteDetail{
		Slug:          n.Slug,
		Title:         n.Title,
		Path:          n.Path,
		Body:          n.Body,
		Frontmatter:   fm,
		HTML:          r.HTML,
		Links:         nonNil(r.Links),
		Transclusions: nonNil(r.Transclusions),
		Tags:          nonNil(r.Tags),
		Diagnostics:   r.Diagnostics,
		Backlinks:     listItems(backlinks),
	}
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
