package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/starford/laguz/internal/apperr"
	"github.com/starford/laguz/internal/cache"
	"github.com/starford/laguz/internal/models"
	"github.com/starford/laguz/internal/progress"
	"github.com/starford/laguz/internal/resolver"
	"github.com/starford/laguz/internal/source"
)

// Status summarizes the loaded vault.
type Status struct {
	Origin    string    `json:"origin"`
	Notes     int       `json:"notes"`
	FromCache bool      `json:"from_cache"`
	LoadedAt  time.Time `json:"loaded_at,omitzero"`
	LastError string    `json:"last_error,omitempty"`
}

// Library is the session state of one vault: the current note set, its
// resolver and the last progress snapshot. It is safe for concurrent use.
type Library struct {
	pipeline *Pipeline
	src      source.Source
	store    cache.Store
	resolver *resolver.Resolver
	sink     progress.Sink
	log      *slog.Logger

	reloadMu sync.Mutex // serializes Reload and Clear

	mu        sync.RWMutex
	notes     []models.Note
	bySlug    map[string]int
	tasks     []progress.StageTask
	fromCache bool
	loadedAt  time.Time
	lastErr   error
}

// NewLibrary creates an empty library. sink, if set, receives every progress
// snapshot of every run.
func NewLibrary(p *Pipeline, src source.Source, store cache.Store, res *resolver.Resolver, sink progress.Sink, log *slog.Logger) *Library {
	if store == nil {
		store = cache.Noop{}
	}
	if res == nil {
		res = resolver.New(resolver.Options{Logger: log})
	}
	if log == nil {
		log = slog.Default()
	}
	return &Library{
		pipeline: p,
		src:      src,
		store:    store,
		resolver: res,
		sink:     sink,
		log:      log,
		bySlug:   map[string]int{},
	}
}

// Reload runs the pipeline and swaps in the new note set. On failure the
// previous notes stay in place.
func (l *Library) Reload(ctx context.Context) error {
	l.reloadMu.Lock()
	defer l.reloadMu.Unlock()
	return l.reload(ctx)
}

// Clear drops the cache and reloads from the source.
func (l *Library) Clear(ctx context.Context) error {
	l.reloadMu.Lock()
	defer l.reloadMu.Unlock()

	if err := l.store.Clear(ctx); err != nil {
		return fmt.Errorf("library: clear cache: %w", err)
	}
	l.log.Info("library: cache cleared")
	return l.reload(ctx)
}

func (l *Library) reload(ctx context.Context) error {
	res, err := l.pipeline.Run(ctx, l.src, func(tasks []progress.StageTask) {
		l.mu.Lock()
		l.tasks = tasks
		l.mu.Unlock()
		if l.sink != nil {
			l.sink(tasks)
		}
	})

	l.mu.Lock()
	defer l.mu.Unlock()
	if err != nil {
		l.lastErr = err
		var perr *Error
		if errors.As(err, &perr) {
			l.tasks = perr.Tasks
		}
		l.log.Error("library: reload failed", slog.String("error", err.Error()))
		return err
	}

	l.notes = res.Notes
	l.bySlug = make(map[string]int, len(res.Notes))
	for i, n := range res.Notes {
		if _, dup := l.bySlug[n.Slug]; !dup {
			l.bySlug[n.Slug] = i
		}
	}
	l.tasks = res.Tasks
	l.fromCache = res.FromCache
	l.loadedAt = time.Now()
	l.lastErr = nil
	return nil
}

// Notes returns a copy of the current note set in title order.
func (l *Library) Notes() []models.Note {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]models.Note(nil), l.notes...)
}

// Note returns the note with slug.
func (l *Library) Note(slug string) (models.Note, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	i, ok := l.bySlug[slug]
	if !ok {
		return models.Note{}, fmt.Errorf("library: note %q: %w", slug, apperr.ErrNotFound)
	}
	return l.notes[i], nil
}

// Render resolves the note with slug against the current note set.
func (l *Library) Render(slug string) (models.Note, resolver.Rendered, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	i, ok := l.bySlug[slug]
	if !ok {
		return models.Note{}, resolver.Rendered{}, fmt.Errorf("library: note %q: %w", slug, apperr.ErrNotFound)
	}
	return l.notes[i], l.resolver.Resolve(l.notes[i], l.notes), nil
}

// Backlinks returns the notes referencing slug.
func (l *Library) Backlinks(slug string) ([]models.Note, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if _, ok := l.bySlug[slug]; !ok {
		return nil, fmt.Errorf("library: note %q: %w", slug, apperr.ErrNotFound)
	}
	return resolver.Backlinks(slug, l.notes), nil
}

// Search returns notes whose slug, title or body contains query,
// case-insensitively. Title and slug hits rank before body hits.
func (l *Library) Search(query string, limit int) []models.Note {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return []models.Note{}
	}
	l.mu.RLock()
	defer l.mu.RUnlock()

	type hit struct {
		note models.Note
		rank int
	}
	var hits []hit
	for _, n := range l.notes {
		switch {
		case strings.Contains(strings.ToLower(n.Title), q), strings.Contains(strings.ToLower(n.Slug), q):
			hits = append(hits, hit{n, 0})
		case strings.Contains(strings.ToLower(n.Body), q):
			hits = append(hits, hit{n, 1})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].rank < hits[j].rank })

	out := make([]models.Note, 0, len(hits))
	for _, h := range hits {
		if limit > 0 && len(out) == limit {
			break
		}
		out = append(out, h.note)
	}
	return out
}

// Progress returns the latest progress snapshot.
func (l *Library) Progress() []progress.StageTask {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return progress.Clone(l.tasks)
}

// Status summarizes the library.
func (l *Library) Status() Status {
	l.mu.RLock()
	defer l.mu.RUnlock()
	st := Status{
		Origin:    l.src.Origin(),
		Notes:     len(l.notes),
		FromCache: l.fromCache,
		LoadedAt:  l.loadedAt,
	}
	if l.lastErr != nil {
		st.LastError = l.lastErr.Error()
	}
	return st
}
