// Package pipeline runs ingestion end to end: fetch raw files, parse them into
// notes, order and persist the result.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/starford/laguz/internal/cache"
	"github.com/starford/laguz/internal/models"
	"github.com/starford/laguz/internal/pool"
	"github.com/starford/laguz/internal/progress"
	"github.com/starford/laguz/internal/source"
)

// Parse stage ids.
const (
	StageCheckNotesCache = "check-notes-cache"
	StageInitWorkers     = "init-workers"
	StageParseFiles      = "parse-files"
	StageOrganizeNotes   = "organize-notes"
)

// Error is a pipeline-level failure. Tasks is the last progress snapshot,
// with every unfinished task marked as error.
type Error struct {
	Stage string
	Err   error
	Tasks []progress.StageTask
}

func (e *Error) Error() string {
	return fmt.Sprintf("pipeline: %s: %v", e.Stage, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Result is the output of a successful run.
type Result struct {
	Notes []models.Note
	// FromCache is set when the notes were reused from the cache.
	FromCache bool
	Tasks     []progress.StageTask
}

// Options configures parsing.
type Options struct {
	Workers    int  // 0 selects pool.DefaultWorkers
	Sequential bool // parse on the caller goroutine
}

// Pipeline is stateless between runs apart from its cache.
type Pipeline struct {
	store cache.Store
	opts  Options
	log   *slog.Logger
}

// New creates a pipeline. A nil store disables caching.
func New(store cache.Store, opts Options, log *slog.Logger) *Pipeline {
	if store == nil {
		store = cache.Noop{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &Pipeline{store: store, opts: opts, log: log}
}

// Run ingests src, reporting merged source and parse progress to sink.
func (p *Pipeline) Run(ctx context.Context, src source.Source, sink progress.Sink) (*Result, error) {
	board := progress.NewBoard(sink)

	fetched, err := src.Fetch(ctx, board.Phase())
	if err != nil {
		tasks := board.Snapshot()
		return nil, &Error{Stage: failedStage(tasks, "source"), Err: err, Tasks: tasks}
	}
	p.log.Debug("pipeline: fetched files",
		slog.String("origin", src.Origin()),
		slog.Int("files", len(fetched.Files)),
		slog.Bool("from_cache", fetched.FromCache))

	t := progress.NewTracker(board.Phase(),
		progress.Stage{ID: StageCheckNotesCache, Name: "Checking notes cache"},
		progress.Stage{ID: StageInitWorkers, Name: "Initializing workers"},
		progress.Stage{ID: StageParseFiles, Name: "Parsing markdown files", Measured: true},
		progress.Stage{ID: StageOrganizeNotes, Name: "Organizing note hierarchy"},
	)
	t.Publish()

	t.Start(StageCheckNotesCache, "Checking for cached notes...")
	if fetched.FromCache {
		notes, err := p.store.Notes(ctx, src.Origin())
		if err != nil {
			p.log.Warn("pipeline: read cached notes", slog.String("error", err.Error()))
		}
		if len(notes) > 0 {
			t.Complete(StageCheckNotesCache, fmt.Sprintf("Found %d cached notes", len(notes)))
			t.CompleteRemaining("Skipped (using cache)")
			return &Result{Notes: notes, FromCache: true, Tasks: board.Snapshot()}, nil
		}
	}
	t.Complete(StageCheckNotesCache, "No cached notes found, parsing files")

	notes, err := p.parse(ctx, fetched.Files, t)
	if err != nil {
		t.Fail(StageParseFiles, "Parsing aborted", err)
		t.FailRemaining("Cancelled due to previous error")
		return nil, &Error{Stage: StageParseFiles, Err: err, Tasks: board.Snapshot()}
	}
	t.Complete(StageParseFiles, fmt.Sprintf("Parsed %d notes", len(notes)))

	t.Start(StageOrganizeNotes, "Building note hierarchy...")
	notes, dropped := DedupeSlugs(notes)
	if len(dropped) > 0 {
		p.log.Warn("pipeline: duplicate slugs, keeping first path",
			slog.String("origin", src.Origin()),
			slog.Any("dropped", dropped))
	}
	SortNotes(notes)
	if err := p.store.PutNotes(ctx, src.Origin(), notes); err != nil {
		p.log.Warn("pipeline: cache notes", slog.String("error", err.Error()))
	}
	t.Complete(StageOrganizeNotes, fmt.Sprintf("Organized %d notes", len(notes)))

	p.log.Info("pipeline: run complete", slog.String("origin", src.Origin()), slog.Int("notes", len(notes)))
	return &Result{Notes: notes, Tasks: board.Snapshot()}, nil
}

func (p *Pipeline) parse(ctx context.Context, files []models.RawFile, t *progress.Tracker) ([]models.Note, error) {
	report := func(done, total int) {
		t.Update(StageParseFiles, fmt.Sprintf("Parsed %d of %d files", done, total), progress.Percent(done, total))
	}

	t.Start(StageInitWorkers, "Setting up parallel processing...")
	if p.opts.Sequential {
		t.Complete(StageInitWorkers, "Using caller goroutine (workers disabled)")
		t.Start(StageParseFiles, "Starting sequential parsing...")
		return pool.ParseSequential(ctx, files, report, p.log)
	}

	pl := pool.New(p.opts.Workers, nil, p.log)
	defer pl.Close()
	t.Complete(StageInitWorkers, fmt.Sprintf("Initialized %d workers for parallel processing", pl.Alive()))
	t.Start(StageParseFiles, "Starting parallel parsing...")
	return pl.ParseAll(ctx, files, report)
}

// DedupeSlugs keeps one note per slug, the one with the smallest path, and
// returns the paths of the notes it dropped.
func DedupeSlugs(notes []models.Note) ([]models.Note, []string) {
	keep := make(map[string]int, len(notes))
	for i, n := range notes {
		if j, ok := keep[n.Slug]; !ok || n.Path < notes[j].Path {
			keep[n.Slug] = i
		}
	}
	if len(keep) == len(notes) {
		return notes, nil
	}

	kept := make([]models.Note, 0, len(keep))
	var dropped []string
	for i, n := range notes {
		if keep[n.Slug] == i {
			kept = append(kept, n)
		} else {
			dropped = append(dropped, n.Path)
		}
	}
	return kept, dropped
}

// SortNotes orders notes by title, case-insensitively, then by slug.
func SortNotes(notes []models.Note) {
	slices.SortStableFunc(notes, func(a, b models.Note) int {
		if c := strings.Compare(strings.ToLower(a.Title), strings.ToLower(b.Title)); c != 0 {
			return c
		}
		if c := strings.Compare(a.Title, b.Title); c != 0 {
			return c
		}
		return strings.Compare(a.Slug, b.Slug)
	})
}

// failedStage returns the first task in error, which is the stage that
// failed; later ones were cancelled.
func failedStage(tasks []progress.StageTask, fallback string) string {
	for _, task := range tasks {
		if task.Status == progress.Error {
			return task.ID
		}
	}
	return fallback
}
