package source

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/starford/laguz/internal/apperr"
	"github.com/starford/laguz/internal/cache"
	"github.com/starford/laguz/internal/models"
	"github.com/starford/laguz/internal/progress"
	"github.com/starford/laguz/internal/storage"
)

// Local stage ids.
const (
	StageCheckDirectory = "check-directory"
	StageReadFiles      = "read-files"
	StageProcessFiles   = "process-files"
)

// Session is the directory access granted for a local ingestion. A zero
// Session has no access and yields the demo note set.
type Session struct {
	Root string
}

// Local reads a vault from a directory on disk.
type Local struct {
	session Session
	ext     string
	store   cache.Store
	log     *slog.Logger
	now     func() time.Time
}

// NewLocal creates the local strategy. A nil store disables caching.
func NewLocal(session Session, ext string, store cache.Store, log *slog.Logger) *Local {
	if ext == "" {
		ext = DefaultExtension
	}
	if store == nil {
		store = cache.Noop{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &Local{session: session, ext: ext, store: store, log: log, now: time.Now}
}

// Origin implements Source.
func (l *Local) Origin() string { return models.Local }

// Root returns the session root, empty when no directory is granted.
func (l *Local) Root() string { return l.session.Root }

// Fetch implements Source.
func (l *Local) Fetch(ctx context.Context, sink progress.Sink) (*Fetched, error) {
	t := progress.NewTracker(sink,
		progress.Stage{ID: StageCheckDirectory, Name: "Accessing directory"},
		progress.Stage{ID: StageReadFiles, Name: "Reading file contents", Measured: true},
		progress.Stage{ID: StageProcessFiles, Name: "Processing markdown files"},
	)
	t.Publish()

	t.Start(StageCheckDirectory, "Checking directory access...")
	if l.session.Root == "" {
		t.Complete(StageCheckDirectory, "No directory granted, creating demo content instead")
		t.Complete(StageReadFiles, "File reading skipped for demo")
		t.Start(StageProcessFiles, "Creating demo content...")
		files := LocalDemo()
		t.Complete(StageProcessFiles, fmt.Sprintf("Created %d demo files", len(files)))
		return &Fetched{Files: files}, nil
	}

	dir, err := storage.Open(l.session.Root)
	if err != nil {
		err = fmt.Errorf("local: %w: %w", apperr.ErrSourceUnavailable, err)
		t.Fail(StageCheckDirectory, "Directory is not accessible", err)
		t.FailRemaining(err.Error())
		return nil, err
	}
	t.Complete(StageCheckDirectory, "Accessing directory: "+dir.Root())

	t.Start(StageReadFiles, "Reading directory contents...")
	entries, err := dir.List(l.ext)
	if err != nil {
		err = fmt.Errorf("local: %w: %w", apperr.ErrSourceUnavailable, err)
		t.Fail(StageReadFiles, "Failed to list directory", err)
		t.FailRemaining(err.Error())
		return nil, err
	}

	files := make([]models.RawFile, 0, len(entries))
	for i, e := range entries {
		if err := ctx.Err(); err != nil {
			err = fmt.Errorf("local: %w: %w", apperr.ErrSourceUnavailable, err)
			t.FailRemaining(err.Error())
			return nil, err
		}
		t.Update(StageReadFiles, "Reading "+e.Path+"...", progress.Percent(i, len(entries)))
		data, err := dir.Read(e.Path)
		if err != nil {
			l.log.Warn("local: read file", slog.String("path", e.Path), slog.String("error", err.Error()))
			continue
		}
		files = append(files, newRawFile(e.Name, e.Path, string(data), models.Local))
	}
	t.Complete(StageReadFiles, fmt.Sprintf("Read %d files from directory", len(files)))

	t.Start(StageProcessFiles, "Processing markdown files...")
	record := models.CacheRecord{
		Key:       models.LocalCacheKey,
		Timestamp: l.now(),
		Source:    models.SourceLocal,
		FileCount: len(files),
	}
	if err := l.store.PutFiles(ctx, record, models.Local, files); err != nil {
		l.log.Warn("local: cache files", slog.String("error", err.Error()))
	}
	t.Complete(StageProcessFiles, fmt.Sprintf("Found %d markdown files", len(files)))

	return &Fetched{Files: files}, nil
}
