// Package watch reloads a local vault when its files change on disk.
package watch

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/laguz/internal/source"
	"github.com/starford/laguz/internal/storage"
)

// DefaultDebounce is the quiet period after the last change before reloading.
const DefaultDebounce = 300 * time.Millisecond

// Reloader re-ingests the vault.
type Reloader interface {
	Reload(ctx context.Context) error
}

// EventCallback is called for every relevant file change. op is one of
// "created", "updated", "deleted".
type EventCallback func(op, path string)

// Options configures Watch.
type Options struct {
	Root      string
	Extension string // default source.DefaultExtension
	Debounce  time.Duration
	Logger    *slog.Logger
	OnEvent   EventCallback
}

// Watch starts an fsnotify watcher on opts.Root and calls r.Reload once
// changes settle, until ctx is cancelled. Directories created at runtime are
// added to the watch list. Skipped directories are never watched.
func Watch(ctx context.Context, r Reloader, opts Options) error {
	if opts.Extension == "" {
		opts.Extension = source.DefaultExtension
	}
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := addDirsRecursive(w, opts.Root); err != nil {
		return err
	}

	logger.Info("watcher: started", slog.String("root", opts.Root))

	var reloadTimer *time.Timer
	var reloadCh <-chan time.Time

	scheduleReload := func() {
		if reloadTimer == nil {
			reloadTimer = time.NewTimer(opts.Debounce)
			reloadCh = reloadTimer.C
		} else {
			reloadTimer.Reset(opts.Debounce)
		}
	}

	notify := func(op, rel string) {
		logger.Debug("watcher: change", slog.String("path", rel), slog.String("op", op))
		if opts.OnEvent != nil {
			opts.OnEvent(op, rel)
		}
		scheduleReload()
	}

	for {
		select {
		case <-ctx.Done():
			if reloadTimer != nil {
				reloadTimer.Stop()
			}
			logger.Info("watcher: stopped")
			return nil

		case <-reloadCh:
			if err := r.Reload(ctx); err != nil {
				logger.Warn("watcher: reload failed", slog.String("error", err.Error()))
			}

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}

			absPath := ev.Name
			rel, relErr := filepath.Rel(opts.Root, absPath)
			if relErr != nil || ignored(rel) {
				continue
			}
			rel = filepath.ToSlash(rel)

			if ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(absPath); statErr == nil && info.IsDir() {
					if storage.Skipped(info.Name(), true) {
						continue
					}
					if addErr := addDirsRecursive(w, absPath); addErr != nil {
						logger.Warn("watcher: add new dir failed",
							slog.String("path", absPath),
							slog.String("error", addErr.Error()))
					} else {
						logger.Debug("watcher: watching new dir", slog.String("path", absPath))
					}
					// Files may land in the directory before it is watched.
					scheduleReload()
					continue
				}
			}

			if !strings.HasSuffix(absPath, opts.Extension) {
				continue
			}

			switch {
			case ev.Op&fsnotify.Create != 0:
				notify("created", rel)
			case ev.Op&fsnotify.Write != 0:
				notify("updated", rel)
			case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
				// Rename fires on the old path; the new one arrives as Create.
				notify("deleted", rel)
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

// ignored reports whether any segment of rel is skipped during ingestion.
func ignored(rel string) bool {
	parts := strings.Split(filepath.ToSlash(rel), "/")
	for i, part := range parts {
		if storage.Skipped(part, i < len(parts)-1) {
			return true
		}
	}
	return false
}

// addDirsRecursive adds root and its non-skipped subdirectories to the watcher.
func addDirsRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && storage.Skipped(d.Name(), true) {
			return filepath.SkipDir
		}
		return w.Add(path)
	})
}
