// Package cache persists raw files, parsed notes and per-source metadata so
// repeated ingestions can skip network and disk work.
package cache

import (
	"context"

	"github.com/starford/laguz/internal/models"
)

// Store is the persistence boundary of the ingestion pipeline. Reads that
// find nothing return nil results and a nil error.
type Store interface {
	// Init prepares the backing storage. It is safe to call more than once.
	Init(ctx context.Context) error
	// PutFiles replaces the cached files of record's origin and stores record,
	// atomically.
	PutFiles(ctx context.Context, record models.CacheRecord, origin string, files []models.RawFile) error
	// PutNotes replaces the cached notes parsed from origin.
	PutNotes(ctx context.Context, origin string, notes []models.Note) error
	// Files returns the cached files of origin.
	Files(ctx context.Context, origin string) ([]models.RawFile, error)
	// Notes returns the cached notes of origin.
	Notes(ctx context.Context, origin string) ([]models.Note, error)
	// Metadata returns the record stored under key.
	Metadata(ctx context.Context, key string) (*models.CacheRecord, error)
	// Clear drops files, notes and metadata in one step.
	Clear(ctx context.Context) error
	// Close releases the backing storage.
	Close() error
}

// Noop is the store used when no persistent backing is available. Every read
// is a miss and every write is discarded.
type Noop struct{}

var (
	_ Store = Noop{}
	_ Store = (*SQLite)(nil)
)

func (Noop) Init(context.Context) error { return nil }

func (Noop) PutFiles(context.Context, models.CacheRecord, string, []models.RawFile) error {
	return nil
}

func (Noop) PutNotes(context.Context, string, []models.Note) error { return nil }

func (Noop) Files(context.Context, string) ([]models.RawFile, error) { return nil, nil }

func (Noop) Notes(context.Context, string) ([]models.Note, error) { return nil, nil }

func (Noop) Metadata(context.Context, string) (*models.CacheRecord, error) { return nil, nil }

func (Noop) Clear(context.Context) error { return nil }

func (Noop) Close() error { return nil }
