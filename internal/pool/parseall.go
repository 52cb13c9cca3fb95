package pool

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/starford/laguz/internal/apperr"
	"github.com/starford/laguz/internal/models"
	"github.com/starford/laguz/internal/parser"
)

// BatchSize is the number of files submitted to the pool at once.
const BatchSize = 10

// Progress receives the number of files handled so far.
type Progress func(done, total int)

// ParseAll parses files in batches on p, preserving input order. Files whose
// task fails are parsed again on the caller. ErrPoolExhausted aborts the run.
func (p *Pool) ParseAll(ctx context.Context, files []models.RawFile, progress Progress) ([]models.Note, error) {
	total := len(files)
	parsed := make([]*models.Note, total)

	for start := 0; start < total; start += BatchSize {
		end := min(start+BatchSize, total)
		errs := make([]error, end-start)

		var wg sync.WaitGroup
		for i := start; i < end; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				parsed[i], errs[i-start] = p.Parse(ctx, files[i])
			}()
		}
		wg.Wait()

		for j, err := range errs {
			if err == nil {
				continue
			}
			if errors.Is(err, apperr.ErrPoolExhausted) {
				return nil, err
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			f := files[start+j]
			p.log.Warn("pool: task failed, parsing on caller",
				slog.String("path", f.Path),
				slog.String("error", err.Error()))
			parsed[start+j] = retry(p.log, f)
		}

		if progress != nil {
			progress(end, total)
		}
	}
	return collect(parsed), nil
}

// ParseSequential parses every file on the caller.
func ParseSequential(ctx context.Context, files []models.RawFile, progress Progress, log *slog.Logger) ([]models.Note, error) {
	if log == nil {
		log = slog.Default()
	}
	parsed := make([]*models.Note, len(files))
	for i, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		parsed[i] = retry(log, f)
		if progress != nil {
			progress(i+1, len(files))
		}
	}
	return collect(parsed), nil
}

func retry(log *slog.Logger, f models.RawFile) *models.Note {
	note, err := parser.ParseFile(f)
	if err != nil {
		log.Warn("pool: parse file", slog.String("path", f.Path), slog.String("error", err.Error()))
		return nil
	}
	return note
}

func collect(parsed []*models.Note) []models.Note {
	notes := make([]models.Note, 0, len(parsed))
	for _, n := range parsed {
		if n != nil {
			notes = append(notes, *n)
		}
	}
	return notes
}
