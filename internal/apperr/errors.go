// Package apperr defines the error taxonomy shared across the ingestion pipeline.
package apperr

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrAuthRequired      = errors.New("authentication required")
	ErrSourceUnavailable = errors.New("source unavailable")
	ErrRateLimited       = errors.New("rate limited")
	ErrParseFailure      = errors.New("parse failure")
	ErrPoolExhausted     = errors.New("worker pool exhausted")
	ErrCacheUnavailable  = errors.New("cache unavailable")
)

// RateLimitError reports an exhausted upstream quota. It matches ErrRateLimited
// under errors.Is.
type RateLimitError struct {
	Reset time.Time
}

func (e *RateLimitError) Error() string {
	if e.Reset.IsZero() {
		return "GitHub API rate limit exceeded"
	}
	return fmt.Sprintf("GitHub API rate limit exceeded, resets at %s", e.Reset.Format(time.Kitchen))
}

// Is reports whether target is ErrRateLimited.
func (e *RateLimitError) Is(target error) bool {
	return target == ErrRateLimited
}
