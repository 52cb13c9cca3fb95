package api

import (
	"context"

	"github.com/starford/laguz/internal/models"
	"github.com/starford/laguz/internal/pipeline"
	"github.com/starford/laguz/internal/progress"
	"github.com/starford/laguz/internal/resolver"
)

// Vault is the session state the API reads from. *pipeline.Library
// implements it.
type Vault interface {
	Notes() []models.Note
	Note(slug string) (models.Note, error)
	Render(slug string) (models.Note, resolver.Rendered, error)
	Backlinks(slug string) ([]models.Note, error)
	Search(query string, limit int) []models.Note
	Progress() []progress.StageTask
	Status() pipeline.Status
	Reload(ctx context.Context) error
	Clear(ctx context.Context) error
}

var _ Vault = (*pipeline.Library)(nil)
