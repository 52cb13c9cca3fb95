// Package source fetches raw vault files from GitHub or a local directory,
// consulting the cache before doing any network or disk work.
package source

import (
	"context"
	"embed"
	"path"

	"github.com/starford/laguz/internal/checksum"
	"github.com/starford/laguz/internal/models"
	"github.com/starford/laguz/internal/progress"
)

// DefaultExtension is the file extension collected when none is configured.
const DefaultExtension = ".md"

// Source is one content-acquisition strategy.
type Source interface {
	// Fetch returns the vault's raw files, reporting stage progress to sink.
	Fetch(ctx context.Context, sink progress.Sink) (*Fetched, error)
	// Origin identifies the files this source produces.
	Origin() string
}

// Fetched is the result of a fetch.
type Fetched struct {
	Files []models.RawFile
	// FromCache is set when Files were served from a validated cache entry.
	FromCache bool
}

//go:embed demo/*.md
var demoFS embed.FS

// Demo notes served by the local strategy when no directory is configured.
var localDemo = []string{"root.md", "welcome.md", "features.md", "transclusion-demo.md"}

func demoFile(embedded, name, origin string) models.RawFile {
	data, err := demoFS.ReadFile(path.Join("demo", embedded))
	if err != nil {
		panic("source: missing embedded demo " + embedded)
	}
	return newRawFile(name, name, string(data), origin)
}

// LocalDemo returns the built-in demo note set.
func LocalDemo() []models.RawFile {
	out := make([]models.RawFile, 0, len(localDemo))
	for _, name := range localDemo {
		out = append(out, demoFile(name, name, models.Local))
	}
	return out
}

// RemoteDemo returns the single document synthesized when nothing could be
// retrieved from a repository.
func RemoteDemo(origin string) models.RawFile {
	return demoFile("remote.md", "demo.md", origin)
}

func newRawFile(name, p, content, origin string) models.RawFile {
	return models.RawFile{
		Name:        name,
		Path:        p,
		Content:     content,
		Size:        int64(len(content)),
		ContentHash: checksum.String(content),
		Origin:      origin,
	}
}
