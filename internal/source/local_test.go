package source

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/starford/laguz/internal/apperr"
	"github.com/starford/laguz/internal/models"
	"github.com/starford/laguz/internal/progress"
	"github.com/starford/laguz/internal/testutil"
)

func TestLocalFetchReadsVault(t *testing.T) {
	root := t.TempDir()
	testutil.WriteFile(t, root, "root.md", "# Root")
	testutil.WriteFile(t, root, "projects/laguz.md", "# Laguz")
	testutil.WriteFile(t, root, "notes.txt", "skip")
	testutil.WriteFile(t, root, ".dendron/cache.md", "skip")
	testutil.WriteFile(t, root, "node_modules/x/readme.md", "skip")

	store := testutil.TestStore(t)
	l := NewLocal(Session{Root: root}, "", store, nil)
	rec := &recorder{}

	got, err := l.Fetch(context.Background(), rec.sink)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(got.Files) != 2 {
		t.Fatalf("got %d files, want 2: %+v", len(got.Files), got.Files)
	}
	if got.Files[0].Path != "projects/laguz.md" || got.Files[0].Name != "laguz.md" || got.Files[0].Origin != models.Local {
		t.Errorf("first file = %+v", got.Files[0])
	}
	if got.Files[1].ContentHash == "" || got.Files[1].Size != int64(len("# Root")) {
		t.Errorf("second file = %+v", got.Files[1])
	}
	for _, task := range rec.last() {
		if task.Status != progress.Completed {
			t.Errorf("task %s = %s, want completed", task.ID, task.Status)
		}
	}

	meta, err := store.Metadata(context.Background(), models.LocalCacheKey)
	if err != nil || meta == nil || meta.FileCount != 2 || meta.Source != models.SourceLocal {
		t.Errorf("metadata = %+v, %v", meta, err)
	}
	cached, _ := store.Files(context.Background(), models.Local)
	if len(cached) != 2 {
		t.Errorf("cached %d files, want 2", len(cached))
	}
}

func TestLocalFetchWithoutSessionServesDemo(t *testing.T) {
	l := NewLocal(Session{}, "", nil, nil)
	rec := &recorder{}

	got, err := l.Fetch(context.Background(), rec.sink)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	want := []string{"root.md", "welcome.md", "features.md", "transclusion-demo.md"}
	if len(got.Files) != len(want) {
		t.Fatalf("got %d demo files, want %d", len(got.Files), len(want))
	}
	for i, name := range want {
		if got.Files[i].Name != name || got.Files[i].Content == "" {
			t.Errorf("demo[%d] = %q (%d bytes)", i, got.Files[i].Name, len(got.Files[i].Content))
		}
	}
	if findTask(rec.last(), StageReadFiles).Status != progress.Completed {
		t.Error("read-files should be completed for demo")
	}
}

func TestLocalFetchMissingDirectory(t *testing.T) {
	l := NewLocal(Session{Root: filepath.Join(t.TempDir(), "gone")}, "", nil, nil)
	rec := &recorder{}

	_, err := l.Fetch(context.Background(), rec.sink)
	if !errors.Is(err, apperr.ErrSourceUnavailable) {
		t.Fatalf("err = %v, want source unavailable", err)
	}
	for _, task := range rec.last() {
		if task.Status != progress.Error {
			t.Errorf("task %s = %s, want error", task.ID, task.Status)
		}
	}
}
