package pipeline

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/starford/laguz/internal/apperr"
	"github.com/starford/laguz/internal/models"
	"github.com/starford/laguz/internal/progress"
	"github.com/starford/laguz/internal/source"
	"github.com/starford/laguz/internal/testutil"
)

// fakeSource serves a fixed file set through a one-stage tracker.
type fakeSource struct {
	files     []models.RawFile
	fromCache bool
	err       error
	fetches   int
}

func (f *fakeSource) Origin() string { return "fake" }

func (f *fakeSource) Fetch(_ context.Context, sink progress.Sink) (*source.Fetched, error) {
	f.fetches++
	t := progress.NewTracker(sink,
		progress.Stage{ID: "fetch", Name: "Fetching"},
		progress.Stage{ID: "store", Name: "Storing"},
	)
	t.Publish()
	t.Start("fetch", "Fetching...")
	if f.err != nil {
		t.Fail("fetch", "Fetch failed", f.err)
		t.FailRemaining("Cancelled due to previous error")
		return nil, f.err
	}
	t.Complete("fetch", "Fetched")
	t.Complete("store", "Stored")
	return &source.Fetched{Files: append([]models.RawFile(nil), f.files...), FromCache: f.fromCache}, nil
}

func vault() []models.RawFile {
	return []models.RawFile{
		{Name: "zeta.md", Path: "zeta.md", Content: "# Zeta\n\n[[alpha]]"},
		{Name: "alpha.md", Path: "alpha.md", Content: "---\ntitle: alpha\n---\nfirst"},
		{Name: "beta.md", Path: "beta.md", Content: "---\ntitle: Beta\n---\n![[alpha]]"},
		{Name: "empty.md", Path: "empty.md"},
	}
}

func slugs(notes []models.Note) []string {
	out := make([]string, len(notes))
	for i, n := range notes {
		out[i] = n.Slug
	}
	return out
}

func ids(tasks []progress.StageTask) []string {
	out := make([]string, len(tasks))
	for i, task := range tasks {
		out[i] = task.ID
	}
	return out
}

func TestRunParsesSortsAndCaches(t *testing.T) {
	store := testutil.TestStore(t)
	p := New(store, Options{Workers: 2}, nil)

	var snaps [][]progress.StageTask
	res, err := p.Run(context.Background(), &fakeSource{files: vault()}, func(tasks []progress.StageTask) {
		snaps = append(snaps, tasks)
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got, want := slugs(res.Notes), []string{"alpha", "beta", "zeta"}; !reflect.DeepEqual(got, want) {
		t.Errorf("slugs = %v, want %v", got, want)
	}
	if res.FromCache {
		t.Error("FromCache should be false on a fresh parse")
	}

	want := []string{"fetch", "store", StageCheckNotesCache, StageInitWorkers, StageParseFiles, StageOrganizeNotes}
	if got := ids(res.Tasks); !reflect.DeepEqual(got, want) {
		t.Errorf("task ids = %v, want %v", got, want)
	}
	for _, task := range res.Tasks {
		if task.Status != progress.Completed {
			t.Errorf("task %s status = %s, want completed", task.ID, task.Status)
		}
	}
	if len(snaps) == 0 {
		t.Fatal("sink received no snapshots")
	}

	cached, err := store.Notes(context.Background(), "fake")
	if err != nil {
		t.Fatalf("Notes: %v", err)
	}
	if got := slugs(cached); !reflect.DeepEqual(got, []string{"alpha", "beta", "zeta"}) {
		t.Errorf("cached slugs = %v", got)
	}
}

func TestRunDropsDuplicateSlugs(t *testing.T) {
	store := testutil.TestStore(t)
	p := New(store, Options{Workers: 2}, nil)
	src := &fakeSource{files: []models.RawFile{
		{Name: "foo.md", Path: "b/foo.md", Content: "from b"},
		{Name: "foo.md", Path: "a/foo.md", Content: "from a"},
		{Name: "bar.md", Path: "bar.md", Content: "bar"},
	}}

	res, err := p.Run(context.Background(), src, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got, want := slugs(res.Notes), []string{"bar", "foo"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("slugs = %v, want %v", got, want)
	}
	for _, n := range res.Notes {
		if n.Slug == "foo" && n.Path != "a/foo.md" {
			t.Errorf("kept %s, want a/foo.md", n.Path)
		}
	}

	cached, err := store.Notes(context.Background(), "fake")
	if err != nil {
		t.Fatalf("Notes: %v", err)
	}
	if !reflect.DeepEqual(cached, res.Notes) {
		t.Errorf("cached notes = %+v, want %+v", cached, res.Notes)
	}
}

func TestDedupeSlugs(t *testing.T) {
	notes := []models.Note{{Slug: "x", Path: "x.md"}, {Slug: "y", Path: "y.md"}}
	kept, dropped := DedupeSlugs(notes)
	if len(kept) != 2 || dropped != nil {
		t.Errorf("unique set changed: kept=%v dropped=%v", kept, dropped)
	}

	notes = append(notes, models.Note{Slug: "x", Path: "sub/x.md"})
	kept, dropped = DedupeSlugs(notes)
	if got := slugs(kept); !reflect.DeepEqual(got, []string{"x", "y"}) {
		t.Errorf("kept = %v", got)
	}
	if !reflect.DeepEqual(dropped, []string{"sub/x.md"}) {
		t.Errorf("dropped = %v, want [sub/x.md]", dropped)
	}
}

func TestRunReusesCachedNotes(t *testing.T) {
	store := testutil.TestStore(t)
	p := New(store, Options{Sequential: true}, nil)
	ctx := context.Background()

	if _, err := p.Run(ctx, &fakeSource{files: vault()}, nil); err != nil {
		t.Fatalf("first Run: %v", err)
	}

	// Files served from cache, but with content that would parse differently.
	src := &fakeSource{files: []models.RawFile{{Name: "other.md", Path: "other.md", Content: "x"}}, fromCache: true}
	res, err := p.Run(ctx, src, nil)
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if !res.FromCache {
		t.Error("FromCache should be true")
	}
	if got := slugs(res.Notes); !reflect.DeepEqual(got, []string{"alpha", "beta", "zeta"}) {
		t.Errorf("slugs = %v, want cached notes", got)
	}
	for _, task := range res.Tasks[2:] {
		if task.Status != progress.Completed {
			t.Errorf("task %s status = %s", task.ID, task.Status)
		}
	}
}

func TestRunParsesWhenNotesCacheEmpty(t *testing.T) {
	p := New(testutil.TestStore(t), Options{Sequential: true}, nil)
	res, err := p.Run(context.Background(), &fakeSource{files: vault(), fromCache: true}, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.FromCache {
		t.Error("FromCache should be false when notes had to be parsed")
	}
	if len(res.Notes) != 3 {
		t.Errorf("notes = %d, want 3", len(res.Notes))
	}
}

func TestRunSequentialMatchesPool(t *testing.T) {
	ctx := context.Background()
	seq, err := New(nil, Options{Sequential: true}, nil).Run(ctx, &fakeSource{files: vault()}, nil)
	if err != nil {
		t.Fatalf("sequential Run: %v", err)
	}
	par, err := New(nil, Options{Workers: 3}, nil).Run(ctx, &fakeSource{files: vault()}, nil)
	if err != nil {
		t.Fatalf("pool Run: %v", err)
	}
	if !reflect.DeepEqual(seq.Notes, par.Notes) {
		t.Errorf("pool notes differ from sequential:\n%+v\n%+v", par.Notes, seq.Notes)
	}
}

func TestRunSourceErrorCarriesSnapshot(t *testing.T) {
	p := New(nil, Options{}, nil)
	_, err := p.Run(context.Background(), &fakeSource{err: apperr.ErrNotFound}, nil)

	var perr *Error
	if !errors.As(err, &perr) {
		t.Fatalf("err = %v, want *Error", err)
	}
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
	if perr.Stage != "fetch" {
		t.Errorf("Stage = %q, want fetch", perr.Stage)
	}
	for _, task := range perr.Tasks {
		if task.Status != progress.Error {
			t.Errorf("task %s status = %s, want error", task.ID, task.Status)
		}
	}
}

func TestSortNotes(t *testing.T) {
	notes := []models.Note{
		{Slug: "c", Title: "beta"},
		{Slug: "b", Title: "Alpha"},
		{Slug: "a", Title: "Alpha"},
		{Slug: "d", Title: "alpha"},
	}
	SortNotes(notes)
	if got, want := slugs(notes), []string{"a", "b", "d", "c"}; !reflect.DeepEqual(got, want) {
		t.Errorf("order = %v, want %v", got, want)
	}
}
