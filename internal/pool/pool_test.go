package pool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"testing"

	"github.com/starford/laguz/internal/apperr"
	"github.com/starford/laguz/internal/models"
	"github.com/starford/laguz/internal/parser"
)

func sampleFiles(n int) []models.RawFile {
	files := make([]models.RawFile, 0, n)
	for i := 0; i < n; i++ {
		name := fmt.Sprintf("proj.n%02d.md", i)
		var content string
		switch i % 4 {
		case 0:
			content = fmt.Sprintf("---\ntitle: \"Note %d\"\ntags: [a, 'b', ]\n---\nbody %d", i, i)
		case 1:
			content = fmt.Sprintf("# Plain %d\n\n[[proj.n00]]", i)
		case 2:
			content = "---\nempty: []\n---\n"
		case 3:
			content = "" // no note
		}
		files = append(files, models.RawFile{Name: name, Path: "notes/" + name, Content: content})
	}
	return files
}

func panicOn(name string) ParseFunc {
	return func(f models.RawFile) (*models.Note, error) {
		if name == "" || f.Name == name {
			panic("boom: " + f.Name)
		}
		return parser.ParseFile(f)
	}
}

func TestParseAllMatchesSequential(t *testing.T) {
	files := append(sampleFiles(25),
		models.RawFile{Name: "latin1.md", Path: "notes/latin1.md", Content: "caf\xe9 \xe9\xe9 body"},
		models.RawFile{Name: "bad\xff.md", Path: "notes/bad\xff.md", Content: "---\ntitle: \xfe\n---\nx"},
	)
	p := New(3, nil, nil)
	defer p.Close()

	pooled, err := p.ParseAll(context.Background(), files, nil)
	if err != nil {
		t.Fatalf("ParseAll: %v", err)
	}
	seq, err := ParseSequential(context.Background(), files, nil, nil)
	if err != nil {
		t.Fatalf("ParseSequential: %v", err)
	}
	if !reflect.DeepEqual(pooled, seq) {
		t.Fatalf("pool and sequential output differ:\n%+v\n%+v", pooled, seq)
	}

	var want []models.Note
	for _, f := range files {
		if n, _ := parser.ParseFile(f); n != nil {
			want = append(want, *n)
		}
	}
	if !reflect.DeepEqual(pooled, want) {
		t.Errorf("pool output differs from direct parse")
	}
	if len(pooled) != 21 {
		t.Errorf("got %d notes, want 21 (empty files yield none)", len(pooled))
	}
}

func TestParseAllReportsPerBatch(t *testing.T) {
	p := New(2, nil, nil)
	defer p.Close()

	var calls []string
	_, err := p.ParseAll(context.Background(), sampleFiles(25), func(done, total int) {
		calls = append(calls, fmt.Sprintf("%d/%d", done, total))
	})
	if err != nil {
		t.Fatalf("ParseAll: %v", err)
	}
	if got := strings.Join(calls, " "); got != "10/25 20/25 25/25" {
		t.Errorf("progress = %q", got)
	}
}

func TestWorkerCrashEvictsWorker(t *testing.T) {
	p := New(2, panicOn("boom.md"), nil)
	defer p.Close()

	_, err := p.Parse(context.Background(), models.RawFile{Name: "boom.md", Content: "x"})
	if !errors.Is(err, apperr.ErrParseFailure) {
		t.Fatalf("err = %v, want parse failure", err)
	}
	if n := p.Alive(); n != 1 {
		t.Fatalf("alive = %d, want 1", n)
	}

	note, err := p.Parse(context.Background(), models.RawFile{Name: "ok.md", Content: "fine"})
	if err != nil || note == nil || note.Slug != "ok" {
		t.Errorf("surviving worker: note=%+v err=%v", note, err)
	}
}

func TestPoolExhausted(t *testing.T) {
	p := New(1, panicOn(""), nil)
	defer p.Close()

	if _, err := p.Parse(context.Background(), models.RawFile{Name: "a.md", Content: "a"}); !errors.Is(err, apperr.ErrParseFailure) {
		t.Fatalf("first err = %v, want parse failure", err)
	}
	if _, err := p.Parse(context.Background(), models.RawFile{Name: "b.md", Content: "b"}); !errors.Is(err, apperr.ErrPoolExhausted) {
		t.Fatalf("second err = %v, want pool exhausted", err)
	}
}

func TestParseAllAbortsWhenExhausted(t *testing.T) {
	p := New(1, panicOn(""), nil)
	defer p.Close()

	notes, err := p.ParseAll(context.Background(), sampleFiles(10), nil)
	if !errors.Is(err, apperr.ErrPoolExhausted) {
		t.Fatalf("err = %v, want pool exhausted", err)
	}
	if notes != nil {
		t.Errorf("partial results returned: %d notes", len(notes))
	}
}

func TestParseAllRetriesFailedTaskOnCaller(t *testing.T) {
	files := sampleFiles(5)
	files[2] = models.RawFile{Name: "boom.md", Path: "boom.md", Content: "recovered"}

	p := New(3, panicOn("boom.md"), nil)
	defer p.Close()

	got, err := p.ParseAll(context.Background(), files, nil)
	if err != nil {
		t.Fatalf("ParseAll: %v", err)
	}
	want, _ := ParseSequential(context.Background(), files, nil, nil)
	if !reflect.DeepEqual(got, want) {
		t.Errorf("retried output differs:\n%+v\n%+v", got, want)
	}
	if p.Alive() != 2 {
		t.Errorf("alive = %d, want 2", p.Alive())
	}
}

func TestHandleMessageRejectsMalformed(t *testing.T) {
	cases := []struct {
		name string
		msg  string
		want string
	}{
		{"not json", `not json`, "malformed message"},
		{"no file", `{"taskId":"t1"}`, "missing file"},
		{"no name", `{"taskId":"t1","file":{"content":"x"}}`, "missing name"},
		{"no content", `{"taskId":"t1","file":{"name":"a.md"}}`, "missing content"},
		{"content not string", `{"taskId":"t1","file":{"name":"a.md","content":5}}`, "malformed message"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			var resp response
			if err := json.Unmarshal(handleMessage([]byte(c.msg), parser.ParseFile), &resp); err != nil {
				t.Fatalf("response is not JSON: %v", err)
			}
			if resp.Success || !strings.Contains(resp.Error, c.want) {
				t.Errorf("response = %+v, want error containing %q", resp, c.want)
			}
		})
	}
}

func TestHandleMessageParses(t *testing.T) {
	msg, err := encodeRequest("t1", models.RawFile{Name: "a.b.md", Path: "a.b.md", Content: "hello"})
	if err != nil {
		t.Fatal(err)
	}
	var resp response
	if err := json.Unmarshal(handleMessage(msg, parser.ParseFile), &resp); err != nil {
		t.Fatal(err)
	}
	if !resp.Success || resp.TaskID != "t1" || resp.Note == nil || resp.Note.Title != "A › B" {
		t.Errorf("response = %+v", resp)
	}
}

func TestClosedPoolRejects(t *testing.T) {
	p := New(1, nil, nil)
	p.Close()
	p.Close()
	if _, err := p.Parse(context.Background(), models.RawFile{Name: "a.md", Content: "a"}); !errors.Is(err, ErrClosed) {
		t.Errorf("err = %v, want ErrClosed", err)
	}
	if p.Alive() != 0 {
		t.Errorf("alive = %d after close", p.Alive())
	}
}
