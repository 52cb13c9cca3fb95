package parser

import (
	"reflect"
	"testing"

	"github.com/starford/laguz/internal/models"
)

func TestParseFile_FrontmatterAndBody(t *testing.T) {
	n, err := ParseFile(models.RawFile{
		Name:    "hello.md",
		Path:    "notes/hello.md",
		Content: "---\ntitle: \"Hello\"\ntags: [go, 'laguz', ]\n---\n# Hello\nBody text.\n",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n.Title != "Hello" {
		t.Errorf("title = %q, want %q", n.Title, "Hello")
	}
	if n.Body != "# Hello\nBody text.\n" {
		t.Errorf("body = %q", n.Body)
	}
	tags := n.Frontmatter["tags"]
	if !tags.IsList() || !reflect.DeepEqual(tags.List(), []string{"go", "laguz"}) {
		t.Errorf("tags = %+v, want [go laguz]", tags.List())
	}
	if n.Path != "notes/hello.md" {
		t.Errorf("path = %q", n.Path)
	}
}

func TestParseFrontmatter_ScalarQuotesStripped(t *testing.T) {
	fm := ParseFrontmatter(`desc: "A 'quoted' value"` + "\nurl: https://example.com\n: orphan\nnocolon")
	if got := fm.String("desc"); got != "A quoted value" {
		t.Errorf("desc = %q", got)
	}
	if got := fm.String("url"); got != "https://example.com" {
		t.Errorf("url = %q, want value after first colon", got)
	}
	if len(fm) != 2 {
		t.Errorf("fm = %v, want 2 keys", fm)
	}
}

func TestParseFrontmatter_ArrayRoundTrip(t *testing.T) {
	fm := ParseFrontmatter("k: [a, b, c]")
	if got := fm["k"].List(); !reflect.DeepEqual(got, []string{"a", "b", "c"}) {
		t.Errorf("k = %v", got)
	}
}

func TestSplitFrontmatter_NoBlock(t *testing.T) {
	content := "# Just a heading\nSome text.\n"
	fm, body := SplitFrontmatter(content)
	if len(fm) != 0 {
		t.Errorf("expected empty frontmatter, got %v", fm)
	}
	if body != content {
		t.Errorf("body = %q", body)
	}
}

func TestSplitFrontmatter_UnclosedBlockIsBody(t *testing.T) {
	content := "---\ntitle: x\nno closing delimiter"
	fm, body := SplitFrontmatter(content)
	if len(fm) != 0 || body != content {
		t.Errorf("fm = %v, body = %q", fm, body)
	}
}

func TestSlugAndDerivedTitle(t *testing.T) {
	n, err := ParseFile(models.RawFile{Name: "foo.bar.md", Path: "foo.bar.md", Content: "text"})
	if err != nil {
		t.Fatal(err)
	}
	if n.Slug != "foo.bar" {
		t.Errorf("slug = %q, want foo.bar", n.Slug)
	}
	if n.Title != "Foo › Bar" {
		t.Errorf("title = %q, want %q", n.Title, "Foo › Bar")
	}
}

func TestParseFile_ListTitleFallsBack(t *testing.T) {
	n, _ := ParseFile(models.RawFile{Name: "daily.journal.md", Content: "---\ntitle: [a, b]\n---\nx"})
	if n.Title != "Daily › Journal" {
		t.Errorf("title = %q", n.Title)
	}
}

func TestParseFile_EmptyContentSkipped(t *testing.T) {
	n, err := ParseFile(models.RawFile{Name: "empty.md"})
	if err != nil || n != nil {
		t.Errorf("ParseFile(empty) = %v, %v; want nil, nil", n, err)
	}
}

func TestSlugToTitle_Unicode(t *testing.T) {
	if got := SlugToTitle("élan.x"); got != "Élan › X" {
		t.Errorf("title = %q", got)
	}
}

func TestParseFile_InvalidUTF8Replaced(t *testing.T) {
	n, err := ParseFile(models.RawFile{Name: "caf\xe9.md", Path: "caf\xe9.md", Content: "caf\xe9 \xe9\xe9 body"})
	if err != nil {
		t.Fatalf("ParseFile: %v", err)
	}
	if n.Body != "caf\uFFFD \uFFFD\uFFFD body" {
		t.Errorf("body = %q", n.Body)
	}
	if n.Slug != "caf\uFFFD" || n.Path != "caf\uFFFD.md" {
		t.Errorf("slug = %q, path = %q", n.Slug, n.Path)
	}
}

func TestValidUTF8(t *testing.T) {
	if got := ValidUTF8("plain ü"); got != "plain ü" {
		t.Errorf("valid input changed: %q", got)
	}
	if got := ValidUTF8("a\xff\xfeb"); got != "a\uFFFD\uFFFDb" {
		t.Errorf("ValidUTF8 = %q", got)
	}
}
