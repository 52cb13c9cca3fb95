package resolver

import (
	"reflect"
	"testing"
)

const abc = "# A\nalpha\n## B\nbeta\n# C\ngamma"

func TestExtractSection(t *testing.T) {
	got, ok := ExtractSection(abc, "B")
	if !ok {
		t.Fatal("header B not found")
	}
	if got != "## B\nbeta" {
		t.Errorf("section = %q, want %q", got, "## B\nbeta")
	}

	got, ok = ExtractSection(abc, "A")
	if !ok || got != "# A\nalpha\n## B\nbeta" {
		t.Errorf("section A = %q, %v", got, ok)
	}

	got, ok = ExtractSection(abc, "c")
	if !ok || got != "# C\ngamma" {
		t.Errorf("section C = %q, %v", got, ok)
	}
}

func TestExtractSectionMissing(t *testing.T) {
	if _, ok := ExtractSection(abc, "Z"); ok {
		t.Fatal("expected missing header")
	}
	want := []string{"# A", "  ## B", "# C"}
	if got := HeadingOutline(abc); !reflect.DeepEqual(got, want) {
		t.Errorf("outline = %q, want %q", got, want)
	}
	if got := HeadingOutline("no headings"); !reflect.DeepEqual(got, []string{"No headers found"}) {
		t.Errorf("outline = %q", got)
	}
}

func TestExtractSectionFlexibleMatch(t *testing.T) {
	body := "## Getting Started!\nsteps\n## Next"
	for _, header := range []string{"getting-started", "Getting Started", "  GETTING   started "} {
		got, ok := ExtractSection(body, header)
		if !ok || got != "## Getting Started!\nsteps" {
			t.Errorf("ExtractSection(%q) = %q, %v", header, got, ok)
		}
	}
}

func TestHeadingsSkipsTagLinesAndCode(t *testing.T) {
	body := "# Real\n#tag #other\n# #not-a-heading\n```\n# inside code\n```\n## After"
	var got []string
	for _, h := range Headings(body) {
		got = append(got, h.Text)
	}
	want := []string{"Real", "After"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("headings = %q, want %q", got, want)
	}
}

func TestNormalizeHeader(t *testing.T) {
	cases := map[string]string{
		"Hello, World!":    "hello-world",
		"  a - b  ":        "a-b",
		"Markdown Support": "markdown-support",
		"don't stop":       "dont-stop",
		"snake_case":       "snake_case",
		"--edge--":         "edge",
		"Über Café":        "über-café",
	}
	for in, want := range cases {
		if got := NormalizeHeader(in); got != want {
			t.Errorf("NormalizeHeader(%q) = %q, want %q", in, got, want)
		}
	}
}
