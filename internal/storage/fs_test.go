package storage

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func tempVault(t *testing.T) (*Dir, string) {
	t.Helper()
	root := t.TempDir()
	d, err := Open(root)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return d, root
}

func TestRead(t *testing.T) {
	d, root := tempVault(t)
	writeFile(t, root, "a/b/c.md", "deep")
	got, err := d.Read("a/b/c.md")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(got) != "deep" {
		t.Errorf("content = %q", got)
	}
}

func TestList(t *testing.T) {
	d, root := tempVault(t)
	writeFile(t, root, "a.md", "a")
	writeFile(t, root, "sub/b.md", "bb")
	writeFile(t, root, "readme.txt", "not md")

	items, err := d.List(".md")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("len = %d, want 2", len(items))
	}
	if items[1].Path != "sub/b.md" || items[1].Name != "b.md" || items[1].Size != 2 {
		t.Errorf("second entry = %+v", items[1])
	}
}

func TestListSkipsDenylisted(t *testing.T) {
	d, root := tempVault(t)
	writeFile(t, root, "keep.md", "k")
	writeFile(t, root, ".git/HEAD.md", "x")
	writeFile(t, root, "node_modules/pkg/readme.md", "x")
	writeFile(t, root, ".dendron/cache.md", "x")
	writeFile(t, root, "notes/.hidden.md", "x")
	writeFile(t, root, "build/out.md", "x")

	items, err := d.List(".md")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(items) != 1 || items[0].Path != "keep.md" {
		t.Errorf("items = %+v, want only keep.md", items)
	}
}

func TestSkipped(t *testing.T) {
	cases := []struct {
		name  string
		isDir bool
		want  bool
	}{
		{".git", true, true},
		{".obsidian", true, true},
		{"notes", true, false},
		{"package.json", false, true},
		{"Thumbs.db", false, true},
		{".env", false, true},
		{"root.md", false, false},
	}
	for _, c := range cases {
		if got := Skipped(c.name, c.isDir); got != c.want {
			t.Errorf("Skipped(%q, %v) = %v, want %v", c.name, c.isDir, got, c.want)
		}
	}
}

func TestTraversalBlocked(t *testing.T) {
	d, _ := tempVault(t)

	cases := []string{
		"../../etc/passwd",
		"../outside.md",
		"/etc/shadow",
	}
	for _, p := range cases {
		if _, err := d.Read(p); err == nil {
			t.Errorf("expected error for path %q", p)
		}
	}
}

func TestOpen_NonExistentDir(t *testing.T) {
	_, err := Open("/tmp/laguz-does-not-exist-" + t.Name())
	if err == nil {
		t.Error("expected error for non-existent dir")
	}
}

func TestOpen_FileNotDir(t *testing.T) {
	f, _ := os.CreateTemp("", "laguz-test-*")
	_ = f.Close()
	defer os.Remove(f.Name())
	_, err := Open(f.Name())
	if err == nil {
		t.Error("expected error when root is a file")
	}
}
