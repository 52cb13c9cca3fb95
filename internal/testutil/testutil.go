// Package testutil provides shared test helpers for setting up vaults and
// cache databases.
package testutil

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/starford/laguz/internal/cache"
)

// TestStore creates a temporary SQLite cache that is automatically cleaned up.
func TestStore(t *testing.T) *cache.SQLite {
	t.Helper()
	dbFile, err := os.CreateTemp("", "laguz-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	s, err := cache.OpenSQLite(context.Background(), cache.DriverCGo, dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// TestVault creates a temporary vault directory holding files, keyed by
// slash-separated relative path.
func TestVault(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for rel, content := range files {
		WriteFile(t, root, rel, content)
	}
	return root
}

// WriteFile writes content to rel under root, creating parent directories.
func WriteFile(t *testing.T, root, rel, content string) {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}
