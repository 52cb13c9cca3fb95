// Package storage gives read-only access to a vault directory on disk.
package storage

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Directories never descended into.
var skipDirs = map[string]bool{
	".git":         true,
	"node_modules": true,
	".vscode":      true,
	".idea":        true,
	"dist":         true,
	"build":        true,
	".next":        true,
	".dendron":     true,
	"__pycache__":  true,
}

// Files never listed regardless of extension.
var skipFiles = map[string]bool{
	".dendron.port":       true,
	".dendron.ws":         true,
	".dendron.cache.json": true,
	".gitignore":          true,
	".gitattributes":      true,
	"package.json":        true,
	"package-lock.json":   true,
	"yarn.lock":           true,
	"tsconfig.json":       true,
	".DS_Store":           true,
	"Thumbs.db":           true,
}

// Entry describes one listed file.
type Entry struct {
	Name string // base name
	Path string // slash-separated, relative to the root
	Size int64
}

// Dir is a vault rooted at an existing directory.
type Dir struct {
	root string // absolute path to vault directory
}

// Open creates a Dir rooted at the given directory.
// The directory must already exist.
func Open(root string) (*Dir, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("storage: resolve root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("storage: stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("storage: root is not a directory: %s", abs)
	}
	return &Dir{root: abs}, nil
}

// Root returns the absolute root path.
func (d *Dir) Root() string { return d.root }

// Skipped reports whether a directory or file name is excluded from listing.
func Skipped(name string, isDir bool) bool {
	if isDir {
		return skipDirs[name] || strings.HasPrefix(name, ".")
	}
	return skipFiles[name] || strings.HasPrefix(name, ".")
}

// safePath resolves a relative path against the vault root and rejects
// any result that escapes it.
func (d *Dir) safePath(rel string) (string, error) {
	if rel == "" {
		return d.root, nil
	}
	cleaned := filepath.Clean(filepath.FromSlash(rel))
	if filepath.IsAbs(cleaned) {
		return "", fmt.Errorf("storage: absolute paths not allowed: %s", rel)
	}
	abs, err := filepath.Abs(filepath.Join(d.root, cleaned))
	if err != nil {
		return "", fmt.Errorf("storage: resolve path: %w", err)
	}
	if !strings.HasPrefix(abs, d.root+string(os.PathSeparator)) && abs != d.root {
		return "", fmt.Errorf("storage: path escapes vault root: %s", rel)
	}
	return abs, nil
}

// List walks the root and returns every non-skipped file ending in ext,
// sorted by path.
func (d *Dir) List(ext string) ([]Entry, error) {
	var out []Entry
	err := filepath.WalkDir(d.root, func(p string, e fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if p == d.root {
			return nil
		}
		if e.IsDir() {
			if Skipped(e.Name(), true) {
				return filepath.SkipDir
			}
			return nil
		}
		if Skipped(e.Name(), false) || !strings.HasSuffix(e.Name(), ext) {
			return nil
		}
		info, err := e.Info()
		if err != nil {
			return err
		}
		rel, _ := filepath.Rel(d.root, p)
		out = append(out, Entry{
			Name: e.Name(),
			Path: filepath.ToSlash(rel),
			Size: info.Size(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("storage: list: %w", err)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

// Read returns the raw bytes of a vault file.
func (d *Dir) Read(path string) ([]byte, error) {
	abs, err := d.safePath(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("storage: read %s: %w", path, err)
	}
	return data, nil
}
