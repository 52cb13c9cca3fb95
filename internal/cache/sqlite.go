package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"

	"github.com/starford/laguz/internal/apperr"
	"github.com/starford/laguz/internal/models"
)

// Supported database/sql driver names.
const (
	DriverCGo    = "sqlite3" // github.com/mattn/go-sqlite3
	DriverPureGo = "sqlite"  // modernc.org/sqlite
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS files (
	origin       TEXT NOT NULL,
	path         TEXT NOT NULL,
	name         TEXT NOT NULL DEFAULT '',
	content      TEXT NOT NULL DEFAULT '',
	size         INTEGER NOT NULL DEFAULT 0,
	content_hash TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (origin, path)
);

CREATE TABLE IF NOT EXISTS notes (
	origin      TEXT NOT NULL,
	slug        TEXT NOT NULL,
	title       TEXT NOT NULL DEFAULT '',
	body        TEXT NOT NULL DEFAULT '',
	frontmatter TEXT NOT NULL DEFAULT '{}',
	path        TEXT NOT NULL DEFAULT '',
	position    INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (origin, slug)
);

CREATE TABLE IF NOT EXISTS metadata (
	key        TEXT PRIMARY KEY,
	timestamp  INTEGER NOT NULL,
	source     TEXT NOT NULL,
	origin     TEXT NOT NULL DEFAULT '',
	file_count INTEGER NOT NULL DEFAULT 0
);
`

// SQLite is a Store backed by a SQLite database file.
type SQLite struct {
	conn *sql.DB
}

// Open returns a Store for path. An empty path yields the Noop store. Errors
// wrap apperr.ErrCacheUnavailable so callers can degrade to Noop.
func Open(ctx context.Context, driver, path string) (Store, error) {
	if strings.TrimSpace(path) == "" {
		return Noop{}, nil
	}
	s, err := OpenSQLite(ctx, driver, path)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// OpenSQLite opens (or creates) the database and applies the schema.
func OpenSQLite(ctx context.Context, driver, path string) (*SQLite, error) {
	if driver == "" {
		driver = DriverCGo
	}
	conn, err := sql.Open(driver, path)
	if err != nil {
		return nil, fmt.Errorf("cache: open db: %w: %w", apperr.ErrCacheUnavailable, err)
	}
	conn.SetMaxOpenConns(1)

	s := &SQLite{conn: conn}
	if err := s.Init(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	return s, nil
}

// Init applies connection pragmas and the schema.
func (s *SQLite) Init(ctx context.Context) error {
	if err := s.conn.PingContext(ctx); err != nil {
		return fmt.Errorf("cache: ping: %w: %w", apperr.ErrCacheUnavailable, err)
	}
	for _, pragma := range []string{"PRAGMA busy_timeout = 5000", "PRAGMA journal_mode = WAL"} {
		if _, err := s.conn.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("cache: %s: %w: %w", pragma, apperr.ErrCacheUnavailable, err)
		}
	}
	if _, err := s.conn.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("cache: apply schema: %w: %w", apperr.ErrCacheUnavailable, err)
	}
	return nil
}

// Close closes the underlying database connection.
func (s *SQLite) Close() error {
	return s.conn.Close()
}

// PutFiles replaces origin's files and writes record inside one transaction.
func (s *SQLite) PutFiles(ctx context.Context, record models.CacheRecord, origin string, files []models.RawFile) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("cache: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	if _, err := tx.ExecContext(ctx, `DELETE FROM files WHERE origin = ?`, origin); err != nil {
		return fmt.Errorf("cache: drop stale files: %w", err)
	}

	if len(files) > 0 {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT OR REPLACE INTO files (origin, path, name, content, size, content_hash)
			VALUES (?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("cache: prepare file insert: %w", err)
		}
		defer stmt.Close()
		for _, f := range files {
			if _, err := stmt.ExecContext(ctx, origin, f.Path, f.Name, f.Content, f.Size, f.ContentHash); err != nil {
				return fmt.Errorf("cache: insert file %s: %w", f.Path, err)
			}
		}
	}

	originJSON := ""
	if record.Origin != nil {
		b, err := json.Marshal(record.Origin)
		if err != nil {
			return fmt.Errorf("cache: encode origin: %w", err)
		}
		originJSON = string(b)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO metadata (key, timestamp, source, origin, file_count)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			timestamp  = excluded.timestamp,
			source     = excluded.source,
			origin     = excluded.origin,
			file_count = excluded.file_count
	`, record.Key, record.Timestamp.UnixMilli(), record.Source, originJSON, record.FileCount)
	if err != nil {
		return fmt.Errorf("cache: upsert metadata: %w", err)
	}

	return tx.Commit()
}

// PutNotes replaces origin's note set inside one transaction, preserving order.
func (s *SQLite) PutNotes(ctx context.Context, origin string, notes []models.Note) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("cache: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM notes WHERE origin = ?`, origin); err != nil {
		return fmt.Errorf("cache: clear notes: %w", err)
	}

	if len(notes) > 0 {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT OR REPLACE INTO notes (origin, slug, title, body, frontmatter, path, position)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("cache: prepare note insert: %w", err)
		}
		defer stmt.Close()
		for i, n := range notes {
			fm, err := json.Marshal(n.Frontmatter)
			if err != nil {
				return fmt.Errorf("cache: encode frontmatter %s: %w", n.Slug, err)
			}
			if _, err := stmt.ExecContext(ctx, origin, n.Slug, n.Title, n.Body, string(fm), n.Path, i); err != nil {
				return fmt.Errorf("cache: insert note %s: %w", n.Slug, err)
			}
		}
	}

	return tx.Commit()
}

// Files returns origin's cached files ordered by path.
func (s *SQLite) Files(ctx context.Context, origin string) ([]models.RawFile, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT path, name, content, size, content_hash
		FROM files
		WHERE origin = ?
		ORDER BY path
	`, origin)
	if err != nil {
		return nil, fmt.Errorf("cache: files: %w", err)
	}
	defer rows.Close()

	var out []models.RawFile
	for rows.Next() {
		f := models.RawFile{Origin: origin}
		if err := rows.Scan(&f.Path, &f.Name, &f.Content, &f.Size, &f.ContentHash); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// Notes returns origin's cached notes in the order they were stored.
func (s *SQLite) Notes(ctx context.Context, origin string) ([]models.Note, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT slug, title, body, frontmatter, path
		FROM notes
		WHERE origin = ?
		ORDER BY position
	`, origin)
	if err != nil {
		return nil, fmt.Errorf("cache: notes: %w", err)
	}
	defer rows.Close()

	var out []models.Note
	for rows.Next() {
		var n models.Note
		var fm string
		if err := rows.Scan(&n.Slug, &n.Title, &n.Body, &fm, &n.Path); err != nil {
			return nil, err
		}
		n.Frontmatter = models.Frontmatter{}
		if err := json.Unmarshal([]byte(fm), &n.Frontmatter); err != nil {
			return nil, fmt.Errorf("cache: decode frontmatter %s: %w", n.Slug, err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// Metadata returns the record stored under key, or nil if there is none.
func (s *SQLite) Metadata(ctx context.Context, key string) (*models.CacheRecord, error) {
	var (
		ts         int64
		originJSON string
	)
	rec := models.CacheRecord{Key: key}
	err := s.conn.QueryRowContext(ctx, `
		SELECT timestamp, source, origin, file_count FROM metadata WHERE key = ?
	`, key).Scan(&ts, &rec.Source, &originJSON, &rec.FileCount)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cache: metadata %s: %w", key, err)
	}
	rec.Timestamp = time.UnixMilli(ts)
	if originJSON != "" {
		rec.Origin = &models.OriginInfo{}
		if err := json.Unmarshal([]byte(originJSON), rec.Origin); err != nil {
			return nil, fmt.Errorf("cache: decode origin %s: %w", key, err)
		}
	}
	return &rec, nil
}

// Clear empties all three tables in one transaction.
func (s *SQLite) Clear(ctx context.Context) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("cache: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	for _, table := range []string{"files", "notes", "metadata"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("cache: clear %s: %w", table, err)
		}
	}
	return tx.Commit()
}
