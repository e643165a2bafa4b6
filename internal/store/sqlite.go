package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/felixgeelhaar/intelart/internal/rag"
	_ "modernc.org/sqlite"
)

type SQLiteStore struct {
	db          *sql.DB
	artifactDir string
}

var _ Storage = (*SQLiteStore)(nil)

func NewSQLiteStore(dbPath, artifactDir string) (*SQLiteStore, error) {
	// Ensure directories exist
	if err := os.MkdirAll(filepath.Dir(dbPath), 0750); err != nil {
		return nil, fmt.Errorf("failed to create db directory: %w", err)
	}
	if err := os.MkdirAll(artifactDir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create artifact directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// one writer; avoids SQLITE_BUSY under concurrent requests
	db.SetMaxOpenConns(1)

	store := &SQLiteStore{
		db:          db,
		artifactDir: artifactDir,
	}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS sources (
			id TEXT PRIMARY KEY,
			kind TEXT,
			origin TEXT,
			digest TEXT,
			chunks INTEGER,
			path TEXT,
			created_at TEXT
		);`,
		`CREATE INDEX IF NOT EXISTS sources_digest ON sources(digest);`,
		`CREATE TABLE IF NOT EXISTS configuration (
			key TEXT PRIMARY KEY,
			value TEXT
		);`,
		`CREATE TABLE IF NOT EXISTS chunks (
			id TEXT PRIMARY KEY,
			source_id TEXT,
			position INTEGER,
			content TEXT,
			vector BLOB
		);`,
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			state BLOB,
			updated_at TEXT
		);`,
	}

	for _, query := range queries {
		if _, err := s.db.Exec(query); err != nil {
			return fmt.Errorf("failed to init schema: %w", err)
		}
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Configuration Implementation

func (s *SQLiteStore) SetConfig(key, value string) error {
	query := `INSERT INTO configuration (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value`
	_, err := s.db.Exec(query, key, value)
	return err
}

// GetConfig returns "" for unknown keys.
func (s *SQLiteStore) GetConfig(key string) (string, error) {
	query := `SELECT value FROM configuration WHERE key = ?`
	row := s.db.QueryRow(query, key)
	var value string
	if err := row.Scan(&value); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", err
	}
	return value, nil
}

// Source Implementation

// RecordSource writes the extracted text under the artifact dir and the
// metadata to the database.
func (s *SQLiteStore) RecordSource(src *rag.Source, text []byte) error {
	rel := filepath.Join("sources", src.ID+".txt")
	fullPath := filepath.Join(s.artifactDir, rel)
	if err := os.MkdirAll(filepath.Dir(fullPath), 0750); err != nil {
		return fmt.Errorf("failed to create artifact dir: %w", err)
	}
	if err := os.WriteFile(fullPath, text, 0600); err != nil {
		return fmt.Errorf("failed to write source text: %w", err)
	}

	if src.CreatedAt.IsZero() {
		src.CreatedAt = time.Now().UTC()
	}
	query := `INSERT INTO sources (id, kind, origin, digest, chunks, path, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.Exec(query, src.ID, src.Kind, src.Origin, src.Digest, src.Chunks, rel, formatTime(src.CreatedAt))
	return err
}

func (s *SQLiteStore) GetSource(id string) (*rag.Source, []byte, error) {
	query := `SELECT id, kind, origin, digest, chunks, path, created_at FROM sources WHERE id = ?`
	src, path, err := scanSource(s.db.QueryRow(query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, fmt.Errorf("source %s: %w", id, ErrNotFound)
		}
		return nil, nil, err
	}

	content, err := os.ReadFile(filepath.Join(s.artifactDir, path)) // #nosec G304
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read source text: %w", err)
	}
	return src, content, nil
}

// ListSources returns every source, oldest first.
func (s *SQLiteStore) ListSources() ([]*rag.Source, error) {
	rows, err := s.db.Query(`SELECT id, kind, origin, digest, chunks, path, created_at FROM sources ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sources []*rag.Source
	for rows.Next() {
		src, _, err := scanSource(rows)
		if err != nil {
			return nil, err
		}
		sources = append(sources, src)
	}
	return sources, rows.Err()
}

// DeleteSource removes one source and its text artifact.
func (s *SQLiteStore) DeleteSource(id string) error {
	var path string
	err := s.db.QueryRow(`SELECT path FROM sources WHERE id = ?`, id).Scan(&path)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("source %s: %w", id, ErrNotFound)
		}
		return err
	}
	if _, err := s.db.Exec(`DELETE FROM sources WHERE id = ?`, id); err != nil {
		return err
	}
	if err := os.Remove(filepath.Join(s.artifactDir, path)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove source text: %w", err)
	}
	return nil
}

// ResetSources forgets every learned source so the same files can be
// trained again after the index is cleared.
func (s *SQLiteStore) ResetSources() error {
	if _, err := s.db.Exec(`DELETE FROM sources`); err != nil {
		return fmt.Errorf("failed to clear sources: %w", err)
	}
	if err := os.RemoveAll(filepath.Join(s.artifactDir, "sources")); err != nil {
		return fmt.Errorf("failed to remove source texts: %w", err)
	}
	return nil
}

func (s *SQLiteStore) HasDigest(digest string) (bool, error) {
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM sources WHERE digest = ?`, digest).Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSource(row rowScanner) (*rag.Source, string, error) {
	var src rag.Source
	var path, created string
	if err := row.Scan(&src.ID, &src.Kind, &src.Origin, &src.Digest, &src.Chunks, &path, &created); err != nil {
		return nil, "", err
	}
	t, err := parseTime(created)
	if err != nil {
		return nil, "", err
	}
	src.CreatedAt = t
	return &src, path, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("bad timestamp %q: %w", s, err)
	}
	return t, nil
}
