package progress

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/claude/restset/internal/observability"
	_ "modernc.org/sqlite"
)

// SQLiteStore persists progress entries in a SQLite database at dir/progress.db.
type SQLiteStore struct {
	db *sql.DB
}

// OpenStore opens the SQLite store under dir. When that fails the error is
// logged and a MemoryStore is returned, so progress still works for the life
// of the process.
func OpenStore(dir string, log *slog.Logger) ClosableStore {
	s, err := OpenSQLiteStore(dir)
	if err != nil {
		log.Error("progress store unavailable, keeping progress in memory", "dir", dir, "error", err)
		observability.RecordPersistFailure("open")
		return NewMemoryStore()
	}
	return s
}

// OpenSQLiteStore opens (or creates) the progress database under dir.
func OpenSQLiteStore(dir string) (*SQLiteStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating state dir %s: %w", dir, err)
	}

	dbPath := filepath.Join(dir, "progress.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening progress db: %w", err)
	}
	// SQLite allows a single writer.
	db.SetMaxOpenConns(1)

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS kv (
		key        TEXT PRIMARY KEY,
		value      BLOB NOT NULL,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating kv table: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Get returns the value stored under key or ErrNotFound.
func (s *SQLiteStore) Get(key string) ([]byte, error) {
	var value []byte
	err := s.db.QueryRow(`SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", key, err)
	}
	return value, nil
}

// Set stores value under key.
func (s *SQLiteStore) Set(key string, value []byte) error {
	_, err := s.db.Exec(
		`INSERT OR REPLACE INTO kv (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)`,
		key, value,
	)
	if err != nil {
		return fmt.Errorf("writing %s: %w", key, err)
	}
	return nil
}

// Delete removes key. Deleting a missing key is not an error.
func (s *SQLiteStore) Delete(key string) error {
	if _, err := s.db.Exec(`DELETE FROM kv WHERE key = ?`, key); err != nil {
		return fmt.Errorf("deleting %s: %w", key, err)
	}
	return nil
}

// DeletePrefix removes every key starting with prefix.
func (s *SQLiteStore) DeletePrefix(prefix string) error {
	pattern := escapeLike(prefix) + "%"
	if _, err := s.db.Exec(`DELETE FROM kv WHERE key LIKE ? ESCAPE '\'`, pattern); err != nil {
		return fmt.Errorf("deleting prefix %s: %w", prefix, err)
	}
	return nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
