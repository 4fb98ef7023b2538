package kv

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/AtRiskMedia/hugtrack-go/internal/infrastructure/observability/logging"
	_ "github.com/mattn/go-sqlite3"
)

const createKVTable = `
CREATE TABLE IF NOT EXISTS kv_store (
	key        TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	updated_at TEXT NOT NULL
)`

// SQLiteMedium persists keys in a single SQLite table. Each Set is one
// statement, so a failed write leaves the previous value in place.
type SQLiteMedium struct {
	db     *sql.DB
	logger *logging.ChanneledLogger
}

// OpenSQLiteMedium opens (and creates if needed) the database at path.
func OpenSQLiteMedium(path string, logger *logging.ChanneledLogger) (*SQLiteMedium, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	start := time.Now()
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}
	// One connection keeps :memory: databases shared and serializes writers.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("SQLite database ping failed: %w", err)
	}
	if _, err := db.Exec(createKVTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create kv table: %w", err)
	}

	logger.Storage().Info("Local medium opened", "path", path, "duration", time.Since(start))
	return &SQLiteMedium{db: db, logger: logger}, nil
}

func (m *SQLiteMedium) Get(key string) (string, bool, error) {
	var value string
	err := m.db.QueryRow(`SELECT value FROM kv_store WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read key %s: %w", key, err)
	}
	return value, true, nil
}

func (m *SQLiteMedium) Set(key, value string) error {
	const query = `
		INSERT INTO kv_store (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`

	if _, err := m.db.Exec(query, key, value, time.Now().UTC().Format(time.RFC3339Nano)); err != nil {
		m.logger.Storage().Error("Local medium write failed", "key", key, "error", err.Error())
		return fmt.Errorf("failed to write key %s: %w", key, err)
	}
	return nil
}

func (m *SQLiteMedium) Remove(key string) error {
	if _, err := m.db.Exec(`DELETE FROM kv_store WHERE key = ?`, key); err != nil {
		return fmt.Errorf("failed to remove key %s: %w", key, err)
	}
	return nil
}

// Keys returns every key in lexical order.
func (m *SQLiteMedium) Keys() ([]string, error) {
	rows, err := m.db.Query(`SELECT key FROM kv_store ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("failed to list keys: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("failed to scan key: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// Close releases the database handle.
func (m *SQLiteMedium) Close() error {
	return m.db.Close()
}
