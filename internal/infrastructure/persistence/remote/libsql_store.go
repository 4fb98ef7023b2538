package remote

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/AtRiskMedia/hugtrack-go/internal/domain/tracking"
	"github.com/AtRiskMedia/hugtrack-go/internal/infrastructure/observability/logging"
	"github.com/goccy/go-json"
	_ "github.com/tursodatabase/libsql-client-go/libsql"
)

var documentSchema = []string{
	`CREATE TABLE IF NOT EXISTS documents (
		collection TEXT NOT NULL,
		id         TEXT NOT NULL,
		data       TEXT NOT NULL,
		ts         INTEGER NOT NULL,
		PRIMARY KEY (collection, id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_documents_collection_ts ON documents (collection, ts DESC)`,
}

// LibSQLStore keeps every collection in one documents table on a libsql
// (Turso) database. Change notification is a polling feed.
type LibSQLStore struct {
	db      *sql.DB
	opts    Options
	logger  *logging.ChanneledLogger
	schema  sync.Mutex
	created bool
}

// OpenLibSQL connects to a Turso database. The connection is not probed here:
// the sink probes availability on every call.
func OpenLibSQL(databaseURL, authToken string, opts Options, logger *logging.ChanneledLogger) (*LibSQLStore, error) {
	if databaseURL == "" {
		return nil, errors.New("libsql database url is required")
	}
	connStr := databaseURL
	if authToken != "" {
		connStr += "?authToken=" + authToken
	}
	db, err := sql.Open("libsql", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open libsql connection: %w", err)
	}
	return NewLibSQLStore(db, opts, logger), nil
}

// NewLibSQLStore wraps an open database handle speaking SQLite dialect.
func NewLibSQLStore(db *sql.DB, opts Options, logger *logging.ChanneledLogger) *LibSQLStore {
	return &LibSQLStore{db: db, opts: opts.withDefaults(), logger: logger}
}

// Available pings the database and creates the schema on first contact.
func (s *LibSQLStore) Available(ctx context.Context) bool {
	if s == nil || s.db == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, s.opts.ProbeTimeout)
	defer cancel()

	if err := s.db.PingContext(ctx); err != nil {
		s.logger.Remote().Debug("libsql probe failed", "error", err.Error())
		return false
	}
	if err := s.ensureSchema(ctx); err != nil {
		s.logger.Remote().Warn("libsql schema unavailable", "error", err.Error())
		return false
	}
	return true
}

func (s *LibSQLStore) ensureSchema(ctx context.Context) error {
	s.schema.Lock()
	defer s.schema.Unlock()
	if s.created {
		return nil
	}
	for _, stmt := range documentSchema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create documents schema: %w", err)
		}
	}
	s.created = true
	return nil
}

// Put upserts doc. Its top-level fields replace those of any stored document
// and the rest are kept, the same overlay mergeDocuments applies.
func (s *LibSQLStore) Put(ctx context.Context, c tracking.Collection, doc tracking.Document) error {
	setExpr, setArgs, err := overlayExpr(doc.Data)
	if err != nil {
		return fmt.Errorf("failed to put %s/%s: %w", c, doc.ID, err)
	}
	query := `
		INSERT INTO documents (collection, id, data, ts) VALUES (?, ?, ?, ?)
		ON CONFLICT(collection, id) DO UPDATE SET
			data = ` + setExpr + `,
			ts   = CASE WHEN excluded.ts > 0 THEN excluded.ts ELSE documents.ts END`
	args := append([]any{string(c), doc.ID, string(doc.Data), millis(doc.Timestamp)}, setArgs...)

	start := time.Now()
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		s.logger.Remote().Error("libsql put failed", "collection", c, "id", doc.ID, "error", err.Error())
		return fmt.Errorf("failed to put %s/%s: %w", c, doc.ID, err)
	}
	s.logger.LogSlowOperation("put "+string(c), "libsql", time.Since(start), s.opts.SlowThreshold)
	return nil
}

// overlayExpr builds a chain of json_set calls writing every top-level field
// of patch over the stored data. Unreadable stored data starts from {}.
func overlayExpr(patch []byte) (string, []any, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(patch, &fields); err != nil {
		return "", nil, fmt.Errorf("document must be a JSON object: %w", err)
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		if strings.ContainsAny(k, `"\`) {
			return "", nil, fmt.Errorf("unsupported field name %q", k)
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	expr := "CASE WHEN json_valid(documents.data) THEN documents.data ELSE '{}' END"
	args := make([]any, 0, 2*len(keys))
	for _, k := range keys {
		expr = "json_set(" + expr + ", ?, json(?))"
		args = append(args, `$."`+k+`"`, string(fields[k]))
	}
	return expr, args, nil
}

// Get returns one document or tracking.ErrNotFound.
func (s *LibSQLStore) Get(ctx context.Context, c tracking.Collection, id string) (tracking.Document, error) {
	var data string
	var ts int64
	err := s.db.QueryRowContext(ctx,
		`SELECT data, ts FROM documents WHERE collection = ? AND id = ?`, string(c), id).Scan(&data, &ts)
	if errors.Is(err, sql.ErrNoRows) {
		return tracking.Document{}, tracking.ErrNotFound
	}
	if err != nil {
		return tracking.Document{}, fmt.Errorf("failed to get %s/%s: %w", c, id, err)
	}
	return tracking.Document{ID: id, Timestamp: fromMillis(ts), Data: []byte(data)}, nil
}

// Query returns the newest documents of c.
func (s *LibSQLStore) Query(ctx context.Context, c tracking.Collection, q tracking.Query) ([]tracking.Document, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = -1
	}

	start := time.Now()
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, data, ts FROM documents WHERE collection = ? ORDER BY ts DESC, id DESC LIMIT ?`,
		string(c), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", c, err)
	}
	defer rows.Close()

	var docs []tracking.Document
	for rows.Next() {
		var id, data string
		var ts int64
		if err := rows.Scan(&id, &data, &ts); err != nil {
			s.logger.Remote().Warn("Failed to scan document row", "collection", c, "error", err.Error())
			continue
		}
		docs = append(docs, tracking.Document{ID: id, Timestamp: fromMillis(ts), Data: []byte(data)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate %s: %w", c, err)
	}
	s.logger.LogSlowOperation("query "+string(c), "libsql", time.Since(start), s.opts.SlowThreshold)
	return docs, nil
}

// Delete removes a document. Deleting an absent document is not an error.
func (s *LibSQLStore) Delete(ctx context.Context, c tracking.Collection, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE collection = ? AND id = ?`, string(c), id); err != nil {
		return fmt.Errorf("failed to delete %s/%s: %w", c, id, err)
	}
	return nil
}

// Subscribe polls q every PollInterval and pushes results that differ from
// the previous push. The first result is pushed before Subscribe returns.
func (s *LibSQLStore) Subscribe(ctx context.Context, c tracking.Collection, q tracking.Query, onDocs func([]tracking.Document), onErr func(error)) (func(), error) {
	docs, err := s.Query(ctx, c, q)
	if err != nil {
		return nil, err
	}
	onDocs(docs)

	ctx, cancel := context.WithCancel(ctx)
	go func() {
		ticker := time.NewTicker(s.opts.PollInterval)
		defer ticker.Stop()
		last := signature(docs)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				docs, err := s.Query(ctx, c, q)
				if err != nil {
					if ctx.Err() != nil {
						return
					}
					s.logger.Remote().Warn("libsql subscription failed", "collection", c, "error", err.Error())
					onErr(err)
					return
				}
				if sig := signature(docs); sig != last {
					last = sig
					onDocs(docs)
				}
			}
		}
	}()
	return cancel, nil
}

// Close releases the connection pool.
func (s *LibSQLStore) Close() error {
	return s.db.Close()
}

func millis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
