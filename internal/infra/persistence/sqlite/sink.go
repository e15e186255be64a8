// Package sqlite persists the chain document and its patch log in an
// embedded SQLite database.
package sqlite

import (
	"chainledger/internal/infra/persistence/document"
	"chainledger/pkg/domain"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite" // pure go sqlite driver
)

// Compile-time contract assertions.
var (
	_ domain.PatchSink    = (*Sink)(nil)
	_ domain.PatchHistory = (*Sink)(nil)
)

const (
	// DefaultPath is used when no database path is configured.
	DefaultPath  = "chainledger.db"
	documentName = "chain"
)

// Sink stores the materialized document in chain_document and appends every
// applied update to chain_patches, both inside one transaction per batch.
type Sink struct {
	db   *sql.DB
	mu   sync.Mutex
	path string
	now  func() time.Time
}

// Open creates (or reopens) the database at path.
func Open(ctx context.Context, path string) (*Sink, error) {
	if path == "" {
		path = DefaultPath
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	for _, ddl := range []string{
		`CREATE TABLE IF NOT EXISTS chain_document (
			name TEXT PRIMARY KEY,
			document BLOB NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS chain_patches (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			batch TEXT NOT NULL,
			path TEXT NOT NULL,
			action TEXT NOT NULL,
			value BLOB,
			applied_at TEXT NOT NULL
		)`,
	} {
		if _, err := db.ExecContext(ctx, ddl); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("create tables: %w", err)
		}
	}
	return &Sink{db: db, path: path, now: func() time.Time { return time.Now().UTC() }}, nil
}

// Apply materializes batch against the stored document.
func (s *Sink) Apply(ctx context.Context, batch []domain.Update) (retErr error) {
	if len(batch) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()
	doc, err := load(ctx, tx)
	if err != nil {
		return err
	}
	if doc, err = document.Apply(doc, batch); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO chain_document(name,document) VALUES(?,?) ON CONFLICT(name) DO UPDATE SET document=excluded.document`, documentName, doc); err != nil {
		return fmt.Errorf("upsert document: %w", err)
	}
	label := document.BatchLabel(ctx)
	at := s.now().Format(time.RFC3339Nano)
	for _, upd := range batch {
		path, err := document.EncodePath(upd.Path)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO chain_patches(batch,path,action,value,applied_at) VALUES(?,?,?,?,?)`,
			label, path, string(upd.Action), []byte(upd.Value.Raw()), at); err != nil {
			return fmt.Errorf("append patch log: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func load(ctx context.Context, q queryer) ([]byte, error) {
	var doc []byte
	err := q.QueryRowContext(ctx, `SELECT document FROM chain_document WHERE name = ?`, documentName).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select document: %w", err)
	}
	return doc, nil
}

// Load returns the stored document, or nil when nothing was applied yet.
func (s *Sink) Load(ctx context.Context) ([]byte, error) {
	return load(ctx, s.db)
}

// History returns the newest limit patch log entries in application order.
func (s *Sink) History(ctx context.Context, limit int) ([]domain.PatchEntry, error) {
	query := `SELECT seq, batch, path, action, value, applied_at FROM chain_patches ORDER BY seq DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select patch log: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var out []domain.PatchEntry
	for rows.Next() {
		var (
			entry   domain.PatchEntry
			path    string
			action  string
			payload []byte
			at      string
		)
		if err := rows.Scan(&entry.Seq, &entry.Batch, &path, &action, &payload, &at); err != nil {
			return nil, fmt.Errorf("scan patch log: %w", err)
		}
		if entry.Path, err = document.DecodePath(path); err != nil {
			return nil, err
		}
		entry.Action = domain.Action(action)
		if len(payload) > 0 {
			entry.Value = payload
		}
		if entry.AppliedAt, err = time.Parse(time.RFC3339Nano, at); err != nil {
			return nil, fmt.Errorf("parse applied_at: %w", err)
		}
		out = append(out, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate patch log: %w", err)
	}
	return document.Tail(out, limit), nil
}

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Sink) DB() *sql.DB { return s.db }

// Path returns the configured database path.
func (s *Sink) Path() string { return s.path }

// Close releases the database handle.
func (s *Sink) Close() error { return s.db.Close() }
