// Package postgres persists the chain document and its patch log in
// PostgreSQL through the pgx database/sql driver.
package postgres

import (
	"chainledger/internal/infra/persistence/document"
	"chainledger/pkg/domain"
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
)

// Compile-time contract assertions.
var (
	_ domain.PatchSink    = (*Sink)(nil)
	_ domain.PatchHistory = (*Sink)(nil)
)

const (
	defaultDriver = "pgx"
	// DefaultDSN is used when no DSN is configured.
	DefaultDSN   = "postgres://localhost/chainledger?sslmode=disable"
	documentName = "chain"
)

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

// Sink stores the materialized document in chain_document and appends every
// applied update to chain_patches, both inside one transaction per batch.
type Sink struct {
	db  *sql.DB
	mu  sync.Mutex
	now func() time.Time
}

// Open connects to dsn (DefaultDSN when empty) and ensures the tables exist.
func Open(ctx context.Context, dsn string) (*Sink, error) {
	if dsn == "" {
		dsn = DefaultDSN
	}
	openMu.Lock()
	db, err := sqlOpen(defaultDriver, dsn)
	openMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if err := ensureTables(ctx, db); err != nil {
		return nil, err
	}
	return &Sink{db: db, now: func() time.Time { return time.Now().UTC() }}, nil
}

func ensureTables(ctx context.Context, db *sql.DB) error {
	for _, ddl := range []string{
		`CREATE TABLE IF NOT EXISTS chain_document (
			name TEXT PRIMARY KEY,
			document JSONB NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS chain_patches (
			seq BIGSERIAL PRIMARY KEY,
			batch TEXT NOT NULL,
			path JSONB NOT NULL,
			action TEXT NOT NULL,
			value JSONB,
			applied_at TIMESTAMPTZ NOT NULL
		)`,
	} {
		if _, err := db.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("ensure tables: %w", err)
		}
	}
	return nil
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func loadDocument(ctx context.Context, q queryer) ([]byte, error) {
	rows, err := q.QueryContext(ctx, `SELECT name, document FROM chain_document WHERE name = $1`, documentName)
	if err != nil {
		return nil, fmt.Errorf("select document: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var doc []byte
	for rows.Next() {
		var name string
		var stored []byte
		if err := rows.Scan(&name, &stored); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		if name == documentName {
			doc = stored
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate document: %w", err)
	}
	return doc, nil
}

// Apply materializes batch against the stored document.
func (s *Sink) Apply(ctx context.Context, batch []domain.Update) error {
	if len(batch) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	doc, err := loadDocument(ctx, tx)
	if err != nil {
		return err
	}
	if doc, err = document.Apply(doc, batch); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO chain_document(name,document) VALUES($1,$2) ON CONFLICT(name) DO UPDATE SET document=EXCLUDED.document`, documentName, string(doc)); err != nil {
		return fmt.Errorf("upsert document: %w", err)
	}
	label := document.BatchLabel(ctx)
	at := s.now()
	for _, upd := range batch {
		path, err := document.EncodePath(upd.Path)
		if err != nil {
			return err
		}
		var value any
		if raw := upd.Value.Raw(); raw != nil {
			value = string(raw)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO chain_patches(batch,path,action,value,applied_at) VALUES($1,$2,$3,$4,$5)`,
			label, path, string(upd.Action), value, at); err != nil {
			return fmt.Errorf("append patch log: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	committed = true
	return nil
}

// Load returns the stored document, or nil when nothing was applied yet.
func (s *Sink) Load(ctx context.Context) ([]byte, error) {
	return loadDocument(ctx, s.db)
}

// History returns the newest limit patch log entries in application order.
func (s *Sink) History(ctx context.Context, limit int) ([]domain.PatchEntry, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `SELECT seq, batch, path, action, value, applied_at FROM chain_patches ORDER BY seq DESC LIMIT NULLIF($1, -1)`, limit)
	if err != nil {
		return nil, fmt.Errorf("select patch log: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var out []domain.PatchEntry
	for rows.Next() {
		var (
			entry  domain.PatchEntry
			path   string
			action string
			value  sql.NullString
		)
		if err := rows.Scan(&entry.Seq, &entry.Batch, &path, &action, &value, &entry.AppliedAt); err != nil {
			return nil, fmt.Errorf("scan patch log: %w", err)
		}
		if entry.Path, err = document.DecodePath(path); err != nil {
			return nil, err
		}
		entry.Action = domain.Action(action)
		if value.Valid {
			entry.Value = []byte(value.String)
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

// Close releases the database handle.
func (s *Sink) Close() error { return s.db.Close() }

// OverrideSQLOpen swaps the sqlOpen function for tests and returns a restore function.
func OverrideSQLOpen(fn func(driverName, dataSourceName string) (*sql.DB, error)) func() {
	openMu.Lock()
	defer openMu.Unlock()
	prev := sqlOpen
	sqlOpen = fn
	return func() {
		openMu.Lock()
		defer openMu.Unlock()
		sqlOpen = prev
	}
}
