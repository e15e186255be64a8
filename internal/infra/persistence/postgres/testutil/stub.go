// Package testutil provides an in-memory stand-in for the PostgreSQL tables
// behind the chain sink. It understands only the statements the sink issues
// against chain_document and chain_patches and rejects anything else.
package testutil

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"
)

// Failure points accepted by FailOn besides table names.
const (
	FailPing   = "ping"
	FailBegin  = "begin"
	FailCommit = "commit"
)

// PatchRow is one row of chain_patches.
type PatchRow struct {
	Seq       int64
	Batch     string
	Path      string
	Action    string
	Value     *string
	AppliedAt time.Time
}

var patchColumns = []string{"seq", "batch", "path", "action", "value", "applied_at"}

// DB holds the server-side state shared by every connection of a fake pool.
type DB struct {
	mu         sync.Mutex
	tables     map[string]bool
	documents  map[string][]byte
	patches    []PatchRow
	seq        int64
	statements []string
	fail       map[string]error
	open       *txState
}

type txState struct {
	documents map[string][]byte
	patches   int
	seq       int64
}

// NewStubDB returns a sql.DB backed by a fresh fake server.
func NewStubDB() (*sql.DB, *DB) {
	d := &DB{
		tables:    map[string]bool{},
		documents: map[string][]byte{},
		fail:      map[string]error{},
	}
	return sql.OpenDB(connector{d}), d
}

// FailOn makes point return err until cleared with a nil err. point is one of
// the Fail constants or a table name, which fails every statement on it.
func (d *DB) FailOn(point string, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err == nil {
		delete(d.fail, point)
		return
	}
	d.fail[point] = err
}

// Tables lists the created tables in name order.
func (d *DB) Tables() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return slices.Sorted(maps.Keys(d.tables))
}

// Document returns the committed or in-flight row of chain_document for name.
func (d *DB) Document(name string) ([]byte, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	doc, ok := d.documents[name]
	return slices.Clone(doc), ok
}

// Patches returns the chain_patches rows in insertion order.
func (d *DB) Patches() []PatchRow {
	d.mu.Lock()
	defer d.mu.Unlock()
	return slices.Clone(d.patches)
}

// Statements returns every statement received, including failed ones.
func (d *DB) Statements() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return slices.Clone(d.statements)
}

func (d *DB) exec(query string, args []driver.NamedValue) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.statements = append(d.statements, query)
	verb, table := statement(query)
	if err := d.fail[table]; err != nil {
		return err
	}
	switch {
	case verb == "create":
		d.tables[table] = true
		return nil
	case verb == "insert" && table == "chain_document":
		return d.upsertDocument(query, args)
	case verb == "insert" && table == "chain_patches":
		return d.appendPatch(args)
	}
	return fmt.Errorf("unsupported statement %q", query)
}

func (d *DB) upsertDocument(query string, args []driver.NamedValue) error {
	if len(args) != 2 {
		return fmt.Errorf("chain_document insert takes 2 args, got %d", len(args))
	}
	name, ok := args[0].Value.(string)
	if !ok {
		return fmt.Errorf("chain_document name must be text, got %T", args[0].Value)
	}
	doc, err := bytesOf(args[1].Value)
	if err != nil {
		return err
	}
	if _, exists := d.documents[name]; exists && !strings.Contains(strings.ToUpper(query), "ON CONFLICT") {
		return fmt.Errorf("duplicate key value violates unique constraint on chain_document(name=%s)", name)
	}
	d.documents[name] = doc
	return nil
}

func (d *DB) appendPatch(args []driver.NamedValue) error {
	if len(args) != 5 {
		return fmt.Errorf("chain_patches insert takes 5 args, got %d", len(args))
	}
	row := PatchRow{}
	var ok bool
	if row.Batch, ok = args[0].Value.(string); !ok {
		return fmt.Errorf("batch must be text, got %T", args[0].Value)
	}
	if row.Path, ok = args[1].Value.(string); !ok {
		return fmt.Errorf("path must be text, got %T", args[1].Value)
	}
	if row.Action, ok = args[2].Value.(string); !ok {
		return fmt.Errorf("action must be text, got %T", args[2].Value)
	}
	if args[3].Value != nil {
		raw, err := bytesOf(args[3].Value)
		if err != nil {
			return err
		}
		value := string(raw)
		row.Value = &value
	}
	if row.AppliedAt, ok = args[4].Value.(time.Time); !ok {
		return fmt.Errorf("applied_at must be a timestamp, got %T", args[4].Value)
	}
	d.seq++
	row.Seq = d.seq
	d.patches = append(d.patches, row)
	return nil
}

func (d *DB) query(query string, args []driver.NamedValue) (driver.Rows, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.statements = append(d.statements, query)
	verb, table := statement(query)
	if err := d.fail[table]; err != nil {
		return nil, err
	}
	if verb != "select" {
		return nil, fmt.Errorf("unsupported query %q", query)
	}
	cols := selectColumns(query)
	switch table {
	case "chain_document":
		if !slices.Equal(cols, []string{"name", "document"}) || len(args) != 1 {
			return nil, fmt.Errorf("unsupported chain_document query %q", query)
		}
		name, _ := args[0].Value.(string)
		r := &rows{cols: cols}
		if doc, ok := d.documents[name]; ok {
			r.values = append(r.values, []driver.Value{name, slices.Clone(doc)})
		}
		return r, nil
	case "chain_patches":
		if !slices.Equal(cols, patchColumns) {
			return nil, fmt.Errorf("unsupported chain_patches query %q", query)
		}
		return d.patchRows(query, args)
	}
	return nil, fmt.Errorf("unknown table in %q", query)
}

// patchRows serves the newest-first history query, honouring an optional
// LIMIT NULLIF($1, -1) argument.
func (d *DB) patchRows(query string, args []driver.NamedValue) (driver.Rows, error) {
	if !strings.Contains(strings.ToUpper(query), "ORDER BY SEQ DESC") {
		return nil, fmt.Errorf("chain_patches must be read newest first: %q", query)
	}
	limit := int64(-1)
	if len(args) > 0 {
		n, ok := args[0].Value.(int64)
		if !ok {
			return nil, fmt.Errorf("limit must be an integer, got %T", args[0].Value)
		}
		limit = n
	}
	r := &rows{cols: patchColumns}
	for i := len(d.patches) - 1; i >= 0; i-- {
		if limit >= 0 && int64(len(r.values)) == limit {
			break
		}
		p := d.patches[i]
		var value driver.Value
		if p.Value != nil {
			value = *p.Value
		}
		r.values = append(r.values, []driver.Value{p.Seq, p.Batch, p.Path, p.Action, value, p.AppliedAt})
	}
	return r, nil
}

func (d *DB) begin() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.fail[FailBegin]; err != nil {
		return err
	}
	if d.open != nil {
		return fmt.Errorf("transaction already open")
	}
	d.open = &txState{documents: maps.Clone(d.documents), patches: len(d.patches), seq: d.seq}
	return nil
}

// end closes the open transaction, restoring its starting state unless it
// commits successfully.
func (d *DB) end(commit bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.open == nil {
		return fmt.Errorf("no open transaction")
	}
	var err error
	if commit {
		err = d.fail[FailCommit]
	}
	if !commit || err != nil {
		d.documents = d.open.documents
		d.patches = d.patches[:d.open.patches]
		d.seq = d.open.seq
	}
	d.open = nil
	return err
}

func (d *DB) ping() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.fail[FailPing]
}

// statement returns the lower-cased verb and table of query.
func statement(query string) (verb, table string) {
	f := strings.Fields(strings.ToLower(query))
	if len(f) == 0 {
		return "", ""
	}
	verb = f[0]
	switch verb {
	case "create":
		if len(f) > 5 {
			table = f[5]
		}
	case "insert":
		if len(f) > 2 {
			table, _, _ = strings.Cut(f[2], "(")
		}
	case "select":
		if i := slices.Index(f, "from"); i >= 0 && i+1 < len(f) {
			table = f[i+1]
		}
	}
	return verb, table
}

func selectColumns(query string) []string {
	lower := strings.ToLower(query)
	start := strings.Index(lower, "select ")
	end := strings.Index(lower, " from ")
	if start < 0 || end < start {
		return nil
	}
	var cols []string
	for _, col := range strings.Split(lower[start+len("select "):end], ",") {
		cols = append(cols, strings.TrimSpace(col))
	}
	return cols
}

func bytesOf(v driver.Value) ([]byte, error) {
	switch v := v.(type) {
	case string:
		return []byte(v), nil
	case []byte:
		return slices.Clone(v), nil
	}
	return nil, fmt.Errorf("expected text or bytes, got %T", v)
}

type connector struct{ db *DB }

func (c connector) Connect(context.Context) (driver.Conn, error) { return &conn{db: c.db}, nil }
func (c connector) Driver() driver.Driver                        { return fakeDriver{c.db} }

type fakeDriver struct{ db *DB }

func (d fakeDriver) Open(string) (driver.Conn, error) { return &conn{db: d.db}, nil }

type conn struct{ db *DB }

func (c *conn) Prepare(query string) (driver.Stmt, error) {
	return nil, fmt.Errorf("prepared statements are not supported: %q", query)
}

func (c *conn) Close() error { return nil }

func (c *conn) Begin() (driver.Tx, error) {
	return c.BeginTx(context.Background(), driver.TxOptions{})
}

func (c *conn) BeginTx(context.Context, driver.TxOptions) (driver.Tx, error) {
	if err := c.db.begin(); err != nil {
		return nil, err
	}
	return tx{c.db}, nil
}

func (c *conn) Ping(context.Context) error { return c.db.ping() }

func (c *conn) ExecContext(_ context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	if err := c.db.exec(query, args); err != nil {
		return nil, err
	}
	return driver.RowsAffected(1), nil
}

func (c *conn) QueryContext(_ context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	return c.db.query(query, args)
}

type tx struct{ db *DB }

func (t tx) Commit() error   { return t.db.end(true) }
func (t tx) Rollback() error { return t.db.end(false) }

type rows struct {
	cols   []string
	values [][]driver.Value
	next   int
}

func (r *rows) Columns() []string { return r.cols }
func (r *rows) Close() error      { return nil }

func (r *rows) Next(dest []driver.Value) error {
	if r.next >= len(r.values) {
		return io.EOF
	}
	copy(dest, r.values[r.next])
	r.next++
	return nil
}
