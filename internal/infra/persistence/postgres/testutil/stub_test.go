package testutil

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestStubDBServesChainTables(t *testing.T) {
	ctx := context.Background()
	db, server := NewStubDB()
	defer func() { _ = db.Close() }()

	if err := db.PingContext(ctx); err != nil {
		t.Fatalf("ping: %v", err)
	}
	upsert := `INSERT INTO chain_document(name,document) VALUES($1,$2) ON CONFLICT(name) DO UPDATE SET document=EXCLUDED.document`
	for _, doc := range []string{`{}`, `{"name":"x"}`} {
		if _, err := db.ExecContext(ctx, upsert, "chain", doc); err != nil {
			t.Fatalf("upsert: %v", err)
		}
	}
	if doc, ok := server.Document("chain"); !ok || string(doc) != `{"name":"x"}` {
		t.Fatalf("upsert did not replace the row: %s", doc)
	}
	if _, err := db.ExecContext(ctx, `INSERT INTO chain_document(name,document) VALUES($1,$2)`, "chain", `{}`); err == nil {
		t.Fatalf("plain insert over an existing name should fail")
	}

	at := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	insert := `INSERT INTO chain_patches(batch,path,action,value,applied_at) VALUES($1,$2,$3,$4,$5)`
	for _, action := range []string{"new", "update", "delete"} {
		var value any
		if action != "delete" {
			value = `"v"`
		}
		if _, err := db.ExecContext(ctx, insert, "b", `["name"]`, action, value, at); err != nil {
			t.Fatalf("insert %s: %v", action, err)
		}
	}
	rows, err := db.QueryContext(ctx, `SELECT seq, batch, path, action, value, applied_at FROM chain_patches ORDER BY seq DESC LIMIT NULLIF($1, -1)`, 2)
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	defer func() { _ = rows.Close() }()
	var seqs []int64
	for rows.Next() {
		var (
			seq                 int64
			batch, path, action string
			value               *string
			appliedAt           time.Time
		)
		if err := rows.Scan(&seq, &batch, &path, &action, &value, &appliedAt); err != nil {
			t.Fatalf("scan: %v", err)
		}
		if seq == 3 && (action != "delete" || value != nil) {
			t.Fatalf("delete row should carry no value, got %v", value)
		}
		if !appliedAt.Equal(at) {
			t.Fatalf("applied_at %v", appliedAt)
		}
		seqs = append(seqs, seq)
	}
	if len(seqs) != 2 || seqs[0] != 3 || seqs[1] != 2 {
		t.Fatalf("expected newest two rows, got %v", seqs)
	}
}

func TestStubDBRollsBackFailedTransactions(t *testing.T) {
	ctx := context.Background()
	db, server := NewStubDB()
	defer func() { _ = db.Close() }()
	upsert := `INSERT INTO chain_document(name,document) VALUES($1,$2) ON CONFLICT(name) DO UPDATE SET document=EXCLUDED.document`
	if _, err := db.ExecContext(ctx, upsert, "chain", `{"v":1}`); err != nil {
		t.Fatalf("seed: %v", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if _, err := tx.ExecContext(ctx, upsert, "chain", `{"v":2}`); err != nil {
		t.Fatalf("upsert in tx: %v", err)
	}
	if err := tx.Rollback(); err != nil {
		t.Fatalf("rollback: %v", err)
	}
	if doc, _ := server.Document("chain"); string(doc) != `{"v":1}` {
		t.Fatalf("rollback kept %s", doc)
	}

	boom := errors.New("boom")
	server.FailOn(FailCommit, boom)
	tx, err = db.BeginTx(ctx, nil)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if _, err := tx.ExecContext(ctx, upsert, "chain", `{"v":3}`); err != nil {
		t.Fatalf("upsert in tx: %v", err)
	}
	if err := tx.Commit(); !errors.Is(err, boom) {
		t.Fatalf("expected commit failure, got %v", err)
	}
	if doc, _ := server.Document("chain"); string(doc) != `{"v":1}` {
		t.Fatalf("failed commit kept %s", doc)
	}
}

func TestStubDBRejectsUnknownStatements(t *testing.T) {
	ctx := context.Background()
	db, server := NewStubDB()
	defer func() { _ = db.Close() }()

	for _, stmt := range []string{
		`DELETE FROM chain_patches WHERE seq = $1`,
		`INSERT INTO chain_snapshots(id) VALUES($1)`,
	} {
		if _, err := db.ExecContext(ctx, stmt, 1); err == nil || !strings.Contains(err.Error(), "unsupported") {
			t.Fatalf("%s: expected rejection, got %v", stmt, err)
		}
	}
	if _, err := db.QueryContext(ctx, `SELECT seq FROM chain_patches`); err == nil {
		t.Fatalf("partial column list should be rejected")
	}
	if got := len(server.Statements()); got != 3 {
		t.Fatalf("expected every statement to be recorded, got %d", got)
	}
}
