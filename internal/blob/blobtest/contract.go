// Package blobtest holds the behaviour every blob backend must share.
package blobtest

import (
	"bytes"
	"chainledger/internal/blob/core"
	"context"
	"errors"
	"io"
	"testing"
)

// Exercise runs the create-only store contract against s, which must be empty.
func Exercise(t *testing.T, s core.Store) {
	t.Helper()
	ctx := context.Background()

	if _, _, err := s.Get(ctx, "chains/a/missing.json"); err == nil {
		t.Fatalf("expected error reading a missing key")
	}
	if ok, err := s.Delete(ctx, "chains/a/missing.json"); err != nil || ok {
		t.Fatalf("delete missing: ok=%v err=%v", ok, err)
	}
	if _, err := s.Put(ctx, "../escape", bytes.NewReader(nil), core.PutOptions{}); err == nil {
		t.Fatalf("expected key validation error")
	}

	opts := core.PutOptions{ContentType: "application/json", Metadata: map[string]string{"chain": "a"}}
	info, err := s.Put(ctx, "chains/a/2.json", bytes.NewReader([]byte(`{"name":"a"}`)), opts)
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if info.Key != "chains/a/2.json" || info.Size != int64(len(`{"name":"a"}`)) {
		t.Fatalf("unexpected put info %+v", info)
	}
	opts.Metadata["chain"] = "mutated"
	if _, err := s.Put(ctx, "chains/a/2.json", bytes.NewReader([]byte(`{}`)), core.PutOptions{}); !errors.Is(err, core.ErrExists) {
		t.Fatalf("expected ErrExists, got %v", err)
	}
	if _, err := s.Put(ctx, "chains/a/1.json", bytes.NewReader([]byte(`{}`)), core.PutOptions{}); err != nil {
		t.Fatalf("put second: %v", err)
	}
	if _, err := s.Put(ctx, "chains/b/1.json", bytes.NewReader([]byte(`{}`)), core.PutOptions{}); err != nil {
		t.Fatalf("put other chain: %v", err)
	}

	got, rc, err := s.Get(ctx, "chains/a/2.json")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	body, err := io.ReadAll(rc)
	_ = rc.Close()
	if err != nil || string(body) != `{"name":"a"}` {
		t.Fatalf("get body %q err %v", body, err)
	}
	if got.ContentType != "application/json" {
		t.Fatalf("content type %q", got.ContentType)
	}
	if got.Metadata["chain"] != "a" {
		t.Fatalf("metadata not isolated from caller: %v", got.Metadata)
	}

	list, err := s.List(ctx, "chains/a/")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 || list[0].Key != "chains/a/1.json" || list[1].Key != "chains/a/2.json" {
		t.Fatalf("unexpected listing %+v", list)
	}

	if ok, err := s.Delete(ctx, "chains/a/1.json"); err != nil || !ok {
		t.Fatalf("delete: ok=%v err=%v", ok, err)
	}
	if list, _ := s.List(ctx, "chains/"); len(list) != 2 {
		t.Fatalf("expected 2 objects after delete, got %d", len(list))
	}
}
