package fs

import (
	"chainledger/internal/blob/blobtest"
	"chainledger/internal/blob/core"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestStoreContract(t *testing.T) {
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	blobtest.Exercise(t, s)
}

func TestPutWritesSidecar(t *testing.T) {
	root := t.TempDir()
	s, err := New(root)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	ctx := context.Background()
	info, err := s.Put(ctx, "chains/x/1.json", strings.NewReader("{}"), core.PutOptions{ContentType: "application/json"})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if info.ETag == "" {
		t.Fatalf("expected content hash etag")
	}
	if _, err := os.Stat(filepath.Join(root, "chains", "x", "1.json.meta")); err != nil {
		t.Fatalf("sidecar missing: %v", err)
	}
	if _, err := s.Put(ctx, "chains/x/1.json.meta", strings.NewReader("{}"), core.PutOptions{}); err == nil {
		t.Fatalf("expected reserved suffix error")
	}
	if _, _, err := s.Get(ctx, "chains/x/2.json"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	entries, err := os.ReadDir(filepath.Join(root, "chains", "x"))
	if err != nil {
		t.Fatalf("readdir: %v", err)
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".put-") {
			t.Fatalf("temporary file left behind: %s", e.Name())
		}
	}
}

func TestNewDefaultsRoot(t *testing.T) {
	t.Chdir(t.TempDir())
	s, err := New("")
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if s.Root() != DefaultRoot || s.Driver() != core.DriverFilesystem {
		t.Fatalf("unexpected root %s driver %s", s.Root(), s.Driver())
	}
}
