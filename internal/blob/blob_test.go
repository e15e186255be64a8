package blob

import (
	"context"
	"sort"
	"strings"
	"testing"

	"golang.org/x/tools/go/packages"
)

func TestOpenSelectsDriver(t *testing.T) {
	ctx := context.Background()
	fsStore, err := Open(ctx, Config{FSRoot: t.TempDir()})
	if err != nil {
		t.Fatalf("open fs: %v", err)
	}
	if fsStore.Driver() != DriverFilesystem {
		t.Fatalf("empty driver should default to fs, got %s", fsStore.Driver())
	}
	mem, err := Open(ctx, Config{Driver: DriverMemory})
	if err != nil || mem.Driver() != DriverMemory {
		t.Fatalf("open memory: %v", err)
	}
	if _, err := Open(ctx, Config{Driver: DriverS3}); err == nil {
		t.Fatalf("expected s3 without bucket to fail")
	}
	if _, err := Open(ctx, Config{Driver: "tape"}); err == nil {
		t.Fatalf("expected unknown driver error")
	}
}

// TestOnlyBlobPackageImportsInfra keeps the backends behind the Store
// interface: nothing outside internal/blob may import internal/infra/blob.
func TestOnlyBlobPackageImportsInfra(t *testing.T) {
	const infraPrefix = "chainledger/internal/infra/blob"
	const allowedPrefix = "chainledger/internal/blob"

	cfg := &packages.Config{Mode: packages.NeedName | packages.NeedImports, Tests: true}
	pkgs, err := packages.Load(cfg, "chainledger/...")
	if err != nil {
		t.Fatalf("load packages: %v", err)
	}
	seen := map[string]struct{}{}
	for _, pkg := range pkgs {
		if strings.HasPrefix(pkg.PkgPath, allowedPrefix) || strings.HasPrefix(pkg.PkgPath, infraPrefix) {
			continue
		}
		for importPath := range pkg.Imports {
			if importPath == infraPrefix || strings.HasPrefix(importPath, infraPrefix+"/") {
				seen[pkg.PkgPath+": "+importPath] = struct{}{}
			}
		}
	}
	if len(seen) > 0 {
		violations := make([]string, 0, len(seen))
		for v := range seen {
			violations = append(violations, v)
		}
		sort.Strings(violations)
		t.Fatalf("forbidden imports of infra blob packages:\n%s", strings.Join(violations, "\n"))
	}
}
