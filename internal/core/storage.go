package core

import (
	"chainledger/internal/blob"
	"chainledger/internal/infra/persistence/memory"
	"chainledger/internal/infra/persistence/postgres"
	"chainledger/internal/infra/persistence/sqlite"
	"chainledger/internal/platform/config"
	"chainledger/pkg/domain"
	"context"
	"fmt"
)

// OpenPatchSink opens the persistence collaborator named by cfg.Driver.
func OpenPatchSink(ctx context.Context, cfg config.Storage) (domain.PatchSink, error) {
	switch cfg.Driver {
	case config.StorageMemory:
		return newMemorySink(), nil
	case config.StorageSQLite:
		sink, err := sqlite.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite sink: %w", err)
		}
		return sink, nil
	case config.StoragePostgres:
		sink, err := postgres.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres sink: %w", err)
		}
		return sink, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

func newMemorySink() domain.PatchSink { return memory.NewSink() }

// OpenArchiveStore opens the blob store used for chain snapshots.
func OpenArchiveStore(ctx context.Context, cfg config.Blob) (blob.Store, error) {
	return blob.Open(ctx, blob.Config{
		Driver: blob.Driver(cfg.Driver),
		FSRoot: cfg.FSRoot,
		S3: blob.S3Config{
			Bucket:    cfg.S3Bucket,
			Region:    cfg.S3Region,
			Endpoint:  cfg.S3Endpoint,
			PathStyle: cfg.S3PathStyle,
		},
	})
}
