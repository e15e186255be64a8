// Package blob selects the object store used for chain snapshot archives.
// Only this package imports the infra backends; everything else depends on
// the Store interface.
package blob

import (
	"chainledger/internal/blob/core"
	"chainledger/internal/infra/blob/fs"
	"chainledger/internal/infra/blob/memory"
	"chainledger/internal/infra/blob/s3"
	"context"
	"fmt"
)

type (
	// Driver identifies a blob backend.
	Driver = core.Driver
	// PutOptions configures a write.
	PutOptions = core.PutOptions
	// Info describes a stored object.
	Info = core.Info
	// Store is the backend interface.
	Store = core.Store
	// S3Config configures the S3 backend.
	S3Config = s3.Config
)

const (
	DriverFilesystem = core.DriverFilesystem
	DriverS3         = core.DriverS3
	DriverMemory     = core.DriverMemory
)

var (
	ErrExists   = core.ErrExists
	ErrNotFound = core.ErrNotFound
)

// Config selects and configures a backend.
type Config struct {
	Driver Driver
	FSRoot string
	S3     S3Config
}

// Open builds the store named by cfg.Driver. An empty driver means fs.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Driver {
	case "", DriverFilesystem:
		return fs.New(cfg.FSRoot)
	case DriverS3:
		return s3.New(ctx, cfg.S3)
	case DriverMemory:
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unknown blob driver %q", cfg.Driver)
	}
}

// NewMemory returns an in-memory store.
func NewMemory() Store { return memory.New() }
