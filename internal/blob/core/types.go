// Package core defines the contract shared by the snapshot archive backends.
package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"
)

// Driver identifies a blob backend.
type Driver string

const (
	// DriverFilesystem stores archives under a local directory.
	DriverFilesystem Driver = "fs"
	// DriverS3 stores archives in an S3 or MinIO bucket.
	DriverS3 Driver = "s3"
	// DriverMemory keeps archives in process memory.
	DriverMemory Driver = "memory"
)

// PutOptions carries optional object attributes.
type PutOptions struct {
	ContentType string
	Metadata    map[string]string
}

// Info describes a stored object.
type Info struct {
	Key          string            `json:"key"`
	Size         int64             `json:"size_bytes"`
	ContentType  string            `json:"content_type,omitempty"`
	ETag         string            `json:"etag,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	LastModified time.Time         `json:"last_modified"`
}

// Store is a create-only object store keyed by slash-separated paths.
type Store interface {
	// Put writes a new object and fails with ErrExists if key is taken.
	Put(ctx context.Context, key string, r io.Reader, opts PutOptions) (Info, error)
	// Get opens an object. A missing key yields ErrNotFound.
	Get(ctx context.Context, key string) (Info, io.ReadCloser, error)
	// Delete removes an object and reports whether it existed.
	Delete(ctx context.Context, key string) (bool, error)
	// List returns objects under prefix ordered by key.
	List(ctx context.Context, prefix string) ([]Info, error)
	Driver() Driver
}

var (
	// ErrExists is returned by Put when the key is already taken.
	ErrExists = errors.New("blob: key already exists")
	// ErrNotFound is returned when a key does not resolve to an object.
	ErrNotFound = errors.New("blob: key not found")
)

// CleanKey validates key and returns its canonical form. Keys are relative,
// slash-separated and may not climb out of the store root.
func CleanKey(key string) (string, error) {
	if strings.TrimSpace(key) == "" {
		return "", fmt.Errorf("blob: empty key")
	}
	if strings.HasPrefix(key, "/") || strings.Contains(key, `\`) {
		return "", fmt.Errorf("blob: key %q must be relative and slash-separated", key)
	}
	for _, seg := range strings.Split(key, "/") {
		if seg == ".." {
			return "", fmt.Errorf("blob: key %q escapes the store root", key)
		}
	}
	return path.Clean(key), nil
}

// CloneMetadata copies m so callers cannot alias stored metadata.
func CloneMetadata(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
