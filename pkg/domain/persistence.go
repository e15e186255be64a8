package domain

import (
	"context"
	"time"
)

// PatchSink consumes compiled update batches and materializes them into a
// durable chain document.
type PatchSink interface {
	// Apply materializes one batch atomically.
	Apply(ctx context.Context, batch []Update) error
	// Load returns the current chain document, or nil when nothing is stored.
	Load(ctx context.Context) ([]byte, error)
	Close() error
}

// PatchEntry is one update as recorded in a sink's patch log.
type PatchEntry struct {
	Seq       int64     `json:"seq"`
	Batch     string    `json:"batch"`
	Path      Path      `json:"path"`
	Action    Action    `json:"action"`
	Value     []byte    `json:"value,omitempty"`
	AppliedAt time.Time `json:"applied_at"`
}

// PatchHistory is implemented by sinks that keep a log of applied updates.
type PatchHistory interface {
	History(ctx context.Context, limit int) ([]PatchEntry, error)
}

// BatchIDKey is the context key a caller sets to label a batch in the patch log.
type BatchIDKey struct{}

// BatchID extracts the batch label from ctx.
func BatchID(ctx context.Context) string {
	if v, ok := ctx.Value(BatchIDKey{}).(string); ok {
		return v
	}
	return ""
}
