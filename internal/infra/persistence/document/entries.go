package document

import (
	"chainledger/pkg/domain"
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
)

// Entry converts an update into a patch log entry. Seq is left for the sink
// to assign.
func Entry(batch string, upd domain.Update, at time.Time) domain.PatchEntry {
	return domain.PatchEntry{
		Batch:     batch,
		Path:      upd.Path.Clone(),
		Action:    upd.Action,
		Value:     upd.Value.Raw(),
		AppliedAt: at,
	}
}

// BatchLabel returns the batch label carried by ctx, generating one when the
// caller did not set any.
func BatchLabel(ctx context.Context) string {
	if id := domain.BatchID(ctx); id != "" {
		return id
	}
	return uuid.NewString()
}

// EncodePath renders a path for storage in a patch log column.
func EncodePath(path domain.Path) (string, error) {
	if path == nil {
		path = domain.Path{}
	}
	raw, err := json.Marshal(path)
	if err != nil {
		return "", fmt.Errorf("encode path: %w", err)
	}
	return string(raw), nil
}

// DecodePath parses a path stored by EncodePath.
func DecodePath(raw string) (domain.Path, error) {
	var path domain.Path
	if err := json.Unmarshal([]byte(raw), &path); err != nil {
		return nil, fmt.Errorf("decode path: %w", err)
	}
	return path, nil
}

// Tail orders entries by sequence and keeps the newest limit of them. A
// non-positive limit keeps everything.
func Tail(entries []domain.PatchEntry, limit int) []domain.PatchEntry {
	slices.SortFunc(entries, func(a, b domain.PatchEntry) int {
		switch {
		case a.Seq < b.Seq:
			return -1
		case a.Seq > b.Seq:
			return 1
		default:
			return 0
		}
	})
	if limit > 0 && len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	return entries
}
