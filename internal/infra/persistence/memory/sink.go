// Package memory provides an in-memory patch sink used for tests and
// ephemeral sessions.
package memory

import (
	"bytes"
	"chainledger/internal/infra/persistence/document"
	"chainledger/pkg/domain"
	"context"
	"sync"
	"time"
)

// Compile-time contract assertions.
var (
	_ domain.PatchSink    = (*Sink)(nil)
	_ domain.PatchHistory = (*Sink)(nil)
)

// Sink materializes update batches into a document held in memory and keeps
// every applied update in a log.
type Sink struct {
	mu  sync.Mutex
	doc []byte
	log []domain.PatchEntry
	seq int64
	now func() time.Time
}

// NewSink returns an empty sink.
func NewSink() *Sink {
	return &Sink{now: func() time.Time { return time.Now().UTC() }}
}

// Apply materializes batch. A failing batch leaves the document untouched.
func (s *Sink) Apply(ctx context.Context, batch []domain.Update) error {
	if len(batch) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	next, err := document.Apply(s.doc, batch)
	if err != nil {
		return err
	}
	s.doc = next
	label := document.BatchLabel(ctx)
	at := s.now()
	for _, upd := range batch {
		s.seq++
		entry := document.Entry(label, upd, at)
		entry.Seq = s.seq
		s.log = append(s.log, entry)
	}
	return nil
}

// Load returns a copy of the stored document, or nil before the first batch.
func (s *Sink) Load(context.Context) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return bytes.Clone(s.doc), nil
}

// History returns the newest limit log entries in application order.
func (s *Sink) History(_ context.Context, limit int) ([]domain.PatchEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return document.Tail(append([]domain.PatchEntry(nil), s.log...), limit), nil
}

// Close implements domain.PatchSink.
func (s *Sink) Close() error { return nil }
