package memory

import (
	"chainledger/pkg/domain"
	"context"
	"encoding/json"
	"testing"
)

func update(action domain.Action, value string, parts ...any) domain.Update {
	upd := domain.Update{Path: domain.P(parts...), Action: action}
	if value != "" {
		upd.Value = domain.NewChangePayload(json.RawMessage(value))
	}
	return upd
}

func TestSinkAppliesBatchesAndLogsThem(t *testing.T) {
	ctx := context.WithValue(context.Background(), domain.BatchIDKey{}, "batch-1")
	sink := NewSink()
	if doc, _ := sink.Load(ctx); doc != nil {
		t.Fatalf("expected empty sink, got %s", doc)
	}
	err := sink.Apply(ctx, []domain.Update{
		update(domain.ActionNew, `{"name":"chain","jumps":{}}`),
		update(domain.ActionNew, `{"id":0,"name":"Opening"}`, domain.EntityJump, domain.JumpID(0)),
	})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	doc, err := sink.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	var decoded struct {
		Jumps map[string]struct{ Name string } `json:"jumps"`
	}
	if err := json.Unmarshal(doc, &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Jumps["0"].Name != "Opening" {
		t.Fatalf("expected jump materialized, got %s", doc)
	}

	history, err := sink.History(ctx, 0)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 2 || history[0].Seq != 1 || history[1].Batch != "batch-1" {
		t.Fatalf("unexpected history %+v", history)
	}
	last, _ := sink.History(ctx, 1)
	if len(last) != 1 || last[0].Seq != 2 {
		t.Fatalf("expected newest entry only, got %+v", last)
	}
}

func TestSinkRejectsBadBatchWithoutPartialWrites(t *testing.T) {
	ctx := context.Background()
	sink := NewSink()
	if err := sink.Apply(ctx, []domain.Update{update(domain.ActionNew, `{"jump_list":[1,2]}`)}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	before, _ := sink.Load(ctx)
	err := sink.Apply(ctx, []domain.Update{
		update(domain.ActionUpdate, `"x"`, "name"),
		update(domain.ActionUpdate, `3`, "jump_list", 0, "nested"),
	})
	if err == nil {
		t.Fatalf("expected error adding below an array element")
	}
	after, _ := sink.Load(ctx)
	if string(before) != string(after) {
		t.Fatalf("expected document unchanged, got %s", after)
	}
	if history, _ := sink.History(ctx, 0); len(history) != 1 {
		t.Fatalf("expected only the seed in the log, got %d entries", len(history))
	}
}
