// Package changes records chain mutations as path/action pairs, coalesces
// them, and compiles the survivors into updates carrying current values.
package changes

import (
	"chainledger/pkg/domain"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

// Tracker accumulates pending records. No record in the pending list is ever
// a prefix of another, so each push touches at most one related entry on the
// "covered" side.
type Tracker struct {
	records []domain.Record
}

// New returns an empty tracker.
func New() *Tracker {
	return &Tracker{}
}

// Push records a mutation at path, coalescing it against pending records.
func (t *Tracker) Push(path domain.Path, action domain.Action) {
	path = path.Clone()
	for i, existing := range t.records {
		switch {
		case existing.Path.Equal(path):
			merged, keep := mergeActions(existing.Action, action)
			if !keep {
				t.records = append(t.records[:i], t.records[i+1:]...)
				return
			}
			t.records[i].Action = merged
			return
		case existing.Path.StrictPrefixOf(path):
			return
		}
	}
	kept := t.records[:0]
	for _, existing := range t.records {
		if path.StrictPrefixOf(existing.Path) {
			continue
		}
		kept = append(kept, existing)
	}
	t.records = append(kept, domain.Record{Path: path, Action: action})
}

// mergeActions combines two actions recorded at the same path. keep is false
// when the pair cancels out.
func mergeActions(older, newer domain.Action) (merged domain.Action, keep bool) {
	switch {
	case older == domain.ActionNew && newer == domain.ActionDelete:
		return "", false
	case newer == domain.ActionDelete:
		return domain.ActionDelete, true
	case older == domain.ActionNew:
		// still absent from the persisted document
		return domain.ActionNew, true
	case older == domain.ActionDelete:
		return domain.ActionUpdate, true
	default:
		return newer, true
	}
}

// Records returns a copy of the pending records in push order.
func (t *Tracker) Records() []domain.Record {
	out := make([]domain.Record, len(t.records))
	for i, r := range t.records {
		out[i] = domain.Record{Path: r.Path.Clone(), Action: r.Action}
	}
	return out
}

// Len returns the number of pending records.
func (t *Tracker) Len() int { return len(t.records) }

// Reset discards every pending record.
func (t *Tracker) Reset() {
	t.records = nil
}

// Compile resolves every pending record against the chain's serialized form.
// A non-delete record whose path no longer resolves compiles to a delete.
func (t *Tracker) Compile(chain *domain.Chain) ([]domain.Update, error) {
	if len(t.records) == 0 {
		return nil, nil
	}
	doc, err := json.Marshal(chain)
	if err != nil {
		return nil, fmt.Errorf("marshal chain: %w", err)
	}
	out := make([]domain.Update, 0, len(t.records))
	for _, rec := range t.records {
		upd := domain.Update{Path: rec.Path.Clone(), Action: rec.Action}
		if rec.Action != domain.ActionDelete {
			raw, ok := Resolve(doc, rec.Path)
			if !ok {
				upd.Action = domain.ActionDelete
			} else {
				upd.Value = domain.NewChangePayload(raw)
			}
		}
		out = append(out, upd)
	}
	return out, nil
}

// Drain compiles the pending records and resets the tracker.
func (t *Tracker) Drain(chain *domain.Chain) ([]domain.Update, error) {
	out, err := t.Compile(chain)
	if err != nil {
		return nil, err
	}
	t.Reset()
	return out, nil
}

// Resolve returns the raw JSON at path inside doc.
func Resolve(doc []byte, path domain.Path) (json.RawMessage, bool) {
	if len(path) == 0 {
		return json.RawMessage(doc), true
	}
	res := gjson.GetBytes(doc, GJSONPath(path))
	if !res.Exists() {
		return nil, false
	}
	return json.RawMessage(res.Raw), true
}

// GJSONPath renders a path in gjson syntax, escaping wildcard and modifier
// characters in field names.
func GJSONPath(path domain.Path) string {
	parts := make([]string, len(path))
	for i, tok := range path {
		parts[i] = escapeGJSON(tok.String())
	}
	return strings.Join(parts, ".")
}

func escapeGJSON(s string) string {
	if !strings.ContainsAny(s, `.*?|#@\!=<>%`) {
		return s
	}
	var b strings.Builder
	for _, r := range s {
		if strings.ContainsRune(`.*?|#@\!=<>%`, r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
