// Package document materializes compiled chain updates into a stored JSON
// document by translating each update into RFC 6902 patch operations.
package document

import (
	"chainledger/internal/changes"
	"chainledger/pkg/domain"
	"encoding/json"
	"fmt"
	"strings"

	jsonpatch "github.com/evanphx/json-patch/v5"
	"github.com/tidwall/gjson"
)

// Empty is the document a sink starts from.
var Empty = []byte(`{}`)

type operation struct {
	Op    string          `json:"op"`
	Path  string          `json:"path"`
	Value json.RawMessage `json:"value,omitempty"`
}

// Apply returns doc with every update of batch applied in order. Missing or
// null parents of a new value are created as empty objects; deleting a path
// that is already absent is a no-op.
func Apply(doc []byte, batch []domain.Update) ([]byte, error) {
	if len(doc) == 0 {
		doc = Empty
	}
	for i, upd := range batch {
		next, err := applyOne(doc, upd)
		if err != nil {
			return nil, fmt.Errorf("apply update %d (%s %s): %w", i, upd.Action, upd.Path, err)
		}
		doc = next
	}
	return doc, nil
}

func applyOne(doc []byte, upd domain.Update) ([]byte, error) {
	value := upd.Value.Raw()
	if value == nil {
		value = json.RawMessage(`null`)
	}
	if len(upd.Path) == 0 {
		if upd.Action == domain.ActionDelete {
			return Empty, nil
		}
		return value, nil
	}

	var ops []operation
	if upd.Action == domain.ActionDelete {
		if !gjson.GetBytes(doc, changes.GJSONPath(upd.Path)).Exists() {
			return doc, nil
		}
		ops = append(ops, operation{Op: "remove", Path: Pointer(upd.Path)})
	} else {
		for n := 1; n < len(upd.Path); n++ {
			parent := upd.Path[:n]
			res := gjson.GetBytes(doc, changes.GJSONPath(parent))
			if res.Exists() && res.Type != gjson.Null {
				continue
			}
			var err error
			if doc, err = patch(doc, []operation{{Op: "add", Path: Pointer(parent), Value: json.RawMessage(`{}`)}}); err != nil {
				return nil, err
			}
		}
		ops = append(ops, operation{Op: "add", Path: Pointer(upd.Path), Value: value})
	}
	return patch(doc, ops)
}

func patch(doc []byte, ops []operation) ([]byte, error) {
	raw, err := json.Marshal(ops)
	if err != nil {
		return nil, fmt.Errorf("encode patch: %w", err)
	}
	p, err := jsonpatch.DecodePatch(raw)
	if err != nil {
		return nil, fmt.Errorf("decode patch: %w", err)
	}
	out, err := p.Apply(doc)
	if err != nil {
		return nil, fmt.Errorf("apply patch operations: %w", err)
	}
	return out, nil
}

// Pointer renders a path as an RFC 6901 JSON pointer.
func Pointer(path domain.Path) string {
	var b strings.Builder
	for _, tok := range path {
		b.WriteByte('/')
		s := strings.ReplaceAll(tok.String(), "~", "~0")
		b.WriteString(strings.ReplaceAll(s, "/", "~1"))
	}
	return b.String()
}
