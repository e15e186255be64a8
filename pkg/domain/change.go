package domain

import (
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// Action describes the type of mutation applied at a path.
type Action string

const (
	// ActionNew marks a path that did not exist before.
	ActionNew Action = "new"
	// ActionUpdate marks a change to an existing path.
	ActionUpdate Action = "update"
	// ActionDelete marks a removed path.
	ActionDelete Action = "delete"
)

// PathToken is one step of a field path: either a field name or an integer
// key (an entity ID or a per-character/per-currency table key).
type PathToken struct {
	Field string
	Index int
	isKey bool
}

// Field returns a field-name token.
func Field(name string) PathToken { return PathToken{Field: name} }

// Key returns an integer key token.
func Key[T ID](id T) PathToken { return PathToken{Index: int(id), isKey: true} }

// IsKey reports whether the token is an integer key.
func (t PathToken) IsKey() bool { return t.isKey }

// String renders the token as it appears in the serialized chain.
func (t PathToken) String() string {
	if t.isKey {
		return strconv.Itoa(t.Index)
	}
	return t.Field
}

// MarshalJSON encodes field tokens as strings and keys as numbers.
func (t PathToken) MarshalJSON() ([]byte, error) {
	if t.isKey {
		return json.Marshal(t.Index)
	}
	return json.Marshal(t.Field)
}

// UnmarshalJSON accepts either a string or a number.
func (t *PathToken) UnmarshalJSON(data []byte) error {
	var n int
	if err := json.Unmarshal(data, &n); err == nil {
		*t = PathToken{Index: n, isKey: true}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("path token: %w", err)
	}
	*t = PathToken{Field: s}
	return nil
}

// Path addresses a value inside the serialized chain. The empty path denotes
// the whole chain.
type Path []PathToken

// P builds a path from field names and typed IDs.
func P(parts ...any) Path {
	out := make(Path, 0, len(parts))
	for _, part := range parts {
		switch v := part.(type) {
		case PathToken:
			out = append(out, v)
		case string:
			out = append(out, Field(v))
		case EntityType:
			out = append(out, Field(string(v)))
		case int:
			out = append(out, Key(v))
		case CharacterID:
			out = append(out, Key(v))
		case JumpID:
			out = append(out, Key(v))
		case PurchaseID:
			out = append(out, Key(v))
		case SupplementID:
			out = append(out, Key(v))
		case GroupID:
			out = append(out, Key(v))
		case AltFormID:
			out = append(out, Key(v))
		case CurrencyID:
			out = append(out, Key(v))
		case SubtypeID:
			out = append(out, Key(v))
		case OriginCategoryID:
			out = append(out, Key(v))
		default:
			panic(fmt.Sprintf("domain: unsupported path part %T", part))
		}
	}
	return out
}

// Equal reports token-wise equality.
func (p Path) Equal(other Path) bool {
	return slices.Equal(p, other)
}

// HasPrefix reports whether prefix is a (possibly equal) prefix of p.
func (p Path) HasPrefix(prefix Path) bool {
	return len(prefix) <= len(p) && slices.Equal(p[:len(prefix)], prefix)
}

// StrictPrefixOf reports whether p is a proper prefix of other.
func (p Path) StrictPrefixOf(other Path) bool {
	return len(p) < len(other) && other.HasPrefix(p)
}

// Clone returns an independent copy of the path.
func (p Path) Clone() Path {
	return slices.Clone(p)
}

// String renders the path with "/" separators.
func (p Path) String() string {
	parts := make([]string, len(p))
	for i, t := range p {
		parts[i] = t.String()
	}
	return "/" + strings.Join(parts, "/")
}

// Record is a pending, uncompiled mutation.
type Record struct {
	Path   Path   `json:"path"`
	Action Action `json:"action"`
}

// Update is a compiled record ready for a persistence collaborator. Value is
// undefined for deletions.
type Update struct {
	Path   Path          `json:"path"`
	Action Action        `json:"action"`
	Value  ChangePayload `json:"value"`
}
