package domain

import (
	"bytes"
	"encoding/json"
)

// ChangePayload wraps the JSON value resolved for a compiled update.
// Callers decode the raw bytes into typed structures as needed.
type ChangePayload struct {
	defined bool
	raw     json.RawMessage
}

// NewChangePayload builds a payload from raw JSON. The bytes are cloned so
// the caller's buffer can be reused.
func NewChangePayload(raw json.RawMessage) ChangePayload {
	payload := ChangePayload{defined: true}
	if raw != nil {
		payload.raw = bytes.Clone(raw)
	}
	return payload
}

// NewChangePayloadFromValue marshals a typed value into a ChangePayload.
func NewChangePayloadFromValue[T any](value T) (ChangePayload, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return ChangePayload{}, err
	}
	return NewChangePayload(raw), nil
}

// Defined reports whether the payload carries a value. Delete updates never do.
func (p ChangePayload) Defined() bool {
	return p.defined
}

// Raw returns a copy of the underlying JSON, or nil when undefined.
func (p ChangePayload) Raw() json.RawMessage {
	if !p.defined || len(p.raw) == 0 {
		return nil
	}
	return bytes.Clone(p.raw)
}

// Decode unmarshals the payload into target.
func (p ChangePayload) Decode(target any) error {
	if !p.defined {
		return json.Unmarshal([]byte("null"), target)
	}
	return json.Unmarshal(p.raw, target)
}

// MarshalJSON emits the raw value, or null when undefined.
func (p ChangePayload) MarshalJSON() ([]byte, error) {
	if !p.defined || len(p.raw) == 0 {
		return []byte("null"), nil
	}
	return bytes.Clone(p.raw), nil
}

// UnmarshalJSON captures the raw value. A JSON null yields an undefined payload.
func (p *ChangePayload) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*p = ChangePayload{}
		return nil
	}
	*p = NewChangePayload(data)
	return nil
}
