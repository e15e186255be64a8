package domain

import (
	"cmp"
	"encoding/json"
	"slices"
)

// CharacterID identifies a participant within a chain.
type CharacterID int

// JumpID identifies an episode of the timeline.
type JumpID int

// PurchaseID identifies any priced entry (perk, item, drawback, ...).
type PurchaseID int

// SupplementID identifies a secondary economy.
type SupplementID int

// GroupID identifies a purchase group.
type GroupID int

// AltFormID identifies an alternate form.
type AltFormID int

// CurrencyID identifies a currency configured on a jump.
type CurrencyID int

// SubtypeID identifies a purchase subtype (the stipend category of a purchase).
type SubtypeID int

// OriginCategoryID identifies an origin category configured on a jump.
type OriginCategoryID int

// PrimaryCurrency is the currency that receives drawback, bank, investment and
// origin adjustments.
const PrimaryCurrency CurrencyID = 0

// ID is the constraint satisfied by every typed identifier.
type ID interface {
	~int
}

// IDSet is an unordered set of typed identifiers. It serializes as a sorted
// JSON list and is rebuilt into a set when decoded.
type IDSet[T ID] map[T]struct{}

// NewIDSet builds a set from the provided identifiers.
func NewIDSet[T ID](ids ...T) IDSet[T] {
	s := make(IDSet[T], len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

// Has reports whether id is in the set.
func (s IDSet[T]) Has(id T) bool {
	_, ok := s[id]
	return ok
}

// Add inserts id, reporting whether it was absent.
func (s IDSet[T]) Add(id T) bool {
	if _, ok := s[id]; ok {
		return false
	}
	s[id] = struct{}{}
	return true
}

// Remove deletes id, reporting whether it was present.
func (s IDSet[T]) Remove(id T) bool {
	if _, ok := s[id]; !ok {
		return false
	}
	delete(s, id)
	return true
}

// Sorted returns the members in ascending order.
func (s IDSet[T]) Sorted() []T {
	out := make([]T, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	slices.SortFunc(out, cmp.Compare[T])
	return out
}

// Clone returns an independent copy of the set.
func (s IDSet[T]) Clone() IDSet[T] {
	out := make(IDSet[T], len(s))
	for id := range s {
		out[id] = struct{}{}
	}
	return out
}

// Equal reports whether both sets hold the same members.
func (s IDSet[T]) Equal(other IDSet[T]) bool {
	if len(s) != len(other) {
		return false
	}
	for id := range s {
		if !other.Has(id) {
			return false
		}
	}
	return true
}

// MarshalJSON encodes the set as a sorted list.
func (s IDSet[T]) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Sorted())
}

// UnmarshalJSON decodes a list into the set.
func (s *IDSet[T]) UnmarshalJSON(data []byte) error {
	var ids []T
	if err := json.Unmarshal(data, &ids); err != nil {
		return err
	}
	*s = NewIDSet(ids...)
	return nil
}

// RemoveID deletes the first occurrence of id from ids, reporting whether it
// was found. The returned slice shares storage with ids.
func RemoveID[T ID](ids []T, id T) ([]T, bool) {
	idx := slices.Index(ids, id)
	if idx < 0 {
		return ids, false
	}
	return slices.Delete(ids, idx, idx+1), true
}

// SortedKeys returns the keys of a map keyed by a typed identifier in
// ascending order.
func SortedKeys[K ID, V any](m map[K]V) []K {
	out := make([]K, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	slices.SortFunc(out, cmp.Compare[K])
	return out
}
