package domain

import (
	"errors"
	"fmt"
)

// ErrNotFound reports a lookup of an ID that is not live in its arena.
type ErrNotFound struct {
	Entity EntityType
	ID     int
}

func (e ErrNotFound) Error() string {
	return fmt.Sprintf("%s %d not found", e.Entity, e.ID)
}

// Is lets errors.Is(err, ErrNotFound{}) match any not-found error and
// ErrNotFound{Entity: k} match any not-found error of kind k.
func (e ErrNotFound) Is(target error) bool {
	t, ok := target.(ErrNotFound)
	if !ok {
		return false
	}
	return t.Entity == "" || t.Entity == e.Entity
}

func notFound[T ID](entity EntityType, id T) error {
	return ErrNotFound{Entity: entity, ID: int(id)}
}

// ErrImmutableField is raised (as a panic value) when a caller attempts to
// reassign an identity or ownership field through a plain update.
var ErrImmutableField = errors.New("immutable field reassigned")

// ErrInvalid marks a rejected mutation argument.
var ErrInvalid = errors.New("invalid argument")

// Invalidf wraps ErrInvalid with a formatted message.
func Invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
}
