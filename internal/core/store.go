package core

import (
	"chainledger/internal/changes"
	"chainledger/pkg/domain"
	"fmt"
)

// Observer receives lifecycle notifications from a Store.
type Observer interface {
	// Mutation is called once per completed public mutation.
	Mutation(op string)
	// Cascade is called for every entity removed by a deregistration,
	// including the one the caller asked to delete.
	Cascade(entity domain.EntityType, id int)
}

type noopObserver struct{}

func (noopObserver) Mutation(string)                  {}
func (noopObserver) Cascade(domain.EntityType, int) {}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithObserver installs a lifecycle observer.
func WithObserver(o Observer) StoreOption {
	return func(s *Store) {
		if o != nil {
			s.observer = o
		}
	}
}

// WithRulesEngine evaluates the engine after every public mutation. A
// blocking violation means a cascade left the graph inconsistent and panics.
func WithRulesEngine(engine *domain.RulesEngine) StoreOption {
	return func(s *Store) { s.rules = engine }
}

// Store owns the chain and is the only code path allowed to mutate it. Every
// public method is one atomic unit: it runs to completion, keeps the
// per-character tables of every jump aligned with the jump's participants,
// and pushes the touched paths onto the change tracker.
//
// Store is not safe for concurrent use; callers sequence mutations.
type Store struct {
	chain    *domain.Chain
	tracker  *changes.Tracker
	observer Observer
	rules    *domain.RulesEngine

	depth    int
	removing map[jumpMember]bool
}

type jumpMember struct {
	jump      domain.JumpID
	character domain.CharacterID
}

// NewStore wraps chain. A nil chain starts a new, empty one named "chain".
func NewStore(chain *domain.Chain, opts ...StoreOption) *Store {
	if chain == nil {
		chain = domain.NewChain("chain")
	}
	chain.Normalize()
	s := &Store{
		chain:    chain,
		tracker:  changes.New(),
		observer: noopObserver{},
		removing: map[jumpMember]bool{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Chain exposes the aggregate for reads. Callers must not mutate it directly.
func (s *Store) Chain() *domain.Chain { return s.chain }

// Tracker exposes the pending change records.
func (s *Store) Tracker() *changes.Tracker { return s.tracker }

// ReplaceChain swaps the whole aggregate and records a root-level creation.
func (s *Store) ReplaceChain(chain *domain.Chain) {
	defer s.begin("replace_chain")()
	chain.Normalize()
	s.chain = chain
	s.tracker.Reset()
	s.push(domain.ActionNew)
}

// begin marks the start of a public mutation. The returned function reports
// the mutation and runs invariant rules once the outermost call returns.
func (s *Store) begin(op string) func() {
	s.depth++
	return func() {
		s.depth--
		if s.depth > 0 {
			return
		}
		s.observer.Mutation(op)
		if s.rules == nil {
			return
		}
		if res := s.rules.Evaluate(s.chain, s.tracker.Records()); res.HasBlocking() {
			panic(fmt.Errorf("store %s: %w", op, domain.RuleViolationError{Result: res}))
		}
	}
}

// push records a change at the path built from parts.
func (s *Store) push(action domain.Action, parts ...any) {
	s.tracker.Push(domain.P(parts...), action)
}

func (s *Store) pushJumpTable(j *domain.Jump, table string, c domain.CharacterID) {
	s.push(domain.ActionUpdate, domain.EntityJump, j.ID, table, c)
}

// mustApply panics when a lookup that the cascade has already validated
// fails. Such a failure means the graph was inconsistent before the call.
func mustApply(label string, err error) {
	if err != nil {
		panic(fmt.Errorf("lifecycle %s: %w", label, err))
	}
}

// memberOf returns the jump after checking that the character takes part in it.
func (s *Store) memberOf(jumpID domain.JumpID, characterID domain.CharacterID) (*domain.Jump, error) {
	j, err := s.chain.Jump(jumpID)
	if err != nil {
		return nil, err
	}
	if _, err := s.chain.Character(characterID); err != nil {
		return nil, err
	}
	if !j.HasCharacter(characterID) {
		return nil, domain.Invalidf("character %d is not part of jump %d", characterID, jumpID)
	}
	return j, nil
}
