package core

import "chainledger/pkg/domain"

// NewDefaultRulesEngine builds a rules engine with the built-in invariant set.
func NewDefaultRulesEngine() *domain.RulesEngine {
	engine := domain.NewRulesEngine()
	engine.Register(TableShapeRule())
	engine.Register(ReferenceClosureRule())
	return engine
}
