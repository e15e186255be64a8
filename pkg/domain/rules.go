package domain

import (
	"fmt"
	"strings"
)

// Severity classifies a rule violation.
type Severity string

const (
	// SeverityWarn is reported but does not fail verification.
	SeverityWarn Severity = "warn"
	// SeverityBlock fails verification.
	SeverityBlock Severity = "block"
)

// Violation is a single finding emitted by a rule.
type Violation struct {
	Rule     string     `json:"rule"`
	Severity Severity   `json:"severity"`
	Message  string     `json:"message"`
	Entity   EntityType `json:"entity,omitempty"`
	ID       int        `json:"id"`
}

// Result aggregates violations across rules.
type Result struct {
	Violations []Violation `json:"violations"`
}

// Merge appends other's violations.
func (r *Result) Merge(other Result) {
	r.Violations = append(r.Violations, other.Violations...)
}

// HasBlocking reports whether any violation blocks.
func (r Result) HasBlocking() bool {
	for _, v := range r.Violations {
		if v.Severity == SeverityBlock {
			return true
		}
	}
	return false
}

// RuleViolationError surfaces blocking violations as an error.
type RuleViolationError struct {
	Result Result
}

func (e RuleViolationError) Error() string {
	msgs := make([]string, 0, len(e.Result.Violations))
	for _, v := range e.Result.Violations {
		if v.Severity == SeverityBlock {
			msgs = append(msgs, fmt.Sprintf("%s: %s", v.Rule, v.Message))
		}
	}
	return "rule violations: " + strings.Join(msgs, "; ")
}

// Rule checks a graph invariant against the chain after a mutation. changes
// holds the records pushed by that mutation.
type Rule interface {
	Name() string
	Evaluate(chain *Chain, changes []Record) Result
}

// RulesEngine runs registered rules in order.
type RulesEngine struct {
	rules []Rule
}

// NewRulesEngine constructs an engine instance.
func NewRulesEngine(rules ...Rule) *RulesEngine {
	return &RulesEngine{rules: rules}
}

// Register appends a rule to the engine.
func (e *RulesEngine) Register(rule Rule) {
	e.rules = append(e.rules, rule)
}

// Evaluate executes all registered rules and aggregates their results.
func (e *RulesEngine) Evaluate(chain *Chain, changes []Record) Result {
	var combined Result
	if e == nil {
		return combined
	}
	for _, rule := range e.rules {
		combined.Merge(rule.Evaluate(chain, changes))
	}
	return combined
}
