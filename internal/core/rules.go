package core

import "stitchcore/pkg/domain"

type (
	// Rule defines an evaluation executed within a transaction boundary.
	Rule = domain.Rule
	// RuleView provides read-only state access during rule evaluation.
	RuleView = domain.RuleView
	// RulesEngine orchestrates rule evaluation.
	RulesEngine = domain.RulesEngine
)

// NewRulesEngine constructs an empty engine instance.
func NewRulesEngine() *RulesEngine {
	return domain.NewRulesEngine()
}

// NewDefaultRulesEngine builds a rules engine with the built-in policy set.
func NewDefaultRulesEngine() *RulesEngine {
	engine := NewRulesEngine()
	engine.Register(NewSlotCoherenceRule())
	engine.Register(NewNeedleRangeRule())
	return engine
}
