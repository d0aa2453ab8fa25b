package engine

import (
	"sync/atomic"

	"go.uber.org/zap"
)

// RuleConfig describes one operator-configurable tripwire. A Threshold
// of 0 makes the rule permanently inert; that is documented policy for
// rules that exist only as playbook anchors.
type RuleConfig struct {
	Tripwire    string  `json:"tripwire" yaml:"tripwire" validate:"required"`
	Enabled     bool    `json:"enabled" yaml:"enabled"`
	Threshold   float64 `json:"threshold" yaml:"threshold" validate:"gte=0"`
	Description string  `json:"description" yaml:"description"`
}

// RuleHit records one triggered tripwire. Created during evaluation,
// never mutated, owned by the caller after return.
type RuleHit struct {
	Tripwire string  `json:"tripwire"`
	Score    float64 `json:"score"`
	Reason   string  `json:"reason"`
}

// RuleEngine evaluates the builtin detector catalog plus the configured
// rule list against one feature snapshot. Evaluation is a pure function
// of (detectors, rules, vector); the rule list is swapped atomically on
// reload so concurrent evaluators never observe a partial update.
type RuleEngine struct {
	detectors []Detector
	rules     atomic.Pointer[[]RuleConfig]
	logger    *zap.Logger
}

// NewRuleEngine creates a rule engine over the given detector catalog
// and initial rule list.
func NewRuleEngine(detectors []Detector, rules []RuleConfig, logger *zap.Logger) *RuleEngine {
	e := &RuleEngine{
		detectors: detectors,
		logger:    logger,
	}
	e.ReplaceRules(rules)
	return e
}

// ReplaceRules publishes a new rule list. The slice must not be mutated
// by the caller afterwards.
func (e *RuleEngine) ReplaceRules(rules []RuleConfig) {
	e.rules.Store(&rules)
}

// Rules returns the currently published rule list.
func (e *RuleEngine) Rules() []RuleConfig {
	return *e.rules.Load()
}

// Evaluate runs every builtin detector and then every configured rule
// against the snapshot. Builtin hits take priority: a configured rule
// sharing a triggered builtin's tripwire is suppressed so the same
// condition is never double-reported. Hits come back in evaluation
// order. Never errors; missing features resolve to 0.
func (e *RuleEngine) Evaluate(features FeatureVector) []RuleHit {
	var hits []RuleHit
	triggered := make(map[string]struct{})

	for _, det := range e.detectors {
		value := det.Evaluate(features)
		if value < det.Threshold {
			continue
		}
		triggered[det.Tripwire] = struct{}{}
		hits = append(hits, RuleHit{Tripwire: det.Tripwire, Score: value, Reason: det.Description})
		e.logger.Info("builtin detector triggered",
			zap.String("tripwire", det.Tripwire),
			zap.Float64("value", value),
			zap.Float64("threshold", det.Threshold),
		)
	}

	for _, rule := range *e.rules.Load() {
		if !rule.Enabled {
			continue
		}
		if _, ok := triggered[rule.Tripwire]; ok {
			continue
		}
		value := features.Get(rule.Tripwire)
		if rule.Threshold > 0 && value >= rule.Threshold {
			hits = append(hits, RuleHit{Tripwire: rule.Tripwire, Score: value, Reason: rule.Description})
			e.logger.Info("rule triggered",
				zap.String("tripwire", rule.Tripwire),
				zap.Float64("value", value),
				zap.Float64("threshold", rule.Threshold),
			)
		}
	}

	return hits
}
