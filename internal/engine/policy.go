package engine

import (
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// ApprovalWindow is the operational SLA for a human to act on a
// non-allow decision.
const ApprovalWindow = 30 * time.Minute

// Action is the final enforcement tier of a policy decision.
type Action int

const (
	ActionAllow Action = iota + 1
	ActionRequireElevated
	ActionQuarantine
	ActionLockdown
)

// String returns the lowercase action name.
func (a Action) String() string {
	switch a {
	case ActionAllow:
		return "allow"
	case ActionRequireElevated:
		return "require_elevated"
	case ActionQuarantine:
		return "quarantine"
	case ActionLockdown:
		return "lockdown"
	default:
		return "unspecified"
	}
}

// ParseAction maps an action name back to its enum value.
// Unknown strings map to 0.
func ParseAction(s string) Action {
	switch s {
	case "allow":
		return ActionAllow
	case "require_elevated":
		return ActionRequireElevated
	case "quarantine":
		return ActionQuarantine
	case "lockdown":
		return ActionLockdown
	default:
		return 0
	}
}

// Decision is the outcome of one policy evaluation. Created fresh per
// call and immutable once returned.
type Decision struct {
	Action           Action
	Confidence       float64
	Rationale        string
	RuleHits         []RuleHit
	AnomalyScores    FeatureVector
	Playbooks        map[string][]string
	RequiresApproval bool
	ApprovalDeadline *time.Time
}

// PolicyEngine merges rule engine output with raw anomaly scores into
// one enforcement decision. It holds only read-mostly configuration;
// thresholds are swapped atomically by the tuning path so concurrent
// evaluations always see a complete ladder.
type PolicyEngine struct {
	rules      *RuleEngine
	thresholds atomic.Pointer[Thresholds]
	playbooks  map[string][]string
	now        func() time.Time
	logger     *zap.Logger
}

// NewPolicyEngine constructs a policy engine. Thresholds are validated;
// a nil playbooks map falls back to the default library.
func NewPolicyEngine(rules *RuleEngine, thresholds Thresholds, playbooks map[string][]string, logger *zap.Logger) (*PolicyEngine, error) {
	if err := thresholds.Validate(); err != nil {
		return nil, fmt.Errorf("policy engine: %w", err)
	}
	if playbooks == nil {
		playbooks = DefaultPlaybooks()
	}
	p := &PolicyEngine{
		rules:     rules,
		playbooks: playbooks,
		now:       time.Now,
		logger:    logger,
	}
	p.thresholds.Store(&thresholds)
	return p, nil
}

// SetThresholds publishes a new ladder, e.g. after feedback tuning.
// Invalid ladders are rejected so tuning can never break the ordering
// invariant.
func (p *PolicyEngine) SetThresholds(t Thresholds) error {
	if err := t.Validate(); err != nil {
		return err
	}
	p.thresholds.Store(&t)
	return nil
}

// Thresholds returns the currently active ladder.
func (p *PolicyEngine) Thresholds() Thresholds {
	return *p.thresholds.Load()
}

// SetClock overrides the wall clock. Test hook only.
func (p *PolicyEngine) SetClock(now func() time.Time) {
	p.now = now
}

// RuleEngine exposes the underlying rule engine for config reloads.
func (p *PolicyEngine) RuleEngine() *RuleEngine {
	return p.rules
}

// Evaluate computes the enforcement action for the supplied anomaly
// scores. The whole mapping is treated as anomaly-typed; callers
// pre-filter before handing it in. Rule tripwires and anomaly keys
// share one feature namespace, so the same mapping doubles as the rule
// engine's feature vector.
//
// Never errors: an empty input with no rule hits yields allow at
// confidence 0.
func (p *PolicyEngine) Evaluate(anomalyScores FeatureVector) Decision {
	thresholds := *p.thresholds.Load()
	hits := p.rules.Evaluate(anomalyScores)

	maxScore := 0.0
	for _, hit := range hits {
		if hit.Score > maxScore {
			maxScore = hit.Score
		}
	}
	for _, value := range anomalyScores {
		if value > maxScore {
			maxScore = value
		}
	}

	// Ladder, high to low, first match wins.
	var action Action
	switch {
	case maxScore >= thresholds.Lockdown:
		action = ActionLockdown
	case maxScore >= thresholds.Quarantine:
		action = ActionQuarantine
	case maxScore >= thresholds.RequireElevated:
		action = ActionRequireElevated
	default:
		action = ActionAllow
	}

	playbooks := make(map[string][]string)
	for _, hit := range hits {
		if steps := p.playbookForHit(hit); len(steps) > 0 {
			playbooks[hit.Tripwire] = steps
		}
	}

	requiresApproval := action != ActionAllow
	var deadline *time.Time
	if requiresApproval {
		d := p.now().UTC().Add(ApprovalWindow)
		deadline = &d
	}

	rationale := fmt.Sprintf(
		"Max score %.2f across rules/anomalies; thresholds=(elevated=%g, quarantine=%g, lockdown=%g)",
		maxScore, thresholds.RequireElevated, thresholds.Quarantine, thresholds.Lockdown,
	)

	decision := Decision{
		Action:           action,
		Confidence:       maxScore,
		Rationale:        rationale,
		RuleHits:         hits,
		AnomalyScores:    anomalyScores.Clone(),
		Playbooks:        playbooks,
		RequiresApproval: requiresApproval,
		ApprovalDeadline: deadline,
	}

	hitNames := make([]string, 0, len(hits))
	for _, hit := range hits {
		hitNames = append(hitNames, hit.Tripwire)
	}
	p.logger.Info("policy decision computed",
		zap.String("action", action.String()),
		zap.Float64("confidence", maxScore),
		zap.Strings("rule_hits", hitNames),
		zap.Bool("requires_approval", requiresApproval),
	)
	return decision
}

// playbookForHit resolves remediation steps by tripwire, falling back
// to the hit's reason string for legacy entries keyed by description.
func (p *PolicyEngine) playbookForHit(hit RuleHit) []string {
	if steps, ok := p.playbooks[hit.Tripwire]; ok {
		return steps
	}
	return p.playbooks[hit.Reason]
}
