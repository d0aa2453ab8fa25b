package engine

import (
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
)

func newTestPolicyEngine(t *testing.T, thresholds Thresholds, rules []RuleConfig) *PolicyEngine {
	t.Helper()
	re := NewRuleEngine(BuiltinDetectors(), rules, zap.NewNop())
	pe, err := NewPolicyEngine(re, thresholds, nil, zap.NewNop())
	if err != nil {
		t.Fatalf("NewPolicyEngine: %v", err)
	}
	return pe
}

func TestPolicyEngine_EmptyInputAllows(t *testing.T) {
	pe := newTestPolicyEngine(t, DefaultThresholds(), nil)
	d := pe.Evaluate(FeatureVector{})

	if d.Action != ActionAllow {
		t.Errorf("expected allow, got %s", d.Action)
	}
	if d.Confidence != 0 {
		t.Errorf("expected confidence 0, got %f", d.Confidence)
	}
	if d.RequiresApproval {
		t.Error("allow must not require approval")
	}
	if d.ApprovalDeadline != nil {
		t.Error("allow must not carry an approval deadline")
	}
	if len(d.RuleHits) != 0 {
		t.Errorf("expected no rule hits, got %v", d.RuleHits)
	}
}

func TestPolicyEngine_SignatureHitLocksDown(t *testing.T) {
	pe := newTestPolicyEngine(t, DefaultThresholds(), nil)
	d := pe.Evaluate(FeatureVector{"malware.signature_hits": 1.0})

	if len(d.RuleHits) != 1 {
		t.Fatalf("expected 1 rule hit, got %d", len(d.RuleHits))
	}
	if d.Confidence != 1.0 {
		t.Errorf("expected confidence 1.0, got %f", d.Confidence)
	}
	if d.Action != ActionLockdown {
		t.Errorf("expected lockdown, got %s", d.Action)
	}
	if !d.RequiresApproval {
		t.Error("lockdown must require approval")
	}
	if d.ApprovalDeadline == nil {
		t.Fatal("non-allow decision must carry an approval deadline")
	}
}

func TestPolicyEngine_LadderTiers(t *testing.T) {
	tests := []struct {
		name  string
		score float64
		want  Action
	}{
		{"below elevated", 0.49, ActionAllow},
		{"at elevated", 0.5, ActionRequireElevated},
		{"at quarantine", 0.7, ActionQuarantine},
		{"between quarantine and lockdown", 0.89, ActionQuarantine},
		{"at lockdown", 0.9, ActionLockdown},
		{"above lockdown", 0.99, ActionLockdown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pe := newTestPolicyEngine(t, DefaultThresholds(), nil)
			d := pe.Evaluate(FeatureVector{"anomaly.cpu_spike": tt.score})
			if d.Action != tt.want {
				t.Errorf("score %f: expected %s, got %s", tt.score, tt.want, d.Action)
			}
		})
	}
}

func TestPolicyEngine_MonotonicInMaxScore(t *testing.T) {
	pe := newTestPolicyEngine(t, DefaultThresholds(), nil)
	prev := Action(0)
	for _, score := range []float64{0.0, 0.2, 0.5, 0.6, 0.7, 0.85, 0.9, 1.0} {
		d := pe.Evaluate(FeatureVector{"anomaly.net": score})
		if d.Action < prev {
			t.Errorf("action regressed at score %f: %s after %s", score, d.Action, prev)
		}
		prev = d.Action
	}
}

func TestPolicyEngine_ApprovalIffNonAllow(t *testing.T) {
	pe := newTestPolicyEngine(t, DefaultThresholds(), nil)
	for _, score := range []float64{0.0, 0.5, 0.7, 0.9} {
		d := pe.Evaluate(FeatureVector{"anomaly.net": score})
		wantApproval := d.Action != ActionAllow
		if d.RequiresApproval != wantApproval {
			t.Errorf("score %f: requires_approval=%v, action=%s", score, d.RequiresApproval, d.Action)
		}
		if (d.ApprovalDeadline != nil) != wantApproval {
			t.Errorf("score %f: deadline presence should track approval requirement", score)
		}
	}
}

func TestPolicyEngine_ApprovalDeadlineIsThirtyMinutes(t *testing.T) {
	pe := newTestPolicyEngine(t, DefaultThresholds(), nil)
	fixed := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	pe.SetClock(func() time.Time { return fixed })

	d := pe.Evaluate(FeatureVector{"anomaly.net": 0.95})
	if d.ApprovalDeadline == nil {
		t.Fatal("expected approval deadline")
	}
	if !d.ApprovalDeadline.Equal(fixed.Add(30 * time.Minute)) {
		t.Errorf("expected deadline %v, got %v", fixed.Add(30*time.Minute), *d.ApprovalDeadline)
	}
}

func TestPolicyEngine_PlaybooksAttachedForKnownTripwires(t *testing.T) {
	pe := newTestPolicyEngine(t, DefaultThresholds(), []RuleConfig{
		{Tripwire: "ssh_burst", Enabled: true, Threshold: 10, Description: "SSH burst detection"},
	})
	d := pe.Evaluate(FeatureVector{
		"malware.signature_hits": 1.0,
		"ssh_burst":              20,
	})

	steps, ok := d.Playbooks["malware.signature_hits"]
	if !ok || len(steps) == 0 {
		t.Error("expected playbook for malware.signature_hits")
	}
	// ssh_burst has no playbook entry; it is omitted, not an error.
	if _, ok := d.Playbooks["ssh_burst"]; ok {
		t.Error("tripwire without playbook entry should be omitted")
	}
}

func TestPolicyEngine_RationaleEmbedsScoreAndThresholds(t *testing.T) {
	pe := newTestPolicyEngine(t, DefaultThresholds(), nil)
	d := pe.Evaluate(FeatureVector{"anomaly.net": 0.8})

	for _, fragment := range []string{"0.80", "elevated=0.5", "quarantine=0.7", "lockdown=0.9"} {
		if !strings.Contains(d.Rationale, fragment) {
			t.Errorf("rationale missing %q: %s", fragment, d.Rationale)
		}
	}
}

func TestPolicyEngine_SetThresholdsRejectsInverted(t *testing.T) {
	pe := newTestPolicyEngine(t, DefaultThresholds(), nil)
	err := pe.SetThresholds(Thresholds{RequireElevated: 0.8, Quarantine: 0.5, Lockdown: 0.9})
	if err == nil {
		t.Fatal("inverted ladder should be rejected")
	}
	if got := pe.Thresholds(); got != DefaultThresholds() {
		t.Errorf("rejected swap must leave thresholds untouched, got %+v", got)
	}
}

func TestPolicyEngine_SetThresholdsApplies(t *testing.T) {
	pe := newTestPolicyEngine(t, DefaultThresholds(), nil)
	next := Thresholds{RequireElevated: 0.4, Quarantine: 0.65, Lockdown: 0.9}
	if err := pe.SetThresholds(next); err != nil {
		t.Fatalf("SetThresholds: %v", err)
	}
	d := pe.Evaluate(FeatureVector{"anomaly.net": 0.45})
	if d.Action != ActionRequireElevated {
		t.Errorf("new ladder should apply to the next evaluation, got %s", d.Action)
	}
}

func TestPolicyEngine_DecisionSnapshotsInput(t *testing.T) {
	pe := newTestPolicyEngine(t, DefaultThresholds(), nil)
	input := FeatureVector{"anomaly.net": 0.3}
	d := pe.Evaluate(input)

	input["anomaly.net"] = 99
	if d.AnomalyScores["anomaly.net"] != 0.3 {
		t.Error("decision must hold an immutable snapshot of the input")
	}
}

func TestNewPolicyEngine_RejectsInvalidThresholds(t *testing.T) {
	re := NewRuleEngine(BuiltinDetectors(), nil, zap.NewNop())
	_, err := NewPolicyEngine(re, Thresholds{RequireElevated: 0.9, Quarantine: 0.5, Lockdown: 0.7}, nil, zap.NewNop())
	if err == nil {
		t.Fatal("expected construction error for inverted ladder")
	}
}

func TestActionString(t *testing.T) {
	tests := []struct {
		action Action
		want   string
	}{
		{ActionAllow, "allow"},
		{ActionRequireElevated, "require_elevated"},
		{ActionQuarantine, "quarantine"},
		{ActionLockdown, "lockdown"},
		{Action(0), "unspecified"},
	}
	for _, tt := range tests {
		if got := tt.action.String(); got != tt.want {
			t.Errorf("Action(%d).String() = %q, want %q", tt.action, got, tt.want)
		}
	}
	if ParseAction("quarantine") != ActionQuarantine {
		t.Error("ParseAction should round-trip quarantine")
	}
	if ParseAction("bogus") != 0 {
		t.Error("unknown action should parse to zero")
	}
}
