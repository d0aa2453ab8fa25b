package coordinator

import (
	"sync"
	"testing"
	"time"

	"github.com/altproductionlabs/sentinel/internal/engine"
	"github.com/altproductionlabs/sentinel/internal/feedback"
	"github.com/altproductionlabs/sentinel/internal/storage"
	"go.uber.org/zap"
)

// captureWriter records events in memory for assertions.
type captureWriter struct {
	mu     sync.Mutex
	events []*storage.DecisionEvent
}

func (w *captureWriter) Write(event *storage.DecisionEvent) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.events = append(w.events, event)
}

func (w *captureWriter) Close() {}

func (w *captureWriter) all() []*storage.DecisionEvent {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]*storage.DecisionEvent(nil), w.events...)
}

func newTestCoordinator(t *testing.T) (*Coordinator, *captureWriter) {
	t.Helper()
	re := engine.NewRuleEngine(engine.BuiltinDetectors(), nil, zap.NewNop())
	pe, err := engine.NewPolicyEngine(re, engine.DefaultThresholds(), nil, zap.NewNop())
	if err != nil {
		t.Fatalf("NewPolicyEngine: %v", err)
	}
	writer := &captureWriter{}
	c := New(pe, feedback.NewLoop(zap.NewNop()), writer, nil, zap.NewNop())
	return c, writer
}

func TestCoordinator_EvaluateProducesAlertAndEvent(t *testing.T) {
	c, writer := newTestCoordinator(t)

	eval := c.Evaluate(engine.FeatureVector{"malware.signature_hits": 1.0})

	if eval.DecisionID == "" {
		t.Fatal("expected a decision id")
	}
	if eval.Decision.Action != engine.ActionLockdown {
		t.Errorf("expected lockdown, got %s", eval.Decision.Action)
	}
	if eval.Alert.Severity != "critical" {
		t.Errorf("lockdown should map to critical severity, got %s", eval.Alert.Severity)
	}
	if eval.Alert.Recommendation != "Require Elevated" {
		t.Errorf("non-allow should recommend elevation, got %s", eval.Alert.Recommendation)
	}

	events := writer.all()
	if len(events) != 1 {
		t.Fatalf("expected 1 audit event, got %d", len(events))
	}
	if events[0].DecisionID != eval.DecisionID {
		t.Error("audit event should carry the decision id")
	}
	if events[0].Action != "lockdown" {
		t.Errorf("audit event action mismatch: %s", events[0].Action)
	}
	if len(events[0].TripwireNames) != 1 || events[0].TripwireNames[0] != "malware.signature_hits" {
		t.Errorf("audit event should list tripwires, got %v", events[0].TripwireNames)
	}
	if events[0].ApprovalDeadline.IsZero() {
		t.Error("lockdown event should carry the approval deadline")
	}
}

func TestCoordinator_QuietVectorAllows(t *testing.T) {
	c, writer := newTestCoordinator(t)

	eval := c.Evaluate(engine.FeatureVector{})
	if eval.Decision.Action != engine.ActionAllow {
		t.Errorf("expected allow, got %s", eval.Decision.Action)
	}
	if eval.Alert.Severity != "info" {
		t.Errorf("allow should map to info, got %s", eval.Alert.Severity)
	}
	if eval.Alert.Recommendation != "Allow" {
		t.Errorf("allow should recommend Allow, got %s", eval.Alert.Recommendation)
	}
	if events := writer.all(); len(events) != 1 || !events[0].ApprovalDeadline.IsZero() {
		t.Error("allow event should have a zero approval deadline")
	}
}

func TestCoordinator_SeverityLadder(t *testing.T) {
	c, _ := newTestCoordinator(t)
	tests := []struct {
		score    float64
		severity string
	}{
		{0.1, "info"},
		{0.55, "medium"},
		{0.75, "high"},
		{0.95, "critical"},
	}
	for _, tt := range tests {
		eval := c.Evaluate(engine.FeatureVector{"anomaly.net": tt.score})
		if eval.Alert.Severity != tt.severity {
			t.Errorf("score %f: expected severity %s, got %s", tt.score, tt.severity, eval.Alert.Severity)
		}
	}
}

func TestCoordinator_LatestAlerts(t *testing.T) {
	c, _ := newTestCoordinator(t)
	for i := 0; i < 7; i++ {
		c.Evaluate(engine.FeatureVector{})
	}

	alerts := c.LatestAlerts(5)
	if len(alerts) != 5 {
		t.Fatalf("expected 5 alerts, got %d", len(alerts))
	}
	if got := len(c.LatestAlerts(0)); got != 7 {
		t.Errorf("limit 0 should return the whole ring, got %d", got)
	}
}

func TestCoordinator_AlertRingBounded(t *testing.T) {
	c, _ := newTestCoordinator(t)
	for i := 0; i < maxRecentAlerts+10; i++ {
		c.Evaluate(engine.FeatureVector{})
	}
	if got := len(c.LatestAlerts(0)); got != maxRecentAlerts {
		t.Errorf("ring should cap at %d, got %d", maxRecentAlerts, got)
	}
}

func TestCoordinator_LogFeedbackReachesLoop(t *testing.T) {
	c, _ := newTestCoordinator(t)
	c.LogFeedback(feedback.Record{
		DecisionID: "dec-9",
		Actor:      "operator@sentinel",
		Verdict:    "allow",
		Action:     "allow",
		Timestamp:  time.Now().UTC(),
	})

	if _, ok := c.Feedback().TrustSnapshot()["action:allow"]; !ok {
		t.Error("feedback should reach the loop's trust map")
	}
}
