// Package coordinator ties the policy engine, feedback loop and audit
// storage together and surfaces operator alerts.
package coordinator

import (
	"fmt"
	"sync"
	"time"

	"github.com/altproductionlabs/sentinel/internal/engine"
	"github.com/altproductionlabs/sentinel/internal/feedback"
	"github.com/altproductionlabs/sentinel/internal/metrics"
	"github.com/altproductionlabs/sentinel/internal/storage"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// maxRecentAlerts bounds the in-memory alert ring.
const maxRecentAlerts = 256

// Alert is the operator-facing rendering of a decision.
type Alert struct {
	ID             string    `json:"id"`
	Timestamp      time.Time `json:"timestamp"`
	Severity       string    `json:"severity"`
	Summary        string    `json:"summary"`
	Rationale      string    `json:"rationale"`
	Recommendation string    `json:"recommendation"`
}

// Evaluation pairs a decision with its alert and audit identity.
type Evaluation struct {
	DecisionID string          `json:"decision_id"`
	Decision   engine.Decision `json:"decision"`
	Alert      Alert           `json:"alert"`
}

// Coordinator is the core service. It owns the recent-alert ring; the
// policy engine and feedback loop keep their own synchronization.
type Coordinator struct {
	policy  *engine.PolicyEngine
	loop    *feedback.Loop
	writer  storage.EventWriter
	metrics *metrics.Metrics
	logger  *zap.Logger
	now     func() time.Time

	mu     sync.Mutex
	alerts []Alert
}

// New constructs a coordinator. metrics may be nil.
func New(policy *engine.PolicyEngine, loop *feedback.Loop, writer storage.EventWriter, m *metrics.Metrics, logger *zap.Logger) *Coordinator {
	return &Coordinator{
		policy:  policy,
		loop:    loop,
		writer:  writer,
		metrics: m,
		logger:  logger,
		now:     time.Now,
	}
}

// Policy exposes the policy engine for configuration paths.
func (c *Coordinator) Policy() *engine.PolicyEngine {
	return c.policy
}

// Feedback exposes the feedback loop for reporting paths.
func (c *Coordinator) Feedback() *feedback.Loop {
	return c.loop
}

// Evaluate runs one policy evaluation over the supplied anomaly scores,
// records the alert and writes the audit event.
func (c *Coordinator) Evaluate(anomalyScores engine.FeatureVector) Evaluation {
	start := c.now()
	decision := c.policy.Evaluate(anomalyScores)
	latency := c.now().Sub(start)

	decisionID := uuid.New().String()
	severity := severityFor(decision.Action)
	recommendation := "Allow"
	if decision.Action != engine.ActionAllow {
		recommendation = "Require Elevated"
	}

	alert := Alert{
		ID:             decisionID,
		Timestamp:      c.now().UTC(),
		Severity:       severity,
		Summary:        fmt.Sprintf("Action=%s Confidence=%.2f", decision.Action, decision.Confidence),
		Rationale:      decision.Rationale,
		Recommendation: recommendation,
	}

	c.mu.Lock()
	c.alerts = append(c.alerts, alert)
	if len(c.alerts) > maxRecentAlerts {
		c.alerts = c.alerts[len(c.alerts)-maxRecentAlerts:]
	}
	c.mu.Unlock()

	names := make([]string, len(decision.RuleHits))
	scores := make([]float64, len(decision.RuleHits))
	reasons := make([]string, len(decision.RuleHits))
	for i, hit := range decision.RuleHits {
		names[i] = hit.Tripwire
		scores[i] = hit.Score
		reasons[i] = hit.Reason
	}

	event := &storage.DecisionEvent{
		DecisionID:       decisionID,
		Timestamp:        alert.Timestamp,
		Action:           decision.Action.String(),
		Confidence:       decision.Confidence,
		Rationale:        decision.Rationale,
		TripwireNames:    names,
		TripwireScores:   scores,
		TripwireReasons:  reasons,
		RequiresApproval: decision.RequiresApproval,
		Severity:         severity,
		LatencyMs:        float64(latency) / float64(time.Millisecond),
	}
	if decision.ApprovalDeadline != nil {
		event.ApprovalDeadline = *decision.ApprovalDeadline
	}
	c.writer.Write(event)

	c.metrics.ObserveEvaluation(decision.Action.String(), names, latency.Seconds())

	c.logger.Info("coordinator generated alert",
		zap.String("decision_id", decisionID),
		zap.String("severity", severity),
		zap.String("recommendation", recommendation),
	)

	return Evaluation{DecisionID: decisionID, Decision: decision, Alert: alert}
}

// LogFeedback stores operator feedback and propagates it to the
// learning loop.
func (c *Coordinator) LogFeedback(rec feedback.Record) {
	c.loop.Record(rec)
	c.metrics.ObserveFeedback(rec.Verdict)
}

// LatestAlerts returns the most recent alerts, newest last.
func (c *Coordinator) LatestAlerts(limit int) []Alert {
	c.mu.Lock()
	defer c.mu.Unlock()

	if limit <= 0 || limit > len(c.alerts) {
		limit = len(c.alerts)
	}
	out := make([]Alert, limit)
	copy(out, c.alerts[len(c.alerts)-limit:])
	return out
}

func severityFor(action engine.Action) string {
	switch action {
	case engine.ActionAllow:
		return "info"
	case engine.ActionRequireElevated:
		return "medium"
	case engine.ActionQuarantine:
		return "high"
	case engine.ActionLockdown:
		return "critical"
	default:
		return "unknown"
	}
}
