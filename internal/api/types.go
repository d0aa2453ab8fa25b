package api

import (
	"time"

	"github.com/altproductionlabs/sentinel/internal/engine"
	"github.com/altproductionlabs/sentinel/internal/feedback"
)

// --- POST /v1/evaluate request/response ---

// EvaluateRequest is the JSON body for POST /v1/evaluate.
type EvaluateRequest struct {
	AnomalyScores map[string]float64 `json:"anomaly_scores"`
	WindowLabel   string             `json:"window_label,omitempty"`
	WindowSeconds float64            `json:"window_seconds,omitempty"`
}

// DecisionResp is the JSON rendering of a policy decision.
type DecisionResp struct {
	Action           string               `json:"action"`
	Confidence       float64              `json:"confidence"`
	Rationale        string               `json:"rationale"`
	RuleHits         []engine.RuleHit     `json:"rule_hits"`
	AnomalyScores    engine.FeatureVector `json:"anomaly_scores"`
	Playbooks        map[string][]string  `json:"playbooks"`
	RequiresApproval bool                 `json:"requires_approval"`
	ApprovalDeadline *time.Time           `json:"approval_deadline"`
}

// AlertResp is the operator-facing alert generated for a decision.
type AlertResp struct {
	ID             string    `json:"id"`
	Timestamp      time.Time `json:"timestamp"`
	Severity       string    `json:"severity"`
	Summary        string    `json:"summary"`
	Rationale      string    `json:"rationale"`
	Recommendation string    `json:"recommendation"`
}

// EvaluateResponse is the JSON body returned by POST /v1/evaluate.
type EvaluateResponse struct {
	DecisionID string       `json:"decision_id"`
	Decision   DecisionResp `json:"decision"`
	Alert      AlertResp    `json:"alert"`
	LatencyMs  float64      `json:"latency_ms"`
}

// --- POST /v1/feedback ---

// FeedbackRequest is the JSON body for POST /v1/feedback.
type FeedbackRequest struct {
	DecisionID    string             `json:"decision_id"`
	Actor         string             `json:"actor"`
	Verdict       string             `json:"verdict"`
	Rationale     string             `json:"rationale,omitempty"`
	Timestamp     *time.Time         `json:"timestamp,omitempty"`
	FeatureVector map[string]float64 `json:"feature_vector,omitempty"`
	RuleHits      []string           `json:"rule_hits,omitempty"`
	Action        string             `json:"action,omitempty"`
	SourceIP      string             `json:"source_ip,omitempty"`
	Outcome       string             `json:"outcome,omitempty"`
}

// FeedbackResponse acknowledges a recorded verdict.
type FeedbackResponse struct {
	Recorded           bool    `json:"recorded"`
	AutoResolutionRate float64 `json:"auto_resolution_rate"`
}

// --- Learning surface ---

// ThresholdsResp is the JSON rendering of the active ladder.
type ThresholdsResp struct {
	RequireElevated float64 `json:"require_elevated"`
	Quarantine      float64 `json:"quarantine"`
	Lockdown        float64 `json:"lockdown"`
}

// AutomationsResp lists actions eligible for auto-execution.
type AutomationsResp struct {
	Automations        []feedback.Automation `json:"automations"`
	AutoResolutionRate float64               `json:"auto_resolution_rate"`
}

// DriftResp maps drifting feature names to their last alert time.
type DriftResp struct {
	Features map[string]time.Time `json:"features"`
}

// RulesReq is the JSON body for PUT /api/sentinel/rules.
type RulesReq struct {
	Rules []engine.RuleConfig `json:"rules"`
}

// RulesResp returns the active configurable rule set.
type RulesResp struct {
	Rules []engine.RuleConfig `json:"rules"`
}

// --- Decision history (ClickHouse-backed) ---

// DecisionRowResp mirrors one audited decision row.
type DecisionRowResp struct {
	DecisionID       string     `json:"decision_id"`
	Timestamp        time.Time  `json:"timestamp"`
	Action           string     `json:"action"`
	Confidence       float64    `json:"confidence"`
	Rationale        string     `json:"rationale"`
	TripwireNames    []string   `json:"tripwire_names"`
	TripwireScores   []float64  `json:"tripwire_scores"`
	TripwireReasons  []string   `json:"tripwire_reasons"`
	RequiresApproval bool       `json:"requires_approval"`
	ApprovalDeadline *time.Time `json:"approval_deadline"`
	Severity         string     `json:"severity"`
	LatencyMs        float64    `json:"latency_ms"`
}

// DecisionListResp is a paginated decision history page.
type DecisionListResp struct {
	Decisions []DecisionRowResp `json:"decisions"`
	Total     int               `json:"total"`
	Page      int               `json:"page"`
	PageSize  int               `json:"page_size"`
}

// --- Feature timelines ---

// RollupPointResp is one historical value of a feature.
type RollupPointResp struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
}

// RollupResp is the persisted history of one feature, oldest first.
type RollupResp struct {
	Feature string            `json:"feature"`
	Points  []RollupPointResp `json:"points"`
}

// ErrorResp is a standard error response body.
type ErrorResp struct {
	Detail string `json:"detail"`
}
