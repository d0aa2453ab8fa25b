package api

import (
	"net/http"
	"time"

	"github.com/altproductionlabs/sentinel/internal/engine"
	"github.com/altproductionlabs/sentinel/internal/featurestore"
	"github.com/altproductionlabs/sentinel/internal/feedback"
	"go.uber.org/zap"
)

// handleEvaluate implements POST /v1/evaluate.
// Auth middleware has already validated the Bearer token.
func (d *Dependencies) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req EvaluateRequest
	if err := readJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "Invalid JSON body"})
		return
	}
	if len(req.AnomalyScores) == 0 {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "anomaly_scores is required"})
		return
	}

	scores := engine.FeatureVector(req.AnomalyScores)
	eval := d.Coordinator.Evaluate(scores)

	// Persist the submitted window so timelines survive restarts.
	if d.Features != nil {
		window := featurestore.Window{
			Label:    req.WindowLabel,
			Duration: time.Duration(req.WindowSeconds * float64(time.Second)),
			Features: scores,
		}
		if err := d.Features.Persist(window); err != nil {
			d.Logger.Warn("feature window persist failed", zap.Error(err))
		}
	}

	latencyMs := float64(time.Since(start)) / float64(time.Millisecond)

	writeJSON(w, http.StatusOK, EvaluateResponse{
		DecisionID: eval.DecisionID,
		Decision: DecisionResp{
			Action:           eval.Decision.Action.String(),
			Confidence:       eval.Decision.Confidence,
			Rationale:        eval.Decision.Rationale,
			RuleHits:         eval.Decision.RuleHits,
			AnomalyScores:    eval.Decision.AnomalyScores,
			Playbooks:        eval.Decision.Playbooks,
			RequiresApproval: eval.Decision.RequiresApproval,
			ApprovalDeadline: eval.Decision.ApprovalDeadline,
		},
		Alert: AlertResp{
			ID:             eval.Alert.ID,
			Timestamp:      eval.Alert.Timestamp,
			Severity:       eval.Alert.Severity,
			Summary:        eval.Alert.Summary,
			Rationale:      eval.Alert.Rationale,
			Recommendation: eval.Alert.Recommendation,
		},
		LatencyMs: latencyMs,
	})
}

// handleFeedback implements POST /v1/feedback.
func (d *Dependencies) handleFeedback(w http.ResponseWriter, r *http.Request) {
	var req FeedbackRequest
	if err := readJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "Invalid JSON body"})
		return
	}
	if req.DecisionID == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "decision_id is required"})
		return
	}
	if req.Verdict == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "verdict is required"})
		return
	}

	actor := req.Actor
	if actor == "" {
		if p := principalFromContext(r.Context()); p != nil {
			actor = p.Prefix
		}
	}

	timestamp := time.Now().UTC()
	if req.Timestamp != nil {
		timestamp = *req.Timestamp
	}

	rec := feedback.Record{
		DecisionID:    req.DecisionID,
		Actor:         actor,
		Verdict:       req.Verdict,
		Rationale:     req.Rationale,
		Timestamp:     timestamp,
		FeatureVector: engine.FeatureVector(req.FeatureVector),
		RuleHits:      req.RuleHits,
		Action:        req.Action,
		SourceIP:      req.SourceIP,
		Outcome:       req.Outcome,
	}
	d.Coordinator.LogFeedback(rec)

	// Durable history is best effort; the in-memory loop already has it.
	if d.Store != nil {
		if err := d.Store.InsertFeedback(r.Context(), rec); err != nil {
			d.Logger.Warn("feedback persistence failed", zap.Error(err))
		}
	}

	writeJSON(w, http.StatusOK, FeedbackResponse{
		Recorded:           true,
		AutoResolutionRate: d.Coordinator.Feedback().AutoResolutionRate(),
	})
}
