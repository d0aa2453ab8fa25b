package api

import (
	"net/http"
	"strconv"

	"go.uber.org/zap"
)

// handleListAlerts implements GET /api/sentinel/alerts.
func (d *Dependencies) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "limit must be a positive integer"})
			return
		}
		limit = n
	}

	alerts := d.Coordinator.LatestAlerts(limit)
	out := make([]AlertResp, 0, len(alerts))
	for _, a := range alerts {
		out = append(out, AlertResp{
			ID:             a.ID,
			Timestamp:      a.Timestamp,
			Severity:       a.Severity,
			Summary:        a.Summary,
			Rationale:      a.Rationale,
			Recommendation: a.Recommendation,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"alerts": out})
}

// handleListAutomations implements GET /api/sentinel/automations.
func (d *Dependencies) handleListAutomations(w http.ResponseWriter, _ *http.Request) {
	loop := d.Coordinator.Feedback()
	automations := loop.SuggestedAutomations(d.Learning.MinApprovals, d.Learning.PromotionScore)
	writeJSON(w, http.StatusOK, AutomationsResp{
		Automations:        automations,
		AutoResolutionRate: loop.AutoResolutionRate(),
	})
}

// handleGetThresholds implements GET /api/sentinel/thresholds.
func (d *Dependencies) handleGetThresholds(w http.ResponseWriter, _ *http.Request) {
	t := d.Coordinator.Policy().Thresholds()
	writeJSON(w, http.StatusOK, ThresholdsResp{
		RequireElevated: t.RequireElevated,
		Quarantine:      t.Quarantine,
		Lockdown:        t.Lockdown,
	})
}

// handleGetDrift implements GET /api/sentinel/drift.
func (d *Dependencies) handleGetDrift(w http.ResponseWriter, _ *http.Request) {
	alerts := d.Coordinator.Feedback().DriftAlerts(d.Learning.DriftHorizon)
	writeJSON(w, http.StatusOK, DriftResp{Features: alerts})
}

// handleGetRules implements GET /api/sentinel/rules.
func (d *Dependencies) handleGetRules(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, RulesResp{Rules: d.Coordinator.Policy().RuleEngine().Rules()})
}

// handleReplaceRules implements PUT /api/sentinel/rules. The whole rule
// list is swapped atomically; in-flight evaluations finish on the old list.
func (d *Dependencies) handleReplaceRules(w http.ResponseWriter, r *http.Request) {
	var req RulesReq
	if err := readJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "Invalid JSON body"})
		return
	}
	for _, rule := range req.Rules {
		if rule.Tripwire == "" {
			writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "every rule needs a tripwire"})
			return
		}
		if rule.Threshold < 0 {
			writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "rule thresholds must be non-negative"})
			return
		}
	}

	d.Coordinator.Policy().RuleEngine().ReplaceRules(req.Rules)
	if d.Store != nil {
		if err := d.Store.ReplaceRules(r.Context(), req.Rules); err != nil {
			d.Logger.Warn("rule persistence failed", zap.Error(err))
		}
	}
	writeJSON(w, http.StatusOK, RulesResp{Rules: d.Coordinator.Policy().RuleEngine().Rules()})
}

// handleListFeedback implements GET /api/sentinel/feedback. Postgres
// history when available, otherwise the in-memory loop history.
func (d *Dependencies) handleListFeedback(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "limit must be a positive integer"})
			return
		}
		limit = n
	}

	if d.Store != nil {
		records, err := d.Store.RecentFeedback(r.Context(), limit)
		if err != nil {
			d.Logger.Error("failed to list feedback", zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to list feedback"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"feedback": records})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"feedback": d.Coordinator.Feedback().History(limit)})
}

// handleFeatureRollup implements GET /api/sentinel/features/{feature}/rollup.
func (d *Dependencies) handleFeatureRollup(w http.ResponseWriter, r *http.Request) {
	if d.Features == nil {
		writeJSON(w, http.StatusServiceUnavailable, ErrorResp{Detail: "Feature store not configured"})
		return
	}

	feature := r.PathValue("feature")
	points, err := d.Features.Rollup(feature)
	if err != nil {
		d.Logger.Error("feature rollup failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to load rollup"})
		return
	}

	out := make([]RollupPointResp, 0, len(points))
	for _, p := range points {
		out = append(out, RollupPointResp{Timestamp: p.CreatedAt, Value: p.Value})
	}
	writeJSON(w, http.StatusOK, RollupResp{Feature: feature, Points: out})
}
