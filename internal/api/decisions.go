package api

import (
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/altproductionlabs/sentinel/internal/chread"
	"go.uber.org/zap"
)

func (d *Dependencies) handleListDecisions(w http.ResponseWriter, r *http.Request) {
	if d.Reader == nil {
		writeJSON(w, http.StatusServiceUnavailable, ErrorResp{Detail: "ClickHouse not configured"})
		return
	}

	q := r.URL.Query()
	params := chread.ListDecisionsParams{
		Page:     queryInt(q, "page", 1),
		PageSize: queryInt(q, "page_size", 50),
	}
	if params.PageSize > 200 {
		params.PageSize = 200
	}
	if params.Page < 1 {
		params.Page = 1
	}

	if v := q.Get("action"); v != "" {
		params.Action = &v
	}
	if v := q.Get("tripwire"); v != "" {
		params.Tripwire = &v
	}
	if v := q.Get("start_time"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			params.StartTime = &t
		}
	}
	if v := q.Get("end_time"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			params.EndTime = &t
		}
	}

	decisions, total, err := d.Reader.ListDecisions(r.Context(), params)
	if err != nil {
		d.Logger.Error("failed to list decisions", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to list decisions"})
		return
	}

	resp := DecisionListResp{
		Decisions: make([]DecisionRowResp, 0, len(decisions)),
		Total:     total,
		Page:      params.Page,
		PageSize:  params.PageSize,
	}
	for _, row := range decisions {
		resp.Decisions = append(resp.Decisions, decisionRowToResp(row))
	}

	writeJSON(w, http.StatusOK, resp)
}

func (d *Dependencies) handleGetDecision(w http.ResponseWriter, r *http.Request) {
	if d.Reader == nil {
		writeJSON(w, http.StatusServiceUnavailable, ErrorResp{Detail: "ClickHouse not configured"})
		return
	}

	decisionID := r.PathValue("decision_id")
	row, err := d.Reader.GetDecision(r.Context(), decisionID)
	if err != nil {
		d.Logger.Error("failed to get decision", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to get decision"})
		return
	}
	if row == nil {
		writeJSON(w, http.StatusNotFound, ErrorResp{Detail: "Decision not found."})
		return
	}

	writeJSON(w, http.StatusOK, decisionRowToResp(*row))
}

// decisionRowToResp converts a ClickHouse row into its JSON rendering.
func decisionRowToResp(row chread.DecisionRow) DecisionRowResp {
	resp := DecisionRowResp{
		DecisionID:       row.DecisionID,
		Timestamp:        row.Timestamp,
		Action:           row.Action,
		Confidence:       row.Confidence,
		Rationale:        row.Rationale,
		TripwireNames:    row.TripwireNames,
		TripwireScores:   row.TripwireScores,
		TripwireReasons:  row.TripwireReasons,
		RequiresApproval: row.RequiresApproval == 1,
		Severity:         row.Severity,
		LatencyMs:        row.LatencyMs,
	}
	if !row.ApprovalDeadline.IsZero() {
		deadline := row.ApprovalDeadline
		resp.ApprovalDeadline = &deadline
	}
	return resp
}

// queryInt parses an integer query parameter with a fallback default.
func queryInt(q url.Values, key string, def int) int {
	v := q.Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
