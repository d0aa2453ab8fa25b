package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/altproductionlabs/sentinel/internal/config"
	"github.com/altproductionlabs/sentinel/internal/coordinator"
	"github.com/altproductionlabs/sentinel/internal/engine"
	"github.com/altproductionlabs/sentinel/internal/feedback"
	"github.com/altproductionlabs/sentinel/internal/storage"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const testToken = "snk_test_0123456789abcdef"

func newTestDeps(t *testing.T) *Dependencies {
	t.Helper()
	logger := zap.NewNop()

	hash, err := bcrypt.GenerateFromPassword([]byte(testToken), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}

	rules := []engine.RuleConfig{
		{Tripwire: "ssh_burst", Enabled: true, Threshold: 10, Description: "SSH brute force burst"},
	}
	ruleEngine := engine.NewRuleEngine(engine.BuiltinDetectors(), rules, logger)
	policy, err := engine.NewPolicyEngine(ruleEngine, engine.DefaultThresholds(), engine.DefaultPlaybooks(), logger)
	if err != nil {
		t.Fatalf("NewPolicyEngine: %v", err)
	}
	loop := feedback.NewLoop(logger)
	coord := coordinator.New(policy, loop, storage.NewLogWriter(logger), nil, logger)

	return &Dependencies{
		Coordinator: coord,
		Keys:        []config.APIKey{{Prefix: testToken[:8], Hash: string(hash)}},
		Learning:    config.Default().Learning,
		Logger:      logger,
		CacheTTL:    time.Minute,
	}
}

func doJSON(t *testing.T, handler http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestEvaluateRequiresAuth(t *testing.T) {
	router := NewRouter(newTestDeps(t))

	rec := doJSON(t, router, http.MethodPost, "/v1/evaluate", "",
		EvaluateRequest{AnomalyScores: map[string]float64{"anomaly.cpu": 0.2}})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("no token: got %d, want 401", rec.Code)
	}

	rec = doJSON(t, router, http.MethodPost, "/v1/evaluate", "tsk_wrong_format_token",
		EvaluateRequest{AnomalyScores: map[string]float64{"anomaly.cpu": 0.2}})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("bad prefix: got %d, want 401", rec.Code)
	}

	rec = doJSON(t, router, http.MethodPost, "/v1/evaluate", "snk_test_wrong_secret",
		EvaluateRequest{AnomalyScores: map[string]float64{"anomaly.cpu": 0.2}})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("wrong secret: got %d, want 401", rec.Code)
	}
}

func TestEvaluateReturnsDecision(t *testing.T) {
	router := NewRouter(newTestDeps(t))

	rec := doJSON(t, router, http.MethodPost, "/v1/evaluate", testToken,
		EvaluateRequest{AnomalyScores: map[string]float64{"intrusion.ssh_bruteforce": 0.95}})
	if rec.Code != http.StatusOK {
		t.Fatalf("got %d, want 200: %s", rec.Code, rec.Body.String())
	}

	var resp EvaluateResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.DecisionID == "" {
		t.Fatal("expected a decision id")
	}
	if resp.Decision.Action != "lockdown" {
		t.Fatalf("action = %q, want lockdown", resp.Decision.Action)
	}
	if !resp.Decision.RequiresApproval {
		t.Fatal("lockdown must require approval")
	}
	if resp.Decision.ApprovalDeadline == nil {
		t.Fatal("expected an approval deadline")
	}
	if resp.Alert.Severity != "critical" {
		t.Fatalf("severity = %q, want critical", resp.Alert.Severity)
	}
}

func TestEvaluateRejectsEmptyScores(t *testing.T) {
	router := NewRouter(newTestDeps(t))

	rec := doJSON(t, router, http.MethodPost, "/v1/evaluate", testToken,
		EvaluateRequest{})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("got %d, want 400", rec.Code)
	}
}

func TestFeedbackRecordsVerdict(t *testing.T) {
	deps := newTestDeps(t)
	router := NewRouter(deps)

	rec := doJSON(t, router, http.MethodPost, "/v1/feedback", testToken, FeedbackRequest{
		DecisionID: "dec-1",
		Actor:      "analyst",
		Verdict:    "approved",
		Rationale:  "confirmed benign",
		Action:     "quarantine_host",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("got %d, want 200: %s", rec.Code, rec.Body.String())
	}

	var resp FeedbackResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Recorded {
		t.Fatal("expected recorded=true")
	}
	if resp.AutoResolutionRate <= 0 {
		t.Fatalf("auto resolution rate = %v, want > 0 after an approval", resp.AutoResolutionRate)
	}
	if got := len(deps.Coordinator.Feedback().History(10)); got != 1 {
		t.Fatalf("history length = %d, want 1", got)
	}
}

func TestFeedbackValidation(t *testing.T) {
	router := NewRouter(newTestDeps(t))

	rec := doJSON(t, router, http.MethodPost, "/v1/feedback", testToken,
		FeedbackRequest{Verdict: "approved"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing decision_id: got %d, want 400", rec.Code)
	}

	rec = doJSON(t, router, http.MethodPost, "/v1/feedback", testToken,
		FeedbackRequest{DecisionID: "dec-1"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing verdict: got %d, want 400", rec.Code)
	}
}

func TestThresholdsEndpoint(t *testing.T) {
	router := NewRouter(newTestDeps(t))

	rec := doJSON(t, router, http.MethodGet, "/api/sentinel/thresholds", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("got %d, want 200", rec.Code)
	}

	var resp ThresholdsResp
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	want := engine.DefaultThresholds()
	if resp.RequireElevated != want.RequireElevated || resp.Quarantine != want.Quarantine || resp.Lockdown != want.Lockdown {
		t.Fatalf("got %+v, want %+v", resp, want)
	}
}

func TestReplaceRulesSwapsAtomically(t *testing.T) {
	deps := newTestDeps(t)
	router := NewRouter(deps)

	next := RulesReq{Rules: []engine.RuleConfig{
		{Tripwire: "http_5xx_spike", Enabled: true, Threshold: 0.4, Description: "HTTP error surge"},
	}}
	rec := doJSON(t, router, http.MethodPut, "/api/sentinel/rules", "", next)
	if rec.Code != http.StatusOK {
		t.Fatalf("got %d, want 200: %s", rec.Code, rec.Body.String())
	}

	rules := deps.Coordinator.Policy().RuleEngine().Rules()
	if len(rules) != 1 || rules[0].Tripwire != "http_5xx_spike" {
		t.Fatalf("rules not swapped: %+v", rules)
	}

	rec = doJSON(t, router, http.MethodGet, "/api/sentinel/rules", "", nil)
	var resp RulesResp
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Rules) != 1 || resp.Rules[0].Tripwire != "http_5xx_spike" {
		t.Fatalf("GET after PUT = %+v", resp.Rules)
	}
}

func TestReplaceRulesRejectsInvalid(t *testing.T) {
	router := NewRouter(newTestDeps(t))

	rec := doJSON(t, router, http.MethodPut, "/api/sentinel/rules", "",
		RulesReq{Rules: []engine.RuleConfig{{Tripwire: "", Threshold: 1}}})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("empty tripwire: got %d, want 400", rec.Code)
	}

	rec = doJSON(t, router, http.MethodPut, "/api/sentinel/rules", "",
		RulesReq{Rules: []engine.RuleConfig{{Tripwire: "x", Threshold: -1}}})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("negative threshold: got %d, want 400", rec.Code)
	}
}

func TestAlertsEndpoint(t *testing.T) {
	deps := newTestDeps(t)
	router := NewRouter(deps)

	doJSON(t, router, http.MethodPost, "/v1/evaluate", testToken,
		EvaluateRequest{AnomalyScores: map[string]float64{"ddos.syn_rate": 500}})

	rec := doJSON(t, router, http.MethodGet, "/api/sentinel/alerts?limit=10", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("got %d, want 200", rec.Code)
	}
	var resp struct {
		Alerts []AlertResp `json:"alerts"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Alerts) != 1 {
		t.Fatalf("alerts = %d, want 1", len(resp.Alerts))
	}

	rec = doJSON(t, router, http.MethodGet, "/api/sentinel/alerts?limit=bogus", "", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad limit: got %d, want 400", rec.Code)
	}
}

func TestAutomationsEndpoint(t *testing.T) {
	deps := newTestDeps(t)
	router := NewRouter(deps)

	for i := 0; i < 9; i++ {
		deps.Coordinator.LogFeedback(feedback.Record{
			DecisionID: "dec-n",
			Verdict:    "approved",
			Action:     "restart_service",
			Timestamp:  time.Now(),
		})
	}

	rec := doJSON(t, router, http.MethodGet, "/api/sentinel/automations", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("got %d, want 200", rec.Code)
	}
	var resp AutomationsResp
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	found := false
	for _, a := range resp.Automations {
		if a.Key == "action:restart_service" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected action:restart_service in %+v", resp.Automations)
	}
}

func TestDecisionsUnavailableWithoutClickHouse(t *testing.T) {
	router := NewRouter(newTestDeps(t))

	rec := doJSON(t, router, http.MethodGet, "/api/sentinel/decisions", "", nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("got %d, want 503", rec.Code)
	}

	rec = doJSON(t, router, http.MethodGet, "/api/sentinel/decisions/abc", "", nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("got %d, want 503", rec.Code)
	}
}

func TestHealthz(t *testing.T) {
	router := NewRouter(newTestDeps(t))

	rec := doJSON(t, router, http.MethodGet, "/healthz", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("got %d, want 200", rec.Code)
	}
}

func TestCORSPreflight(t *testing.T) {
	router := NewRouter(newTestDeps(t))

	req := httptest.NewRequest(http.MethodOptions, "/v1/evaluate", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("got %d, want 204", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatal("missing CORS header")
	}
}
