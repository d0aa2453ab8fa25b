package api

import (
	"net/http"
	"time"

	"github.com/altproductionlabs/sentinel/internal/chread"
	"github.com/altproductionlabs/sentinel/internal/config"
	"github.com/altproductionlabs/sentinel/internal/coordinator"
	"github.com/altproductionlabs/sentinel/internal/featurestore"
	"github.com/altproductionlabs/sentinel/internal/store"
	"go.uber.org/zap"
)

// Dependencies holds shared state injected into all HTTP handlers.
type Dependencies struct {
	Coordinator *coordinator.Coordinator
	Features    *featurestore.Store // nil if the feature store is disabled
	Reader      *chread.Reader      // nil if ClickHouse unavailable
	Store       *store.Store        // nil if Postgres unavailable
	Keys        []config.APIKey
	Learning    config.LearningConfig
	Metrics     http.Handler // nil disables /metrics
	Logger      *zap.Logger
	CacheTTL    time.Duration
}

// NewRouter builds the HTTP mux with all routes wired up.
func NewRouter(deps *Dependencies) http.Handler {
	mux := http.NewServeMux()

	// Decision endpoints (auth required via Bearer snk_ token)
	mux.HandleFunc("POST /v1/evaluate", deps.authMiddleware(deps.handleEvaluate))
	mux.HandleFunc("POST /v1/feedback", deps.authMiddleware(deps.handleFeedback))

	// Operator surface (no auth — dashboard auth added later)
	mux.HandleFunc("GET /api/sentinel/alerts", deps.handleListAlerts)
	mux.HandleFunc("GET /api/sentinel/automations", deps.handleListAutomations)
	mux.HandleFunc("GET /api/sentinel/thresholds", deps.handleGetThresholds)
	mux.HandleFunc("GET /api/sentinel/drift", deps.handleGetDrift)
	mux.HandleFunc("GET /api/sentinel/rules", deps.handleGetRules)
	mux.HandleFunc("PUT /api/sentinel/rules", deps.handleReplaceRules)
	mux.HandleFunc("GET /api/sentinel/feedback", deps.handleListFeedback)

	// Decision history (ClickHouse-backed)
	mux.HandleFunc("GET /api/sentinel/decisions", deps.handleListDecisions)
	mux.HandleFunc("GET /api/sentinel/decisions/{decision_id}", deps.handleGetDecision)

	// Feature timelines (SQLite-backed)
	mux.HandleFunc("GET /api/sentinel/features/{feature}/rollup", deps.handleFeatureRollup)

	// Health check
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// Prometheus scrape endpoint
	if deps.Metrics != nil {
		mux.Handle("GET /metrics", deps.Metrics)
	}

	return corsMiddleware(requestLogging(mux, deps.Logger))
}
