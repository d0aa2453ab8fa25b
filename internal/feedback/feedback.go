// Package feedback converts operator verdicts on past decisions into
// trust scores, baseline drift detection, adjusted policy thresholds
// and auto-execution candidates.
package feedback

import (
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/altproductionlabs/sentinel/internal/engine"
	"go.uber.org/zap"
)

// DefaultDriftHorizon bounds how long a drift flag stays alert-worthy.
const DefaultDriftHorizon = 10 * time.Minute

// Record is one human decision about a past policy decision. Appended
// to an append-only history; never mutated after creation.
type Record struct {
	DecisionID    string               `json:"decision_id"`
	Actor         string               `json:"actor"`
	Verdict       string               `json:"verdict"`
	Rationale     string               `json:"rationale"`
	Timestamp     time.Time            `json:"timestamp"`
	FeatureVector engine.FeatureVector `json:"feature_vector"`
	RuleHits      []string             `json:"rule_hits"`
	Action        string               `json:"action,omitempty"`
	SourceIP      string               `json:"source_ip,omitempty"`
	Outcome       string               `json:"outcome,omitempty"`
}

// TrustState is a Laplace-smoothed approval/denial counter. Counts grow
// monotonically for the process lifetime.
type TrustState struct {
	Approvals uint64 `json:"approvals"`
	Denials   uint64 `json:"denials"`
}

func (s *TrustState) update(approved bool) {
	if approved {
		s.Approvals++
	} else {
		s.Denials++
	}
}

// Score returns the smoothed approval rate (a+1)/(a+d+2). Always in
// (0, 1); 0.5 with no observations.
func (s TrustState) Score() float64 {
	total := float64(s.Approvals+s.Denials) + 2
	return (float64(s.Approvals) + 1) / total
}

// approvedVerdicts classifies which operator verdicts count as approving
// the engine's decision. require_elevated approves the decision process,
// not the underlying risk; the conflation is deliberate and preserved.
var approvedVerdicts = map[string]bool{
	"allow":            true,
	"approved":         true,
	"approve":          true,
	"require_elevated": true,
}

// Loop owns all mutable feedback state. One mutex serializes every
// operation, mutating and reading alike, so readers always observe a
// consistent snapshot across the trust and baseline maps. Feedback
// arrives at human cadence, so a single lock is plenty.
type Loop struct {
	mu         sync.Mutex
	history    []Record
	approvals  map[string]uint64
	trust      map[string]*TrustState
	baseline   map[string]float64
	driftFlags map[string]time.Time
	now        func() time.Time
	logger     *zap.Logger
}

// NewLoop constructs an empty feedback loop. The hosting coordinator
// owns its lifecycle; it is never a package-level singleton.
func NewLoop(logger *zap.Logger) *Loop {
	return &Loop{
		approvals:  make(map[string]uint64),
		trust:      make(map[string]*TrustState),
		baseline:   make(map[string]float64),
		driftFlags: make(map[string]time.Time),
		now:        time.Now,
		logger:     logger,
	}
}

// SetClock overrides the wall clock. Test hook only.
func (l *Loop) SetClock(now func() time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.now = now
}

// Record appends a feedback record and updates every derived state:
// the verdict:rationale counter, the three trust keys, and the
// per-feature baselines. Counts are additive, never deduplicated;
// recording the same record twice increments everything twice.
func (l *Loop) Record(rec Record) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.history = append(l.history, rec)
	l.approvals[rec.Verdict+":"+rec.Rationale]++

	approved := approvedVerdicts[strings.ToLower(rec.Verdict)]

	action := rec.Action
	if action == "" {
		action = rec.Verdict
	}
	l.trustFor("action:" + action).update(approved)

	if len(rec.RuleHits) == 0 {
		l.trustFor("indicator:anomaly").update(approved)
	} else {
		for _, rule := range rec.RuleHits {
			l.trustFor("indicator:" + rule).update(approved)
		}
	}

	l.trustFor("source:" + l.sourceKey(rec)).update(approved)
	l.updateBaseline(rec)

	l.logger.Info("feedback recorded",
		zap.String("decision_id", rec.DecisionID),
		zap.String("verdict", rec.Verdict),
		zap.String("actor", rec.Actor),
		zap.Bool("approved", approved),
	)
}

func (l *Loop) trustFor(key string) *TrustState {
	state, ok := l.trust[key]
	if !ok {
		state = &TrustState{}
		l.trust[key] = state
	}
	return state
}

func (l *Loop) sourceKey(rec Record) string {
	if rec.SourceIP != "" {
		return rec.SourceIP
	}
	if _, ok := rec.FeatureVector["source_ip"]; ok {
		// Collectors occasionally encode the source as a numeric
		// feature; keep whatever the vector carried.
		return formatFeature(rec.FeatureVector["source_ip"])
	}
	return "unknown"
}

func formatFeature(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// updateBaseline folds the record's features into the EMA baselines.
// First sighting seeds the EMA with no drift check; afterwards the
// relative delta is measured against the previous EMA and a delta above
// 0.5 stamps (or re-stamps) the drift flag for that feature.
func (l *Loop) updateBaseline(rec Record) {
	for feature, value := range rec.FeatureVector {
		previous, seen := l.baseline[feature]
		if !seen {
			l.baseline[feature] = value
			continue
		}
		l.baseline[feature] = previous*0.9 + value*0.1
		divisor := previous
		if divisor < 0 {
			divisor = -divisor
		}
		if divisor < 1 {
			divisor = 1
		}
		delta := value - previous
		if delta < 0 {
			delta = -delta
		}
		if delta/divisor > 0.5 {
			l.driftFlags[feature] = rec.Timestamp
			l.logger.Warn("baseline drift detected",
				zap.String("feature", feature),
				zap.Float64("delta", delta/divisor),
				zap.Time("timestamp", rec.Timestamp),
			)
		}
	}
}

// AutoResolutionRate returns total approvals over total verdicts across
// every trust entry, or 0 with no data. A global calibration signal,
// not a per-key one.
func (l *Loop) AutoResolutionRate() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.autoResolutionRateLocked()
}

func (l *Loop) autoResolutionRateLocked() float64 {
	var approvals, denials uint64
	for _, state := range l.trust {
		approvals += state.Approvals
		denials += state.Denials
	}
	total := approvals + denials
	if total == 0 {
		return 0
	}
	return float64(approvals) / float64(total)
}

// DriftAlerts returns the drift-flagged features whose flag is within
// horizon of now. A horizon <= 0 uses the default 10 minute window.
func (l *Loop) DriftAlerts(horizon time.Duration) map[string]time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.driftAlertsLocked(horizon)
}

func (l *Loop) driftAlertsLocked(horizon time.Duration) map[string]time.Time {
	if horizon <= 0 {
		horizon = DefaultDriftHorizon
	}
	now := l.now()
	alerts := make(map[string]time.Time)
	for feature, ts := range l.driftFlags {
		if now.Sub(ts) <= horizon {
			alerts[feature] = ts
		}
	}
	return alerts
}

// Automation is one action promoted as safe for unattended execution.
type Automation struct {
	Key       string  `json:"key"`
	Approvals uint64  `json:"approvals"`
	Score     float64 `json:"score"`
}

// SuggestedAutomations returns action:* trust keys with at least
// minApprovals approvals and a smoothed score at or above
// scoreThreshold. Zero arguments fall back to the defaults (3, 0.7).
func (l *Loop) SuggestedAutomations(minApprovals uint64, scoreThreshold float64) []Automation {
	l.mu.Lock()
	defer l.mu.Unlock()

	if minApprovals == 0 {
		minApprovals = 3
	}
	if scoreThreshold == 0 {
		scoreThreshold = 0.7
	}

	var ready []Automation
	for key, state := range l.trust {
		if !strings.HasPrefix(key, "action:") {
			continue
		}
		if state.Approvals >= minApprovals && state.Score() >= scoreThreshold {
			ready = append(ready, Automation{Key: key, Approvals: state.Approvals, Score: state.Score()})
		}
	}
	return ready
}

// TrustSnapshot returns a copy of the trust map for reporting.
func (l *Loop) TrustSnapshot() map[string]TrustState {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make(map[string]TrustState, len(l.trust))
	for key, state := range l.trust {
		out[key] = *state
	}
	return out
}

// History returns the most recent records, newest last.
func (l *Loop) History(limit int) []Record {
	l.mu.Lock()
	defer l.mu.Unlock()

	if limit <= 0 || limit > len(l.history) {
		limit = len(l.history)
	}
	out := make([]Record, limit)
	copy(out, l.history[len(l.history)-limit:])
	return out
}

// TuneThresholds proposes an adjusted ladder from the current one.
// A high auto-resolution rate loosens the system (operators keep
// approving, escalate less); otherwise caution tightens it. Active
// drift overrides the approval trend and always lowers the ladder
// further. Lockdown is never auto-tuned.
func (l *Loop) TuneThresholds(current engine.Thresholds) engine.Thresholds {
	l.mu.Lock()
	defer l.mu.Unlock()

	adjusted := current
	if l.autoResolutionRateLocked() >= 0.7 {
		adjusted.RequireElevated = min(0.9, current.RequireElevated+0.05)
		adjusted.Quarantine = min(0.95, current.Quarantine+0.02)
	} else {
		adjusted.RequireElevated = max(0.3, current.RequireElevated-0.05)
	}
	if len(l.driftAlertsLocked(DefaultDriftHorizon)) > 0 {
		adjusted.RequireElevated = max(0.2, adjusted.RequireElevated-0.1)
		adjusted.Quarantine = max(0.4, adjusted.Quarantine-0.05)
	}

	l.logger.Debug("thresholds tuned",
		zap.Float64("require_elevated", adjusted.RequireElevated),
		zap.Float64("quarantine", adjusted.Quarantine),
		zap.Float64("lockdown", adjusted.Lockdown),
	)
	return adjusted
}
