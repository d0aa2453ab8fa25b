// Package metrics exposes Prometheus collectors for the decision
// pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors for the coordinator. Register
// once per process; the daemon constructs it in main.
type Metrics struct {
	evaluations      *prometheus.CounterVec
	ruleHits         *prometheus.CounterVec
	feedbackVerdicts *prometheus.CounterVec
	tuningRuns       prometheus.Counter
	driftFeatures    prometheus.Gauge
	autoResolution   prometheus.Gauge
	evalDuration     prometheus.Histogram
}

// New creates the collectors on the given registerer. Passing nil uses
// the default registry.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		evaluations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sentinel_policy_evaluations_total",
				Help: "Total number of policy evaluations by resulting action",
			},
			[]string{"action"},
		),
		ruleHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sentinel_rule_hits_total",
				Help: "Total number of tripwire hits by tripwire name",
			},
			[]string{"tripwire"},
		),
		feedbackVerdicts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sentinel_feedback_verdicts_total",
				Help: "Total number of operator feedback records by verdict",
			},
			[]string{"verdict"},
		),
		tuningRuns: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "sentinel_threshold_tuning_runs_total",
				Help: "Total number of threshold tuning passes applied",
			},
		),
		driftFeatures: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "sentinel_drift_features",
				Help: "Number of features with an active drift alert",
			},
		),
		autoResolution: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "sentinel_auto_resolution_rate",
				Help: "Global operator approval rate across all trust entries",
			},
		),
		evalDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "sentinel_evaluation_duration_seconds",
				Help:    "Policy evaluation latency",
				Buckets: prometheus.DefBuckets,
			},
		),
	}
}

// ObserveEvaluation records one finished evaluation.
func (m *Metrics) ObserveEvaluation(action string, tripwires []string, seconds float64) {
	if m == nil {
		return
	}
	m.evaluations.WithLabelValues(action).Inc()
	for _, tw := range tripwires {
		m.ruleHits.WithLabelValues(tw).Inc()
	}
	m.evalDuration.Observe(seconds)
}

// ObserveFeedback records one operator verdict.
func (m *Metrics) ObserveFeedback(verdict string) {
	if m == nil {
		return
	}
	m.feedbackVerdicts.WithLabelValues(verdict).Inc()
}

// ObserveTuning records one tuning pass and the signals it ran on.
func (m *Metrics) ObserveTuning(autoResolutionRate float64, activeDriftFeatures int) {
	if m == nil {
		return
	}
	m.tuningRuns.Inc()
	m.autoResolution.Set(autoResolutionRate)
	m.driftFeatures.Set(float64(activeDriftFeatures))
}
