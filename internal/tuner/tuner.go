// Package tuner periodically re-derives the threshold ladder from
// accumulated feedback and applies it to the live policy engine.
package tuner

import (
	"context"
	"time"

	"github.com/altproductionlabs/sentinel/internal/engine"
	"github.com/altproductionlabs/sentinel/internal/feedback"
	"github.com/altproductionlabs/sentinel/internal/metrics"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// ThresholdSaver persists an applied ladder. Implemented by the
// Postgres store; nil disables persistence.
type ThresholdSaver interface {
	SaveThresholds(ctx context.Context, t engine.Thresholds) error
}

// Options configures a Tuner.
type Options struct {
	Apply        bool          // apply suggested ladders to the policy engine
	DriftHorizon time.Duration // passed through to drift queries
	Saver        ThresholdSaver
	Metrics      *metrics.Metrics
}

// Tuner owns the tuning schedule.
type Tuner struct {
	loop   *feedback.Loop
	policy *engine.PolicyEngine
	opts   Options
	logger *zap.Logger
	cron   *cron.Cron
}

// New creates a Tuner. Call Start to begin the schedule.
func New(loop *feedback.Loop, policy *engine.PolicyEngine, opts Options, logger *zap.Logger) *Tuner {
	return &Tuner{
		loop:   loop,
		policy: policy,
		opts:   opts,
		logger: logger,
	}
}

// Start registers RunOnce on the given cron schedule and starts the
// scheduler. Accepts standard cron expressions and @every descriptors.
func (t *Tuner) Start(schedule string) error {
	t.cron = cron.New()
	if _, err := t.cron.AddFunc(schedule, t.RunOnce); err != nil {
		return err
	}
	t.cron.Start()
	t.logger.Info("threshold tuner started", zap.String("schedule", schedule))
	return nil
}

// Stop halts the scheduler and waits for an in-flight run to finish.
func (t *Tuner) Stop() {
	if t.cron == nil {
		return
	}
	<-t.cron.Stop().Done()
}

// RunOnce performs one tuning pass: derive a ladder from feedback,
// apply it if it changed, persist it, and export the learning gauges.
func (t *Tuner) RunOnce() {
	current := t.policy.Thresholds()
	next := t.loop.TuneThresholds(current)

	rate := t.loop.AutoResolutionRate()
	drifting := len(t.loop.DriftAlerts(t.opts.DriftHorizon))
	t.opts.Metrics.ObserveTuning(rate, drifting)

	if next == current {
		t.logger.Debug("tuning pass made no change",
			zap.Float64("auto_resolution_rate", rate),
			zap.Int("drifting_features", drifting),
		)
		return
	}

	if !t.opts.Apply {
		t.logger.Info("suggested ladder not applied (apply_adjustments disabled)",
			zap.Float64("require_elevated", next.RequireElevated),
			zap.Float64("quarantine", next.Quarantine),
			zap.Float64("lockdown", next.Lockdown),
		)
		return
	}

	if err := t.policy.SetThresholds(next); err != nil {
		t.logger.Error("tuned ladder rejected", zap.Error(err))
		return
	}
	t.logger.Info("threshold ladder adjusted",
		zap.Float64("require_elevated", next.RequireElevated),
		zap.Float64("quarantine", next.Quarantine),
		zap.Float64("lockdown", next.Lockdown),
		zap.Float64("auto_resolution_rate", rate),
		zap.Int("drifting_features", drifting),
	)

	if t.opts.Saver != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := t.opts.Saver.SaveThresholds(ctx, next); err != nil {
			t.logger.Warn("threshold persistence failed", zap.Error(err))
		}
	}
}
