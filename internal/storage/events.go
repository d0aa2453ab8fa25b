package storage

import (
	"time"

	"go.uber.org/zap"
)

// EventWriter is the interface for persisting decision audit events.
// Write() must NEVER block the caller.
type EventWriter interface {
	Write(event *DecisionEvent)
	Close()
}

// DecisionEvent is one policy decision to be persisted for audit.
type DecisionEvent struct {
	DecisionID       string
	Timestamp        time.Time
	Action           string
	Confidence       float64
	Rationale        string
	TripwireNames    []string
	TripwireScores   []float64
	TripwireReasons  []string
	RequiresApproval bool
	ApprovalDeadline time.Time // zero when no approval required
	Severity         string
	LatencyMs        float64
}

// LogWriter is the fallback EventWriter used when no ClickHouse DSN is
// configured. It logs each decision instead of persisting it.
type LogWriter struct {
	logger *zap.Logger
}

// NewLogWriter creates a LogWriter.
func NewLogWriter(logger *zap.Logger) *LogWriter {
	return &LogWriter{logger: logger}
}

func (w *LogWriter) Write(event *DecisionEvent) {
	w.logger.Info("decision event",
		zap.String("decision_id", event.DecisionID),
		zap.String("action", event.Action),
		zap.Float64("confidence", event.Confidence),
		zap.Strings("tripwires", event.TripwireNames),
		zap.Bool("requires_approval", event.RequiresApproval),
		zap.Float64("latency_ms", event.LatencyMs),
	)
}

func (w *LogWriter) Close() {}
