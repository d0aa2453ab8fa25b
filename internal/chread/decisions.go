// Package chread provides read access to the ClickHouse decision audit
// table for the HTTP API.
package chread

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"go.uber.org/zap"
)

// Reader provides read access to the sentinel_decisions table.
type Reader struct {
	conn   driver.Conn
	logger *zap.Logger
}

// NewReader opens a ClickHouse connection for read queries.
func NewReader(dsn string, logger *zap.Logger) (*Reader, error) {
	opts, err := clickhouse.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("NewReader: %w", err)
	}
	if opts.TLS == nil {
		opts.TLS = &tls.Config{}
	}

	conn, err := clickhouse.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("NewReader: %w", err)
	}
	if err := conn.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("NewReader: %w", err)
	}

	return &Reader{conn: conn, logger: logger}, nil
}

// Close closes the ClickHouse connection.
func (r *Reader) Close() error {
	return r.conn.Close()
}

// DecisionRow represents a single row from the sentinel_decisions table.
type DecisionRow struct {
	DecisionID       string
	Timestamp        time.Time
	Action           string
	Confidence       float64
	Rationale        string
	TripwireNames    []string
	TripwireScores   []float64
	TripwireReasons  []string
	RequiresApproval uint8
	ApprovalDeadline time.Time
	Severity         string
	LatencyMs        float64
}

// ListDecisionsParams holds filters and pagination for decision listing.
type ListDecisionsParams struct {
	Action    *string
	Tripwire  *string
	StartTime *time.Time
	EndTime   *time.Time
	Page      int
	PageSize  int
}

// ListDecisions returns paginated, filtered decisions newest first,
// plus the total matching count.
func (r *Reader) ListDecisions(ctx context.Context, params ListDecisionsParams) ([]DecisionRow, int, error) {
	conditions := []string{"1 = 1"}
	args := []any{}

	if params.Action != nil {
		conditions = append(conditions, "action = @action")
		args = append(args, clickhouse.Named("action", *params.Action))
	}
	if params.Tripwire != nil {
		conditions = append(conditions, "has(tripwire_names, @tripwire)")
		args = append(args, clickhouse.Named("tripwire", *params.Tripwire))
	}
	if params.StartTime != nil {
		conditions = append(conditions, "timestamp >= @start_time")
		args = append(args, clickhouse.Named("start_time", *params.StartTime))
	}
	if params.EndTime != nil {
		conditions = append(conditions, "timestamp <= @end_time")
		args = append(args, clickhouse.Named("end_time", *params.EndTime))
	}

	where := strings.Join(conditions, " AND ")

	var total uint64
	countQuery := "SELECT count() FROM sentinel_decisions WHERE " + where
	if err := r.conn.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("ListDecisions count: %w", err)
	}

	if params.Page < 1 {
		params.Page = 1
	}
	if params.PageSize < 1 || params.PageSize > 200 {
		params.PageSize = 50
	}
	offset := (params.Page - 1) * params.PageSize

	query := fmt.Sprintf(`
		SELECT decision_id, timestamp, action, confidence, rationale,
		       tripwire_names, tripwire_scores, tripwire_reasons,
		       requires_approval, approval_deadline, severity, latency_ms
		FROM sentinel_decisions
		WHERE %s
		ORDER BY timestamp DESC
		LIMIT %d OFFSET %d
	`, where, params.PageSize, offset)

	rows, err := r.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("ListDecisions query: %w", err)
	}
	defer rows.Close()

	var out []DecisionRow
	for rows.Next() {
		var row DecisionRow
		if err := rows.Scan(
			&row.DecisionID, &row.Timestamp, &row.Action, &row.Confidence, &row.Rationale,
			&row.TripwireNames, &row.TripwireScores, &row.TripwireReasons,
			&row.RequiresApproval, &row.ApprovalDeadline, &row.Severity, &row.LatencyMs,
		); err != nil {
			return nil, 0, fmt.Errorf("ListDecisions scan: %w", err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("ListDecisions rows: %w", err)
	}

	return out, int(total), nil
}

// GetDecision returns a single decision by id, or nil when absent.
func (r *Reader) GetDecision(ctx context.Context, decisionID string) (*DecisionRow, error) {
	query := `
		SELECT decision_id, timestamp, action, confidence, rationale,
		       tripwire_names, tripwire_scores, tripwire_reasons,
		       requires_approval, approval_deadline, severity, latency_ms
		FROM sentinel_decisions
		WHERE decision_id = @decision_id
		LIMIT 1
	`
	rows, err := r.conn.Query(ctx, query, clickhouse.Named("decision_id", decisionID))
	if err != nil {
		return nil, fmt.Errorf("GetDecision: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, nil
	}
	var row DecisionRow
	if err := rows.Scan(
		&row.DecisionID, &row.Timestamp, &row.Action, &row.Confidence, &row.Rationale,
		&row.TripwireNames, &row.TripwireScores, &row.TripwireReasons,
		&row.RequiresApproval, &row.ApprovalDeadline, &row.Severity, &row.LatencyMs,
	); err != nil {
		return nil, fmt.Errorf("GetDecision scan: %w", err)
	}
	return &row, nil
}
