// Package store persists policy configuration and feedback history in
// PostgreSQL so tuning survives coordinator restarts.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/altproductionlabs/sentinel/internal/engine"
	"github.com/altproductionlabs/sentinel/internal/feedback"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("store: not found")

// Store provides access to the PostgreSQL database.
type Store struct {
	db *sql.DB
}

// NewStore creates a Store backed by the given connection pool.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// EnsureSchema creates the coordinator tables when they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	for _, stmt := range []string{
		`CREATE TABLE IF NOT EXISTS policy_rules (
			position INT NOT NULL,
			tripwire TEXT NOT NULL,
			enabled BOOLEAN NOT NULL DEFAULT TRUE,
			threshold DOUBLE PRECISION NOT NULL DEFAULT 0,
			description TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS policy_thresholds (
			require_elevated DOUBLE PRECISION NOT NULL,
			quarantine DOUBLE PRECISION NOT NULL,
			lockdown DOUBLE PRECISION NOT NULL,
			applied_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS feedback_records (
			decision_id TEXT NOT NULL,
			actor TEXT NOT NULL DEFAULT '',
			verdict TEXT NOT NULL,
			rationale TEXT NOT NULL DEFAULT '',
			recorded_at TIMESTAMPTZ NOT NULL,
			feature_vector JSONB NOT NULL DEFAULT '{}',
			rule_hits JSONB NOT NULL DEFAULT '[]',
			action TEXT NOT NULL DEFAULT '',
			source_ip TEXT NOT NULL DEFAULT '',
			outcome TEXT NOT NULL DEFAULT ''
		)`,
	} {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("EnsureSchema: %w", err)
		}
	}
	return nil
}

// LoadRules returns the persisted rule list in its stored order.
func (s *Store) LoadRules(ctx context.Context) ([]engine.RuleConfig, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT tripwire, enabled, threshold, description
		FROM policy_rules
		ORDER BY position ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("LoadRules: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var rules []engine.RuleConfig
	for rows.Next() {
		var rule engine.RuleConfig
		if err := rows.Scan(&rule.Tripwire, &rule.Enabled, &rule.Threshold, &rule.Description); err != nil {
			return nil, fmt.Errorf("LoadRules scan: %w", err)
		}
		rules = append(rules, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("LoadRules rows: %w", err)
	}
	return rules, nil
}

// ReplaceRules swaps the whole persisted rule list in one transaction,
// mirroring the in-memory atomic swap.
func (s *Store) ReplaceRules(ctx context.Context, rules []engine.RuleConfig) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("ReplaceRules begin: %w", err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM policy_rules"); err != nil {
		tx.Rollback() //nolint:errcheck
		return fmt.Errorf("ReplaceRules delete: %w", err)
	}
	for i, rule := range rules {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO policy_rules (position, tripwire, enabled, threshold, description)
			VALUES ($1, $2, $3, $4, $5)
		`, i, rule.Tripwire, rule.Enabled, rule.Threshold, rule.Description); err != nil {
			tx.Rollback() //nolint:errcheck
			return fmt.Errorf("ReplaceRules insert: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("ReplaceRules commit: %w", err)
	}
	return nil
}

// SaveThresholds records a tuned ladder with its application time.
func (s *Store) SaveThresholds(ctx context.Context, t engine.Thresholds) error {
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO policy_thresholds (require_elevated, quarantine, lockdown, applied_at)
		VALUES ($1, $2, $3, $4)
	`, t.RequireElevated, t.Quarantine, t.Lockdown, time.Now().UTC()); err != nil {
		return fmt.Errorf("SaveThresholds: %w", err)
	}
	return nil
}

// LoadThresholds returns the most recently applied ladder.
func (s *Store) LoadThresholds(ctx context.Context) (engine.Thresholds, error) {
	var t engine.Thresholds
	err := s.db.QueryRowContext(ctx, `
		SELECT require_elevated, quarantine, lockdown
		FROM policy_thresholds
		ORDER BY applied_at DESC
		LIMIT 1
	`).Scan(&t.RequireElevated, &t.Quarantine, &t.Lockdown)
	if errors.Is(err, sql.ErrNoRows) {
		return engine.Thresholds{}, ErrNotFound
	}
	if err != nil {
		return engine.Thresholds{}, fmt.Errorf("LoadThresholds: %w", err)
	}
	return t, nil
}

// InsertFeedback appends one operator verdict to the history table.
func (s *Store) InsertFeedback(ctx context.Context, rec feedback.Record) error {
	features, err := json.Marshal(rec.FeatureVector)
	if err != nil {
		return fmt.Errorf("InsertFeedback marshal: %w", err)
	}
	hits, err := json.Marshal(rec.RuleHits)
	if err != nil {
		return fmt.Errorf("InsertFeedback marshal: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO feedback_records
			(decision_id, actor, verdict, rationale, recorded_at, feature_vector, rule_hits, action, source_ip, outcome)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, rec.DecisionID, rec.Actor, rec.Verdict, rec.Rationale, rec.Timestamp,
		features, hits, rec.Action, rec.SourceIP, rec.Outcome); err != nil {
		return fmt.Errorf("InsertFeedback: %w", err)
	}
	return nil
}

// RecentFeedback returns the newest records, newest first.
func (s *Store) RecentFeedback(ctx context.Context, limit int) ([]feedback.Record, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT decision_id, actor, verdict, rationale, recorded_at, feature_vector, rule_hits, action, source_ip, outcome
		FROM feedback_records
		ORDER BY recorded_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("RecentFeedback: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var records []feedback.Record
	for rows.Next() {
		var rec feedback.Record
		var features, hits []byte
		if err := rows.Scan(&rec.DecisionID, &rec.Actor, &rec.Verdict, &rec.Rationale,
			&rec.Timestamp, &features, &hits, &rec.Action, &rec.SourceIP, &rec.Outcome); err != nil {
			return nil, fmt.Errorf("RecentFeedback scan: %w", err)
		}
		if err := json.Unmarshal(features, &rec.FeatureVector); err != nil {
			return nil, fmt.Errorf("RecentFeedback features: %w", err)
		}
		if err := json.Unmarshal(hits, &rec.RuleHits); err != nil {
			return nil, fmt.Errorf("RecentFeedback hits: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("RecentFeedback rows: %w", err)
	}
	return records, nil
}
