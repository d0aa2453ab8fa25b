// Package featurestore persists telemetry feature windows so the
// coordinator can answer snapshot and timeline queries across restarts.
package featurestore

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/altproductionlabs/sentinel/internal/engine"
	"go.uber.org/zap"
	_ "modernc.org/sqlite" // SQLite driver
)

// defaultWindowCap bounds the in-memory ring of recent windows.
const defaultWindowCap = 512

// Window is one collected feature snapshot with its collection span.
type Window struct {
	Label    string
	Duration time.Duration
	Features engine.FeatureVector
}

// Store is a SQLite-backed feature window store with a bounded
// in-memory ring for hot reads.
type Store struct {
	db     *sql.DB
	logger *zap.Logger

	mu      sync.Mutex
	windows []Window
	cap     int
}

// Open creates (or reopens) the store at path. ":memory:" gives an
// ephemeral store for tests.
func Open(path string, windowCap int, logger *zap.Logger) (*Store, error) {
	if windowCap <= 0 {
		windowCap = defaultWindowCap
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("featurestore: open %s: %w", path, err)
	}
	// modernc's driver serializes writes; one connection avoids
	// SQLITE_BUSY on concurrent persists.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, fmt.Errorf("featurestore: %s: %w", pragma, err)
		}
	}

	schema := []string{
		`CREATE TABLE IF NOT EXISTS feature_windows (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			label TEXT NOT NULL,
			window_seconds REAL NOT NULL,
			created_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS feature_values (
			window_id INTEGER NOT NULL,
			feature TEXT NOT NULL,
			value REAL NOT NULL,
			FOREIGN KEY(window_id) REFERENCES feature_windows(id)
		)`,
	}
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			db.Close() //nolint:errcheck
			return nil, fmt.Errorf("featurestore: create schema: %w", err)
		}
	}

	logger.Info("feature store online", zap.String("path", path))
	return &Store{db: db, logger: logger, cap: windowCap}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Persist writes one window and appends it to the in-memory ring.
func (s *Store) Persist(window Window) error {
	createdAt := time.Now().UTC().Format(time.RFC3339Nano)

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("featurestore: begin: %w", err)
	}

	res, err := tx.Exec(
		"INSERT INTO feature_windows(label, window_seconds, created_at) VALUES (?, ?, ?)",
		window.Label, window.Duration.Seconds(), createdAt,
	)
	if err != nil {
		tx.Rollback() //nolint:errcheck
		return fmt.Errorf("featurestore: insert window: %w", err)
	}
	windowID, err := res.LastInsertId()
	if err != nil {
		tx.Rollback() //nolint:errcheck
		return fmt.Errorf("featurestore: window id: %w", err)
	}

	for feature, value := range window.Features {
		if _, err := tx.Exec(
			"INSERT INTO feature_values(window_id, feature, value) VALUES (?, ?, ?)",
			windowID, feature, value,
		); err != nil {
			tx.Rollback() //nolint:errcheck
			return fmt.Errorf("featurestore: insert value: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("featurestore: commit: %w", err)
	}

	s.mu.Lock()
	s.windows = append(s.windows, window)
	if len(s.windows) > s.cap {
		s.windows = s.windows[len(s.windows)-s.cap:]
	}
	s.mu.Unlock()

	s.logger.Debug("persisted feature window",
		zap.String("label", window.Label),
		zap.Int("features", len(window.Features)),
	)
	return nil
}

// Latest returns the most recent windows from the ring, oldest first.
func (s *Store) Latest(limit int) []Window {
	s.mu.Lock()
	defer s.mu.Unlock()

	if limit <= 0 || limit > len(s.windows) {
		limit = len(s.windows)
	}
	out := make([]Window, limit)
	copy(out, s.windows[len(s.windows)-limit:])
	return out
}

// Snapshot sums every ring window into one consolidated feature view.
func (s *Store) Snapshot() engine.FeatureVector {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := make(engine.FeatureVector)
	for _, window := range s.windows {
		for feature, value := range window.Features {
			snapshot[feature] += value
		}
	}
	return snapshot
}

// RollupPoint is one historical value of a feature.
type RollupPoint struct {
	CreatedAt time.Time
	Value     float64
}

// Rollup returns the persisted history for one feature, oldest first.
func (s *Store) Rollup(feature string) ([]RollupPoint, error) {
	rows, err := s.db.Query(`
		SELECT fw.created_at, fv.value
		FROM feature_values fv
		JOIN feature_windows fw ON fw.id = fv.window_id
		WHERE fv.feature = ?
		ORDER BY fw.id ASC
	`, feature)
	if err != nil {
		return nil, fmt.Errorf("featurestore: rollup: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var points []RollupPoint
	for rows.Next() {
		var createdAt string
		var point RollupPoint
		if err := rows.Scan(&createdAt, &point.Value); err != nil {
			return nil, fmt.Errorf("featurestore: rollup scan: %w", err)
		}
		ts, err := time.Parse(time.RFC3339Nano, createdAt)
		if err != nil {
			return nil, fmt.Errorf("featurestore: rollup timestamp: %w", err)
		}
		point.CreatedAt = ts
		points = append(points, point)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("featurestore: rollup rows: %w", err)
	}
	return points, nil
}
