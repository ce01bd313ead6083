// Package store persists validation history in a local SQLite database so
// past runs and their per-instance verdicts can be listed after the fact.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"swevalidator/internal/logging"
	"swevalidator/internal/validator"
)

// timeLayout is fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// OutcomeRecord is the stored verdict for one data point.
type OutcomeRecord struct {
	RunID      string
	Source     string
	InstanceID string
	Success    bool
	ErrorType  string
	Message    string
}

// RunRecord is one stored validation run.
type RunRecord struct {
	ID         string
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time
	Instances  int
	Passed     int
	Failed     int

	// Outcomes is only populated when recording; RecentRuns leaves it empty.
	Outcomes []OutcomeRecord
}

// Duration returns how long the run took.
func (r RunRecord) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// HistoryStore records validation runs in SQLite.
type HistoryStore struct {
	db     *sql.DB
	dbPath string
	mu     sync.Mutex
}

// OpenHistory creates or opens the history database at path.
func OpenHistory(path string) (*HistoryStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	s := &HistoryStore{db: db, dbPath: path}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	logging.StoreDebug("Opened history database %s", path)
	return s, nil
}

// Close closes the database connection.
func (s *HistoryStore) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *HistoryStore) Path() string {
	return s.dbPath
}

func (s *HistoryStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		run_id TEXT NOT NULL UNIQUE,
		started_at TEXT NOT NULL,
		finished_at TEXT NOT NULL,
		instances INTEGER NOT NULL,
		passed INTEGER NOT NULL,
		failed INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);

	CREATE TABLE IF NOT EXISTS outcomes (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL REFERENCES runs(run_id),
		source TEXT NOT NULL,
		instance_id TEXT NOT NULL,
		success INTEGER NOT NULL,
		error_type TEXT,
		message TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_outcomes_run ON outcomes(run_id);
	CREATE INDEX IF NOT EXISTS idx_outcomes_instance ON outcomes(instance_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// RecordRun stores a run and its outcomes in one transaction.
func (s *HistoryStore) RecordRun(ctx context.Context, run RunRecord) error {
	if run.RunID == "" {
		return fmt.Errorf("run id is required")
	}
	if run.ID == "" {
		run.ID = uuid.NewString()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (id, run_id, started_at, finished_at, instances, passed, failed)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.RunID, formatTime(run.StartedAt), formatTime(run.FinishedAt),
		run.Instances, run.Passed, run.Failed)
	if err != nil {
		return fmt.Errorf("failed to insert run %s: %w", run.RunID, err)
	}

	for _, o := range run.Outcomes {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO outcomes (run_id, source, instance_id, success, error_type, message)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			run.RunID, o.Source, o.InstanceID, boolToInt(o.Success), o.ErrorType, o.Message)
		if err != nil {
			return fmt.Errorf("failed to insert outcome for %s: %w", o.InstanceID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run %s: %w", run.RunID, err)
	}
	logging.Store("Recorded run %s (%d passed, %d failed)", run.RunID, run.Passed, run.Failed)
	return nil
}

var _ validator.Recorder = (*HistoryStore)(nil)

// RecordSummary stores a finished validation run.
func (s *HistoryStore) RecordSummary(ctx context.Context, summary *validator.Summary, startedAt, finishedAt time.Time) error {
	return s.RecordRun(ctx, FromSummary(summary, startedAt, finishedAt))
}

// FromSummary converts a validation summary into a run record.
func FromSummary(summary *validator.Summary, startedAt, finishedAt time.Time) RunRecord {
	run := RunRecord{
		RunID:      summary.RunID,
		StartedAt:  startedAt,
		FinishedAt: finishedAt,
		Instances:  len(summary.Outcomes),
	}
	for _, o := range summary.Outcomes {
		rec := OutcomeRecord{
			RunID:      summary.RunID,
			Source:     o.Source,
			InstanceID: o.InstanceID,
			Success:    o.Success(),
		}
		if o.Err != nil {
			rec.ErrorType = string(o.Err.Type)
			rec.Message = o.Err.Message
			run.Failed++
		} else {
			run.Passed++
		}
		run.Outcomes = append(run.Outcomes, rec)
	}
	return run
}

// RecentRuns returns up to limit runs, newest first.
func (s *HistoryStore) RecentRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, run_id, started_at, finished_at, instances, passed, failed
		 FROM runs ORDER BY started_at DESC, run_id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []RunRecord
	for rows.Next() {
		var r RunRecord
		var started, finished string
		if err := rows.Scan(&r.ID, &r.RunID, &started, &finished, &r.Instances, &r.Passed, &r.Failed); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		r.StartedAt = parseTime(started)
		r.FinishedAt = parseTime(finished)
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// RunOutcomes returns the outcomes of one run in batch order.
func (s *HistoryStore) RunOutcomes(ctx context.Context, runID string) ([]OutcomeRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, source, instance_id, success, COALESCE(error_type, ''), COALESCE(message, '')
		 FROM outcomes WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query outcomes: %w", err)
	}
	defer rows.Close()

	var outcomes []OutcomeRecord
	for rows.Next() {
		var o OutcomeRecord
		var success int
		if err := rows.Scan(&o.RunID, &o.Source, &o.InstanceID, &success, &o.ErrorType, &o.Message); err != nil {
			return nil, fmt.Errorf("failed to scan outcome: %w", err)
		}
		o.Success = success != 0
		outcomes = append(outcomes, o)
	}
	return outcomes, rows.Err()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		logging.StoreWarn("Unparseable timestamp %q in history", s)
		return time.Time{}
	}
	return t
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
