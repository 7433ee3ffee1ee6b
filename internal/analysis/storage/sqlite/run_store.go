package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Run statuses.
const (
	RunStatusRunning  = "running"
	RunStatusComplete = "complete"
	RunStatusFailed   = "failed"
)

// AnalysisRun records one pipeline execution: its configuration snapshot and
// the chunk accounting reported at the end.
type AnalysisRun struct {
	RunID           string          `json:"run_id"`
	Label           string          `json:"label"`
	ConfigJSON      json.RawMessage `json:"config_json,omitempty"`
	Units           int             `json:"units"`
	Chunks          int             `json:"chunks"`
	ProcessedChunks int             `json:"processed_chunks"`
	SkippedChunks   int             `json:"skipped_chunks"`
	Events          int64           `json:"events"`
	Status          string          `json:"status"`
	StartedAt       int64           `json:"started_at"`
	FinishedAt      int64           `json:"finished_at,omitempty"`
}

// RunStore provides persistence for analysis runs.
type RunStore struct {
	db *sql.DB
}

// NewRunStore creates a new RunStore.
func NewRunStore(db *sql.DB) *RunStore {
	return &RunStore{db: db}
}

// Insert persists a new run. If RunID is empty, a UUID is generated. The run
// starts in status "running"; Finish writes the final accounting.
func (s *RunStore) Insert(run *AnalysisRun) error {
	if run.RunID == "" {
		run.RunID = uuid.New().String()
	}
	if run.StartedAt == 0 {
		run.StartedAt = time.Now().UnixNano()
	}
	if run.Status == "" {
		run.Status = RunStatusRunning
	}

	var configStr interface{}
	if len(run.ConfigJSON) > 0 {
		configStr = string(run.ConfigJSON)
	}

	return retryOnBusy(func() error {
		_, err := s.db.Exec(`
			INSERT INTO analysis_runs (
				run_id, label, config_json, units, chunks,
				processed_chunks, skipped_chunks, events, status,
				started_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			run.RunID, run.Label, configStr, run.Units, run.Chunks,
			run.ProcessedChunks, run.SkippedChunks, run.Events, run.Status,
			run.StartedAt,
		)
		return err
	})
}

// Finish writes the run's final status and chunk accounting.
func (s *RunStore) Finish(run *AnalysisRun) error {
	if run.FinishedAt == 0 {
		run.FinishedAt = time.Now().UnixNano()
	}

	return retryOnBusy(func() error {
		result, err := s.db.Exec(`
			UPDATE analysis_runs
			SET units = ?, chunks = ?, processed_chunks = ?, skipped_chunks = ?,
			    events = ?, status = ?, finished_at = ?
			WHERE run_id = ?`,
			run.Units, run.Chunks, run.ProcessedChunks, run.SkippedChunks,
			run.Events, run.Status, run.FinishedAt, run.RunID,
		)
		if err != nil {
			return err
		}
		n, err := result.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("run %s not found", run.RunID)
		}
		return nil
	})
}

// Get returns a single run by ID.
func (s *RunStore) Get(runID string) (*AnalysisRun, error) {
	row := s.db.QueryRow(`
		SELECT run_id, label, config_json, units, chunks,
		       processed_chunks, skipped_chunks, events, status,
		       started_at, finished_at
		FROM analysis_runs
		WHERE run_id = ?`, runID)

	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("run %s not found", runID)
	}
	return run, err
}

// List returns the most recent runs, newest first.
func (s *RunStore) List(limit int) ([]*AnalysisRun, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(`
		SELECT run_id, label, config_json, units, chunks,
		       processed_chunks, skipped_chunks, events, status,
		       started_at, finished_at
		FROM analysis_runs
		ORDER BY started_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []*AnalysisRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row rowScanner) (*AnalysisRun, error) {
	var run AnalysisRun
	var configStr sql.NullString
	var finishedAt sql.NullInt64
	err := row.Scan(
		&run.RunID, &run.Label, &configStr, &run.Units, &run.Chunks,
		&run.ProcessedChunks, &run.SkippedChunks, &run.Events, &run.Status,
		&run.StartedAt, &finishedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("scan run: %w", err)
	}
	if configStr.Valid {
		run.ConfigJSON = json.RawMessage(configStr.String)
	}
	if finishedAt.Valid {
		run.FinishedAt = finishedAt.Int64
	}
	return &run, nil
}
