package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// ErrRunNotFound is returned when no run has the requested id.
var ErrRunNotFound = errors.New("run not found")

// Run statuses.
const (
	RunRunning   = "running"
	RunCompleted = "completed"
	RunFailed    = "failed"
)

// Run is the operational record of one research pipeline execution.
// It is read back only to look up logs, never to resume work.
type Run struct {
	ID        uuid.UUID `json:"id"`
	Query     string    `json:"query"`
	Model     string    `json:"model"`
	Breadth   int       `json:"breadth"`
	Depth     int       `json:"depth"`
	Status    string    `json:"status"`
	Report    *string   `json:"report,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type LogEntry struct {
	ID        int             `json:"id"`
	RunID     uuid.UUID       `json:"run_id"`
	Timestamp time.Time       `json:"timestamp"`
	Level     string          `json:"level"`
	Message   string          `json:"message"`
	Metadata  json.RawMessage `json:"metadata"`
}

func (db *PostgresDB) CreateRun(ctx context.Context, run Run) error {
	query := `
		INSERT INTO research_runs (id, query, model, breadth, depth, status)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	if _, err := db.Pool.Exec(ctx, query, run.ID, run.Query, run.Model, run.Breadth, run.Depth, RunRunning); err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}
	return nil
}

// FinishRun stores the terminal status and, for completed runs, the report.
func (db *PostgresDB) FinishRun(ctx context.Context, id uuid.UUID, status, report string) error {
	var reportArg *string
	if report != "" {
		reportArg = &report
	}
	_, err := db.Pool.Exec(ctx,
		"UPDATE research_runs SET status = $2, report = $3, updated_at = NOW() WHERE id = $1",
		id, status, reportArg)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	return nil
}

func (db *PostgresDB) GetRun(ctx context.Context, id uuid.UUID) (*Run, error) {
	query := `
		SELECT id, query, model, breadth, depth, status, report, created_at, updated_at
		FROM research_runs
		WHERE id = $1
	`
	run := &Run{}
	err := db.Pool.QueryRow(ctx, query, id).Scan(
		&run.ID, &run.Query, &run.Model, &run.Breadth, &run.Depth, &run.Status, &run.Report, &run.CreatedAt, &run.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

func (db *PostgresDB) InsertLog(ctx context.Context, entry LogEntry) error {
	query := `
		INSERT INTO research_logs (run_id, timestamp, level, message, metadata)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := db.Pool.Exec(ctx, query, entry.RunID, entry.Timestamp, entry.Level, entry.Message, []byte(entry.Metadata))
	return err
}

func (db *PostgresDB) RunLogs(ctx context.Context, runID uuid.UUID) ([]LogEntry, error) {
	query := `
		SELECT id, run_id, timestamp, level, message, metadata
		FROM research_logs
		WHERE run_id = $1
		ORDER BY id ASC
	`
	rows, err := db.Pool.Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get logs: %w", err)
	}
	defer rows.Close()

	var logs []LogEntry
	for rows.Next() {
		var l LogEntry
		if err := rows.Scan(&l.ID, &l.RunID, &l.Timestamp, &l.Level, &l.Message, &l.Metadata); err != nil {
			return nil, fmt.Errorf("failed to scan log: %w", err)
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}
