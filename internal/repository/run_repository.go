package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jengzang/svi-coverage-go/internal/analysis"
	"github.com/jengzang/svi-coverage-go/internal/models"
)

// RunRepository handles database operations for pipeline runs
type RunRepository struct {
	db *sql.DB
}

// NewRunRepository creates a new run repository
func NewRunRepository(db *sql.DB) *RunRepository {
	return &RunRepository{db: db}
}

var _ analysis.RunRecorder = (*RunRepository)(nil)

// Start records a new running step and returns its id
func (r *RunRepository) Start(ctx context.Context, step string) (string, error) {
	id := uuid.NewString()
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO pipeline_runs (id, step, status, started_at) VALUES (?, ?, ?, ?)`,
		id, step, models.RunStatusRunning, time.Now().UTC(),
	)
	if err != nil {
		return "", fmt.Errorf("failed to create pipeline run: %w", err)
	}
	return id, nil
}

// Complete marks a run as completed
func (r *RunRepository) Complete(ctx context.Context, runID string, p *analysis.Progress) error {
	return r.finish(ctx, runID, models.RunStatusCompleted, p, p.Message)
}

// Fail marks a run as failed
func (r *RunRepository) Fail(ctx context.Context, runID string, p *analysis.Progress, errorMsg string) error {
	return r.finish(ctx, runID, models.RunStatusFailed, p, errorMsg)
}

func (r *RunRepository) finish(ctx context.Context, runID, status string, p *analysis.Progress, message string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE pipeline_runs
		SET status = ?, processed = ?, failed = ?, message = ?, finished_at = ?
		WHERE id = ?`,
		status, p.Processed, p.Failed, message, time.Now().UTC(), runID,
	)
	if err != nil {
		return fmt.Errorf("failed to update pipeline run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update pipeline run: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("pipeline run %s: %w", runID, ErrNotFound)
	}
	return nil
}

// GetByID retrieves a pipeline run by id
func (r *RunRepository) GetByID(ctx context.Context, id string) (*models.PipelineRun, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, step, status, processed, failed, message, started_at, finished_at
		FROM pipeline_runs WHERE id = ?`, id)

	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("pipeline run %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get pipeline run: %w", err)
	}
	return run, nil
}

// List returns the most recent runs, optionally for a single step
func (r *RunRepository) List(ctx context.Context, step string, limit int) ([]models.PipelineRun, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}

	query := `
		SELECT id, step, status, processed, failed, message, started_at, finished_at
		FROM pipeline_runs`
	var args []interface{}
	if step != "" {
		query += " WHERE step = ?"
		args = append(args, step)
	}
	query += " ORDER BY started_at DESC LIMIT ?"
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list pipeline runs: %w", err)
	}
	defer rows.Close()

	runs := []models.PipelineRun{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan pipeline run: %w", err)
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(s rowScanner) (*models.PipelineRun, error) {
	run := &models.PipelineRun{}
	var finished sql.NullTime
	err := s.Scan(
		&run.ID,
		&run.Step,
		&run.Status,
		&run.Processed,
		&run.Failed,
		&run.Message,
		&run.StartedAt,
		&finished,
	)
	if err != nil {
		return nil, err
	}
	if finished.Valid {
		t := finished.Time
		run.FinishedAt = &t
	}
	return run, nil
}
