package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Job lifecycle states.
const (
	JobPending    = "pending"
	JobProcessing = "processing"
	JobSucceeded  = "succeeded"
	JobPartial    = "partial"
	JobFailed     = "failed"
)

// JobRecord tracks one generation run for a course. At most one job row
// exists per course; retries reuse the row and bump Attempts.
type JobRecord struct {
	ID           string    `json:"id"`
	CourseID     string    `json:"course_id"`
	Status       string    `json:"status"`
	Stage        string    `json:"stage,omitempty"`
	Attempts     int       `json:"attempts"`
	ErrorMessage string    `json:"error_message,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// ClaimJob atomically claims the generation job for a course. If no job
// exists, one is created in the processing state and claimed=true. If a job
// exists and is processing with a heartbeat newer than staleAfter, the
// existing job is returned with claimed=false. A stale or terminal job is
// taken over: status reset to processing, attempts incremented.
func (s *Store) ClaimJob(ctx context.Context, courseID, jobID string, staleAfter time.Duration) (*JobRecord, bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	existing, err := scanJob(tx.QueryRowContext(ctx,
		`SELECT id, course_id, status, stage, attempts, error_message, created_at, updated_at
		 FROM jobs WHERE course_id = ?`, courseID))
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, false, err
	}

	ts := now()
	if existing == nil {
		job := &JobRecord{
			ID:        jobID,
			CourseID:  courseID,
			Status:    JobProcessing,
			Attempts:  1,
			CreatedAt: parseTime(ts),
			UpdatedAt: parseTime(ts),
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO jobs (id, course_id, status, attempts, created_at, updated_at)
			 VALUES (?, ?, ?, 1, ?, ?)`,
			job.ID, courseID, JobProcessing, ts, ts)
		if err != nil {
			return nil, false, fmt.Errorf("failed to insert job: %w", err)
		}
		return job, true, tx.Commit()
	}

	if existing.Status == JobProcessing && time.Since(existing.UpdatedAt) < staleAfter {
		return existing, false, tx.Commit()
	}

	existing.Status = JobProcessing
	existing.Stage = ""
	existing.ErrorMessage = ""
	existing.Attempts++
	existing.UpdatedAt = parseTime(ts)
	_, err = tx.ExecContext(ctx,
		`UPDATE jobs SET status = ?, stage = '', error_message = '', attempts = ?, updated_at = ? WHERE id = ?`,
		JobProcessing, existing.Attempts, ts, existing.ID)
	if err != nil {
		return nil, false, fmt.Errorf("failed to reclaim job: %w", err)
	}
	return existing, true, tx.Commit()
}

// GetJob fetches the job for a course.
func (s *Store) GetJob(ctx context.Context, courseID string) (*JobRecord, error) {
	return scanJob(s.db.QueryRowContext(ctx,
		`SELECT id, course_id, status, stage, attempts, error_message, created_at, updated_at
		 FROM jobs WHERE course_id = ?`, courseID))
}

// UpdateJobStage records the pipeline stage and refreshes the heartbeat.
func (s *Store) UpdateJobStage(ctx context.Context, jobID, stage string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET stage = ?, updated_at = ? WHERE id = ?`, stage, now(), jobID)
	if err != nil {
		return fmt.Errorf("failed to update job stage: %w", err)
	}
	return nil
}

// FinishJob moves a job into a terminal state.
func (s *Store) FinishJob(ctx context.Context, jobID, status, errorMessage string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET status = ?, error_message = ?, updated_at = ? WHERE id = ?`,
		status, errorMessage, now(), jobID)
	if err != nil {
		return fmt.Errorf("failed to finish job: %w", err)
	}
	return nil
}

// HeartbeatJob refreshes updated_at so a live job is not considered stale.
func (s *Store) HeartbeatJob(ctx context.Context, jobID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET updated_at = ? WHERE id = ?`, now(), jobID)
	if err != nil {
		return fmt.Errorf("failed to heartbeat job: %w", err)
	}
	return nil
}

func scanJob(row *sql.Row) (*JobRecord, error) {
	var j JobRecord
	var created, updated string
	err := row.Scan(&j.ID, &j.CourseID, &j.Status, &j.Stage, &j.Attempts, &j.ErrorMessage, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan job: %w", err)
	}
	j.CreatedAt = parseTime(created)
	j.UpdatedAt = parseTime(updated)
	return &j, nil
}
