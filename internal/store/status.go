package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Artifact kinds tracked by generation status.
const (
	KindQuiz = "quiz"
	KindNote = "note"
)

// Generation status states mirror job states plus partial.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusSucceeded  = "succeeded"
	StatusPartial    = "partial"
	StatusFailed     = "failed"
)

// GenerationStatus is the per-kind progress record a client polls.
type GenerationStatus struct {
	CourseID       string     `json:"course_id"`
	Kind           string     `json:"kind"`
	Status         string     `json:"status"`
	Progress       int        `json:"progress"`
	CurrentStep    string     `json:"current_step,omitempty"`
	ErrorMessage   string     `json:"error_message,omitempty"`
	StartedAt      *time.Time `json:"started_at,omitempty"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
	PartialContent *string    `json:"partial_content,omitempty"`
	SectionIndex   *int       `json:"section_index,omitempty"`
	TotalSections  *int       `json:"total_sections,omitempty"`
}

// InitGenerationStatus resets the status row for a kind to a fresh
// processing state. Progress starts at zero.
func (s *Store) InitGenerationStatus(ctx context.Context, courseID, kind string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO generation_status (course_id, kind, status, progress, started_at)
		 VALUES (?, ?, ?, 0, ?)
		 ON CONFLICT (course_id, kind) DO UPDATE SET
			status = excluded.status, progress = 0, current_step = '',
			error_message = '', started_at = excluded.started_at,
			completed_at = NULL, partial_content = NULL,
			section_index = NULL, total_sections = NULL`,
		courseID, kind, StatusProcessing, now())
	if err != nil {
		return fmt.Errorf("failed to init generation status: %w", err)
	}
	return nil
}

// UpdateProgress advances the progress row. Progress never moves backwards:
// a smaller value than the stored one leaves the stored value in place.
func (s *Store) UpdateProgress(ctx context.Context, courseID, kind string, progress int, step string, sectionIndex, totalSections *int) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE generation_status SET
			progress = MAX(progress, ?),
			current_step = ?,
			section_index = COALESCE(?, section_index),
			total_sections = COALESCE(?, total_sections)
		 WHERE course_id = ? AND kind = ?`,
		progress, step, intOrNil(sectionIndex), intOrNil(totalSections), courseID, kind)
	if err != nil {
		return fmt.Errorf("failed to update progress: %w", err)
	}
	return nil
}

// FinishGenerationStatus marks a kind terminal. Succeeded and partial force
// progress to 100; failed leaves the last progress in place and records the
// error.
func (s *Store) FinishGenerationStatus(ctx context.Context, courseID, kind, status, errorMessage string, partialContent *string) error {
	progress := `progress`
	if status == StatusSucceeded || status == StatusPartial {
		progress = `100`
	}
	_, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`UPDATE generation_status SET
			status = ?, progress = %s, error_message = ?, completed_at = ?,
			partial_content = COALESCE(?, partial_content)
		 WHERE course_id = ? AND kind = ?`, progress),
		status, errorMessage, now(), partialContent, courseID, kind)
	if err != nil {
		return fmt.Errorf("failed to finish generation status: %w", err)
	}
	return nil
}

// GetGenerationStatus fetches the status row for one kind.
func (s *Store) GetGenerationStatus(ctx context.Context, courseID, kind string) (*GenerationStatus, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT course_id, kind, status, progress, current_step, error_message,
			started_at, completed_at, partial_content, section_index, total_sections
		 FROM generation_status WHERE course_id = ? AND kind = ?`, courseID, kind)

	var g GenerationStatus
	var started, completed, partial sql.NullString
	var secIdx, secTotal sql.NullInt64
	err := row.Scan(&g.CourseID, &g.Kind, &g.Status, &g.Progress, &g.CurrentStep,
		&g.ErrorMessage, &started, &completed, &partial, &secIdx, &secTotal)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("status %s/%s: %w", courseID, kind, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan generation status: %w", err)
	}
	g.StartedAt = parseNullTime(started)
	g.CompletedAt = parseNullTime(completed)
	if partial.Valid {
		g.PartialContent = &partial.String
	}
	if secIdx.Valid {
		v := int(secIdx.Int64)
		g.SectionIndex = &v
	}
	if secTotal.Valid {
		v := int(secTotal.Int64)
		g.TotalSections = &v
	}
	return &g, nil
}

// ListGenerationStatus returns all kinds for a course.
func (s *Store) ListGenerationStatus(ctx context.Context, courseID string) ([]GenerationStatus, error) {
	var out []GenerationStatus
	for _, kind := range []string{KindQuiz, KindNote} {
		g, err := s.GetGenerationStatus(ctx, courseID, kind)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, *g)
	}
	return out, nil
}

func intOrNil(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}
