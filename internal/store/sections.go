package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/jackzampolin/cram/internal/structure"
)

// Generation state for a single section within a pass.
const (
	SectionPending    = "pending"
	SectionProcessing = "processing"
	SectionSucceeded  = "succeeded"
	SectionFailed     = "failed"
)

// SectionRecord is a flattened outline row. Subsections reference their
// chapter through ParentID.
type SectionRecord struct {
	ID          string         `json:"id"`
	CourseID    string         `json:"course_id"`
	ParentID    string         `json:"parent_id,omitempty"`
	Title       string         `json:"title"`
	Level       string         `json:"level"`
	StartPage   int            `json:"start_page"`
	EndPage     int            `json:"end_page"`
	StartMarker string         `json:"-"`
	EndMarker   string         `json:"-"`
	Inventory   map[string]int `json:"inventory,omitempty"`
	GenStatus   string         `json:"gen_status"`
}

// ReplaceSections deletes any existing outline for the course and stores
// the detected one. Runs in a single transaction.
func (s *Store) ReplaceSections(ctx context.Context, courseID string, sections []structure.Section) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM sections WHERE course_id = ?`, courseID); err != nil {
		return fmt.Errorf("failed to clear sections: %w", err)
	}

	order := 0
	insert := func(sec structure.Section, parentID string) error {
		var inv sql.NullString
		if len(sec.Inventory) > 0 {
			data, err := json.Marshal(sec.Inventory)
			if err != nil {
				return fmt.Errorf("failed to marshal inventory: %w", err)
			}
			inv = sql.NullString{String: string(data), Valid: true}
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO sections (id, course_id, parent_id, title, level, start_page, end_page, start_marker, end_marker, inventory, sort_order)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			sec.ID, courseID, nullable(parentID), sec.Title, string(sec.Level),
			sec.PageRange.Start, sec.PageRange.End, sec.StartMarker, sec.EndMarker, inv, order)
		order++
		return err
	}

	for _, sec := range sections {
		if err := insert(sec, ""); err != nil {
			return fmt.Errorf("failed to insert section %s: %w", sec.ID, err)
		}
		for _, sub := range sec.Subsections {
			if err := insert(sub, sec.ID); err != nil {
				return fmt.Errorf("failed to insert subsection %s: %w", sub.ID, err)
			}
		}
	}

	return tx.Commit()
}

// ListSections returns all outline rows for a course in document order.
func (s *Store) ListSections(ctx context.Context, courseID string) ([]SectionRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, course_id, parent_id, title, level, start_page, end_page, start_marker, end_marker, inventory, gen_status
		 FROM sections WHERE course_id = ? ORDER BY sort_order`, courseID)
	if err != nil {
		return nil, fmt.Errorf("failed to query sections: %w", err)
	}
	defer rows.Close()

	var out []SectionRecord
	for rows.Next() {
		var rec SectionRecord
		var parent, inv sql.NullString
		if err := rows.Scan(&rec.ID, &rec.CourseID, &parent, &rec.Title, &rec.Level,
			&rec.StartPage, &rec.EndPage, &rec.StartMarker, &rec.EndMarker, &inv, &rec.GenStatus); err != nil {
			return nil, fmt.Errorf("failed to scan section: %w", err)
		}
		rec.ParentID = parent.String
		if inv.Valid {
			if err := json.Unmarshal([]byte(inv.String), &rec.Inventory); err != nil {
				return nil, fmt.Errorf("failed to unmarshal inventory: %w", err)
			}
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// ListChapters returns top-level sections only, in document order.
func (s *Store) ListChapters(ctx context.Context, courseID string) ([]SectionRecord, error) {
	all, err := s.ListSections(ctx, courseID)
	if err != nil {
		return nil, err
	}
	var chapters []SectionRecord
	for _, rec := range all {
		if rec.ParentID == "" {
			chapters = append(chapters, rec)
		}
	}
	return chapters, nil
}

// UpdateSectionInventory stores the enrichment pass result for a section.
func (s *Store) UpdateSectionInventory(ctx context.Context, sectionID string, inventory map[string]int) error {
	data, err := json.Marshal(inventory)
	if err != nil {
		return fmt.Errorf("failed to marshal inventory: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`UPDATE sections SET inventory = ? WHERE id = ?`, string(data), sectionID)
	if err != nil {
		return fmt.Errorf("failed to update inventory: %w", err)
	}
	return nil
}

// SetSectionGenStatus updates the per-section generation state.
func (s *Store) SetSectionGenStatus(ctx context.Context, sectionID, status string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE sections SET gen_status = ? WHERE id = ?`, status, sectionID)
	if err != nil {
		return fmt.Errorf("failed to update section status: %w", err)
	}
	return nil
}

// ResetSectionGenStatus marks every section of a course pending again.
func (s *Store) ResetSectionGenStatus(ctx context.Context, courseID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE sections SET gen_status = ? WHERE course_id = ?`, SectionPending, courseID)
	if err != nil {
		return fmt.Errorf("failed to reset section status: %w", err)
	}
	return nil
}

// FailInFlightSections marks sections still processing as failed. Used when
// a job is force-stopped mid-pass.
func (s *Store) FailInFlightSections(ctx context.Context, courseID string) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sections SET gen_status = ? WHERE course_id = ? AND gen_status = ?`,
		SectionFailed, courseID, SectionProcessing)
	if err != nil {
		return 0, fmt.Errorf("failed to fail in-flight sections: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func nullable(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}
