package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

// ExtractedGraphic is a figure or diagram surfaced from the document.
// Elements, Suggestions, and RelatedConcepts are nil until a vision
// analysis has filled them in.
type ExtractedGraphic struct {
	ID              string   `json:"id"`
	CourseID        string   `json:"course_id"`
	PageNumber      int      `json:"page_number"`
	GraphicType     string   `json:"graphic_type"`
	Description     string   `json:"description"`
	Confidence      float64  `json:"confidence"`
	Elements        []string `json:"elements,omitempty"`
	Suggestions     []string `json:"suggestions,omitempty"`
	RelatedConcepts []string `json:"related_concepts,omitempty"`
}

// ManifestItem is a graphic reference emitted during section generation,
// before any dedicated analysis has run.
type ManifestItem struct {
	ID          string `json:"id"`
	CourseID    string `json:"course_id"`
	SectionID   string `json:"section_id"`
	Description string `json:"description"`
	Type        string `json:"type"`
	PageNumber  int    `json:"page_number"`
}

// SaveGraphic inserts or replaces a graphic record.
func (s *Store) SaveGraphic(ctx context.Context, g ExtractedGraphic) error {
	elements, err := marshalNullable(g.Elements)
	if err != nil {
		return err
	}
	suggestions, err := marshalNullable(g.Suggestions)
	if err != nil {
		return err
	}
	concepts, err := marshalNullable(g.RelatedConcepts)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO graphics
			(id, course_id, page_number, graphic_type, description, confidence, elements, suggestions, related_concepts)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		g.ID, g.CourseID, g.PageNumber, g.GraphicType, g.Description, g.Confidence,
		elements, suggestions, concepts)
	if err != nil {
		return fmt.Errorf("failed to save graphic: %w", err)
	}
	return nil
}

// ListGraphics returns all graphics for a course ordered by page.
func (s *Store) ListGraphics(ctx context.Context, courseID string) ([]ExtractedGraphic, error) {
	return s.queryGraphics(ctx,
		`SELECT id, course_id, page_number, graphic_type, description, confidence, elements, suggestions, related_concepts
		 FROM graphics WHERE course_id = ? ORDER BY page_number, id`, courseID)
}

// SelectForReanalysis returns graphics whose analysis is missing or weak:
// confidence below the threshold, or no elements recorded at all.
func (s *Store) SelectForReanalysis(ctx context.Context, courseID string, confidenceThreshold float64) ([]ExtractedGraphic, error) {
	return s.queryGraphics(ctx,
		`SELECT id, course_id, page_number, graphic_type, description, confidence, elements, suggestions, related_concepts
		 FROM graphics WHERE course_id = ? AND (confidence < ? OR elements IS NULL)
		 ORDER BY page_number, id`, courseID, confidenceThreshold)
}

// UpdateGraphicAnalysis stores a fresh analysis result for a graphic.
func (s *Store) UpdateGraphicAnalysis(ctx context.Context, id string, confidence float64, elements, suggestions, relatedConcepts []string) error {
	el, err := marshalNullable(elements)
	if err != nil {
		return err
	}
	sg, err := marshalNullable(suggestions)
	if err != nil {
		return err
	}
	rc, err := marshalNullable(relatedConcepts)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`UPDATE graphics SET confidence = ?, elements = ?, suggestions = ?, related_concepts = ? WHERE id = ?`,
		confidence, el, sg, rc, id)
	if err != nil {
		return fmt.Errorf("failed to update graphic analysis: %w", err)
	}
	return nil
}

// SaveManifestItems stores the graphic references from one section pass.
func (s *Store) SaveManifestItems(ctx context.Context, items []ManifestItem) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, item := range items {
		_, err = tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO manifest_items (id, course_id, section_id, description, type, page_number)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			item.ID, item.CourseID, item.SectionID, item.Description, item.Type, item.PageNumber)
		if err != nil {
			return fmt.Errorf("failed to insert manifest item: %w", err)
		}
	}
	return tx.Commit()
}

// ListManifestItems returns all manifest items for a course.
func (s *Store) ListManifestItems(ctx context.Context, courseID string) ([]ManifestItem, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, course_id, section_id, description, type, page_number
		 FROM manifest_items WHERE course_id = ? ORDER BY page_number, id`, courseID)
	if err != nil {
		return nil, fmt.Errorf("failed to query manifest items: %w", err)
	}
	defer rows.Close()

	var out []ManifestItem
	for rows.Next() {
		var m ManifestItem
		if err := rows.Scan(&m.ID, &m.CourseID, &m.SectionID, &m.Description, &m.Type, &m.PageNumber); err != nil {
			return nil, fmt.Errorf("failed to scan manifest item: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *Store) queryGraphics(ctx context.Context, query string, args ...any) ([]ExtractedGraphic, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query graphics: %w", err)
	}
	defer rows.Close()

	var out []ExtractedGraphic
	for rows.Next() {
		var g ExtractedGraphic
		var elements, suggestions, concepts sql.NullString
		if err := rows.Scan(&g.ID, &g.CourseID, &g.PageNumber, &g.GraphicType,
			&g.Description, &g.Confidence, &elements, &suggestions, &concepts); err != nil {
			return nil, fmt.Errorf("failed to scan graphic: %w", err)
		}
		if err := unmarshalNullable(elements, &g.Elements); err != nil {
			return nil, err
		}
		if err := unmarshalNullable(suggestions, &g.Suggestions); err != nil {
			return nil, err
		}
		if err := unmarshalNullable(concepts, &g.RelatedConcepts); err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

func marshalNullable(v []string) (sql.NullString, error) {
	if v == nil {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("failed to marshal list: %w", err)
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func unmarshalNullable(v sql.NullString, dst *[]string) error {
	if !v.Valid {
		return nil
	}
	if err := json.Unmarshal([]byte(v.String), dst); err != nil {
		return fmt.Errorf("failed to unmarshal list: %w", err)
	}
	return nil
}
