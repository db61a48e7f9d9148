package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// Question is a generated multiple-choice quiz item.
type Question struct {
	ID          string   `json:"id"`
	CourseID    string   `json:"course_id"`
	SectionID   string   `json:"section_id"`
	Question    string   `json:"question"`
	Options     []string `json:"options"`
	Answer      string   `json:"answer"`
	Explanation string   `json:"explanation,omitempty"`
}

// Flashcard is a generated front/back study card.
type Flashcard struct {
	ID        string `json:"id"`
	CourseID  string `json:"course_id"`
	SectionID string `json:"section_id"`
	Front     string `json:"front"`
	Back      string `json:"back"`
}

// SaveQuestions stores the questions produced for one section.
func (s *Store) SaveQuestions(ctx context.Context, questions []Question) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, q := range questions {
		options, err := json.Marshal(q.Options)
		if err != nil {
			return fmt.Errorf("failed to marshal options: %w", err)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO questions (id, course_id, section_id, question, options, answer, explanation)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			q.ID, q.CourseID, q.SectionID, q.Question, string(options), q.Answer, q.Explanation)
		if err != nil {
			return fmt.Errorf("failed to insert question: %w", err)
		}
	}
	return tx.Commit()
}

// ListQuestions returns every question for a course.
func (s *Store) ListQuestions(ctx context.Context, courseID string) ([]Question, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, course_id, section_id, question, options, answer, explanation
		 FROM questions WHERE course_id = ? ORDER BY section_id, id`, courseID)
	if err != nil {
		return nil, fmt.Errorf("failed to query questions: %w", err)
	}
	defer rows.Close()

	var out []Question
	for rows.Next() {
		var q Question
		var options string
		if err := rows.Scan(&q.ID, &q.CourseID, &q.SectionID, &q.Question, &options, &q.Answer, &q.Explanation); err != nil {
			return nil, fmt.Errorf("failed to scan question: %w", err)
		}
		if err := json.Unmarshal([]byte(options), &q.Options); err != nil {
			return nil, fmt.Errorf("failed to unmarshal options: %w", err)
		}
		out = append(out, q)
	}
	return out, rows.Err()
}

// CountQuestions returns how many questions exist for a course.
func (s *Store) CountQuestions(ctx context.Context, courseID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM questions WHERE course_id = ?`, courseID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count questions: %w", err)
	}
	return n, nil
}

// SaveFlashcards stores the flashcards produced for one section.
func (s *Store) SaveFlashcards(ctx context.Context, cards []Flashcard) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, c := range cards {
		_, err = tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO flashcards (id, course_id, section_id, front, back)
			 VALUES (?, ?, ?, ?, ?)`,
			c.ID, c.CourseID, c.SectionID, c.Front, c.Back)
		if err != nil {
			return fmt.Errorf("failed to insert flashcard: %w", err)
		}
	}
	return tx.Commit()
}

// ListFlashcards returns every flashcard for a course.
func (s *Store) ListFlashcards(ctx context.Context, courseID string) ([]Flashcard, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, course_id, section_id, front, back
		 FROM flashcards WHERE course_id = ? ORDER BY section_id, id`, courseID)
	if err != nil {
		return nil, fmt.Errorf("failed to query flashcards: %w", err)
	}
	defer rows.Close()

	var out []Flashcard
	for rows.Next() {
		var c Flashcard
		if err := rows.Scan(&c.ID, &c.CourseID, &c.SectionID, &c.Front, &c.Back); err != nil {
			return nil, fmt.Errorf("failed to scan flashcard: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ClearArtifacts removes every generated artifact for a course. Used by
// retry, which restarts generation from scratch.
func (s *Store) ClearArtifacts(ctx context.Context, courseID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"questions", "flashcards", "note_fragments", "manifest_items"} {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE course_id = ?`, courseID); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}
	return tx.Commit()
}

// SaveNoteFragment stores the note content produced for one section.
// sortOrder is the section's position in the outline so the assembled
// note reads in document order.
func (s *Store) SaveNoteFragment(ctx context.Context, courseID, sectionID string, sortOrder int, content string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO note_fragments (course_id, section_id, sort_order, content)
		 VALUES (?, ?, ?, ?)`,
		courseID, sectionID, sortOrder, content)
	if err != nil {
		return fmt.Errorf("failed to save note fragment: %w", err)
	}
	return nil
}

// AssembleNote concatenates note fragments in outline order. Returns an
// empty string when no fragments exist.
func (s *Store) AssembleNote(ctx context.Context, courseID string) (string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT content FROM note_fragments WHERE course_id = ? ORDER BY sort_order`, courseID)
	if err != nil {
		return "", fmt.Errorf("failed to query note fragments: %w", err)
	}
	defer rows.Close()

	var parts []string
	for rows.Next() {
		var content string
		if err := rows.Scan(&content); err != nil {
			return "", fmt.Errorf("failed to scan note fragment: %w", err)
		}
		parts = append(parts, content)
	}
	if err := rows.Err(); err != nil {
		return "", err
	}
	return strings.Join(parts, "\n\n"), nil
}
