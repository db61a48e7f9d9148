package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("not found")

// Course is an uploaded document.
type Course struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	PageCount int       `json:"page_count"`
	CreatedAt time.Time `json:"created_at"`
}

// CreateCourse inserts a course and its page texts in one transaction.
// Pages are 1-indexed in the order given.
func (s *Store) CreateCourse(ctx context.Context, c Course, pages []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO courses (id, title, page_count, created_at) VALUES (?, ?, ?, ?)`,
		c.ID, c.Title, len(pages), c.CreatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to insert course: %w", err)
	}

	for i, text := range pages {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO pages (course_id, page_num, text) VALUES (?, ?, ?)`,
			c.ID, i+1, text)
		if err != nil {
			return fmt.Errorf("failed to insert page %d: %w", i+1, err)
		}
	}

	return tx.Commit()
}

// GetCourse fetches a course by ID.
func (s *Store) GetCourse(ctx context.Context, id string) (*Course, error) {
	var c Course
	var created string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, title, page_count, created_at FROM courses WHERE id = ?`, id).
		Scan(&c.ID, &c.Title, &c.PageCount, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("course %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get course: %w", err)
	}
	c.CreatedAt = parseTime(created)
	return &c, nil
}

// GetPages returns the page texts for a course in page order.
func (s *Store) GetPages(ctx context.Context, courseID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT text FROM pages WHERE course_id = ? ORDER BY page_num`, courseID)
	if err != nil {
		return nil, fmt.Errorf("failed to query pages: %w", err)
	}
	defer rows.Close()

	var pages []string
	for rows.Next() {
		var text string
		if err := rows.Scan(&text); err != nil {
			return nil, fmt.Errorf("failed to scan page: %w", err)
		}
		pages = append(pages, text)
	}
	return pages, rows.Err()
}

// GetPageRange returns page texts for a 1-indexed inclusive range.
func (s *Store) GetPageRange(ctx context.Context, courseID string, start, end int) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT text FROM pages WHERE course_id = ? AND page_num BETWEEN ? AND ? ORDER BY page_num`,
		courseID, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to query page range: %w", err)
	}
	defer rows.Close()

	var pages []string
	for rows.Next() {
		var text string
		if err := rows.Scan(&text); err != nil {
			return nil, fmt.Errorf("failed to scan page: %w", err)
		}
		pages = append(pages, text)
	}
	return pages, rows.Err()
}

// DeleteCourse removes a course and all dependent rows.
func (s *Store) DeleteCourse(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM courses WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete course: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("course %s: %w", id, ErrNotFound)
	}
	return nil
}
