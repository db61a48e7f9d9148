package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/jackzampolin/cram/internal/structure"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "cram.db"), nil)
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func seedCourse(t *testing.T, s *Store, id string, pages []string) {
	t.Helper()
	err := s.CreateCourse(context.Background(), Course{
		ID:        id,
		Title:     "Test Course",
		CreatedAt: time.Now(),
	}, pages)
	if err != nil {
		t.Fatalf("failed to create course: %v", err)
	}
}

func TestCourseRoundTrip(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	seedCourse(t, s, "c1", []string{"page one", "page two", "page three"})

	c, err := s.GetCourse(ctx, "c1")
	if err != nil {
		t.Fatalf("GetCourse failed: %v", err)
	}
	if c.PageCount != 3 {
		t.Errorf("expected 3 pages, got %d", c.PageCount)
	}

	pages, err := s.GetPages(ctx, "c1")
	if err != nil {
		t.Fatalf("GetPages failed: %v", err)
	}
	if len(pages) != 3 || pages[1] != "page two" {
		t.Errorf("unexpected pages: %v", pages)
	}

	ranged, err := s.GetPageRange(ctx, "c1", 2, 3)
	if err != nil {
		t.Fatalf("GetPageRange failed: %v", err)
	}
	if len(ranged) != 2 || ranged[0] != "page two" {
		t.Errorf("unexpected page range: %v", ranged)
	}
}

func TestGetCourseNotFound(t *testing.T) {
	s := testStore(t)
	_, err := s.GetCourse(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestDeleteCourseCascades(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	seedCourse(t, s, "c1", []string{"text"})

	if err := s.SaveQuestions(ctx, []Question{{
		ID: "q1", CourseID: "c1", SectionID: "sec-001",
		Question: "What?", Options: []string{"a", "b"}, Answer: "a",
	}}); err != nil {
		t.Fatalf("SaveQuestions failed: %v", err)
	}

	if err := s.DeleteCourse(ctx, "c1"); err != nil {
		t.Fatalf("DeleteCourse failed: %v", err)
	}

	pages, err := s.GetPages(ctx, "c1")
	if err != nil {
		t.Fatalf("GetPages failed: %v", err)
	}
	if len(pages) != 0 {
		t.Errorf("expected pages to cascade, got %d", len(pages))
	}
	n, err := s.CountQuestions(ctx, "c1")
	if err != nil {
		t.Fatalf("CountQuestions failed: %v", err)
	}
	if n != 0 {
		t.Errorf("expected questions to cascade, got %d", n)
	}
}

func TestSectionsRoundTrip(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	seedCourse(t, s, "c1", []string{"a", "b", "c", "d"})

	sections := []structure.Section{
		{
			ID: "sec-001", Title: "Intro", Level: structure.LevelChapter,
			PageRange: structure.PageRange{Start: 1, End: 2},
			Inventory: map[string]int{"definitions": 3},
			Subsections: []structure.Section{
				{ID: "sec-002", Title: "Background", Level: structure.LevelSubsection,
					PageRange: structure.PageRange{Start: 2, End: 2}},
			},
		},
		{
			ID: "sec-003", Title: "Methods", Level: structure.LevelChapter,
			PageRange: structure.PageRange{Start: 3, End: 4},
		},
	}
	if err := s.ReplaceSections(ctx, "c1", sections); err != nil {
		t.Fatalf("ReplaceSections failed: %v", err)
	}

	all, err := s.ListSections(ctx, "c1")
	if err != nil {
		t.Fatalf("ListSections failed: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(all))
	}
	if all[1].ParentID != "sec-001" {
		t.Errorf("expected subsection parent sec-001, got %q", all[1].ParentID)
	}
	if all[0].Inventory["definitions"] != 3 {
		t.Errorf("inventory not preserved: %v", all[0].Inventory)
	}

	chapters, err := s.ListChapters(ctx, "c1")
	if err != nil {
		t.Fatalf("ListChapters failed: %v", err)
	}
	if len(chapters) != 2 {
		t.Errorf("expected 2 chapters, got %d", len(chapters))
	}

	// Replacing again must not duplicate.
	if err := s.ReplaceSections(ctx, "c1", sections); err != nil {
		t.Fatalf("second ReplaceSections failed: %v", err)
	}
	all, _ = s.ListSections(ctx, "c1")
	if len(all) != 3 {
		t.Errorf("expected 3 rows after replace, got %d", len(all))
	}
}

func TestSectionGenStatus(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	seedCourse(t, s, "c1", []string{"a"})
	sections := []structure.Section{
		{ID: "sec-001", Title: "One", Level: structure.LevelChapter, PageRange: structure.PageRange{Start: 1, End: 1}},
		{ID: "sec-002", Title: "Two", Level: structure.LevelChapter, PageRange: structure.PageRange{Start: 1, End: 1}},
	}
	if err := s.ReplaceSections(ctx, "c1", sections); err != nil {
		t.Fatalf("ReplaceSections failed: %v", err)
	}

	if err := s.SetSectionGenStatus(ctx, "sec-001", SectionProcessing); err != nil {
		t.Fatalf("SetSectionGenStatus failed: %v", err)
	}
	n, err := s.FailInFlightSections(ctx, "c1")
	if err != nil {
		t.Fatalf("FailInFlightSections failed: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 failed section, got %d", n)
	}

	if err := s.ResetSectionGenStatus(ctx, "c1"); err != nil {
		t.Fatalf("ResetSectionGenStatus failed: %v", err)
	}
	all, _ := s.ListSections(ctx, "c1")
	for _, rec := range all {
		if rec.GenStatus != SectionPending {
			t.Errorf("section %s not reset: %s", rec.ID, rec.GenStatus)
		}
	}
}

func TestClaimJobDedupe(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	seedCourse(t, s, "c1", []string{"a"})

	job, claimed, err := s.ClaimJob(ctx, "c1", "job-1", 5*time.Minute)
	if err != nil {
		t.Fatalf("first ClaimJob failed: %v", err)
	}
	if !claimed || job.ID != "job-1" || job.Attempts != 1 {
		t.Fatalf("unexpected first claim: claimed=%v job=%+v", claimed, job)
	}

	// Fresh processing job must not be claimed again.
	job2, claimed, err := s.ClaimJob(ctx, "c1", "job-2", 5*time.Minute)
	if err != nil {
		t.Fatalf("second ClaimJob failed: %v", err)
	}
	if claimed {
		t.Error("expected dedupe of fresh processing job")
	}
	if job2.ID != "job-1" {
		t.Errorf("expected existing job returned, got %s", job2.ID)
	}

	// A stale processing job can be taken over.
	job3, claimed, err := s.ClaimJob(ctx, "c1", "job-3", 0)
	if err != nil {
		t.Fatalf("stale ClaimJob failed: %v", err)
	}
	if !claimed {
		t.Error("expected stale job takeover")
	}
	if job3.Attempts != 2 {
		t.Errorf("expected attempts incremented to 2, got %d", job3.Attempts)
	}
}

func TestClaimJobAfterTerminal(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	seedCourse(t, s, "c1", []string{"a"})

	job, _, err := s.ClaimJob(ctx, "c1", "job-1", 5*time.Minute)
	if err != nil {
		t.Fatalf("ClaimJob failed: %v", err)
	}
	if err := s.FinishJob(ctx, job.ID, JobFailed, "pass failed"); err != nil {
		t.Fatalf("FinishJob failed: %v", err)
	}

	job2, claimed, err := s.ClaimJob(ctx, "c1", "job-2", 5*time.Minute)
	if err != nil {
		t.Fatalf("re-claim failed: %v", err)
	}
	if !claimed {
		t.Error("expected terminal job to be reclaimable")
	}
	if job2.Status != JobProcessing || job2.ErrorMessage != "" {
		t.Errorf("expected reset job, got %+v", job2)
	}
}

func TestProgressNeverDecreases(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	seedCourse(t, s, "c1", []string{"a"})

	if err := s.InitGenerationStatus(ctx, "c1", KindQuiz); err != nil {
		t.Fatalf("InitGenerationStatus failed: %v", err)
	}
	if err := s.UpdateProgress(ctx, "c1", KindQuiz, 40, "section 2", nil, nil); err != nil {
		t.Fatalf("UpdateProgress failed: %v", err)
	}
	if err := s.UpdateProgress(ctx, "c1", KindQuiz, 25, "section 1 retry", nil, nil); err != nil {
		t.Fatalf("UpdateProgress failed: %v", err)
	}

	g, err := s.GetGenerationStatus(ctx, "c1", KindQuiz)
	if err != nil {
		t.Fatalf("GetGenerationStatus failed: %v", err)
	}
	if g.Progress != 40 {
		t.Errorf("expected progress held at 40, got %d", g.Progress)
	}
	if g.CurrentStep != "section 1 retry" {
		t.Errorf("expected step updated, got %q", g.CurrentStep)
	}
}

func TestFinishGenerationStatus(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	seedCourse(t, s, "c1", []string{"a"})

	if err := s.InitGenerationStatus(ctx, "c1", KindNote); err != nil {
		t.Fatalf("InitGenerationStatus failed: %v", err)
	}
	if err := s.UpdateProgress(ctx, "c1", KindNote, 60, "assembling", nil, nil); err != nil {
		t.Fatalf("UpdateProgress failed: %v", err)
	}

	partial := "## Chapter 1\nnotes so far"
	if err := s.FinishGenerationStatus(ctx, "c1", KindNote, StatusPartial, "stopped by user", &partial); err != nil {
		t.Fatalf("FinishGenerationStatus failed: %v", err)
	}

	g, err := s.GetGenerationStatus(ctx, "c1", KindNote)
	if err != nil {
		t.Fatalf("GetGenerationStatus failed: %v", err)
	}
	if g.Progress != 100 {
		t.Errorf("partial status must force progress to 100, got %d", g.Progress)
	}
	if g.PartialContent == nil || *g.PartialContent != partial {
		t.Errorf("partial content not stored: %v", g.PartialContent)
	}
	if g.CompletedAt == nil {
		t.Error("expected completed_at set")
	}
}

func TestFailedStatusKeepsProgress(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	seedCourse(t, s, "c1", []string{"a"})

	if err := s.InitGenerationStatus(ctx, "c1", KindQuiz); err != nil {
		t.Fatalf("InitGenerationStatus failed: %v", err)
	}
	if err := s.UpdateProgress(ctx, "c1", KindQuiz, 55, "section 3", nil, nil); err != nil {
		t.Fatalf("UpdateProgress failed: %v", err)
	}
	if err := s.FinishGenerationStatus(ctx, "c1", KindQuiz, StatusFailed, "provider unavailable", nil); err != nil {
		t.Fatalf("FinishGenerationStatus failed: %v", err)
	}

	g, _ := s.GetGenerationStatus(ctx, "c1", KindQuiz)
	if g.Progress != 55 {
		t.Errorf("failed status must keep last progress, got %d", g.Progress)
	}
	if g.ErrorMessage != "provider unavailable" {
		t.Errorf("unexpected error message: %q", g.ErrorMessage)
	}
}

func TestSelectForReanalysis(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	seedCourse(t, s, "c1", []string{"a"})

	graphics := []ExtractedGraphic{
		{ID: "g1", CourseID: "c1", PageNumber: 1, GraphicType: "diagram",
			Description: "low confidence", Confidence: 0.4,
			Elements: []string{"box"}},
		{ID: "g2", CourseID: "c1", PageNumber: 2, GraphicType: "chart",
			Description: "no elements", Confidence: 0.95},
		{ID: "g3", CourseID: "c1", PageNumber: 3, GraphicType: "figure",
			Description: "good", Confidence: 0.92,
			Elements: []string{"axis", "curve"}},
		{ID: "g4", CourseID: "c1", PageNumber: 4, GraphicType: "figure",
			Description: "empty but analyzed", Confidence: 0.91,
			Elements: []string{}},
	}
	for _, g := range graphics {
		if err := s.SaveGraphic(ctx, g); err != nil {
			t.Fatalf("SaveGraphic failed: %v", err)
		}
	}

	weak, err := s.SelectForReanalysis(ctx, "c1", 0.9)
	if err != nil {
		t.Fatalf("SelectForReanalysis failed: %v", err)
	}
	ids := make(map[string]bool)
	for _, g := range weak {
		ids[g.ID] = true
	}
	if len(weak) != 2 || !ids["g1"] || !ids["g2"] {
		t.Errorf("expected g1 and g2 selected, got %v", ids)
	}

	// A stored empty list is analyzed, not missing.
	if ids["g4"] {
		t.Error("graphic with empty elements list must not be selected")
	}
}

func TestUpdateGraphicAnalysis(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	seedCourse(t, s, "c1", []string{"a"})

	if err := s.SaveGraphic(ctx, ExtractedGraphic{
		ID: "g1", CourseID: "c1", PageNumber: 1, GraphicType: "diagram",
		Description: "pending", Confidence: 0.2,
	}); err != nil {
		t.Fatalf("SaveGraphic failed: %v", err)
	}

	err := s.UpdateGraphicAnalysis(ctx, "g1", 0.97,
		[]string{"router", "switch"}, []string{"trace the packet path"}, []string{"routing"})
	if err != nil {
		t.Fatalf("UpdateGraphicAnalysis failed: %v", err)
	}

	all, _ := s.ListGraphics(ctx, "c1")
	if len(all) != 1 {
		t.Fatalf("expected 1 graphic, got %d", len(all))
	}
	g := all[0]
	if g.Confidence != 0.97 || len(g.Elements) != 2 || len(g.RelatedConcepts) != 1 {
		t.Errorf("analysis not stored: %+v", g)
	}
}

func TestNoteAssembly(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	seedCourse(t, s, "c1", []string{"a"})

	if err := s.SaveNoteFragment(ctx, "c1", "sec-003", 2, "## Methods"); err != nil {
		t.Fatalf("SaveNoteFragment failed: %v", err)
	}
	if err := s.SaveNoteFragment(ctx, "c1", "sec-001", 0, "## Intro"); err != nil {
		t.Fatalf("SaveNoteFragment failed: %v", err)
	}

	note, err := s.AssembleNote(ctx, "c1")
	if err != nil {
		t.Fatalf("AssembleNote failed: %v", err)
	}
	if note != "## Intro\n\n## Methods" {
		t.Errorf("unexpected assembled note: %q", note)
	}
}

func TestFlashcardRoundTrip(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	seedCourse(t, s, "c1", []string{"a"})

	cards := []Flashcard{
		{ID: "f1", CourseID: "c1", SectionID: "sec-001", Front: "TCP", Back: "Reliable transport"},
		{ID: "f2", CourseID: "c1", SectionID: "sec-001", Front: "UDP", Back: "Datagram transport"},
	}
	if err := s.SaveFlashcards(ctx, cards); err != nil {
		t.Fatalf("SaveFlashcards failed: %v", err)
	}
	got, err := s.ListFlashcards(ctx, "c1")
	if err != nil {
		t.Fatalf("ListFlashcards failed: %v", err)
	}
	if len(got) != 2 || got[0].Front != "TCP" {
		t.Errorf("unexpected flashcards: %+v", got)
	}
}
