package graphics

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/jackzampolin/cram/internal/breaker"
	"github.com/jackzampolin/cram/internal/passes"
	"github.com/jackzampolin/cram/internal/providers"
	"github.com/jackzampolin/cram/internal/store"
)

func testAnalyzer(t *testing.T, mock *providers.MockClient) (*Analyzer, *store.Store) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "cram.db"), nil)
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	brk := breaker.New(breaker.Config{FailureThreshold: 2, Cooldown: time.Hour})
	runner := passes.NewRunner(mock, brk, nil,
		passes.WithTransportAttempts(1), passes.WithRetryDelay(time.Millisecond))
	return NewAnalyzer(st, runner, brk, nil), st
}

func seedGraphics(t *testing.T, st *store.Store) {
	t.Helper()
	ctx := context.Background()
	err := st.CreateCourse(ctx, store.Course{ID: "c1", Title: "Nets", CreatedAt: time.Now()},
		[]string{"page 1 text", "page 2 text", "page 3 text"})
	if err != nil {
		t.Fatalf("failed to create course: %v", err)
	}

	weak := []store.ExtractedGraphic{
		{ID: "g1", CourseID: "c1", PageNumber: 1, GraphicType: "diagram",
			Description: "low confidence", Confidence: 0.3, Elements: []string{"x"}},
		{ID: "g2", CourseID: "c1", PageNumber: 2, GraphicType: "chart",
			Description: "unanalyzed", Confidence: 0.95},
	}
	strong := store.ExtractedGraphic{ID: "g3", CourseID: "c1", PageNumber: 3,
		GraphicType: "figure", Description: "fine", Confidence: 0.92,
		Elements: []string{"axis"}}

	for _, g := range append(weak, strong) {
		if err := st.SaveGraphic(ctx, g); err != nil {
			t.Fatalf("failed to save graphic: %v", err)
		}
	}
}

func TestReanalyzeUpdatesWeakGraphics(t *testing.T) {
	mock := providers.NewMockClient()
	mock.ResponseJSON = json.RawMessage(`{
		"elements": ["node", "edge"],
		"suggestions": ["trace the flow"],
		"related_concepts": ["routing"],
		"confidence": 0.96
	}`)

	a, st := testAnalyzer(t, mock)
	seedGraphics(t, st)

	updated, err := a.Reanalyze(context.Background(), "c1")
	if err != nil {
		t.Fatalf("Reanalyze failed: %v", err)
	}
	if updated != 2 {
		t.Errorf("expected 2 graphics updated, got %d", updated)
	}

	remaining, err := st.SelectForReanalysis(context.Background(), "c1", ConfidenceThreshold)
	if err != nil {
		t.Fatalf("SelectForReanalysis failed: %v", err)
	}
	if len(remaining) != 0 {
		t.Errorf("expected no candidates after reanalysis, got %d", len(remaining))
	}
}

func TestReanalyzeKeepsRowOnFailure(t *testing.T) {
	mock := providers.NewMockClient()
	mock.ShouldFail = true

	a, st := testAnalyzer(t, mock)
	seedGraphics(t, st)

	updated, err := a.Reanalyze(context.Background(), "c1")
	if err != nil {
		t.Fatalf("Reanalyze failed: %v", err)
	}
	if updated != 0 {
		t.Errorf("expected 0 updates on provider failure, got %d", updated)
	}

	// Rows untouched: same candidates as before.
	remaining, _ := st.SelectForReanalysis(context.Background(), "c1", ConfidenceThreshold)
	if len(remaining) != 2 {
		t.Errorf("expected 2 candidates preserved, got %d", len(remaining))
	}
}

func TestReanalyzeStopsWhenBreakerOpens(t *testing.T) {
	mock := providers.NewMockClient()
	mock.ShouldFail = true

	a, st := testAnalyzer(t, mock)
	seedGraphics(t, st)

	// Threshold is 2: the two failed candidate calls open the breaker.
	if _, err := a.Reanalyze(context.Background(), "c1"); err != nil {
		t.Fatalf("Reanalyze failed: %v", err)
	}

	// A second run finds the breaker open and returns without calling out.
	before := mock.Requests()
	updated, err := a.Reanalyze(context.Background(), "c1")
	if err != nil {
		t.Fatalf("second Reanalyze failed: %v", err)
	}
	if updated != 0 {
		t.Errorf("expected 0 updates with open breaker, got %d", updated)
	}
	if mock.Requests() != before {
		t.Errorf("open breaker must not consume provider calls")
	}
}

func TestPromoteManifest(t *testing.T) {
	mock := providers.NewMockClient()
	a, st := testAnalyzer(t, mock)
	ctx := context.Background()

	err := st.CreateCourse(ctx, store.Course{ID: "c1", Title: "Nets", CreatedAt: time.Now()},
		[]string{"p1", "p2"})
	if err != nil {
		t.Fatalf("failed to create course: %v", err)
	}
	items := []store.ManifestItem{
		{ID: "m1", CourseID: "c1", SectionID: "sec-001", Description: "topology diagram", Type: "diagram", PageNumber: 1},
		{ID: "m2", CourseID: "c1", SectionID: "sec-001", Description: "latency chart", Type: "chart", PageNumber: 2},
	}
	if err := st.SaveManifestItems(ctx, items); err != nil {
		t.Fatalf("SaveManifestItems failed: %v", err)
	}

	if err := a.PromoteManifest(ctx, "c1"); err != nil {
		t.Fatalf("PromoteManifest failed: %v", err)
	}
	all, _ := st.ListGraphics(ctx, "c1")
	if len(all) != 2 {
		t.Fatalf("expected 2 graphics, got %d", len(all))
	}

	// Running again must not duplicate.
	if err := a.PromoteManifest(ctx, "c1"); err != nil {
		t.Fatalf("second PromoteManifest failed: %v", err)
	}
	all, _ = st.ListGraphics(ctx, "c1")
	if len(all) != 2 {
		t.Errorf("expected promotion to be idempotent, got %d graphics", len(all))
	}

	// Fresh records are reanalysis candidates.
	weak, _ := st.SelectForReanalysis(ctx, "c1", ConfidenceThreshold)
	if len(weak) != 2 {
		t.Errorf("expected fresh graphics to be candidates, got %d", len(weak))
	}
}
