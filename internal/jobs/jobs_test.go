package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jackzampolin/cram/internal/breaker"
	"github.com/jackzampolin/cram/internal/graphics"
	"github.com/jackzampolin/cram/internal/passes"
	"github.com/jackzampolin/cram/internal/providers"
	"github.com/jackzampolin/cram/internal/store"
)

// scriptedClient answers each pass with schema-conforming JSON.
func scriptedClient(completenessScore int, blockVerify chan struct{}) *providers.MockClient {
	mock := providers.NewMockClient()
	mock.ResponseFunc = func(req *providers.ChatRequest) (*providers.ChatResult, error) {
		var payload string
		switch {
		case strings.HasPrefix(req.RequestID, "enrich-"):
			payload = `{
				"section_id": "sec-001",
				"inventory": {"definitions": 2, "examples": 1},
				"graphics": [{"description": "topology diagram", "type": "diagram", "page_number": 1}]
			}`
		case strings.HasPrefix(req.RequestID, "section-"):
			payload = `{
				"section_id": "sec-001",
				"questions": [{
					"question": "What is a router?",
					"options": ["a", "b", "c", "d"],
					"answer": "a",
					"explanation": "It routes."
				}],
				"flashcards": [{"front": "Router", "back": "Forwards packets"}],
				"note": "## Document\nStudy notes."
			}`
		case strings.HasPrefix(req.RequestID, "verify-"):
			if blockVerify != nil {
				<-blockVerify
			}
			payload = fmt.Sprintf(`{
				"section_id": "sec-001",
				"items": [{"key": "definitions", "coverage": "present", "detail": "covered"}],
				"completeness_score": %d,
				"supplements": []
			}`, completenessScore)
		case strings.HasPrefix(req.RequestID, "graphics-"):
			payload = `{
				"items": [{
					"id": "m1", "found": true,
					"has_introduction_text": true, "has_analysis_text": true,
					"correct_section_placement": true, "issues": []
				}],
				"overall_score": 95
			}`
		default:
			return nil, fmt.Errorf("unexpected request %q", req.RequestID)
		}
		return &providers.ChatResult{
			Content:    payload,
			ParsedJSON: json.RawMessage(payload),
			Provider:   providers.MockClientName,
		}, nil
	}
	return mock
}

func testOrchestrator(t *testing.T, client providers.LLMClient, opts ...Option) (*Orchestrator, *store.Store) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "cram.db"), nil)
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	brk := breaker.New(breaker.Config{})
	runner := passes.NewRunner(client, brk, nil,
		passes.WithTransportAttempts(1), passes.WithRetryDelay(time.Millisecond))
	analyzer := graphics.NewAnalyzer(st, runner, brk, nil)

	o := New(st, runner, analyzer, nil, opts...)
	t.Cleanup(o.Shutdown)
	return o, st
}

func seedCourse(t *testing.T, st *store.Store) {
	t.Helper()
	err := st.CreateCourse(context.Background(),
		store.Course{ID: "c1", Title: "Networks", CreatedAt: time.Now()},
		[]string{"plain body text one.", "plain body text two.", "plain body text three."})
	if err != nil {
		t.Fatalf("failed to create course: %v", err)
	}
}

func waitFor(t *testing.T, desc string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", desc)
}

func jobTerminal(st *store.Store, courseID string) func() bool {
	return func() bool {
		job, err := st.GetJob(context.Background(), courseID)
		if err != nil {
			return false
		}
		return job.Status != store.JobProcessing && job.Status != store.JobPending
	}
}

func TestTriggerRunsFullPipeline(t *testing.T) {
	o, st := testOrchestrator(t, scriptedClient(90, nil))
	seedCourse(t, st)
	ctx := context.Background()

	job, err := o.Trigger(ctx, "c1")
	if err != nil {
		t.Fatalf("Trigger failed: %v", err)
	}
	if job.Status != store.JobProcessing {
		t.Errorf("expected processing job, got %s", job.Status)
	}

	waitFor(t, "job to finish", jobTerminal(st, "c1"))

	final, _ := st.GetJob(ctx, "c1")
	if final.Status != store.JobSucceeded {
		t.Fatalf("expected succeeded, got %s (%s)", final.Status, final.ErrorMessage)
	}

	n, _ := st.CountQuestions(ctx, "c1")
	if n == 0 {
		t.Error("expected questions persisted")
	}
	cards, _ := st.ListFlashcards(ctx, "c1")
	if len(cards) == 0 {
		t.Error("expected flashcards persisted")
	}

	for _, kind := range []string{store.KindQuiz, store.KindNote} {
		g, err := st.GetGenerationStatus(ctx, "c1", kind)
		if err != nil {
			t.Fatalf("GetGenerationStatus(%s) failed: %v", kind, err)
		}
		if g.Status != store.StatusSucceeded || g.Progress != 100 {
			t.Errorf("%s: expected succeeded/100, got %s/%d", kind, g.Status, g.Progress)
		}
	}

	// The manifest graphic was promoted to a record.
	gs, _ := st.ListGraphics(ctx, "c1")
	if len(gs) != 1 {
		t.Errorf("expected 1 promoted graphic, got %d", len(gs))
	}

	note, _ := st.AssembleNote(ctx, "c1")
	if !strings.Contains(note, "Study notes.") {
		t.Errorf("unexpected assembled note: %q", note)
	}
}

func TestDoubleTriggerReturnsSameJob(t *testing.T) {
	block := make(chan struct{})
	o, st := testOrchestrator(t, scriptedClient(90, block))
	seedCourse(t, st)
	ctx := context.Background()

	job1, err := o.Trigger(ctx, "c1")
	if err != nil {
		t.Fatalf("first Trigger failed: %v", err)
	}
	job2, err := o.Trigger(ctx, "c1")
	if err != nil {
		t.Fatalf("second Trigger failed: %v", err)
	}
	if job1.ID != job2.ID {
		t.Errorf("double trigger returned different jobs: %s vs %s", job1.ID, job2.ID)
	}

	close(block)
	waitFor(t, "job to finish", jobTerminal(st, "c1"))
}

func TestTriggerUnknownCourse(t *testing.T) {
	o, _ := testOrchestrator(t, scriptedClient(90, nil))
	if _, err := o.Trigger(context.Background(), "nope"); err == nil {
		t.Error("expected error for unknown course")
	}
}

func TestForceStopWithQuestionsIsPartial(t *testing.T) {
	block := make(chan struct{})
	o, st := testOrchestrator(t, scriptedClient(90, block))
	seedCourse(t, st)
	ctx := context.Background()

	if _, err := o.Trigger(ctx, "c1"); err != nil {
		t.Fatalf("Trigger failed: %v", err)
	}

	// Sections are done (questions persisted) once verify is reached.
	waitFor(t, "verify stage", func() bool {
		job, err := st.GetJob(ctx, "c1")
		return err == nil && job.Stage == StageVerify
	})

	job, err := o.ForceStop(ctx, "c1")
	if err != nil {
		t.Fatalf("ForceStop failed: %v", err)
	}
	if job.Status != store.JobPartial {
		t.Errorf("expected partial job, got %s", job.Status)
	}

	for _, kind := range []string{store.KindQuiz, store.KindNote} {
		g, _ := st.GetGenerationStatus(ctx, "c1", kind)
		if g.Status != store.StatusPartial {
			t.Errorf("%s: expected partial, got %s", kind, g.Status)
		}
		if g.Progress != 100 {
			t.Errorf("%s: expected progress forced to 100, got %d", kind, g.Progress)
		}
		if g.CurrentStep != "stopped" {
			t.Errorf("%s: expected step stopped, got %q", kind, g.CurrentStep)
		}
	}

	noteStatus, _ := st.GetGenerationStatus(ctx, "c1", store.KindNote)
	if noteStatus.PartialContent == nil || !strings.Contains(*noteStatus.PartialContent, "Study notes.") {
		t.Error("expected partial note content preserved")
	}

	// Idempotent: a second stop returns the terminal job unchanged.
	again, err := o.ForceStop(ctx, "c1")
	if err != nil {
		t.Fatalf("second ForceStop failed: %v", err)
	}
	if again.Status != store.JobPartial {
		t.Errorf("second stop changed status to %s", again.Status)
	}

	close(block)
}

func TestForceStopWithoutQuestionsIsFailed(t *testing.T) {
	// Block the first pass so nothing gets persisted.
	mock := providers.NewMockClient()
	block := make(chan struct{})
	mock.ResponseFunc = func(req *providers.ChatRequest) (*providers.ChatResult, error) {
		<-block
		return nil, fmt.Errorf("blocked: %w", providers.ErrTransient)
	}

	o, st := testOrchestrator(t, mock)
	seedCourse(t, st)
	ctx := context.Background()

	if _, err := o.Trigger(ctx, "c1"); err != nil {
		t.Fatalf("Trigger failed: %v", err)
	}
	waitFor(t, "enrich stage", func() bool {
		job, err := st.GetJob(ctx, "c1")
		return err == nil && job.Stage == StageEnrich
	})

	job, err := o.ForceStop(ctx, "c1")
	if err != nil {
		t.Fatalf("ForceStop failed: %v", err)
	}
	if job.Status != store.JobFailed {
		t.Errorf("expected failed job, got %s", job.Status)
	}
	g, _ := st.GetGenerationStatus(ctx, "c1", store.KindQuiz)
	if g.Status != store.StatusFailed || g.ErrorMessage != "stopped by user" {
		t.Errorf("expected failed/stopped by user, got %s/%q", g.Status, g.ErrorMessage)
	}

	close(block)
}

// TestForceStopSurvivesRacingFailure pins the race between ForceStop and
// an in-flight provider call: when the released call surfaces an error
// other than cancellation, the stop path's terminal rows must not be
// overwritten with failed.
func TestForceStopSurvivesRacingFailure(t *testing.T) {
	entered := make(chan struct{})
	block := make(chan struct{})
	var once sync.Once

	mock := scriptedClient(90, nil)
	inner := mock.ResponseFunc
	mock.ResponseFunc = func(req *providers.ChatRequest) (*providers.ChatResult, error) {
		if strings.HasPrefix(req.RequestID, "verify-") {
			once.Do(func() { close(entered) })
			<-block
			return nil, errors.New("upstream connection reset")
		}
		return inner(req)
	}

	o, st := testOrchestrator(t, mock)
	seedCourse(t, st)
	ctx := context.Background()

	if _, err := o.Trigger(ctx, "c1"); err != nil {
		t.Fatalf("Trigger failed: %v", err)
	}
	select {
	case <-entered:
	case <-time.After(10 * time.Second):
		t.Fatal("verify call never started")
	}

	job, err := o.ForceStop(ctx, "c1")
	if err != nil {
		t.Fatalf("ForceStop failed: %v", err)
	}
	if job.Status != store.JobPartial {
		t.Fatalf("expected partial job, got %s", job.Status)
	}

	// Release the blocked call and let the run goroutine unwind.
	close(block)
	o.wg.Wait()

	job, err = st.GetJob(ctx, "c1")
	if err != nil {
		t.Fatalf("GetJob failed: %v", err)
	}
	if job.Status != store.JobPartial {
		t.Errorf("racing failure overwrote stop result: got %s, want %s",
			job.Status, store.JobPartial)
	}
	for _, kind := range []string{store.KindQuiz, store.KindNote} {
		g, err := st.GetGenerationStatus(ctx, "c1", kind)
		if err != nil {
			t.Fatalf("GetGenerationStatus(%s) failed: %v", kind, err)
		}
		if g.Status != store.StatusPartial {
			t.Errorf("%s: got %s, want partial", kind, g.Status)
		}
	}
}

func TestRetryAfterFailure(t *testing.T) {
	mock := scriptedClient(90, nil)
	failing := true
	inner := mock.ResponseFunc
	mock.ResponseFunc = func(req *providers.ChatRequest) (*providers.ChatResult, error) {
		if failing {
			return nil, fmt.Errorf("provider down: %w", providers.ErrTransient)
		}
		return inner(req)
	}

	o, st := testOrchestrator(t, mock, WithStaleness(time.Minute))
	seedCourse(t, st)
	ctx := context.Background()

	if _, err := o.Trigger(ctx, "c1"); err != nil {
		t.Fatalf("Trigger failed: %v", err)
	}
	waitFor(t, "job to fail", jobTerminal(st, "c1"))

	job, _ := st.GetJob(ctx, "c1")
	if job.Status != store.JobFailed || job.ErrorMessage == "" {
		t.Fatalf("expected failed job with message, got %s %q", job.Status, job.ErrorMessage)
	}

	failing = false
	retried, err := o.Retry(ctx, "c1")
	if err != nil {
		t.Fatalf("Retry failed: %v", err)
	}
	if retried.Attempts != 2 {
		t.Errorf("expected attempt 2, got %d", retried.Attempts)
	}
	if retried.ErrorMessage != "" {
		t.Errorf("expected error message cleared, got %q", retried.ErrorMessage)
	}

	waitFor(t, "retried job to finish", jobTerminal(st, "c1"))
	final, _ := st.GetJob(ctx, "c1")
	if final.Status != store.JobSucceeded {
		t.Errorf("expected succeeded after retry, got %s (%s)", final.Status, final.ErrorMessage)
	}
}

func TestRetrySucceededRejected(t *testing.T) {
	o, st := testOrchestrator(t, scriptedClient(90, nil))
	seedCourse(t, st)
	ctx := context.Background()

	if _, err := o.Trigger(ctx, "c1"); err != nil {
		t.Fatalf("Trigger failed: %v", err)
	}
	waitFor(t, "job to finish", jobTerminal(st, "c1"))

	if _, err := o.Retry(ctx, "c1"); !errors.Is(err, ErrAlreadySucceeded) {
		t.Errorf("expected ErrAlreadySucceeded, got %v", err)
	}
}

func TestLowCompletenessFinishesPartial(t *testing.T) {
	o, st := testOrchestrator(t, scriptedClient(40, nil),
		WithCompletenessThreshold(70))
	seedCourse(t, st)
	ctx := context.Background()

	if _, err := o.Trigger(ctx, "c1"); err != nil {
		t.Fatalf("Trigger failed: %v", err)
	}
	waitFor(t, "job to finish", jobTerminal(st, "c1"))

	job, _ := st.GetJob(ctx, "c1")
	if job.Status != store.JobPartial {
		t.Errorf("expected partial below threshold, got %s", job.Status)
	}
	g, _ := st.GetGenerationStatus(ctx, "c1", store.KindQuiz)
	if g.Status != store.StatusPartial {
		t.Errorf("expected partial generation status, got %s", g.Status)
	}
}

func TestFailureMarksStatusAndSections(t *testing.T) {
	mock := scriptedClient(90, nil)
	inner := mock.ResponseFunc
	mock.ResponseFunc = func(req *providers.ChatRequest) (*providers.ChatResult, error) {
		if strings.HasPrefix(req.RequestID, "section-") {
			return nil, fmt.Errorf("section pass down: %w", providers.ErrTransient)
		}
		return inner(req)
	}

	o, st := testOrchestrator(t, mock)
	seedCourse(t, st)
	ctx := context.Background()

	if _, err := o.Trigger(ctx, "c1"); err != nil {
		t.Fatalf("Trigger failed: %v", err)
	}
	waitFor(t, "job to fail", jobTerminal(st, "c1"))

	job, _ := st.GetJob(ctx, "c1")
	if job.Status != store.JobFailed {
		t.Fatalf("expected failed, got %s", job.Status)
	}
	if !strings.Contains(job.ErrorMessage, "sections stage") {
		t.Errorf("expected stage in error message, got %q", job.ErrorMessage)
	}

	sections, _ := st.ListSections(ctx, "c1")
	for _, sec := range sections {
		if sec.GenStatus == store.SectionProcessing {
			t.Errorf("section %s left processing after failure", sec.ID)
		}
	}

	g, _ := st.GetGenerationStatus(ctx, "c1", store.KindQuiz)
	if g.Status != store.StatusFailed || g.ErrorMessage == "" {
		t.Errorf("expected failed status with message, got %s %q", g.Status, g.ErrorMessage)
	}
}
