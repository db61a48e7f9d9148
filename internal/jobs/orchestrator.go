// Package jobs orchestrates generation runs: one job per course, a
// staged pass pipeline, force-stop, and retry.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jackzampolin/cram/internal/graphics"
	"github.com/jackzampolin/cram/internal/passes"
	"github.com/jackzampolin/cram/internal/store"
)

// DefaultStaleness is how long a processing job may go without a
// heartbeat before another trigger can take it over.
const DefaultStaleness = 5 * time.Minute

// Retry rejection reasons, distinguishable by callers.
var (
	ErrAlreadySucceeded = errors.New("job already succeeded")
	ErrStillRunning     = errors.New("job is still running")
)

// DefaultCompletenessThreshold gates full success: a run whose average
// completeness score falls below it finishes partial, not succeeded.
const DefaultCompletenessThreshold = 70

// Orchestrator owns the generation state machine for all courses.
type Orchestrator struct {
	store    *store.Store
	runner   *passes.Runner
	analyzer *graphics.Analyzer
	logger   *slog.Logger

	staleness             time.Duration
	completenessThreshold int
	sectionConcurrency    int

	mu      sync.Mutex
	running map[string]context.CancelFunc // courseID -> cancel for its run

	// wg tracks background runs so Shutdown can drain them.
	wg sync.WaitGroup
}

// Option configures the Orchestrator.
type Option func(*Orchestrator)

// WithStaleness overrides the stale-job takeover window.
func WithStaleness(d time.Duration) Option {
	return func(o *Orchestrator) { o.staleness = d }
}

// WithCompletenessThreshold overrides the success gate.
func WithCompletenessThreshold(n int) Option {
	return func(o *Orchestrator) { o.completenessThreshold = n }
}

// WithSectionConcurrency sets how many sections generate in parallel.
// Values below one are ignored.
func WithSectionConcurrency(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.sectionConcurrency = n
		}
	}
}

// New builds an Orchestrator.
func New(st *store.Store, runner *passes.Runner, analyzer *graphics.Analyzer, logger *slog.Logger, opts ...Option) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	o := &Orchestrator{
		store:                 st,
		runner:                runner,
		analyzer:              analyzer,
		logger:                logger,
		staleness:             DefaultStaleness,
		completenessThreshold: DefaultCompletenessThreshold,
		sectionConcurrency:    3,
		running:               make(map[string]context.CancelFunc),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Trigger starts generation for a course. If a non-stale run is already
// processing, the existing job is returned unchanged; a double trigger
// returns the same job id. A stale or terminal job is restarted from
// scratch.
func (o *Orchestrator) Trigger(ctx context.Context, courseID string) (*store.JobRecord, error) {
	if _, err := o.store.GetCourse(ctx, courseID); err != nil {
		return nil, err
	}

	job, claimed, err := o.store.ClaimJob(ctx, courseID, uuid.New().String(), o.staleness)
	if err != nil {
		return nil, err
	}
	if !claimed {
		o.logger.Info("generation already running, returning existing job",
			"course_id", courseID, "job_id", job.ID)
		return job, nil
	}

	if err := o.prepareRun(ctx, courseID); err != nil {
		return nil, err
	}
	o.launch(job)
	return job, nil
}

// Retry restarts a failed or stale run from scratch. Retrying a
// succeeded job is rejected; a fresh processing job is left alone.
func (o *Orchestrator) Retry(ctx context.Context, courseID string) (*store.JobRecord, error) {
	job, err := o.store.GetJob(ctx, courseID)
	if err != nil {
		return nil, err
	}
	if job.Status == store.JobSucceeded {
		return nil, fmt.Errorf("job %s: %w", job.ID, ErrAlreadySucceeded)
	}
	if job.Status == store.JobProcessing && time.Since(job.UpdatedAt) < o.staleness {
		return nil, fmt.Errorf("job %s: %w", job.ID, ErrStillRunning)
	}

	job, claimed, err := o.store.ClaimJob(ctx, courseID, uuid.New().String(), o.staleness)
	if err != nil {
		return nil, err
	}
	if !claimed {
		return nil, fmt.Errorf("job %s: %w", job.ID, ErrStillRunning)
	}

	if err := o.prepareRun(ctx, courseID); err != nil {
		return nil, err
	}
	o.logger.Info("retrying generation",
		"course_id", courseID, "job_id", job.ID, "attempt", job.Attempts)
	o.launch(job)
	return job, nil
}

// ForceStop cancels a processing run and finalizes its status from what
// has been persisted so far: with at least one question the run is kept
// as partial with the assembled note, otherwise it fails. Calling it on
// a job that is not processing is a no-op.
func (o *Orchestrator) ForceStop(ctx context.Context, courseID string) (*store.JobRecord, error) {
	job, err := o.store.GetJob(ctx, courseID)
	if err != nil {
		return nil, err
	}
	if job.Status != store.JobProcessing {
		return job, nil
	}

	o.mu.Lock()
	if cancel, ok := o.running[courseID]; ok {
		cancel()
		delete(o.running, courseID)
	}
	o.mu.Unlock()

	if _, err := o.store.FailInFlightSections(ctx, courseID); err != nil {
		return nil, err
	}

	count, err := o.store.CountQuestions(ctx, courseID)
	if err != nil {
		return nil, err
	}

	if count > 0 {
		note, err := o.store.AssembleNote(ctx, courseID)
		if err != nil {
			return nil, err
		}
		for _, kind := range []string{store.KindQuiz, store.KindNote} {
			if err := o.store.UpdateProgress(ctx, courseID, kind, 100, "stopped", nil, nil); err != nil {
				return nil, err
			}
		}
		if err := o.store.FinishGenerationStatus(ctx, courseID, store.KindQuiz, store.StatusPartial, "", nil); err != nil {
			return nil, err
		}
		if err := o.store.FinishGenerationStatus(ctx, courseID, store.KindNote, store.StatusPartial, "", &note); err != nil {
			return nil, err
		}
		if err := o.store.FinishJob(ctx, job.ID, store.JobPartial, "stopped by user"); err != nil {
			return nil, err
		}
	} else {
		for _, kind := range []string{store.KindQuiz, store.KindNote} {
			if err := o.store.FinishGenerationStatus(ctx, courseID, kind, store.StatusFailed, "stopped by user", nil); err != nil {
				return nil, err
			}
		}
		if err := o.store.FinishJob(ctx, job.ID, store.JobFailed, "stopped by user"); err != nil {
			return nil, err
		}
	}

	o.logger.Info("generation force-stopped",
		"course_id", courseID, "job_id", job.ID, "questions", count)
	return o.store.GetJob(ctx, courseID)
}

// Shutdown cancels all running jobs and waits for them to unwind.
func (o *Orchestrator) Shutdown() {
	o.mu.Lock()
	for courseID, cancel := range o.running {
		cancel()
		delete(o.running, courseID)
	}
	o.mu.Unlock()
	o.wg.Wait()
}

// prepareRun resets persisted state for a fresh run.
func (o *Orchestrator) prepareRun(ctx context.Context, courseID string) error {
	if err := o.store.ClearArtifacts(ctx, courseID); err != nil {
		return err
	}
	if err := o.store.ResetSectionGenStatus(ctx, courseID); err != nil {
		return err
	}
	for _, kind := range []string{store.KindQuiz, store.KindNote} {
		if err := o.store.InitGenerationStatus(ctx, courseID, kind); err != nil {
			return err
		}
	}
	return nil
}

// launch starts the pass pipeline in the background. The run gets its own
// cancellable context, detached from the trigger request.
func (o *Orchestrator) launch(job *store.JobRecord) {
	ctx, cancel := context.WithCancel(context.Background())
	o.mu.Lock()
	o.running[job.CourseID] = cancel
	o.mu.Unlock()

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		defer func() {
			o.mu.Lock()
			if c, ok := o.running[job.CourseID]; ok {
				c()
				delete(o.running, job.CourseID)
			}
			o.mu.Unlock()
		}()
		o.runPasses(ctx, job)
	}()
}

// finalizeFailure records a failed run. Cancellation is finalized by
// ForceStop instead; a canceled context here means the stop path already
// wrote the terminal state. The stop path can also race an in-flight call
// that surfaces some other error, so an already-terminal job is left alone
// rather than overwritten.
func (o *Orchestrator) finalizeFailure(job *store.JobRecord, runErr error) {
	if errors.Is(runErr, context.Canceled) {
		return
	}

	ctx := context.Background()
	if current, err := o.store.GetJob(ctx, job.CourseID); err == nil {
		switch current.Status {
		case store.JobSucceeded, store.JobPartial, store.JobFailed:
			return
		}
	}
	if _, err := o.store.FailInFlightSections(ctx, job.CourseID); err != nil {
		o.logger.Error("failed to mark in-flight sections",
			"course_id", job.CourseID, "error", err)
	}
	for _, kind := range []string{store.KindQuiz, store.KindNote} {
		if err := o.store.FinishGenerationStatus(ctx, job.CourseID, kind, store.StatusFailed, runErr.Error(), nil); err != nil {
			o.logger.Error("failed to finish generation status",
				"course_id", job.CourseID, "kind", kind, "error", err)
		}
	}
	if err := o.store.FinishJob(ctx, job.ID, store.JobFailed, runErr.Error()); err != nil {
		o.logger.Error("failed to finish job", "job_id", job.ID, "error", err)
	}
	o.logger.Error("generation failed",
		"course_id", job.CourseID, "job_id", job.ID, "error", runErr)
}
