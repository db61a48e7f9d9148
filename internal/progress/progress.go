// Package progress implements both sides of the progress-reporting
// contract: a serializing writer that persists non-decreasing progress,
// and the client-side smoothing function used between server checkpoints.
package progress

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/jackzampolin/cram/internal/store"
)

// Stage checkpoints for a generation run. Progress between checkpoints is
// interpolated by the section walk; each stage opens when the previous
// one confirms.
const (
	CheckpointStructure = 5
	CheckpointEnrich    = 30
	CheckpointSections  = 80
	CheckpointVerify    = 90
	CheckpointGraphics  = 95
	CheckpointDone      = 100
)

// Writer serializes status updates for one course. Concurrent section
// workers report through the same writer; the store additionally clamps
// progress to be non-decreasing.
type Writer struct {
	mu       sync.Mutex
	store    *store.Store
	courseID string
}

// NewWriter builds a Writer for one course's generation run.
func NewWriter(st *store.Store, courseID string) *Writer {
	return &Writer{store: st, courseID: courseID}
}

// Update reports progress for both artifact kinds.
func (w *Writer) Update(ctx context.Context, pct int, step string) error {
	return w.update(ctx, pct, step, nil, nil)
}

// UpdateSection reports progress with the section counters attached.
func (w *Writer) UpdateSection(ctx context.Context, pct int, step string, index, total int) error {
	return w.update(ctx, pct, step, &index, &total)
}

func (w *Writer) update(ctx context.Context, pct int, step string, index, total *int) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, kind := range []string{store.KindQuiz, store.KindNote} {
		if err := w.store.UpdateProgress(ctx, w.courseID, kind, pct, step, index, total); err != nil {
			return err
		}
	}
	return nil
}

// SectionProgress maps a completed-section count onto the sections stage
// span. With total sections done the stage checkpoint is reached exactly.
func SectionProgress(completed, total int) int {
	if total <= 0 {
		return CheckpointSections
	}
	span := CheckpointSections - CheckpointEnrich
	return CheckpointEnrich + span*completed/total
}

// Smooth interpolates display progress between server checkpoints. The
// returned value starts at the last confirmed checkpoint and creeps
// toward, but never reaches, the next threshold: the server confirms
// crossings, the client only fills the gaps. The result is monotonic in
// sinceCheckpoint and never below checkpoint.
func Smooth(checkpoint int, sinceCheckpoint time.Duration) int {
	if checkpoint >= 100 {
		return 100
	}
	if checkpoint < 0 {
		checkpoint = 0
	}
	next := nextThreshold(checkpoint)

	// Asymptotic creep: half the remaining gap per interval, capped one
	// point below the unconfirmed threshold.
	gap := float64(next-checkpoint) - 1
	if gap <= 0 {
		return checkpoint
	}
	elapsed := sinceCheckpoint.Seconds()
	if elapsed < 0 {
		elapsed = 0
	}
	const halfLife = 15.0 // seconds per halving of the remaining gap
	frac := 1 - math.Pow(0.5, elapsed/halfLife)
	return checkpoint + int(gap*frac)
}

func nextThreshold(checkpoint int) int {
	thresholds := []int{
		CheckpointStructure, CheckpointEnrich, CheckpointSections,
		CheckpointVerify, CheckpointGraphics, CheckpointDone,
	}
	for _, t := range thresholds {
		if t > checkpoint {
			return t
		}
	}
	return 100
}
