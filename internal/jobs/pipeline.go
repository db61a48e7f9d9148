package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/jackzampolin/cram/internal/passes"
	"github.com/jackzampolin/cram/internal/passes/complete"
	"github.com/jackzampolin/cram/internal/passes/enrich"
	"github.com/jackzampolin/cram/internal/passes/graphicspass"
	"github.com/jackzampolin/cram/internal/passes/section"
	"github.com/jackzampolin/cram/internal/progress"
	"github.com/jackzampolin/cram/internal/providers"
	"github.com/jackzampolin/cram/internal/store"
	"github.com/jackzampolin/cram/internal/structure"
)

// Pipeline stages, in order.
const (
	StageStructure = "structure"
	StageEnrich    = "enrich"
	StageSections  = "sections"
	StageVerify    = "verify"
	StageGraphics  = "graphics"
)

const passTimeout = 180 * time.Second

// runPasses walks the stage pipeline for one job. Any stage error fails
// the whole run.
func (o *Orchestrator) runPasses(ctx context.Context, job *store.JobRecord) {
	writer := progress.NewWriter(o.store, job.CourseID)
	start := time.Now()

	o.logger.Info("generation started",
		"course_id", job.CourseID, "job_id", job.ID, "attempt", job.Attempts)

	completeness, err := o.walkStages(ctx, job, writer)
	if err != nil {
		o.finalizeFailure(job, err)
		return
	}

	status := store.StatusSucceeded
	jobStatus := store.JobSucceeded
	if completeness < o.completenessThreshold {
		status = store.StatusPartial
		jobStatus = store.JobPartial
		o.logger.Warn("completeness below threshold, finishing partial",
			"course_id", job.CourseID, "score", completeness, "threshold", o.completenessThreshold)
	}

	bg := context.Background()
	note, err := o.store.AssembleNote(bg, job.CourseID)
	if err != nil {
		o.finalizeFailure(job, err)
		return
	}
	if err := o.store.FinishGenerationStatus(bg, job.CourseID, store.KindQuiz, status, "", nil); err != nil {
		o.finalizeFailure(job, err)
		return
	}
	if err := o.store.FinishGenerationStatus(bg, job.CourseID, store.KindNote, status, "", &note); err != nil {
		o.finalizeFailure(job, err)
		return
	}
	if err := o.store.FinishJob(bg, job.ID, jobStatus, ""); err != nil {
		o.finalizeFailure(job, err)
		return
	}

	o.logger.Info("generation finished",
		"course_id", job.CourseID, "job_id", job.ID,
		"status", jobStatus, "completeness", completeness,
		"duration", time.Since(start).Round(time.Second))
}

func (o *Orchestrator) walkStages(ctx context.Context, job *store.JobRecord, writer *progress.Writer) (int, error) {
	type stage struct {
		name string
		run  func(context.Context, *store.JobRecord, *progress.Writer) error
	}
	stages := []stage{
		{StageStructure, o.stageStructure},
		{StageEnrich, o.stageEnrich},
		{StageSections, o.stageSections},
	}

	for _, st := range stages {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		if err := o.store.UpdateJobStage(ctx, job.ID, st.name); err != nil {
			return 0, err
		}
		if err := st.run(ctx, job, writer); err != nil {
			return 0, fmt.Errorf("%s stage: %w", st.name, err)
		}
	}

	// Verify returns the run's completeness score.
	if err := o.store.UpdateJobStage(ctx, job.ID, StageVerify); err != nil {
		return 0, err
	}
	completeness, err := o.stageVerify(ctx, job, writer)
	if err != nil {
		return 0, fmt.Errorf("%s stage: %w", StageVerify, err)
	}

	if err := o.store.UpdateJobStage(ctx, job.ID, StageGraphics); err != nil {
		return 0, err
	}
	if err := o.stageGraphics(ctx, job, writer); err != nil {
		return 0, fmt.Errorf("%s stage: %w", StageGraphics, err)
	}

	return completeness, nil
}

// stageStructure detects the document outline and persists it.
func (o *Orchestrator) stageStructure(ctx context.Context, job *store.JobRecord, writer *progress.Writer) error {
	pages, err := o.store.GetPages(ctx, job.CourseID)
	if err != nil {
		return err
	}

	sections := structure.Detect(pages)
	if err := o.store.ReplaceSections(ctx, job.CourseID, sections); err != nil {
		return err
	}

	o.logger.Info("structure detected",
		"course_id", job.CourseID, "chapters", len(sections))
	return writer.Update(ctx, progress.CheckpointStructure, "structure detected")
}

// stageEnrich inventories every chapter and collects the graphics
// manifest. Sequential: each chapter is one provider call.
func (o *Orchestrator) stageEnrich(ctx context.Context, job *store.JobRecord, writer *progress.Writer) error {
	chapters, err := o.store.ListChapters(ctx, job.CourseID)
	if err != nil {
		return err
	}

	outline := make([]string, len(chapters))
	for i, ch := range chapters {
		outline[i] = ch.Title
	}

	span := progress.CheckpointEnrich - progress.CheckpointStructure
	for i, ch := range chapters {
		pages, err := o.store.GetPageRange(ctx, job.CourseID, ch.StartPage, ch.EndPage)
		if err != nil {
			return err
		}

		req := &providers.ChatRequest{
			Messages: []providers.Message{
				{Role: "system", Content: enrich.SystemPrompt()},
				{Role: "user", Content: enrich.BuildUserPrompt(outline, enrich.SectionInput{
					SectionID: ch.ID,
					Title:     ch.Title,
					StartPage: ch.StartPage,
					EndPage:   ch.EndPage,
					Pages:     pages,
				})},
			},
			ResponseFormat: &providers.ResponseFormat{Type: "json_schema", JSONSchema: enrich.Schema},
			Timeout:        passTimeout,
			RequestID:      fmt.Sprintf("enrich-%s", ch.ID),
		}

		result, err := o.runner.Structured(ctx, req)
		if err != nil {
			return err
		}
		var out enrich.Result
		if err := passes.DecodeResult(result, &out); err != nil {
			return err
		}

		if err := o.store.UpdateSectionInventory(ctx, ch.ID, out.Inventory); err != nil {
			return err
		}
		items := make([]store.ManifestItem, len(out.Graphics))
		for j, g := range out.Graphics {
			items[j] = store.ManifestItem{
				ID:          uuid.New().String(),
				CourseID:    job.CourseID,
				SectionID:   ch.ID,
				Description: g.Description,
				Type:        g.Type,
				PageNumber:  g.PageNumber,
			}
		}
		if err := o.store.SaveManifestItems(ctx, items); err != nil {
			return err
		}

		pct := progress.CheckpointStructure + span*(i+1)/len(chapters)
		if err := writer.Update(ctx, pct, fmt.Sprintf("inventoried %q", ch.Title)); err != nil {
			return err
		}
		if err := o.store.HeartbeatJob(ctx, job.ID); err != nil {
			return err
		}
	}
	return nil
}

// stageSections generates questions, flashcards, and note fragments per
// chapter, a bounded number of chapters at a time.
func (o *Orchestrator) stageSections(ctx context.Context, job *store.JobRecord, writer *progress.Writer) error {
	chapters, err := o.store.ListChapters(ctx, job.CourseID)
	if err != nil {
		return err
	}
	total := len(chapters)
	if total == 0 {
		return writer.Update(ctx, progress.CheckpointSections, "no sections to generate")
	}

	var mu sync.Mutex
	completed := 0

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.sectionConcurrency)

	for i, ch := range chapters {
		g.Go(func() error {
			if err := o.store.SetSectionGenStatus(gctx, ch.ID, store.SectionProcessing); err != nil {
				return err
			}
			if err := o.generateSection(gctx, job, ch, i); err != nil {
				// Mark with a fresh context: gctx is already canceled
				// when a sibling failed first.
				_ = o.store.SetSectionGenStatus(context.Background(), ch.ID, store.SectionFailed)
				return err
			}
			if err := o.store.SetSectionGenStatus(gctx, ch.ID, store.SectionSucceeded); err != nil {
				return err
			}

			mu.Lock()
			completed++
			n := completed
			mu.Unlock()

			pct := progress.SectionProgress(n, total)
			step := fmt.Sprintf("generated %q", ch.Title)
			if err := writer.UpdateSection(gctx, pct, step, n, total); err != nil {
				return err
			}
			return o.store.HeartbeatJob(gctx, job.ID)
		})
	}
	return g.Wait()
}

func (o *Orchestrator) generateSection(ctx context.Context, job *store.JobRecord, ch store.SectionRecord, sortOrder int) error {
	pages, err := o.store.GetPageRange(ctx, job.CourseID, ch.StartPage, ch.EndPage)
	if err != nil {
		return err
	}

	req := &providers.ChatRequest{
		Messages: []providers.Message{
			{Role: "system", Content: section.SystemPrompt()},
			{Role: "user", Content: section.BuildUserPrompt(section.Input{
				SectionID:   ch.ID,
				Title:       ch.Title,
				StartPage:   ch.StartPage,
				EndPage:     ch.EndPage,
				StartMarker: ch.StartMarker,
				EndMarker:   ch.EndMarker,
				Inventory:   ch.Inventory,
				Pages:       pages,
			})},
		},
		ResponseFormat: &providers.ResponseFormat{Type: "json_schema", JSONSchema: section.Schema},
		Timeout:        passTimeout,
		RequestID:      fmt.Sprintf("section-%s", ch.ID),
	}

	result, err := o.runner.Structured(ctx, req)
	if err != nil {
		return err
	}
	var out section.Result
	if err := passes.DecodeResult(result, &out); err != nil {
		return err
	}

	questions := make([]store.Question, len(out.Questions))
	for i, q := range out.Questions {
		questions[i] = store.Question{
			ID:          uuid.New().String(),
			CourseID:    job.CourseID,
			SectionID:   ch.ID,
			Question:    q.Question,
			Options:     q.Options,
			Answer:      q.Answer,
			Explanation: q.Explanation,
		}
	}
	if err := o.store.SaveQuestions(ctx, questions); err != nil {
		return err
	}

	cards := make([]store.Flashcard, len(out.Flashcards))
	for i, c := range out.Flashcards {
		cards[i] = store.Flashcard{
			ID:        uuid.New().String(),
			CourseID:  job.CourseID,
			SectionID: ch.ID,
			Front:     c.Front,
			Back:      c.Back,
		}
	}
	if err := o.store.SaveFlashcards(ctx, cards); err != nil {
		return err
	}

	return o.store.SaveNoteFragment(ctx, job.CourseID, ch.ID, sortOrder, out.Note)
}

// stageVerify audits the generated artifacts against each chapter's
// inventory and persists gap-filling supplements. Returns the average
// completeness score.
func (o *Orchestrator) stageVerify(ctx context.Context, job *store.JobRecord, writer *progress.Writer) (int, error) {
	chapters, err := o.store.ListChapters(ctx, job.CourseID)
	if err != nil {
		return 0, err
	}
	if len(chapters) == 0 {
		return 100, nil
	}

	questions, err := o.store.ListQuestions(ctx, job.CourseID)
	if err != nil {
		return 0, err
	}
	cards, err := o.store.ListFlashcards(ctx, job.CourseID)
	if err != nil {
		return 0, err
	}

	scoreSum := 0
	for _, ch := range chapters {
		if len(ch.Inventory) == 0 {
			scoreSum += 100
			continue
		}

		artifacts := map[string]any{
			"questions":  questionsForSection(questions, ch.ID),
			"flashcards": cardsForSection(cards, ch.ID),
		}
		userPrompt, err := complete.BuildUserPrompt(complete.Input{
			SectionID: ch.ID,
			Title:     ch.Title,
			Inventory: ch.Inventory,
			Artifacts: artifacts,
		})
		if err != nil {
			return 0, err
		}

		req := &providers.ChatRequest{
			Messages: []providers.Message{
				{Role: "system", Content: complete.SystemPrompt()},
				{Role: "user", Content: userPrompt},
			},
			ResponseFormat: &providers.ResponseFormat{Type: "json_schema", JSONSchema: complete.Schema},
			Timeout:        passTimeout,
			RequestID:      fmt.Sprintf("verify-%s", ch.ID),
		}
		result, err := o.runner.Structured(ctx, req)
		if err != nil {
			return 0, err
		}
		var out complete.Result
		if err := passes.DecodeResult(result, &out); err != nil {
			return 0, err
		}

		scoreSum += out.CompletenessScore

		if len(out.Supplements) > 0 {
			supplements := make([]store.Question, len(out.Supplements))
			for i, sup := range out.Supplements {
				supplements[i] = store.Question{
					ID:          uuid.New().String(),
					CourseID:    job.CourseID,
					SectionID:   ch.ID,
					Question:    sup.Question,
					Options:     sup.Options,
					Answer:      sup.Answer,
					Explanation: sup.Explanation,
				}
			}
			if err := o.store.SaveQuestions(ctx, supplements); err != nil {
				return 0, err
			}
			o.logger.Info("added completeness supplements",
				"course_id", job.CourseID, "section_id", ch.ID, "count", len(supplements))
		}
	}

	avg := scoreSum / len(chapters)
	if err := writer.Update(ctx, progress.CheckpointVerify, "completeness verified"); err != nil {
		return 0, err
	}
	return avg, o.store.HeartbeatJob(ctx, job.ID)
}

// stageGraphics promotes the manifest to graphic records and reviews how
// the assembled note integrates them. Review issues are logged, never
// fatal.
func (o *Orchestrator) stageGraphics(ctx context.Context, job *store.JobRecord, writer *progress.Writer) error {
	if err := o.analyzer.PromoteManifest(ctx, job.CourseID); err != nil {
		return err
	}

	items, err := o.store.ListManifestItems(ctx, job.CourseID)
	if err != nil {
		return err
	}
	if len(items) > 0 {
		note, err := o.store.AssembleNote(ctx, job.CourseID)
		if err != nil {
			return err
		}
		manifest := make([]graphicspass.ManifestEntry, len(items))
		for i, item := range items {
			manifest[i] = graphicspass.ManifestEntry{
				ID:          item.ID,
				SectionID:   item.SectionID,
				Description: item.Description,
				Type:        item.Type,
				PageNumber:  item.PageNumber,
			}
		}

		req := &providers.ChatRequest{
			Messages: []providers.Message{
				{Role: "system", Content: graphicspass.SystemPrompt()},
				{Role: "user", Content: graphicspass.BuildUserPrompt(manifest, note)},
			},
			ResponseFormat: &providers.ResponseFormat{Type: "json_schema", JSONSchema: graphicspass.Schema},
			Timeout:        passTimeout,
			RequestID:      fmt.Sprintf("graphics-%s", job.CourseID),
		}
		result, err := o.runner.Structured(ctx, req)
		if err != nil {
			o.logger.Warn("graphics review failed, continuing",
				"course_id", job.CourseID, "error", err)
		} else {
			var out graphicspass.Result
			if err := passes.DecodeResult(result, &out); err != nil {
				o.logger.Warn("graphics review undecodable, continuing",
					"course_id", job.CourseID, "error", err)
			} else {
				for _, item := range out.Items {
					if len(item.Issues) > 0 {
						o.logger.Warn("graphic integration issues",
							"course_id", job.CourseID, "graphic_id", item.ID, "issues", item.Issues)
					}
				}
				o.logger.Info("graphics review complete",
					"course_id", job.CourseID, "score", out.OverallScore)
			}
		}
	}

	return writer.Update(ctx, progress.CheckpointGraphics, "graphics processed")
}

func questionsForSection(all []store.Question, sectionID string) []store.Question {
	var out []store.Question
	for _, q := range all {
		if q.SectionID == sectionID {
			out = append(out, q)
		}
	}
	return out
}

func cardsForSection(all []store.Flashcard, sectionID string) []store.Flashcard {
	var out []store.Flashcard
	for _, c := range all {
		if c.SectionID == sectionID {
			out = append(out, c)
		}
	}
	return out
}
