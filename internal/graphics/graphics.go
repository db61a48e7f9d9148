// Package graphics manages extracted figures: promoting manifest items to
// graphic records and re-running weak analyses through the vision call.
package graphics

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/jackzampolin/cram/internal/breaker"
	"github.com/jackzampolin/cram/internal/passes"
	"github.com/jackzampolin/cram/internal/providers"
	"github.com/jackzampolin/cram/internal/store"
)

//go:embed system.tmpl
var systemPrompt string

// ConfidenceThreshold marks an analysis as weak. Graphics below it, or
// with no recorded elements, are eligible for reanalysis.
const ConfidenceThreshold = 0.9

// Analyzer reanalyzes weak graphics through the shared breaker.
type Analyzer struct {
	store   *store.Store
	runner  *passes.Runner
	breaker *breaker.Breaker
	logger  *slog.Logger

	callTimeout time.Duration
}

// NewAnalyzer builds an Analyzer. The breaker is the shared instance also
// used by the generation passes.
func NewAnalyzer(st *store.Store, runner *passes.Runner, brk *breaker.Breaker, logger *slog.Logger) *Analyzer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Analyzer{
		store:       st,
		runner:      runner,
		breaker:     brk,
		logger:      logger,
		callTimeout: 120 * time.Second,
	}
}

// analysisResult is the structured output of one vision call.
type analysisResult struct {
	Elements        []string `json:"elements"`
	Suggestions     []string `json:"suggestions"`
	RelatedConcepts []string `json:"related_concepts"`
	Confidence      float64  `json:"confidence"`
}

var analysisSchema = json.RawMessage(`{
	"name": "graphic_analysis",
	"strict": true,
	"schema": {
		"type": "object",
		"properties": {
			"elements": {"type": "array", "items": {"type": "string"}},
			"suggestions": {"type": "array", "items": {"type": "string"}},
			"related_concepts": {"type": "array", "items": {"type": "string"}},
			"confidence": {"type": "number", "minimum": 0, "maximum": 1}
		},
		"required": ["elements", "suggestions", "related_concepts", "confidence"],
		"additionalProperties": false
	}
}`)

// PromoteManifest creates graphic records for every manifest item that
// does not already have one. Fresh records start with zero confidence and
// no elements, which makes them reanalysis candidates.
func (a *Analyzer) PromoteManifest(ctx context.Context, courseID string) error {
	items, err := a.store.ListManifestItems(ctx, courseID)
	if err != nil {
		return err
	}
	existing, err := a.store.ListGraphics(ctx, courseID)
	if err != nil {
		return err
	}

	seen := make(map[string]bool, len(existing))
	for _, g := range existing {
		seen[fmt.Sprintf("%d/%s", g.PageNumber, g.Description)] = true
	}

	for _, item := range items {
		key := fmt.Sprintf("%d/%s", item.PageNumber, item.Description)
		if seen[key] {
			continue
		}
		seen[key] = true
		err := a.store.SaveGraphic(ctx, store.ExtractedGraphic{
			ID:          uuid.New().String(),
			CourseID:    courseID,
			PageNumber:  item.PageNumber,
			GraphicType: item.Type,
			Description: item.Description,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// Reanalyze re-runs the vision analysis for every weak graphic of a
// course. A failed call leaves the row untouched and moves on; a breaker
// that opens mid-run stops the walk. Returns how many graphics were
// successfully updated.
func (a *Analyzer) Reanalyze(ctx context.Context, courseID string) (int, error) {
	candidates, err := a.store.SelectForReanalysis(ctx, courseID, ConfidenceThreshold)
	if err != nil {
		return 0, err
	}
	if len(candidates) == 0 {
		return 0, nil
	}

	a.logger.Info("reanalyzing graphics",
		"course_id", courseID, "candidates", len(candidates))

	updated := 0
	for _, g := range candidates {
		result, err := a.analyzeOne(ctx, g)
		if err != nil {
			if errors.Is(err, breaker.ErrOpen) {
				a.logger.Warn("breaker open, stopping reanalysis",
					"course_id", courseID, "updated", updated)
				return updated, nil
			}
			a.logger.Warn("graphic analysis failed, keeping existing row",
				"graphic_id", g.ID, "error", err)
			continue
		}

		err = a.store.UpdateGraphicAnalysis(ctx, g.ID, result.Confidence,
			result.Elements, result.Suggestions, result.RelatedConcepts)
		if err != nil {
			return updated, err
		}
		updated++
	}

	a.logger.Info("reanalysis complete",
		"course_id", courseID, "updated", updated, "candidates", len(candidates))
	return updated, nil
}

func (a *Analyzer) analyzeOne(ctx context.Context, g store.ExtractedGraphic) (*analysisResult, error) {
	pages, err := a.store.GetPageRange(ctx, g.CourseID, g.PageNumber, g.PageNumber)
	if err != nil {
		return nil, err
	}
	var pageText string
	if len(pages) > 0 {
		pageText = pages[0]
	}

	req := &providers.ChatRequest{
		Messages: []providers.Message{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: buildAnalysisPrompt(g, pageText)},
		},
		ResponseFormat: &providers.ResponseFormat{
			Type:       "json_schema",
			JSONSchema: analysisSchema,
		},
		Timeout:   a.callTimeout,
		RequestID: "graphic-" + g.ID,
	}

	result, err := a.runner.Structured(ctx, req)
	if err != nil {
		return nil, err
	}

	var out analysisResult
	if err := passes.DecodeResult(result, &out); err != nil {
		return nil, err
	}
	// Elements must not come back nil: a nil column would keep the row a
	// reanalysis candidate forever.
	if out.Elements == nil {
		out.Elements = []string{}
	}
	return &out, nil
}

func buildAnalysisPrompt(g store.ExtractedGraphic, pageText string) string {
	return fmt.Sprintf("Graphic: %s (%s) on page %d.\n\nPage text:\n%s",
		g.Description, g.GraphicType, g.PageNumber, pageText)
}
