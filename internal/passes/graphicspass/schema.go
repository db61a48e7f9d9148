package graphicspass

import "encoding/json"

// Result is the structured output of the graphics review.
type Result struct {
	Items        []ItemReview `json:"items"`
	OverallScore int          `json:"overall_score"`
}

// ItemReview is the verdict for one manifest entry.
type ItemReview struct {
	ID                      string   `json:"id"`
	Found                   bool     `json:"found"`
	HasIntroductionText     bool     `json:"has_introduction_text"`
	HasAnalysisText         bool     `json:"has_analysis_text"`
	CorrectSectionPlacement bool     `json:"correct_section_placement"`
	Issues                  []string `json:"issues"`
}

// Schema is the json_schema wrapper sent with the request.
var Schema = json.RawMessage(`{
	"name": "graphics_review",
	"strict": true,
	"schema": {
		"type": "object",
		"properties": {
			"items": {
				"type": "array",
				"items": {
					"type": "object",
					"properties": {
						"id": {"type": "string"},
						"found": {"type": "boolean"},
						"has_introduction_text": {"type": "boolean"},
						"has_analysis_text": {"type": "boolean"},
						"correct_section_placement": {"type": "boolean"},
						"issues": {"type": "array", "items": {"type": "string"}}
					},
					"required": ["id", "found", "has_introduction_text", "has_analysis_text", "correct_section_placement", "issues"],
					"additionalProperties": false
				}
			},
			"overall_score": {"type": "integer", "minimum": 0, "maximum": 100}
		},
		"required": ["items", "overall_score"],
		"additionalProperties": false
	}
}`)
