// Package structure detects chapter/section boundaries in course documents.
//
// Detection is purely heuristic: each line of page text is scored by a
// composable list of rules, candidates are cross-referenced against a
// detected table of contents, and the winning depth-1 candidates partition
// the document into an ordered outline. No I/O, no network calls.
package structure

import (
	"strings"
)

// Level classifies a detected section.
type Level string

const (
	LevelChapter    Level = "chapter"
	LevelSubsection Level = "subsection"
)

// PageRange is an inclusive 1-indexed page span.
type PageRange struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Section is one detected chapter (or nested subsection) of the document.
// Chapter-level sections are ordered by PageRange.Start, non-overlapping,
// and together cover every page of the document exactly once.
type Section struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Level       Level     `json:"level"`
	StartMarker string    `json:"start_marker"`
	EndMarker   string    `json:"end_marker"`
	PageRange   PageRange `json:"page_range"`

	// Inventory is filled by the structure-enrichment pass, not the
	// detector. Keys are content kinds (definitions, formulas, ...).
	Inventory map[string]int `json:"inventory,omitempty"`

	// Subsections are depth>=2 headings nested under this chapter.
	Subsections []Section `json:"subsections,omitempty"`
}

// markerWords is the approximate marker length used to slice source text.
const markerWords = 20

// marker returns the first (or last) markerWords words of page text.
func marker(pageText string, fromEnd bool) string {
	words := strings.Fields(pageText)
	if len(words) == 0 {
		return ""
	}
	if len(words) <= markerWords {
		return strings.Join(words, " ")
	}
	if fromEnd {
		return strings.Join(words[len(words)-markerWords:], " ")
	}
	return strings.Join(words[:markerWords], " ")
}
