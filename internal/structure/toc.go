package structure

import (
	"regexp"
	"strconv"
	"strings"
)

// tocScanPages is how many leading pages are scanned for a table of
// contents.
const tocScanPages = 8

// tocMatchThreshold is the minimum title similarity for a candidate to be
// considered confirmed by a ToC entry.
const tocMatchThreshold = 0.75

// TOCEntry is one (title, target page) pair extracted from a table of
// contents page.
type TOCEntry struct {
	Title      string
	TargetPage int
}

// dotLeaderPattern matches classic ToC lines: "2. Memory Hierarchy .... 31".
var dotLeaderPattern = regexp.MustCompile(`^(.*?\S)\s*\.{2,}\s*(\d{1,4})\s*$`)

// trailingPagePattern matches ToC lines without leaders: "Memory Hierarchy   31".
var trailingPagePattern = regexp.MustCompile(`^(.*?[A-Za-z].*?\S)\s{2,}(\d{1,4})\s*$`)

// scanTOC extracts ToC entries from the first few pages. A page counts as
// a ToC page when several of its lines look like entries; isolated
// matches elsewhere are ignored.
func scanTOC(pages []string) []TOCEntry {
	limit := tocScanPages
	if len(pages) < limit {
		limit = len(pages)
	}

	var entries []TOCEntry
	for p := 0; p < limit; p++ {
		pageEntries := scanTOCPage(pages[p])
		// Fewer than two entry-shaped lines on a page is noise.
		if len(pageEntries) >= 2 {
			entries = append(entries, pageEntries...)
		}
	}
	return entries
}

func scanTOCPage(pageText string) []TOCEntry {
	var entries []TOCEntry
	for _, raw := range strings.Split(pageText, "\n") {
		lineText := strings.TrimSpace(raw)
		if lineText == "" {
			continue
		}

		match := dotLeaderPattern.FindStringSubmatch(lineText)
		if match == nil {
			match = trailingPagePattern.FindStringSubmatch(lineText)
		}
		if match == nil {
			continue
		}

		title := strings.TrimSpace(match[1])
		page, err := strconv.Atoi(match[2])
		if err != nil || page <= 0 {
			continue
		}
		if normalizeTitle(title) == "" {
			continue
		}

		entries = append(entries, TOCEntry{Title: title, TargetPage: page})
	}
	return entries
}

// tocConfirmed reports whether a candidate title on a given page matches a
// ToC entry. The entry must point at (or near) the candidate's page: ToC
// page numbers are printed numbers and can be off from scan positions by
// a small offset.
func tocConfirmed(entries []TOCEntry, title string, page int) bool {
	norm := normalizeTitle(title)
	if norm == "" {
		return false
	}
	for _, e := range entries {
		if titleSimilarity(norm, normalizeTitle(e.Title)) < tocMatchThreshold {
			continue
		}
		delta := e.TargetPage - page
		if delta >= -2 && delta <= 2 {
			return true
		}
	}
	return false
}
