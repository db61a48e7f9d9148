package structure

import (
	"fmt"
	"sort"
	"strings"
)

// candidate is a heading candidate line after scoring.
type candidate struct {
	Page      int
	LineNum   int
	Text      string
	Title     string // normalized
	Depth     int
	Score     float64
	Confirmed bool // matched a ToC entry
}

// Detect segments ordered page texts into an ordered chapter outline.
// It is deterministic and never fails: a document with no detectable
// headings yields a single chapter spanning every page.
//
// Pages are 1-indexed throughout (pages[0] is page 1).
func Detect(pages []string) []Section {
	if len(pages) == 0 {
		return nil
	}
	lastPage := len(pages)

	tocEntries := scanTOC(pages)
	candidates := collectCandidates(pages, tocEntries)
	candidates = append(candidates, tocOnlyAnchors(tocEntries, candidates, lastPage)...)

	chapters, subs := promote(candidates)
	if len(chapters) == 0 {
		// Degenerate document: one chapter, whole span.
		sec := Section{
			ID:          "sec-001",
			Title:       "Document",
			Level:       LevelChapter,
			PageRange:   PageRange{Start: 1, End: lastPage},
			StartMarker: marker(pages[0], false),
			EndMarker:   marker(pages[lastPage-1], true),
		}
		return []Section{sec}
	}

	return assemble(pages, chapters, subs, lastPage)
}

// collectCandidates scores every line of every page and keeps the single
// highest-ranked candidate per page. ToC-confirmed candidates outrank
// unconfirmed candidates of equal raw score.
func collectCandidates(pages []string, tocEntries []TOCEntry) []candidate {
	repeats := countLineRepeats(pages)

	var winners []candidate
	for p, pageText := range pages {
		pageNum := p + 1
		var best *candidate
		for num, raw := range strings.Split(pageText, "\n") {
			text := strings.TrimSpace(raw)
			if text == "" {
				continue
			}
			// ToC-entry-shaped lines are listings, not headings.
			if dotLeaderPattern.MatchString(text) {
				continue
			}

			l := line{
				Page:        pageNum,
				Num:         num,
				Text:        text,
				repeatPages: len(repeats[normalizeLine(text)]),
			}
			score := scoreLine(l)
			if score < candidateThreshold {
				continue
			}

			depth := numericPrefixDepth(text)
			if depth == 0 {
				depth = 1
			}
			c := candidate{
				Page:      pageNum,
				LineNum:   num,
				Text:      text,
				Title:     normalizeTitle(text),
				Depth:     depth,
				Score:     score,
				Confirmed: tocConfirmed(tocEntries, text, pageNum),
			}
			if best == nil || outranks(c, *best) {
				best = &c
			}
		}
		if best != nil {
			winners = append(winners, *best)
		}
	}
	return winners
}

// outranks is the deterministic candidate ordering: ToC confirmation
// breaks raw-score ties, earlier lines break remaining ties.
func outranks(a, b candidate) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	if a.Confirmed != b.Confirmed {
		return a.Confirmed
	}
	return a.LineNum < b.LineNum
}

// tocOnlyAnchors promotes ToC entries that point past every physical page
// as chapter anchors. This keeps the outline complete when an upload was
// truncated short of a listed chapter.
func tocOnlyAnchors(entries []TOCEntry, existing []candidate, lastPage int) []candidate {
	var anchors []candidate
	for _, e := range entries {
		if e.TargetPage <= lastPage {
			continue
		}
		norm := normalizeTitle(e.Title)
		dup := false
		for _, c := range existing {
			if titleSimilarity(norm, c.Title) >= tocMatchThreshold {
				dup = true
				break
			}
		}
		if dup {
			continue
		}
		anchors = append(anchors, candidate{
			Page:      e.TargetPage,
			Text:      e.Title,
			Title:     norm,
			Depth:     1,
			Confirmed: true,
		})
	}
	return anchors
}

// promote walks candidates in page order and splits them into chapter
// anchors and subsection anchors. A repeated heading title on a later,
// non-adjacent page is never merged into the earlier section: unconfirmed
// repeats are demoted to subsection level.
func promote(candidates []candidate) (chapters, subs []candidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Page < candidates[j].Page
	})

	firstSeen := make(map[string]int) // normalized title -> first page
	for _, c := range candidates {
		if c.Depth >= 2 {
			subs = append(subs, c)
			continue
		}

		prev, seen := firstSeen[c.Title]
		if seen && c.Page > prev+1 && !c.Confirmed {
			// Recurring heading ("Exercises" etc.) without ToC
			// backing: demote, keep the page anchor distinct.
			subs = append(subs, c)
			continue
		}
		if !seen {
			firstSeen[c.Title] = c.Page
		}
		chapters = append(chapters, c)
	}
	return chapters, subs
}

// assemble builds the final Section slice: one chapter per depth-1 anchor,
// each ending on the page before the next anchor, the last extending to
// the document's final page. Subsection anchors nest under the chapter
// whose range contains their page.
func assemble(pages []string, chapters, subs []candidate, lastPage int) []Section {
	sections := make([]Section, 0, len(chapters))
	for i, c := range chapters {
		end := lastPage
		if i+1 < len(chapters) {
			end = chapters[i+1].Page - 1
		}

		sec := Section{
			ID:        fmt.Sprintf("sec-%03d", i+1),
			Title:     strings.TrimSpace(c.Text),
			Level:     LevelChapter,
			PageRange: PageRange{Start: c.Page, End: end},
		}
		sec.StartMarker = markerAt(pages, c.Page, false)
		sec.EndMarker = markerAt(pages, end, true)
		sections = append(sections, sec)
	}

	for _, s := range subs {
		idx := owningChapter(sections, s.Page)
		if idx < 0 {
			continue
		}
		parent := &sections[idx]
		sub := Section{
			ID:        fmt.Sprintf("%s-%02d", parent.ID, len(parent.Subsections)+1),
			Title:     strings.TrimSpace(s.Text),
			Level:     LevelSubsection,
			PageRange: PageRange{Start: s.Page, End: s.Page},
		}
		sub.StartMarker = markerAt(pages, s.Page, false)
		sub.EndMarker = markerAt(pages, s.Page, true)
		parent.Subsections = append(parent.Subsections, sub)
	}

	return sections
}

// owningChapter returns the index of the chapter whose range contains the
// page, or the last chapter that starts at or before it.
func owningChapter(sections []Section, page int) int {
	for i := len(sections) - 1; i >= 0; i-- {
		if sections[i].PageRange.Start <= page {
			return i
		}
	}
	return -1
}

// markerAt returns a slice marker for a 1-indexed page, tolerating anchors
// past the end of the physical document.
func markerAt(pages []string, page int, fromEnd bool) string {
	if page < 1 || page > len(pages) {
		return ""
	}
	return marker(pages[page-1], fromEnd)
}

// countLineRepeats maps each normalized line to the set of pages it
// appears on. Lines recurring verbatim across several pages are running
// headers or footers.
func countLineRepeats(pages []string) map[string]map[int]struct{} {
	repeats := make(map[string]map[int]struct{})
	for p, pageText := range pages {
		for _, raw := range strings.Split(pageText, "\n") {
			norm := normalizeLine(raw)
			if norm == "" {
				continue
			}
			if repeats[norm] == nil {
				repeats[norm] = make(map[int]struct{})
			}
			repeats[norm][p+1] = struct{}{}
		}
	}
	return repeats
}

// normalizeLine collapses case and whitespace for repeat detection.
func normalizeLine(text string) string {
	return strings.Join(strings.Fields(strings.ToLower(strings.TrimSpace(text))), " ")
}
