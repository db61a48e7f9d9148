package structure

import (
	"regexp"
	"strings"
	"unicode"
)

// candidateThreshold is the minimum summed rule score for a line to become
// a heading candidate. Tuned so that a numeric prefix or an all-caps short
// line clears it, while title-case prose fragments do not.
const candidateThreshold = 2.0

// repeatPageCount is the page count at which a verbatim-repeated line is
// treated as a running header/footer and excluded from candidacy.
const repeatPageCount = 3

// numericPrefixPattern matches "3." / "3.2" / "12.4.1" style heading
// prefixes followed by a title.
var numericPrefixPattern = regexp.MustCompile(`^(\d{1,3}(?:\.\d{1,3})*)[.)]?\s+\S`)

// line is one page line prepared for scoring.
type line struct {
	Page int
	Num  int // line number within the page, 0-indexed
	Text string

	// repeatPages is the number of distinct pages this exact
	// (normalized) line appears on.
	repeatPages int
}

// scoreRule returns a weighted contribution for one heuristic. New
// heuristics are added to scoreRules without restructuring the detector.
type scoreRule func(l line) float64

var scoreRules = []scoreRule{
	numericPrefixRule,
	shortLineRule,
	capitalizationRule,
	repeatPenaltyRule,
}

// scoreLine sums all rule contributions.
func scoreLine(l line) float64 {
	var total float64
	for _, rule := range scoreRules {
		total += rule(l)
	}
	return total
}

// numericPrefixDepth returns the number of numeric segments in a heading
// prefix ("3.2.1" -> 3), or 0 if the line has no numeric prefix.
func numericPrefixDepth(text string) int {
	match := numericPrefixPattern.FindStringSubmatch(strings.TrimSpace(text))
	if match == nil {
		return 0
	}
	return strings.Count(match[1], ".") + 1
}

func numericPrefixRule(l line) float64 {
	if numericPrefixDepth(l.Text) > 0 {
		return 2.0
	}
	return 0
}

func shortLineRule(l line) float64 {
	trimmed := strings.TrimSpace(l.Text)
	switch {
	case len(trimmed) == 0:
		return 0
	case len(trimmed) <= 40:
		return 1.0
	case len(trimmed) <= 70:
		return 0.5
	default:
		return 0
	}
}

func capitalizationRule(l line) float64 {
	var letters, upper int
	for _, r := range l.Text {
		if unicode.IsLetter(r) {
			letters++
			if unicode.IsUpper(r) {
				upper++
			}
		}
	}
	if letters < 3 {
		return 0
	}
	ratio := float64(upper) / float64(letters)
	switch {
	case ratio >= 0.9:
		return 1.0
	case ratio >= 0.6:
		return 0.75
	case startsTitleCase(l.Text):
		return 0.5
	default:
		return 0
	}
}

// startsTitleCase reports whether most words of the line start uppercase.
func startsTitleCase(text string) bool {
	words := strings.Fields(text)
	if len(words) == 0 {
		return false
	}
	capped := 0
	for _, w := range words {
		r := []rune(w)[0]
		if unicode.IsUpper(r) || unicode.IsDigit(r) {
			capped++
		}
	}
	return float64(capped)/float64(len(words)) >= 0.7
}

// repeatPenaltyRule pushes verbatim-repeated lines (running headers,
// footers) below the candidacy threshold.
func repeatPenaltyRule(l line) float64 {
	if l.repeatPages >= repeatPageCount {
		return -10.0
	}
	return 0
}

// normalizeTitle lowercases, strips leading numbering and punctuation, and
// collapses whitespace. Used for repeat detection and ToC matching.
func normalizeTitle(text string) string {
	trimmed := strings.TrimSpace(text)
	if match := numericPrefixPattern.FindStringSubmatch(trimmed); match != nil {
		trimmed = strings.TrimSpace(trimmed[len(match[1]):])
		trimmed = strings.TrimLeft(trimmed, ".) ")
	}
	var b strings.Builder
	for _, r := range strings.ToLower(trimmed) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) {
			b.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// titleSimilarity is the token overlap ratio between two normalized
// titles (Sorensen-Dice over word sets).
func titleSimilarity(a, b string) float64 {
	aw := strings.Fields(a)
	bw := strings.Fields(b)
	if len(aw) == 0 || len(bw) == 0 {
		return 0
	}
	set := make(map[string]struct{}, len(aw))
	for _, w := range aw {
		set[w] = struct{}{}
	}
	common := 0
	for _, w := range bw {
		if _, ok := set[w]; ok {
			common++
		}
	}
	return 2.0 * float64(common) / float64(len(aw)+len(bw))
}
