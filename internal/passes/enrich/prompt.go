// Package enrich is the first generation pass: it inventories each
// section's content types and collects the graphics manifest.
package enrich

import (
	_ "embed"
	"fmt"
	"strings"
)

//go:embed system.tmpl
var systemPrompt string

// SystemPrompt returns the system prompt for the enrichment pass.
func SystemPrompt() string {
	return systemPrompt
}

// SectionInput describes the section under analysis.
type SectionInput struct {
	SectionID string
	Title     string
	StartPage int
	EndPage   int
	Pages     []string // page texts for the section's range
}

// BuildUserPrompt builds the user prompt for one section. The outline
// gives the model document context; only the named section is analyzed.
func BuildUserPrompt(outline []string, in SectionInput) string {
	var b strings.Builder

	b.WriteString("Document outline:\n")
	for _, title := range outline {
		fmt.Fprintf(&b, "  - %s\n", title)
	}

	fmt.Fprintf(&b, "\nAnalyze this section: %q (pages %d-%d, section id %s)\n\n",
		in.Title, in.StartPage, in.EndPage, in.SectionID)

	for i, page := range in.Pages {
		fmt.Fprintf(&b, "--- page %d ---\n%s\n", in.StartPage+i, page)
	}

	return b.String()
}
