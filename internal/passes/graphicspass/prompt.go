// Package graphicspass is the graphics-integration review pass: it checks
// the assembled note against the graphics manifest.
package graphicspass

import (
	_ "embed"
	"fmt"
	"strings"
)

//go:embed system.tmpl
var systemPrompt string

// SystemPrompt returns the system prompt for the graphics review pass.
func SystemPrompt() string {
	return systemPrompt
}

// ManifestEntry is one graphic reference to verify.
type ManifestEntry struct {
	ID          string
	SectionID   string
	Description string
	Type        string
	PageNumber  int
}

// BuildUserPrompt builds the user prompt for the review.
func BuildUserPrompt(manifest []ManifestEntry, note string) string {
	var b strings.Builder

	b.WriteString("Graphics manifest:\n")
	for _, m := range manifest {
		fmt.Fprintf(&b, "  - id %s (section %s, page %d, %s): %s\n",
			m.ID, m.SectionID, m.PageNumber, m.Type, m.Description)
	}

	b.WriteString("\nAssembled study note:\n")
	b.WriteString(note)

	return b.String()
}
