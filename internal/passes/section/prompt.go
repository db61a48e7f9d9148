// Package section is the per-section generation pass: quiz questions,
// flashcards, and a note fragment for one marker-delimited section.
package section

import (
	_ "embed"
	"fmt"
	"sort"
	"strings"
)

//go:embed system.tmpl
var systemPrompt string

// SystemPrompt returns the system prompt for the section pass.
func SystemPrompt() string {
	return systemPrompt
}

// Input carries one section's slice of the document.
type Input struct {
	SectionID   string
	Title       string
	StartPage   int
	EndPage     int
	StartMarker string
	EndMarker   string
	Inventory   map[string]int
	Pages       []string
}

// BuildUserPrompt builds the user prompt for one section.
func BuildUserPrompt(in Input) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Section: %q (id %s, pages %d-%d)\n", in.Title, in.SectionID, in.StartPage, in.EndPage)

	if in.StartMarker != "" {
		fmt.Fprintf(&b, "The section begins with: %q\n", in.StartMarker)
	}
	if in.EndMarker != "" {
		fmt.Fprintf(&b, "The section ends with: %q\n", in.EndMarker)
	}

	if len(in.Inventory) > 0 {
		b.WriteString("\nContent inventory:\n")
		for _, key := range sortedKeys(in.Inventory) {
			fmt.Fprintf(&b, "  %s: %d\n", key, in.Inventory[key])
		}
	}

	b.WriteString("\nSection text:\n")
	for i, page := range in.Pages {
		fmt.Fprintf(&b, "--- page %d ---\n%s\n", in.StartPage+i, page)
	}

	return b.String()
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
