// Package complete is the completeness-review pass: it audits generated
// artifacts against the section inventory and supplies gap-filling items.
package complete

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"
)

//go:embed system.tmpl
var systemPrompt string

// SystemPrompt returns the system prompt for the completeness pass.
func SystemPrompt() string {
	return systemPrompt
}

// Input carries one section's inventory and generated artifacts.
type Input struct {
	SectionID string
	Title     string
	Inventory map[string]int
	Artifacts any // the section pass Result, serialized verbatim
}

// BuildUserPrompt builds the user prompt for the review.
func BuildUserPrompt(in Input) (string, error) {
	artifacts, err := json.MarshalIndent(in.Artifacts, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to serialize artifacts: %w", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Section: %q (id %s)\n\nContent inventory:\n", in.Title, in.SectionID)
	for key, count := range in.Inventory {
		fmt.Fprintf(&b, "  %s: %d\n", key, count)
	}
	b.WriteString("\nGenerated artifacts:\n")
	b.Write(artifacts)
	return b.String(), nil
}
