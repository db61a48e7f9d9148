package enrich

import "encoding/json"

// Result is the structured output for one section.
type Result struct {
	SectionID string         `json:"section_id"`
	Inventory map[string]int `json:"inventory"`
	Graphics  []GraphicRef   `json:"graphics"`
}

// GraphicRef is one manifest entry surfaced from the section text.
type GraphicRef struct {
	Description string `json:"description"`
	Type        string `json:"type"`
	PageNumber  int    `json:"page_number"`
}

// Schema is the json_schema wrapper sent with the request.
var Schema = json.RawMessage(`{
	"name": "section_inventory",
	"strict": true,
	"schema": {
		"type": "object",
		"properties": {
			"section_id": {"type": "string"},
			"inventory": {
				"type": "object",
				"additionalProperties": {"type": "integer", "minimum": 0}
			},
			"graphics": {
				"type": "array",
				"items": {
					"type": "object",
					"properties": {
						"description": {"type": "string"},
						"type": {"type": "string", "enum": ["diagram", "chart", "table", "illustration", "photo"]},
						"page_number": {"type": "integer", "minimum": 1}
					},
					"required": ["description", "type", "page_number"],
					"additionalProperties": false
				}
			}
		},
		"required": ["section_id", "inventory", "graphics"],
		"additionalProperties": false
	}
}`)
