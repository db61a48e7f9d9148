package section

import "encoding/json"

// Result is the structured output for one section.
type Result struct {
	SectionID  string      `json:"section_id"`
	Questions  []Question  `json:"questions"`
	Flashcards []Flashcard `json:"flashcards"`
	Note       string      `json:"note"`
}

// Question is one generated multiple-choice item.
type Question struct {
	Question    string   `json:"question"`
	Options     []string `json:"options"`
	Answer      string   `json:"answer"`
	Explanation string   `json:"explanation"`
}

// Flashcard is one generated study card.
type Flashcard struct {
	Front string `json:"front"`
	Back  string `json:"back"`
}

// Schema is the json_schema wrapper sent with the request.
var Schema = json.RawMessage(`{
	"name": "section_artifacts",
	"strict": true,
	"schema": {
		"type": "object",
		"properties": {
			"section_id": {"type": "string"},
			"questions": {
				"type": "array",
				"items": {
					"type": "object",
					"properties": {
						"question": {"type": "string"},
						"options": {
							"type": "array",
							"items": {"type": "string"},
							"minItems": 4,
							"maxItems": 4
						},
						"answer": {"type": "string"},
						"explanation": {"type": "string"}
					},
					"required": ["question", "options", "answer", "explanation"],
					"additionalProperties": false
				}
			},
			"flashcards": {
				"type": "array",
				"items": {
					"type": "object",
					"properties": {
						"front": {"type": "string"},
						"back": {"type": "string"}
					},
					"required": ["front", "back"],
					"additionalProperties": false
				}
			},
			"note": {"type": "string"}
		},
		"required": ["section_id", "questions", "flashcards", "note"],
		"additionalProperties": false
	}
}`)
