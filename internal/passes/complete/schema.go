package complete

import "encoding/json"

// Coverage verdicts per inventory item.
const (
	CoveragePresent = "present"
	CoveragePartial = "partial"
	CoverageAbsent  = "absent"
)

// Result is the structured output of the completeness review.
type Result struct {
	SectionID         string       `json:"section_id"`
	Items             []ItemReview `json:"items"`
	CompletenessScore int          `json:"completeness_score"`
	Supplements       []Supplement `json:"supplements"`
}

// ItemReview is the verdict for one inventory key.
type ItemReview struct {
	Key      string `json:"key"`
	Coverage string `json:"coverage"`
	Detail   string `json:"detail"`
}

// Supplement is a gap-filling quiz question.
type Supplement struct {
	Key         string   `json:"key"`
	Question    string   `json:"question"`
	Options     []string `json:"options"`
	Answer      string   `json:"answer"`
	Explanation string   `json:"explanation"`
}

// Schema is the json_schema wrapper sent with the request.
var Schema = json.RawMessage(`{
	"name": "completeness_review",
	"strict": true,
	"schema": {
		"type": "object",
		"properties": {
			"section_id": {"type": "string"},
			"items": {
				"type": "array",
				"items": {
					"type": "object",
					"properties": {
						"key": {"type": "string"},
						"coverage": {"type": "string", "enum": ["present", "partial", "absent"]},
						"detail": {"type": "string"}
					},
					"required": ["key", "coverage", "detail"],
					"additionalProperties": false
				}
			},
			"completeness_score": {"type": "integer", "minimum": 0, "maximum": 100},
			"supplements": {
				"type": "array",
				"items": {
					"type": "object",
					"properties": {
						"key": {"type": "string"},
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
					"required": ["key", "question", "options", "answer", "explanation"],
					"additionalProperties": false
				}
			}
		},
		"required": ["section_id", "items", "completeness_score", "supplements"],
		"additionalProperties": false
	}
}`)
