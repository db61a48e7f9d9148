package providers

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
)

const testSchema = `{
	"name": "person",
	"strict": true,
	"schema": {
		"type": "object",
		"properties": {
			"name": {"type": "string"},
			"age": {"type": "integer"}
		},
		"required": ["name", "age"],
		"additionalProperties": false
	}
}`

func TestParseStructuredJSON(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr bool
	}{
		{"plain object", `{"name":"Ada","age":36}`, false},
		{"code fenced", "```json\n{\"name\":\"Ada\",\"age\":36}\n```", false},
		{"surrounding prose", "Here you go:\n{\"name\":\"Ada\",\"age\":36}\nHope that helps!", false},
		{"array", `[1,2,3]`, false},
		{"empty", "", true},
		{"not json", "certainly! here is the result", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseStructuredJSON(tt.content)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseStructuredJSON() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				if !errors.Is(err, ErrSchema) {
					t.Errorf("error %v should wrap ErrSchema", err)
				}
				return
			}
			if !json.Valid(got) {
				t.Errorf("result is not valid JSON: %s", got)
			}
		})
	}
}

func TestValidateStructuredJSON(t *testing.T) {
	valid := json.RawMessage(`{"name":"Ada","age":36}`)
	if err := ValidateStructuredJSON(json.RawMessage(testSchema), valid); err != nil {
		t.Errorf("valid document rejected: %v", err)
	}

	invalid := json.RawMessage(`{"name":"Ada"}`)
	err := ValidateStructuredJSON(json.RawMessage(testSchema), invalid)
	if err == nil {
		t.Fatal("missing required field accepted")
	}
	if !errors.Is(err, ErrSchema) {
		t.Errorf("error %v should wrap ErrSchema", err)
	}

	// Raw (unwrapped) schema documents are accepted too.
	raw := json.RawMessage(`{"type":"object","required":["x"],"properties":{"x":{"type":"number"}}}`)
	if err := ValidateStructuredJSON(raw, json.RawMessage(`{"x":1}`)); err != nil {
		t.Errorf("raw schema rejected valid doc: %v", err)
	}
}

func TestMockClient_StructuredResponse(t *testing.T) {
	mock := NewMockClient()
	mock.ResponseJSON = json.RawMessage(`{"name":"Ada","age":36}`)

	req := &ChatRequest{
		Messages: []Message{{Role: "user", Content: "who?"}},
		ResponseFormat: &ResponseFormat{
			Type:       "json_schema",
			JSONSchema: json.RawMessage(testSchema),
		},
	}
	result, err := mock.Chat(context.Background(), req)
	if err != nil {
		t.Fatalf("Chat() error = %v", err)
	}
	if len(result.ParsedJSON) == 0 {
		t.Error("ParsedJSON not set for structured request")
	}

	mock.ResponseJSON = json.RawMessage(`{"name":"Ada"}`)
	if _, err := mock.Chat(context.Background(), req); !errors.Is(err, ErrSchema) {
		t.Errorf("schema-violating mock response error = %v, want ErrSchema", err)
	}
}

func TestMockClient_TransientFailures(t *testing.T) {
	mock := NewMockClient()
	mock.FailFirst = 2

	req := &ChatRequest{Messages: []Message{{Role: "user", Content: "hi"}}}

	for i := 0; i < 2; i++ {
		if _, err := mock.Chat(context.Background(), req); !IsTransient(err) {
			t.Fatalf("request %d: error = %v, want transient", i, err)
		}
	}
	if _, err := mock.Chat(context.Background(), req); err != nil {
		t.Errorf("request after FailFirst: error = %v", err)
	}
}
