// Package providers wraps the external generative text/vision service
// behind a small client interface, with rate limiting and structured
// output validation.
package providers

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// ErrTransient tags errors worth an automatic retry (timeouts, rate
// limits, 5xx). Wrapped via fmt.Errorf("...: %w", ErrTransient).
var ErrTransient = errors.New("transient provider error")

// ErrSchema tags responses that parsed but did not conform to the
// requested schema. These are retried less aggressively than transport
// errors.
var ErrSchema = errors.New("structured output schema violation")

// LLMClient is the interface every generative-service client implements.
// The same client serves both text generation and graphic analysis; the
// distinction is in the payload, not the transport.
type LLMClient interface {
	// Chat sends a completion request. Implementations must honor the
	// request timeout and context cancellation.
	Chat(ctx context.Context, req *ChatRequest) (*ChatResult, error)

	// Name returns the client identifier (e.g. "openai", "mock").
	Name() string
}

// Message is a chat message.
type Message struct {
	Role    string `json:"role"` // "system", "user", "assistant"
	Content string `json:"content"`
}

// ResponseFormat requests schema-conforming structured output. The
// JSONSchema payload is the json_schema wrapper: {"name","strict","schema"}.
type ResponseFormat struct {
	Type       string          `json:"type"` // "json_schema"
	JSONSchema json.RawMessage `json:"json_schema,omitempty"`
}

// ChatRequest is one request to the generative service.
type ChatRequest struct {
	Messages []Message `json:"messages"`

	// Model overrides the client default when set.
	Model string `json:"model,omitempty"`

	Temperature float64       `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Timeout     time.Duration `json:"-"`

	ResponseFormat *ResponseFormat `json:"response_format,omitempty"`

	RequestID string `json:"-"`
}

// ChatResult is the response from one generative-service call.
type ChatResult struct {
	Content    string          `json:"content"`
	ParsedJSON json.RawMessage `json:"parsed_json,omitempty"` // set when ResponseFormat was requested

	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`

	ExecutionTime time.Duration `json:"execution_time"`

	Provider  string `json:"provider"`
	ModelUsed string `json:"model_used"`
	RequestID string `json:"request_id"`
}

// IsTransient reports whether err is worth an automatic retry.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient) || errors.Is(err, context.DeadlineExceeded)
}

// IsSchemaViolation reports whether err is a structured-output schema
// failure.
func IsSchemaViolation(err error) bool {
	return errors.Is(err, ErrSchema)
}
