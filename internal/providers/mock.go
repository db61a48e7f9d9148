package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"
)

const MockClientName = "mock"

// MockClient is an LLMClient for testing.
type MockClient struct {
	// Configurable behavior
	Latency      time.Duration
	ShouldFail   bool
	FailFirst    int  // fail the first N requests with a transient error
	SchemaGarble bool // return non-JSON content to trigger schema failures
	ResponseText string
	ResponseJSON json.RawMessage

	// ResponseFunc, when set, overrides the canned response entirely.
	ResponseFunc func(req *ChatRequest) (*ChatResult, error)

	requestCount atomic.Int64
}

// NewMockClient creates a new mock client with sensible defaults.
func NewMockClient() *MockClient {
	return &MockClient{
		ResponseText: "mock response",
	}
}

// Name returns the client identifier.
func (c *MockClient) Name() string {
	return MockClientName
}

// Requests returns the number of Chat calls made so far.
func (c *MockClient) Requests() int {
	return int(c.requestCount.Load())
}

// Chat sends a mock chat request.
func (c *MockClient) Chat(ctx context.Context, req *ChatRequest) (*ChatResult, error) {
	count := c.requestCount.Add(1)

	if c.Latency > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(c.Latency):
		}
	}

	if c.ResponseFunc != nil {
		return c.ResponseFunc(req)
	}

	if c.ShouldFail || count <= int64(c.FailFirst) {
		return nil, fmt.Errorf("mock client failure (request %d): %w", count, ErrTransient)
	}

	result := &ChatResult{
		Provider:  MockClientName,
		ModelUsed: req.Model,
		RequestID: req.RequestID,
	}

	if req.ResponseFormat != nil {
		if c.SchemaGarble {
			result.Content = "this is not the JSON you are looking for"
			return result, fmt.Errorf("failed to parse structured JSON: %w", ErrSchema)
		}
		result.ParsedJSON = c.ResponseJSON
		result.Content = string(c.ResponseJSON)
		if err := ValidateStructuredJSON(req.ResponseFormat.JSONSchema, result.ParsedJSON); err != nil {
			return result, err
		}
		return result, nil
	}

	result.Content = c.ResponseText
	return result, nil
}
