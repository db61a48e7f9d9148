// Package passes runs the generation protocol against the generative
// service: transport retries with backoff, bounded schema-repair retries,
// and a circuit breaker that fails fast once the provider keeps erroring.
package passes

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/avast/retry-go/v4"

	"github.com/jackzampolin/cram/internal/breaker"
	"github.com/jackzampolin/cram/internal/providers"
)

// Runner executes pass calls with the shared retry and breaker policy.
type Runner struct {
	client  providers.LLMClient
	breaker *breaker.Breaker
	logger  *slog.Logger

	transportAttempts uint
	schemaAttempts    uint
	retryDelay        time.Duration
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithTransportAttempts sets the retry budget for transient errors.
func WithTransportAttempts(n uint) RunnerOption {
	return func(r *Runner) { r.transportAttempts = n }
}

// WithSchemaAttempts sets how many total tries a schema-violating
// response gets (the first call plus repair rounds).
func WithSchemaAttempts(n uint) RunnerOption {
	return func(r *Runner) { r.schemaAttempts = n }
}

// WithRetryDelay sets the base backoff delay.
func WithRetryDelay(d time.Duration) RunnerOption {
	return func(r *Runner) { r.retryDelay = d }
}

// NewRunner builds a Runner around a client and breaker.
func NewRunner(client providers.LLMClient, brk *breaker.Breaker, logger *slog.Logger, opts ...RunnerOption) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Runner{
		client:            client,
		breaker:           brk,
		logger:            logger,
		transportAttempts: 3,
		schemaAttempts:    2,
		retryDelay:        2 * time.Second,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Structured sends a request expecting schema-conforming JSON and applies
// the full policy: transient errors are retried with backoff, a response
// that violates the schema gets one repair round with the violation fed
// back, and every transport outcome is reported to the circuit breaker.
// Schema violations do not trip the breaker; the provider answered.
func (r *Runner) Structured(ctx context.Context, req *providers.ChatRequest) (*providers.ChatResult, error) {
	messages := req.Messages

	var result *providers.ChatResult
	var lastErr error

	for attempt := uint(0); attempt < r.schemaAttempts; attempt++ {
		call := *req
		call.Messages = messages

		result, lastErr = r.callWithTransportRetry(ctx, &call)
		if lastErr == nil {
			return result, nil
		}
		if !providers.IsSchemaViolation(lastErr) {
			return nil, lastErr
		}
		if attempt+1 >= r.schemaAttempts {
			break
		}

		r.logger.Warn("schema violation, requesting repair",
			"request_id", req.RequestID, "error", lastErr)

		var lastOutput string
		if result != nil {
			lastOutput = result.Content
		}
		var schemaRaw json.RawMessage
		if req.ResponseFormat != nil {
			schemaRaw = req.ResponseFormat.JSONSchema
		}
		messages = append(messages,
			providers.Message{Role: "assistant", Content: lastOutput},
			providers.Message{Role: "user", Content: providers.RepairPrompt(schemaRaw, lastOutput, lastErr)},
		)
	}

	return nil, fmt.Errorf("structured output still invalid after %d attempts: %w", r.schemaAttempts, lastErr)
}

// Text sends a request with no schema expectation, with the same
// transport policy.
func (r *Runner) Text(ctx context.Context, req *providers.ChatRequest) (*providers.ChatResult, error) {
	return r.callWithTransportRetry(ctx, req)
}

func (r *Runner) callWithTransportRetry(ctx context.Context, req *providers.ChatRequest) (*providers.ChatResult, error) {
	if r.breaker != nil {
		if err := r.breaker.Allow(); err != nil {
			return nil, fmt.Errorf("provider call rejected: %w", err)
		}
	}

	var result *providers.ChatResult
	err := retry.Do(
		func() error {
			res, err := r.client.Chat(ctx, req)
			if res != nil {
				// Kept on error too: a schema-violating response carries
				// the raw content the repair round needs.
				result = res
			}
			return err
		},
		retry.Context(ctx),
		retry.Attempts(r.transportAttempts),
		retry.Delay(r.retryDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(providers.IsTransient),
		retry.OnRetry(func(n uint, err error) {
			r.logger.Warn("transient provider error, retrying",
				"request_id", req.RequestID, "attempt", n+1, "error", err)
		}),
	)

	if r.breaker != nil {
		switch {
		case err == nil:
			r.breaker.RecordSuccess()
		case providers.IsTransient(err):
			r.breaker.RecordFailure()
		default:
			// Schema violations and cancellations are no verdict on the
			// dependency. The call still has to give back a half-open
			// trial slot, or every later call would be rejected.
			r.breaker.CancelTrial()
		}
	}

	if err != nil {
		return result, err
	}
	return result, nil
}

// DecodeResult unmarshals a structured result payload into dst.
func DecodeResult(result *providers.ChatResult, dst any) error {
	if result == nil || len(result.ParsedJSON) == 0 {
		return errors.New("no structured payload in result")
	}
	if err := json.Unmarshal(result.ParsedJSON, dst); err != nil {
		return fmt.Errorf("failed to decode structured payload: %w", err)
	}
	return nil
}
