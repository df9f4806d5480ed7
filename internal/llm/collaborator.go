package llm

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/AlecFritsch/inito/pkg/errors"
	"github.com/AlecFritsch/inito/pkg/telemetry"
)

// strictJSONSuffix is appended on the single retry after malformed output
const strictJSONSuffix = "\n\nYour previous answer was not valid JSON for the schema above. Respond with JSON only."

// Retry defaults for transient client failures
const (
	DefaultMaxRetries = 2
	DefaultRetryDelay = 2 * time.Second
	MaxRetryDelay     = 30 * time.Second
)

// Call describes one model invocation by a pipeline stage
type Call struct {
	Stage  string
	Prompt string
	Tier   ModelTier
	RunID  string
}

// Collaborator wraps a Client with structured asking and code generation
type Collaborator struct {
	client     Client
	schema     *SchemaGenerator
	log        *zap.Logger
	maxRetries int
	retryDelay time.Duration
}

// NewCollaborator creates a Collaborator over client
func NewCollaborator(client Client, log *zap.Logger) *Collaborator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Collaborator{
		client:     client,
		schema:     NewSchemaGenerator(),
		log:        log,
		maxRetries: DefaultMaxRetries,
		retryDelay: DefaultRetryDelay,
	}
}

// WithRetry sets how often a retryable client error is retried and the
// initial delay, which doubles per attempt up to MaxRetryDelay
func (c *Collaborator) WithRetry(maxRetries int, delay time.Duration) *Collaborator {
	if maxRetries < 0 {
		maxRetries = 0
	}
	c.maxRetries = maxRetries
	c.retryDelay = delay
	return c
}

// Client returns the underlying client
func (c *Collaborator) Client() Client {
	return c.client
}

// Ask returns the raw text answer for call
func (c *Collaborator) Ask(ctx context.Context, call Call) (string, error) {
	resp, err := c.execute(ctx, call, call.Prompt, false)
	if err != nil {
		return "", errors.ErrGeneration(fmt.Sprintf("%s: model call failed", call.Stage), err)
	}
	return strings.TrimSpace(resp.Content), nil
}

// AskStructured asks for JSON matching the schema of out and decodes it into out.
// Malformed output is retried once with a strict instruction appended.
func (c *Collaborator) AskStructured(ctx context.Context, call Call, out any) error {
	schema, err := c.schema.Generate(out)
	if err != nil {
		return errors.ErrGeneration(fmt.Sprintf("%s: build schema", call.Stage), err)
	}

	prompt := call.Prompt + BuildSchemaPrompt(schema, false)

	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		if attempt > 0 {
			prompt += strictJSONSuffix
		}

		resp, err := c.execute(ctx, call, prompt, true)
		switch {
		case stderrors.Is(err, ErrEmptyResponse):
			lastErr = err
		case err != nil:
			return errors.ErrGeneration(fmt.Sprintf("%s: model call failed", call.Stage), err)
		default:
			lastErr = decode(resp.Content, schema, out)
			if lastErr == nil {
				return nil
			}
		}
		c.log.Warn("Structured response rejected",
			zap.String("stage", call.Stage),
			zap.String("run_id", call.RunID),
			zap.Int("attempt", attempt+1),
			zap.Error(lastErr))
	}

	return errors.ErrGeneration(fmt.Sprintf("%s: model did not return valid JSON", call.Stage), lastErr)
}

// GenerateCode asks for file content, on the strong tier unless call names one.
// Fences are left for the caller to strip.
func (c *Collaborator) GenerateCode(ctx context.Context, call Call) (string, error) {
	if call.Tier == "" {
		call.Tier = TierStrong
	}
	return c.Ask(ctx, call)
}

// execute calls the client, retrying errors the client marked retryable
func (c *Collaborator) execute(ctx context.Context, call Call, prompt string, jsonOut bool) (*Response, error) {
	delay := c.retryDelay
	for attempt := 0; ; attempt++ {
		resp, err := c.executeOnce(ctx, call, prompt, jsonOut)
		if err == nil || !IsRetryable(err) || attempt >= c.maxRetries {
			return resp, err
		}

		c.log.Warn("Model call failed, retrying",
			zap.String("stage", call.Stage),
			zap.String("run_id", call.RunID),
			zap.Int("attempt", attempt+1),
			zap.Duration("delay", delay),
			zap.Error(err))

		select {
		case <-ctx.Done():
			return nil, err
		case <-time.After(delay):
		}
		delay *= 2
		if delay > MaxRetryDelay {
			delay = MaxRetryDelay
		}
	}
}

func (c *Collaborator) executeOnce(ctx context.Context, call Call, prompt string, jsonOut bool) (*Response, error) {
	req := NewRequest(prompt).WithTier(call.Tier).WithMetadata("stage", call.Stage)
	if call.RunID != "" {
		req.WithMetadata("run_id", call.RunID)
	}
	if jsonOut {
		req.WithJSON()
	}

	ctx, span := telemetry.StartLLMCall(ctx, c.client.Name(), call.Stage)
	defer span.End()

	resp, err := c.client.Execute(ctx, req)
	telemetry.GetMetrics().RecordLLMCall(ctx, c.client.Name(), call.Stage, err == nil)
	if err == nil && strings.TrimSpace(resp.Content) == "" {
		err = ErrEmptyResponse
	}
	telemetry.Finish(span, err)
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func decode(content string, schema map[string]interface{}, out any) error {
	raw, err := ExtractJSON(CleanJSONBlock(content))
	if err != nil {
		return err
	}
	if err := ValidateJSON(schema, raw); err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	return nil
}
