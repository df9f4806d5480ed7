// Package gemini implements the LLM Client interface on the Gemini API.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/AlecFritsch/inito/internal/llm"
)

// ClientName is the identifier for the Gemini client
const ClientName = "gemini"

func init() {
	llm.Register(ClientName, NewClient)
}

// Client implements the llm.Client interface for Google Gemini
type Client struct {
	*llm.BaseClient
	genai *genai.Client
}

// NewClient creates a new Gemini client. A config without an API key yields
// a client that reports itself unavailable.
func NewClient(config *llm.ClientConfig) (llm.Client, error) {
	if config == nil {
		config = llm.NewClientConfig(ClientName)
	}

	c := &Client{BaseClient: llm.NewBaseClient(config)}
	if config.APIKey == "" {
		return c, nil
	}

	gc, err := genai.NewClient(context.Background(), option.WithAPIKey(config.APIKey))
	if err != nil {
		return nil, llm.NewClientError(ClientName, "create", "failed to create Gemini client", err)
	}
	c.genai = gc
	return c, nil
}

// Available reports whether an API client was configured
func (c *Client) Available() bool {
	return c.genai != nil
}

// Execute performs a single generation
func (c *Client) Execute(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	if !c.Available() {
		return nil, llm.NewClientError(ClientName, "execute", "GEMINI_API_KEY not configured", llm.ErrClientNotAvailable)
	}

	prepared, err := c.PrepareRequest(req)
	if err != nil {
		return nil, err
	}
	c.LogRequest(prepared)

	ctx, cancel := context.WithTimeout(ctx, c.GetConfig().GetTimeout(prepared))
	defer cancel()

	model := c.genai.GenerativeModel(prepared.Model)
	if t := c.GetConfig().Temperature; t > 0 {
		model.SetTemperature(t)
	}
	if prepared.JSON {
		model.ResponseMIMEType = "application/json"
	}

	start := time.Now()
	resp, err := model.GenerateContent(ctx, genai.Text(prepared.Prompt))
	duration := time.Since(start)
	if err != nil {
		err = classify(ctx, err)
		c.LogResponse(prepared, nil, duration, err)
		return nil, err
	}

	text, err := extractText(resp)
	if err != nil {
		c.LogResponse(prepared, nil, duration, err)
		return nil, err
	}

	result := &llm.Response{
		Content:  text,
		Model:    prepared.Model,
		Duration: duration,
	}
	if u := resp.UsageMetadata; u != nil {
		result.Usage = &llm.Usage{
			PromptTokens:     int(u.PromptTokenCount),
			CompletionTokens: int(u.CandidatesTokenCount),
			TotalTokens:      int(u.TotalTokenCount),
		}
	}
	c.LogResponse(prepared, result, duration, nil)
	return result, nil
}

// Close releases the underlying API client
func (c *Client) Close() error {
	if c.genai != nil {
		return c.genai.Close()
	}
	return nil
}

// classify marks provider failures retryable unless the caller gave up
func classify(ctx context.Context, err error) error {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		return llm.NewClientError(ClientName, "execute", "generation aborted", err)
	}
	return llm.NewRetryableError(ClientName, "execute", "generation failed", err)
}

// extractText joins the text parts of the first candidate
func extractText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return "", fmt.Errorf("%w: no candidates in response", llm.ErrEmptyResponse)
	}

	candidate := resp.Candidates[0]
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return "", fmt.Errorf("%w: no content in response", llm.ErrEmptyResponse)
	}

	var parts []string
	for _, part := range candidate.Content.Parts {
		if text, ok := part.(genai.Text); ok {
			parts = append(parts, string(text))
		}
	}
	if len(parts) == 0 {
		return "", fmt.Errorf("%w: no text parts in response", llm.ErrEmptyResponse)
	}
	return strings.Join(parts, ""), nil
}
