// Package mock implements a scripted LLM Client for tests and offline runs.
// Without a script it answers each pipeline stage with a small canned response.
package mock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/AlecFritsch/inito/internal/llm"
)

// ClientName is the identifier for the Mock client
const ClientName = "mock"

func init() {
	llm.Register(ClientName, NewClient)
}

// Reply is one scripted answer
type Reply struct {
	Content string
	Err     error
}

// Handler computes a reply for a request; it is consulted when the script is empty
type Handler func(req *llm.Request) (string, error)

// Client implements the llm.Client interface with scripted responses
type Client struct {
	*llm.BaseClient

	mu       sync.Mutex
	script   []Reply
	handler  Handler
	requests []*llm.Request
}

// NewClient creates a new Mock client
func NewClient(config *llm.ClientConfig) (llm.Client, error) {
	return New(config), nil
}

// New returns the concrete mock so tests can script it
func New(config *llm.ClientConfig) *Client {
	if config == nil {
		config = llm.NewClientConfig(ClientName)
	}
	return &Client{
		BaseClient: llm.NewBaseClient(config),
		handler:    StageHandler,
	}
}

// Push appends replies to the script
func (c *Client) Push(replies ...Reply) *Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.script = append(c.script, replies...)
	return c
}

// PushText appends successful replies to the script
func (c *Client) PushText(contents ...string) *Client {
	for _, content := range contents {
		c.Push(Reply{Content: content})
	}
	return c
}

// SetHandler replaces the fallback handler
func (c *Client) SetHandler(h Handler) *Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handler = h
	return c
}

// Requests returns the requests received so far
func (c *Client) Requests() []*llm.Request {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*llm.Request, len(c.requests))
	copy(out, c.requests)
	return out
}

// Available always returns true for mock client
func (c *Client) Available() bool {
	return true
}

// Execute pops the next scripted reply or falls back to the handler
func (c *Client) Execute(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	prepared, err := c.PrepareRequest(req)
	if err != nil {
		return nil, err
	}
	c.LogRequest(prepared)

	if err := ctx.Err(); err != nil {
		return nil, llm.NewClientError(ClientName, "execute", "context done", err)
	}

	start := time.Now()

	reply := c.next(prepared)

	duration := time.Since(start)
	if reply.Err != nil {
		c.LogResponse(prepared, nil, duration, reply.Err)
		return nil, reply.Err
	}

	resp := &llm.Response{
		Content:  reply.Content,
		Model:    prepared.Model,
		Duration: duration,
		Usage: &llm.Usage{
			PromptTokens:     len(prepared.Prompt) / 4,
			CompletionTokens: len(reply.Content) / 4,
			TotalTokens:      (len(prepared.Prompt) + len(reply.Content)) / 4,
		},
	}
	c.LogResponse(prepared, resp, duration, nil)
	return resp, nil
}

// next records req and returns the scripted or handled reply
func (c *Client) next(req *llm.Request) Reply {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.requests = append(c.requests, req)
	if len(c.script) > 0 {
		reply := c.script[0]
		c.script = c.script[1:]
		return reply
	}
	if c.handler != nil {
		var reply Reply
		reply.Content, reply.Err = c.handler(req)
		return reply
	}
	return Reply{Err: fmt.Errorf("%w: script exhausted", llm.ErrEmptyResponse)}
}

// Close is a no-op for mock client
func (c *Client) Close() error {
	return nil
}

// StageHandler answers by the request's "stage" metadata. The plan touches a
// single HAVOC.md file so an offline run produces a real, reviewable diff.
func StageHandler(req *llm.Request) (string, error) {
	switch req.GetMetadata("stage") {
	case "analyze":
		return `{"summary":"Mock analysis","affectedAreas":["docs"],"approach":"Record the issue in a notes file","complexity":"low"}`, nil
	case "plan":
		return `{"summary":"Mock plan","tasks":[{"id":1,"type":"create","file":"HAVOC.md","description":"Write a note about the issue"}],"risks":[]}`, nil
	case "review":
		return `{"summary":"Mock review","issues":[],"suggestions":[],"risks":[],"overallAssessment":"approve","confidence":90}`, nil
	case "codegen":
		return "# Notes\n\nGenerated offline by the mock model.\n", nil
	case "intent":
		return "## What\nMock change.\n\n## Why\nOffline run.\n", nil
	default:
		return "ok", nil
	}
}
