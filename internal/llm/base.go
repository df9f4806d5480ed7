package llm

import (
	"time"

	"go.uber.org/zap"

	"github.com/AlecFritsch/inito/pkg/logger"
)

// BaseClient provides common functionality for LLM clients.
// Concrete implementations should embed this struct.
type BaseClient struct {
	config *ClientConfig
	logger *zap.Logger
}

// NewBaseClient creates a new BaseClient with the given configuration
func NewBaseClient(config *ClientConfig) *BaseClient {
	if config == nil {
		config = NewClientConfig("unknown")
	}
	return &BaseClient{
		config: config,
		logger: logger.Named("llm." + config.Name),
	}
}

// Name returns the client name
func (b *BaseClient) Name() string {
	return b.config.Name
}

// GetConfig returns the client configuration
func (b *BaseClient) GetConfig() *ClientConfig {
	return b.config
}

// Logger returns the client's logger
func (b *BaseClient) Logger() *zap.Logger {
	return b.logger
}

// PrepareRequest validates the request and resolves its model
func (b *BaseClient) PrepareRequest(req *Request) (*Request, error) {
	if req == nil {
		return nil, NewClientError(b.config.Name, "prepare", "request is nil", nil)
	}
	if req.Prompt == "" {
		return nil, NewClientError(b.config.Name, "prepare", "prompt is empty", nil)
	}

	prepared := *req
	prepared.Model = b.config.GetModel(req)
	return &prepared, nil
}

// LogRequest logs the request details
func (b *BaseClient) LogRequest(req *Request) {
	b.logger.Debug("Executing request",
		zap.String("model", req.Model),
		zap.String("tier", string(req.Tier)),
		zap.String("stage", req.GetMetadata("stage")),
		zap.Int("prompt_length", len(req.Prompt)),
	)
}

// LogResponse logs the response details
func (b *BaseClient) LogResponse(req *Request, resp *Response, duration time.Duration, err error) {
	if err != nil {
		b.logger.Warn("Request failed",
			zap.String("model", req.Model),
			zap.String("stage", req.GetMetadata("stage")),
			zap.Duration("duration", duration),
			zap.Error(err),
		)
		return
	}
	b.logger.Debug("Request completed",
		zap.String("model", resp.Model),
		zap.Int("content_length", len(resp.Content)),
		zap.Duration("duration", duration),
	)
}
