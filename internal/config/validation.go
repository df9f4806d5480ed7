// Package config provides configuration management for the application.
// This file contains validation functions for configuration values.
package config

import (
	"fmt"
	"strings"

	"github.com/AlecFritsch/inito/pkg/errors"
)

// MinJWTSecretLength is the minimum required length for JWT secret (256 bits for HS256)
const MinJWTSecretLength = 32

// supportedLLMProviders lists the LLM client names accepted in llm.provider
var supportedLLMProviders = []string{"gemini", "mock"}

// Validate checks the service configuration and returns the first problem found
func Validate(cfg *Config) *errors.AppError {
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return errors.New(errors.ErrCodeConfigInvalid,
			fmt.Sprintf("server.port must be between 1 and 65535, got %d", cfg.Server.Port))
	}

	if err := ValidateJWTSecret(cfg.API.JWTSecret); err != nil {
		return err
	}

	if err := ValidateGitHubConfig(&cfg.GitHub); err != nil {
		return err
	}

	provider := strings.ToLower(strings.TrimSpace(cfg.LLM.Provider))
	known := false
	for _, p := range supportedLLMProviders {
		if p == provider {
			known = true
			break
		}
	}
	if !known {
		return errors.New(errors.ErrCodeConfigInvalid,
			fmt.Sprintf("llm.provider %q is not supported (expected one of: %s)",
				cfg.LLM.Provider, strings.Join(supportedLLMProviders, ", ")))
	}

	if cfg.Engine.MaxConcurrent <= 0 {
		return errors.New(errors.ErrCodeConfigInvalid, "engine.max_concurrent must be positive")
	}
	if cfg.Sandbox.Image == "" {
		return errors.New(errors.ErrCodeConfigInvalid, "sandbox.image cannot be empty")
	}

	if cfg.Artifacts.Enabled && (cfg.Artifacts.Endpoint == "" || cfg.Artifacts.Bucket == "") {
		return errors.New(errors.ErrCodeConfigInvalid,
			"artifacts.endpoint and artifacts.bucket are required when artifacts are enabled")
	}

	return ValidateNotificationConfig(&cfg.Notifications)
}

// ValidateNotificationConfig checks that the selected channel has a destination
func ValidateNotificationConfig(cfg *NotificationConfig) *errors.AppError {
	switch cfg.Channel {
	case NotificationChannelNone:
		return nil
	case NotificationChannelWebhook:
		if cfg.Webhook.URL == "" {
			return errors.New(errors.ErrCodeConfigInvalid, "notifications.webhook.url is required for the webhook channel")
		}
	case NotificationChannelSlack:
		if cfg.Slack.WebhookURL == "" {
			return errors.New(errors.ErrCodeConfigInvalid, "notifications.slack.webhook_url is required for the slack channel")
		}
	default:
		return errors.New(errors.ErrCodeConfigInvalid,
			fmt.Sprintf("notifications.channel %q is not supported (expected webhook or slack)", cfg.Channel))
	}
	for _, e := range cfg.Events {
		if !knownNotificationEvents[strings.ToLower(e)] {
			return errors.New(errors.ErrCodeConfigInvalid, fmt.Sprintf("unknown notification event %q", e))
		}
	}
	return nil
}

var knownNotificationEvents = map[string]bool{
	"run_completed": true,
	"run_blocked":   true,
	"run_failed":    true,
}

// ValidateJWTSecret checks the API JWT secret. An empty secret disables API auth.
func ValidateJWTSecret(secret string) *errors.AppError {
	if secret == "" {
		return nil
	}
	if len(secret) < MinJWTSecretLength {
		return errors.New(errors.ErrCodeConfigInvalid,
			fmt.Sprintf("api.jwt_secret must be at least %d characters long for security (HS256 requires 256 bits)", MinJWTSecretLength))
	}
	return nil
}

// ValidateGitHubConfig checks that exactly one GitHub authentication mode is usable
func ValidateGitHubConfig(cfg *GitHubConfig) *errors.AppError {
	if cfg.AppID != 0 && cfg.PrivateKeyPath == "" {
		return errors.New(errors.ErrCodeConfigInvalid,
			"github.private_key_path is required when github.app_id is set")
	}
	if cfg.Token == "" && !cfg.UsesApp() {
		return errors.New(errors.ErrCodeConfigInvalid,
			"either github.token or github.app_id with github.private_key_path must be configured")
	}
	return nil
}
