// Package config provides configuration management for the application.
// It supports YAML configuration files with environment variable overrides,
// and the per-repository .havoc configuration read from cloned repositories.
package config

import (
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/AlecFritsch/inito/consts"
	"github.com/AlecFritsch/inito/pkg/logger"
	"github.com/AlecFritsch/inito/pkg/telemetry"
)

// Default configuration values
const (
	defaultConfigPath        = "config/havoc.yaml"
	defaultDatabasePath      = "./data/havoc.db"
	defaultWorkspace         = "./workspace"
	defaultSandboxImage      = "node:20-bookworm"
	defaultSandboxMemoryMB   = 2048
	defaultSandboxCPUs       = 1.0
	defaultSandboxNetwork    = "bridge"
	defaultCommandTimeout    = 600
	defaultMaxConcurrent     = 4
	defaultQueueSize         = 100
	defaultRunTimeoutMinutes = 30
	defaultWorkspaceTTLHours = 24
	defaultJanitorSchedule   = "@every 30m"
	defaultSweepSchedule     = "@every 5m"
	defaultEventStreamMaxLen = 1000
	defaultLLMProvider       = "gemini"
	defaultLLMTimeout        = 120
	defaultArtifactsBucket   = "havoc-artifacts"
	defaultOTLPEndpoint      = "localhost:4317"
	defaultPrometheusPort    = 9090
)

// DefaultConfigPath is the default location of the service configuration file
const DefaultConfigPath = defaultConfigPath

// Config represents the complete application configuration
type Config struct {
	Server        ServerConfig       `yaml:"server"`
	Database      DatabaseConfig     `yaml:"database"`
	GitHub        GitHubConfig       `yaml:"github"`
	LLM           LLMConfig          `yaml:"llm"`
	Sandbox       SandboxConfig      `yaml:"sandbox"`
	Engine        EngineConfig       `yaml:"engine"`
	Redis         RedisConfig        `yaml:"redis"`
	Artifacts     ArtifactsConfig    `yaml:"artifacts"`
	API           APIConfig          `yaml:"api"`
	Notifications NotificationConfig `yaml:"notifications"`
	Language      string             `yaml:"language"` // Output language for comments and prompts (BCP 47, e.g. en, de)
	Logging       logger.Config      `yaml:"logging"`
	Telemetry     telemetry.Config   `yaml:"telemetry"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host        string   `yaml:"host"`
	Port        int      `yaml:"port"`
	Debug       bool     `yaml:"debug"`
	CORSOrigins []string `yaml:"cors_origins"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// GitHubConfig holds GitHub credentials and webhook settings.
// Either Token or the App fields (AppID + PrivateKeyPath) must be set.
type GitHubConfig struct {
	Token              string `yaml:"token"`
	AppID              int64  `yaml:"app_id"`
	PrivateKeyPath     string `yaml:"private_key_path"`
	BaseURL            string `yaml:"base_url"` // GitHub Enterprise base URL, empty for github.com
	WebhookSecret      string `yaml:"webhook_secret"`
	InsecureSkipVerify bool   `yaml:"insecure_skip_verify"`
}

// UsesApp reports whether GitHub App authentication is configured
func (c *GitHubConfig) UsesApp() bool {
	return c.AppID != 0 && c.PrivateKeyPath != ""
}

// LLMConfig holds LLM client configuration
type LLMConfig struct {
	Provider string          `yaml:"provider"` // gemini, mock
	APIKey   string          `yaml:"api_key"`
	Models   ModelTierConfig `yaml:"models"`
	Timeout  int             `yaml:"timeout"` // seconds per call
}

// ModelTierConfig maps model tiers to concrete model names.
// Fast is used for analysis and review, Strong for planning and code generation.
type ModelTierConfig struct {
	Fast   string `yaml:"fast"`
	Strong string `yaml:"strong"`
}

// SandboxConfig holds container sandbox configuration
type SandboxConfig struct {
	Image          string  `yaml:"image"`
	MemoryMB       int64   `yaml:"memory_mb"`
	CPUs           float64 `yaml:"cpus"`
	Network        string  `yaml:"network"`
	CommandTimeout int     `yaml:"command_timeout"` // seconds
	WorkspaceDir   string  `yaml:"workspace_dir"`
}

// CommandTimeoutDuration returns the per-command timeout as a duration
func (c *SandboxConfig) CommandTimeoutDuration() time.Duration {
	if c.CommandTimeout <= 0 {
		return defaultCommandTimeout * time.Second
	}
	return time.Duration(c.CommandTimeout) * time.Second
}

// EngineConfig holds run scheduling configuration
type EngineConfig struct {
	MaxConcurrent      int    `yaml:"max_concurrent"`
	QueueSize          int    `yaml:"queue_size"`
	RunTimeoutMinutes  int    `yaml:"run_timeout_minutes"`  // Used when a repo does not set timeout_minutes
	WorkspaceTTLHours  int    `yaml:"workspace_ttl_hours"`  // Stale workspace directories older than this are removed
	JanitorSchedule    string `yaml:"janitor_schedule"`     // cron spec for the workspace janitor
	AuthSweepSchedule  string `yaml:"auth_sweep_schedule"`  // cron spec for expiring auth state
	DedupWindowMinutes int    `yaml:"dedup_window_minutes"` // How long webhook delivery ids are remembered
}

// RedisConfig holds Redis connection settings.
// When URL is empty the in-memory auth store and event ring are used alone.
type RedisConfig struct {
	URL               string `yaml:"url"`
	EventStreamMaxLen int64  `yaml:"event_stream_max_len"`
}

// Enabled reports whether Redis is configured
func (c *RedisConfig) Enabled() bool {
	return c.URL != ""
}

// ArtifactsConfig holds S3-compatible object storage settings for run artifacts
type ArtifactsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	UseSSL    bool   `yaml:"use_ssl"`
}

// APIConfig holds REST API settings
type APIConfig struct {
	JWTSecret string `yaml:"jwt_secret"` // Empty disables authentication on /api/v1/runs
}

// NotificationChannel names where run outcomes are sent
type NotificationChannel string

const (
	NotificationChannelNone    NotificationChannel = ""
	NotificationChannelWebhook NotificationChannel = "webhook"
	NotificationChannelSlack   NotificationChannel = "slack"
)

// NotificationConfig holds run outcome notification settings
type NotificationConfig struct {
	Channel NotificationChannel       `yaml:"channel"`
	Events  []string                  `yaml:"events"` // run_completed, run_blocked, run_failed; empty means all
	Webhook WebhookNotificationConfig `yaml:"webhook"`
	Slack   SlackNotificationConfig   `yaml:"slack"`
}

// IsEnabled reports whether a channel is selected
func (c *NotificationConfig) IsEnabled() bool {
	return c.Channel != NotificationChannelNone
}

// HasEvent reports whether event should be sent
func (c *NotificationConfig) HasEvent(event string) bool {
	if len(c.Events) == 0 {
		return true
	}
	for _, e := range c.Events {
		if strings.EqualFold(e, event) {
			return true
		}
	}
	return false
}

// WebhookNotificationConfig posts JSON to URL, signed with Secret when set
type WebhookNotificationConfig struct {
	URL    string `yaml:"url"`
	Secret string `yaml:"secret"`
}

// SlackNotificationConfig posts to a Slack incoming webhook
type SlackNotificationConfig struct {
	WebhookURL string `yaml:"webhook_url"`
	Channel    string `yaml:"channel"`
}

// Default returns a default configuration
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:  "0.0.0.0",
			Port:  8080,
			Debug: false,
		},
		Database: DatabaseConfig{
			Path: defaultDatabasePath,
		},
		LLM: LLMConfig{
			Provider: defaultLLMProvider,
			Models: ModelTierConfig{
				Fast:   "gemini-1.5-flash",
				Strong: "gemini-1.5-pro",
			},
			Timeout: defaultLLMTimeout,
		},
		Sandbox: SandboxConfig{
			Image:          defaultSandboxImage,
			MemoryMB:       defaultSandboxMemoryMB,
			CPUs:           defaultSandboxCPUs,
			Network:        defaultSandboxNetwork,
			CommandTimeout: defaultCommandTimeout,
			WorkspaceDir:   defaultWorkspace,
		},
		Engine: EngineConfig{
			MaxConcurrent:      defaultMaxConcurrent,
			QueueSize:          defaultQueueSize,
			RunTimeoutMinutes:  defaultRunTimeoutMinutes,
			WorkspaceTTLHours:  defaultWorkspaceTTLHours,
			JanitorSchedule:    defaultJanitorSchedule,
			AuthSweepSchedule:  defaultSweepSchedule,
			DedupWindowMinutes: 60,
		},
		Redis: RedisConfig{
			EventStreamMaxLen: defaultEventStreamMaxLen,
		},
		Artifacts: ArtifactsConfig{
			Bucket: defaultArtifactsBucket,
		},
		Language: "en",
		Logging: logger.Config{
			Level:      "info",
			Format:     "text",
			File:       "",
			MaxSize:    100,
			MaxAge:     7,
			MaxBackups: 5,
			Compress:   false,
		},
		Telemetry: telemetry.Config{
			Enabled:     false,
			ServiceName: consts.ServiceName,
			OTLP: telemetry.OTLPConfig{
				Enabled:  false,
				Endpoint: defaultOTLPEndpoint,
				Insecure: true,
			},
			Prometheus: telemetry.PrometheusConfig{
				Enabled: false,
				Port:    defaultPrometheusPort,
			},
		},
	}
}

// Load loads configuration from a YAML file with environment variable expansion.
// HAVOC_* environment variables are applied on top of the file contents.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	expanded := expandEnvVars(string(data))

	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

// LoadOrDefault loads the file when it exists, otherwise returns defaults with env overrides applied
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := Default()
		applyEnvOverrides(cfg)
		return cfg, nil
	}
	return Load(path)
}

// envVarPattern matches ${VAR_NAME} and ${VAR_NAME:-default}
var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} patterns with environment variable values.
// Bare $VAR_NAME is left alone.
func expandEnvVars(content string) string {
	return envVarPattern.ReplaceAllStringFunc(content, func(match string) string {
		varName := match[2 : len(match)-1]

		parts := strings.SplitN(varName, ":-", 2)
		varName = parts[0]

		if value := os.Getenv(varName); value != "" {
			return value
		}
		if len(parts) > 1 {
			return parts[1]
		}
		return ""
	})
}

// applyEnvOverrides applies HAVOC_* environment variables to the configuration
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("HAVOC_SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("HAVOC_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("HAVOC_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// Secrets
	if v := os.Getenv("HAVOC_GITHUB_TOKEN"); v != "" {
		cfg.GitHub.Token = v
	}
	if v := os.Getenv("HAVOC_GITHUB_APP_ID"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.GitHub.AppID = id
		}
	}
	if v := os.Getenv("HAVOC_GITHUB_PRIVATE_KEY_PATH"); v != "" {
		cfg.GitHub.PrivateKeyPath = v
	}
	if v := os.Getenv("HAVOC_WEBHOOK_SECRET"); v != "" {
		cfg.GitHub.WebhookSecret = v
	}
	if v := os.Getenv("HAVOC_GEMINI_API_KEY"); v != "" {
		cfg.LLM.APIKey = v
	}
	if v := os.Getenv("HAVOC_LLM_PROVIDER"); v != "" {
		cfg.LLM.Provider = v
	}
	if v := os.Getenv("HAVOC_REDIS_URL"); v != "" {
		cfg.Redis.URL = v
	}
	if v := os.Getenv("HAVOC_API_JWT_SECRET"); v != "" {
		cfg.API.JWTSecret = v
	}

	if v := os.Getenv("HAVOC_SANDBOX_IMAGE"); v != "" {
		cfg.Sandbox.Image = v
	}
	if v := os.Getenv("HAVOC_MAX_CONCURRENT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Engine.MaxConcurrent = n
		}
	}

	if v := os.Getenv("HAVOC_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("HAVOC_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("HAVOC_TELEMETRY_ENABLED"); v != "" {
		cfg.Telemetry.Enabled = parseBool(v)
	}
	if v := os.Getenv("HAVOC_OTLP_ENDPOINT"); v != "" {
		cfg.Telemetry.OTLP.Enabled = true
		cfg.Telemetry.OTLP.Endpoint = v
	}
}

// parseBool parses a boolean string value
func parseBool(v string) bool {
	v = strings.ToLower(strings.TrimSpace(v))
	return v == "true" || v == "1" || v == "yes" || v == "on"
}

// Address returns the server address string
func (c *ServerConfig) Address() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}
