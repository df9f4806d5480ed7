// Package provider defines the source-control collaborator used by the pipeline
// and the webhook surface. GitHub is the only implementation.
package provider

import (
	"context"
	"net/http"
	"strings"
)

// Issue is the subset of an issue a run needs
type Issue struct {
	Number        int      `json:"number"`
	Title         string   `json:"title"`
	Body          string   `json:"body"`
	State         string   `json:"state"`
	Author        string   `json:"author"`
	URL           string   `json:"url"`
	Labels        []string `json:"labels,omitempty"`
	IsPullRequest bool     `json:"is_pull_request"`
}

// PullRequest represents a created pull request
type PullRequest struct {
	Number     int    `json:"number"`
	Title      string `json:"title"`
	State      string `json:"state"`
	HeadBranch string `json:"head_branch"`
	BaseBranch string `json:"base_branch"`
	URL        string `json:"url"`
}

// NewPullRequest holds the fields for opening a pull request
type NewPullRequest struct {
	Title string
	Body  string
	Head  string
	Base  string
	Draft bool
}

// WebhookEventType represents the type of webhook event
type WebhookEventType string

const (
	EventTypeIssueComment WebhookEventType = "issue_comment"
	EventTypeIssues       WebhookEventType = "issues"
	EventTypePing         WebhookEventType = "ping"
)

// WebhookEvent represents a parsed webhook event
type WebhookEvent struct {
	Type           WebhookEventType `json:"type"`
	DeliveryID     string           `json:"delivery_id"`
	Provider       string           `json:"provider"`
	Action         string           `json:"action,omitempty"` // created, labeled, ...
	Owner          string           `json:"owner"`
	Repo           string           `json:"repo"`
	Sender         string           `json:"sender"`
	InstallationID int64            `json:"installation_id,omitempty"`
	Issue          *Issue           `json:"issue,omitempty"`
	CommentBody    string           `json:"comment_body,omitempty"`
	Label          string           `json:"label,omitempty"` // label added by a "labeled" action
	RawPayload     []byte           `json:"-"`
}

// TokenSource yields the bearer token to use for a repository
type TokenSource interface {
	Token(ctx context.Context, owner, repo string) (string, error)
}

// Provider defines the operations the pipeline performs on the hosting service
type Provider interface {
	// Name returns the provider name
	Name() string

	// GetBaseURL returns the web base URL (https://github.com or an enterprise host)
	GetBaseURL() string

	// CloneURL returns the HTTPS clone URL without credentials
	CloneURL(owner, repo string) string

	// Token returns the credential for git operations on owner/repo
	Token(ctx context.Context, owner, repo string) (string, error)

	GetDefaultBranch(ctx context.Context, owner, repo string) (string, error)

	GetIssue(ctx context.Context, owner, repo string, number int) (*Issue, error)

	CreatePullRequest(ctx context.Context, owner, repo string, pr *NewPullRequest) (*PullRequest, error)

	// CreateComment comments on an issue or pull request by number
	CreateComment(ctx context.Context, owner, repo string, number int, body string) error

	// ParseWebhook validates (when secret is set) and parses an incoming webhook request
	ParseWebhook(r *http.Request, secret string) (*WebhookEvent, error)

	// ParseRepoPath parses owner and repo from a repository URL or "owner/repo"
	ParseRepoPath(repoURL string) (owner, repo string, err error)
}

// ProviderOptions holds options for creating a provider
type ProviderOptions struct {
	Token              string      // static access token
	Tokens             TokenSource // per repository tokens; wins over Token
	BaseURL            string      // base URL for GitHub Enterprise
	InsecureSkipVerify bool        // skip SSL certificate verification
}

// ProviderFactory creates a provider instance
type ProviderFactory func(opts *ProviderOptions) (Provider, error)

// Registry holds registered provider factories
var Registry = make(map[string]ProviderFactory)

// Register registers a provider factory
func Register(name string, factory ProviderFactory) {
	Registry[name] = factory
}

// Create creates a provider by name
func Create(name string, opts *ProviderOptions) (Provider, error) {
	factory, ok := Registry[name]
	if !ok {
		return nil, &ProviderError{
			Provider: name,
			Message:  "provider not registered",
		}
	}
	if opts == nil {
		opts = &ProviderOptions{}
	}
	return factory(opts)
}

// ProviderError represents a provider-related error
type ProviderError struct {
	Provider   string
	Message    string
	StatusCode int
	Err        error
}

func (e *ProviderError) Error() string {
	if e.Err != nil {
		return "[" + e.Provider + "] " + e.Message + ": " + e.Err.Error()
	}
	return "[" + e.Provider + "] " + e.Message
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// FullName joins owner and repo
func FullName(owner, repo string) string {
	return owner + "/" + repo
}

// SplitFullName splits "owner/repo"; ok is false for anything else
func SplitFullName(fullName string) (owner, repo string, ok bool) {
	parts := strings.Split(strings.TrimSpace(fullName), "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}
