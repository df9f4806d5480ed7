// Package github implements the Git provider interface for GitHub.
package github

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/google/go-github/v57/github"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/AlecFritsch/inito/internal/git/provider"
	"github.com/AlecFritsch/inito/pkg/logger"
)

// GitHub provider constants
const (
	ProviderName = "github"

	// Default GitHub URL for public GitHub
	defaultGitHubURL = "https://github.com"

	// URL prefixes and suffixes
	gitSuffix   = ".git"
	httpsPrefix = "https://"
	httpPrefix  = "http://"
	gitAtPrefix = "git@"

	// Path separator used in git@ format URLs (e.g., git@github.com:owner/repo)
	gitAtPathSeparator = ":"
)

func init() {
	provider.Register(ProviderName, NewProvider)
}

// GitHubProvider implements the Provider interface for GitHub
type GitHubProvider struct {
	static             *github.Client
	token              string
	tokens             provider.TokenSource
	baseURL            string
	insecureSkipVerify bool
}

// NewProvider creates a new GitHub provider instance
func NewProvider(opts *provider.ProviderOptions) (provider.Provider, error) {
	p := &GitHubProvider{
		token:              opts.Token,
		tokens:             opts.Tokens,
		baseURL:            strings.TrimSuffix(opts.BaseURL, "/"),
		insecureSkipVerify: opts.InsecureSkipVerify,
	}

	client, err := p.newClient(opts.Token)
	if err != nil {
		return nil, err
	}
	p.static = client
	return p, nil
}

// newClient builds an API client for token; an empty token gives anonymous access
func (p *GitHubProvider) newClient(token string) (*github.Client, error) {
	transport := &http.Transport{Proxy: http.ProxyFromEnvironment}
	if p.insecureSkipVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	httpClient := &http.Client{Transport: transport}
	if token != "" {
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
		httpClient = &http.Client{Transport: &oauth2.Transport{Source: ts, Base: transport}}
	}

	client := github.NewClient(httpClient)
	if !p.isDefaultGitHub() {
		enterprise, err := client.WithEnterpriseURLs(p.baseURL, p.baseURL)
		if err != nil {
			return nil, &provider.ProviderError{
				Provider: ProviderName,
				Message:  "failed to create enterprise client",
				Err:      err,
			}
		}
		client = enterprise
	}
	return client, nil
}

// clientFor returns the API client authorized for owner/repo
func (p *GitHubProvider) clientFor(ctx context.Context, owner, repo string) (*github.Client, error) {
	if p.tokens == nil {
		return p.static, nil
	}
	token, err := p.Token(ctx, owner, repo)
	if err != nil {
		return nil, err
	}
	return p.newClient(token)
}

// isDefaultGitHub returns true if the provider is configured for public GitHub
func (p *GitHubProvider) isDefaultGitHub() bool {
	return p.baseURL == "" || p.baseURL == defaultGitHubURL
}

// Name returns the provider name
func (p *GitHubProvider) Name() string {
	return ProviderName
}

// GetBaseURL returns the base URL of the provider
func (p *GitHubProvider) GetBaseURL() string {
	if p.isDefaultGitHub() {
		return defaultGitHubURL
	}
	return p.baseURL
}

// Token resolves the credential for owner/repo
func (p *GitHubProvider) Token(ctx context.Context, owner, repo string) (string, error) {
	if p.tokens == nil {
		return p.token, nil
	}
	token, err := p.tokens.Token(ctx, owner, repo)
	if err != nil {
		return "", &provider.ProviderError{
			Provider: ProviderName,
			Message:  fmt.Sprintf("failed to resolve credentials for %s/%s", owner, repo),
			Err:      err,
		}
	}
	return token, nil
}

// CloneURL returns https://host/owner/repo.git
func (p *GitHubProvider) CloneURL(owner, repo string) string {
	return fmt.Sprintf("%s%s/%s/%s%s", httpsPrefix, p.host(), owner, repo, gitSuffix)
}

func (p *GitHubProvider) host() string {
	if p.isDefaultGitHub() {
		return "github.com"
	}
	host := strings.TrimPrefix(p.baseURL, httpsPrefix)
	host = strings.TrimPrefix(host, httpPrefix)
	return strings.TrimSuffix(host, "/")
}

// GetDefaultBranch returns the repository's default branch
func (p *GitHubProvider) GetDefaultBranch(ctx context.Context, owner, repo string) (string, error) {
	client, err := p.clientFor(ctx, owner, repo)
	if err != nil {
		return "", err
	}

	r, resp, err := client.Repositories.Get(ctx, owner, repo)
	if err != nil {
		return "", apiError("failed to get repository", resp, err)
	}
	if r.GetDefaultBranch() == "" {
		return "main", nil
	}
	return r.GetDefaultBranch(), nil
}

// GetIssue retrieves an issue
func (p *GitHubProvider) GetIssue(ctx context.Context, owner, repo string, number int) (*provider.Issue, error) {
	client, err := p.clientFor(ctx, owner, repo)
	if err != nil {
		return nil, err
	}

	issue, resp, err := client.Issues.Get(ctx, owner, repo, number)
	if err != nil {
		logger.Error("Failed to get issue",
			zap.Error(err),
			zap.String("owner", owner),
			zap.String("repo", repo),
			zap.Int("number", number),
		)
		return nil, apiError("failed to get issue", resp, err)
	}
	return convertIssue(issue), nil
}

// CreatePullRequest opens a pull request
func (p *GitHubProvider) CreatePullRequest(ctx context.Context, owner, repo string, pr *provider.NewPullRequest) (*provider.PullRequest, error) {
	client, err := p.clientFor(ctx, owner, repo)
	if err != nil {
		return nil, err
	}

	created, resp, err := client.PullRequests.Create(ctx, owner, repo, &github.NewPullRequest{
		Title: github.String(pr.Title),
		Head:  github.String(pr.Head),
		Base:  github.String(pr.Base),
		Body:  github.String(pr.Body),
		Draft: github.Bool(pr.Draft),
	})
	if err != nil {
		logger.Error("Failed to create pull request",
			zap.Error(err),
			zap.String("owner", owner),
			zap.String("repo", repo),
			zap.String("head", pr.Head),
		)
		return nil, apiError("failed to create pull request", resp, err)
	}

	logger.Info("Created pull request",
		zap.String("owner", owner),
		zap.String("repo", repo),
		zap.Int("number", created.GetNumber()),
	)
	return &provider.PullRequest{
		Number:     created.GetNumber(),
		Title:      created.GetTitle(),
		State:      created.GetState(),
		HeadBranch: created.GetHead().GetRef(),
		BaseBranch: created.GetBase().GetRef(),
		URL:        created.GetHTMLURL(),
	}, nil
}

// CreateComment posts a comment on an issue or pull request
func (p *GitHubProvider) CreateComment(ctx context.Context, owner, repo string, number int, body string) error {
	client, err := p.clientFor(ctx, owner, repo)
	if err != nil {
		return err
	}

	_, resp, err := client.Issues.CreateComment(ctx, owner, repo, number, &github.IssueComment{Body: github.String(body)})
	if err != nil {
		logger.Error("Failed to post comment",
			zap.Error(err),
			zap.String("owner", owner),
			zap.String("repo", repo),
			zap.Int("number", number),
		)
		return apiError("failed to post comment", resp, err)
	}
	return nil
}

// ParseWebhook parses an incoming webhook request. Event types other than
// issue_comment, issues and ping are returned with only Type and DeliveryID set.
func (p *GitHubProvider) ParseWebhook(r *http.Request, secret string) (*provider.WebhookEvent, error) {
	var body []byte
	var err error

	if secret != "" {
		body, err = github.ValidatePayload(r, []byte(secret))
		if err != nil {
			logger.Warn("Failed to validate webhook payload", zap.Error(err))
			return nil, &provider.ProviderError{
				Provider:   ProviderName,
				Message:    "invalid webhook signature",
				StatusCode: http.StatusUnauthorized,
				Err:        err,
			}
		}
	} else {
		body, err = io.ReadAll(r.Body)
		if err != nil {
			return nil, &provider.ProviderError{
				Provider: ProviderName,
				Message:  "failed to read webhook body",
				Err:      err,
			}
		}
	}

	eventType := github.WebHookType(r)
	event := &provider.WebhookEvent{
		Type:       provider.WebhookEventType(eventType),
		DeliveryID: github.DeliveryID(r),
		Provider:   ProviderName,
		RawPayload: body,
	}

	switch event.Type {
	case provider.EventTypeIssueComment, provider.EventTypeIssues, provider.EventTypePing:
	default:
		return event, nil
	}

	payload, err := github.ParseWebHook(eventType, body)
	if err != nil {
		return nil, &provider.ProviderError{
			Provider:   ProviderName,
			Message:    fmt.Sprintf("failed to parse %s event", eventType),
			StatusCode: http.StatusBadRequest,
			Err:        err,
		}
	}

	switch e := payload.(type) {
	case *github.IssueCommentEvent:
		event.Action = e.GetAction()
		event.Owner = e.GetRepo().GetOwner().GetLogin()
		event.Repo = e.GetRepo().GetName()
		event.Sender = e.GetSender().GetLogin()
		event.InstallationID = e.GetInstallation().GetID()
		event.Issue = convertIssue(e.GetIssue())
		event.CommentBody = e.GetComment().GetBody()
	case *github.IssuesEvent:
		event.Action = e.GetAction()
		event.Owner = e.GetRepo().GetOwner().GetLogin()
		event.Repo = e.GetRepo().GetName()
		event.Sender = e.GetSender().GetLogin()
		event.InstallationID = e.GetInstallation().GetID()
		event.Issue = convertIssue(e.GetIssue())
		event.Label = e.GetLabel().GetName()
	case *github.PingEvent:
		event.InstallationID = e.GetInstallation().GetID()
	}

	logger.Debug("Parsed GitHub webhook",
		zap.String("event", eventType),
		zap.String("delivery_id", event.DeliveryID),
		zap.String("action", event.Action),
		zap.String("repo", event.Owner+"/"+event.Repo),
	)
	return event, nil
}

// ParseRepoPath parses owner and repo from a repository URL.
// Supported formats:
//   - https://github.com/owner/repo(.git)
//   - git@github.com:owner/repo.git
//   - github.com/owner/repo
//   - owner/repo
func (p *GitHubProvider) ParseRepoPath(repoURL string) (owner, repo string, err error) {
	if repoURL == "" {
		return "", "", &provider.ProviderError{
			Provider: ProviderName,
			Message:  "empty repository URL",
		}
	}

	var parts []string
	for _, part := range strings.Split(normalizeURL(repoURL), "/") {
		if part != "" {
			parts = append(parts, part)
		}
	}

	switch {
	case len(parts) == 2:
		return parts[0], parts[1], nil
	case len(parts) >= 3:
		return parts[1], parts[2], nil
	default:
		return "", "", &provider.ProviderError{
			Provider: ProviderName,
			Message:  fmt.Sprintf("invalid repository URL format: %s", repoURL),
		}
	}
}

// normalizeURL removes protocol prefixes, .git suffix, and trailing slashes from a URL.
// It also converts git@ format (git@github.com:owner/repo) to standard path format.
func normalizeURL(url string) string {
	url = strings.TrimSuffix(url, gitSuffix)
	url = strings.TrimPrefix(url, httpsPrefix)
	url = strings.TrimPrefix(url, httpPrefix)
	url = strings.TrimPrefix(url, gitAtPrefix)
	url = strings.TrimSuffix(url, "/")

	if idx := strings.Index(url, gitAtPathSeparator); idx != -1 {
		url = url[:idx] + "/" + url[idx+1:]
	}
	return url
}

func convertIssue(issue *github.Issue) *provider.Issue {
	if issue == nil {
		return nil
	}
	labels := make([]string, 0, len(issue.Labels))
	for _, l := range issue.Labels {
		labels = append(labels, l.GetName())
	}
	return &provider.Issue{
		Number:        issue.GetNumber(),
		Title:         issue.GetTitle(),
		Body:          issue.GetBody(),
		State:         issue.GetState(),
		Author:        issue.GetUser().GetLogin(),
		URL:           issue.GetHTMLURL(),
		Labels:        labels,
		IsPullRequest: issue.IsPullRequest(),
	}
}

func apiError(msg string, resp *github.Response, err error) error {
	pe := &provider.ProviderError{Provider: ProviderName, Message: msg, Err: err}
	if resp != nil {
		pe.StatusCode = resp.StatusCode
	}
	return pe
}
