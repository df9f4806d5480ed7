// Package providertest provides an in-memory provider.Provider for tests.
package providertest

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/AlecFritsch/inito/internal/git/provider"
)

// Comment is a comment recorded by Fake
type Comment struct {
	Owner  string
	Repo   string
	Number int
	Body   string
}

// Fake records calls and serves canned issues
type Fake struct {
	mu sync.Mutex

	BaseURL       string
	CloneBase     string // when set, CloneURL returns CloneBase/owner/repo.git
	TokenValue    string
	TokenErr      error
	DefaultBranch string
	Issues        map[int]*provider.Issue
	Webhook       *provider.WebhookEvent
	WebhookErr    error
	PRErr         error
	CommentErr    error

	PRs      []*provider.NewPullRequest
	Comments []Comment
}

// New returns a fake with "main" as default branch
func New() *Fake {
	return &Fake{
		BaseURL:       "https://github.com",
		TokenValue:    "test-token",
		DefaultBranch: "main",
		Issues:        make(map[int]*provider.Issue),
	}
}

func (f *Fake) Name() string { return "fake" }

func (f *Fake) GetBaseURL() string { return f.BaseURL }

func (f *Fake) CloneURL(owner, repo string) string {
	base := f.CloneBase
	if base == "" {
		base = f.BaseURL
	}
	return strings.TrimSuffix(base, "/") + "/" + owner + "/" + repo + ".git"
}

func (f *Fake) Token(context.Context, string, string) (string, error) {
	return f.TokenValue, f.TokenErr
}

func (f *Fake) GetDefaultBranch(context.Context, string, string) (string, error) {
	return f.DefaultBranch, nil
}

func (f *Fake) GetIssue(_ context.Context, owner, repo string, number int) (*provider.Issue, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	issue, ok := f.Issues[number]
	if !ok {
		return nil, &provider.ProviderError{
			Provider:   "fake",
			Message:    fmt.Sprintf("issue %s#%d not found", provider.FullName(owner, repo), number),
			StatusCode: http.StatusNotFound,
		}
	}
	return issue, nil
}

func (f *Fake) CreatePullRequest(_ context.Context, owner, repo string, pr *provider.NewPullRequest) (*provider.PullRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PRErr != nil {
		return nil, f.PRErr
	}
	f.PRs = append(f.PRs, pr)
	n := 100 + len(f.PRs)
	return &provider.PullRequest{
		Number:     n,
		Title:      pr.Title,
		State:      "open",
		HeadBranch: pr.Head,
		BaseBranch: pr.Base,
		URL:        fmt.Sprintf("%s/%s/%s/pull/%d", f.BaseURL, owner, repo, n),
	}, nil
}

func (f *Fake) CreateComment(_ context.Context, owner, repo string, number int, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.CommentErr != nil {
		return f.CommentErr
	}
	f.Comments = append(f.Comments, Comment{Owner: owner, Repo: repo, Number: number, Body: body})
	return nil
}

func (f *Fake) ParseWebhook(*http.Request, string) (*provider.WebhookEvent, error) {
	return f.Webhook, f.WebhookErr
}

func (f *Fake) ParseRepoPath(repoURL string) (string, string, error) {
	owner, repo, ok := provider.SplitFullName(strings.TrimSuffix(repoURL, ".git"))
	if !ok {
		return "", "", fmt.Errorf("invalid repository path: %s", repoURL)
	}
	return owner, repo, nil
}

// CommentsOn returns the bodies posted on number
func (f *Fake) CommentsOn(number int) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, c := range f.Comments {
		if c.Number == number {
			out = append(out, c.Body)
		}
	}
	return out
}

var _ provider.Provider = (*Fake)(nil)
