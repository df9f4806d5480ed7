package output

import (
	"context"

	"go.uber.org/zap"

	"github.com/AlecFritsch/inito/internal/git/provider"
	"github.com/AlecFritsch/inito/pkg/logger"
)

// Commenter posts rendered bodies to an issue or pull request
type Commenter struct {
	prov  provider.Provider
	owner string
	repo  string
	log   *zap.Logger
}

// NewCommenter binds a commenter to one repository
func NewCommenter(prov provider.Provider, owner, repo string, log *zap.Logger) *Commenter {
	if log == nil {
		log = logger.Get()
	}
	return &Commenter{prov: prov, owner: owner, repo: repo, log: log}
}

// Post comments on issue or PR number
func (c *Commenter) Post(ctx context.Context, number int, body string) error {
	return c.prov.CreateComment(ctx, c.owner, c.repo, number, body)
}

// PostBestEffort comments and only logs a failure
func (c *Commenter) PostBestEffort(ctx context.Context, number int, body string) bool {
	if err := c.Post(ctx, number, body); err != nil {
		c.log.Warn("Failed to post comment",
			zap.String("repo", provider.FullName(c.owner, c.repo)),
			zap.Int("number", number),
			zap.Error(err))
		return false
	}
	return true
}
