// Package credentials resolves the bearer token used for a repository:
// either a static personal access token or a GitHub App installation token.
package credentials

import (
	"context"
	"fmt"
	"os"

	"github.com/AlecFritsch/inito/internal/authstore"
	"github.com/AlecFritsch/inito/internal/config"
	"github.com/AlecFritsch/inito/internal/git/provider"
	apperrors "github.com/AlecFritsch/inito/pkg/errors"
)

// Static returns the same token for every repository
type Static string

// Token implements provider.TokenSource
func (s Static) Token(_ context.Context, owner, repo string) (string, error) {
	if s == "" {
		return "", apperrors.ErrAuth(fmt.Sprintf("no GitHub token configured for %s/%s", owner, repo), nil)
	}
	return string(s), nil
}

// FromConfig builds the token source described by cfg.
// App credentials win over a static token when both are set.
func FromConfig(cfg *config.GitHubConfig, store authstore.Store) (provider.TokenSource, error) {
	if !cfg.UsesApp() {
		return Static(cfg.Token), nil
	}

	pemData, err := os.ReadFile(cfg.PrivateKeyPath)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCodeConfigInvalid, "failed to read GitHub App private key", err)
	}
	app, err := NewApp(AppOptions{
		AppID:              cfg.AppID,
		PrivateKey:         pemData,
		BaseURL:            cfg.BaseURL,
		InsecureSkipVerify: cfg.InsecureSkipVerify,
		Store:              store,
	})
	if err != nil {
		return nil, err
	}
	return app, nil
}
