package credentials

import (
	"context"
	"crypto/rsa"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/go-github/v57/github"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"

	"github.com/AlecFritsch/inito/internal/authstore"
	apperrors "github.com/AlecFritsch/inito/pkg/errors"
	"github.com/AlecFritsch/inito/pkg/logger"
)

const (
	// GitHub rejects app JWTs valid for more than ten minutes
	jwtLifetime = 9 * time.Minute
	// Issued-at is backdated to tolerate clock drift
	jwtBackdate = 60 * time.Second
	// Cached installation tokens are refreshed this long before expiry
	refreshMargin = 5 * time.Minute

	cacheKeyPrefix = "installation_token:"
)

// AppOptions configures GitHub App authentication
type AppOptions struct {
	AppID              int64
	PrivateKey         []byte // PEM encoded RSA key
	BaseURL            string // GitHub Enterprise base URL, empty for github.com
	InsecureSkipVerify bool
	Store              authstore.Store
}

// App mints installation tokens for a GitHub App
type App struct {
	appID   int64
	key     *rsa.PrivateKey
	baseURL string
	base    http.RoundTripper
	store   authstore.Store
	group   singleflight.Group
	now     func() time.Time
}

type cachedToken struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// NewApp parses the private key and returns an App token source
func NewApp(opts AppOptions) (*App, error) {
	if opts.AppID == 0 {
		return nil, apperrors.New(apperrors.ErrCodeConfigInvalid, "GitHub App id is required")
	}
	key, err := jwt.ParseRSAPrivateKeyFromPEM(opts.PrivateKey)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCodeConfigInvalid, "invalid GitHub App private key", err)
	}

	store := opts.Store
	if store == nil {
		store = authstore.NewMemory()
	}

	transport := &http.Transport{Proxy: http.ProxyFromEnvironment}
	if opts.InsecureSkipVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	return &App{
		appID:   opts.AppID,
		key:     key,
		baseURL: strings.TrimSuffix(opts.BaseURL, "/"),
		base:    transport,
		store:   store,
		now:     time.Now,
	}, nil
}

// JWT signs a short-lived app token
func (a *App) JWT() (string, error) {
	now := a.now()
	claims := jwt.RegisteredClaims{
		IssuedAt:  jwt.NewNumericDate(now.Add(-jwtBackdate)),
		ExpiresAt: jwt.NewNumericDate(now.Add(jwtLifetime)),
		Issuer:    strconv.FormatInt(a.appID, 10),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(a.key)
	if err != nil {
		return "", apperrors.ErrAuth("failed to sign GitHub App JWT", err)
	}
	return signed, nil
}

// Token returns a cached or freshly minted installation token for owner/repo.
// Concurrent callers for the same repository share one exchange.
func (a *App) Token(ctx context.Context, owner, repo string) (string, error) {
	key := cacheKeyPrefix + owner + "/" + repo

	if token, ok := a.cached(ctx, key); ok {
		return token, nil
	}

	v, err, _ := a.group.Do(key, func() (interface{}, error) {
		if token, ok := a.cached(ctx, key); ok {
			return token, nil
		}
		return a.mint(ctx, key, owner, repo)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// Invalidate drops the cached token for owner/repo
func (a *App) Invalidate(ctx context.Context, owner, repo string) error {
	return a.store.Delete(ctx, cacheKeyPrefix+owner+"/"+repo)
}

func (a *App) cached(ctx context.Context, key string) (string, bool) {
	data, err := a.store.Get(ctx, key)
	if err != nil {
		return "", false
	}
	var c cachedToken
	if err := json.Unmarshal(data, &c); err != nil {
		return "", false
	}
	if !a.now().Add(refreshMargin).Before(c.ExpiresAt) {
		return "", false
	}
	return c.Token, true
}

func (a *App) mint(ctx context.Context, key, owner, repo string) (string, error) {
	signed, err := a.JWT()
	if err != nil {
		return "", err
	}
	client, err := a.client(signed)
	if err != nil {
		return "", err
	}

	inst, _, err := client.Apps.FindRepositoryInstallation(ctx, owner, repo)
	if err != nil {
		return "", apperrors.ErrAuth(fmt.Sprintf("GitHub App is not installed on %s/%s", owner, repo), err)
	}

	tok, _, err := client.Apps.CreateInstallationToken(ctx, inst.GetID(), nil)
	if err != nil {
		return "", apperrors.ErrAuth("failed to create installation token", err)
	}

	c := cachedToken{Token: tok.GetToken(), ExpiresAt: tok.GetExpiresAt().Time}
	if c.ExpiresAt.IsZero() {
		c.ExpiresAt = a.now().Add(time.Hour)
	}

	if ttl := c.ExpiresAt.Sub(a.now()) - refreshMargin; ttl > 0 {
		data, _ := json.Marshal(c)
		if err := a.store.Put(ctx, key, data, ttl); err != nil {
			logger.Warn("Failed to cache installation token",
				zap.String("repo", owner+"/"+repo), zap.Error(err))
		}
	}

	logger.Debug("Minted installation token",
		zap.String("repo", owner+"/"+repo),
		zap.Int64("installation_id", inst.GetID()),
		zap.Time("expires_at", c.ExpiresAt))
	return c.Token, nil
}

func (a *App) client(bearer string) (*github.Client, error) {
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: bearer})
	client := github.NewClient(&http.Client{Transport: &oauth2.Transport{Source: ts, Base: a.base}})
	if a.baseURL == "" || a.baseURL == "https://github.com" {
		return client, nil
	}
	enterprise, err := client.WithEnterpriseURLs(a.baseURL, a.baseURL)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCodeConfigInvalid, "invalid GitHub base URL", err)
	}
	return enterprise, nil
}
