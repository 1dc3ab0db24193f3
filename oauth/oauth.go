// Package oauth implements hangar.CredentialProvider using the OAuth2
// client-credentials grant.
package oauth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/fwojciec/hangar"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/sync/singleflight"
)

const (
	// DefaultMargin is how long before expiry a cached token is renewed.
	DefaultMargin = 5 * time.Minute
	// DefaultRetryBackoff is the wait before the single retry of a failed fetch.
	DefaultRetryBackoff = 500 * time.Millisecond
	// DefaultFetchTimeout bounds one token request, retry included.
	DefaultFetchTimeout = 30 * time.Second
)

// Config identifies the client at the token endpoint.
type Config struct {
	TokenURL     string
	ClientID     string
	ClientSecret string
	Scope        string // default scope; space-separated
}

// Manager obtains, caches and renews bearer tokens. It is safe for
// concurrent use and is meant to be shared by every invocation in the process.
type Manager struct {
	cfg          Config
	httpClient   *http.Client
	margin       time.Duration
	retryBackoff time.Duration
	fetchTimeout time.Duration
	now          func() time.Time
	logger       *slog.Logger

	mu    sync.Mutex
	cache map[string]hangar.Credential
	group singleflight.Group
}

// Option configures a Manager.
type Option func(*Manager)

// WithHTTPClient sets the HTTP client used for token requests.
func WithHTTPClient(c *http.Client) Option {
	return func(m *Manager) { m.httpClient = c }
}

// WithMargin sets the renewal safety margin.
func WithMargin(d time.Duration) Option {
	return func(m *Manager) { m.margin = d }
}

// WithRetryBackoff sets the wait before retrying a failed fetch.
func WithRetryBackoff(d time.Duration) Option {
	return func(m *Manager) { m.retryBackoff = d }
}

// WithFetchTimeout bounds a single fetch, including its retry.
func WithFetchTimeout(d time.Duration) Option {
	return func(m *Manager) { m.fetchTimeout = d }
}

// WithClock overrides the time source used for expiry checks.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// New creates a Manager. It returns an error wrapping hangar.ErrConfig when
// the token URL or client credentials are missing.
func New(cfg Config, opts ...Option) (*Manager, error) {
	if cfg.TokenURL == "" {
		return nil, fmt.Errorf("oauth: token url is required: %w", hangar.ErrConfig)
	}
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, fmt.Errorf("oauth: client id and secret are required: %w", hangar.ErrConfig)
	}
	m := &Manager{
		cfg:          cfg,
		httpClient:   http.DefaultClient,
		margin:       DefaultMargin,
		retryBackoff: DefaultRetryBackoff,
		fetchTimeout: DefaultFetchTimeout,
		now:          time.Now,
		logger:       slog.New(slog.DiscardHandler),
		cache:        make(map[string]hangar.Credential),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Token returns a credential for the default scope.
func (m *Manager) Token(ctx context.Context) (hangar.Credential, error) {
	return m.TokenFor(ctx, m.cfg.Scope)
}

// TokenFor returns a credential for scope, fetching one if the cached
// credential is missing or expires within the margin. Concurrent callers
// share a single in-flight request per scope.
func (m *Manager) TokenFor(ctx context.Context, scope string) (hangar.Credential, error) {
	if c, ok := m.cached(scope); ok {
		return c, nil
	}
	ch := m.group.DoChan(scope, func() (any, error) {
		// Another flight may have finished between the check above and now.
		if c, ok := m.cached(scope); ok {
			return c, nil
		}
		// The flight outlives any single caller; each caller waits on its own ctx.
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.fetchTimeout)
		defer cancel()
		c, err := m.fetchWithRetry(fctx, scope)
		if err != nil {
			return hangar.Credential{}, err
		}
		m.store(c)
		return c, nil
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return hangar.Credential{}, res.Err
		}
		return res.Val.(hangar.Credential), nil
	case <-ctx.Done():
		return hangar.Credential{}, context.Cause(ctx)
	}
}

// Invalidate drops the cached credential holding token, if any. A newer
// credential cached under the same scope is left alone.
func (m *Manager) Invalidate(token string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for scope, c := range m.cache {
		if c.AccessToken == token {
			delete(m.cache, scope)
		}
	}
}

func (m *Manager) cached(scope string) (hangar.Credential, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.cache[scope]
	if !ok || !c.ValidFor(m.now(), m.margin) {
		return hangar.Credential{}, false
	}
	return c, true
}

func (m *Manager) store(c hangar.Credential) {
	if c.Expiry.IsZero() {
		// Without expires_in there is no safe renewal point.
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cache[c.Scope] = c
}

func (m *Manager) fetchWithRetry(ctx context.Context, scope string) (hangar.Credential, error) {
	c, err := m.fetch(ctx, scope)
	if err == nil {
		return c, nil
	}
	m.logger.Warn("token request failed, retrying", "scope", scope, "error", err)
	t := time.NewTimer(m.retryBackoff)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
		return hangar.Credential{}, fmt.Errorf("oauth: %w: %w", hangar.ErrAuthUnavailable, err)
	}
	c, err = m.fetch(ctx, scope)
	if err != nil {
		m.logger.Error("token request failed", "scope", scope, "error", err)
		return hangar.Credential{}, fmt.Errorf("oauth: %w: %w", hangar.ErrAuthUnavailable, err)
	}
	return c, nil
}

func (m *Manager) fetch(ctx context.Context, scope string) (hangar.Credential, error) {
	cc := clientcredentials.Config{
		ClientID:     m.cfg.ClientID,
		ClientSecret: m.cfg.ClientSecret,
		TokenURL:     m.cfg.TokenURL,
		Scopes:       strings.Fields(scope),
		AuthStyle:    oauth2.AuthStyleInParams,
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, m.httpClient)
	tok, err := cc.Token(ctx)
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) && re.Response != nil {
			return hangar.Credential{}, fmt.Errorf("token endpoint returned %d: %w", re.Response.StatusCode, err)
		}
		return hangar.Credential{}, err
	}
	if tok.AccessToken == "" {
		return hangar.Credential{}, errors.New("token endpoint returned an empty access token")
	}
	return hangar.Credential{
		AccessToken: tok.AccessToken,
		Expiry:      tok.Expiry,
		Scope:       scope,
	}, nil
}

// Interface compliance check.
var _ hangar.CredentialProvider = (*Manager)(nil)
