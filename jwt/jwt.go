// Package jwt issues and verifies the bearer tokens used between the
// orchestrator and a self-hosted tool server.
package jwt

import (
	"context"
	"crypto/rsa"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/fwojciec/hangar/mcp"
	gojwt "github.com/golang-jwt/jwt/v5"
)

// Claims are the claims carried by an access token.
type Claims struct {
	Scope    string `json:"scope,omitempty"`
	ClientID string `json:"client_id,omitempty"`
	gojwt.RegisteredClaims
}

type settings struct {
	issuer   string
	audience string
	scope    string
	leeway   time.Duration
	ttl      time.Duration
	now      func() time.Time
}

// Option configures a Verifier or an Issuer.
type Option func(*settings)

// WithIssuer sets the iss claim written by an Issuer and required by a
// Verifier.
func WithIssuer(iss string) Option {
	return func(s *settings) { s.issuer = iss }
}

// WithAudience sets the aud claim written by an Issuer and required by a
// Verifier.
func WithAudience(aud string) Option {
	return func(s *settings) { s.audience = aud }
}

// WithScope makes a Verifier require scope among the token's scopes.
func WithScope(scope string) Option {
	return func(s *settings) { s.scope = scope }
}

// WithLeeway allows for clock skew when validating time claims.
func WithLeeway(d time.Duration) Option {
	return func(s *settings) { s.leeway = d }
}

// WithTTL sets the lifetime of tokens minted by an Issuer.
func WithTTL(d time.Duration) Option {
	return func(s *settings) { s.ttl = d }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *settings) { s.now = now }
}

func newSettings(opts []Option) settings {
	s := settings{ttl: time.Hour, now: time.Now}
	for _, o := range opts {
		o(&s)
	}
	return s
}

// Verifier checks bearer tokens. It implements mcp.Authorizer.
type Verifier struct {
	key     any
	methods []string
	cfg     settings
}

var _ mcp.Authorizer = (*Verifier)(nil)

// NewHMACVerifier verifies HS256 tokens signed with secret.
func NewHMACVerifier(secret []byte, opts ...Option) *Verifier {
	return &Verifier{
		key:     secret,
		methods: []string{gojwt.SigningMethodHS256.Alg()},
		cfg:     newSettings(opts),
	}
}

// NewRSAVerifier verifies RS256 tokens against a PEM encoded public key.
func NewRSAVerifier(pemKey []byte, opts ...Option) (*Verifier, error) {
	key, err := gojwt.ParseRSAPublicKeyFromPEM(pemKey)
	if err != nil {
		return nil, fmt.Errorf("jwt: parse public key: %w", err)
	}
	return &Verifier{
		key:     key,
		methods: []string{gojwt.SigningMethodRS256.Alg()},
		cfg:     newSettings(opts),
	}, nil
}

// Authorize implements mcp.Authorizer.
func (v *Verifier) Authorize(_ context.Context, token string) error {
	_, err := v.Verify(token)
	return err
}

// Verify parses token and returns its claims if the signature, the time
// claims, and the configured issuer, audience and scope all check out.
func (v *Verifier) Verify(token string) (*Claims, error) {
	opts := []gojwt.ParserOption{
		gojwt.WithValidMethods(v.methods),
		gojwt.WithExpirationRequired(),
		gojwt.WithLeeway(v.cfg.leeway),
		gojwt.WithTimeFunc(v.cfg.now),
	}
	if v.cfg.issuer != "" {
		opts = append(opts, gojwt.WithIssuer(v.cfg.issuer))
	}
	if v.cfg.audience != "" {
		opts = append(opts, gojwt.WithAudience(v.cfg.audience))
	}

	var c Claims
	if _, err := gojwt.ParseWithClaims(token, &c, v.keyFunc, opts...); err != nil {
		return nil, fmt.Errorf("jwt: %w", err)
	}
	if v.cfg.scope != "" && !slices.Contains(strings.Fields(c.Scope), v.cfg.scope) {
		return nil, fmt.Errorf("jwt: token lacks scope %q", v.cfg.scope)
	}
	return &c, nil
}

func (v *Verifier) keyFunc(t *gojwt.Token) (any, error) {
	switch v.key.(type) {
	case []byte:
		if _, ok := t.Method.(*gojwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
	case *rsa.PublicKey:
		if _, ok := t.Method.(*gojwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
	}
	return v.key, nil
}
