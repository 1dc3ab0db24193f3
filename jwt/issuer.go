package jwt

import (
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	gojwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Issuer mints HS256 access tokens for registered clients. Its ServeHTTP
// method is an OAuth2 token endpoint supporting the client_credentials
// grant, enough to stand in for an identity provider during local runs.
type Issuer struct {
	secret  []byte
	clients map[string]string
	cfg     settings
}

// NewIssuer returns an Issuer signing with secret. clients maps client ids
// to client secrets.
func NewIssuer(secret []byte, clients map[string]string, opts ...Option) *Issuer {
	return &Issuer{secret: secret, clients: clients, cfg: newSettings(opts)}
}

// Issue mints a token for clientID carrying scope.
func (i *Issuer) Issue(clientID, scope string) (string, error) {
	now := i.cfg.now()
	c := Claims{
		Scope:    scope,
		ClientID: clientID,
		RegisteredClaims: gojwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    i.cfg.issuer,
			Subject:   clientID,
			IssuedAt:  gojwt.NewNumericDate(now),
			NotBefore: gojwt.NewNumericDate(now),
			ExpiresAt: gojwt.NewNumericDate(now.Add(i.cfg.ttl)),
		},
	}
	if i.cfg.audience != "" {
		c.Audience = gojwt.ClaimStrings{i.cfg.audience}
	}
	signed, err := gojwt.NewWithClaims(gojwt.SigningMethodHS256, c).SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("jwt: sign: %w", err)
	}
	return signed, nil
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
	Scope       string `json:"scope,omitempty"`
}

type tokenError struct {
	Error       string `json:"error"`
	Description string `json:"error_description,omitempty"`
}

// ServeHTTP implements http.Handler.
func (i *Issuer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeJSON(w, http.StatusMethodNotAllowed, tokenError{Error: "invalid_request"})
		return
	}
	if err := r.ParseForm(); err != nil {
		writeJSON(w, http.StatusBadRequest, tokenError{Error: "invalid_request", Description: err.Error()})
		return
	}
	if gt := r.PostForm.Get("grant_type"); gt != "client_credentials" {
		writeJSON(w, http.StatusBadRequest, tokenError{Error: "unsupported_grant_type"})
		return
	}

	id, secret, ok := r.BasicAuth()
	if !ok {
		id, secret = r.PostForm.Get("client_id"), r.PostForm.Get("client_secret")
	}
	want, known := i.clients[id]
	if id == "" || !known || subtle.ConstantTimeCompare([]byte(want), []byte(secret)) != 1 {
		w.Header().Set("WWW-Authenticate", `Basic realm="token"`)
		writeJSON(w, http.StatusUnauthorized, tokenError{Error: "invalid_client"})
		return
	}

	scope := strings.Join(strings.Fields(r.PostForm.Get("scope")), " ")
	token, err := i.Issue(id, scope)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, tokenError{Error: "server_error"})
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, tokenResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   int64(i.cfg.ttl.Seconds()),
		Scope:       scope,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
