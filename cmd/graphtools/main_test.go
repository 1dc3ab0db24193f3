package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/fwojciec/hangar"
	"github.com/fwojciec/hangar/neo4j"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func env(vars map[string]string) func(string) string {
	return func(k string) string { return vars[k] }
}

func TestLoadSettings(t *testing.T) {
	t.Parallel()

	s, err := loadSettings([]string{"-addr", ":9000", "-row-limit", "25"}, env(map[string]string{
		"NEO4J_URI":      "neo4j://db:7687",
		"NEO4J_PASSWORD": "pw",
	}))
	require.NoError(t, err)
	assert.Equal(t, ":9000", s.addr)
	assert.Equal(t, "fleet-graph", s.target)
	assert.Equal(t, 25, s.rowLimit)
	assert.Equal(t, "neo4j://db:7687", s.neo4jURI)
}

func TestLoadSettings_Invalid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		args []string
		env  map[string]string
	}{
		{"missing uri", nil, map[string]string{}},
		{"bad flag", []string{"-row-limit", "many"}, map[string]string{"NEO4J_URI": "x"}},
		{"two key sources", nil, map[string]string{"NEO4J_URI": "x", "JWT_SECRET": "s", "JWT_PUBLIC_KEY_FILE": "k.pem"}},
		{"client id without secret", nil, map[string]string{"NEO4J_URI": "x", "JWT_SECRET": "s", "LOCAL_CLIENT_ID": "c"}},
		{"issuer without signing secret", nil, map[string]string{"NEO4J_URI": "x", "LOCAL_CLIENT_ID": "c", "LOCAL_CLIENT_SECRET": "s"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := loadSettings(tt.args, env(tt.env))
			assert.ErrorIs(t, err, hangar.ErrConfig)
		})
	}
}

type readerFn func(ctx context.Context, query string, params map[string]any) ([]neo4j.Row, error)

func (f readerFn) Read(ctx context.Context, query string, params map[string]any) ([]neo4j.Row, error) {
	return f(ctx, query, params)
}

func rpc(t *testing.T, srv *httptest.Server, token string) int {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, srv.URL+"/mcp",
		strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"tools/list"}`))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	_ = resp.Body.Close()
	return resp.StatusCode
}

func TestHandler_LocalIssuerAndVerifier(t *testing.T) {
	t.Parallel()
	s := settings{
		target:       "fleet-graph",
		rowLimit:     10,
		jwtSecret:    "local-secret",
		jwtIssuer:    "graphtools",
		clientID:     "hangar",
		clientSecret: "hangar-secret",
	}
	h, err := newHandler(s, readerFn(func(context.Context, string, map[string]any) ([]neo4j.Row, error) {
		return nil, nil
	}), slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	assert.Equal(t, http.StatusUnauthorized, rpc(t, srv, ""))

	resp, err := srv.Client().PostForm(srv.URL+"/oauth2/token", url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {"hangar"},
		"client_secret": {"hangar-secret"},
	})
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var tok struct {
		AccessToken string `json:"access_token"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&tok))

	assert.Equal(t, http.StatusOK, rpc(t, srv, tok.AccessToken))
	assert.Equal(t, http.StatusUnauthorized, rpc(t, srv, tok.AccessToken+"x"))
}

func TestHandler_NoAuth(t *testing.T) {
	t.Parallel()
	h, err := newHandler(settings{target: "fleet-graph", rowLimit: 10}, readerFn(func(context.Context, string, map[string]any) ([]neo4j.Row, error) {
		return nil, nil
	}), slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	assert.Equal(t, http.StatusOK, rpc(t, srv, ""))

	resp, err := srv.Client().Get(srv.URL + "/ping")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = srv.Client().PostForm(srv.URL+"/oauth2/token", url.Values{"grant_type": {"client_credentials"}})
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.NotEqual(t, http.StatusOK, resp.StatusCode)
}
