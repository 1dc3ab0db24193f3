package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/fwojciec/hangar"
	mcpgo "github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// ToolProvider is a set of tools served over MCP. CallTool returns an error
// wrapping hangar.ErrToolArgument for bad arguments; both that and any other
// error reach the caller as a tool error result.
type ToolProvider interface {
	Tools() []mcpgo.Tool
	CallTool(ctx context.Context, name string, args json.RawMessage) (*mcpgo.CallToolResult, error)
}

// Authorizer verifies the bearer token of an incoming request.
type Authorizer interface {
	Authorize(ctx context.Context, token string) error
}

// Server exposes a ToolProvider as a stateless streamable-HTTP MCP endpoint.
type Server struct {
	authorizer Authorizer
	logger     *slog.Logger
	handler    http.Handler
}

type serverConfig struct {
	name       string
	version    string
	authorizer Authorizer
	pageSize   int
	logger     *slog.Logger
}

// ServerOption configures a Server.
type ServerOption func(*serverConfig)

// WithServerInfo sets the implementation info returned by initialize.
func WithServerInfo(name, version string) ServerOption {
	return func(c *serverConfig) {
		c.name = name
		c.version = version
	}
}

// WithAuthorizer requires every request to carry a bearer token accepted by a.
func WithAuthorizer(a Authorizer) ServerOption {
	return func(c *serverConfig) { c.authorizer = a }
}

// WithPageSize paginates tools/list. Zero lists every tool in one page.
func WithPageSize(n int) ServerOption {
	return func(c *serverConfig) { c.pageSize = n }
}

// WithServerLogger sets the logger.
func WithServerLogger(l *slog.Logger) ServerOption {
	return func(c *serverConfig) { c.logger = l }
}

// NewServer creates a Server for p.
func NewServer(p ToolProvider, opts ...ServerOption) *Server {
	cfg := serverConfig{
		name:    "hangar-tools",
		version: "dev",
		logger:  slog.New(slog.DiscardHandler),
	}
	for _, o := range opts {
		o(&cfg)
	}

	serverOpts := []server.ServerOption{
		server.WithToolCapabilities(false),
		server.WithRecovery(),
	}
	if cfg.pageSize > 0 {
		serverOpts = append(serverOpts, server.WithPaginationLimit(cfg.pageSize))
	}
	ms := server.NewMCPServer(cfg.name, cfg.version, serverOpts...)
	for _, t := range p.Tools() {
		ms.AddTool(t, toolHandler(p, t.Name, cfg.logger))
	}

	return &Server{
		authorizer: cfg.authorizer,
		logger:     cfg.logger,
		handler: server.NewStreamableHTTPServer(ms,
			server.WithStateLess(true),
			server.WithLogger(sdkLogger{cfg.logger}),
		),
	}
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if s.authorizer != nil {
		token, ok := bearerToken(r)
		if !ok {
			w.Header().Set("WWW-Authenticate", "Bearer")
			http.Error(w, "missing bearer token", http.StatusUnauthorized)
			return
		}
		if err := s.authorizer.Authorize(r.Context(), token); err != nil {
			s.logger.Info("rejected token", "error", err)
			w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
			http.Error(w, "invalid bearer token", http.StatusUnauthorized)
			return
		}
	}
	s.handler.ServeHTTP(w, r)
}

func toolHandler(p ToolProvider, name string, logger *slog.Logger) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
		var args json.RawMessage
		if raw := req.GetRawArguments(); raw != nil {
			b, err := json.Marshal(raw)
			if err != nil {
				return mcpgo.NewToolResultError("arguments are not valid JSON"), nil
			}
			args = b
		}
		res, err := p.CallTool(ctx, name, args)
		switch {
		case errors.Is(err, hangar.ErrToolArgument):
			return mcpgo.NewToolResultError("invalid arguments: " + err.Error()), nil
		case err != nil:
			logger.Warn("tool call failed", "tool", name, "error", err)
			return mcpgo.NewToolResultError(err.Error()), nil
		case res == nil:
			return mcpgo.NewToolResultText(""), nil
		}
		if res.Content == nil {
			res.Content = []mcpgo.Content{}
		}
		return res, nil
	}
}

func bearerToken(r *http.Request) (string, bool) {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return "", false
	}
	return strings.TrimSpace(token), true
}
