package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fwojciec/hangar"
	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	mcpgo "github.com/mark3labs/mcp-go/mcp"
)

// DefaultRetryBackoff is the wait before the single retry of an unavailable
// request.
const DefaultRetryBackoff = 250 * time.Millisecond

// Interface compliance checks.
var (
	_ hangar.ToolGateway = (*Client)(nil)
	_ hangar.ToolSession = (*Session)(nil)
)

// Client connects to an MCP gateway endpoint. It holds no per-invocation
// state: every invocation opens its own Session.
type Client struct {
	url          string
	creds        hangar.CredentialProvider
	httpClient   *http.Client
	retryBackoff time.Duration
	info         mcpgo.Implementation
	logger       *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the HTTP client whose transport and timeout carry
// gateway requests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithRetryBackoff sets the wait before retrying an unavailable request.
func WithRetryBackoff(d time.Duration) Option {
	return func(c *Client) { c.retryBackoff = d }
}

// WithClientInfo sets the implementation info sent in the handshake.
func WithClientInfo(name, version string) Option {
	return func(c *Client) { c.info = mcpgo.Implementation{Name: name, Version: version} }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New creates a Client for the gateway at url. Every request is authorized
// with a bearer token from creds.
func New(url string, creds hangar.CredentialProvider, opts ...Option) *Client {
	c := &Client{
		url:          url,
		creds:        creds,
		httpClient:   http.DefaultClient,
		retryBackoff: DefaultRetryBackoff,
		info:         mcpgo.Implementation{Name: "hangar", Version: "dev"},
		logger:       slog.New(slog.DiscardHandler),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Open starts a session. No request is sent until the session is first used.
func (c *Client) Open(ctx context.Context) (hangar.ToolSession, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	hc := &http.Client{
		Transport: &authTransport{base: baseTransport(c.httpClient), creds: c.creds, logger: c.logger},
		Timeout:   c.httpClient.Timeout,
	}
	t, err := transport.NewStreamableHTTP(c.url,
		transport.WithHTTPBasicClient(hc),
		transport.WithHTTPLogger(sdkLogger{c.logger}),
	)
	if err != nil {
		return nil, fmt.Errorf("mcp: %w", err)
	}
	// Stateless gateways may not implement initialize; WithSession lets
	// requests go out without a completed handshake.
	mc := client.NewClient(t, client.WithSession())
	if err := mc.Start(ctx); err != nil {
		return nil, fmt.Errorf("mcp: start: %w", err)
	}
	return &Session{client: c, mc: mc, discovered: make(map[string][]hangar.ToolDescriptor)}, nil
}

// Error is a failed gateway exchange that did not involve authentication.
type Error struct {
	Kind       hangar.ToolErrorKind // ToolUnavailable or ToolInvalidArguments
	StatusCode int                  // HTTP status; 0 when no response arrived
	Code       int                  // JSON-RPC error code; 0 when absent
	Message    string
	Err        error // underlying error, if any
}

func (e *Error) Error() string {
	var sb strings.Builder
	sb.WriteString("mcp: ")
	sb.WriteString(string(e.Kind))
	if e.StatusCode != 0 {
		fmt.Fprintf(&sb, ": HTTP %d", e.StatusCode)
	}
	if e.Code != 0 {
		fmt.Fprintf(&sb, ": code %d", e.Code)
	}
	if e.Message != "" {
		sb.WriteString(": ")
		sb.WriteString(e.Message)
	}
	if e.Err != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Err.Error())
	}
	return sb.String()
}

// Unwrap returns the matching hangar sentinel and the underlying error.
func (e *Error) Unwrap() []error {
	sentinel := hangar.ErrToolUnavailable
	if e.Kind == hangar.ToolInvalidArguments {
		sentinel = hangar.ErrToolArgument
	}
	if e.Err != nil {
		return []error{sentinel, e.Err}
	}
	return []error{sentinel}
}

// Session is the per-invocation view of the gateway.
type Session struct {
	client *Client
	mc     *client.Client
	closed atomic.Bool

	initMu      sync.Mutex
	initialized bool

	mu         sync.Mutex
	discovered map[string][]hangar.ToolDescriptor
}

// DiscoverTools lists the gateway's tools whose target is in scope. Results
// are memoised per scope for the lifetime of the session.
func (s *Session) DiscoverTools(ctx context.Context, scope []string) ([]hangar.ToolDescriptor, error) {
	key := scopeKey(scope)
	s.mu.Lock()
	if tools, ok := s.discovered[key]; ok {
		s.mu.Unlock()
		return slices.Clone(tools), nil
	}
	s.mu.Unlock()

	if err := s.initialize(ctx); err != nil {
		return nil, err
	}
	all, err := s.listTools(ctx)
	if err != nil {
		return nil, err
	}
	tools := filterScope(all, scope)

	s.mu.Lock()
	defer s.mu.Unlock()
	// A concurrent discovery may have won; keep the first set so that every
	// caller in the session sees the same tools.
	if prev, ok := s.discovered[key]; ok {
		return slices.Clone(prev), nil
	}
	s.discovered[key] = tools
	return slices.Clone(tools), nil
}

// InvokeTool calls a tool by its full gateway name. Gateway failures are
// reported through the returned ToolResult; only authentication failures and
// context expiry are returned as errors.
func (s *Session) InvokeTool(ctx context.Context, name string, args json.RawMessage) (*hangar.ToolResult, error) {
	if s.closed.Load() {
		return nil, errors.New("mcp: session closed")
	}
	if len(bytes.TrimSpace(args)) == 0 {
		args = json.RawMessage("{}")
	}
	if !json.Valid(args) {
		return hangar.ErrorResult(hangar.ToolInvalidArguments,
			fmt.Sprintf("arguments for %s are not valid JSON", name)), nil
	}
	if err := s.initialize(ctx); err != nil {
		return toolFailure(name, err)
	}
	var res *mcpgo.CallToolResult
	err := s.call(ctx, "tools/call", func() error {
		var req mcpgo.CallToolRequest
		req.Params.Name = name
		req.Params.Arguments = args
		var err error
		res, err = s.mc.CallTool(ctx, req)
		return err
	})
	if err != nil {
		return toolFailure(name, err)
	}
	return convertResult(res), nil
}

// Close terminates the gateway session. It is best effort: failures are
// logged, not returned.
func (s *Session) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	if err := s.mc.Close(); err != nil {
		s.client.logger.Warn("session termination failed", "error", err)
	}
	return nil
}

func (s *Session) initialize(ctx context.Context) error {
	s.initMu.Lock()
	defer s.initMu.Unlock()
	if s.initialized {
		return nil
	}
	var req mcpgo.InitializeRequest
	req.Params.ProtocolVersion = ProtocolVersion
	req.Params.ClientInfo = s.client.info
	err := s.call(ctx, "initialize", func() error {
		_, err := s.mc.Initialize(ctx, req)
		return err
	})
	var mErr *Error
	switch {
	case errors.As(err, &mErr) && mErr.Code == mcpgo.METHOD_NOT_FOUND:
		// Stateless gateways may not implement the handshake.
	case err != nil:
		return fmt.Errorf("mcp: initialize: %w", err)
	}
	s.initialized = true
	return nil
}

func (s *Session) listTools(ctx context.Context) ([]mcpgo.Tool, error) {
	var (
		req   mcpgo.ListToolsRequest
		tools []mcpgo.Tool
	)
	for {
		var page *mcpgo.ListToolsResult
		err := s.call(ctx, "tools/list", func() error {
			var err error
			page, err = s.mc.ListToolsByPage(ctx, req)
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("mcp: list tools: %w", err)
		}
		tools = append(tools, page.Tools...)
		next := mcpgo.Cursor(strings.TrimSpace(string(page.NextCursor)))
		if next == "" || next == req.Params.Cursor {
			return tools, nil
		}
		req.Params.Cursor = next
	}
}

// call runs one gateway request. An unavailable gateway is retried once
// after the backoff; authentication failures and context expiry are not.
func (s *Session) call(ctx context.Context, method string, fn func() error) error {
	err := classify(ctx, fn())
	var mErr *Error
	if !errors.As(err, &mErr) || mErr.Kind != hangar.ToolUnavailable {
		return err
	}
	s.client.logger.Warn("gateway unavailable, retrying", "method", method, "error", err)
	if err := sleep(ctx, s.client.retryBackoff); err != nil {
		return err
	}
	return classify(ctx, fn())
}

// rpcArgumentErrors are the JSON-RPC errors that blame the request itself.
var rpcArgumentErrors = []struct {
	err  error
	code int
}{
	{mcpgo.ErrInvalidParams, mcpgo.INVALID_PARAMS},
	{mcpgo.ErrMethodNotFound, mcpgo.METHOD_NOT_FOUND},
	{mcpgo.ErrInvalidRequest, mcpgo.INVALID_REQUEST},
}

// classify maps an mcp-go error onto an *Error, leaving authentication
// failures and context expiry as they are.
func classify(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return context.Cause(ctx)
	}
	if errors.Is(err, hangar.ErrAuthUnavailable) {
		return err
	}
	var mErr *Error
	if errors.As(err, &mErr) {
		return mErr
	}
	for _, a := range rpcArgumentErrors {
		if errors.Is(err, a.err) {
			return &Error{Kind: hangar.ToolInvalidArguments, Code: a.code, Err: err}
		}
	}
	e := &Error{Kind: hangar.ToolUnavailable, Err: err}
	if errors.Is(err, mcpgo.ErrInternalError) {
		e.Code = mcpgo.INTERNAL_ERROR
	}
	return e
}

// toolFailure turns a failed tools/call into the result the engine sees, or
// into an error when the invocation must abort.
func toolFailure(name string, err error) (*hangar.ToolResult, error) {
	var mErr *Error
	if !errors.As(err, &mErr) {
		return nil, err
	}
	switch mErr.Kind {
	case hangar.ToolInvalidArguments:
		msg := mErr.Message
		if msg == "" && mErr.Err != nil {
			msg = mErr.Err.Error()
		}
		if msg == "" {
			msg = "the gateway rejected the call"
		}
		return hangar.ErrorResult(hangar.ToolInvalidArguments,
			fmt.Sprintf("invalid arguments for %s: %s", name, msg)), nil
	default:
		return hangar.ErrorResult(hangar.ToolUnavailable,
			fmt.Sprintf("tool %s is unavailable (%v); continue without its data", name, mErr)), nil
	}
}

func convertResult(res *mcpgo.CallToolResult) *hangar.ToolResult {
	out := &hangar.ToolResult{}
	if res == nil {
		return out
	}
	if res.StructuredContent != nil {
		if raw, err := json.Marshal(res.StructuredContent); err == nil {
			out.Structured = raw
		}
	}
	for _, c := range res.Content {
		switch c := c.(type) {
		case mcpgo.TextContent:
			out.Content = append(out.Content, hangar.TextBlock{Text: c.Text})
		case mcpgo.EmbeddedResource:
			if r, ok := c.Resource.(mcpgo.TextResourceContents); ok && r.Text != "" {
				out.Content = append(out.Content, hangar.TextBlock{Text: r.Text})
				continue
			}
			out.Content = append(out.Content, hangar.TextBlock{Text: "[resource content omitted]"})
		case mcpgo.ImageContent:
			out.Content = append(out.Content, hangar.TextBlock{Text: "[image content omitted: " + c.MIMEType + "]"})
		case mcpgo.AudioContent:
			out.Content = append(out.Content, hangar.TextBlock{Text: "[audio content omitted: " + c.MIMEType + "]"})
		case mcpgo.ResourceLink:
			out.Content = append(out.Content, hangar.TextBlock{Text: "[resource link: " + c.URI + "]"})
		}
	}
	if len(out.Content) == 0 && len(out.Structured) > 0 {
		out.Content = []hangar.ContentBlock{hangar.TextBlock{Text: string(out.Structured)}}
	}
	if res.IsError {
		out.IsError = true
		out.Kind = hangar.ToolReportedError
	}
	return out
}

func filterScope(tools []mcpgo.Tool, scope []string) []hangar.ToolDescriptor {
	out := make([]hangar.ToolDescriptor, 0, len(tools))
	seen := make(map[string]bool, len(tools))
	for _, t := range tools {
		if t.Name == "" || seen[t.Name] {
			continue
		}
		target, _ := hangar.SplitToolName(t.Name)
		if len(scope) > 0 && !slices.Contains(scope, target) {
			continue
		}
		seen[t.Name] = true
		out = append(out, hangar.ToolDescriptor{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: inputSchema(t),
			Target:      target,
		})
	}
	return out
}

// inputSchema returns the tool's schema, or nil when the gateway sent none.
func inputSchema(t mcpgo.Tool) json.RawMessage {
	if len(t.RawInputSchema) > 0 {
		return t.RawInputSchema
	}
	if t.InputSchema.Type == "" {
		return nil
	}
	raw, err := json.Marshal(t.InputSchema)
	if err != nil {
		return nil
	}
	return raw
}

func scopeKey(scope []string) string {
	s := slices.Clone(scope)
	slices.Sort(s)
	return strings.Join(slices.Compact(s), "\x00")
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return context.Cause(ctx)
	}
}
