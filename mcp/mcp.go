// Package mcp connects hangar to Model Context Protocol tool servers over
// streamable HTTP. The Client implements hangar.ToolGateway on top of the
// mcp-go client; the Server exposes a ToolProvider through the mcp-go
// streamable HTTP server.
package mcp

import (
	"fmt"
	"log/slog"

	"github.com/mark3labs/mcp-go/client/transport"
	mcpgo "github.com/mark3labs/mcp-go/mcp"
)

// ProtocolVersion is the MCP revision requested during initialization.
const ProtocolVersion = mcpgo.LATEST_PROTOCOL_VERSION

// HeaderSessionID carries the gateway session identifier.
const HeaderSessionID = transport.HeaderKeySessionID

// sdkLogger routes mcp-go log output to slog.
type sdkLogger struct {
	l *slog.Logger
}

func (s sdkLogger) Infof(format string, v ...any) {
	s.l.Debug(fmt.Sprintf(format, v...))
}

func (s sdkLogger) Errorf(format string, v ...any) {
	s.l.Warn(fmt.Sprintf(format, v...))
}
