package hangar

import (
	"context"
	"encoding/json"
	"strings"
)

// TargetSeparator joins a gateway target identifier and a tool name in the
// names the gateway advertises, e.g. "fleet-graph___read_neo4j_cypher".
const TargetSeparator = "___"

// ToolDescriptor describes a tool discovered from the gateway. Descriptors are
// fetched fresh for every invocation and never cached across invocations.
type ToolDescriptor struct {
	Name        string
	Description string
	InputSchema json.RawMessage
	Target      string // gateway target the tool belongs to; empty if unprefixed
}

// SplitToolName splits a gateway tool name into its target and bare tool name.
// Names without a target prefix return an empty target.
func SplitToolName(name string) (target, tool string) {
	if t, rest, ok := strings.Cut(name, TargetSeparator); ok {
		return t, rest
	}
	return "", name
}

// ToolErrorKind classifies a failed tool call.
type ToolErrorKind string

const (
	// ToolErrorNone marks a successful call.
	ToolErrorNone ToolErrorKind = ""
	// ToolUnavailable marks a transport-level failure reaching the gateway
	// or the tool behind it.
	ToolUnavailable ToolErrorKind = "unavailable"
	// ToolInvalidArguments marks a call the gateway rejected because of its
	// arguments or its name. Not retried; the engine is expected to correct it.
	ToolInvalidArguments ToolErrorKind = "invalid_arguments"
	// ToolReportedError marks a call that reached the tool, which reported
	// an execution error.
	ToolReportedError ToolErrorKind = "tool_error"
	// ToolNotExecuted marks a call requested after the iteration cap. It was
	// never sent to the gateway.
	ToolNotExecuted ToolErrorKind = "not_executed"
)

// ToolResult represents the outcome of a tool execution.
type ToolResult struct {
	Content    []ContentBlock
	Structured json.RawMessage // optional structured payload
	IsError    bool
	Kind       ToolErrorKind
}

// ErrorResult builds an error ToolResult with a single text block.
func ErrorResult(kind ToolErrorKind, text string) *ToolResult {
	return &ToolResult{
		Content: []ContentBlock{TextBlock{Text: text}},
		IsError: true,
		Kind:    kind,
	}
}

// ToolInvoker runs tools by name. InvokeTool returns an error only for
// failures that must abort the invocation (authentication, cancellation);
// every other failure is reported through ToolResult.IsError.
type ToolInvoker interface {
	InvokeTool(ctx context.Context, name string, args json.RawMessage) (*ToolResult, error)
}

// ToolSession is the per-invocation view of the tool gateway.
type ToolSession interface {
	ToolInvoker
	// DiscoverTools lists the tools visible under scope, a list of gateway
	// target identifiers. An empty scope lists every tool. Repeated calls
	// with the same scope within one session return the same set.
	DiscoverTools(ctx context.Context, scope []string) ([]ToolDescriptor, error)
	Close() error
}

// ToolGateway opens tool sessions. Implementations are shared across
// invocations; sessions are not.
type ToolGateway interface {
	Open(ctx context.Context) (ToolSession, error)
}
