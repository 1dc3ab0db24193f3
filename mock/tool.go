package mock

import (
	"context"
	"encoding/json"

	"github.com/fwojciec/hangar"
)

// Interface compliance checks.
var (
	_ hangar.ToolInvoker = (*ToolInvoker)(nil)
	_ hangar.ToolSession = (*ToolSession)(nil)
	_ hangar.ToolGateway = (*ToolGateway)(nil)
)

// ToolInvoker is a test double for hangar.ToolInvoker.
// Set InvokeToolFn before calling InvokeTool.
type ToolInvoker struct {
	InvokeToolFn func(ctx context.Context, name string, args json.RawMessage) (*hangar.ToolResult, error)
}

// InvokeTool delegates to InvokeToolFn.
func (i *ToolInvoker) InvokeTool(ctx context.Context, name string, args json.RawMessage) (*hangar.ToolResult, error) {
	return i.InvokeToolFn(ctx, name, args)
}

// ToolSession is a test double for hangar.ToolSession. CloseFn may be left nil.
type ToolSession struct {
	DiscoverToolsFn func(ctx context.Context, scope []string) ([]hangar.ToolDescriptor, error)
	InvokeToolFn    func(ctx context.Context, name string, args json.RawMessage) (*hangar.ToolResult, error)
	CloseFn         func() error
}

// DiscoverTools delegates to DiscoverToolsFn.
func (s *ToolSession) DiscoverTools(ctx context.Context, scope []string) ([]hangar.ToolDescriptor, error) {
	return s.DiscoverToolsFn(ctx, scope)
}

// InvokeTool delegates to InvokeToolFn.
func (s *ToolSession) InvokeTool(ctx context.Context, name string, args json.RawMessage) (*hangar.ToolResult, error) {
	return s.InvokeToolFn(ctx, name, args)
}

// Close delegates to CloseFn if set.
func (s *ToolSession) Close() error {
	if s.CloseFn == nil {
		return nil
	}
	return s.CloseFn()
}

// ToolGateway is a test double for hangar.ToolGateway.
type ToolGateway struct {
	OpenFn func(ctx context.Context) (hangar.ToolSession, error)
}

// Open delegates to OpenFn.
func (g *ToolGateway) Open(ctx context.Context) (hangar.ToolSession, error) {
	return g.OpenFn(ctx)
}
