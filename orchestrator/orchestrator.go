// Package orchestrator composes routing, tool discovery and the specialist
// loop into a single request/response cycle.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fwojciec/hangar"
	"github.com/fwojciec/hangar/agent"
	"github.com/fwojciec/hangar/router"
)

// DefaultTimeout is the wall-clock budget of one invocation.
const DefaultTimeout = 120 * time.Second

// Orchestrator is the single entry point for answering questions. It holds
// no state across invocations; the only shared mutable state lives behind the
// gateway's credential provider.
type Orchestrator struct {
	router  *router.Router
	gateway hangar.ToolGateway
	loop    *agent.Loop
	timeout time.Duration
	model   string
	now     func() time.Time
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithTimeout sets the per-invocation budget.
func WithTimeout(d time.Duration) Option {
	return func(o *Orchestrator) { o.timeout = d }
}

// WithModel sets the model used by specialists.
func WithModel(model string) Option {
	return func(o *Orchestrator) { o.model = model }
}

// WithClock overrides the time source used to measure invocations.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// New creates an Orchestrator.
func New(r *router.Router, gateway hangar.ToolGateway, loop *agent.Loop, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		router:  r,
		gateway: gateway,
		loop:    loop,
		timeout: DefaultTimeout,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// HandleOption configures a single Handle call.
type HandleOption func(*handleConfig)

type handleConfig struct {
	onEvent hangar.EventHandler
}

// WithEventHandler sets a callback that receives every event of the
// invocation. Events are advisory and never change control flow.
func WithEventHandler(h hangar.EventHandler) HandleOption {
	return func(c *handleConfig) { c.onEvent = h }
}

// Handle answers q: route, discover the domain's tools, run the specialist.
// Only authentication failures, timeouts and reasoning-engine failures are
// returned as errors; exceeding the budget yields hangar.ErrTimeout.
func (o *Orchestrator) Handle(ctx context.Context, q hangar.Question, opts ...HandleOption) (hangar.Answer, error) {
	var cfg handleConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	if strings.TrimSpace(q.Text) == "" {
		return hangar.Answer{}, fmt.Errorf("orchestrator: empty question: %w", hangar.ErrValidation)
	}

	start := o.now()
	ctx, cancel := context.WithTimeoutCause(ctx, o.timeout, hangar.ErrTimeout)
	defer cancel()

	ans, err := o.handle(ctx, q, cfg.onEvent)
	if err != nil && errors.Is(context.Cause(ctx), hangar.ErrTimeout) {
		err = fmt.Errorf("orchestrator: %w after %s", hangar.ErrTimeout, o.timeout)
	}
	cfg.onEvent.Emit(hangar.EventAnswered{
		Domain:     ans.Domain,
		Degraded:   ans.Degraded,
		Iterations: ans.Iterations,
		Usage:      ans.Usage,
		Err:        err,
		Duration:   o.now().Sub(start),
	})
	if err != nil {
		return hangar.Answer{}, err
	}
	return ans, nil
}

func (o *Orchestrator) handle(ctx context.Context, q hangar.Question, h hangar.EventHandler) (hangar.Answer, error) {
	spec, err := o.router.Route(ctx, q, router.WithEventHandler(h))
	if err != nil {
		return hangar.Answer{}, err
	}

	session, err := o.gateway.Open(ctx)
	if err != nil {
		return hangar.Answer{Domain: spec.Name}, fmt.Errorf("orchestrator: open gateway session: %w", err)
	}
	defer session.Close()

	tools, err := session.DiscoverTools(ctx, spec.ToolScope)
	if err != nil {
		if errors.Is(err, hangar.ErrAuthUnavailable) || ctx.Err() != nil {
			return hangar.Answer{Domain: spec.Name}, err
		}
		// The specialist still answers, without tools.
		tools = nil
	}
	h.Emit(hangar.EventToolsDiscovered{Domain: spec.Name, Tools: toolNames(tools), Err: err})

	ans, err := o.loop.Answer(ctx, q, spec, tools, session,
		agent.WithEventHandler(h),
		agent.WithModel(o.model),
	)
	if err != nil {
		return hangar.Answer{Domain: spec.Name}, err
	}
	return ans, nil
}

func toolNames(tools []hangar.ToolDescriptor) []string {
	names := make([]string, len(tools))
	for i, t := range tools {
		names[i] = t.Name
	}
	return names
}
