// Package agent runs the specialist reason/act/observe loop between a
// Provider and the tools of one gateway session.
package agent

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/fwojciec/hangar"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultMaxIterations bounds the number of acting steps per run.
	DefaultMaxIterations = 8
	// DefaultParallelism bounds concurrent tool calls within one acting step.
	DefaultParallelism = 4
)

// transitions lists the legal moves of the loop. Done and Degraded are
// terminal and have no entry.
var transitions = map[hangar.LoopState][]hangar.LoopState{
	hangar.StateReasoning: {hangar.StateActing, hangar.StateDone, hangar.StateDegraded},
	hangar.StateActing:    {hangar.StateReasoning},
}

// Loop answers questions for one specialist at a time. A Loop holds only
// configuration and may be shared by concurrent runs.
type Loop struct {
	provider      hangar.Provider
	maxIterations int
	parallelism   int
	maxTokens     int
	maxLines      int
	maxBytes      int
	temperature   *float64
	now           func() time.Time
}

// Option configures a Loop.
type Option func(*Loop)

// WithMaxIterations sets the cap on acting steps. A run performs at most
// n+1 reasoning calls.
func WithMaxIterations(n int) Option {
	return func(l *Loop) { l.maxIterations = n }
}

// WithParallelism bounds concurrent tool calls within one acting step.
func WithParallelism(n int) Option {
	return func(l *Loop) { l.parallelism = n }
}

// WithMaxTokens sets the per-call output token limit.
func WithMaxTokens(n int) Option {
	return func(l *Loop) { l.maxTokens = n }
}

// WithResultLimit bounds the lines and bytes of each tool result passed
// back to the provider. Longer results are cut and marked as truncated.
func WithResultLimit(lines, bytes int) Option {
	return func(l *Loop) {
		if lines > 0 {
			l.maxLines = lines
		}
		if bytes > 0 {
			l.maxBytes = bytes
		}
	}
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) Option {
	return func(l *Loop) { l.temperature = &t }
}

// WithClock overrides the time source used for message timestamps.
func WithClock(now func() time.Time) Option {
	return func(l *Loop) { l.now = now }
}

// New creates a Loop backed by provider.
func New(provider hangar.Provider, opts ...Option) *Loop {
	l := &Loop{
		provider:      provider,
		maxIterations: DefaultMaxIterations,
		parallelism:   DefaultParallelism,
		maxLines:      DefaultMaxResultLines,
		maxBytes:      DefaultMaxResultBytes,
		now:           time.Now,
	}
	for _, o := range opts {
		o(l)
	}
	if l.maxIterations < 0 {
		l.maxIterations = 0
	}
	if l.parallelism < 1 {
		l.parallelism = 1
	}
	return l
}

// RunOption configures a single Answer invocation.
type RunOption func(*runConfig)

type runConfig struct {
	onEvent hangar.EventHandler
	model   string
}

// WithEventHandler sets a callback that receives each state transition, tool
// call and tool result during the run. Events from one acting step may be
// delivered concurrently.
func WithEventHandler(h hangar.EventHandler) RunOption {
	return func(c *runConfig) { c.onEvent = h }
}

// WithModel sets the model ID for provider requests during this run.
// Empty string means the provider uses its default model.
func WithModel(model string) RunOption {
	return func(c *runConfig) { c.model = model }
}

// Answer runs the loop for question q under spec, with tools as the only
// callable tools. It returns a Degraded answer, not an error, when the
// iteration cap is reached. Errors are returned for provider failures,
// authentication failures and context expiry.
func (l *Loop) Answer(ctx context.Context, q hangar.Question, spec hangar.DomainSpec, tools []hangar.ToolDescriptor, invoker hangar.ToolInvoker, opts ...RunOption) (hangar.Answer, error) {
	if strings.TrimSpace(q.Text) == "" {
		return hangar.Answer{}, fmt.Errorf("agent: empty question: %w", hangar.ErrValidation)
	}
	var cfg runConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	r := &run{
		loop:       l,
		cfg:        cfg,
		transcript: hangar.NewTranscript(spec.SystemPrompt, q, l.now()),
		tools:      tools,
		known:      make(map[string]bool, len(tools)),
		invoker:    invoker,
		state:      hangar.StateReasoning,
	}
	for _, t := range tools {
		r.known[t.Name] = true
	}

	for !r.state.Terminal() {
		var err error
		switch r.state {
		case hangar.StateReasoning:
			err = r.reason(ctx)
		case hangar.StateActing:
			err = r.act(ctx)
		}
		if err != nil {
			return hangar.Answer{}, err
		}
	}
	return r.answer(spec.Name), nil
}

// run is the state of one Answer call.
type run struct {
	loop       *Loop
	cfg        runConfig
	transcript *hangar.Transcript
	tools      []hangar.ToolDescriptor
	known      map[string]bool
	invoker    hangar.ToolInvoker

	state      hangar.LoopState
	pending    []hangar.ToolCallBlock
	acting     int
	usage      hangar.Usage
	emptyReply bool
}

func (r *run) transition(to hangar.LoopState) error {
	if !slices.Contains(transitions[r.state], to) {
		return fmt.Errorf("agent: illegal transition %s -> %s", r.state, to)
	}
	from := r.state
	r.state = to
	r.cfg.onEvent.Emit(hangar.EventStateChanged{From: from, To: to, Iteration: r.acting})
	return nil
}

func (r *run) reason(ctx context.Context) error {
	if ctx.Err() != nil {
		return context.Cause(ctx)
	}
	req := hangar.Request{
		Model:        r.cfg.model,
		SystemPrompt: r.transcript.SystemPrompt,
		Messages:     slices.Clone(r.transcript.Messages),
		Tools:        r.tools,
		MaxTokens:    r.loop.maxTokens,
		Temperature:  r.loop.temperature,
	}
	msg, err := r.loop.provider.Complete(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			return context.Cause(ctx)
		}
		return fmt.Errorf("agent: reasoning: %w", err)
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = r.loop.now()
	}
	r.usage = r.usage.Add(msg.Usage)
	r.transcript.Append(msg)

	calls := msg.ToolCalls()
	switch {
	case len(calls) == 0 && strings.TrimSpace(msg.Text()) == "":
		r.emptyReply = true
		return r.transition(hangar.StateDegraded)
	case len(calls) == 0:
		return r.transition(hangar.StateDone)
	case r.acting >= r.loop.maxIterations:
		r.transcript.Append(r.skipped(calls)...)
		return r.transition(hangar.StateDegraded)
	default:
		r.pending = calls
		return r.transition(hangar.StateActing)
	}
}

func (r *run) act(ctx context.Context) error {
	calls := r.pending
	r.pending = nil
	results := make([]hangar.Message, len(calls))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.loop.parallelism)
	for i, call := range calls {
		g.Go(func() error {
			msg, err := r.execute(gctx, call)
			if err != nil {
				return err
			}
			results[i] = msg
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		if ctx.Err() != nil {
			return context.Cause(ctx)
		}
		return err
	}

	r.transcript.Append(results...)
	r.acting++
	return r.transition(hangar.StateReasoning)
}

// execute runs one tool call. Only authentication failures and context
// expiry are returned as errors; everything else becomes an error result the
// engine can react to.
func (r *run) execute(ctx context.Context, call hangar.ToolCallBlock) (hangar.ToolResultMessage, error) {
	r.cfg.onEvent.Emit(hangar.EventToolCall{Call: call})
	start := r.loop.now()

	var res *hangar.ToolResult
	if !r.known[call.Name] {
		res = hangar.ErrorResult(hangar.ToolInvalidArguments, r.unknownToolText(call.Name))
	} else {
		var err error
		res, err = r.invoker.InvokeTool(ctx, call.Name, call.Arguments)
		switch {
		case err == nil:
		case errors.Is(err, hangar.ErrAuthUnavailable):
			return hangar.ToolResultMessage{}, fmt.Errorf("agent: tool %s: %w", call.Name, err)
		case ctx.Err() != nil:
			return hangar.ToolResultMessage{}, context.Cause(ctx)
		case errors.Is(err, hangar.ErrToolArgument):
			res = hangar.ErrorResult(hangar.ToolInvalidArguments, err.Error())
		default:
			res = hangar.ErrorResult(hangar.ToolUnavailable, err.Error())
		}
	}
	if res == nil {
		res = &hangar.ToolResult{}
	}
	content := cleanContent(res.Content, r.loop.maxLines, r.loop.maxBytes)
	if len(content) == 0 {
		content = []hangar.ContentBlock{hangar.TextBlock{Text: "(no output)"}}
	}

	r.cfg.onEvent.Emit(hangar.EventToolResult{
		Call:     call,
		IsError:  res.IsError,
		Kind:     res.Kind,
		Duration: r.loop.now().Sub(start),
	})
	return hangar.ToolResultMessage{
		ToolCallID: call.ID,
		ToolName:   call.Name,
		Content:    content,
		IsError:    res.IsError,
		ErrorKind:  res.Kind,
		Timestamp:  r.loop.now(),
	}, nil
}

// skipped records the calls requested after the cap so that every call in
// the transcript has a result.
func (r *run) skipped(calls []hangar.ToolCallBlock) []hangar.Message {
	msgs := make([]hangar.Message, len(calls))
	for i, call := range calls {
		msgs[i] = hangar.ToolResultMessage{
			ToolCallID: call.ID,
			ToolName:   call.Name,
			Content:    []hangar.ContentBlock{hangar.TextBlock{Text: "not executed: " + hangar.ErrIterationBudgetExceeded.Error()}},
			IsError:    true,
			ErrorKind:  hangar.ToolNotExecuted,
			Timestamp:  r.loop.now(),
		}
	}
	return msgs
}

func (r *run) unknownToolText(name string) string {
	names := make([]string, len(r.tools))
	for i, t := range r.tools {
		names[i] = t.Name
	}
	if len(names) == 0 {
		return fmt.Sprintf("unknown tool %q: no tools are available, answer from the conversation so far", name)
	}
	return fmt.Sprintf("unknown tool %q: available tools are %s", name, strings.Join(names, ", "))
}

func (r *run) answer(domain hangar.Domain) hangar.Answer {
	a := hangar.Answer{
		Domain:     domain,
		Messages:   r.transcript.Messages,
		Degraded:   r.state == hangar.StateDegraded,
		Iterations: r.acting,
		Usage:      r.usage,
	}
	if a.Degraded {
		caveat := fmt.Sprintf("Note: this answer is incomplete. The investigation stopped after %d tool-use iterations before reaching a conclusion.", r.loop.maxIterations)
		if r.emptyReply {
			caveat = "Note: this answer is incomplete. The reasoning engine returned an empty reply."
		}
		a.Text = degradedText(r.transcript.LastAssistantText(), caveat)
		return a
	}
	last := r.transcript.Messages[len(r.transcript.Messages)-1].(hangar.AssistantMessage)
	a.Text = last.Text()
	return a
}

func degradedText(partial, caveat string) string {
	if strings.TrimSpace(partial) == "" {
		return fmt.Sprintf("I could not finish investigating this question. %s", caveat)
	}
	return partial + "\n\n" + caveat
}
