package hangar

import "time"

// Event is a sealed interface representing an observable step of an
// invocation. Events are purely informational: failures are reported through
// error returns, never through events.
// The unexported marker method prevents external implementations.
type Event interface {
	event()
}

// EventRouted records the router's decision.
type EventRouted struct {
	Domain   Domain
	Label    string // raw classifier label
	Fallback bool   // label matched no domain; default used
	Err      error  // classifier failure that forced the fallback, if any
}

func (EventRouted) event() {}

// EventToolsDiscovered records the tool set handed to a specialist.
type EventToolsDiscovered struct {
	Domain Domain
	Tools  []string
	Err    error // non-nil when discovery failed and the run continues without tools
}

func (EventToolsDiscovered) event() {}

// EventStateChanged records a transition of the specialist loop.
type EventStateChanged struct {
	From      LoopState
	To        LoopState
	Iteration int
}

func (EventStateChanged) event() {}

// EventToolCall signals that a tool call is about to be dispatched.
type EventToolCall struct {
	Call ToolCallBlock
}

func (EventToolCall) event() {}

// EventToolResult signals that a tool call finished.
type EventToolResult struct {
	Call     ToolCallBlock
	IsError  bool
	Kind     ToolErrorKind
	Duration time.Duration
}

func (EventToolResult) event() {}

// EventAnswered signals the end of an invocation.
type EventAnswered struct {
	Domain     Domain
	Degraded   bool
	Iterations int
	Usage      Usage
	Err        error
	Duration   time.Duration
}

func (EventAnswered) event() {}

// EventHandler receives events. Handlers may be called from multiple
// goroutines and must be safe for concurrent use.
type EventHandler func(Event)

// Emit calls h with e if h is non-nil.
func (h EventHandler) Emit(e Event) {
	if h != nil {
		h(e)
	}
}

// MultiHandler fans an event out to every non-nil handler, in order.
func MultiHandler(handlers ...EventHandler) EventHandler {
	var hs []EventHandler
	for _, h := range handlers {
		if h != nil {
			hs = append(hs, h)
		}
	}
	if len(hs) == 0 {
		return nil
	}
	return func(e Event) {
		for _, h := range hs {
			h(e)
		}
	}
}

// Interface compliance checks.
var (
	_ Event = EventRouted{}
	_ Event = EventToolsDiscovered{}
	_ Event = EventStateChanged{}
	_ Event = EventToolCall{}
	_ Event = EventToolResult{}
	_ Event = EventAnswered{}
)
