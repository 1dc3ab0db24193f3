// Package logging builds the structured JSON logger used by every component
// and adapts invocation events into log records.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/fwojciec/hangar"
)

// New returns a JSON logger writing records at or above level to w. Every
// record carries the component attribute.
func New(w io.Writer, level slog.Level, component string) *slog.Logger {
	h := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	return slog.New(h).With("component", component)
}

// ParseLevel parses a level name such as "debug" or "WARN". An empty string
// is info.
func ParseLevel(s string) (slog.Level, error) {
	if strings.TrimSpace(s) == "" {
		return slog.LevelInfo, nil
	}
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("logging: invalid level %q: %w", s, hangar.ErrConfig)
	}
	return l, nil
}

type ctxKey struct{}

// WithLogger returns a context carrying l.
func WithLogger(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// FromContext returns the logger stored in ctx, or fallback when there is
// none.
func FromContext(ctx context.Context, fallback *slog.Logger) *slog.Logger {
	if l, ok := ctx.Value(ctxKey{}).(*slog.Logger); ok {
		return l
	}
	return fallback
}

// EventHandler logs invocation events to l. Tool calls and state changes
// are logged at debug level.
func EventHandler(l *slog.Logger) hangar.EventHandler {
	return func(e hangar.Event) {
		ctx := context.Background()
		switch ev := e.(type) {
		case hangar.EventRouted:
			attrs := []any{"domain", ev.Domain, "label", ev.Label, "fallback", ev.Fallback}
			if ev.Err != nil {
				l.Warn("classifier failed, using default domain", append(attrs, "error", ev.Err)...)
				return
			}
			l.Info("question routed", attrs...)
		case hangar.EventToolsDiscovered:
			if ev.Err != nil {
				l.Warn("tool discovery failed, continuing without tools", "domain", ev.Domain, "error", ev.Err)
				return
			}
			l.Info("tools discovered", "domain", ev.Domain, "count", len(ev.Tools))
		case hangar.EventStateChanged:
			l.Log(ctx, slog.LevelDebug, "state changed", "from", ev.From.String(), "to", ev.To.String(), "iteration", ev.Iteration)
		case hangar.EventToolCall:
			l.Log(ctx, slog.LevelDebug, "tool call", "tool", ev.Call.Name, "id", ev.Call.ID)
		case hangar.EventToolResult:
			if ev.IsError {
				l.Warn("tool call failed", "tool", ev.Call.Name, "kind", string(ev.Kind), "duration_ms", ev.Duration.Milliseconds())
				return
			}
			l.Log(ctx, slog.LevelDebug, "tool result", "tool", ev.Call.Name, "duration_ms", ev.Duration.Milliseconds())
		case hangar.EventAnswered:
			attrs := []any{
				"domain", ev.Domain,
				"degraded", ev.Degraded,
				"iterations", ev.Iterations,
				"input_tokens", ev.Usage.InputTokens,
				"output_tokens", ev.Usage.OutputTokens,
				"duration_ms", ev.Duration.Milliseconds(),
			}
			if ev.Err != nil {
				l.Error("invocation failed", append(attrs, "error", ev.Err)...)
				return
			}
			l.Info("invocation answered", attrs...)
		}
	}
}
