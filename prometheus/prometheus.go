// Package prometheus exposes invocation metrics in the Prometheus format.
// Metrics are fed by invocation events and by the HTTP layer.
package prometheus

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/fwojciec/hangar"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "hangar"

// Outcome labels for invocations.
const (
	OutcomeOK       = "ok"
	OutcomeDegraded = "degraded"
	OutcomeTimeout  = "timeout"
	OutcomeAuth     = "auth_unavailable"
	OutcomeInvalid  = "invalid"
	OutcomeError    = "error"
)

// Metrics holds the collectors and the registry they are registered with.
type Metrics struct {
	registry *prometheus.Registry

	invocations  *prometheus.CounterVec
	duration     *prometheus.HistogramVec
	routes       *prometheus.CounterVec
	iterations   prometheus.Histogram
	tokens       *prometheus.CounterVec
	toolCalls    *prometheus.CounterVec
	toolDuration *prometheus.HistogramVec
	httpRequests *prometheus.CounterVec
}

// New creates Metrics registered with a fresh registry. When withRuntime is
// true Go runtime and process collectors are registered too.
func New(withRuntime bool) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		invocations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "invocations_total",
			Help:      "Invocations by domain and outcome.",
		}, []string{"domain", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "invocation_duration_seconds",
			Help:      "Wall-clock duration of invocations.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
		}, []string{"domain"}),
		routes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "routing_decisions_total",
			Help:      "Routing decisions by domain and whether the default was used.",
		}, []string{"domain", "fallback"}),
		iterations: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "agent_iterations",
			Help:      "Tool-use iterations per answered invocation.",
			Buckets:   []float64{0, 1, 2, 3, 4, 6, 8, 12},
		}),
		tokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tokens_total",
			Help:      "Reasoning engine tokens by direction.",
		}, []string{"direction"}),
		toolCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_calls_total",
			Help:      "Tool calls by target and outcome.",
		}, []string{"target", "outcome"}),
		toolDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tool_call_duration_seconds",
			Help:      "Duration of tool calls.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"target"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status code.",
		}, []string{"route", "code"}),
	}
	m.registry.MustRegister(
		m.invocations, m.duration, m.routes, m.iterations,
		m.tokens, m.toolCalls, m.toolDuration, m.httpRequests,
	)
	if withRuntime {
		m.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	return m
}

// Registry returns the registry the metrics are registered with.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveHTTP counts one HTTP request.
func (m *Metrics) ObserveHTTP(route string, code int) {
	m.httpRequests.WithLabelValues(route, strconv.Itoa(code)).Inc()
}

// EventHandler returns a handler that records invocation events.
func (m *Metrics) EventHandler() hangar.EventHandler {
	return func(e hangar.Event) {
		switch ev := e.(type) {
		case hangar.EventRouted:
			m.routes.WithLabelValues(string(ev.Domain), strconv.FormatBool(ev.Fallback)).Inc()
		case hangar.EventToolResult:
			target, _ := hangar.SplitToolName(ev.Call.Name)
			outcome := OutcomeOK
			if ev.IsError {
				outcome = string(ev.Kind)
			}
			m.toolCalls.WithLabelValues(target, outcome).Inc()
			m.toolDuration.WithLabelValues(target).Observe(ev.Duration.Seconds())
		case hangar.EventAnswered:
			domain := string(ev.Domain)
			m.invocations.WithLabelValues(domain, Outcome(ev.Err, ev.Degraded)).Inc()
			m.duration.WithLabelValues(domain).Observe(ev.Duration.Seconds())
			m.tokens.WithLabelValues("input").Add(float64(ev.Usage.InputTokens))
			m.tokens.WithLabelValues("output").Add(float64(ev.Usage.OutputTokens))
			if ev.Err == nil {
				m.iterations.Observe(float64(ev.Iterations))
			}
		}
	}
}

// Outcome classifies the result of an invocation.
func Outcome(err error, degraded bool) string {
	switch {
	case err == nil && degraded:
		return OutcomeDegraded
	case err == nil:
		return OutcomeOK
	case errors.Is(err, hangar.ErrTimeout):
		return OutcomeTimeout
	case errors.Is(err, hangar.ErrAuthUnavailable):
		return OutcomeAuth
	case errors.Is(err, hangar.ErrValidation):
		return OutcomeInvalid
	default:
		return OutcomeError
	}
}
