// Package http exposes the orchestrator over HTTP: a single invocation
// endpoint, a health check, and optionally the metrics endpoint.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/fwojciec/hangar"
	hangarjson "github.com/fwojciec/hangar/json"
	"github.com/fwojciec/hangar/logging"
	"github.com/fwojciec/hangar/orchestrator"
	"github.com/fwojciec/hangar/prometheus"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

// Request headers.
const (
	HeaderRequestID = "X-Request-Id"
	HeaderSessionID = "X-Amzn-Bedrock-AgentCore-Runtime-Session-Id"
)

// Route templates, also used as metric labels.
const (
	RouteInvocations = "/invocations"
	RoutePing        = "/ping"
	RouteMetrics     = "/metrics"
)

// Orchestrator answers questions.
type Orchestrator interface {
	Handle(ctx context.Context, q hangar.Question, opts ...orchestrator.HandleOption) (hangar.Answer, error)
}

// Archive persists completed invocations.
type Archive interface {
	Store(r hangarjson.Record) error
}

// Server serves the invocation API.
type Server struct {
	ln      net.Listener
	server  *http.Server
	router  *mux.Router
	addr    string
	orch    Orchestrator
	archive Archive
	metrics *prometheus.Metrics
	events  hangar.EventHandler
	logger  *slog.Logger
	now     func() time.Time
}

// Option configures a Server.
type Option func(*Server)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(s *Server) { s.addr = addr }
}

// WithLogger sets the logger. Each request logs with a request_id attribute.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithMetrics records request and invocation metrics in m and serves them
// at /metrics.
func WithMetrics(m *prometheus.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithArchive stores every answered invocation in a.
func WithArchive(a Archive) Option {
	return func(s *Server) { s.archive = a }
}

// WithEventHandler receives the events of every invocation, in addition to
// the logger and the metrics.
func WithEventHandler(h hangar.EventHandler) Option {
	return func(s *Server) { s.events = h }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

// NewServer returns a Server for o.
func NewServer(o Orchestrator, opts ...Option) *Server {
	s := &Server{
		addr:   ":8080",
		orch:   o,
		router: mux.NewRouter(),
		logger: slog.New(slog.DiscardHandler),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.router.Use(s.instrument)
	s.router.HandleFunc(RouteInvocations, s.handleInvocation).Methods(http.MethodPost)
	s.router.HandleFunc(RoutePing, s.handlePing).Methods(http.MethodGet)
	if s.metrics != nil {
		s.router.Handle(RouteMetrics, s.metrics.Handler()).Methods(http.MethodGet)
	}
	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not found", "")
	})

	s.server = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Open starts listening and serving in the background.
func (s *Server) Open() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("http: listen %s: %w", s.addr, err)
	}
	s.ln = ln
	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http server stopped", "error", err)
		}
	}()
	s.logger.Info("listening", "addr", ln.Addr().String())
	return nil
}

// Addr returns the listening address once the server is open.
func (s *Server) Addr() string {
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

// Close gracefully shuts the server down, waiting for in-flight
// invocations until ctx is done.
func (s *Server) Close(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":              "Healthy",
		"time_of_last_update": s.now().Unix(),
	})
}

func (s *Server) handleInvocation(w http.ResponseWriter, r *http.Request) {
	requestID := r.Header.Get(HeaderRequestID)
	if requestID == "" {
		requestID = uuid.NewString()
	}
	w.Header().Set(HeaderRequestID, requestID)
	logger := s.logger.With("request_id", requestID)
	ctx := logging.WithLogger(r.Context(), logger)

	q, err := hangarjson.DecodeInvocation(r.Body)
	if err != nil {
		logger.Info("rejected invocation", "error", err)
		writeError(w, http.StatusBadRequest, err.Error(), requestID)
		return
	}
	if q.SessionID == "" {
		q.SessionID = r.Header.Get(HeaderSessionID)
	}

	handlers := []hangar.EventHandler{logging.EventHandler(logger), s.events}
	if s.metrics != nil {
		handlers = append(handlers, s.metrics.EventHandler())
	}

	started := s.now()
	ans, err := s.orch.Handle(ctx, q, orchestrator.WithEventHandler(hangar.MultiHandler(handlers...)))
	if err != nil {
		writeError(w, ErrorStatus(err), err.Error(), requestID)
		return
	}

	if s.archive != nil {
		rec := hangarjson.NewRecord(requestID, q, ans, started, s.now())
		if err := s.archive.Store(rec); err != nil {
			logger.Warn("archive invocation", "error", err)
		}
	}

	body, err := hangarjson.MarshalAnswer(ans, requestID)
	if err != nil {
		logger.Error("encode answer", "error", err)
		writeError(w, http.StatusInternalServerError, "encode answer", requestID)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

// ErrorStatus maps an invocation error to an HTTP status code.
func ErrorStatus(err error) int {
	switch {
	case errors.Is(err, hangar.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, hangar.ErrAuthUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, hangar.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// instrument counts requests per route template and status code.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		if s.metrics == nil {
			return
		}
		route := "unmatched"
		if cur := mux.CurrentRoute(r); cur != nil {
			if tpl, err := cur.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		s.metrics.ObserveHTTP(route, rec.status)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func writeError(w http.ResponseWriter, status int, msg, requestID string) {
	writeJSON(w, status, hangarjson.ErrorResponse{Error: msg, RequestID: requestID})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
