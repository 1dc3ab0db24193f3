// Command graphtools serves the aircraft graph in Neo4j as read-only MCP
// tools, the target a gateway routes fleet-graph tool calls to.
//
// Usage:
//
//	NEO4J_URI=neo4j://localhost:7687 NEO4J_PASSWORD=... graphtools [flags]
//
// Flags:
//
//	-addr string      Listen address (default :8000)
//	-target string    Tool name prefix (default fleet-graph)
//	-row-limit int    Rows returned per query (default 100)
//
// With JWT_SECRET set every MCP request needs an HS256 bearer token, and
// /oauth2/token issues such tokens to LOCAL_CLIENT_ID / LOCAL_CLIENT_SECRET
// so the orchestrator can run against this server without an identity
// provider. JWT_PUBLIC_KEY_FILE verifies RS256 tokens instead.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/fwojciec/hangar"
	"github.com/fwojciec/hangar/jwt"
	"github.com/fwojciec/hangar/logging"
	"github.com/fwojciec/hangar/mcp"
	"github.com/fwojciec/hangar/neo4j"
	"github.com/gorilla/mux"
)

func main() {
	if err := run(os.Args[1:], os.Getenv); err != nil {
		fmt.Fprintf(os.Stderr, "graphtools: %v\n", err)
		os.Exit(1)
	}
}

type settings struct {
	addr     string
	target   string
	rowLimit int

	neo4jURI      string
	neo4jUser     string
	neo4jPassword string
	neo4jDatabase string

	jwtSecret     string
	jwtPublicKey  string
	jwtIssuer     string
	jwtAudience   string
	jwtScope      string
	clientID      string
	clientSecret  string
	logLevel      string
}

func loadSettings(args []string, getenv func(string) string) (settings, error) {
	fs := flag.NewFlagSet("graphtools", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	var s settings
	fs.StringVar(&s.addr, "addr", ":8000", "Listen address")
	fs.StringVar(&s.target, "target", "fleet-graph", "Tool name prefix")
	fs.IntVar(&s.rowLimit, "row-limit", 100, "Rows returned per query")
	if err := fs.Parse(args); err != nil {
		return settings{}, fmt.Errorf("%v: %w", err, hangar.ErrConfig)
	}

	s.neo4jURI = getenv("NEO4J_URI")
	s.neo4jUser = getenv("NEO4J_USERNAME")
	s.neo4jPassword = getenv("NEO4J_PASSWORD")
	s.neo4jDatabase = getenv("NEO4J_DATABASE")
	s.jwtSecret = getenv("JWT_SECRET")
	s.jwtPublicKey = getenv("JWT_PUBLIC_KEY_FILE")
	s.jwtIssuer = getenv("JWT_ISSUER")
	s.jwtAudience = getenv("JWT_AUDIENCE")
	s.jwtScope = getenv("JWT_SCOPE")
	s.clientID = getenv("LOCAL_CLIENT_ID")
	s.clientSecret = getenv("LOCAL_CLIENT_SECRET")
	s.logLevel = getenv("LOG_LEVEL")

	switch {
	case s.neo4jURI == "":
		return settings{}, fmt.Errorf("NEO4J_URI is required: %w", hangar.ErrConfig)
	case s.jwtSecret != "" && s.jwtPublicKey != "":
		return settings{}, fmt.Errorf("set only one of JWT_SECRET and JWT_PUBLIC_KEY_FILE: %w", hangar.ErrConfig)
	case (s.clientID == "") != (s.clientSecret == ""):
		return settings{}, fmt.Errorf("LOCAL_CLIENT_ID and LOCAL_CLIENT_SECRET go together: %w", hangar.ErrConfig)
	case s.clientID != "" && s.jwtSecret == "":
		return settings{}, fmt.Errorf("issuing tokens requires JWT_SECRET: %w", hangar.ErrConfig)
	}
	return s, nil
}

func run(args []string, getenv func(string) string) error {
	s, err := loadSettings(args, getenv)
	if err != nil {
		return err
	}
	level, err := logging.ParseLevel(s.logLevel)
	if err != nil {
		return err
	}
	logger := logging.New(os.Stderr, level, "graphtools")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := neo4j.Open(s.neo4jURI, s.neo4jUser, s.neo4jPassword, s.neo4jDatabase)
	if err != nil {
		return err
	}
	defer db.Close(context.Background())
	if err := db.Ping(ctx); err != nil {
		// The server still starts; tool calls report the failure.
		logger.Warn("neo4j unreachable", "error", err)
	}

	handler, err := newHandler(s, db, logger)
	if err != nil {
		return err
	}
	srv := &http.Server{Addr: s.addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	logger.Info("listening", "addr", s.addr, "target", s.target, "auth", s.jwtSecret != "" || s.jwtPublicKey != "")

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// newHandler routes /mcp to the tool server and, when configured,
// /oauth2/token to a local token issuer.
func newHandler(s settings, r neo4j.Reader, logger *slog.Logger) (http.Handler, error) {
	jwtOpts := []jwt.Option{jwt.WithLeeway(30 * time.Second)}
	if s.jwtIssuer != "" {
		jwtOpts = append(jwtOpts, jwt.WithIssuer(s.jwtIssuer))
	}
	if s.jwtAudience != "" {
		jwtOpts = append(jwtOpts, jwt.WithAudience(s.jwtAudience))
	}

	verifyOpts := slices.Clone(jwtOpts)
	if s.jwtScope != "" {
		verifyOpts = append(verifyOpts, jwt.WithScope(s.jwtScope))
	}

	serverOpts := []mcp.ServerOption{
		mcp.WithServerInfo("graphtools", "dev"),
		mcp.WithServerLogger(logger),
	}
	switch {
	case s.jwtSecret != "":
		serverOpts = append(serverOpts, mcp.WithAuthorizer(jwt.NewHMACVerifier([]byte(s.jwtSecret), verifyOpts...)))
	case s.jwtPublicKey != "":
		pemKey, err := os.ReadFile(s.jwtPublicKey)
		if err != nil {
			return nil, fmt.Errorf("read public key: %v: %w", err, hangar.ErrConfig)
		}
		v, err := jwt.NewRSAVerifier(pemKey, verifyOpts...)
		if err != nil {
			return nil, err
		}
		serverOpts = append(serverOpts, mcp.WithAuthorizer(v))
	}

	tools := neo4j.NewTools(r, neo4j.WithTarget(s.target), neo4j.WithRowLimit(s.rowLimit))
	router := mux.NewRouter()
	router.Handle("/mcp", mcp.NewServer(tools, serverOpts...)).Methods(http.MethodPost, http.MethodDelete)
	router.HandleFunc("/ping", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"status":"Healthy"}`)
	}).Methods(http.MethodGet)
	if s.clientID != "" {
		issuer := jwt.NewIssuer([]byte(s.jwtSecret), map[string]string{s.clientID: s.clientSecret}, jwtOpts...)
		router.Handle("/oauth2/token", issuer).Methods(http.MethodPost)
	}
	return router, nil
}
