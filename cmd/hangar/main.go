// Command hangar answers questions about an aircraft fleet over HTTP.
// Each question is routed to a domain specialist that reasons with the
// configured model and calls tools exposed by an MCP gateway.
//
// Usage:
//
//	GATEWAY_URL=https://... TOKEN_URL=https://... CLIENT_ID=... CLIENT_SECRET=... hangar
//
// Environment:
//
//	HANGAR_ADDR              Listen address (default :8080)
//	HANGAR_PROVIDER          bedrock, anthropic, gemini or openai (default bedrock)
//	HANGAR_MODEL             Specialist model id (provider default if unset)
//	HANGAR_CLASSIFIER        llm or keyword (default llm)
//	HANGAR_CLASSIFIER_MODEL  Classifier model id (specialist model if unset)
//	HANGAR_PROVIDER_URL      Override the provider API base URL
//	HANGAR_TIMEOUT           Per-invocation budget (default 120s)
//	HANGAR_MAX_ITERATIONS    Tool rounds per invocation (default 8)
//	HANGAR_TOOL_PARALLELISM  Concurrent tool calls (default 4)
//	GATEWAY_URL              MCP gateway endpoint
//	TOKEN_URL                OAuth2 token endpoint
//	CLIENT_ID                OAuth2 client id
//	CLIENT_SECRET            OAuth2 client secret
//	CLIENT_SECRET_NAME       Secrets Manager id holding the client secret
//	OAUTH_SCOPE              Scope requested with every token
//	DOMAINS_FILE             Domain catalog YAML (built-in catalog if unset)
//	TRANSCRIPT_DIR           Archive every answered invocation here
//	LOG_LEVEL                debug, info, warn or error
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/fwojciec/hangar/agent"
	hangaraws "github.com/fwojciec/hangar/aws"
	"github.com/fwojciec/hangar/config"
	hangarhttp "github.com/fwojciec/hangar/http"
	hangarjson "github.com/fwojciec/hangar/json"
	"github.com/fwojciec/hangar/logging"
	"github.com/fwojciec/hangar/mcp"
	"github.com/fwojciec/hangar/oauth"
	"github.com/fwojciec/hangar/orchestrator"
	"github.com/fwojciec/hangar/prometheus"
	"github.com/fwojciec/hangar/router"
)

// shutdownGrace is added to the invocation timeout when draining requests.
const shutdownGrace = 5 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "hangar: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Env vars are read here and passed on as values.
	cfg, err := config.Load(os.Getenv)
	if err != nil {
		return err
	}
	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	logger := logging.New(os.Stderr, level, "hangar")

	var awsCfg awssdk.Config
	if needsAWS(cfg) {
		awsCfg, err = hangaraws.LoadConfig(ctx, cfg.AWSRegion)
		if err != nil {
			return err
		}
	}

	secret, err := clientSecret(ctx, cfg, func() secretResolver {
		return hangaraws.NewSecretResolverFromConfig(awsCfg)
	})
	if err != nil {
		return err
	}

	provider, err := newProvider(ctx, cfg, awsCfg, logger)
	if err != nil {
		return err
	}

	creds, err := oauth.New(oauth.Config{
		TokenURL:     cfg.TokenURL,
		ClientID:     cfg.ClientID,
		ClientSecret: secret,
		Scope:        cfg.Scope,
	}, oauth.WithLogger(logging.New(os.Stderr, level, "oauth")))
	if err != nil {
		return err
	}
	gateway := mcp.New(cfg.GatewayURL, creds,
		mcp.WithClientInfo("hangar", version),
		mcp.WithLogger(logging.New(os.Stderr, level, "mcp")))

	rt, err := router.New(cfg.Catalog, newClassifier(cfg, provider))
	if err != nil {
		return err
	}
	loop := agent.New(provider,
		agent.WithMaxIterations(cfg.MaxIterations),
		agent.WithParallelism(cfg.Parallelism))
	orch := orchestrator.New(rt, gateway, loop,
		orchestrator.WithTimeout(cfg.Timeout),
		orchestrator.WithModel(cfg.Model))

	opts := []hangarhttp.Option{
		hangarhttp.WithAddr(cfg.Addr),
		hangarhttp.WithLogger(logging.New(os.Stderr, level, "http")),
		hangarhttp.WithMetrics(prometheus.New(true)),
	}
	if cfg.TranscriptDir != "" {
		opts = append(opts, hangarhttp.WithArchive(hangarjson.NewArchive(cfg.TranscriptDir)))
	}
	srv := hangarhttp.NewServer(orch, opts...)
	if err := srv.Open(); err != nil {
		return err
	}
	logger.Info("started",
		"provider", cfg.Provider,
		"classifier", cfg.Classifier,
		"domains", len(cfg.Catalog.Domains),
		"gateway", cfg.GatewayURL)

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Timeout+shutdownGrace)
	defer cancel()
	if err := srv.Close(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func needsAWS(cfg config.Config) bool {
	return cfg.Provider == config.ProviderBedrock || (cfg.ClientSecret == "" && cfg.ClientSecretName != "")
}
