package main

import (
	"context"
	"fmt"
	"log/slog"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/fwojciec/hangar"
	"github.com/fwojciec/hangar/anthropic"
	"github.com/fwojciec/hangar/bedrock"
	"github.com/fwojciec/hangar/config"
	"github.com/fwojciec/hangar/gemini"
	"github.com/fwojciec/hangar/openai"
	"github.com/fwojciec/hangar/router"
)

// secretKey is the field read from a JSON Secrets Manager secret.
const secretKey = "client_secret"

type secretResolver interface {
	Resolve(ctx context.Context, id, key string) (string, error)
}

// clientSecret returns the configured client secret, fetching it from
// Secrets Manager when only its name is configured. newResolver is only
// called in that case.
func clientSecret(ctx context.Context, cfg config.Config, newResolver func() secretResolver) (string, error) {
	if cfg.ClientSecret != "" {
		return cfg.ClientSecret, nil
	}
	return newResolver().Resolve(ctx, cfg.ClientSecretName, secretKey)
}

// newProvider constructs the reasoning engine selected by cfg. The AWS
// config is only used for Bedrock.
func newProvider(ctx context.Context, cfg config.Config, awsCfg awssdk.Config, logger *slog.Logger) (hangar.Provider, error) {
	switch cfg.Provider {
	case config.ProviderBedrock:
		var opts []bedrock.Option
		if cfg.Model != "" {
			opts = append(opts, bedrock.WithModel(cfg.Model))
		}
		return bedrock.NewFromConfig(awsCfg, opts...), nil
	case config.ProviderAnthropic:
		var opts []anthropic.Option
		if cfg.BaseURL != "" {
			opts = append(opts, anthropic.WithBaseURL(cfg.BaseURL))
		}
		return anthropic.New(cfg.APIKey, opts...), nil
	case config.ProviderGemini:
		opts := []gemini.Option{gemini.WithLogger(logger)}
		if cfg.BaseURL != "" {
			opts = append(opts, gemini.WithBaseURL(cfg.BaseURL))
		}
		if cfg.Model != "" {
			opts = append(opts, gemini.WithModel(cfg.Model))
		}
		client, err := gemini.New(ctx, cfg.APIKey, opts...)
		if err != nil {
			return nil, fmt.Errorf("gemini: %w", err)
		}
		return client, nil
	case config.ProviderOpenAI:
		var opts []openai.Option
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		if cfg.Model != "" {
			opts = append(opts, openai.WithModel(cfg.Model))
		}
		return openai.New(cfg.APIKey, opts...), nil
	default:
		return nil, fmt.Errorf("unknown provider %q: %w", cfg.Provider, hangar.ErrConfig)
	}
}

// newClassifier returns the classifier selected by cfg. The LLM classifier
// shares the specialist provider.
func newClassifier(cfg config.Config, provider hangar.Provider) hangar.Classifier {
	if cfg.Classifier == config.ClassifierKeyword {
		return router.NewKeywordClassifier(cfg.Catalog)
	}
	var opts []router.LLMOption
	model := cfg.ClassifierModel
	if model == "" {
		model = cfg.Model
	}
	if model != "" {
		opts = append(opts, router.WithModel(model))
	}
	return router.NewLLMClassifier(provider, cfg.Catalog, opts...)
}
