// Package aws loads AWS configuration and resolves startup secrets from
// AWS Secrets Manager.
package aws

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/fwojciec/hangar"
)

// LoadConfig loads the default AWS configuration chain. A non-empty region
// overrides the region from the environment.
func LoadConfig(ctx context.Context, region string) (awssdk.Config, error) {
	var opts []func(*config.LoadOptions) error
	if region != "" {
		opts = append(opts, config.WithRegion(region))
	}
	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return awssdk.Config{}, fmt.Errorf("aws: load config: %w", err)
	}
	return cfg, nil
}

// SecretsClient is the subset of the Secrets Manager client used by
// [SecretResolver].
type SecretsClient interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// SecretResolver reads single values out of Secrets Manager secrets.
type SecretResolver struct {
	client SecretsClient
}

// NewSecretResolver returns a resolver over client.
func NewSecretResolver(client SecretsClient) *SecretResolver {
	return &SecretResolver{client: client}
}

// NewSecretResolverFromConfig returns a resolver with a Secrets Manager
// client built from cfg.
func NewSecretResolverFromConfig(cfg awssdk.Config) *SecretResolver {
	return NewSecretResolver(secretsmanager.NewFromConfig(cfg))
}

// Resolve returns the value of secret id. A secret holding a JSON object
// yields the string under key; any other secret string is returned whole.
// Failures wrap [hangar.ErrConfig] because secrets are only read at startup.
func (r *SecretResolver) Resolve(ctx context.Context, id, key string) (string, error) {
	out, err := r.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: awssdk.String(id),
	})
	if err != nil {
		return "", fmt.Errorf("aws: get secret %s: %v: %w", mask(id), err, hangar.ErrConfig)
	}
	raw := awssdk.ToString(out.SecretString)
	if raw == "" {
		return "", fmt.Errorf("aws: secret %s has no string value: %w", mask(id), hangar.ErrConfig)
	}

	var fields map[string]any
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		return strings.TrimSpace(raw), nil
	}
	v, ok := fields[key].(string)
	if !ok || v == "" {
		return "", fmt.Errorf("aws: secret %s has no %q field: %w", mask(id), key, hangar.ErrConfig)
	}
	return v, nil
}

// mask hides all but the tail of a secret id in error messages.
func mask(id string) string {
	if len(id) <= 12 {
		return "***"
	}
	return "..." + id[len(id)-8:]
}
