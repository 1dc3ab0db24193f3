// Package bedrock implements [hangar.Provider] for Anthropic models served by
// Amazon Bedrock through the InvokeModel API.
package bedrock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/fwojciec/hangar"
	"github.com/fwojciec/hangar/anthropic"
)

// DefaultModel is the Bedrock model id used when a request names none.
const DefaultModel = "us.anthropic.claude-sonnet-4-20250514-v1:0"

// Interface compliance check.
var _ hangar.Provider = (*Provider)(nil)

// Invoker is the subset of the Bedrock runtime client used by [Provider].
type Invoker interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

// Provider sends requests to Bedrock.
type Provider struct {
	client Invoker
	model  string
	now    func() time.Time
}

// Option configures a [Provider].
type Option func(*Provider)

// WithModel sets the default model id.
func WithModel(model string) Option {
	return func(p *Provider) { p.model = model }
}

// WithClock overrides the time source used for message timestamps.
func WithClock(now func() time.Time) Option {
	return func(p *Provider) { p.now = now }
}

// New creates a [Provider] over client.
func New(client Invoker, opts ...Option) *Provider {
	p := &Provider{client: client, model: DefaultModel, now: time.Now}
	for _, o := range opts {
		o(p)
	}
	return p
}

// NewFromConfig creates a [Provider] with a Bedrock runtime client built from
// cfg.
func NewFromConfig(cfg aws.Config, opts ...Option) *Provider {
	return New(bedrockruntime.NewFromConfig(cfg), opts...)
}

// Complete implements [hangar.Provider].
func (p *Provider) Complete(ctx context.Context, req hangar.Request) (hangar.AssistantMessage, error) {
	if err := req.Validate(); err != nil {
		return hangar.AssistantMessage{}, fmt.Errorf("bedrock: %w", err)
	}
	body, err := anthropic.EncodeBedrock(req)
	if err != nil {
		return hangar.AssistantMessage{}, fmt.Errorf("bedrock: %w", err)
	}
	model := req.Model
	if model == "" {
		model = p.model
	}
	out, err := p.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(model),
		Body:        body,
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
	})
	if err != nil {
		return hangar.AssistantMessage{}, fmt.Errorf("bedrock: invoke %s: %w", model, err)
	}
	if out == nil || len(out.Body) == 0 {
		return hangar.AssistantMessage{}, errors.New("bedrock: empty response body")
	}
	msg, err := anthropic.DecodeResponse(out.Body)
	if err != nil {
		return hangar.AssistantMessage{}, fmt.Errorf("bedrock: %w", err)
	}
	msg.Timestamp = p.now()
	return msg, nil
}
