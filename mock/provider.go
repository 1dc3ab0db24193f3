// Package mock provides test doubles for hangar interfaces using function fields.
package mock

import (
	"context"

	"github.com/fwojciec/hangar"
)

// Interface compliance checks.
var (
	_ hangar.Provider           = (*Provider)(nil)
	_ hangar.Classifier         = (*Classifier)(nil)
	_ hangar.CredentialProvider = (*CredentialProvider)(nil)
)

// Provider is a test double for hangar.Provider.
// Set CompleteFn before calling Complete.
type Provider struct {
	CompleteFn func(ctx context.Context, req hangar.Request) (hangar.AssistantMessage, error)
}

// Complete delegates to CompleteFn.
func (p *Provider) Complete(ctx context.Context, req hangar.Request) (hangar.AssistantMessage, error) {
	return p.CompleteFn(ctx, req)
}

// Classifier is a test double for hangar.Classifier.
type Classifier struct {
	ClassifyFn func(ctx context.Context, text string) (string, error)
}

// Classify delegates to ClassifyFn.
func (c *Classifier) Classify(ctx context.Context, text string) (string, error) {
	return c.ClassifyFn(ctx, text)
}

// CredentialProvider is a test double for hangar.CredentialProvider.
// InvalidateFn may be left nil.
type CredentialProvider struct {
	TokenFn      func(ctx context.Context) (hangar.Credential, error)
	InvalidateFn func(token string)
}

// Token delegates to TokenFn.
func (p *CredentialProvider) Token(ctx context.Context) (hangar.Credential, error) {
	return p.TokenFn(ctx)
}

// Invalidate delegates to InvalidateFn if set.
func (p *CredentialProvider) Invalidate(token string) {
	if p.InvalidateFn != nil {
		p.InvalidateFn(token)
	}
}
