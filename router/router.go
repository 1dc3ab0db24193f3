// Package router maps a question to exactly one specialist domain.
package router

import (
	"context"
	"errors"
	"fmt"

	"github.com/fwojciec/hangar"
)

// Router classifies questions against a fixed catalog. Labels that match no
// domain, and classifier failures other than authentication or context
// expiry, resolve to the catalog's default domain.
type Router struct {
	catalog    hangar.Catalog
	classifier hangar.Classifier
}

// New creates a Router. It returns an error wrapping hangar.ErrConfig when
// the catalog is invalid.
func New(catalog hangar.Catalog, classifier hangar.Classifier) (*Router, error) {
	if err := catalog.Validate(); err != nil {
		return nil, fmt.Errorf("router: %w", err)
	}
	if classifier == nil {
		return nil, fmt.Errorf("router: classifier is required: %w", hangar.ErrConfig)
	}
	return &Router{catalog: catalog, classifier: classifier}, nil
}

// RouteOption configures a single Route call.
type RouteOption func(*routeConfig)

type routeConfig struct {
	onEvent hangar.EventHandler
}

// WithEventHandler sets a callback that receives the routing decision.
func WithEventHandler(h hangar.EventHandler) RouteOption {
	return func(c *routeConfig) { c.onEvent = h }
}

// Route returns the spec of the domain q belongs to.
func (r *Router) Route(ctx context.Context, q hangar.Question, opts ...RouteOption) (hangar.DomainSpec, error) {
	var cfg routeConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	label, err := r.classifier.Classify(ctx, q.Text)
	if err != nil {
		switch {
		case errors.Is(err, hangar.ErrAuthUnavailable):
			return hangar.DomainSpec{}, fmt.Errorf("router: %w", err)
		case ctx.Err() != nil:
			return hangar.DomainSpec{}, context.Cause(ctx)
		}
		label = ""
	}

	spec, ok := r.catalog.Match(label)
	if !ok {
		spec = r.catalog.DefaultSpec()
	}
	cfg.onEvent.Emit(hangar.EventRouted{Domain: spec.Name, Label: label, Fallback: !ok, Err: err})
	return spec, nil
}
