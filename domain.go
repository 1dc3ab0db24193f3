package hangar

import (
	"context"
	"fmt"
	"strings"
)

// Domain is the tag of a specialist, e.g. "maintenance" or "operations".
type Domain string

const (
	DomainMaintenance Domain = "maintenance"
	DomainOperations  Domain = "operations"
)

// DomainSpec binds a domain to its specialist configuration.
type DomainSpec struct {
	Name         Domain
	Description  string   // one line, shown to the classifier
	SystemPrompt string   // specialist system prompt
	Keywords     []string // routing keywords for rule-based classification
	ToolScope    []string // gateway targets visible to the specialist; empty = all
}

// Catalog is the fixed set of domains a question can be routed to.
type Catalog struct {
	Domains []DomainSpec
	Default Domain
}

// Lookup returns the spec for d.
func (c Catalog) Lookup(d Domain) (DomainSpec, bool) {
	for _, s := range c.Domains {
		if s.Name == d {
			return s, true
		}
	}
	return DomainSpec{}, false
}

// Tags returns the domain tags in catalog order.
func (c Catalog) Tags() []Domain {
	tags := make([]Domain, len(c.Domains))
	for i, s := range c.Domains {
		tags[i] = s.Name
	}
	return tags
}

// Match maps a classifier label to a domain. The label matches when, after
// trimming surrounding whitespace and lower-casing, it equals a tag exactly.
func (c Catalog) Match(label string) (DomainSpec, bool) {
	norm := Domain(strings.ToLower(strings.TrimSpace(label)))
	if norm == "" {
		return DomainSpec{}, false
	}
	return c.Lookup(norm)
}

// DefaultSpec returns the spec of the default domain.
func (c Catalog) DefaultSpec() DomainSpec {
	s, _ := c.Lookup(c.Default)
	return s
}

// Validate checks the catalog is usable for routing.
func (c Catalog) Validate() error {
	if len(c.Domains) == 0 {
		return fmt.Errorf("catalog has no domains: %w", ErrConfig)
	}
	seen := make(map[Domain]bool, len(c.Domains))
	for _, s := range c.Domains {
		if s.Name == "" {
			return fmt.Errorf("domain without a name: %w", ErrConfig)
		}
		if string(s.Name) != strings.ToLower(string(s.Name)) {
			return fmt.Errorf("domain %q must be lower-case: %w", s.Name, ErrConfig)
		}
		if seen[s.Name] {
			return fmt.Errorf("duplicate domain %q: %w", s.Name, ErrConfig)
		}
		seen[s.Name] = true
		if strings.TrimSpace(s.SystemPrompt) == "" {
			return fmt.Errorf("domain %q has no system prompt: %w", s.Name, ErrConfig)
		}
	}
	if !seen[c.Default] {
		return fmt.Errorf("default domain %q is not in the catalog: %w", c.Default, ErrConfig)
	}
	return nil
}

// Classifier maps question text to a raw domain label. The label is not
// trusted: callers resolve it against a Catalog and fall back to the default
// domain when it matches nothing. An empty label means "no opinion".
type Classifier interface {
	Classify(ctx context.Context, text string) (string, error)
}
