package router

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/fwojciec/hangar"
)

// Interface compliance checks.
var (
	_ hangar.Classifier = (*LLMClassifier)(nil)
	_ hangar.Classifier = (*KeywordClassifier)(nil)
)

const defaultLabelTokens = 16

// LLMClassifier asks the reasoning engine for a domain tag in a single call
// without tools.
type LLMClassifier struct {
	provider  hangar.Provider
	catalog   hangar.Catalog
	model     string
	maxTokens int
}

// LLMOption configures an LLMClassifier.
type LLMOption func(*LLMClassifier)

// WithModel sets the model used for classification.
func WithModel(model string) LLMOption {
	return func(c *LLMClassifier) { c.model = model }
}

// WithMaxTokens caps the length of the label.
func WithMaxTokens(n int) LLMOption {
	return func(c *LLMClassifier) { c.maxTokens = n }
}

// NewLLMClassifier creates a classifier over the domains of catalog.
func NewLLMClassifier(provider hangar.Provider, catalog hangar.Catalog, opts ...LLMOption) *LLMClassifier {
	c := &LLMClassifier{provider: provider, catalog: catalog, maxTokens: defaultLabelTokens}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Classify returns the engine's raw reply. It is not checked against the
// catalog here.
func (c *LLMClassifier) Classify(ctx context.Context, text string) (string, error) {
	temperature := 0.0
	msg, err := c.provider.Complete(ctx, hangar.Request{
		Model:        c.model,
		SystemPrompt: c.prompt(),
		Messages: []hangar.Message{hangar.UserMessage{
			Content: []hangar.ContentBlock{hangar.TextBlock{Text: text}},
		}},
		MaxTokens:   c.maxTokens,
		Temperature: &temperature,
	})
	if err != nil {
		return "", fmt.Errorf("router: classify: %w", err)
	}
	return msg.Text(), nil
}

func (c *LLMClassifier) prompt() string {
	var sb strings.Builder
	sb.WriteString("You route questions about an aircraft fleet to the right specialist.\n")
	sb.WriteString("Reply with exactly one domain tag from the list below and nothing else: ")
	sb.WriteString("no punctuation, no explanation.\n\nDomains:\n")
	for _, d := range c.catalog.Domains {
		sb.WriteString("- ")
		sb.WriteString(string(d.Name))
		if d.Description != "" {
			sb.WriteString(": ")
			sb.WriteString(d.Description)
		}
		sb.WriteByte('\n')
	}
	fmt.Fprintf(&sb, "\nIf the question fits none of them, reply %s.", c.catalog.Default)
	return sb.String()
}

// KeywordClassifier is a deterministic rule engine over the catalog's
// routing keywords. Keywords match whole words, case-insensitively. The
// domain with strictly the most keyword hits wins; a tie or no hits yields
// an empty label.
type KeywordClassifier struct {
	domains []keywordDomain
}

type keywordDomain struct {
	name     hangar.Domain
	keywords [][]string
}

// NewKeywordClassifier creates a classifier from the keywords of catalog.
func NewKeywordClassifier(catalog hangar.Catalog) *KeywordClassifier {
	c := &KeywordClassifier{}
	for _, d := range catalog.Domains {
		kd := keywordDomain{name: d.Name}
		for _, k := range d.Keywords {
			if words := tokenize(k); len(words) > 0 {
				kd.keywords = append(kd.keywords, words)
			}
		}
		c.domains = append(c.domains, kd)
	}
	return c
}

// Classify never fails.
func (c *KeywordClassifier) Classify(_ context.Context, text string) (string, error) {
	words := tokenize(text)
	best, bestHits, tie := hangar.Domain(""), 0, false
	for _, d := range c.domains {
		hits := 0
		for _, k := range d.keywords {
			hits += countPhrase(words, k)
		}
		switch {
		case hits > bestHits:
			best, bestHits, tie = d.name, hits, false
		case hits == bestHits && hits > 0:
			tie = true
		}
	}
	if bestHits == 0 || tie {
		return "", nil
	}
	return string(best), nil
}

func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func countPhrase(words, phrase []string) int {
	n := 0
	for i := 0; i+len(phrase) <= len(words); i++ {
		match := true
		for j, p := range phrase {
			if words[i+j] != p {
				match = false
				break
			}
		}
		if match {
			n++
		}
	}
	return n
}
