// Package config assembles startup configuration from environment values
// and the domain catalog file.
package config

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/fwojciec/hangar"
	"gopkg.in/yaml.v3"
)

//go:embed domains.yaml
var defaultCatalog []byte

// Provider names accepted in HANGAR_PROVIDER.
const (
	ProviderBedrock   = "bedrock"
	ProviderAnthropic = "anthropic"
	ProviderGemini    = "gemini"
	ProviderOpenAI    = "openai"
)

// Classifier names accepted in HANGAR_CLASSIFIER.
const (
	ClassifierLLM     = "llm"
	ClassifierKeyword = "keyword"
)

// Defaults applied when the corresponding variable is unset.
const (
	DefaultAddr          = ":8080"
	DefaultTimeout       = 120 * time.Second
	DefaultMaxIterations = 8
	DefaultParallelism   = 4
)

// Config is the resolved startup configuration of the invocation server.
type Config struct {
	Addr     string
	LogLevel string

	Provider        string
	Model           string
	ClassifierModel string
	APIKey          string
	BaseURL         string
	AWSRegion       string
	Classifier      string

	GatewayURL       string
	TokenURL         string
	ClientID         string
	ClientSecret     string
	ClientSecretName string // Secrets Manager id; used when ClientSecret is empty
	Scope            string

	Timeout       time.Duration
	MaxIterations int
	Parallelism   int

	DomainsFile   string
	TranscriptDir string

	Catalog hangar.Catalog
}

// Load reads configuration through getenv. Missing required values and
// malformed numbers are reported together as one ErrConfig error.
func Load(getenv func(string) string) (Config, error) {
	var problems []string
	str := func(key, def string) string {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			return v
		}
		return def
	}
	required := func(key string) string {
		v := str(key, "")
		if v == "" {
			problems = append(problems, key+" is required")
		}
		return v
	}
	integer := func(key string, def int) int {
		v := str(key, "")
		if v == "" {
			return def
		}
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			problems = append(problems, fmt.Sprintf("%s must be a non-negative integer, got %q", key, v))
			return def
		}
		return n
	}
	duration := func(key string, def time.Duration) time.Duration {
		v := str(key, "")
		if v == "" {
			return def
		}
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			problems = append(problems, fmt.Sprintf("%s must be a positive duration, got %q", key, v))
			return def
		}
		return d
	}

	cfg := Config{
		Addr:     str("HANGAR_ADDR", DefaultAddr),
		LogLevel: str("LOG_LEVEL", "info"),

		Provider:        strings.ToLower(str("HANGAR_PROVIDER", ProviderBedrock)),
		Model:           str("HANGAR_MODEL", ""),
		ClassifierModel: str("HANGAR_CLASSIFIER_MODEL", ""),
		BaseURL:         str("HANGAR_PROVIDER_URL", ""),
		AWSRegion:       str("AWS_REGION", ""),
		Classifier:      strings.ToLower(str("HANGAR_CLASSIFIER", ClassifierLLM)),

		GatewayURL:       required("GATEWAY_URL"),
		TokenURL:         required("TOKEN_URL"),
		ClientID:         required("CLIENT_ID"),
		ClientSecret:     str("CLIENT_SECRET", ""),
		ClientSecretName: str("CLIENT_SECRET_NAME", ""),
		Scope:            str("OAUTH_SCOPE", ""),

		Timeout:       duration("HANGAR_TIMEOUT", DefaultTimeout),
		MaxIterations: integer("HANGAR_MAX_ITERATIONS", DefaultMaxIterations),
		Parallelism:   integer("HANGAR_TOOL_PARALLELISM", DefaultParallelism),

		DomainsFile:   str("DOMAINS_FILE", ""),
		TranscriptDir: str("TRANSCRIPT_DIR", ""),
	}

	if cfg.ClientSecret == "" && cfg.ClientSecretName == "" {
		problems = append(problems, "CLIENT_SECRET or CLIENT_SECRET_NAME is required")
	}

	switch cfg.Provider {
	case ProviderBedrock:
	case ProviderAnthropic:
		cfg.APIKey = required("ANTHROPIC_API_KEY")
	case ProviderGemini:
		cfg.APIKey = required("GEMINI_API_KEY")
	case ProviderOpenAI:
		cfg.APIKey = required("OPENAI_API_KEY")
	default:
		problems = append(problems, fmt.Sprintf("HANGAR_PROVIDER must be one of bedrock, anthropic, gemini, openai, got %q", cfg.Provider))
	}

	switch cfg.Classifier {
	case ClassifierLLM, ClassifierKeyword:
	default:
		problems = append(problems, fmt.Sprintf("HANGAR_CLASSIFIER must be llm or keyword, got %q", cfg.Classifier))
	}

	if len(problems) > 0 {
		return Config{}, fmt.Errorf("config: %s: %w", strings.Join(problems, "; "), hangar.ErrConfig)
	}

	catalog, err := LoadCatalog(cfg.DomainsFile)
	if err != nil {
		return Config{}, err
	}
	cfg.Catalog = catalog
	return cfg, nil
}

// catalogFile is the YAML form of a domain catalog.
type catalogFile struct {
	Default string       `yaml:"default"`
	Domains []domainFile `yaml:"domains"`
}

type domainFile struct {
	Name         string   `yaml:"name"`
	Description  string   `yaml:"description"`
	SystemPrompt string   `yaml:"system_prompt"`
	Keywords     []string `yaml:"keywords"`
	ToolScope    []string `yaml:"tool_scope"`
}

// LoadCatalog reads and validates the catalog at path. An empty path loads
// the built-in catalog.
func LoadCatalog(path string) (hangar.Catalog, error) {
	if path == "" {
		return ParseCatalog(defaultCatalog)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return hangar.Catalog{}, fmt.Errorf("config: read catalog: %v: %w", err, hangar.ErrConfig)
	}
	return ParseCatalog(data)
}

// ParseCatalog decodes and validates a YAML catalog. Unknown fields are
// rejected so that typos in the file surface at startup.
func ParseCatalog(data []byte) (hangar.Catalog, error) {
	var f catalogFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return hangar.Catalog{}, fmt.Errorf("config: parse catalog: %v: %w", err, hangar.ErrConfig)
	}
	c := hangar.Catalog{Default: hangar.Domain(strings.TrimSpace(f.Default))}
	for _, d := range f.Domains {
		c.Domains = append(c.Domains, hangar.DomainSpec{
			Name:         hangar.Domain(strings.TrimSpace(d.Name)),
			Description:  strings.TrimSpace(d.Description),
			SystemPrompt: strings.TrimSpace(d.SystemPrompt),
			Keywords:     d.Keywords,
			ToolScope:    d.ToolScope,
		})
	}
	if err := c.Validate(); err != nil {
		return hangar.Catalog{}, fmt.Errorf("config: %w", err)
	}
	return c, nil
}
