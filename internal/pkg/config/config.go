package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// DefaultPath is the config file read when no path is given.
const DefaultPath = "config.yaml"

type Config struct {
	Server    ServerConfig     `koanf:"server"`
	Storage   StorageConfig    `koanf:"storage"`
	Providers []ProviderConfig `koanf:"providers"`
	Council   CouncilConfig    `koanf:"council"`
	Retrieval RetrievalConfig  `koanf:"retrieval"`
	Health    HealthConfig     `koanf:"health"`
}

type ServerConfig struct {
	Port           int           `koanf:"port"`
	BasePath       string        `koanf:"base_path"`
	RequestTimeout time.Duration `koanf:"request_timeout"`
}

type StorageConfig struct {
	Type   string       `koanf:"type"` // sqlite, memory
	SQLite SQLiteConfig `koanf:"sqlite"`
}

type SQLiteConfig struct {
	Path string `koanf:"path"`
}

type ProviderConfig struct {
	Name    string            `koanf:"name"`
	Type    string            `koanf:"type"` // openai, anthropic
	APIKey  string            `koanf:"api_key"`
	BaseURL string            `koanf:"base_url"` // Custom API endpoint
	Headers map[string]string `koanf:"headers"`  // Extra headers sent on every call
}

type CouncilConfig struct {
	Members              []MemberConfig    `koanf:"members"`
	Quorum               int               `koanf:"quorum"` // 0 means majority of consulted members
	MemberTimeout        time.Duration     `koanf:"member_timeout"`
	ReviewTimeout        time.Duration     `koanf:"review_timeout"`
	SynthesisTimeout     time.Duration     `koanf:"synthesis_timeout"`
	ContextTimeout       time.Duration     `koanf:"context_timeout"`
	ReviewTemperature    float64           `koanf:"review_temperature"`
	ReviewConcurrency    int               `koanf:"review_concurrency"`
	Symmetrize           bool              `koanf:"symmetrize"`
	LowCoverageThreshold float64           `koanf:"low_coverage_threshold"`
	Synthesizer          SynthesizerConfig `koanf:"synthesizer"`
	MaxTokens            int               `koanf:"max_tokens"`
}

type MemberConfig struct {
	ID                string   `koanf:"id"`
	Name              string   `koanf:"name"`
	Role              string   `koanf:"role"`
	ReasoningSelector string   `koanf:"reasoning_selector"`
	Temperature       float64  `koanf:"temperature"`
	SystemPrompt      string   `koanf:"system_prompt"`
	Perspectives      []string `koanf:"perspectives"`
}

type SynthesizerConfig struct {
	Selector    string  `koanf:"selector"`
	Temperature float64 `koanf:"temperature"`
}

type RetrievalConfig struct {
	TopK               int    `koanf:"top_k"`
	ChunkSize          int    `koanf:"chunk_size"`
	ChunkOverlap       int    `koanf:"chunk_overlap"`
	EmbeddingSelector  string `koanf:"embedding_selector"`
	ContextTokenBudget int    `koanf:"context_token_budget"`
	EmbeddingCacheSize int    `koanf:"embedding_cache_size"`
}

type HealthConfig struct {
	Interval time.Duration `koanf:"interval"`
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

var defaults = map[string]any{
	"server.port":                     8080,
	"server.base_path":                "/api/council",
	"server.request_timeout":          "180s",
	"storage.type":                    "sqlite",
	"storage.sqlite.path":             "council.db",
	"council.member_timeout":          "60s",
	"council.review_timeout":          "45s",
	"council.synthesis_timeout":       "60s",
	"council.context_timeout":         "10s",
	"council.review_temperature":      0.5,
	"council.review_concurrency":      8,
	"council.low_coverage_threshold":  0.5,
	"council.synthesizer.selector":    "openrouter/openai/gpt-4o",
	"council.synthesizer.temperature": 0.7,
	"council.max_tokens":              1024,
	"retrieval.top_k":                 5,
	"retrieval.chunk_size":            500,
	"retrieval.chunk_overlap":         100,
	"retrieval.context_token_budget":  1500,
	"retrieval.embedding_cache_size":  256,
	"health.interval":                 "60s",
}

// Load reads config.yaml from the working directory.
func Load() (*Config, error) {
	return LoadFile(DefaultPath)
}

// LoadFile reads the YAML file at path, overlays COUNCIL_ environment
// variables and fills defaults. A missing file is not an error.
func LoadFile(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			// File not found is OK, we'll use env vars
			if !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("load %s: %w", path, err)
			}
		}
	}

	// Load environment variables (can override file config)
	if err := k.Load(env.Provider("COUNCIL_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, "COUNCIL_")), "__", ".", -1)
	}), nil); err != nil {
		return nil, err
	}

	for key, value := range defaults {
		if !k.Exists(key) {
			k.Set(key, value)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}

	// Substitute environment variables in provider API keys and headers
	for i := range cfg.Providers {
		cfg.Providers[i].APIKey = substituteEnvVars(cfg.Providers[i].APIKey)
		cfg.Providers[i].BaseURL = substituteEnvVars(cfg.Providers[i].BaseURL)
		for h, v := range cfg.Providers[i].Headers {
			cfg.Providers[i].Headers[h] = substituteEnvVars(v)
		}
	}

	if len(cfg.Providers) == 0 {
		if key := os.Getenv("OPENROUTER_API_KEY"); key != "" {
			cfg.Providers = append(cfg.Providers, OpenRouterProvider(key))
		}
	}

	if len(cfg.Council.Members) == 0 {
		cfg.Council.Members = DefaultMembers()
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate rejects configurations the council cannot run with.
func (c *Config) Validate() error {
	if len(c.Council.Members) == 0 {
		return errors.New("council: at least one member is required")
	}

	seen := make(map[string]bool, len(c.Council.Members))
	for i, m := range c.Council.Members {
		if m.ID == "" {
			return fmt.Errorf("council.members[%d]: id is required", i)
		}
		if seen[m.ID] {
			return fmt.Errorf("council.members[%d]: duplicate id %q", i, m.ID)
		}
		seen[m.ID] = true
		if m.ReasoningSelector == "" {
			return fmt.Errorf("council.members[%d]: reasoning_selector is required", i)
		}
		if m.Temperature < 0 || m.Temperature > 2 {
			return fmt.Errorf("council.members[%d]: temperature %v out of range", i, m.Temperature)
		}
	}

	if c.Council.Quorum < 0 || c.Council.Quorum > len(c.Council.Members) {
		return fmt.Errorf("council.quorum %d out of range [0,%d]", c.Council.Quorum, len(c.Council.Members))
	}

	names := make(map[string]bool, len(c.Providers))
	for i, p := range c.Providers {
		if p.Name == "" {
			return fmt.Errorf("providers[%d]: name is required", i)
		}
		if names[p.Name] {
			return fmt.Errorf("providers[%d]: duplicate name %q", i, p.Name)
		}
		names[p.Name] = true
	}

	switch c.Storage.Type {
	case "sqlite", "memory", "":
	default:
		return fmt.Errorf("storage.type %q not supported", c.Storage.Type)
	}

	return nil
}

// OpenRouterProvider is the provider used when only OPENROUTER_API_KEY is set.
func OpenRouterProvider(apiKey string) ProviderConfig {
	return ProviderConfig{
		Name:    "openrouter",
		Type:    "openai",
		APIKey:  apiKey,
		BaseURL: "https://openrouter.ai/api/v1",
		Headers: map[string]string{
			"HTTP-Referer": "https://github.com/tjfontaine/polyglot-council",
			"X-Title":      "Polyglot Council",
		},
	}
}

func substituteEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		// Extract variable name from ${VAR_NAME}
		varName := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}
