package openai

import (
	"github.com/tjfontaine/polyglot-council/internal/core/ports"
	"github.com/tjfontaine/polyglot-council/internal/pkg/config"
	"github.com/tjfontaine/polyglot-council/internal/provider/registry"
)

// ProviderType is the provider type identifier used in configuration.
// It covers OpenAI itself and compatible APIs such as OpenRouter.
const ProviderType = "openai"

// Register adds the OpenAI factory to the provider registry.
func Register() {
	if registry.IsRegistered(ProviderType) {
		return
	}
	registry.RegisterFactory(registry.ProviderFactory{
		Type:        ProviderType,
		Description: "OpenAI-compatible chat completions (OpenAI, OpenRouter, local servers)",
		Create:      CreateFromConfig,
	})
}

// CreateFromConfig creates a new OpenAI provider from configuration.
func CreateFromConfig(cfg config.ProviderConfig) (ports.Provider, error) {
	var opts []ProviderOption
	if cfg.BaseURL != "" {
		opts = append(opts, WithBaseURL(cfg.BaseURL))
	}
	if len(cfg.Headers) > 0 {
		opts = append(opts, WithHeaders(cfg.Headers))
	}
	return New(cfg.Name, cfg.APIKey, opts...), nil
}
