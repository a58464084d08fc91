package anthropic

import (
	"errors"

	"github.com/tjfontaine/polyglot-council/internal/core/ports"
	"github.com/tjfontaine/polyglot-council/internal/pkg/config"
	"github.com/tjfontaine/polyglot-council/internal/provider/registry"
)

// ProviderType is the provider type identifier used in configuration.
const ProviderType = "anthropic"

// Register adds the Anthropic factory to the provider registry.
func Register() {
	if registry.IsRegistered(ProviderType) {
		return
	}
	registry.RegisterFactory(registry.ProviderFactory{
		Type:           ProviderType,
		Description:    "Anthropic Messages API (Claude models)",
		Create:         CreateFromConfig,
		ValidateConfig: ValidateConfig,
	})
}

// CreateFromConfig creates a new Anthropic provider from configuration.
func CreateFromConfig(cfg config.ProviderConfig) (ports.Provider, error) {
	var opts []ProviderOption
	if cfg.BaseURL != "" {
		opts = append(opts, WithBaseURL(cfg.BaseURL))
	}
	return New(cfg.Name, cfg.APIKey, opts...), nil
}

// ValidateConfig requires an API key; the Messages API has no anonymous mode.
func ValidateConfig(cfg config.ProviderConfig) error {
	if cfg.APIKey == "" {
		return errors.New("api_key is required")
	}
	return nil
}
