// Package provider builds the configured upstream model APIs and routes
// reasoning requests to them by selector.
//
// # Adding a New Provider
//
// Implement ports.Provider in a subpackage and expose a Register function
// that calls registry.RegisterFactory, then call it from RegisterBuiltins:
//
//	func Register() {
//	    if registry.IsRegistered(ProviderType) {
//	        return
//	    }
//	    registry.RegisterFactory(registry.ProviderFactory{
//	        Type:        ProviderType,
//	        Description: "Google Gemini API provider",
//	        Create:      CreateFromConfig,
//	    })
//	}
package provider

import (
	"fmt"

	"github.com/tjfontaine/polyglot-council/internal/core/ports"
	"github.com/tjfontaine/polyglot-council/internal/pkg/config"
	"github.com/tjfontaine/polyglot-council/internal/provider/anthropic"
	"github.com/tjfontaine/polyglot-council/internal/provider/openai"
	"github.com/tjfontaine/polyglot-council/internal/provider/registry"
)

// RegisterBuiltins registers the OpenAI-compatible and Anthropic factories.
// It is safe to call more than once.
func RegisterBuiltins() {
	openai.Register()
	anthropic.Register()
}

// ListProviderTypes returns all registered provider type names (delegated to registry).
var ListProviderTypes = registry.ListProviderTypes

// CreateProviders builds one provider per config entry, in order.
func CreateProviders(configs []config.ProviderConfig) ([]ports.Provider, error) {
	RegisterBuiltins()
	providers := make([]ports.Provider, 0, len(configs))
	for _, cfg := range configs {
		p, err := registry.CreateFromFactory(cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create provider %s: %w", cfg.Name, err)
		}
		providers = append(providers, p)
	}
	return providers, nil
}
