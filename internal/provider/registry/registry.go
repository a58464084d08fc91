// Package registry provides provider factory registration and lookup.
//
// Each provider package exposes a Register function that calls
// RegisterFactory; provider.RegisterBuiltins wires the built-in ones.
package registry

import (
	"fmt"
	"sort"
	"sync"

	"github.com/tjfontaine/polyglot-council/internal/core/ports"
	"github.com/tjfontaine/polyglot-council/internal/pkg/config"
)

// ProviderFactory defines how to create a provider of a specific type.
type ProviderFactory struct {
	// Type is the provider type identifier used in configuration
	// (e.g., "openai", "anthropic").
	Type string

	// Description provides a human-readable description of the provider.
	Description string

	// Create instantiates a new provider from configuration.
	Create func(cfg config.ProviderConfig) (ports.Provider, error)

	// ValidateConfig performs provider-specific configuration validation.
	// Optional: if nil, no additional validation is performed.
	ValidateConfig func(cfg config.ProviderConfig) error
}

var (
	factoryMu   sync.RWMutex
	factoryMap  = make(map[string]ProviderFactory)
	factoryList []ProviderFactory
)

// RegisterFactory registers a provider factory for a specific type.
// Panics if a factory with the same type is already registered.
func RegisterFactory(f ProviderFactory) {
	factoryMu.Lock()
	defer factoryMu.Unlock()

	if f.Type == "" {
		panic("provider factory type cannot be empty")
	}
	if f.Create == nil {
		panic(fmt.Sprintf("provider factory %q must have a Create function", f.Type))
	}

	if _, exists := factoryMap[f.Type]; exists {
		panic(fmt.Sprintf("provider factory %q already registered", f.Type))
	}

	factoryMap[f.Type] = f
	factoryList = append(factoryList, f)
}

// GetFactory returns the factory for a provider type, if registered.
func GetFactory(providerType string) (ProviderFactory, bool) {
	factoryMu.RLock()
	defer factoryMu.RUnlock()

	f, ok := factoryMap[providerType]
	return f, ok
}

// ListProviderTypes returns all registered provider type names, sorted.
func ListProviderTypes() []string {
	factoryMu.RLock()
	defer factoryMu.RUnlock()

	types := make([]string, len(factoryList))
	for i, f := range factoryList {
		types[i] = f.Type
	}
	sort.Strings(types)
	return types
}

// IsRegistered returns true if a provider type is registered.
func IsRegistered(providerType string) bool {
	_, ok := GetFactory(providerType)
	return ok
}

// CreateFromFactory creates a provider using the registered factory.
func CreateFromFactory(cfg config.ProviderConfig) (ports.Provider, error) {
	f, ok := GetFactory(cfg.Type)
	if !ok {
		return nil, fmt.Errorf("unknown provider type: %s (registered types: %v)", cfg.Type, ListProviderTypes())
	}

	if f.ValidateConfig != nil {
		if err := f.ValidateConfig(cfg); err != nil {
			return nil, fmt.Errorf("invalid configuration for provider type %s: %w", cfg.Type, err)
		}
	}

	return f.Create(cfg)
}

// ClearFactories removes all registered factories (for testing only).
func ClearFactories() {
	factoryMu.Lock()
	defer factoryMu.Unlock()

	factoryMap = make(map[string]ProviderFactory)
	factoryList = nil
}
