package runtime

import (
	"fmt"
	"log/slog"

	"github.com/tjfontaine/polyglot-council/internal/adapters/config/file"
	"github.com/tjfontaine/polyglot-council/internal/adapters/storage/sqlite"
	"github.com/tjfontaine/polyglot-council/internal/core/ports"
	"github.com/tjfontaine/polyglot-council/internal/storage/memory"
)

// Option is a functional option for configuring an App.
type Option func(*App) error

// WithFileConfig uses file-based configuration with hot-reload (default).
// The path should point to a config.yaml file that will be watched for changes.
func WithFileConfig(path string) Option {
	return func(a *App) error {
		provider, err := file.NewProvider(path, a.logger)
		if err != nil {
			return fmt.Errorf("create file config provider: %w", err)
		}
		a.config = provider
		return nil
	}
}

// WithConfigProvider uses a custom configuration provider.
func WithConfigProvider(provider ports.ConfigProvider) Option {
	return func(a *App) error {
		a.config = provider
		return nil
	}
}

// WithSQLite uses SQLite storage at path, overriding storage.type.
func WithSQLite(path string) Option {
	return func(a *App) error {
		store, err := sqlite.NewProvider(path)
		if err != nil {
			return fmt.Errorf("create sqlite storage: %w", err)
		}
		a.storage = store
		return nil
	}
}

// WithMemoryStorage keeps documents and history in process memory.
func WithMemoryStorage() Option {
	return func(a *App) error {
		a.storage = memory.New()
		return nil
	}
}

// WithStorageProvider sets a custom storage provider.
func WithStorageProvider(provider ports.StorageProvider) Option {
	return func(a *App) error {
		a.storage = provider
		return nil
	}
}

// WithReasoner replaces the configured providers with r. Provider
// configuration is then ignored, including on reload.
func WithReasoner(r ports.Reasoner) Option {
	return func(a *App) error {
		a.reasoner = r
		return nil
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *App) error {
		a.logger = logger
		return nil
	}
}
