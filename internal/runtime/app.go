// Package runtime assembles the council service from configuration and
// manages its lifecycle.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/tjfontaine/polyglot-council/internal/adapters/storage/sqlite"
	councilapi "github.com/tjfontaine/polyglot-council/internal/api/council"
	"github.com/tjfontaine/polyglot-council/internal/core/ports"
	"github.com/tjfontaine/polyglot-council/internal/council"
	"github.com/tjfontaine/polyglot-council/internal/health"
	"github.com/tjfontaine/polyglot-council/internal/pkg/config"
	"github.com/tjfontaine/polyglot-council/internal/provider"
	"github.com/tjfontaine/polyglot-council/internal/retrieval"
	"github.com/tjfontaine/polyglot-council/internal/server"
	"github.com/tjfontaine/polyglot-council/internal/storage/memory"
)

// App is the council service: configuration, reasoning providers, the
// knowledge base, deliberation history and the HTTP surface.
type App struct {
	// Dependencies (injected via options)
	config   ports.ConfigProvider
	storage  ports.StorageProvider
	reasoner ports.Reasoner
	logger   *slog.Logger

	// Built by Init
	cfg       *config.Config
	router    *provider.Router
	registry  *council.Registry
	council   *council.Council
	retrieval *retrieval.Service
	monitor   *health.Monitor
	handler   *councilapi.Handler
	server    *server.Server

	// Lifecycle management
	ctx         context.Context
	cancel      context.CancelFunc
	mu          sync.RWMutex
	initialized bool
}

// New creates an App. A config provider is required.
func New(opts ...Option) (*App, error) {
	a := &App{logger: slog.Default()}

	for _, opt := range opts {
		if err := opt(a); err != nil {
			return nil, fmt.Errorf("apply option: %w", err)
		}
	}

	if a.config == nil {
		return nil, errors.New("config provider required (use WithFileConfig or WithConfigProvider)")
	}
	return a, nil
}

// Init loads configuration and builds every component without serving.
// It is enough for one-shot use such as the ask command.
func (a *App) Init(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.initialized {
		return nil
	}

	cfg, err := a.config.Load(ctx)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	a.cfg = cfg

	if a.storage == nil {
		if a.storage, err = openStorage(cfg.Storage); err != nil {
			return fmt.Errorf("open storage: %w", err)
		}
	}

	if a.reasoner == nil {
		a.router, err = provider.RouterFromConfig(cfg.Providers, provider.WithLogger(a.logger))
		if err != nil {
			return fmt.Errorf("init providers: %w", err)
		}
		a.reasoner = a.router
		if len(cfg.Providers) == 0 {
			a.logger.Warn("no providers configured; set OPENROUTER_API_KEY or providers in config")
		}
	}

	if a.retrieval, err = a.buildRetrieval(cfg); err != nil {
		return fmt.Errorf("init retrieval: %w", err)
	}

	if a.registry, err = council.RegistryFromConfig(cfg.Council); err != nil {
		return fmt.Errorf("init council: %w", err)
	}
	a.council = council.New(a.registry, a.reasoner,
		council.WithContextProvider(a.retrieval),
		council.WithSettings(council.SettingsFromConfig(cfg)),
		council.WithLogger(a.logger),
	)

	healthOpts := []health.Option{
		health.WithContextProvider(a.retrieval),
		health.WithMemberCount(a.registry.Len),
		health.WithInterval(cfg.Health.Interval),
		health.WithLogger(a.logger),
	}
	if p, ok := a.storage.(ports.Pinger); ok {
		healthOpts = append(healthOpts, health.WithStorage(p))
	}
	var reasonerPinger ports.Pinger
	if p, ok := a.reasoner.(ports.Pinger); ok {
		reasonerPinger = p
	}
	a.monitor = health.NewMonitor(reasonerPinger, healthOpts...)

	a.handler = councilapi.NewHandler(councilapi.Deps{
		Council:   a.council,
		Members:   a.registry,
		Documents: a.retrieval,
		History:   a.storage,
		Health:    a.monitor,
	}, councilapi.WithLogger(a.logger))

	a.initialized = true
	a.logger.Info("council initialized",
		slog.Int("members", a.registry.Len()),
		slog.Int("providers", len(cfg.Providers)),
		slog.String("storage", storageType(cfg.Storage)))
	return nil
}

// Start initializes the app, starts the HTTP server, the health monitor and
// the config watcher. It returns once the server is listening in the
// background.
func (a *App) Start(ctx context.Context) error {
	if err := a.Init(ctx); err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	a.ctx, a.cancel = context.WithCancel(ctx)

	a.server = server.New(a.cfg.Server.Port, a.cfg.Server.RequestTimeout, a.logger)
	a.mount(a.server.Router)

	go func() {
		if err := a.server.Start(); err != nil {
			a.logger.Error("server error", slog.String("error", err.Error()))
		}
	}()

	go a.monitor.Run(a.ctx)
	go a.watchConfig()

	a.logger.Info("council started",
		slog.Int("port", a.cfg.Server.Port),
		slog.String("base_path", a.cfg.Server.BasePath))
	return nil
}

// mount registers the API under the base path and at the root.
func (a *App) mount(r interface {
	Mount(pattern string, h http.Handler)
}) {
	base := "/" + strings.Trim(a.cfg.Server.BasePath, "/")
	if base != "/" {
		r.Mount(base, a.handler)
	}
	r.Mount("/", a.handler)
}

// Shutdown gracefully stops the app.
func (a *App) Shutdown(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.logger.Info("shutting down council")

	if a.cancel != nil {
		a.cancel()
	}

	if a.server != nil {
		if err := a.server.Shutdown(ctx); err != nil {
			a.logger.Error("failed to shutdown server", slog.String("error", err.Error()))
			return err
		}
	}

	if a.storage != nil {
		if err := a.storage.Close(); err != nil {
			a.logger.Error("failed to close storage", slog.String("error", err.Error()))
		}
	}

	if a.config != nil {
		if err := a.config.Close(); err != nil {
			a.logger.Error("failed to close config", slog.String("error", err.Error()))
		}
	}

	a.logger.Info("council shutdown complete")
	return nil
}

// Council returns the deliberation engine. Init must have been called.
func (a *App) Council() *council.Council {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.council
}

// Registry returns the live member registry.
func (a *App) Registry() *council.Registry {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.registry
}

// Handler returns the API handler without the server middleware.
func (a *App) Handler() http.Handler {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.handler
}

// Monitor returns the health monitor.
func (a *App) Monitor() *health.Monitor {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.monitor
}

// Storage returns the storage provider.
func (a *App) Storage() ports.StorageProvider {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.storage
}

// watchConfig watches for config changes and reloads.
func (a *App) watchConfig() {
	onChange := func(newCfg *config.Config) {
		a.logger.Info("config changed, reloading")
		if err := a.Reload(newCfg); err != nil {
			a.logger.Error("failed to reload", slog.String("error", err.Error()))
		}
	}

	if err := a.config.Watch(a.ctx, onChange); err != nil {
		if !errors.Is(err, context.Canceled) {
			a.logger.Error("config watch failed", slog.String("error", err.Error()))
		}
	}
}

// Reload applies a new configuration between requests. Deliberations in
// flight keep the membership and settings they started with. Server,
// storage and retrieval settings need a restart.
func (a *App) Reload(cfg *config.Config) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.initialized {
		return errors.New("reload before init")
	}

	if a.router != nil {
		providers, err := provider.CreateProviders(cfg.Providers)
		if err != nil {
			return fmt.Errorf("reinit providers: %w", err)
		}
		a.router.Replace(providers)
	}

	if err := a.registry.Replace(council.MembersFromConfig(cfg.Council.Members)); err != nil {
		return fmt.Errorf("replace members: %w", err)
	}
	a.council.UpdateSettings(council.SettingsFromConfig(cfg))
	a.cfg = cfg

	a.logger.Info("reload complete",
		slog.Int("members", a.registry.Len()),
		slog.Int("providers", len(cfg.Providers)))
	return nil
}

func (a *App) buildRetrieval(cfg *config.Config) (*retrieval.Service, error) {
	opts := []retrieval.Option{
		retrieval.WithChunking(cfg.Retrieval.ChunkSize, cfg.Retrieval.ChunkOverlap),
		retrieval.WithCacheSize(cfg.Retrieval.EmbeddingCacheSize),
		retrieval.WithLogger(a.logger),
	}

	if sel := cfg.Retrieval.EmbeddingSelector; sel != "" {
		if a.router == nil {
			a.logger.Warn("embedding selector ignored without configured providers", slog.String("selector", sel))
		} else if emb, err := a.router.Embedder(sel); err != nil {
			a.logger.Warn("embeddings unavailable, ranking by term overlap",
				slog.String("selector", sel),
				slog.String("error", err.Error()))
		} else {
			opts = append(opts, retrieval.WithEmbedder(emb))
		}
	}

	return retrieval.New(a.storage, opts...)
}

func openStorage(cfg config.StorageConfig) (ports.StorageProvider, error) {
	switch storageType(cfg) {
	case "memory":
		return memory.New(), nil
	default:
		return sqlite.NewProvider(cfg.SQLite.Path)
	}
}

func storageType(cfg config.StorageConfig) string {
	if cfg.Type == "" {
		return "sqlite"
	}
	return cfg.Type
}
