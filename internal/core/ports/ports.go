// Package ports defines the interfaces the council core depends on and the
// adapters that satisfy them.
package ports

import (
	"context"

	"github.com/tjfontaine/polyglot-council/internal/core/domain"
	"github.com/tjfontaine/polyglot-council/internal/pkg/config"
)

// Reasoner turns a prompt into text plus a self-reported confidence.
// Implementations: provider.Router (OpenAI-compatible, Anthropic).
type Reasoner interface {
	Reason(ctx context.Context, req *domain.ReasonRequest) (*domain.ReasonResult, error)
}

// ContextProvider returns ranked passages for a query.
// Implementations: retrieval.Service.
type ContextProvider interface {
	Retrieve(ctx context.Context, query string, topK int) (*domain.RetrievedContext, error)
}

// Pinger is implemented by collaborators that can report their own health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ConfigProvider loads and manages configuration.
// Implementations: file-based (default).
type ConfigProvider interface {
	Load(ctx context.Context) (*config.Config, error)
	Watch(ctx context.Context, onChange func(*config.Config)) error
	Close() error
}

// Provider is one upstream model API, addressed by name in reasoning
// selectors ("<provider>/<model>").
// Implementations: provider/openai, provider/anthropic.
type Provider interface {
	Name() string
	Complete(ctx context.Context, model string, req *domain.ReasonRequest) (*domain.ReasonResult, error)
	Pinger
}

// Embedder turns texts into vectors, one per input in order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float64, error)
}
