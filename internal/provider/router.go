package provider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tjfontaine/polyglot-council/internal/core/domain"
	"github.com/tjfontaine/polyglot-council/internal/core/ports"
	"github.com/tjfontaine/polyglot-council/internal/extract"
	"github.com/tjfontaine/polyglot-council/internal/pkg/config"
	"github.com/tjfontaine/polyglot-council/internal/telemetry"
)

// DefaultConfidence is reported when the model states no confidence.
const DefaultConfidence = 0.7

// embedderProvider is implemented by providers that can embed text.
type embedderProvider interface {
	Embedder(model string) ports.Embedder
}

// Router implements ports.Reasoner by resolving "<provider>/<model>"
// selectors against the named providers.
type Router struct {
	mu        sync.RWMutex
	providers map[string]ports.Provider
	order     []string

	logger *slog.Logger
	tracer trace.Tracer
}

// RouterOption configures a Router.
type RouterOption func(*Router)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) RouterOption {
	return func(r *Router) {
		r.logger = logger
	}
}

// NewRouter creates a router over providers.
func NewRouter(providers []ports.Provider, opts ...RouterOption) *Router {
	r := &Router{
		logger: slog.Default(),
		tracer: telemetry.Tracer("provider"),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.set(providers)
	return r
}

// RouterFromConfig builds the configured providers and a router over them.
func RouterFromConfig(configs []config.ProviderConfig, opts ...RouterOption) (*Router, error) {
	providers, err := CreateProviders(configs)
	if err != nil {
		return nil, err
	}
	return NewRouter(providers, opts...), nil
}

func (r *Router) set(providers []ports.Provider) {
	m := make(map[string]ports.Provider, len(providers))
	order := make([]string, 0, len(providers))
	for _, p := range providers {
		if _, dup := m[p.Name()]; !dup {
			order = append(order, p.Name())
		}
		m[p.Name()] = p
	}
	r.mu.Lock()
	r.providers = m
	r.order = order
	r.mu.Unlock()
}

// Replace swaps the provider set, e.g. after a config reload.
func (r *Router) Replace(providers []ports.Provider) {
	r.set(providers)
}

// Names returns the provider names in configuration order.
func (r *Router) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// SplitSelector splits "openrouter/openai/gpt-4o" into the provider name
// "openrouter" and the model "openai/gpt-4o".
func SplitSelector(selector string) (providerName, model string, err error) {
	providerName, model, ok := strings.Cut(selector, "/")
	if !ok || providerName == "" || model == "" {
		return "", "", domain.ErrInvalidRequest(fmt.Sprintf("invalid selector %q, want <provider>/<model>", selector)).
			WithParam("selector")
	}
	return providerName, model, nil
}

func (r *Router) resolve(selector string) (ports.Provider, string, error) {
	name, model, err := SplitSelector(selector)
	if err != nil {
		return nil, "", err
	}
	r.mu.RLock()
	p, ok := r.providers[name]
	r.mu.RUnlock()
	if !ok {
		return nil, "", domain.ErrInvalidRequest(fmt.Sprintf("unknown provider %q", name)).
			WithCode(domain.ErrorCodeUnknownProvider)
	}
	return p, model, nil
}

// Reason sends the request to the provider named by its selector and
// extracts the self-reported confidence from the reply.
func (r *Router) Reason(ctx context.Context, req *domain.ReasonRequest) (*domain.ReasonResult, error) {
	p, model, err := r.resolve(req.Selector)
	if err != nil {
		return nil, err
	}

	ctx, span := r.tracer.Start(ctx, "provider.reason", trace.WithAttributes(
		attribute.String("provider.name", p.Name()),
		attribute.String("provider.model", model),
		attribute.String("council.purpose", string(req.Purpose)),
		attribute.String("council.member_id", req.MemberID),
	))
	defer span.End()

	res, err := p.Complete(ctx, model, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	if v, ok := extract.Confidence(res.Text); ok {
		res.Confidence = v
	} else {
		res.Confidence = DefaultConfidence
	}
	span.SetAttributes(attribute.Int("provider.total_tokens", res.Usage.TotalTokens))
	return res, nil
}

// Embedder resolves an embedding selector such as
// "openrouter/openai/text-embedding-3-small".
func (r *Router) Embedder(selector string) (ports.Embedder, error) {
	p, model, err := r.resolve(selector)
	if err != nil {
		return nil, err
	}
	ep, ok := p.(embedderProvider)
	if !ok {
		return nil, fmt.Errorf("provider %s does not support embeddings", p.Name())
	}
	return ep.Embedder(model), nil
}

// Ping checks every provider and joins the failures.
func (r *Router) Ping(ctx context.Context) error {
	r.mu.RLock()
	providers := make([]ports.Provider, 0, len(r.order))
	for _, name := range r.order {
		providers = append(providers, r.providers[name])
	}
	r.mu.RUnlock()

	if len(providers) == 0 {
		return errors.New("no providers configured")
	}
	var errs []error
	for _, p := range providers {
		if err := p.Ping(ctx); err != nil {
			r.logger.Warn("provider ping failed", slog.String("provider", p.Name()), slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
