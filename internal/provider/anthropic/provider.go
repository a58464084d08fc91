// Package anthropic adapts the Anthropic Messages API client to the
// council's provider port.
package anthropic

import (
	"context"
	"fmt"
	"net/http"

	anthropicapi "github.com/tjfontaine/polyglot-council/internal/api/anthropic"
	"github.com/tjfontaine/polyglot-council/internal/core/domain"
)

// defaultMaxTokens is sent when the request sets none; the API requires it.
const defaultMaxTokens = 1024

// ProviderOption configures the provider.
type ProviderOption func(*Provider)

// WithBaseURL sets a custom base URL for the API.
func WithBaseURL(baseURL string) ProviderOption {
	return func(p *Provider) {
		p.baseURL = baseURL
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) ProviderOption {
	return func(p *Provider) {
		p.httpClient = httpClient
	}
}

// Provider implements ports.Provider using the Anthropic API client.
type Provider struct {
	name       string
	client     *anthropicapi.Client
	baseURL    string
	httpClient *http.Client
}

// New creates a new Anthropic provider registered under name.
func New(name, apiKey string, opts ...ProviderOption) *Provider {
	p := &Provider{name: name}
	if p.name == "" {
		p.name = ProviderType
	}

	for _, opt := range opts {
		opt(p)
	}

	var clientOpts []anthropicapi.ClientOption
	if p.baseURL != "" {
		clientOpts = append(clientOpts, anthropicapi.WithBaseURL(p.baseURL))
	}
	if p.httpClient != nil {
		clientOpts = append(clientOpts, anthropicapi.WithHTTPClient(p.httpClient))
	}

	p.client = anthropicapi.NewClient(apiKey, clientOpts...)
	return p
}

func (p *Provider) Name() string {
	return p.name
}

func (p *Provider) Complete(ctx context.Context, model string, req *domain.ReasonRequest) (*domain.ReasonResult, error) {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	temp := float32(req.Temperature)
	// The Messages API caps temperature at 1.0.
	if temp > 1 {
		temp = 1
	}

	resp, err := p.client.CreateMessage(ctx, &anthropicapi.MessagesRequest{
		Model:       model,
		System:      req.System,
		Messages:    []anthropicapi.Message{{Role: "user", Content: req.Prompt}},
		MaxTokens:   maxTokens,
		Temperature: &temp,
	})
	if err != nil {
		return nil, err
	}

	return &domain.ReasonResult{
		Text:  resp.Text(),
		Model: resp.Model,
		Usage: domain.Usage{
			PromptTokens:     resp.Usage.InputTokens,
			CompletionTokens: resp.Usage.OutputTokens,
			TotalTokens:      resp.Usage.InputTokens + resp.Usage.OutputTokens,
		},
	}, nil
}

// Ping lists models to check credentials and reachability.
func (p *Provider) Ping(ctx context.Context) error {
	if _, err := p.client.ListModels(ctx); err != nil {
		return fmt.Errorf("%s: %w", p.name, err)
	}
	return nil
}
