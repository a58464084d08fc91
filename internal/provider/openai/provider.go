// Package openai adapts the OpenAI-compatible API client to the council's
// provider and embedder ports.
package openai

import (
	"context"
	"fmt"
	"net/http"

	openaiapi "github.com/tjfontaine/polyglot-council/internal/api/openai"
	"github.com/tjfontaine/polyglot-council/internal/core/domain"
	"github.com/tjfontaine/polyglot-council/internal/core/ports"
)

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

// WithHeaders adds headers to every request, e.g. OpenRouter's HTTP-Referer.
func WithHeaders(headers map[string]string) ProviderOption {
	return func(p *Provider) {
		p.headers = headers
	}
}

// Provider implements ports.Provider over an OpenAI-compatible API.
type Provider struct {
	name       string
	client     *openaiapi.Client
	baseURL    string
	headers    map[string]string
	httpClient *http.Client
}

// New creates a new OpenAI provider registered under name.
func New(name, apiKey string, opts ...ProviderOption) *Provider {
	p := &Provider{name: name}
	if p.name == "" {
		p.name = ProviderType
	}

	for _, opt := range opts {
		opt(p)
	}

	var clientOpts []openaiapi.ClientOption
	if p.baseURL != "" {
		clientOpts = append(clientOpts, openaiapi.WithBaseURL(p.baseURL))
	}
	if p.httpClient != nil {
		clientOpts = append(clientOpts, openaiapi.WithHTTPClient(p.httpClient))
	}
	if len(p.headers) > 0 {
		clientOpts = append(clientOpts, openaiapi.WithHeaders(p.headers))
	}

	p.client = openaiapi.NewClient(apiKey, clientOpts...)
	return p
}

func (p *Provider) Name() string {
	return p.name
}

// Complete sends one chat completion with the system prompt and the user
// prompt.
func (p *Provider) Complete(ctx context.Context, model string, req *domain.ReasonRequest) (*domain.ReasonResult, error) {
	apiReq := &openaiapi.ChatCompletionRequest{
		Model:     model,
		MaxTokens: req.MaxTokens,
	}
	temp := float32(req.Temperature)
	apiReq.Temperature = &temp
	if req.System != "" {
		apiReq.Messages = append(apiReq.Messages, openaiapi.ChatCompletionMessage{Role: "system", Content: req.System})
	}
	apiReq.Messages = append(apiReq.Messages, openaiapi.ChatCompletionMessage{Role: "user", Content: req.Prompt})

	resp, err := p.client.CreateChatCompletion(ctx, apiReq)
	if err != nil {
		return nil, err
	}

	return &domain.ReasonResult{
		Text:  resp.Text(),
		Model: resp.Model,
		Usage: domain.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
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

// Embedder returns an embedder bound to model.
func (p *Provider) Embedder(model string) ports.Embedder {
	return &embedder{client: p.client, model: model}
}

type embedder struct {
	client *openaiapi.Client
	model  string
}

func (e *embedder) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	resp, err := e.client.CreateEmbeddings(ctx, &openaiapi.EmbeddingRequest{Model: e.model, Input: texts})
	if err != nil {
		return nil, err
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("embeddings: got %d vectors for %d inputs", len(resp.Data), len(texts))
	}
	out := make([][]float64, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(out) {
			return nil, fmt.Errorf("embeddings: index %d out of range", d.Index)
		}
		out[d.Index] = d.Embedding
	}
	return out, nil
}
