package provider

import (
	"context"
	"errors"
	"testing"

	"github.com/tjfontaine/polyglot-council/internal/core/domain"
	"github.com/tjfontaine/polyglot-council/internal/core/ports"
	"github.com/tjfontaine/polyglot-council/internal/pkg/config"
)

type stubProvider struct {
	name    string
	text    string
	err     error
	pingErr error
	model   string
}

func (s *stubProvider) Name() string { return s.name }

func (s *stubProvider) Complete(_ context.Context, model string, _ *domain.ReasonRequest) (*domain.ReasonResult, error) {
	s.model = model
	if s.err != nil {
		return nil, s.err
	}
	return &domain.ReasonResult{Text: s.text}, nil
}

func (s *stubProvider) Ping(context.Context) error { return s.pingErr }

func TestSplitSelector(t *testing.T) {
	tests := []struct {
		selector     string
		wantProvider string
		wantModel    string
		wantErr      bool
	}{
		{"openrouter/openai/gpt-4o", "openrouter", "openai/gpt-4o", false},
		{"anthropic/claude-3-opus", "anthropic", "claude-3-opus", false},
		{"gpt-4o", "", "", true},
		{"/gpt-4o", "", "", true},
		{"openai/", "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.selector, func(t *testing.T) {
			p, m, err := SplitSelector(tt.selector)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if p != tt.wantProvider || m != tt.wantModel {
				t.Errorf("got %q/%q, want %q/%q", p, m, tt.wantProvider, tt.wantModel)
			}
		})
	}
}

func TestRouter_Reason(t *testing.T) {
	or := &stubProvider{name: "openrouter", text: "Yes.\nCONFIDENCE: 92%"}
	plain := &stubProvider{name: "local", text: "No confidence stated."}
	r := NewRouter([]ports.Provider{or, plain})

	res, err := r.Reason(context.Background(), &domain.ReasonRequest{Selector: "openrouter/openai/gpt-4o"})
	if err != nil {
		t.Fatalf("Reason() error = %v", err)
	}
	if or.model != "openai/gpt-4o" {
		t.Errorf("model = %q", or.model)
	}
	if res.Confidence != 0.92 {
		t.Errorf("Confidence = %v, want 0.92", res.Confidence)
	}

	res, err = r.Reason(context.Background(), &domain.ReasonRequest{Selector: "local/llama"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Confidence != DefaultConfidence {
		t.Errorf("Confidence = %v, want default", res.Confidence)
	}
}

func TestRouter_ReasonErrors(t *testing.T) {
	upstream := domain.ErrRateLimit("slow down")
	r := NewRouter([]ports.Provider{&stubProvider{name: "p", err: upstream}})

	_, err := r.Reason(context.Background(), &domain.ReasonRequest{Selector: "missing/model"})
	if apiErr := domain.ToAPIError(err); apiErr.Code != domain.ErrorCodeUnknownProvider {
		t.Errorf("unknown provider error = %v", err)
	}

	_, err = r.Reason(context.Background(), &domain.ReasonRequest{Selector: "p/model"})
	if !errors.Is(err, upstream) {
		t.Errorf("error = %v, want upstream error", err)
	}
}

func TestRouter_PingAndReplace(t *testing.T) {
	r := NewRouter([]ports.Provider{
		&stubProvider{name: "a"},
		&stubProvider{name: "b", pingErr: errors.New("down")},
	})
	if err := r.Ping(context.Background()); err == nil {
		t.Error("expected joined ping error")
	}
	if got := r.Names(); len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("Names() = %v", got)
	}

	r.Replace([]ports.Provider{&stubProvider{name: "c"}})
	if err := r.Ping(context.Background()); err != nil {
		t.Errorf("Ping() after Replace = %v", err)
	}

	r.Replace(nil)
	if err := r.Ping(context.Background()); err == nil {
		t.Error("expected error with no providers")
	}
}

func TestRouter_Embedder(t *testing.T) {
	r, err := RouterFromConfig([]config.ProviderConfig{
		{Name: "openrouter", Type: "openai", APIKey: "k"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := r.Embedder("openrouter/text-embedding-3-small"); err != nil {
		t.Errorf("Embedder() error = %v", err)
	}

	r.Replace([]ports.Provider{&stubProvider{name: "stub"}})
	if _, err := r.Embedder("stub/model"); err == nil {
		t.Error("expected error for provider without embeddings")
	}
}

func TestCreateProviders(t *testing.T) {
	providers, err := CreateProviders([]config.ProviderConfig{
		{Name: "openrouter", Type: "openai", APIKey: "k", BaseURL: "https://openrouter.ai/api/v1"},
		{Name: "claude", Type: "anthropic", APIKey: "k"},
	})
	if err != nil {
		t.Fatalf("CreateProviders() error = %v", err)
	}
	if providers[0].Name() != "openrouter" || providers[1].Name() != "claude" {
		t.Errorf("names = %s, %s", providers[0].Name(), providers[1].Name())
	}

	if _, err := CreateProviders([]config.ProviderConfig{{Name: "x", Type: "gemini"}}); err == nil {
		t.Error("expected error for unknown type")
	}
	if _, err := CreateProviders([]config.ProviderConfig{{Name: "x", Type: "anthropic"}}); err == nil {
		t.Error("expected error for anthropic without api key")
	}

	types := ListProviderTypes()
	if len(types) != 2 || types[0] != "anthropic" || types[1] != "openai" {
		t.Errorf("ListProviderTypes() = %v", types)
	}
}
