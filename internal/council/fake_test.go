package council

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/tjfontaine/polyglot-council/internal/core/domain"
)

// fakeReasoner answers through fn and records every request.
type fakeReasoner struct {
	mu    sync.Mutex
	calls []domain.ReasonRequest
	fn    func(ctx context.Context, req *domain.ReasonRequest) (*domain.ReasonResult, error)
}

func (f *fakeReasoner) Reason(ctx context.Context, req *domain.ReasonRequest) (*domain.ReasonResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, *req)
	f.mu.Unlock()
	return f.fn(ctx, req)
}

func (f *fakeReasoner) count(p domain.Purpose) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c.Purpose == p {
			n++
		}
	}
	return n
}

func (f *fakeReasoner) requests(p domain.Purpose) []domain.ReasonRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.ReasonRequest
	for _, c := range f.calls {
		if c.Purpose == p {
			out = append(out, c)
		}
	}
	return out
}

type fakeContext struct {
	mu    sync.Mutex
	calls int
	rc    *domain.RetrievedContext
	err   error
}

func (f *fakeContext) Retrieve(_ context.Context, _ string, _ int) (*domain.RetrievedContext, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return f.rc, f.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testMembers() []domain.CouncilMember {
	return []domain.CouncilMember{
		{ID: "a", Name: "Alpha", Role: "Analyst", ReasoningSelector: "test/model-a", Temperature: 0.2},
		{ID: "b", Name: "Beta", Role: "Visionary", ReasoningSelector: "test/model-b", Temperature: 0.8},
		{ID: "c", Name: "Gamma", Role: "Guardian", ReasoningSelector: "test/model-c", Temperature: 0.6},
	}
}

var memberNames = map[string]string{"a": "Alpha", "b": "Beta", "c": "Gamma", "d": "Delta"}

// reviewee finds which member a review prompt is about.
func reviewee(prompt string) string {
	for id, name := range memberNames {
		if strings.Contains(prompt, name+" answered:") {
			return id
		}
	}
	return ""
}

func testSettings() Settings {
	s := DefaultSettings()
	s.MemberTimeout = 2 * time.Second
	s.ReviewTimeout = 2 * time.Second
	s.SynthesisTimeout = 2 * time.Second
	s.ContextTimeout = time.Second
	return s
}

func newTestCouncil(t *testing.T, members []domain.CouncilMember, r *fakeReasoner, opts ...Option) *Council {
	t.Helper()
	reg, err := NewRegistry(members)
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}
	opts = append([]Option{WithLogger(discardLogger()), WithSettings(testSettings())}, opts...)
	return New(reg, r, opts...)
}

func answer(text string, confidence float64) *domain.ReasonResult {
	return &domain.ReasonResult{Text: text, Confidence: confidence}
}
