package council

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tjfontaine/polyglot-council/internal/core/domain"
	"github.com/tjfontaine/polyglot-council/internal/tokens"
)

func testDispatcher(r *fakeReasoner) *Dispatcher {
	return &Dispatcher{
		reasoner:  r,
		prompts:   promptBuilder{counter: tokens.NewEstimator(), passageBudget: 300, excerptBudget: 400},
		maxTokens: 256,
		logger:    discardLogger(),
	}
}

func TestDispatchInitial_CompletionOrder(t *testing.T) {
	delays := map[string]time.Duration{"a": 80 * time.Millisecond, "b": 0, "c": 40 * time.Millisecond}
	r := &fakeReasoner{fn: func(ctx context.Context, req *domain.ReasonRequest) (*domain.ReasonResult, error) {
		time.Sleep(delays[req.MemberID])
		return answer("ok", 0.5), nil
	}}

	got := testDispatcher(r).DispatchInitial(context.Background(), "q", nil, testMembers(), time.Second)
	if len(got.Responses) != 3 {
		t.Fatalf("Responses = %d, want 3", len(got.Responses))
	}
	want := []string{"b", "c", "a"}
	for i, resp := range got.Responses {
		if resp.MemberID != want[i] {
			t.Errorf("Responses[%d] = %s, want %s", i, resp.MemberID, want[i])
		}
	}
}

func TestDispatchInitial_LateResultIsTimeout(t *testing.T) {
	r := &fakeReasoner{fn: func(ctx context.Context, req *domain.ReasonRequest) (*domain.ReasonResult, error) {
		if req.MemberID == "a" {
			// Ignores cancellation and answers after the deadline.
			time.Sleep(100 * time.Millisecond)
		}
		return answer("late or not", 0.9), nil
	}}

	got := testDispatcher(r).DispatchInitial(context.Background(), "q", nil, testMembers(), 30*time.Millisecond)
	if len(got.Responses) != 2 {
		t.Errorf("Responses = %d, want 2", len(got.Responses))
	}
	if len(got.Failures) != 1 {
		t.Fatalf("Failures = %d, want 1", len(got.Failures))
	}
	f := got.Failures[0]
	if f.MemberID != "a" || f.Kind != domain.FailureTimeout {
		t.Errorf("failure = %+v, want member_timeout for a", f)
	}
}

func TestDispatchInitial_IndependentTimeouts(t *testing.T) {
	r := &fakeReasoner{fn: func(ctx context.Context, req *domain.ReasonRequest) (*domain.ReasonResult, error) {
		if req.MemberID == "a" {
			return nil, errors.New("boom")
		}
		time.Sleep(20 * time.Millisecond)
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return answer("fine", 0.8), nil
	}}

	got := testDispatcher(r).DispatchInitial(context.Background(), "q", nil, testMembers(), time.Second)
	if len(got.Responses) != 2 {
		t.Errorf("Responses = %d, want 2 (a failing must not cancel b and c)", len(got.Responses))
	}
	if len(got.Failures) != 1 || got.Failures[0].Kind != domain.FailureInvocation {
		t.Errorf("Failures = %+v, want one invocation failure", got.Failures)
	}
}

func TestDispatchInitial_EmptyTextIsFailure(t *testing.T) {
	r := &fakeReasoner{fn: func(ctx context.Context, req *domain.ReasonRequest) (*domain.ReasonResult, error) {
		if req.MemberID == "b" {
			return answer("", 0.9), nil
		}
		return answer("text", 0.9), nil
	}}

	got := testDispatcher(r).DispatchInitial(context.Background(), "q", nil, testMembers(), time.Second)
	if len(got.Failures) != 1 || got.Failures[0].MemberID != "b" || got.Failures[0].Kind != domain.FailureInvocation {
		t.Errorf("Failures = %+v", got.Failures)
	}
}

func TestDispatchInitial_Confidence(t *testing.T) {
	tests := []struct {
		name string
		res  *domain.ReasonResult
		want float64
	}{
		{"reported", answer("x", 0.42), 0.42},
		{"clamped", answer("x", 3), 1},
		{"parsed percent", answer("Yes.\nCONFIDENCE: 85%\nREASONING: because", 0), 0.85},
		{"parsed decimal", answer("Yes.\nCONFIDENCE: 0.6", 0), 0.6},
		{"default", answer("Yes.", 0), DefaultConfidence},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &fakeReasoner{fn: func(context.Context, *domain.ReasonRequest) (*domain.ReasonResult, error) {
				return tt.res, nil
			}}
			got := testDispatcher(r).DispatchInitial(context.Background(), "q", nil, testMembers()[:1], time.Second)
			if len(got.Responses) != 1 {
				t.Fatalf("Responses = %d", len(got.Responses))
			}
			if !approx(got.Responses[0].Confidence, tt.want) {
				t.Errorf("Confidence = %v, want %v", got.Responses[0].Confidence, tt.want)
			}
		})
	}
}

func TestDispatchInitial_ParsesAnswerAndReasoning(t *testing.T) {
	r := &fakeReasoner{fn: func(context.Context, *domain.ReasonRequest) (*domain.ReasonResult, error) {
		return answer("Travelers may defer.\n\nCONFIDENCE: 0.9\nREASONING: The text permits it.", 0), nil
	}}
	got := testDispatcher(r).DispatchInitial(context.Background(), "q", nil, testMembers()[:1], time.Second)
	resp := got.Responses[0]
	if resp.Response != "Travelers may defer." {
		t.Errorf("Response = %q", resp.Response)
	}
	if resp.Reasoning != "The text permits it." {
		t.Errorf("Reasoning = %q", resp.Reasoning)
	}
	if resp.MemberName != "Alpha" {
		t.Errorf("MemberName = %q", resp.MemberName)
	}
}

func TestDispatchInitial_RequestFields(t *testing.T) {
	r := &fakeReasoner{fn: func(context.Context, *domain.ReasonRequest) (*domain.ReasonResult, error) {
		return answer("x", 0.5), nil
	}}
	members := testMembers()
	members[0].SystemPrompt = "You are Alpha."
	testDispatcher(r).DispatchInitial(context.Background(), "q", nil, members, time.Second)

	for _, req := range r.requests(domain.PurposeInitial) {
		var m domain.CouncilMember
		for _, mm := range members {
			if mm.ID == req.MemberID {
				m = mm
			}
		}
		if req.Temperature != m.Temperature || req.Selector != m.ReasoningSelector || req.MaxTokens != 256 {
			t.Errorf("request for %s = %+v", m.ID, req)
		}
		if m.ID == "a" && req.System != "You are Alpha." {
			t.Errorf("System = %q", req.System)
		}
	}
}

func TestCheckQuorum(t *testing.T) {
	if err := CheckQuorum(2, 2); err != nil {
		t.Errorf("CheckQuorum(2,2) = %v", err)
	}
	err := CheckQuorum(1, 2)
	var qe *domain.QuorumError
	if !errors.As(err, &qe) || qe.Obtained != 1 || qe.Required != 2 {
		t.Errorf("CheckQuorum(1,2) = %v", err)
	}
}

func TestRequiredQuorum(t *testing.T) {
	tests := []struct {
		quorum, n, want int
	}{
		{0, 1, 1},
		{0, 2, 2},
		{0, 3, 2},
		{0, 4, 3},
		{0, 5, 3},
		{2, 5, 2},
		{9, 3, 3},
	}
	for _, tt := range tests {
		s := Settings{Quorum: tt.quorum}
		if got := s.RequiredQuorum(tt.n); got != tt.want {
			t.Errorf("RequiredQuorum(quorum=%d, n=%d) = %d, want %d", tt.quorum, tt.n, got, tt.want)
		}
	}
}
