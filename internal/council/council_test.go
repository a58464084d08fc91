package council

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tjfontaine/polyglot-council/internal/core/domain"
)

const epsilon = 1e-3

func approx(a, b float64) bool {
	return math.Abs(a-b) < epsilon
}

// scriptedReasoner answers initial calls from answers, reviews from
// agreements keyed "reviewer->reviewee" and synthesis with a fixed text.
// A missing agreement makes the review fail.
func scriptedReasoner(confidence map[string]float64, agreements map[string]float64, synthErr error) *fakeReasoner {
	return &fakeReasoner{fn: func(ctx context.Context, req *domain.ReasonRequest) (*domain.ReasonResult, error) {
		switch req.Purpose {
		case domain.PurposeInitial:
			return answer("Answer from "+req.MemberID, confidence[req.MemberID]), nil
		case domain.PurposeReview:
			key := req.MemberID + "->" + reviewee(req.Prompt)
			v, ok := agreements[key]
			if !ok {
				return nil, fmt.Errorf("review %s unavailable", key)
			}
			return answer(fmt.Sprintf("AGREEMENT: %.2f\nCOMMENTS: reviewed %s", v, key), 0), nil
		case domain.PurposeSynthesis:
			if synthErr != nil {
				return nil, synthErr
			}
			return answer("The council agrees.", 0), nil
		}
		return nil, errors.New("unexpected purpose")
	}}
}

func allAgreements() map[string]float64 {
	return map[string]float64{
		"a->b": 0.9, "a->c": 0.8,
		"b->a": 0.7, "b->c": 0.9,
		"c->a": 0.8, "c->b": 0.9,
	}
}

func evenConfidence() map[string]float64 {
	return map[string]float64{"a": 0.8, "b": 0.8, "c": 0.8}
}

func TestDeliberate_FullAgreement(t *testing.T) {
	r := scriptedReasoner(evenConfidence(), allAgreements(), nil)
	c := newTestCouncil(t, testMembers(), r)

	res, err := c.Deliberate(context.Background(), Request{Query: "Is it permissible?"})
	if err != nil {
		t.Fatalf("Deliberate() error = %v", err)
	}

	if len(res.InitialResponses) != 3 {
		t.Errorf("InitialResponses = %d, want 3", len(res.InitialResponses))
	}
	if len(res.PeerReviews) != 6 {
		t.Errorf("PeerReviews = %d, want 6", len(res.PeerReviews))
	}
	if !approx(res.ReviewCoverage, 1.0) {
		t.Errorf("ReviewCoverage = %v, want 1.0", res.ReviewCoverage)
	}
	if !approx(res.ConsensusScore, 0.8333) {
		t.Errorf("ConsensusScore = %v, want ~0.833", res.ConsensusScore)
	}
	if res.Degraded || res.LowCoverage || res.SynthesisDegraded {
		t.Errorf("unexpected flags: degraded=%v low=%v synth=%v", res.Degraded, res.LowCoverage, res.SynthesisDegraded)
	}
	if res.SynthesisResult != "The council agrees." {
		t.Errorf("SynthesisResult = %q", res.SynthesisResult)
	}
	if res.ID == "" || res.CreatedAt.IsZero() {
		t.Error("expected ID and CreatedAt to be set")
	}
	if len(res.Degradations) != 0 {
		t.Errorf("Degradations = %v, want none", res.Degradations)
	}
	for _, stage := range []string{StageDispatch, StageReview, StageSynthesis, StageScoring} {
		if _, ok := res.StageTimings[stage]; !ok {
			t.Errorf("missing stage timing %q", stage)
		}
	}
	for _, rv := range res.PeerReviews {
		if rv.ReviewerID == rv.RevieweeID {
			t.Errorf("self review %+v", rv)
		}
		if rv.Agreement < 0 || rv.Agreement > 1 {
			t.Errorf("agreement out of range: %+v", rv)
		}
	}
}

func TestDeliberate_PartialReviewCoverage(t *testing.T) {
	agreements := map[string]float64{"a->b": 0.9, "b->a": 0.9}
	r := scriptedReasoner(evenConfidence(), agreements, nil)
	c := newTestCouncil(t, testMembers(), r)

	res, err := c.Deliberate(context.Background(), Request{Query: "q"})
	if err != nil {
		t.Fatalf("Deliberate() error = %v", err)
	}

	if len(res.PeerReviews) != 2 {
		t.Errorf("PeerReviews = %d, want 2", len(res.PeerReviews))
	}
	if !approx(res.ReviewCoverage, 1.0/3) {
		t.Errorf("ReviewCoverage = %v, want 0.333", res.ReviewCoverage)
	}
	if !approx(res.ConsensusScore, 0.6) {
		t.Errorf("ConsensusScore = %v, want 0.6", res.ConsensusScore)
	}
	if !res.LowCoverage {
		t.Error("expected LowCoverage")
	}
	if !containsType(res.Degradations, domain.ErrorTypeReviewCoverageLow) {
		t.Errorf("Degradations = %v, want review_coverage_low", res.Degradations)
	}
	if r.count(domain.PurposeReview) != 6 {
		t.Errorf("review calls = %d, want 6", r.count(domain.PurposeReview))
	}
}

func TestDeliberate_MemberTimeoutWithinQuorum(t *testing.T) {
	r := scriptedReasoner(evenConfidence(), allAgreements(), nil)
	inner := r.fn
	r.fn = func(ctx context.Context, req *domain.ReasonRequest) (*domain.ReasonResult, error) {
		if req.Purpose == domain.PurposeInitial && req.MemberID == "c" {
			<-ctx.Done()
			return nil, ctx.Err()
		}
		return inner(ctx, req)
	}
	s := testSettings()
	s.MemberTimeout = 50 * time.Millisecond
	c := newTestCouncil(t, testMembers(), r, WithSettings(s))

	res, err := c.Deliberate(context.Background(), Request{Query: "q"})
	if err != nil {
		t.Fatalf("Deliberate() error = %v", err)
	}

	if len(res.InitialResponses) != 2 {
		t.Fatalf("InitialResponses = %d, want 2", len(res.InitialResponses))
	}
	for _, resp := range res.InitialResponses {
		if resp.MemberID == "c" {
			t.Error("timed-out member present in InitialResponses")
		}
	}
	for _, rv := range res.PeerReviews {
		if rv.ReviewerID == "c" || rv.RevieweeID == "c" {
			t.Errorf("timed-out member took part in review %+v", rv)
		}
	}
	if len(res.PeerReviews) != 2 {
		t.Errorf("PeerReviews = %d, want 2", len(res.PeerReviews))
	}
	if len(res.MemberFailures) != 1 || res.MemberFailures[0].MemberID != "c" || res.MemberFailures[0].Kind != domain.FailureTimeout {
		t.Errorf("MemberFailures = %+v, want one timeout for c", res.MemberFailures)
	}
	if !containsType(res.Degradations, domain.ErrorTypeMemberTimeout) {
		t.Errorf("Degradations = %v, want member_timeout", res.Degradations)
	}
	// Coverage is over the two responders only.
	if !approx(res.ReviewCoverage, 1.0) {
		t.Errorf("ReviewCoverage = %v, want 1.0", res.ReviewCoverage)
	}
}

func TestDeliberate_SynthesisFallback(t *testing.T) {
	confidence := map[string]float64{"a": 0.5, "b": 0.9, "c": 0.6}
	agreements := map[string]float64{
		"a->b": 0.8, "a->c": 0.8,
		"b->a": 0.8, "b->c": 0.8,
		"c->a": 0.8, "c->b": 0.8,
	}
	r := scriptedReasoner(confidence, agreements, errors.New("upstream down"))
	c := newTestCouncil(t, testMembers(), r)

	res, err := c.Deliberate(context.Background(), Request{Query: "q"})
	if err != nil {
		t.Fatalf("Deliberate() error = %v", err)
	}

	if res.SynthesisResult != "Answer from b" {
		t.Errorf("SynthesisResult = %q, want highest-weighted answer verbatim", res.SynthesisResult)
	}
	if !res.Degraded || !res.SynthesisDegraded {
		t.Errorf("Degraded = %v, SynthesisDegraded = %v, want both true", res.Degraded, res.SynthesisDegraded)
	}
	if !containsType(res.Degradations, domain.ErrorTypeSynthesisFailure) {
		t.Errorf("Degradations = %v, want synthesis_failure", res.Degradations)
	}
	if !approx(res.Weights["b"], 0.85) {
		t.Errorf("weight(b) = %v, want 0.85", res.Weights["b"])
	}
}

func TestDeliberate_InsufficientQuorum(t *testing.T) {
	r := &fakeReasoner{fn: func(ctx context.Context, req *domain.ReasonRequest) (*domain.ReasonResult, error) {
		if req.MemberID == "a" {
			return answer("only me", 0.9), nil
		}
		return nil, errors.New("provider error")
	}}
	c := newTestCouncil(t, testMembers(), r)

	res, err := c.Deliberate(context.Background(), Request{Query: "q"})
	if res != nil {
		t.Error("expected nil result on quorum failure")
	}
	if !errors.Is(err, domain.ErrInsufficientQuorum) {
		t.Fatalf("error = %v, want ErrInsufficientQuorum", err)
	}
	var qe *domain.QuorumError
	if !errors.As(err, &qe) || qe.Obtained != 1 || qe.Required != 2 {
		t.Errorf("QuorumError = %+v, want 1 of 2", qe)
	}
	if domain.ToAPIError(err).HTTPStatusCode() != 503 {
		t.Errorf("status = %d, want 503", domain.ToAPIError(err).HTTPStatusCode())
	}
	if n := r.count(domain.PurposeReview) + r.count(domain.PurposeSynthesis); n != 0 {
		t.Errorf("later stages ran %d calls after quorum failure", n)
	}
}

func TestDeliberate_ConfiguredQuorum(t *testing.T) {
	r := &fakeReasoner{fn: func(ctx context.Context, req *domain.ReasonRequest) (*domain.ReasonResult, error) {
		if req.Purpose == domain.PurposeInitial && req.MemberID == "a" {
			return answer("only me", 0.9), nil
		}
		if req.Purpose == domain.PurposeSynthesis {
			return answer("synth", 0), nil
		}
		return nil, errors.New("provider error")
	}}
	s := testSettings()
	s.Quorum = 1
	c := newTestCouncil(t, testMembers(), r, WithSettings(s))

	res, err := c.Deliberate(context.Background(), Request{Query: "q"})
	if err != nil {
		t.Fatalf("Deliberate() error = %v", err)
	}
	// A single responder has nobody to review.
	if len(res.PeerReviews) != 0 || res.ConsensusScore != 0 || !res.Degraded {
		t.Errorf("reviews=%d score=%v degraded=%v", len(res.PeerReviews), res.ConsensusScore, res.Degraded)
	}
	if len(res.MemberFailures) != 2 {
		t.Errorf("MemberFailures = %d, want 2", len(res.MemberFailures))
	}
	if !containsType(res.Degradations, domain.ErrorTypeMemberInvocation) {
		t.Errorf("Degradations = %v", res.Degradations)
	}
}

func TestDeliberate_ZeroReviews(t *testing.T) {
	r := scriptedReasoner(evenConfidence(), nil, nil)
	c := newTestCouncil(t, testMembers(), r)

	res, err := c.Deliberate(context.Background(), Request{Query: "q"})
	if err != nil {
		t.Fatalf("Deliberate() error = %v", err)
	}
	if res.ConsensusScore != 0 || !res.Degraded || !res.LowCoverage {
		t.Errorf("score=%v degraded=%v low=%v", res.ConsensusScore, res.Degraded, res.LowCoverage)
	}
	if res.SynthesisResult != "The council agrees." {
		t.Errorf("synthesis should still run, got %q", res.SynthesisResult)
	}
}

func TestDeliberate_Symmetrize(t *testing.T) {
	agreements := map[string]float64{"a->b": 0.9, "b->a": 0.7, "a->c": 0.8}
	r := scriptedReasoner(evenConfidence(), agreements, nil)
	s := testSettings()
	s.Symmetrize = true
	c := newTestCouncil(t, testMembers(), r, WithSettings(s))

	res, err := c.Deliberate(context.Background(), Request{Query: "q"})
	if err != nil {
		t.Fatalf("Deliberate() error = %v", err)
	}
	if !approx(res.ReviewCoverage, 2.0/3) {
		t.Errorf("ReviewCoverage = %v, want 0.667", res.ReviewCoverage)
	}
	if !approx(res.ConsensusScore, 0.8*(0.5+0.5*2.0/3)) {
		t.Errorf("ConsensusScore = %v", res.ConsensusScore)
	}
}

func TestDeliberate_ContextDisabled(t *testing.T) {
	cp := &fakeContext{rc: &domain.RetrievedContext{Passages: []domain.Passage{{Text: "x", Source: "s"}}}}
	r := scriptedReasoner(evenConfidence(), allAgreements(), nil)
	c := newTestCouncil(t, testMembers(), r, WithContextProvider(cp))

	res, err := c.Deliberate(context.Background(), Request{Query: "q", UseContext: false})
	if err != nil {
		t.Fatalf("Deliberate() error = %v", err)
	}
	if cp.calls != 0 {
		t.Errorf("context provider called %d times, want 0", cp.calls)
	}
	if res.ContextUnavailable || len(res.Sources) != 0 {
		t.Errorf("ContextUnavailable=%v Sources=%v", res.ContextUnavailable, res.Sources)
	}
}

func TestDeliberate_ContextGroundsPrompts(t *testing.T) {
	cp := &fakeContext{rc: &domain.RetrievedContext{Passages: []domain.Passage{
		{Text: "Fasting is obligatory in Ramadan.", Title: "Fiqh Primer", Source: "primer.pdf", RelevanceScore: 0.9},
		{Text: "Travelers may defer the fast.", Title: "Fiqh Primer", Source: "primer.pdf", RelevanceScore: 0.7},
	}}}
	r := scriptedReasoner(evenConfidence(), allAgreements(), nil)
	c := newTestCouncil(t, testMembers(), r, WithContextProvider(cp))

	res, err := c.Deliberate(context.Background(), Request{Query: "Must travelers fast?", UseContext: true})
	if err != nil {
		t.Fatalf("Deliberate() error = %v", err)
	}
	if cp.calls != 1 {
		t.Errorf("context provider called %d times, want 1", cp.calls)
	}
	if len(res.Sources) != 1 || res.Sources[0].Source != "primer.pdf" {
		t.Errorf("Sources = %+v, want one deduplicated source", res.Sources)
	}
	for _, req := range r.requests(domain.PurposeInitial) {
		if !strings.Contains(req.Prompt, "Travelers may defer the fast.") {
			t.Errorf("prompt for %s lacks passage", req.MemberID)
		}
		if !strings.Contains(req.Prompt, "Must travelers fast?") {
			t.Errorf("prompt for %s lacks query", req.MemberID)
		}
	}
}

func TestDeliberate_ContextFailureIsNonFatal(t *testing.T) {
	cp := &fakeContext{err: errors.New("index offline")}
	r := scriptedReasoner(evenConfidence(), allAgreements(), nil)
	c := newTestCouncil(t, testMembers(), r, WithContextProvider(cp))

	res, err := c.Deliberate(context.Background(), Request{Query: "q", UseContext: true})
	if err != nil {
		t.Fatalf("Deliberate() error = %v", err)
	}
	if !res.ContextUnavailable {
		t.Error("expected ContextUnavailable")
	}
	if !containsType(res.Degradations, domain.ErrorTypeContextProviderFailure) {
		t.Errorf("Degradations = %v", res.Degradations)
	}
	if len(res.InitialResponses) != 3 {
		t.Errorf("InitialResponses = %d, want 3", len(res.InitialResponses))
	}
}

func TestDeliberate_Perspective(t *testing.T) {
	members := append(testMembers(), domain.CouncilMember{
		ID: "d", Name: "Delta", ReasoningSelector: "test/model-d", Perspectives: []string{"hanafi"},
	}, domain.CouncilMember{
		ID: "e", Name: "Epsilon", ReasoningSelector: "test/model-e", Perspectives: []string{"maliki"},
	})
	r := scriptedReasoner(map[string]float64{"a": 0.8, "b": 0.8, "c": 0.8, "d": 0.8, "e": 0.8}, allAgreements(), nil)
	c := newTestCouncil(t, members, r)

	res, err := c.Deliberate(context.Background(), Request{Query: "q", Perspective: "hanafi"})
	if err != nil {
		t.Fatalf("Deliberate() error = %v", err)
	}
	if got := ids(res.CouncilMembers); !equalIDs(got, []string{"a", "b", "c", "d"}) {
		t.Errorf("CouncilMembers = %v", got)
	}
	for _, req := range r.requests(domain.PurposeInitial) {
		if req.MemberID == "e" {
			t.Error("member outside the perspective was consulted")
		}
	}

	_, err = c.Deliberate(context.Background(), Request{Query: "q", Perspective: "zahiri"})
	if domain.ToAPIError(err).Type != domain.ErrorTypeInvalidRequest {
		t.Errorf("unknown perspective error = %v", err)
	}
}

func TestDeliberate_EmptyQuery(t *testing.T) {
	r := scriptedReasoner(evenConfidence(), allAgreements(), nil)
	c := newTestCouncil(t, testMembers(), r)

	_, err := c.Deliberate(context.Background(), Request{Query: "   "})
	if domain.ToAPIError(err).Type != domain.ErrorTypeInvalidRequest {
		t.Errorf("error = %v, want invalid_request", err)
	}
	if len(r.calls) != 0 {
		t.Errorf("reasoner called %d times", len(r.calls))
	}
}

func TestDeliberate_CallerCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var started atomic.Int32
	r := &fakeReasoner{fn: func(ctx context.Context, req *domain.ReasonRequest) (*domain.ReasonResult, error) {
		if started.Add(1) == 3 {
			cancel()
		}
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	c := newTestCouncil(t, testMembers(), r)

	_, err := c.Deliberate(ctx, Request{Query: "q"})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
	if domain.ToAPIError(err).Type != domain.ErrorTypeCanceled {
		t.Errorf("type = %s, want canceled", domain.ToAPIError(err).Type)
	}
	if r.count(domain.PurposeReview) != 0 {
		t.Error("review stage ran after cancellation")
	}
}

func TestDeliberate_ReviewerSettings(t *testing.T) {
	r := scriptedReasoner(evenConfidence(), allAgreements(), nil)
	s := testSettings()
	s.ReviewTemperature = 0.4
	s.SynthesizerSelector = "test/synth"
	s.SynthesizerTemperature = 0.9
	c := newTestCouncil(t, testMembers(), r, WithSettings(s))

	if _, err := c.Deliberate(context.Background(), Request{Query: "q"}); err != nil {
		t.Fatal(err)
	}

	byID := map[string]string{"a": "test/model-a", "b": "test/model-b", "c": "test/model-c"}
	for _, req := range r.requests(domain.PurposeReview) {
		if req.Temperature != 0.4 {
			t.Errorf("review temperature = %v, want 0.4", req.Temperature)
		}
		if req.Selector != byID[req.MemberID] {
			t.Errorf("review by %s used selector %s", req.MemberID, req.Selector)
		}
	}
	for _, req := range r.requests(domain.PurposeInitial) {
		if req.Selector != byID[req.MemberID] {
			t.Errorf("initial call for %s used selector %s", req.MemberID, req.Selector)
		}
	}
	synth := r.requests(domain.PurposeSynthesis)
	if len(synth) != 1 || synth[0].Selector != "test/synth" || synth[0].Temperature != 0.9 {
		t.Errorf("synthesis requests = %+v", synth)
	}
	if !strings.Contains(synth[0].Prompt, "Answer from a") {
		t.Error("synthesis prompt lacks member answers")
	}
}

func TestDeliberate_RegistryChangeDoesNotAffectInFlight(t *testing.T) {
	release := make(chan struct{})
	r := scriptedReasoner(evenConfidence(), allAgreements(), nil)
	inner := r.fn
	r.fn = func(ctx context.Context, req *domain.ReasonRequest) (*domain.ReasonResult, error) {
		if req.Purpose == domain.PurposeInitial {
			<-release
		}
		return inner(ctx, req)
	}
	c := newTestCouncil(t, testMembers(), r)

	done := make(chan *domain.ConsensusResult, 1)
	go func() {
		res, err := c.Deliberate(context.Background(), Request{Query: "q"})
		if err != nil {
			t.Errorf("Deliberate() error = %v", err)
		}
		done <- res
	}()

	for r.count(domain.PurposeInitial) < 3 {
		time.Sleep(time.Millisecond)
	}
	if err := c.Registry().Replace([]domain.CouncilMember{{ID: "z", Name: "Zeta", ReasoningSelector: "x/y"}}); err != nil {
		t.Fatal(err)
	}
	close(release)

	res := <-done
	if res == nil {
		t.Fatal("nil result")
	}
	if len(res.CouncilMembers) != 3 || len(res.InitialResponses) != 3 {
		t.Errorf("in-flight deliberation saw registry change: members=%d responses=%d",
			len(res.CouncilMembers), len(res.InitialResponses))
	}
}

func containsType(list []domain.ErrorType, t domain.ErrorType) bool {
	for _, e := range list {
		if e == t {
			return true
		}
	}
	return false
}
