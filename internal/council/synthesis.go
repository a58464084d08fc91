package council

import (
	"context"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/tjfontaine/polyglot-council/internal/core/domain"
	"github.com/tjfontaine/polyglot-council/internal/core/ports"
)

// Synthesis is the reconciled answer of a deliberation.
type Synthesis struct {
	Text string
	// Degraded is set when the synthesizer failed and Text is the
	// highest-weighted member answer.
	Degraded bool
	Weights  map[string]float64
}

type weightedResponse struct {
	Response domain.MemberResponse
	Weight   float64
}

// Synthesizer reconciles member answers into one.
type Synthesizer struct {
	reasoner    ports.Reasoner
	prompts     promptBuilder
	selector    string
	temperature float64
	timeout     time.Duration
	maxTokens   int
	logger      *slog.Logger
}

// Weigh returns each response's weight, sorted by weight descending with
// ties broken by member ID:
//
//	weight = 0.5*confidence + 0.5*meanIncomingAgreement
//
// A member nobody reviewed uses its own confidence for the agreement term.
func Weigh(responses []domain.MemberResponse, reviews []domain.PeerReview) []weightedResponse {
	incoming := incomingAgreement(reviews)
	out := make([]weightedResponse, 0, len(responses))
	for _, r := range responses {
		agreement, ok := incoming[r.MemberID]
		if !ok {
			agreement = r.Confidence
		}
		out = append(out, weightedResponse{Response: r, Weight: 0.5*r.Confidence + 0.5*agreement})
	}
	slices.SortStableFunc(out, func(a, b weightedResponse) int {
		switch {
		case a.Weight > b.Weight:
			return -1
		case a.Weight < b.Weight:
			return 1
		}
		return strings.Compare(a.Response.MemberID, b.Response.MemberID)
	})
	return out
}

// Synthesize asks the synthesizer for one answer. If that fails the
// highest-weighted response is returned verbatim and marked Degraded.
func (s *Synthesizer) Synthesize(ctx context.Context, query string, responses []domain.MemberResponse, reviews []domain.PeerReview) Synthesis {
	weighted := Weigh(responses, reviews)
	weights := make(map[string]float64, len(weighted))
	for _, w := range weighted {
		weights[w.Response.MemberID] = w.Weight
	}
	if len(weighted) == 0 {
		return Synthesis{Degraded: true, Weights: weights}
	}

	res, err := callWithTimeout(ctx, s.reasoner, &domain.ReasonRequest{
		Selector:    s.selector,
		Purpose:     domain.PurposeSynthesis,
		System:      synthesizerSystemPrompt,
		Prompt:      s.prompts.synthesis(s.selector, query, weighted, reviews),
		Temperature: s.temperature,
		MaxTokens:   s.maxTokens,
	}, s.timeout)
	if err == nil && (res == nil || strings.TrimSpace(res.Text) == "") {
		err = domain.ErrEmptyResponse
	}
	if err != nil {
		s.logger.Warn("synthesis failed, using highest-weighted answer",
			slog.String("member_id", weighted[0].Response.MemberID),
			slog.String("error", err.Error()))
		return Synthesis{Text: weighted[0].Response.Response, Degraded: true, Weights: weights}
	}
	return Synthesis{Text: strings.TrimSpace(res.Text), Weights: weights}
}
