package council

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tjfontaine/polyglot-council/internal/core/domain"
	"github.com/tjfontaine/polyglot-council/internal/core/ports"
	"github.com/tjfontaine/polyglot-council/internal/extract"
)

// DefaultConfidence is assumed when a reasoner reports no confidence.
const DefaultConfidence = 0.7

// Dispatch is the fan-in of one initial dispatch. Responses and failures
// are ordered by completion.
type Dispatch struct {
	Responses []domain.MemberResponse
	Failures  []domain.MemberFailure
}

// Dispatcher fans a query out to council members.
type Dispatcher struct {
	reasoner  ports.Reasoner
	prompts   promptBuilder
	maxTokens int
	logger    *slog.Logger
}

// dispatchSlot is written by exactly one goroutine and read after the barrier.
type dispatchSlot struct {
	seq      int64
	response *domain.MemberResponse
	failure  *domain.MemberFailure
}

// DispatchInitial invokes every member concurrently, each under its own
// timeout. A slow or failing member never cancels its siblings; the call
// returns once every member has produced a response or a failure.
func (d *Dispatcher) DispatchInitial(ctx context.Context, query string, rc *domain.RetrievedContext, members []domain.CouncilMember, timeout time.Duration) Dispatch {
	slots := make([]dispatchSlot, len(members))
	var seq atomic.Int64
	var wg sync.WaitGroup

	for i, m := range members {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, fail := d.invoke(ctx, m, d.prompts.initial(m, query, rc), timeout)
			slots[i] = dispatchSlot{seq: seq.Add(1), response: resp, failure: fail}
		}()
	}
	wg.Wait()

	slices.SortFunc(slots, func(a, b dispatchSlot) int { return int(a.seq - b.seq) })

	var out Dispatch
	for _, s := range slots {
		if s.response != nil {
			out.Responses = append(out.Responses, *s.response)
		}
		if s.failure != nil {
			out.Failures = append(out.Failures, *s.failure)
		}
	}
	return out
}

func (d *Dispatcher) invoke(ctx context.Context, m domain.CouncilMember, prompt string, timeout time.Duration) (*domain.MemberResponse, *domain.MemberFailure) {
	start := time.Now()
	res, err := callWithTimeout(ctx, d.reasoner, &domain.ReasonRequest{
		Selector:    m.ReasoningSelector,
		Purpose:     domain.PurposeInitial,
		MemberID:    m.ID,
		System:      systemPrompt(m),
		Prompt:      prompt,
		Temperature: m.Temperature,
		MaxTokens:   d.maxTokens,
	}, timeout)

	if err == nil && (res == nil || res.Text == "") {
		err = domain.ErrEmptyResponse
	}
	if err != nil {
		kind := domain.FailureInvocation
		if errors.Is(err, domain.ErrMemberTimeout) {
			kind = domain.FailureTimeout
		}
		d.logger.Warn("council member failed",
			slog.String("member_id", m.ID),
			slog.String("kind", string(kind)),
			slog.Duration("elapsed", time.Since(start)),
			slog.String("error", err.Error()))
		return nil, &domain.MemberFailure{
			MemberID:   m.ID,
			MemberName: m.Name,
			Kind:       kind,
			Message:    err.Error(),
		}
	}

	confidence := res.Confidence
	if confidence <= 0 {
		if v, ok := extract.Confidence(res.Text); ok {
			confidence = v
		} else {
			confidence = DefaultConfidence
		}
	}

	d.logger.Debug("council member responded",
		slog.String("member_id", m.ID),
		slog.Float64("confidence", confidence),
		slog.Duration("elapsed", time.Since(start)))

	return &domain.MemberResponse{
		MemberID:   m.ID,
		MemberName: m.Name,
		Response:   extract.Answer(res.Text),
		Reasoning:  extract.Reasoning(res.Text),
		Confidence: extract.Clamp(confidence),
	}, nil
}

// callWithTimeout runs one reasoner call under its own deadline. A result
// that arrives after the deadline is discarded and reported as
// ErrMemberTimeout. Cancellation of ctx itself is returned as ctx.Err().
func callWithTimeout(ctx context.Context, r ports.Reasoner, req *domain.ReasonRequest, timeout time.Duration) (*domain.ReasonResult, error) {
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		res *domain.ReasonResult
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := r.Reason(callCtx, req)
		done <- outcome{res, err}
	}()

	select {
	case o := <-done:
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if callCtx.Err() != nil {
			return nil, fmt.Errorf("%w after %s", domain.ErrMemberTimeout, timeout)
		}
		return o.res, o.err
	case <-callCtx.Done():
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w after %s", domain.ErrMemberTimeout, timeout)
	}
}

// CheckQuorum fails with a *domain.QuorumError when fewer than required
// members responded.
func CheckQuorum(obtained, required int) error {
	if obtained < required {
		return &domain.QuorumError{Obtained: obtained, Required: required}
	}
	return nil
}
