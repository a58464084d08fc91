package council

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tjfontaine/polyglot-council/internal/core/domain"
	"github.com/tjfontaine/polyglot-council/internal/core/ports"
	"github.com/tjfontaine/polyglot-council/internal/extract"
)

// Reviewer runs the all-pairs peer review stage.
type Reviewer struct {
	reasoner    ports.Reasoner
	prompts     promptBuilder
	temperature float64
	concurrency int
	timeout     time.Duration
	maxTokens   int
	logger      *slog.Logger
}

type reviewTask struct {
	reviewer domain.CouncilMember
	target   domain.MemberResponse
}

// RunPeerReview asks every responding member to review every other
// responding member's answer. Failed, timed-out and unparseable reviews are
// left out; the returned reviews follow the order of responses.
func (r *Reviewer) RunPeerReview(ctx context.Context, query string, responses []domain.MemberResponse, members []domain.CouncilMember) []domain.PeerReview {
	byID := make(map[string]domain.CouncilMember, len(members))
	for _, m := range members {
		byID[m.ID] = m
	}

	var tasks []reviewTask
	for _, reviewerResp := range responses {
		reviewer, ok := byID[reviewerResp.MemberID]
		if !ok {
			continue
		}
		for _, target := range responses {
			if target.MemberID == reviewer.ID {
				continue
			}
			tasks = append(tasks, reviewTask{reviewer: reviewer, target: target})
		}
	}

	slots := make([]*domain.PeerReview, len(tasks))

	// Individual review failures are omitted, never returned, so the group
	// never cancels sibling tasks.
	var g errgroup.Group
	if r.concurrency > 0 {
		g.SetLimit(r.concurrency)
	}
	for i, task := range tasks {
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			slots[i] = r.review(ctx, query, task)
			return nil
		})
	}
	_ = g.Wait()

	out := make([]domain.PeerReview, 0, len(tasks))
	for _, s := range slots {
		if s != nil {
			out = append(out, *s)
		}
	}
	return out
}

func (r *Reviewer) review(ctx context.Context, query string, task reviewTask) *domain.PeerReview {
	logger := r.logger.With(
		slog.String("reviewer_id", task.reviewer.ID),
		slog.String("reviewee_id", task.target.MemberID))

	res, err := callWithTimeout(ctx, r.reasoner, &domain.ReasonRequest{
		Selector:    task.reviewer.ReasoningSelector,
		Purpose:     domain.PurposeReview,
		MemberID:    task.reviewer.ID,
		System:      systemPrompt(task.reviewer),
		Prompt:      r.prompts.review(task.reviewer, query, task.target),
		Temperature: r.temperature,
		MaxTokens:   r.maxTokens,
	}, r.timeout)
	if err != nil {
		logger.Warn("peer review failed", slog.String("error", err.Error()))
		return nil
	}
	if res == nil {
		logger.Warn("peer review failed", slog.String("error", domain.ErrEmptyResponse.Error()))
		return nil
	}

	agreement, ok := extract.Agreement(res.Text)
	if !ok {
		logger.Warn("peer review unparseable", slog.String("text", extract.Truncate(res.Text, 120)))
		return nil
	}

	comments, ok := extract.Section(res.Text, "comments")
	if !ok {
		comments = strings.TrimSpace(res.Text)
	}
	return &domain.PeerReview{
		ReviewerID: task.reviewer.ID,
		RevieweeID: task.target.MemberID,
		Agreement:  agreement,
		Comments:   comments,
	}
}

// reviewKey identifies a directed review edge.
type reviewKey struct{ from, to string }

// incomingAgreement returns the mean agreement each member received.
func incomingAgreement(reviews []domain.PeerReview) map[string]float64 {
	sums := make(map[string]float64)
	counts := make(map[string]int)
	for _, rv := range reviews {
		if rv.ReviewerID == rv.RevieweeID {
			continue
		}
		sums[rv.RevieweeID] += rv.Agreement
		counts[rv.RevieweeID]++
	}
	out := make(map[string]float64, len(sums))
	for id, s := range sums {
		out[id] = s / float64(counts[id])
	}
	return out
}
