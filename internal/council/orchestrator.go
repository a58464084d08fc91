// Package council implements the consensus engine: it dispatches a query to
// the council members, runs an all-pairs peer review, synthesizes a weighted
// answer and scores how far the members agree.
package council

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tjfontaine/polyglot-council/internal/core/domain"
	"github.com/tjfontaine/polyglot-council/internal/core/ports"
	"github.com/tjfontaine/polyglot-council/internal/telemetry"
	"github.com/tjfontaine/polyglot-council/internal/tokens"
)

// Stage names used for timings and spans.
const (
	StageContext   = "context"
	StageDispatch  = "dispatch"
	StageReview    = "review"
	StageSynthesis = "synthesis"
	StageScoring   = "scoring"
)

// Request is one question put to the council.
type Request struct {
	Query string
	// UseContext fetches grounding passages before dispatch.
	UseContext bool
	// Perspective restricts the council to universal members plus members
	// tagged with it. Empty consults everyone.
	Perspective string
	// TopK overrides the configured number of passages.
	TopK int
}

// Council runs deliberations.
type Council struct {
	registry        *Registry
	reasoner        ports.Reasoner
	contextProvider ports.ContextProvider
	counter         tokens.Counter
	logger          *slog.Logger
	tracer          trace.Tracer
	now             func() time.Time

	mu       sync.RWMutex
	settings Settings
}

// Option configures a Council.
type Option func(*Council)

// WithContextProvider sets the source of grounding passages.
func WithContextProvider(cp ports.ContextProvider) Option {
	return func(c *Council) {
		c.contextProvider = cp
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Council) {
		c.logger = logger
	}
}

// WithSettings replaces the default settings.
func WithSettings(s Settings) Option {
	return func(c *Council) {
		c.settings = s
	}
}

// WithTokenCounter sets the counter used to keep prompts within budget.
func WithTokenCounter(counter tokens.Counter) Option {
	return func(c *Council) {
		c.counter = counter
	}
}

// New creates a council over the registry.
func New(registry *Registry, reasoner ports.Reasoner, opts ...Option) *Council {
	c := &Council{
		registry: registry,
		reasoner: reasoner,
		counter:  tokens.NewEstimator(),
		logger:   slog.Default(),
		tracer:   telemetry.Tracer("council"),
		now:      time.Now,
		settings: DefaultSettings(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Registry returns the member registry.
func (c *Council) Registry() *Registry {
	return c.registry
}

// Settings returns the current settings.
func (c *Council) Settings() Settings {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.settings
}

// UpdateSettings swaps the settings. Deliberations in flight keep the
// settings they started with.
func (c *Council) UpdateSettings(s Settings) {
	c.mu.Lock()
	c.settings = s
	c.mu.Unlock()
}

// deliberation tracks the state machine of one request.
type deliberation struct {
	id     string
	state  domain.State
	logger *slog.Logger
	span   trace.Span
}

func (d *deliberation) transition(to domain.State) {
	if d.state.Terminal() {
		panic(fmt.Sprintf("council: transition %s -> %s from terminal state", d.state, to))
	}
	d.logger.Debug("deliberation state", slog.String("from", string(d.state)), slog.String("to", string(to)))
	d.span.AddEvent("state", trace.WithAttributes(attribute.String("state", string(to))))
	d.state = to
}

func (d *deliberation) fail(err error) error {
	d.transition(domain.StateFailed)
	d.span.RecordError(err)
	d.span.SetStatus(codes.Error, err.Error())
	d.logger.Warn("deliberation failed", slog.String("error", err.Error()))
	return err
}

// Deliberate runs the full pipeline once. It returns an error only for an
// invalid request, an unmet quorum or cancellation by the caller; every
// other failure is reported as a flag on the result.
func (c *Council) Deliberate(ctx context.Context, req Request) (*domain.ConsensusResult, error) {
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, domain.ErrInvalidRequest("query is required").WithParam("query")
	}

	members, err := c.registry.Snapshot(req.Perspective)
	if err != nil {
		return nil, err
	}
	settings := c.Settings()
	start := c.now()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	id := uuid.New().String()
	ctx, span := c.tracer.Start(ctx, "council.deliberate", trace.WithAttributes(
		attribute.String("council.deliberation_id", id),
		attribute.String("council.perspective", req.Perspective),
		attribute.Int("council.members", len(members)),
		attribute.Bool("council.use_context", req.UseContext),
	))
	defer span.End()

	d := &deliberation{
		id:     id,
		state:  domain.StateIdle,
		logger: c.logger.With(slog.String("deliberation_id", id)),
		span:   span,
	}
	d.logger.Info("deliberation started",
		slog.Int("members", len(members)),
		slog.String("perspective", req.Perspective),
		slog.Bool("use_context", req.UseContext))

	result := &domain.ConsensusResult{
		ID:             id,
		Query:          query,
		Perspective:    req.Perspective,
		CouncilMembers: members,
		StageTimings:   make(map[string]int64, 5),
		CreatedAt:      start.UTC(),
	}
	timed := func(stage string, fn func(context.Context)) {
		stageCtx, stageSpan := c.tracer.Start(ctx, "council."+stage)
		t := c.now()
		fn(stageCtx)
		result.StageTimings[stage] = c.now().Sub(t).Milliseconds()
		stageSpan.End()
	}

	// Context
	d.transition(domain.StateFetchingContext)
	var rc *domain.RetrievedContext
	if req.UseContext {
		timed(StageContext, func(ctx context.Context) {
			rc, err = c.fetchContext(ctx, query, req.TopK, settings)
		})
		if err != nil {
			if cerr := ctx.Err(); cerr != nil {
				return nil, d.fail(canceled(cerr))
			}
			d.logger.Warn("context unavailable", slog.String("error", err.Error()))
			result.ContextUnavailable = true
			rc = nil
		}
		result.Sources = rc.Sources()
	}

	// Dispatch
	d.transition(domain.StateDispatching)
	var dispatch Dispatch
	timed(StageDispatch, func(ctx context.Context) {
		dispatch = c.dispatcher(settings).DispatchInitial(ctx, query, rc, members, settings.MemberTimeout)
	})
	if cerr := ctx.Err(); cerr != nil {
		return nil, d.fail(canceled(cerr))
	}
	if err := CheckQuorum(len(dispatch.Responses), settings.RequiredQuorum(len(members))); err != nil {
		cancel()
		return nil, d.fail(err)
	}
	result.InitialResponses = dispatch.Responses
	result.MemberFailures = dispatch.Failures

	// Review
	d.transition(domain.StateReviewing)
	var reviews []domain.PeerReview
	timed(StageReview, func(ctx context.Context) {
		reviews = c.reviewer(settings).RunPeerReview(ctx, query, dispatch.Responses, members)
	})
	if cerr := ctx.Err(); cerr != nil {
		return nil, d.fail(canceled(cerr))
	}
	result.PeerReviews = reviews

	// Synthesis
	d.transition(domain.StateSynthesizing)
	var synthesis Synthesis
	timed(StageSynthesis, func(ctx context.Context) {
		synthesis = c.synthesizer(settings, members).Synthesize(ctx, query, dispatch.Responses, reviews)
	})
	if cerr := ctx.Err(); cerr != nil {
		return nil, d.fail(canceled(cerr))
	}
	result.SynthesisResult = synthesis.Text
	result.SynthesisDegraded = synthesis.Degraded
	result.Weights = synthesis.Weights

	// Scoring
	d.transition(domain.StateScoring)
	var score Score
	timed(StageScoring, func(context.Context) {
		responders := make([]string, 0, len(dispatch.Responses))
		for _, r := range dispatch.Responses {
			responders = append(responders, r.MemberID)
		}
		score = ScoreReviews(reviews, responders, ScoreOptions{
			Symmetrize:           settings.Symmetrize,
			LowCoverageThreshold: settings.LowCoverageThreshold,
		})
	})
	result.ConsensusScore = score.Value
	result.ReviewCoverage = score.Coverage
	result.LowCoverage = score.LowCoverage
	result.Degraded = synthesis.Degraded || score.Empty
	result.Degradations = degradations(result)
	result.ExecutionTime = c.now().Sub(start).Milliseconds()

	d.transition(domain.StateDone)
	span.SetAttributes(
		attribute.Float64("council.consensus_score", result.ConsensusScore),
		attribute.Float64("council.review_coverage", result.ReviewCoverage),
		attribute.Bool("council.degraded", result.Degraded),
	)
	d.logger.Info("deliberation finished",
		slog.Int("responses", len(result.InitialResponses)),
		slog.Int("failures", len(result.MemberFailures)),
		slog.Int("reviews", len(result.PeerReviews)),
		slog.Float64("consensus_score", result.ConsensusScore),
		slog.Bool("degraded", result.Degraded),
		slog.Int64("execution_ms", result.ExecutionTime))

	return result, nil
}

func (c *Council) fetchContext(ctx context.Context, query string, topK int, settings Settings) (*domain.RetrievedContext, error) {
	if c.contextProvider == nil {
		return nil, errors.New("no context provider configured")
	}
	if topK <= 0 {
		topK = settings.TopK
	}
	ctx, cancel := context.WithTimeout(ctx, settings.ContextTimeout)
	defer cancel()

	rc, err := c.contextProvider.Retrieve(ctx, query, topK)
	if err != nil {
		return nil, fmt.Errorf("retrieve context: %w", err)
	}
	return rc, nil
}

func (c *Council) prompts(settings Settings) promptBuilder {
	return promptBuilder{
		counter:       c.counter,
		passageBudget: settings.ContextTokenBudget,
		excerptBudget: settings.ExcerptTokenBudget,
	}
}

func (c *Council) dispatcher(settings Settings) *Dispatcher {
	return &Dispatcher{
		reasoner:  c.reasoner,
		prompts:   c.prompts(settings),
		maxTokens: settings.MaxTokens,
		logger:    c.logger,
	}
}

func (c *Council) reviewer(settings Settings) *Reviewer {
	return &Reviewer{
		reasoner:    c.reasoner,
		prompts:     c.prompts(settings),
		temperature: settings.ReviewTemperature,
		concurrency: settings.ReviewConcurrency,
		timeout:     settings.ReviewTimeout,
		maxTokens:   settings.MaxTokens,
		logger:      c.logger,
	}
}

// synthesizer uses the configured selector, falling back to the first
// consulted member's.
func (c *Council) synthesizer(settings Settings, members []domain.CouncilMember) *Synthesizer {
	selector := settings.SynthesizerSelector
	if selector == "" && len(members) > 0 {
		selector = members[0].ReasoningSelector
	}
	return &Synthesizer{
		reasoner:    c.reasoner,
		prompts:     c.prompts(settings),
		selector:    selector,
		temperature: settings.SynthesizerTemperature,
		timeout:     settings.SynthesisTimeout,
		maxTokens:   settings.MaxTokens,
		logger:      c.logger,
	}
}

func canceled(err error) error {
	return fmt.Errorf("%w: %w", domain.NewAPIError(domain.ErrorTypeCanceled, "deliberation canceled"), err)
}

func degradations(r *domain.ConsensusResult) []domain.ErrorType {
	var out []domain.ErrorType
	add := func(t domain.ErrorType) {
		for _, e := range out {
			if e == t {
				return
			}
		}
		out = append(out, t)
	}
	if r.ContextUnavailable {
		add(domain.ErrorTypeContextProviderFailure)
	}
	for _, f := range r.MemberFailures {
		add(domain.ErrorType(f.Kind))
	}
	if r.LowCoverage {
		add(domain.ErrorTypeReviewCoverageLow)
	}
	if r.SynthesisDegraded {
		add(domain.ErrorTypeSynthesisFailure)
	}
	return out
}
