// Package domain holds the council's canonical data model and error types.
package domain

import (
	"strings"
	"time"
)

// CouncilMember is one configured reasoning perspective.
type CouncilMember struct {
	ID                string   `json:"id"`
	Name              string   `json:"name"`
	Role              string   `json:"role"`
	ReasoningSelector string   `json:"reasoningSelector"`
	Temperature       float64  `json:"temperature"`
	SystemPrompt      string   `json:"-"`
	Perspectives      []string `json:"perspectives,omitempty"`
}

// Universal reports whether the member is consulted regardless of the
// requested perspective.
func (m CouncilMember) Universal() bool {
	return len(m.Perspectives) == 0
}

// HasPerspective reports whether the member carries the perspective tag.
// Matching is case-insensitive.
func (m CouncilMember) HasPerspective(perspective string) bool {
	for _, p := range m.Perspectives {
		if strings.EqualFold(p, perspective) {
			return true
		}
	}
	return false
}

// MemberResponse is a member's answer to the initial query.
type MemberResponse struct {
	MemberID   string  `json:"memberId"`
	MemberName string  `json:"memberName"`
	Response   string  `json:"response"`
	Reasoning  string  `json:"reasoning"`
	Confidence float64 `json:"confidence"`
}

// FailureKind classifies why a member produced no response.
type FailureKind string

const (
	FailureTimeout    FailureKind = "member_timeout"
	FailureInvocation FailureKind = "member_invocation_failure"
)

// MemberFailure is the non-Ok outcome of a single dispatch.
type MemberFailure struct {
	MemberID   string      `json:"memberId"`
	MemberName string      `json:"memberName"`
	Kind       FailureKind `json:"kind"`
	Message    string      `json:"message"`
}

// PeerReview is one member's judgment of another member's answer.
// ReviewerID never equals RevieweeID.
type PeerReview struct {
	ReviewerID string  `json:"reviewerId"`
	RevieweeID string  `json:"revieweeId"`
	Agreement  float64 `json:"agreement"`
	Comments   string  `json:"comments"`
}

// Passage is a single grounding excerpt returned by a context provider.
type Passage struct {
	Text           string  `json:"text"`
	Title          string  `json:"title,omitempty"`
	Source         string  `json:"source"`
	RelevanceScore float64 `json:"relevanceScore"`
}

// RetrievedContext is the ranked set of passages for a query.
type RetrievedContext struct {
	Passages []Passage `json:"passages"`
}

// Empty reports whether there is nothing to ground prompts with.
func (rc *RetrievedContext) Empty() bool {
	return rc == nil || len(rc.Passages) == 0
}

// SourceRef identifies where a passage came from.
type SourceRef struct {
	Title  string `json:"title"`
	Source string `json:"source"`
}

// Sources returns the unique (title, source) pairs in rank order.
func (rc *RetrievedContext) Sources() []SourceRef {
	if rc.Empty() {
		return nil
	}
	seen := make(map[SourceRef]bool, len(rc.Passages))
	var out []SourceRef
	for _, p := range rc.Passages {
		ref := SourceRef{Title: p.Title, Source: p.Source}
		if seen[ref] {
			continue
		}
		seen[ref] = true
		out = append(out, ref)
	}
	return out
}

// ConsensusResult is the outcome of one deliberation. It is assembled once
// at the end of the pipeline and never mutated afterwards.
type ConsensusResult struct {
	ID                 string             `json:"id"`
	Query              string             `json:"query"`
	Perspective        string             `json:"perspective,omitempty"`
	CouncilMembers     []CouncilMember    `json:"councilMembers"`
	InitialResponses   []MemberResponse   `json:"initialResponses"`
	MemberFailures     []MemberFailure    `json:"memberFailures,omitempty"`
	PeerReviews        []PeerReview       `json:"peerReviews"`
	SynthesisResult    string             `json:"synthesisResult"`
	ConsensusScore     float64            `json:"consensusScore"`
	ReviewCoverage     float64            `json:"reviewCoverage"`
	Weights            map[string]float64 `json:"weights,omitempty"`
	Degraded           bool               `json:"degraded"`
	SynthesisDegraded  bool               `json:"synthesisDegraded"`
	ContextUnavailable bool               `json:"contextUnavailable"`
	LowCoverage        bool               `json:"lowCoverage"`
	Degradations       []ErrorType        `json:"degradations,omitempty"`
	Sources            []SourceRef        `json:"sources,omitempty"`
	StageTimings       map[string]int64   `json:"stageTimings,omitempty"`
	ExecutionTime      int64              `json:"executionTime"`
	CreatedAt          time.Time          `json:"createdAt"`
}

// DeliberationSummary is the list view of a stored ConsensusResult.
type DeliberationSummary struct {
	ID             string    `json:"id"`
	Query          string    `json:"query"`
	Perspective    string    `json:"perspective,omitempty"`
	ConsensusScore float64   `json:"consensusScore"`
	Degraded       bool      `json:"degraded"`
	ExecutionTime  int64     `json:"executionTime"`
	CreatedAt      time.Time `json:"createdAt"`
}

// Summary returns the list view of the result.
func (r *ConsensusResult) Summary() DeliberationSummary {
	return DeliberationSummary{
		ID:             r.ID,
		Query:          r.Query,
		Perspective:    r.Perspective,
		ConsensusScore: r.ConsensusScore,
		Degraded:       r.Degraded,
		ExecutionTime:  r.ExecutionTime,
		CreatedAt:      r.CreatedAt,
	}
}

// State is a stage of the deliberation state machine.
type State string

const (
	StateIdle            State = "idle"
	StateFetchingContext State = "fetching_context"
	StateDispatching     State = "dispatching"
	StateReviewing       State = "reviewing"
	StateSynthesizing    State = "synthesizing"
	StateScoring         State = "scoring"
	StateDone            State = "done"
	StateFailed          State = "failed"
)

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed
}
