package council

import (
	"github.com/tjfontaine/polyglot-council/internal/core/domain"
	"github.com/tjfontaine/polyglot-council/internal/extract"
)

// Score summarizes the agreement matrix of one deliberation.
type Score struct {
	Value         float64
	MeanAgreement float64
	Coverage      float64
	Edges         int
	PossibleEdges int
	LowCoverage   bool
	// Empty is set when no usable review exists; Value is then 0.
	Empty bool
}

// ScoreOptions tune ScoreReviews.
type ScoreOptions struct {
	Symmetrize           bool
	LowCoverageThreshold float64
}

// ScoreReviews computes the consensus score over the responders' review
// matrix:
//
//	consensus = meanAgreement * (0.5 + 0.5*coverage)
//
// Reviews touching a non-responder, self-reviews and duplicates are ignored.
// With Symmetrize, reciprocal reviews are averaged per unordered pair and
// coverage counts unordered pairs.
func ScoreReviews(reviews []domain.PeerReview, responders []string, opts ScoreOptions) Score {
	in := make(map[string]bool, len(responders))
	for _, id := range responders {
		in[id] = true
	}
	n := len(in)

	edges := make(map[reviewKey]float64)
	for _, rv := range reviews {
		if rv.ReviewerID == rv.RevieweeID || !in[rv.ReviewerID] || !in[rv.RevieweeID] {
			continue
		}
		k := reviewKey{from: rv.ReviewerID, to: rv.RevieweeID}
		if _, dup := edges[k]; dup {
			continue
		}
		edges[k] = extract.Clamp(rv.Agreement)
	}

	var values []float64
	var possible int
	if opts.Symmetrize {
		possible = n * (n - 1) / 2
		pairs := make(map[reviewKey][]float64)
		for k, v := range edges {
			u := k
			if u.from > u.to {
				u = reviewKey{from: k.to, to: k.from}
			}
			pairs[u] = append(pairs[u], v)
		}
		for _, vs := range pairs {
			values = append(values, mean(vs))
		}
	} else {
		possible = n * (n - 1)
		for _, v := range edges {
			values = append(values, v)
		}
	}

	s := Score{Edges: len(values), PossibleEdges: possible}
	if len(values) == 0 || possible == 0 {
		s.Empty = true
		s.LowCoverage = true
		return s
	}

	s.MeanAgreement = mean(values)
	s.Coverage = extract.Clamp(float64(len(values)) / float64(possible))
	s.Value = extract.Clamp(s.MeanAgreement * (0.5 + 0.5*s.Coverage))
	s.LowCoverage = s.Coverage < opts.LowCoverageThreshold
	return s
}

func mean(vs []float64) float64 {
	if len(vs) == 0 {
		return 0
	}
	var sum float64
	for _, v := range vs {
		sum += v
	}
	return sum / float64(len(vs))
}
