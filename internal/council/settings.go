package council

import (
	"time"

	"github.com/tjfontaine/polyglot-council/internal/pkg/config"
)

// Settings are the tunables of one deliberation.
type Settings struct {
	// Quorum is the minimum number of responding members. Zero means a
	// majority of the members consulted for the request.
	Quorum int

	MemberTimeout    time.Duration
	ReviewTimeout    time.Duration
	SynthesisTimeout time.Duration
	ContextTimeout   time.Duration

	ReviewTemperature float64
	ReviewConcurrency int

	// Symmetrize averages reciprocal reviews before scoring.
	Symmetrize           bool
	LowCoverageThreshold float64

	SynthesizerSelector    string
	SynthesizerTemperature float64
	MaxTokens              int

	TopK int

	// ContextTokenBudget caps the retrieved passages in a prompt, split
	// evenly across them.
	ContextTokenBudget int
	// ExcerptTokenBudget caps each response quoted in review and synthesis prompts.
	ExcerptTokenBudget int
}

// DefaultSettings returns the settings used when nothing is configured.
func DefaultSettings() Settings {
	return Settings{
		MemberTimeout:          60 * time.Second,
		ReviewTimeout:          45 * time.Second,
		SynthesisTimeout:       60 * time.Second,
		ContextTimeout:         10 * time.Second,
		ReviewTemperature:      0.5,
		ReviewConcurrency:      8,
		LowCoverageThreshold:   0.5,
		SynthesizerTemperature: 0.7,
		MaxTokens:              1024,
		TopK:                   5,
		ContextTokenBudget:     1500,
		ExcerptTokenBudget:     400,
	}
}

// SettingsFromConfig overlays configured values on the defaults.
func SettingsFromConfig(cfg *config.Config) Settings {
	s := DefaultSettings()
	if cfg == nil {
		return s
	}
	c := cfg.Council

	s.Quorum = c.Quorum
	s.Symmetrize = c.Symmetrize
	setDuration(&s.MemberTimeout, c.MemberTimeout)
	setDuration(&s.ReviewTimeout, c.ReviewTimeout)
	setDuration(&s.SynthesisTimeout, c.SynthesisTimeout)
	setDuration(&s.ContextTimeout, c.ContextTimeout)
	if c.ReviewTemperature > 0 {
		s.ReviewTemperature = c.ReviewTemperature
	}
	if c.ReviewConcurrency > 0 {
		s.ReviewConcurrency = c.ReviewConcurrency
	}
	if c.LowCoverageThreshold > 0 {
		s.LowCoverageThreshold = c.LowCoverageThreshold
	}
	s.SynthesizerSelector = c.Synthesizer.Selector
	if c.Synthesizer.Temperature > 0 {
		s.SynthesizerTemperature = c.Synthesizer.Temperature
	}
	if c.MaxTokens > 0 {
		s.MaxTokens = c.MaxTokens
	}
	if cfg.Retrieval.TopK > 0 {
		s.TopK = cfg.Retrieval.TopK
	}
	if cfg.Retrieval.ContextTokenBudget > 0 {
		s.ContextTokenBudget = cfg.Retrieval.ContextTokenBudget
	}
	return s
}

func setDuration(dst *time.Duration, v time.Duration) {
	if v > 0 {
		*dst = v
	}
}

// RequiredQuorum returns how many responses a request consulting n members
// needs.
func (s Settings) RequiredQuorum(n int) int {
	if s.Quorum > 0 {
		if s.Quorum > n {
			return n
		}
		return s.Quorum
	}
	q := n/2 + 1
	if q < 1 {
		q = 1
	}
	return q
}
