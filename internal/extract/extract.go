// Package extract pulls labeled fields such as CONFIDENCE, AGREEMENT and
// REASONING out of free-form reasoner output.
package extract

import (
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"
)

// ReasoningLimit caps the reasoning excerpt kept on a member response.
const ReasoningLimit = 200

// numberPattern matches a score after a label: "0.85", "85%", "8/10", "8 / 10".
const numberPattern = `\**\s*[:=\-]?\s*\**\s*(\d+(?:\.\d+)?)\s*(%|/\s*100?)?`

const (
	confidenceLabel = `confidence(?:\s+(?:level|score))?`
	agreementLabel  = `agreement(?:\s+(?:level|score))?`

	// lineStart anchors a label at the beginning of a line, allowing
	// markdown emphasis before it.
	lineStart = `(?im)^\s*\**\s*`
)

var (
	confidenceLineLabel = regexp.MustCompile(lineStart + confidenceLabel + numberPattern)
	confidenceRegex     = regexp.MustCompile(`(?i)\b` + confidenceLabel + numberPattern)
	agreementLineLabel  = regexp.MustCompile(lineStart + agreementLabel + numberPattern)
	agreementRegex      = regexp.MustCompile(`(?i)\b` + agreementLabel + numberPattern)
	scoreLineLabel      = regexp.MustCompile(lineStart + `score` + numberPattern)
	scoreRegex          = regexp.MustCompile(`(?i)\bscore` + numberPattern)

	// labelLineRegex matches a line that starts a new labeled section.
	labelLineRegex = regexp.MustCompile(`^\s*\**\s*[A-Z][A-Z _]{2,}\**\s*:`)
)

// Confidence returns the self-reported confidence in [0,1]. A label at the
// start of a line wins over one inside a sentence.
func Confidence(text string) (float64, bool) {
	return find(text, confidenceLineLabel, confidenceRegex)
}

// Agreement returns the agreement score in [0,1] from a review. A
// "SCORE: n/10" line is accepted when no AGREEMENT label is present.
func Agreement(text string) (float64, bool) {
	return find(text, agreementLineLabel, agreementRegex, scoreLineLabel, scoreRegex)
}

// find returns the score captured by the first pattern that matches.
func find(text string, patterns ...*regexp.Regexp) (float64, bool) {
	for _, re := range patterns {
		if v, ok := parseScore(re, text); ok {
			return v, true
		}
	}
	return 0, false
}

func parseScore(re *regexp.Regexp, text string) (float64, bool) {
	m := re.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	return Normalize(v, strings.ReplaceAll(m[2], " ", "")), true
}

// Normalize maps a raw score onto [0,1]. The unit is "%", "/10", "/100" or
// empty; a unitless value above 1 is read as out of 10, above 10 as percent.
func Normalize(v float64, unit string) float64 {
	switch unit {
	case "%", "/100":
		v /= 100
	case "/10":
		v /= 10
	default:
		switch {
		case v > 10:
			v /= 100
		case v > 1:
			v /= 10
		}
	}
	return Clamp(v)
}

// Clamp bounds v to [0,1].
func Clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Section returns the text following "LABEL:" up to the next labeled line.
// Matching of the label is case-insensitive.
func Section(text, label string) (string, bool) {
	lines := strings.Split(text, "\n")
	prefix := regexp.MustCompile(`(?i)^\s*\**\s*` + regexp.QuoteMeta(label) + `\**\s*:\**\s*`)

	for i, line := range lines {
		loc := prefix.FindStringIndex(line)
		if loc == nil {
			continue
		}
		parts := []string{line[loc[1]:]}
		for _, next := range lines[i+1:] {
			if labelLineRegex.MatchString(next) {
				break
			}
			parts = append(parts, next)
		}
		return strings.TrimSpace(strings.Join(parts, "\n")), true
	}
	return "", false
}

// Reasoning returns the REASONING section, or the opening of the text when
// there is none, capped at ReasoningLimit runes.
func Reasoning(text string) string {
	if s, ok := Section(text, "reasoning"); ok && s != "" {
		return Truncate(s, ReasoningLimit)
	}
	return Truncate(strings.TrimSpace(text), ReasoningLimit)
}

// Answer strips the trailing CONFIDENCE and REASONING sections so the
// member's answer reads on its own.
func Answer(text string) string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		if confidenceLineRegex.MatchString(line) || reasoningLineRegex.MatchString(line) {
			if head := strings.TrimSpace(strings.Join(lines[:i], "\n")); head != "" {
				return head
			}
			break
		}
	}
	return strings.TrimSpace(text)
}

var (
	// The trailer needs a separator, so prose opening with "Confidence" stays.
	confidenceLineRegex = regexp.MustCompile(`(?i)^\s*\**\s*` + confidenceLabel + `\s*\**\s*[:=]`)
	reasoningLineRegex  = regexp.MustCompile(`(?i)^\s*\**\s*reasoning\**\s*:`)
)

// Truncate cuts s to at most n runes.
func Truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
