package retrieval

import (
	"math"
	"strings"
	"unicode"
)

// Default chunking parameters, in characters.
const (
	DefaultChunkSize    = 500
	DefaultChunkOverlap = 100
)

// Chunk splits text into windows of size runes, each starting size-overlap
// runes after the previous one. Whitespace-only windows are dropped.
func Chunk(text string, size, overlap int) []string {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 || overlap >= size {
		overlap = 0
	}
	runes := []rune(text)
	step := size - overlap

	var chunks []string
	for i := 0; i < len(runes); i += step {
		end := min(i+size, len(runes))
		c := string(runes[i:end])
		if strings.TrimSpace(c) != "" {
			chunks = append(chunks, c)
		}
		if end == len(runes) {
			break
		}
	}
	return chunks
}

// Cosine returns the cosine similarity of a and b, or 0 when they differ in
// length or either is zero.
func Cosine(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	denom := math.Sqrt(na) * math.Sqrt(nb)
	if denom == 0 {
		return 0
	}
	return dot / denom
}

// terms returns the distinct lowercased words of s.
func terms(s string) map[string]bool {
	out := make(map[string]bool)
	for _, w := range strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		if len([]rune(w)) > 1 {
			out[w] = true
		}
	}
	return out
}

// Overlap returns the share of query terms that appear in text.
func Overlap(query map[string]bool, text string) float64 {
	if len(query) == 0 {
		return 0
	}
	have := terms(text)
	n := 0
	for t := range query {
		if have[t] {
			n++
		}
	}
	return float64(n) / float64(len(query))
}
