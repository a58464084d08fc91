// Package tokens measures and trims prompt text so that retrieved passages
// and member excerpts fit the token budgets of the council's prompts.
package tokens

import (
	"fmt"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/tiktoken-go/tokenizer"
)

// Ellipsis marks text that was cut to fit a budget.
const Ellipsis = "…"

// Counter counts and truncates text for a model.
type Counter interface {
	Count(model, text string) int
	Truncate(model, text string, maxTokens int) (string, bool)
}

// Budgeter counts tokens with tiktoken. Models without a published encoding
// (Claude, Llama, Mistral, ...) are approximated with o200k_base, and if no
// codec can be loaded at all the character Estimator is used.
type Budgeter struct {
	// codecCache caches tokenizer codecs by encoding name
	codecCache map[tokenizer.Encoding]tokenizer.Codec
	cacheMu    sync.RWMutex
	fallback   *Estimator
}

// NewBudgeter creates a tiktoken backed counter.
func NewBudgeter() *Budgeter {
	return &Budgeter{
		codecCache: make(map[tokenizer.Encoding]tokenizer.Codec),
		fallback:   NewEstimator(),
	}
}

// Count returns the number of tokens text occupies for model.
func (b *Budgeter) Count(model, text string) int {
	if text == "" {
		return 0
	}
	codec, err := b.codec(model)
	if err != nil {
		return b.fallback.Count(model, text)
	}
	ids, _, err := codec.Encode(text)
	if err != nil {
		return b.fallback.Count(model, text)
	}
	return len(ids)
}

// Truncate cuts text to at most maxTokens tokens, appending an ellipsis when
// anything was removed. It reports whether the text was cut.
func (b *Budgeter) Truncate(model, text string, maxTokens int) (string, bool) {
	if maxTokens <= 0 || text == "" {
		return text, false
	}
	codec, err := b.codec(model)
	if err != nil {
		return b.fallback.Truncate(model, text, maxTokens)
	}
	ids, _, err := codec.Encode(text)
	if err != nil {
		return b.fallback.Truncate(model, text, maxTokens)
	}
	if len(ids) <= maxTokens {
		return text, false
	}
	head, err := codec.Decode(ids[:maxTokens])
	if err != nil {
		return b.fallback.Truncate(model, text, maxTokens)
	}
	// A cut can land inside a multi-byte character.
	head = strings.ToValidUTF8(head, "")
	return strings.TrimRight(head, " \n\t") + Ellipsis, true
}

// codec returns the tokenizer codec for a model.
func (b *Budgeter) codec(model string) (tokenizer.Codec, error) {
	model = NormalizeModel(model)

	if codec, err := tokenizer.ForModel(mapModelName(model)); err == nil {
		return codec, nil
	}

	// Fall back to encoding based on model prefix
	encoding := modelToEncoding(model)

	b.cacheMu.RLock()
	if cached, ok := b.codecCache[encoding]; ok {
		b.cacheMu.RUnlock()
		return cached, nil
	}
	b.cacheMu.RUnlock()

	codec, err := tokenizer.Get(encoding)
	if err != nil {
		return nil, fmt.Errorf("failed to get tokenizer encoding: %w", err)
	}

	b.cacheMu.Lock()
	b.codecCache[encoding] = codec
	b.cacheMu.Unlock()

	return codec, nil
}

// NormalizeModel strips provider routing prefixes so that
// "openrouter/openai/gpt-4o" is counted as "gpt-4o".
func NormalizeModel(model string) string {
	if i := strings.LastIndex(model, "/"); i >= 0 {
		model = model[i+1:]
	}
	return strings.ToLower(model)
}

// Estimator provides token count estimation based on character count.
// This is a fallback when no tokenizer is available.
type Estimator struct {
	// CharsPerToken is the average characters per token (default: 4)
	CharsPerToken float64
}

// NewEstimator creates a new token estimator.
func NewEstimator() *Estimator {
	return &Estimator{
		CharsPerToken: 4.0, // Reasonable default for most models
	}
}

// Count estimates the token count.
func (e *Estimator) Count(_ string, text string) int {
	n := utf8.RuneCountInString(text)
	if n == 0 {
		return 0
	}
	tokens := int(float64(n) / e.CharsPerToken)
	if tokens == 0 {
		tokens = 1
	}
	return tokens
}

// Truncate keeps roughly maxTokens worth of characters.
func (e *Estimator) Truncate(_ string, text string, maxTokens int) (string, bool) {
	limit := int(float64(maxTokens) * e.CharsPerToken)
	if maxTokens <= 0 || utf8.RuneCountInString(text) <= limit {
		return text, false
	}
	runes := []rune(text)
	return strings.TrimRight(string(runes[:limit]), " \n\t") + Ellipsis, true
}
