package tokens

import (
	"strings"

	"github.com/tiktoken-go/tokenizer"
)

// mapModelName maps a normalized model string to tokenizer.Model
func mapModelName(model string) tokenizer.Model {
	switch {
	case strings.HasPrefix(model, "gpt-5"):
		return tokenizer.GPT5
	case strings.HasPrefix(model, "gpt-4.1"):
		return tokenizer.GPT41
	case strings.HasPrefix(model, "gpt-4o"):
		return tokenizer.GPT4o
	case strings.HasPrefix(model, "gpt-4"):
		return tokenizer.GPT4
	case strings.HasPrefix(model, "gpt-3.5"):
		return tokenizer.GPT35Turbo
	case strings.HasPrefix(model, "text-embedding"):
		return tokenizer.TextEmbeddingAda002
	default:
		// tokenizer.ForModel rejects unknown models and we fall back by encoding
		return tokenizer.Model(model)
	}
}

// modelToEncoding maps model names to encoding names for fallback.
//
// Encoding reference:
// - O200kBase: GPT-5, GPT-4.1, GPT-4o, o-series, and our approximation for
//   non-OpenAI families
// - Cl100kBase: GPT-4, GPT-3.5-turbo, text-embedding-*
func modelToEncoding(model string) tokenizer.Encoding {
	switch {
	case strings.HasPrefix(model, "gpt-4o"), strings.HasPrefix(model, "gpt-4.1"), strings.HasPrefix(model, "gpt-5"):
		return tokenizer.O200kBase
	case strings.HasPrefix(model, "gpt-4"), strings.HasPrefix(model, "gpt-3.5"), strings.HasPrefix(model, "text-embedding"):
		return tokenizer.Cl100kBase
	default:
		return tokenizer.O200kBase
	}
}
