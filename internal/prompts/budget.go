package prompts

import (
	"fmt"
	"strings"

	"github.com/tiktoken-go/tokenizer"
)

// TruncationMarker ends text cut down by TokenBudget.Truncate.
const TruncationMarker = "\n... [truncated]"

// TokenBudget counts prompt tokens with the GPT-4 encoding. Other providers
// tokenize differently, so counts are an approximation there.
type TokenBudget struct {
	MaxTokens int
	codec     tokenizer.Codec
}

// NewTokenBudget creates a budget of maxTokens.
func NewTokenBudget(maxTokens int) (*TokenBudget, error) {
	if maxTokens <= 0 {
		return nil, fmt.Errorf("token budget must be positive, got %d", maxTokens)
	}
	codec, err := tokenizer.ForModel(tokenizer.GPT4)
	if err != nil {
		return nil, fmt.Errorf("load tokenizer: %w", err)
	}
	return &TokenBudget{MaxTokens: maxTokens, codec: codec}, nil
}

// Count returns the token count of text, estimating 4 characters per token
// if the codec fails.
func (b *TokenBudget) Count(text string) int {
	if b == nil || b.codec == nil {
		return len(text) / 4
	}
	n, err := b.codec.Count(text)
	if err != nil {
		return len(text) / 4
	}
	return n
}

// Fits reports whether text is within the budget.
func (b *TokenBudget) Fits(text string) bool {
	return b.Count(text) <= b.MaxTokens
}

// Truncate cuts text to at most limit tokens and appends TruncationMarker.
// Text already within limit is returned unchanged.
func (b *TokenBudget) Truncate(text string, limit int) string {
	if limit <= 0 {
		return TruncationMarker
	}
	if b.Count(text) <= limit {
		return text
	}
	if b.codec != nil {
		ids, _, err := b.codec.Encode(text)
		if err == nil && len(ids) > limit {
			if cut, err := b.codec.Decode(ids[:limit]); err == nil {
				// A token boundary can fall inside a multi-byte rune.
				return strings.ToValidUTF8(cut, "") + TruncationMarker
			}
		}
	}
	runes := []rune(text)
	if n := limit * 4; n < len(runes) {
		runes = runes[:n]
	}
	return string(runes) + TruncationMarker
}
