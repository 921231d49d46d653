package chunker

import "strings"

// EstimateTokens gives a rough token count at ~1.33 tokens per English word.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	tokens := int(float64(len(strings.Fields(text))) * 1.33)
	if tokens < 1 {
		tokens = 1
	}
	return tokens
}

// TokensForChars estimates the tokens needed to emit about n characters.
func TokensForChars(n int) int {
	return n/4 + 1
}
