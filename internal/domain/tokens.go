package domain

// EstimateTokens approximates the token count of a text as one token per
// four characters, rounded up. This is a deliberate approximation, not an
// exact tokenizer.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	return (len(text) + 3) / 4
}
