package core

import "unicode/utf16"

// charsPerToken is the heuristic ratio used for display estimates.
const charsPerToken = 4

// EstimateTokens approximates the token count of text as
// ceil(length / 4), where length counts UTF-16 code units. It is a display
// heuristic, not a tokenizer: "" is 0, "abcd" is 1, "abcde" is 2.
func EstimateTokens(text string) int {
	n := utf16Len(text)
	return (n + charsPerToken - 1) / charsPerToken
}

// utf16Len counts the UTF-16 code units needed to encode s. Invalid bytes
// count as one unit each, the width of U+FFFD.
func utf16Len(s string) int {
	n := 0
	for _, r := range s {
		n += utf16.RuneLen(r)
	}
	return n
}

// Approximate USD prices per 1K input tokens.
var modelPricePer1K = map[string]float64{
	"gpt-4o":        0.005,
	"gpt-4o-mini":   0.00015,
	"gpt-3.5-turbo": 0.0005,
}

// DefaultPricingModel is used for unknown model names.
const DefaultPricingModel = "gpt-4o-mini"

// PricePer1K returns the input price for model, falling back to
// DefaultPricingModel.
func PricePer1K(model string) float64 {
	if p, ok := modelPricePer1K[model]; ok {
		return p
	}
	return modelPricePer1K[DefaultPricingModel]
}

// EstimateCost converts a token count to an approximate USD cost.
func EstimateCost(tokens int, pricePer1K float64) float64 {
	if tokens <= 0 {
		return 0
	}
	return float64(tokens) / 1000 * pricePer1K
}
