package core

import (
	"math"
	"strings"
	"testing"
)

func TestEstimateTokens(t *testing.T) {
	tests := []struct {
		text string
		want int
	}{
		{"", 0},
		{"a", 1},
		{"abcd", 1},
		{"abcde", 2},
		{"abcdefgh", 2},
		{"abcdefghi", 3},
		{"héllo", 2},
		// Astral runes are surrogate pairs: two code units each.
		{"😀😀", 1},
		{"😀😀a", 2},
		{"東京都", 1},
		// Invalid bytes count as one unit each.
		{"\xff\xfe\xfd", 1},
	}

	for _, tt := range tests {
		if got := EstimateTokens(tt.text); got != tt.want {
			t.Errorf("EstimateTokens(%q) = %d, want %d", tt.text, got, tt.want)
		}
	}
}

func TestEstimateTokens_Idempotent(t *testing.T) {
	s := "What is the total revenue by region?"
	if EstimateTokens(s) != EstimateTokens(s) {
		t.Error("EstimateTokens is not deterministic")
	}
}

func TestEstimateTokens_NonDecreasing(t *testing.T) {
	var b strings.Builder
	prev := 0
	for i := 0; i < 200; i++ {
		b.WriteString("x")
		if i%7 == 0 {
			b.WriteString("é")
		}
		got := EstimateTokens(b.String())
		if got < prev {
			t.Fatalf("EstimateTokens decreased from %d to %d at length %d", prev, got, b.Len())
		}
		prev = got
	}
}

func TestPricePer1K(t *testing.T) {
	if got := PricePer1K("gpt-4o"); got != 0.005 {
		t.Errorf("PricePer1K(gpt-4o) = %v, want 0.005", got)
	}
	if got := PricePer1K("some-future-model"); got != PricePer1K(DefaultPricingModel) {
		t.Errorf("unknown model should fall back to %s, got %v", DefaultPricingModel, got)
	}
}

func TestEstimateCost(t *testing.T) {
	tests := []struct {
		tokens int
		price  float64
		want   float64
	}{
		{0, 0.005, 0},
		{-5, 0.005, 0},
		{1000, 0.005, 0.005},
		{2500, 0.00015, 0.000375},
	}

	for _, tt := range tests {
		got := EstimateCost(tt.tokens, tt.price)
		if math.Abs(got-tt.want) > 1e-12 {
			t.Errorf("EstimateCost(%d, %v) = %v, want %v", tt.tokens, tt.price, got, tt.want)
		}
	}
}
