package similarity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTextScore(t *testing.T) {
	tests := []struct {
		name string
		a    string
		b    string
		min  float64
		max  float64
	}{
		{"identical", "payment acme corp", "payment acme corp", 1, 1},
		{"near duplicate", "payment acme corp", "payment acme corporation", 0.70, 0.99},
		{"unrelated", "payment acme corp", "spotify subscription", 0, 0.2},
		{"both empty", "", "", 0, 0},
		{"one empty", "payment acme corp", "", 0, 0},
		{"short strings", "ab", "ab", 1, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := TextScore(tt.a, tt.b)
			assert.GreaterOrEqual(t, got, tt.min)
			assert.LessOrEqual(t, got, tt.max)
		})
	}
}

func TestTextScoreSymmetricAndBounded(t *testing.T) {
	pairs := [][2]string{
		{"payment acme corp", "acme corp invoice"},
		{"salary march", "salary april"},
		{"a", "completely different text"},
	}
	for _, p := range pairs {
		ab := TextScore(p[0], p[1])
		ba := TextScore(p[1], p[0])
		assert.InDelta(t, ab, ba, 1e-12)
		assert.GreaterOrEqual(t, ab, 0.0)
		assert.LessOrEqual(t, ab, 1.0)
	}
}

func TestAmountScore(t *testing.T) {
	assert.InDelta(t, 1.0, AmountScore(5000, 5000), 1e-9)
	assert.InDelta(t, 0.9, AmountScore(90, 100), 1e-9)
	assert.InDelta(t, 0.0, AmountScore(0, 100), 1e-9)
	assert.InDelta(t, 1.0, AmountScore(0, 0), 1e-9)

	// Bounded for arbitrary inputs including negatives.
	for _, pair := range [][2]float64{{-50, 50}, {-50, -75}, {1e9, 1}} {
		got := AmountScore(pair[0], pair[1])
		assert.GreaterOrEqual(t, got, 0.0)
		assert.LessOrEqual(t, got, 1.0)
	}
}

func TestAmountPenalty(t *testing.T) {
	assert.Zero(t, AmountPenalty(5000, 5000))
	assert.Zero(t, AmountPenalty(5000, 10000), "2x exactly carries no penalty")

	p := AmountPenalty(5000, 11000)
	assert.Greater(t, p, 0.0, ">2x ratio must be penalized")
	assert.LessOrEqual(t, p, 0.2)

	assert.InDelta(t, 0.2, AmountPenalty(100, 400), 1e-9, "4x ratio hits the cap")
	assert.InDelta(t, 0.2, AmountPenalty(100, 4000), 1e-9, "penalty never exceeds the cap")
	assert.InDelta(t, 0.2, AmountPenalty(0, 100), 1e-9, "zero vs nonzero takes the full penalty")
	assert.Zero(t, AmountPenalty(0, 0))
}

func TestDateScore(t *testing.T) {
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	assert.InDelta(t, 1.0, DateScore(base, base, 30), 1e-9)
	assert.InDelta(t, 0.0, DateScore(base, base.AddDate(0, 0, 30), 30), 1e-9)
	assert.InDelta(t, 0.0, DateScore(base, base.AddDate(0, 0, 45), 30), 1e-9)

	// Monotonic decay, direction-agnostic.
	prev := 1.0
	for days := 1; days <= 30; days++ {
		fwd := DateScore(base, base.AddDate(0, 0, days), 30)
		back := DateScore(base.AddDate(0, 0, days), base, 30)
		assert.InDelta(t, fwd, back, 1e-12)
		assert.LessOrEqual(t, fwd, prev)
		prev = fwd
	}

	assert.Zero(t, DateScore(base, base, 0), "degenerate window scores zero")
}

func TestSimilar(t *testing.T) {
	assert.True(t, Similar("payment acme corp", "payment acme corp", DefaultTextThreshold))
	assert.True(t, Similar("payment acme corp", "payment acme corporation", DefaultTextThreshold))
	assert.False(t, Similar("payment acme corp", "spotify subscription", DefaultTextThreshold))
}
