// Package similarity provides the pure pairwise scorers shared by pattern
// learning and document matching: trigram text similarity, amount proximity
// and date proximity. Every function here is side-effect free over primitive
// inputs so callers get deterministic, testable scores.
package similarity

import (
	"math"
	"strings"
	"time"
)

const epsilon = 1e-9

// DefaultTextThreshold is the similarity above which two normalized texts
// are considered "the same" correction for grouping purposes.
const DefaultTextThreshold = 0.70

// TextScore computes trigram-overlap similarity (Sørensen–Dice) between two
// normalized strings, in [0,1]. Inputs are padded so short strings still
// produce trigrams. Identical strings score 1; disjoint strings score 0.
func TextScore(a, b string) float64 {
	if a == b {
		if a == "" {
			return 0
		}
		return 1
	}
	ta := trigrams(a)
	tb := trigrams(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}

	shared := 0
	for g, na := range ta {
		if nb, ok := tb[g]; ok {
			shared += min(na, nb)
		}
	}

	return 2 * float64(shared) / float64(count(ta)+count(tb))
}

// trigrams returns the multiset of character trigrams of s, padded with two
// leading and one trailing space in the style of postgres pg_trgm.
func trigrams(s string) map[string]int {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	grams := make(map[string]int)
	for _, word := range strings.Fields(s) {
		padded := "  " + word + " "
		runes := []rune(padded)
		for i := 0; i+3 <= len(runes); i++ {
			grams[string(runes[i:i+3])]++
		}
	}
	return grams
}

func count(grams map[string]int) int {
	n := 0
	for _, c := range grams {
		n += c
	}
	return n
}

// AmountScore computes amount proximity as 1 - min(1, |a-b| / max(|a|,|b|)),
// in [0,1]. Equal amounts score 1; amounts differing by more than the larger
// of the two score 0.
func AmountScore(a, b float64) float64 {
	diff := math.Abs(a - b)
	denom := math.Max(math.Abs(a), math.Max(math.Abs(b), epsilon))
	return 1 - math.Min(1, diff/denom)
}

// AmountPenalty returns the confidence penalty for amount ratios beyond 2x,
// scaling linearly from 0 at a 2x ratio to the full 0.2 at 4x and beyond.
// Related transactions legitimately differ in amount (partial payments,
// fees), so this is a penalty rather than a hard rejection.
func AmountPenalty(a, b float64) float64 {
	const maxPenalty = 0.2

	abs1 := math.Abs(a)
	abs2 := math.Abs(b)
	lo := math.Min(abs1, abs2)
	hi := math.Max(abs1, abs2)
	if lo < epsilon {
		if hi < epsilon {
			return 0
		}
		return maxPenalty
	}

	ratio := hi / lo
	if ratio <= 2 {
		return 0
	}
	return maxPenalty * math.Min(1, (ratio-2)/2)
}

// DateScore computes date proximity with linear decay: 1.0 at zero days
// apart, falling monotonically to 0.0 at windowDays apart or beyond.
func DateScore(a, b time.Time, windowDays int) float64 {
	if windowDays <= 0 {
		return 0
	}
	days := math.Abs(a.Sub(b).Hours()) / 24
	if days >= float64(windowDays) {
		return 0
	}
	return 1 - days/float64(windowDays)
}

// Similar reports whether two normalized texts clear the given threshold.
func Similar(a, b string, threshold float64) bool {
	return TextScore(a, b) >= threshold
}
