// Package normalize reduces noisy financial free text to a stable keyword
// form and derives content signatures from it. It underpins both pattern
// learning and document matching.
package normalize

import (
	"regexp"
	"strings"
)

var (
	// Dates in ISO, slashed/dotted numeric, and "12 mar 2024" forms.
	dateRe = regexp.MustCompile(`\b\d{4}-\d{2}-\d{2}\b|\b\d{1,2}[/.\-]\d{1,2}[/.\-]\d{2,4}\b|\b\d{1,2}\s+(?:jan|feb|mar|apr|may|jun|jul|aug|sep|oct|nov|dec)[a-z]*(?:\s+\d{2,4})?\b`)

	// Crypto quantities such as "0.0042 btc" or "1.5eth".
	cryptoRe = regexp.MustCompile(`\b\d+(?:[.,]\d+)?\s?(?:btc|eth|sol|ada|xrp|doge|ltc|bnb|dot|usdt|usdc)\b`)

	// Currency amounts: symbol-prefixed or code-suffixed.
	amountRe = regexp.MustCompile(`[€$£¥]\s?\d[\d.,]*|\b\d[\d.,]*\s?(?:eur|usd|gbp|chf|jpy|brl|cad|aud|sek|nok)\b`)

	// Bare numeric tokens (reference numbers, leftover amounts).
	numberRe = regexp.MustCompile(`\b\d[\d.,]*\b`)

	nonWordRe    = regexp.MustCompile(`[^a-z\s]`)
	whitespaceRe = regexp.MustCompile(`\s+`)
)

// stopWords are filtered when building pattern text, not when computing
// similarity.
var stopWords = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "from": {}, "with": {},
	"una": {}, "para": {}, "por": {}, "des": {}, "les": {},
	"der": {}, "die": {}, "das": {}, "von": {}, "und": {},
}

// Normalize lowercases the text, strips dates, crypto quantities, currency
// amounts and leftover numeric tokens, replaces punctuation with spaces and
// collapses whitespace. Word order is preserved. Normalize is idempotent:
// its output contains only lowercase letters and single spaces, which every
// stage maps to itself.
func Normalize(raw string) string {
	s := strings.ToLower(raw)
	s = dateRe.ReplaceAllString(s, " ")
	s = cryptoRe.ReplaceAllString(s, " ")
	s = amountRe.ReplaceAllString(s, " ")
	s = numberRe.ReplaceAllString(s, " ")
	s = nonWordRe.ReplaceAllString(s, " ")
	s = whitespaceRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// PatternTokens returns the normalized keywords suitable for a reusable
// pattern: stop-words and tokens of length <= 2 are dropped, original order
// is kept. Sorting the tokens would destroy the human-readable pattern, so
// it is deliberately not done here.
func PatternTokens(normalized string) []string {
	if normalized == "" {
		return nil
	}
	fields := strings.Fields(normalized)
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		if len(f) <= 2 {
			continue
		}
		if _, stop := stopWords[f]; stop {
			continue
		}
		tokens = append(tokens, f)
	}
	return tokens
}

// PatternText builds the wildcard-wrapped pattern string stored on
// suggestions and classification rules, e.g. "%payment acme corp%".
// An empty keyword set yields an empty pattern, never bare wildcards.
func PatternText(raw string) string {
	tokens := PatternTokens(Normalize(raw))
	if len(tokens) == 0 {
		return ""
	}
	return "%" + strings.Join(tokens, " ") + "%"
}
