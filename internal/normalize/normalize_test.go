package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "strips currency amounts",
			input: "Payment to Acme Corp $1,250.00",
			want:  "payment to acme corp",
		},
		{
			name:  "strips code-suffixed amounts",
			input: "Wire 4500.00 EUR to Globex",
			want:  "wire to globex",
		},
		{
			name:  "strips ISO dates",
			input: "Invoice 2024-03-01 consulting services",
			want:  "invoice consulting services",
		},
		{
			name:  "strips slashed dates",
			input: "rent 01/03/2024 march",
			want:  "rent march",
		},
		{
			name:  "strips crypto quantities",
			input: "Sent 0.0042 BTC to cold wallet",
			want:  "sent to cold wallet",
		},
		{
			name:  "strips reference numbers and punctuation",
			input: "Payment to Acme Corp #1",
			want:  "payment to acme corp",
		},
		{
			name:  "collapses whitespace",
			input: "  ACME   CORP\t\tpayroll ",
			want:  "acme corp payroll",
		},
		{
			name:  "empty input is valid",
			input: "",
			want:  "",
		},
		{
			name:  "all-numeric input degrades to empty",
			input: "$100.00 2024-01-01 42",
			want:  "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.input))
		})
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	inputs := []string{
		"Payment to Acme Corp $1,250.00 on 2024-03-01",
		"Sent 1.5 ETH to exchange #42",
		"SEPA transfer REF:9981 * utilities",
		"",
	}
	for _, in := range inputs {
		once := Normalize(in)
		assert.Equal(t, once, Normalize(once), "normalize must be a fixed point for %q", in)
	}
}

func TestPatternTokens(t *testing.T) {
	t.Run("preserves word order", func(t *testing.T) {
		got := PatternTokens("payment to acme corp")
		assert.Equal(t, []string{"payment", "acme", "corp"}, got)
	})

	t.Run("drops short tokens and stop words", func(t *testing.T) {
		got := PatternTokens("tx at the acme corp nv")
		assert.Equal(t, []string{"acme", "corp"}, got)
	})

	t.Run("empty text yields no tokens", func(t *testing.T) {
		assert.Nil(t, PatternTokens(""))
	})
}

func TestPatternText(t *testing.T) {
	assert.Equal(t, "%payment acme corp%", PatternText("Payment to Acme Corp #3"))
	assert.Equal(t, "", PatternText("$100.00"))
}

func TestSignature(t *testing.T) {
	t.Run("deterministic", func(t *testing.T) {
		a := Signature("payment acme corp", "entity", "Acme Corp")
		b := Signature("payment acme corp", "entity", "Acme Corp")
		assert.Equal(t, a, b)
		assert.Len(t, a, 32)
	})

	t.Run("similar texts produce different signatures", func(t *testing.T) {
		a := Signature("payment acme corp", "entity", "Acme Corp")
		b := Signature("payment acme corporation", "entity", "Acme Corp")
		assert.NotEqual(t, a, b)
	})

	t.Run("field and value participate", func(t *testing.T) {
		a := Signature("payment acme corp", "entity", "Acme Corp")
		b := Signature("payment acme corp", "category", "Acme Corp")
		c := Signature("payment acme corp", "entity", "Acme Inc")
		assert.NotEqual(t, a, b)
		assert.NotEqual(t, a, c)
	})
}
