package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tallyhq/tally/internal/model"
)

func TestParseVerdict(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    model.ValidationVerdict
		wantErr bool
	}{
		{
			name:  "plain JSON",
			input: `{"approve": true, "confidence_adjustment": 0.1, "risk": "low", "rationale": "specific vendor name"}`,
			want: model.ValidationVerdict{
				Approve:              true,
				ConfidenceAdjustment: 0.1,
				Risk:                 model.RiskLow,
				Rationale:            "specific vendor name",
			},
		},
		{
			name:  "markdown fenced JSON",
			input: "```json\n{\"approve\": false, \"confidence_adjustment\": -0.15, \"risk\": \"high\", \"rationale\": \"too generic\"}\n```",
			want: model.ValidationVerdict{
				Approve:              false,
				ConfidenceAdjustment: -0.15,
				Risk:                 model.RiskHigh,
				Rationale:            "too generic",
			},
		},
		{
			name:  "surrounding prose",
			input: `Here is my assessment: {"approve": true, "confidence_adjustment": 0, "risk": "medium", "rationale": "ok"} Hope that helps!`,
			want: model.ValidationVerdict{
				Approve:   true,
				Risk:      model.RiskMedium,
				Rationale: "ok",
			},
		},
		{
			name:  "adjustment clamped high",
			input: `{"approve": true, "confidence_adjustment": 0.9, "risk": "low", "rationale": "very sure"}`,
			want: model.ValidationVerdict{
				Approve:              true,
				ConfidenceAdjustment: 0.2,
				Risk:                 model.RiskLow,
				Rationale:            "very sure",
			},
		},
		{
			name:  "adjustment clamped low",
			input: `{"approve": false, "confidence_adjustment": -1.5, "risk": "high", "rationale": "no"}`,
			want: model.ValidationVerdict{
				Approve:              false,
				ConfidenceAdjustment: -0.2,
				Risk:                 model.RiskHigh,
				Rationale:            "no",
			},
		},
		{
			name:  "missing risk defaults to medium",
			input: `{"approve": true, "confidence_adjustment": 0.05, "rationale": "fine"}`,
			want: model.ValidationVerdict{
				Approve:              true,
				ConfidenceAdjustment: 0.05,
				Risk:                 model.RiskMedium,
				Rationale:            "fine",
			},
		},
		{
			name:    "unknown risk level",
			input:   `{"approve": true, "confidence_adjustment": 0, "risk": "extreme", "rationale": "?"}`,
			wantErr: true,
		},
		{
			name:    "no JSON at all",
			input:   "I cannot assess this pattern.",
			wantErr: true,
		},
		{
			name:    "malformed JSON",
			input:   `{"approve": true, "confidence_adjustment":}`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseVerdict(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBuildPromptIncludesContext(t *testing.T) {
	prompt := buildPrompt(Request{
		PatternText:     "%payment acme corp%",
		Field:           "category",
		NewValue:        "Software",
		Examples:        []string{"Payment to Acme Corp #1001", "Payment to Acme Corp #1002"},
		OccurrenceCount: 3,
	})

	assert.Contains(t, prompt, "3 manual corrections")
	assert.Contains(t, prompt, "%payment acme corp%")
	assert.Contains(t, prompt, `set category to "Software"`)
	assert.Contains(t, prompt, "Payment to Acme Corp #1001")
}
