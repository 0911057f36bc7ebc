package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tallyhq/tally/internal/model"
)

func TestDefaultPolicyIsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestPolicyValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Policy)
	}{
		{"zero occurrence threshold", func(p *Policy) { p.OccurrenceThreshold = 0 }},
		{"similarity above one", func(p *Policy) { p.SimilarityThreshold = 1.5 }},
		{"cap at one", func(p *Policy) { p.ConfidenceCap = 1.0 }},
		{"base above cap", func(p *Policy) { p.BaseConfidence = 0.96 }},
		{"invoice weights not summing to one", func(p *Policy) { p.InvoiceWeights.Amount = 0.9 }},
		{"payslip weights not summing to one", func(p *Policy) { p.PayslipWeights.Text = 0.9 }},
		{"negative weight", func(p *Policy) { p.InvoiceWeights = Weights{Amount: 1.5, Date: -0.5, Text: 0} }},
		{"inverted bands", func(p *Policy) { p.HighBandCutoff = 0.5 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := Default()
			tt.mutate(&p)
			assert.Error(t, p.Validate())
		})
	}
}

func TestDateWindowDays(t *testing.T) {
	p := Default()
	assert.Equal(t, 30, p.DateWindowDays(model.DocumentInvoice))
	assert.Equal(t, 7, p.DateWindowDays(model.DocumentPayslip))
}

func TestWeightsForDocumentType(t *testing.T) {
	p := Default()
	p.PayslipWeights = Weights{Amount: 0.6, Date: 0.3, Text: 0.1}
	require.NoError(t, p.Validate())

	assert.Equal(t, Weights{Amount: 0.4, Date: 0.3, Text: 0.3}, p.WeightsFor(model.DocumentInvoice))
	assert.Equal(t, Weights{Amount: 0.6, Date: 0.3, Text: 0.1}, p.WeightsFor(model.DocumentPayslip))
}

func TestAmountCorridor(t *testing.T) {
	p := Default()
	// 3% of 5000 beats the absolute floor.
	assert.InDelta(t, 150, p.AmountCorridor(5000), 1e-9)
	// Small amounts fall back to the absolute tolerance.
	assert.InDelta(t, 5, p.AmountCorridor(20), 1e-9)
	// Negative amounts use the magnitude.
	assert.InDelta(t, 150, p.AmountCorridor(-5000), 1e-9)
}

func TestPoliciesFor(t *testing.T) {
	strict := Default()
	strict.OccurrenceThreshold = 5

	ps := NewPolicies(Default(), map[string]Policy{"tenant-b": strict})

	assert.Equal(t, 3, ps.For("tenant-a").OccurrenceThreshold)
	assert.Equal(t, 5, ps.For("tenant-b").OccurrenceThreshold)
}
