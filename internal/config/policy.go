// Package config holds the tunable learning and matching policy. Thresholds
// drifted badly when they lived as constants in procedural code, so every
// knob is an explicit field with a default, overridable per tenant from the
// config file.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/tallyhq/tally/internal/model"
)

// Weights are the composite-score weights for one document type. They must
// sum to 1 so composite scores stay comparable across types.
type Weights struct {
	Amount float64 `mapstructure:"amount"`
	Date   float64 `mapstructure:"date"`
	Text   float64 `mapstructure:"text"`
}

// Sum returns the total weight mass.
func (w Weights) Sum() float64 {
	return w.Amount + w.Date + w.Text
}

// Policy is the full set of learning and matching knobs for one tenant.
type Policy struct {
	// Pattern learning.
	OccurrenceThreshold int           `mapstructure:"occurrence_threshold"`
	SimilarityThreshold float64       `mapstructure:"similarity_threshold"`
	CorrectionWindow    time.Duration `mapstructure:"correction_window"`
	BaseConfidence      float64       `mapstructure:"base_confidence"`
	ConfidenceStep      float64       `mapstructure:"confidence_step"`
	ConfidenceCap       float64       `mapstructure:"confidence_cap"`
	StaleSuggestionAge  time.Duration `mapstructure:"stale_suggestion_age"`

	// Matching.
	InvoiceDateWindowDays int     `mapstructure:"invoice_date_window_days"`
	PayslipDateWindowDays int     `mapstructure:"payslip_date_window_days"`
	AmountCorridorPct     float64 `mapstructure:"amount_corridor_pct"`
	AmountCorridorAbs     float64 `mapstructure:"amount_corridor_abs"`
	InvoiceWeights        Weights `mapstructure:"invoice_weights"`
	PayslipWeights        Weights `mapstructure:"payslip_weights"`
	HighBandCutoff        float64 `mapstructure:"high_band_cutoff"`
	MediumBandCutoff      float64 `mapstructure:"medium_band_cutoff"`
	CandidateFloor        float64 `mapstructure:"candidate_floor"`
}

// Default returns the baseline policy applied when a tenant has no overrides.
func Default() Policy {
	return Policy{
		OccurrenceThreshold:   3,
		SimilarityThreshold:   0.70,
		CorrectionWindow:      90 * 24 * time.Hour,
		BaseConfidence:        0.70,
		ConfidenceStep:        0.05,
		ConfidenceCap:         0.95,
		StaleSuggestionAge:    7 * 24 * time.Hour,
		InvoiceDateWindowDays: 30,
		PayslipDateWindowDays: 7,
		AmountCorridorPct:     0.03,
		AmountCorridorAbs:     5.00,
		InvoiceWeights:        Weights{Amount: 0.4, Date: 0.3, Text: 0.3},
		PayslipWeights:        Weights{Amount: 0.4, Date: 0.3, Text: 0.3},
		HighBandCutoff:        0.85,
		MediumBandCutoff:      0.60,
		CandidateFloor:        0.30,
	}
}

// DateWindowDays returns the candidate date window for the document type.
func (p Policy) DateWindowDays(docType model.DocumentType) int {
	if docType == model.DocumentPayslip {
		return p.PayslipDateWindowDays
	}
	return p.InvoiceDateWindowDays
}

// WeightsFor returns the composite-score weights for the document type.
func (p Policy) WeightsFor(docType model.DocumentType) Weights {
	if docType == model.DocumentPayslip {
		return p.PayslipWeights
	}
	return p.InvoiceWeights
}

// AmountCorridor returns the half-width of the candidate amount corridor for
// the given document amount: the larger of the percentage and absolute
// tolerances.
func (p Policy) AmountCorridor(amount float64) float64 {
	pct := amount * p.AmountCorridorPct
	if pct < 0 {
		pct = -pct
	}
	if pct > p.AmountCorridorAbs {
		return pct
	}
	return p.AmountCorridorAbs
}

// Validate rejects policies whose knobs are outside sane ranges.
func (p Policy) Validate() error {
	if p.OccurrenceThreshold < 1 {
		return fmt.Errorf("occurrence_threshold must be >= 1, got %d", p.OccurrenceThreshold)
	}
	if p.SimilarityThreshold < 0 || p.SimilarityThreshold > 1 {
		return fmt.Errorf("similarity_threshold must be in [0,1], got %v", p.SimilarityThreshold)
	}
	if p.ConfidenceCap >= 1 {
		return fmt.Errorf("confidence_cap must stay below 1.0 to reserve headroom for validation, got %v", p.ConfidenceCap)
	}
	if p.BaseConfidence < 0 || p.BaseConfidence > p.ConfidenceCap {
		return fmt.Errorf("base_confidence must be in [0, confidence_cap], got %v", p.BaseConfidence)
	}
	for docType, w := range map[model.DocumentType]Weights{
		model.DocumentInvoice: p.InvoiceWeights,
		model.DocumentPayslip: p.PayslipWeights,
	} {
		if w.Amount < 0 || w.Date < 0 || w.Text < 0 {
			return fmt.Errorf("%s weights must be non-negative, got %+v", docType, w)
		}
		if sum := w.Sum(); sum < 0.999 || sum > 1.001 {
			return fmt.Errorf("%s composite weights must sum to 1, got %v", docType, sum)
		}
	}
	if p.HighBandCutoff <= p.MediumBandCutoff || p.MediumBandCutoff <= p.CandidateFloor {
		return fmt.Errorf("band cutoffs must be ordered high > medium > floor")
	}
	return nil
}

// Policies resolves per-tenant policy, falling back to the default.
type Policies struct {
	defaults  Policy
	overrides map[string]Policy
}

// Load reads the default policy and per-tenant overrides from viper. Keys
// live under "policy.*" and "tenants.<id>.policy.*".
func Load() (*Policies, error) {
	defaults := Default()
	if sub := viper.Sub("policy"); sub != nil {
		if err := sub.Unmarshal(&defaults); err != nil {
			return nil, fmt.Errorf("failed to parse policy config: %w", err)
		}
	}
	if err := defaults.Validate(); err != nil {
		return nil, fmt.Errorf("invalid default policy: %w", err)
	}

	overrides := make(map[string]Policy)
	for tenantID := range viper.GetStringMap("tenants") {
		p := defaults
		if sub := viper.Sub("tenants." + tenantID + ".policy"); sub != nil {
			if err := sub.Unmarshal(&p); err != nil {
				return nil, fmt.Errorf("failed to parse policy for tenant %s: %w", tenantID, err)
			}
		}
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("invalid policy for tenant %s: %w", tenantID, err)
		}
		overrides[tenantID] = p
	}

	return &Policies{defaults: defaults, overrides: overrides}, nil
}

// NewPolicies builds a resolver from explicit values, used by tests and by
// callers that do not go through viper.
func NewPolicies(defaults Policy, overrides map[string]Policy) *Policies {
	return &Policies{defaults: defaults, overrides: overrides}
}

// For returns the policy for the given tenant.
func (ps *Policies) For(tenantID string) Policy {
	if p, ok := ps.overrides[tenantID]; ok {
		return p
	}
	return ps.defaults
}
