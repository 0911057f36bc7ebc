package model

import (
	"time"
)

// SuggestionStatus tracks a pattern suggestion through its lifecycle.
type SuggestionStatus string

// Suggestion status constants.
const (
	SuggestionPending   SuggestionStatus = "pending"
	SuggestionValidated SuggestionStatus = "validated"
	SuggestionRejected  SuggestionStatus = "rejected"
)

// RiskLevel is the validation gate's qualitative risk assessment.
type RiskLevel string

// Risk level constants.
const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// ValidationVerdict is the structured result returned by the validation gate
// for a pattern suggestion. Stored verbatim on the suggestion once received.
type ValidationVerdict struct {
	Risk                 RiskLevel `json:"risk"`
	Rationale            string    `json:"rationale"`
	ConfidenceAdjustment float64   `json:"confidence_adjustment"`
	Approve              bool      `json:"approve"`
}

// PatternSuggestion is a candidate reusable classification rule aggregated
// from repeated similar corrections. One suggestion exists per
// (tenant, signature); occurrence counting is idempotent per supporting event.
type PatternSuggestion struct {
	CreatedAt       time.Time          `json:"created_at"`
	UpdatedAt       time.Time          `json:"updated_at"`
	Verdict         *ValidationVerdict `json:"verdict,omitempty"`
	TenantID        string             `json:"tenant_id"`
	Signature       string             `json:"signature"`
	PatternText     string             `json:"pattern_text"`
	Field           CorrectionField    `json:"field"`
	NewValue        string             `json:"new_value"`
	Status          SuggestionStatus   `json:"status"`
	SupportingIDs   []string           `json:"supporting_ids"`
	ID              int64              `json:"id"`
	OccurrenceCount int                `json:"occurrence_count"`
	Confidence      float64            `json:"confidence"`
}
