package model

import (
	"time"
)

// Provenance records where a classification pattern came from.
type Provenance string

// Provenance constants.
const (
	ProvenanceManual       Provenance = "manual"
	ProvenanceLLMValidated Provenance = "llm_validated"
)

// Default priorities. Lower values are evaluated first, so manually curated
// rules outrank auto-learned ones.
const (
	PriorityManual  = 100
	PriorityLearned = 200
)

// ClassificationPattern is an active rule consumed by the classification
// engine. Patterns are deactivated with a flag flip, never deleted, so the
// rule history stays auditable.
type ClassificationPattern struct {
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
	TenantID     string          `json:"tenant_id"`
	MatchText    string          `json:"match_text"`
	Field        CorrectionField `json:"field"`
	Value        string          `json:"value"`
	Provenance   Provenance      `json:"provenance"`
	ID           int64           `json:"id"`
	Priority     int             `json:"priority"`
	Confidence   float64         `json:"confidence"`
	IsActive     bool            `json:"is_active"`
	SuggestionID *int64          `json:"suggestion_id,omitempty"`
}
