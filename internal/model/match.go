package model

import (
	"time"
)

// CandidateStatus tracks a match candidate through review.
type CandidateStatus string

// Candidate status constants.
const (
	CandidatePending   CandidateStatus = "pending"
	CandidateConfirmed CandidateStatus = "confirmed"
	CandidateRejected  CandidateStatus = "rejected"
)

// ConfidenceBand is the qualitative bucket derived from the composite score.
type ConfidenceBand string

// Confidence band constants.
const (
	BandHigh   ConfidenceBand = "high"
	BandMedium ConfidenceBand = "medium"
	BandLow    ConfidenceBand = "low"
)

// MatchCandidate is a scored pairing of one document with one transaction.
// Exactly one row exists per (document, transaction); regenerating candidates
// updates scores in place.
type MatchCandidate struct {
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
	ReviewedAt     *time.Time      `json:"reviewed_at,omitempty"`
	ID             string          `json:"id"`
	TenantID       string          `json:"tenant_id"`
	DocumentID     string          `json:"document_id"`
	TransactionID  string          `json:"transaction_id"`
	Status         CandidateStatus `json:"status"`
	Band           ConfidenceBand  `json:"band"`
	Explanation    string          `json:"explanation"`
	ReviewerID     string          `json:"reviewer_id,omitempty"`
	ParentID       *string         `json:"parent_id,omitempty"`
	CompositeScore float64         `json:"composite_score"`
	AmountScore    float64         `json:"amount_score"`
	DateScore      float64         `json:"date_score"`
	TextScore      float64         `json:"text_score"`
	AlreadyMatched bool            `json:"already_matched"`
	IsPartial      bool            `json:"is_partial"`
}

// DecisionAction identifies what a reviewer did to a match candidate.
type DecisionAction string

// Decision action constants.
const (
	ActionConfirm    DecisionAction = "confirm"
	ActionReject     DecisionAction = "reject"
	ActionUnmatch    DecisionAction = "unmatch"
	ActionManualLink DecisionAction = "manual_link"
	ActionSplit      DecisionAction = "split"
)

// MatchDecisionLogEntry is one row of the append-only audit trail of review
// decisions. Entries capture the score in effect at decision time and are
// never mutated.
type MatchDecisionLogEntry struct {
	CreatedAt      time.Time       `json:"created_at"`
	ID             string          `json:"id"`
	TenantID       string          `json:"tenant_id"`
	CandidateID    string          `json:"candidate_id"`
	DocumentID     string          `json:"document_id"`
	TransactionID  string          `json:"transaction_id"`
	ActorID        string          `json:"actor_id"`
	Action         DecisionAction  `json:"action"`
	PriorStatus    CandidateStatus `json:"prior_status"`
	NewStatus      CandidateStatus `json:"new_status"`
	CompositeScore float64         `json:"composite_score"`
	AmountScore    float64         `json:"amount_score"`
	DateScore      float64         `json:"date_score"`
	TextScore      float64         `json:"text_score"`
}
