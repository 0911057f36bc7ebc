// Package model defines the core data structures for the tally engine.
package model

import (
	"time"
)

// CorrectionField identifies which classification field a user edited.
type CorrectionField string

// Correction field constants.
const (
	FieldEntity        CorrectionField = "entity"
	FieldCategory      CorrectionField = "category"
	FieldSubcategory   CorrectionField = "subcategory"
	FieldJustification CorrectionField = "justification"
)

// Valid reports whether the field is one of the recognized correction fields.
func (f CorrectionField) Valid() bool {
	switch f {
	case FieldEntity, FieldCategory, FieldSubcategory, FieldJustification:
		return true
	}
	return false
}

// CorrectionEvent is an immutable record of one manual classification edit.
// Events are only ever inserted; they are never updated or deleted.
type CorrectionEvent struct {
	CreatedAt      time.Time       `json:"created_at"`
	ID             string          `json:"id"`
	TenantID       string          `json:"tenant_id"`
	UserID         string          `json:"user_id"`
	TransactionID  string          `json:"transaction_id"`
	Field          CorrectionField `json:"field"`
	OldValue       string          `json:"old_value"`
	NewValue       string          `json:"new_value"`
	RawDescription string          `json:"raw_description"`
	RawOrigin      string          `json:"raw_origin"`
	RawDestination string          `json:"raw_destination"`
	NormalizedText string          `json:"normalized_text"`
	Signature      string          `json:"signature"`
}
