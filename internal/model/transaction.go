package model

import (
	"crypto/sha256"
	"fmt"
	"time"
)

// Transaction is a ledger row provided by an external transaction source.
// The engine classifies and reconciles transactions; it never creates them.
type Transaction struct {
	Date          time.Time `json:"date"`
	ID            string    `json:"id"`
	TenantID      string    `json:"tenant_id"`
	Description   string    `json:"description"`
	Origin        string    `json:"origin"`
	Destination   string    `json:"destination"`
	Currency      string    `json:"currency"`
	Entity        string    `json:"entity,omitempty"`
	Category      string    `json:"category,omitempty"`
	Subcategory   string    `json:"subcategory,omitempty"`
	Justification string    `json:"justification,omitempty"`
	Amount        float64   `json:"amount"`
}

// GenerateHash creates a content hash for duplicate detection on import.
func (t *Transaction) GenerateHash() string {
	data := fmt.Sprintf("%s:%s:%.2f:%s:%s",
		t.TenantID,
		t.Date.Format("2006-01-02"),
		t.Amount,
		t.Description,
		t.Origin)
	hash := sha256.Sum256([]byte(data))
	return fmt.Sprintf("%x", hash)
}

// ClassificationValue returns the current value of the given field.
func (t *Transaction) ClassificationValue(field CorrectionField) string {
	switch field {
	case FieldEntity:
		return t.Entity
	case FieldCategory:
		return t.Category
	case FieldSubcategory:
		return t.Subcategory
	case FieldJustification:
		return t.Justification
	}
	return ""
}
