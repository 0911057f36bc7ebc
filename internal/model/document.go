package model

import (
	"time"
)

// DocumentType distinguishes the kinds of financial documents the matcher
// reconciles. Each type gets its own date window and score weights.
type DocumentType string

// Document type constants.
const (
	DocumentInvoice DocumentType = "invoice"
	DocumentPayslip DocumentType = "payslip"
)

// Valid reports whether the document type is recognized.
func (d DocumentType) Valid() bool {
	return d == DocumentInvoice || d == DocumentPayslip
}

// Document is an external financial record (invoice or payslip) to be
// reconciled against transactions. Parsing/OCR happens upstream; the engine
// only ever sees the structured record.
type Document struct {
	Date         time.Time    `json:"date"`
	ID           string       `json:"id"`
	TenantID     string       `json:"tenant_id"`
	Type         DocumentType `json:"type"`
	Counterparty string       `json:"counterparty"`
	Description  string       `json:"description"`
	Amount       float64      `json:"amount"`
}
