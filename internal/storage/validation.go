package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tallyhq/tally/internal/model"
)

// Validation errors.
var (
	ErrNilContext        = errors.New("context cannot be nil")
	ErrEmptyString       = errors.New("string parameter cannot be empty")
	ErrNilParameter      = errors.New("parameter cannot be nil")
	ErrInvalidCorrection = errors.New("invalid correction event")
	ErrInvalidSuggestion = errors.New("invalid pattern suggestion")
	ErrInvalidPattern    = errors.New("invalid classification pattern")
	ErrInvalidCandidate  = errors.New("invalid match candidate")
	ErrInvalidDocument   = errors.New("invalid document")
)

// validateContext ensures the context is not nil.
func validateContext(ctx context.Context) error {
	if ctx == nil {
		return ErrNilContext
	}
	return nil
}

// validateString ensures a string parameter is not empty.
func validateString(s string, paramName string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%w: %s", ErrEmptyString, paramName)
	}
	return nil
}

// validateCorrection validates a correction event before insert.
func validateCorrection(event *model.CorrectionEvent) error {
	if event == nil {
		return fmt.Errorf("%w: event", ErrNilParameter)
	}
	if event.ID == "" {
		return fmt.Errorf("%w: missing ID", ErrInvalidCorrection)
	}
	if event.TenantID == "" {
		return fmt.Errorf("%w: missing tenant ID", ErrInvalidCorrection)
	}
	if event.TransactionID == "" {
		return fmt.Errorf("%w: missing transaction ID", ErrInvalidCorrection)
	}
	if !event.Field.Valid() {
		return fmt.Errorf("%w: unknown field %q", ErrInvalidCorrection, event.Field)
	}
	if event.Signature == "" {
		return fmt.Errorf("%w: missing signature", ErrInvalidCorrection)
	}
	return nil
}

// validateSuggestion validates a pattern suggestion before upsert.
func validateSuggestion(s *model.PatternSuggestion) error {
	if s == nil {
		return fmt.Errorf("%w: suggestion", ErrNilParameter)
	}
	if s.TenantID == "" {
		return fmt.Errorf("%w: missing tenant ID", ErrInvalidSuggestion)
	}
	if s.Signature == "" {
		return fmt.Errorf("%w: missing signature", ErrInvalidSuggestion)
	}
	if !s.Field.Valid() {
		return fmt.Errorf("%w: unknown field %q", ErrInvalidSuggestion, s.Field)
	}
	if s.Confidence < 0 || s.Confidence > 1 {
		return fmt.Errorf("%w: confidence must be between 0 and 1", ErrInvalidSuggestion)
	}
	return nil
}

// validatePattern validates a classification pattern before insert.
func validatePattern(p *model.ClassificationPattern) error {
	if p == nil {
		return fmt.Errorf("%w: pattern", ErrNilParameter)
	}
	if p.TenantID == "" {
		return fmt.Errorf("%w: missing tenant ID", ErrInvalidPattern)
	}
	if strings.TrimSpace(p.MatchText) == "" {
		return fmt.Errorf("%w: missing match text", ErrInvalidPattern)
	}
	if !p.Field.Valid() {
		return fmt.Errorf("%w: unknown field %q", ErrInvalidPattern, p.Field)
	}
	if p.Confidence < 0 || p.Confidence > 1 {
		return fmt.Errorf("%w: confidence must be between 0 and 1", ErrInvalidPattern)
	}
	switch p.Provenance {
	case model.ProvenanceManual, model.ProvenanceLLMValidated:
	default:
		return fmt.Errorf("%w: unknown provenance %q", ErrInvalidPattern, p.Provenance)
	}
	return nil
}

// validateCandidate validates a match candidate before persisting.
func validateCandidate(c *model.MatchCandidate) error {
	if c == nil {
		return fmt.Errorf("%w: candidate", ErrNilParameter)
	}
	if c.ID == "" {
		return fmt.Errorf("%w: missing ID", ErrInvalidCandidate)
	}
	if c.TenantID == "" {
		return fmt.Errorf("%w: missing tenant ID", ErrInvalidCandidate)
	}
	if c.DocumentID == "" || c.TransactionID == "" {
		return fmt.Errorf("%w: missing document or transaction ID", ErrInvalidCandidate)
	}
	for _, score := range []float64{c.CompositeScore, c.AmountScore, c.DateScore, c.TextScore} {
		if score < 0 || score > 1 {
			return fmt.Errorf("%w: scores must be between 0 and 1", ErrInvalidCandidate)
		}
	}
	return nil
}

// validateDocument validates a document record.
func validateDocument(d *model.Document) error {
	if d == nil {
		return fmt.Errorf("%w: document", ErrNilParameter)
	}
	if d.ID == "" {
		return fmt.Errorf("%w: missing ID", ErrInvalidDocument)
	}
	if d.TenantID == "" {
		return fmt.Errorf("%w: missing tenant ID", ErrInvalidDocument)
	}
	if !d.Type.Valid() {
		return fmt.Errorf("%w: unknown type %q", ErrInvalidDocument, d.Type)
	}
	if d.Date.IsZero() {
		return fmt.Errorf("%w: missing date", ErrInvalidDocument)
	}
	return nil
}
