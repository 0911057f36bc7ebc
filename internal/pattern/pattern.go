// Package pattern manages the active classification rule set. Rules enter
// through two doors: manual curation and promotion of validated suggestions.
// Deactivation flips a flag; rows are never deleted.
package pattern

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tallyhq/tally/internal/model"
	"github.com/tallyhq/tally/internal/notify"
	"github.com/tallyhq/tally/internal/service"
)

// Notifier publishes pattern-lifecycle events.
type Notifier interface {
	Emit(ctx context.Context, event notify.Event)
}

// Store manages classification pattern activation.
type Store struct {
	storage  service.Storage
	notifier Notifier
}

// NewStore creates a pattern store.
func NewStore(storage service.Storage, notifier Notifier) *Store {
	return &Store{storage: storage, notifier: notifier}
}

// Activate promotes a validated suggestion into an active classification
// pattern. The stored confidence is the suggestion's ramped confidence plus
// the gate's adjustment, clamped to stay below 1.0; certainty is never
// claimed for a learned rule.
func (s *Store) Activate(ctx context.Context, suggestion *model.PatternSuggestion) (*model.ClassificationPattern, error) {
	if suggestion.TenantID == "" {
		return nil, fmt.Errorf("suggestion %d has no tenant", suggestion.ID)
	}
	if suggestion.Status != model.SuggestionValidated {
		return nil, fmt.Errorf("suggestion %d is %s, only validated suggestions activate", suggestion.ID, suggestion.Status)
	}

	confidence := suggestion.Confidence
	if suggestion.Verdict != nil {
		confidence += suggestion.Verdict.ConfidenceAdjustment
	}
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 0.99 {
		confidence = 0.99
	}

	suggestionID := suggestion.ID
	p := model.ClassificationPattern{
		TenantID:     suggestion.TenantID,
		MatchText:    suggestion.PatternText,
		Field:        suggestion.Field,
		Value:        suggestion.NewValue,
		Provenance:   model.ProvenanceLLMValidated,
		Priority:     model.PriorityLearned,
		Confidence:   confidence,
		IsActive:     true,
		SuggestionID: &suggestionID,
	}

	if err := s.storage.CreatePattern(ctx, &p); err != nil {
		return nil, fmt.Errorf("failed to create pattern: %w", err)
	}

	slog.Info("Activated classification pattern",
		"tenant_id", p.TenantID,
		"pattern_id", p.ID,
		"suggestion_id", suggestion.ID,
		"confidence", p.Confidence)

	s.notifier.Emit(ctx, notify.Event{
		Type:     notify.PatternActivated,
		TenantID: p.TenantID,
		EntityID: fmt.Sprintf("%d", p.ID),
		Message:  fmt.Sprintf("Pattern %q now sets %s=%q (confidence %.2f)", p.MatchText, p.Field, p.Value, p.Confidence),
		Priority: notify.PriorityNormal,
	})

	return &p, nil
}

// AddManual creates a manually curated rule. Manual rules carry the lower
// priority value and therefore outrank learned ones during evaluation.
func (s *Store) AddManual(ctx context.Context, tenantID, matchText string, field model.CorrectionField, value string, confidence float64) (*model.ClassificationPattern, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("tenant id is required")
	}
	if matchText == "" {
		return nil, fmt.Errorf("match text is required")
	}
	if !field.Valid() {
		return nil, fmt.Errorf("invalid classification field: %s", field)
	}
	if confidence <= 0 || confidence > 1 {
		confidence = 1.0
	}

	p := model.ClassificationPattern{
		TenantID:   tenantID,
		MatchText:  matchText,
		Field:      field,
		Value:      value,
		Provenance: model.ProvenanceManual,
		Priority:   model.PriorityManual,
		Confidence: confidence,
		IsActive:   true,
	}

	if err := s.storage.CreatePattern(ctx, &p); err != nil {
		return nil, fmt.Errorf("failed to create pattern: %w", err)
	}

	slog.Info("Added manual classification pattern",
		"tenant_id", p.TenantID,
		"pattern_id", p.ID,
		"field", p.Field)

	return &p, nil
}

// Deactivate soft-disables a pattern. The row remains for the audit trail
// and so its originating suggestion cannot silently re-learn the same rule.
func (s *Store) Deactivate(ctx context.Context, tenantID string, patternID int64) error {
	p, err := s.storage.GetPattern(ctx, patternID)
	if err != nil {
		return fmt.Errorf("failed to load pattern %d: %w", patternID, err)
	}
	if p.TenantID != tenantID {
		return fmt.Errorf("pattern %d does not belong to tenant %s", patternID, tenantID)
	}
	if !p.IsActive {
		return nil
	}

	if err := s.storage.SetPatternActive(ctx, patternID, false); err != nil {
		return fmt.Errorf("failed to deactivate pattern %d: %w", patternID, err)
	}

	slog.Info("Deactivated classification pattern",
		"tenant_id", tenantID,
		"pattern_id", patternID)

	s.notifier.Emit(ctx, notify.Event{
		Type:     notify.PatternDeactivated,
		TenantID: tenantID,
		EntityID: fmt.Sprintf("%d", patternID),
		Message:  fmt.Sprintf("Pattern %q deactivated", p.MatchText),
		Priority: notify.PriorityLow,
	})

	return nil
}

// ActiveRules returns the tenant's active patterns ordered by evaluation
// priority (manual rules first).
func (s *Store) ActiveRules(ctx context.Context, tenantID string) ([]model.ClassificationPattern, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("tenant id is required")
	}
	return s.storage.ListActivePatterns(ctx, tenantID)
}
