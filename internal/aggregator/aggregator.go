// Package aggregator detects recurring correction patterns. It counts the
// union of exact-signature and fuzzy-text matches over a rolling window and
// materializes a pattern suggestion once a tenant's occurrence threshold is
// crossed.
package aggregator

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/tallyhq/tally/internal/config"
	"github.com/tallyhq/tally/internal/model"
	"github.com/tallyhq/tally/internal/normalize"
	"github.com/tallyhq/tally/internal/notify"
	"github.com/tallyhq/tally/internal/service"
	"github.com/tallyhq/tally/internal/similarity"
)

// Notifier publishes pattern-lifecycle events.
type Notifier interface {
	Emit(ctx context.Context, event notify.Event)
}

// Aggregator evaluates correction events against the tenant's policy.
type Aggregator struct {
	storage  service.Storage
	policies *config.Policies
	notifier Notifier
}

// New creates a pattern aggregator.
func New(storage service.Storage, policies *config.Policies, notifier Notifier) *Aggregator {
	return &Aggregator{
		storage:  storage,
		policies: policies,
		notifier: notifier,
	}
}

// Process evaluates one recorded correction. It returns the affected
// suggestion when the occurrence threshold is met, or nil when the event has
// not (yet) formed a pattern. Re-processing the same event is a no-op: the
// supporting-event link table refuses duplicates, so counts never inflate.
func (a *Aggregator) Process(ctx context.Context, event model.CorrectionEvent) (*model.PatternSuggestion, error) {
	if event.TenantID == "" {
		return nil, fmt.Errorf("correction event %s has no tenant", event.ID)
	}

	policy := a.policies.For(event.TenantID)
	since := event.CreatedAt.Add(-policy.CorrectionWindow)

	pool, err := a.storage.ListCorrections(ctx, event.TenantID, event.Field, event.NewValue, since)
	if err != nil {
		return nil, fmt.Errorf("failed to load correction window: %w", err)
	}

	// Union of exact-signature and fuzzy-text matches. Counting only exact
	// signatures misses reworded descriptions of the same counterparty;
	// counting only fuzzy text misses empty-description edits. Both failure
	// modes are documented history, hence the union.
	matching := matchingEvents(event, pool, policy.SimilarityThreshold)
	if len(matching) < policy.OccurrenceThreshold {
		return nil, nil
	}

	suggestion, err := a.upsertSuggestion(ctx, event, matching, policy)
	if err != nil {
		return nil, err
	}
	return suggestion, nil
}

// matchingEvents returns the events from pool whose exact signature matches
// e, or whose normalized text clears the similarity threshold. e itself is
// part of the pool once recorded.
func matchingEvents(e model.CorrectionEvent, pool []model.CorrectionEvent, threshold float64) []model.CorrectionEvent {
	var matched []model.CorrectionEvent
	for _, other := range pool {
		if other.Signature == e.Signature {
			matched = append(matched, other)
			continue
		}
		if e.NormalizedText != "" && similarity.Similar(e.NormalizedText, other.NormalizedText, threshold) {
			matched = append(matched, other)
		}
	}
	return matched
}

func (a *Aggregator) upsertSuggestion(ctx context.Context, event model.CorrectionEvent, matching []model.CorrectionEvent, policy config.Policy) (*model.PatternSuggestion, error) {
	anchor := a.findAnchor(ctx, event.TenantID, matching)

	patternText := normalize.PatternText(anchor.RawDescription)
	if patternText == "" {
		patternText = "%" + anchor.NormalizedText + "%"
	}

	suggestion := model.PatternSuggestion{
		TenantID:    event.TenantID,
		Signature:   anchor.Signature,
		PatternText: patternText,
		Field:       event.Field,
		NewValue:    event.NewValue,
		Confidence:  policy.BaseConfidence,
		Status:      model.SuggestionPending,
	}

	// Concurrent editors race on the insert; the loser loads the existing
	// row and proceeds down the update path.
	if err := a.storage.UpsertSuggestion(ctx, &suggestion); err != nil {
		return nil, fmt.Errorf("failed to upsert suggestion: %w", err)
	}

	if suggestion.Status != model.SuggestionPending {
		// Already validated or rejected; new occurrences do not reopen it.
		return &suggestion, nil
	}

	previousCount := suggestion.OccurrenceCount

	eventIDs := make([]string, 0, len(matching))
	for _, m := range matching {
		eventIDs = append(eventIDs, m.ID)
	}
	added, err := a.storage.AttachSupportingEvents(ctx, suggestion.ID, eventIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to attach supporting events: %w", err)
	}

	count, err := a.storage.SyncSuggestionOccurrences(ctx, suggestion.ID)
	if err != nil {
		return nil, err
	}

	confidence := Confidence(count, policy)
	if err := a.storage.SetSuggestionConfidence(ctx, suggestion.ID, confidence); err != nil {
		return nil, err
	}

	slog.Debug("Aggregated correction pattern",
		"tenant_id", event.TenantID,
		"suggestion_id", suggestion.ID,
		"occurrences", count,
		"newly_attached", added,
		"confidence", confidence)

	if previousCount < policy.OccurrenceThreshold && count >= policy.OccurrenceThreshold {
		a.notifier.Emit(ctx, notify.Event{
			Type:     notify.PatternSuggestionCreated,
			TenantID: event.TenantID,
			EntityID: fmt.Sprintf("%d", suggestion.ID),
			Message:  fmt.Sprintf("Pattern %q seen %d times, suggesting %s=%q", patternText, count, event.Field, event.NewValue),
			Priority: notify.PriorityNormal,
		})
	}

	return a.storage.GetSuggestion(ctx, suggestion.ID)
}

// findAnchor picks the event whose signature keys the suggestion. If any
// event in the matching set already owns a suggestion, that one wins so
// later fuzzy-only corrections attach to the existing row instead of
// spawning a near-duplicate. Otherwise the oldest event anchors the family.
func (a *Aggregator) findAnchor(ctx context.Context, tenantID string, matching []model.CorrectionEvent) model.CorrectionEvent {
	seen := make(map[string]bool)
	for _, m := range matching {
		if seen[m.Signature] {
			continue
		}
		seen[m.Signature] = true
		if _, err := a.storage.GetSuggestionBySignature(ctx, tenantID, m.Signature); err == nil {
			return m
		}
	}
	return matching[0]
}

// Confidence computes the pre-validation confidence ramp:
// base + (count - threshold) * step, capped below 1.0 so headroom remains
// for the post-validation adjustment. Non-decreasing in count.
func Confidence(count int, policy config.Policy) float64 {
	if count < policy.OccurrenceThreshold {
		return policy.BaseConfidence
	}
	extra := float64(count-policy.OccurrenceThreshold) * policy.ConfidenceStep
	return math.Min(policy.ConfidenceCap, policy.BaseConfidence+extra)
}
