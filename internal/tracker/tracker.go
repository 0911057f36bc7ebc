// Package tracker records manual classification corrections as immutable
// events and hands each one to the pattern learning pipeline.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tallyhq/tally/internal/common"
	"github.com/tallyhq/tally/internal/model"
	"github.com/tallyhq/tally/internal/normalize"
	"github.com/tallyhq/tally/internal/service"
)

// Hook is invoked after a correction event is durably recorded. Hooks run
// synchronously on the recording path; a failing hook is logged but does not
// roll back the event, which must be captured exactly once regardless.
type Hook func(ctx context.Context, event model.CorrectionEvent)

// Tracker records correction events.
type Tracker struct {
	storage service.Storage
	hooks   []Hook
}

// New creates a correction tracker.
func New(storage service.Storage) *Tracker {
	return &Tracker{storage: storage}
}

// OnRecorded registers a hook called after every recorded correction.
func (t *Tracker) OnRecorded(hook Hook) {
	t.hooks = append(t.hooks, hook)
}

// Request describes one manual classification edit.
type Request struct {
	TenantID    string
	UserID      string
	Transaction model.Transaction
	Field       model.CorrectionField
	NewValue    string
}

// Record captures a manual edit as an immutable CorrectionEvent and triggers
// the registered hooks. An empty or all-numeric description still records
// fine: the normalized text is simply empty and yields no fuzzy matches.
func (t *Tracker) Record(ctx context.Context, req Request) (*model.CorrectionEvent, error) {
	if req.TenantID == "" {
		return nil, common.ErrTenantRequired
	}
	if !req.Field.Valid() {
		return nil, fmt.Errorf("unknown correction field %q", req.Field)
	}
	if req.Transaction.ID == "" {
		return nil, fmt.Errorf("correction requires a transaction reference")
	}

	normalized := normalize.Normalize(joinRawText(req.Transaction))
	event := model.CorrectionEvent{
		ID:             uuid.NewString(),
		TenantID:       req.TenantID,
		UserID:         req.UserID,
		TransactionID:  req.Transaction.ID,
		Field:          req.Field,
		OldValue:       req.Transaction.ClassificationValue(req.Field),
		NewValue:       req.NewValue,
		RawDescription: req.Transaction.Description,
		RawOrigin:      req.Transaction.Origin,
		RawDestination: req.Transaction.Destination,
		NormalizedText: normalized,
		Signature:      normalize.Signature(normalized, string(req.Field), req.NewValue),
		CreatedAt:      time.Now().UTC(),
	}

	if err := t.storage.RecordCorrection(ctx, &event); err != nil {
		if errors.Is(err, common.ErrDuplicateEntry) {
			slog.Debug("Correction event already recorded", "event_id", event.ID)
			return &event, nil
		}
		return nil, fmt.Errorf("failed to record correction: %w", err)
	}

	for _, hook := range t.hooks {
		hook(ctx, event)
	}

	return &event, nil
}

// joinRawText assembles the text fields that describe the transaction at the
// time of the edit.
func joinRawText(txn model.Transaction) string {
	parts := make([]string, 0, 3)
	for _, s := range []string{txn.Description, txn.Origin, txn.Destination} {
		if strings.TrimSpace(s) != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, " ")
}
