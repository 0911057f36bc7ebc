// Package engine wires the learning and matching services together: the
// correction tracker feeds the aggregator, threshold-crossing suggestions
// queue for validation, and approved verdicts activate classification
// patterns. The engine owns the validation worker; everything else is
// synchronous.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/tallyhq/tally/internal/aggregator"
	"github.com/tallyhq/tally/internal/common"
	"github.com/tallyhq/tally/internal/config"
	"github.com/tallyhq/tally/internal/llm"
	"github.com/tallyhq/tally/internal/match"
	"github.com/tallyhq/tally/internal/model"
	"github.com/tallyhq/tally/internal/notify"
	"github.com/tallyhq/tally/internal/pattern"
	"github.com/tallyhq/tally/internal/service"
	"github.com/tallyhq/tally/internal/tracker"
)

// maxVerdictExamples caps how many raw descriptions accompany a validation
// request.
const maxVerdictExamples = 5

// Engine coordinates pattern learning and document matching.
type Engine struct {
	storage   service.Storage
	policies  *config.Policies
	notifier  *notify.Emitter
	tracker   *tracker.Tracker
	aggregate *aggregator.Aggregator
	patterns  *pattern.Store
	generator *match.Generator
	workflow  *match.Workflow
	validator llm.Client

	jobs chan int64
	wg   sync.WaitGroup
}

// New creates an engine and wires the correction hook: every recorded
// correction runs through the aggregator, and suggestions that cross their
// occurrence threshold are queued for validation.
func New(storage service.Storage, policies *config.Policies, validator llm.Client, notifier *notify.Emitter) *Engine {
	e := &Engine{
		storage:   storage,
		policies:  policies,
		notifier:  notifier,
		validator: validator,
		jobs:      make(chan int64, 64),
	}

	e.tracker = tracker.New(storage)
	e.aggregate = aggregator.New(storage, policies, notifier)
	e.patterns = pattern.NewStore(storage, notifier)
	e.generator = match.NewGenerator(storage, policies)
	e.workflow = match.NewWorkflow(storage, policies, notifier)

	e.tracker.OnRecorded(func(ctx context.Context, event model.CorrectionEvent) {
		suggestion, err := e.aggregate.Process(ctx, event)
		if err != nil {
			slog.Error("Failed to aggregate correction",
				"tenant_id", event.TenantID,
				"event_id", event.ID,
				"error", err)
			return
		}
		if suggestion != nil && suggestion.Status == model.SuggestionPending {
			e.enqueueValidation(suggestion.ID)
		}
	})

	return e
}

// Tracker exposes the correction tracker.
func (e *Engine) Tracker() *tracker.Tracker { return e.tracker }

// Patterns exposes the classification pattern store.
func (e *Engine) Patterns() *pattern.Store { return e.patterns }

// Generator exposes the match candidate generator.
func (e *Engine) Generator() *match.Generator { return e.generator }

// Workflow exposes the match review workflow.
func (e *Engine) Workflow() *match.Workflow { return e.workflow }

// Storage exposes the persistence layer.
func (e *Engine) Storage() service.Storage { return e.storage }

// Start launches the validation worker. The worker drains queued suggestion
// ids until ctx is canceled; Wait blocks until it exits.
func (e *Engine) Start(ctx context.Context) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case id := <-e.jobs:
				if err := e.ValidateSuggestion(ctx, id); err != nil {
					slog.Warn("Validation deferred, suggestion stays pending",
						"suggestion_id", id,
						"error", err)
				}
			}
		}
	}()
}

// Wait blocks until the validation worker has stopped.
func (e *Engine) Wait() {
	e.wg.Wait()
}

func (e *Engine) enqueueValidation(suggestionID int64) {
	select {
	case e.jobs <- suggestionID:
	default:
		// Queue full. The suggestion stays pending and is picked up by the
		// next ProcessPending pass.
		slog.Warn("Validation queue full", "suggestion_id", suggestionID)
	}
}

// RecordCorrection captures a manual classification edit and runs the
// learning pipeline synchronously up to the validation queue.
func (e *Engine) RecordCorrection(ctx context.Context, req tracker.Request) (*model.CorrectionEvent, error) {
	return e.tracker.Record(ctx, req)
}

// ValidateSuggestion runs one pending suggestion through the validation
// gate. A gate failure leaves the suggestion pending and returns the error;
// nothing is ever auto-activated without a verdict. Re-validating a resolved
// suggestion is a no-op.
func (e *Engine) ValidateSuggestion(ctx context.Context, suggestionID int64) error {
	suggestion, err := e.storage.GetSuggestion(ctx, suggestionID)
	if err != nil {
		return err
	}
	if suggestion.Status != model.SuggestionPending {
		return nil
	}

	policy := e.policies.For(suggestion.TenantID)
	if suggestion.OccurrenceCount < policy.OccurrenceThreshold {
		return nil
	}

	examples, err := e.verdictExamples(ctx, suggestion)
	if err != nil {
		return err
	}

	var verdict model.ValidationVerdict
	validateOnce := func() error {
		var vErr error
		verdict, vErr = e.validator.Validate(ctx, llm.Request{
			PatternText:     suggestion.PatternText,
			Field:           string(suggestion.Field),
			NewValue:        suggestion.NewValue,
			Examples:        examples,
			OccurrenceCount: suggestion.OccurrenceCount,
		})
		return vErr
	}
	if err := common.WithRetry(ctx, validateOnce, service.RetryOptions{MaxAttempts: 3}); err != nil {
		return fmt.Errorf("validation gate unavailable for suggestion %d: %w", suggestionID, err)
	}

	status := model.SuggestionValidated
	if !verdict.Approve {
		status = model.SuggestionRejected
	}

	applied, err := e.storage.ResolveSuggestion(ctx, suggestionID, status, &verdict, suggestion.Confidence)
	if err != nil {
		return err
	}
	if !applied {
		// A concurrent worker resolved it first; its verdict stands.
		return nil
	}

	slog.Info("Validation verdict applied",
		"tenant_id", suggestion.TenantID,
		"suggestion_id", suggestionID,
		"approve", verdict.Approve,
		"risk", verdict.Risk)

	if !verdict.Approve {
		e.notifier.Emit(ctx, notify.Event{
			Type:     notify.PatternRejected,
			TenantID: suggestion.TenantID,
			EntityID: fmt.Sprintf("%d", suggestionID),
			Message:  fmt.Sprintf("Pattern %q rejected by validation: %s", suggestion.PatternText, verdict.Rationale),
			Priority: notify.PriorityLow,
		})
		return nil
	}

	resolved, err := e.storage.GetSuggestion(ctx, suggestionID)
	if err != nil {
		return err
	}
	if _, err := e.patterns.Activate(ctx, resolved); err != nil {
		return fmt.Errorf("failed to activate validated suggestion %d: %w", suggestionID, err)
	}
	return nil
}

// verdictExamples collects raw descriptions from the suggestion's supporting
// corrections so the gate sees real inputs, not just the derived pattern.
func (e *Engine) verdictExamples(ctx context.Context, suggestion *model.PatternSuggestion) ([]string, error) {
	examples := make([]string, 0, maxVerdictExamples)
	for _, eventID := range suggestion.SupportingIDs {
		if len(examples) == maxVerdictExamples {
			break
		}
		event, err := e.storage.GetCorrection(ctx, eventID)
		if err != nil {
			return nil, fmt.Errorf("failed to load supporting event %s: %w", eventID, err)
		}
		if event.RawDescription != "" {
			examples = append(examples, event.RawDescription)
		}
	}
	return examples, nil
}

// ProcessPending validates every pending suggestion of the tenant that has
// reached its occurrence threshold. Used by the sweep and as the catch-up
// path when the queue overflowed or the gate was down.
func (e *Engine) ProcessPending(ctx context.Context, tenantID string) (int, error) {
	if tenantID == "" {
		return 0, common.ErrTenantRequired
	}

	pending, err := e.storage.ListPendingSuggestions(ctx, tenantID)
	if err != nil {
		return 0, err
	}

	policy := e.policies.For(tenantID)
	resolved := 0
	for i := range pending {
		if pending[i].OccurrenceCount < policy.OccurrenceThreshold {
			continue
		}
		if err := ctx.Err(); err != nil {
			return resolved, err
		}
		if err := e.ValidateSuggestion(ctx, pending[i].ID); err != nil {
			if errors.Is(err, common.ErrValidationUnavailable) || errors.Is(err, common.ErrMaxRetries) {
				slog.Warn("Validation gate unavailable, stopping pending pass", "error", err)
				return resolved, nil
			}
			return resolved, err
		}
		resolved++
	}
	return resolved, nil
}
