package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/tallyhq/tally/internal/common"
	"github.com/tallyhq/tally/internal/model"
	"github.com/tallyhq/tally/internal/notify"
)

// SweepResult summarizes one bulk matching pass.
type SweepResult struct {
	Documents  int
	Candidates int
	Failed     int
	Stale      int
}

// Sweep regenerates match candidates for every unmatched document of the
// tenant and flags stale pending suggestions. Each document's candidate set
// is replaced atomically; cancellation between documents leaves completed
// documents intact. A document that fails to score is logged and skipped so
// one bad record cannot stall the pass.
func (e *Engine) Sweep(ctx context.Context, tenantID string, showProgress bool) (*SweepResult, error) {
	if tenantID == "" {
		return nil, common.ErrTenantRequired
	}

	docs, err := e.storage.ListUnmatchedDocuments(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list unmatched documents: %w", err)
	}

	var bar *progressbar.ProgressBar
	if showProgress && len(docs) > 0 {
		bar = progressbar.Default(int64(len(docs)), "Matching documents")
	}

	result := &SweepResult{}
	for i := range docs {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		doc := &docs[i]
		candidates, genErr := e.generator.Generate(ctx, tenantID, doc.ID)
		if bar != nil {
			_ = bar.Add(1)
		}
		if genErr != nil {
			result.Failed++
			slog.Error("Failed to generate candidates",
				"tenant_id", tenantID,
				"document_id", doc.ID,
				"error", genErr)
			continue
		}

		result.Documents++
		result.Candidates += len(candidates)

		if len(candidates) > 0 {
			e.notifier.Emit(ctx, notify.Event{
				Type:     notify.MatchCandidatesReady,
				TenantID: tenantID,
				EntityID: doc.ID,
				Message:  fmt.Sprintf("%d match candidates ready for document %s", len(candidates), doc.ID),
				Priority: sweepPriority(candidates),
			})
		}
	}

	stale, err := e.flagStaleSuggestions(ctx, tenantID)
	if err != nil {
		return result, err
	}
	result.Stale = stale

	slog.Info("Sweep complete",
		"tenant_id", tenantID,
		"documents", result.Documents,
		"candidates", result.Candidates,
		"failed", result.Failed,
		"stale_suggestions", result.Stale)

	return result, nil
}

// sweepPriority raises the notification priority when a high-band candidate
// is waiting, since those are the ones reviewers can clear fastest.
func sweepPriority(candidates []model.MatchCandidate) notify.Priority {
	for _, c := range candidates {
		if c.Band == model.BandHigh && !c.AlreadyMatched {
			return notify.PriorityHigh
		}
	}
	return notify.PriorityNormal
}

// flagStaleSuggestions surfaces pending suggestions the validation gate has
// not resolved within the policy age, so a stuck gate is visible instead of
// silently accumulating backlog.
func (e *Engine) flagStaleSuggestions(ctx context.Context, tenantID string) (int, error) {
	policy := e.policies.For(tenantID)
	cutoff := time.Now().UTC().Add(-policy.StaleSuggestionAge)

	stale, err := e.storage.ListStaleSuggestions(ctx, tenantID, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to list stale suggestions: %w", err)
	}

	for i := range stale {
		e.notifier.Emit(ctx, notify.Event{
			Type:     notify.PatternSuggestionStale,
			TenantID: tenantID,
			EntityID: fmt.Sprintf("%d", stale[i].ID),
			Message:  fmt.Sprintf("Suggestion %q pending since %s", stale[i].PatternText, stale[i].UpdatedAt.Format("2006-01-02")),
			Priority: notify.PriorityHigh,
		})
	}
	return len(stale), nil
}
