package match

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/tallyhq/tally/internal/common"
	"github.com/tallyhq/tally/internal/config"
	"github.com/tallyhq/tally/internal/model"
	"github.com/tallyhq/tally/internal/normalize"
	"github.com/tallyhq/tally/internal/notify"
	"github.com/tallyhq/tally/internal/service"
	"github.com/tallyhq/tally/internal/similarity"
)

// Notifier publishes match-lifecycle events.
type Notifier interface {
	Emit(ctx context.Context, event notify.Event)
}

// Workflow drives match candidates through review. Every decision appends
// to the decision log; nothing about a prior decision is ever rewritten.
type Workflow struct {
	storage  service.Storage
	policies *config.Policies
	notifier Notifier
}

// NewWorkflow creates a match review workflow.
func NewWorkflow(storage service.Storage, policies *config.Policies, notifier Notifier) *Workflow {
	return &Workflow{storage: storage, policies: policies, notifier: notifier}
}

// Confirm accepts a pending candidate. Fails with common.ErrConflict when
// either side of the pairing already has a confirmed full match.
func (w *Workflow) Confirm(ctx context.Context, tenantID, candidateID, actorID string) error {
	candidate, err := w.loadOwned(ctx, tenantID, candidateID)
	if err != nil {
		return err
	}

	entry := newDecisionEntry(candidate, model.ActionConfirm, candidate.Status, model.CandidateConfirmed, actorID)
	if err := w.storage.TransitionCandidate(ctx, candidateID, model.CandidatePending, model.CandidateConfirmed, entry); err != nil {
		return err
	}

	slog.Info("Confirmed match",
		"tenant_id", tenantID,
		"candidate_id", candidateID,
		"document_id", candidate.DocumentID,
		"transaction_id", candidate.TransactionID,
		"actor_id", actorID)

	w.notifier.Emit(ctx, notify.Event{
		Type:     notify.MatchConfirmed,
		TenantID: tenantID,
		EntityID: candidateID,
		Message:  fmt.Sprintf("Document %s matched to transaction %s", candidate.DocumentID, candidate.TransactionID),
		Priority: notify.PriorityNormal,
	})
	return nil
}

// Reject declines a pending candidate. Rejected rows stay in place so
// regeneration cannot resurface the same bad pairing as pending.
func (w *Workflow) Reject(ctx context.Context, tenantID, candidateID, actorID string) error {
	candidate, err := w.loadOwned(ctx, tenantID, candidateID)
	if err != nil {
		return err
	}

	entry := newDecisionEntry(candidate, model.ActionReject, candidate.Status, model.CandidateRejected, actorID)
	if err := w.storage.TransitionCandidate(ctx, candidateID, model.CandidatePending, model.CandidateRejected, entry); err != nil {
		return err
	}

	w.notifier.Emit(ctx, notify.Event{
		Type:     notify.MatchRejected,
		TenantID: tenantID,
		EntityID: candidateID,
		Message:  fmt.Sprintf("Candidate for document %s and transaction %s rejected", candidate.DocumentID, candidate.TransactionID),
		Priority: notify.PriorityLow,
	})
	return nil
}

// Unmatch reverts a confirmed candidate to pending, releasing both the
// document and the transaction for rematching. The confirmation remains in
// the decision log.
func (w *Workflow) Unmatch(ctx context.Context, tenantID, candidateID, actorID string) error {
	candidate, err := w.loadOwned(ctx, tenantID, candidateID)
	if err != nil {
		return err
	}
	if candidate.IsPartial {
		return fmt.Errorf("%w: partial matches cannot be unmatched independently", common.ErrInvalidTransition)
	}

	entry := newDecisionEntry(candidate, model.ActionUnmatch, candidate.Status, model.CandidatePending, actorID)
	if err := w.storage.TransitionCandidate(ctx, candidateID, model.CandidateConfirmed, model.CandidatePending, entry); err != nil {
		return err
	}

	slog.Info("Unmatched candidate",
		"tenant_id", tenantID,
		"candidate_id", candidateID,
		"actor_id", actorID)
	return nil
}

// Split attaches an additional transaction to an already-confirmed match,
// covering invoices paid in installments. The extra link is a confirmed
// partial row tied to the parent and exempt from exclusivity.
func (w *Workflow) Split(ctx context.Context, tenantID, parentCandidateID, transactionID, actorID string) error {
	parent, err := w.loadOwned(ctx, tenantID, parentCandidateID)
	if err != nil {
		return err
	}
	if parent.Status != model.CandidateConfirmed {
		return fmt.Errorf("%w: parent candidate %s is %s", common.ErrInvalidTransition, parentCandidateID, parent.Status)
	}

	doc, err := w.storage.GetDocument(ctx, parent.DocumentID)
	if err != nil {
		return fmt.Errorf("failed to load document %s: %w", parent.DocumentID, err)
	}
	txn, err := w.storage.GetTransaction(ctx, transactionID)
	if err != nil {
		return fmt.Errorf("failed to load transaction %s: %w", transactionID, err)
	}
	if txn.TenantID != tenantID {
		return fmt.Errorf("%w: transaction %s", common.ErrNotFound, transactionID)
	}

	policy := w.policies.For(tenantID)
	docText := normalize.Normalize(doc.Counterparty + " " + doc.Description)
	txnText := normalize.Normalize(txn.Description + " " + txn.Origin + " " + txn.Destination)

	amountScore := similarity.AmountScore(doc.Amount, txn.Amount)
	dateScore := similarity.DateScore(doc.Date, txn.Date, policy.DateWindowDays(doc.Type))
	textScore := similarity.TextScore(docText, txnText)
	weights := policy.WeightsFor(doc.Type)
	composite := math.Max(0, weights.Amount*amountScore+
		weights.Date*dateScore+
		weights.Text*textScore-
		similarity.AmountPenalty(doc.Amount, txn.Amount))

	parentID := parent.ID
	partial := &model.MatchCandidate{
		ID:             uuid.NewString(),
		TenantID:       tenantID,
		DocumentID:     parent.DocumentID,
		TransactionID:  transactionID,
		Status:         model.CandidateConfirmed,
		Band:           Band(composite, policy),
		Explanation:    explain(doc, txn, textScore),
		CompositeScore: composite,
		AmountScore:    amountScore,
		DateScore:      dateScore,
		TextScore:      textScore,
		IsPartial:      true,
		ParentID:       &parentID,
	}

	entry := newDecisionEntry(partial, model.ActionSplit, model.CandidatePending, model.CandidateConfirmed, actorID)
	if err := w.storage.InsertPartialMatch(ctx, partial, entry); err != nil {
		return err
	}

	slog.Info("Recorded split payment",
		"tenant_id", tenantID,
		"parent_candidate_id", parentCandidateID,
		"transaction_id", transactionID,
		"actor_id", actorID)

	w.notifier.Emit(ctx, notify.Event{
		Type:     notify.MatchConfirmed,
		TenantID: tenantID,
		EntityID: partial.ID,
		Message:  fmt.Sprintf("Transaction %s linked as partial payment of document %s", transactionID, parent.DocumentID),
		Priority: notify.PriorityNormal,
	})
	return nil
}

// History returns the document's decision log, oldest first.
func (w *Workflow) History(ctx context.Context, documentID string) ([]model.MatchDecisionLogEntry, error) {
	return w.storage.ListDecisions(ctx, documentID)
}

func (w *Workflow) loadOwned(ctx context.Context, tenantID, candidateID string) (*model.MatchCandidate, error) {
	if tenantID == "" {
		return nil, common.ErrTenantRequired
	}
	candidate, err := w.storage.GetCandidate(ctx, candidateID)
	if err != nil {
		return nil, err
	}
	if candidate.TenantID != tenantID {
		return nil, fmt.Errorf("%w: match candidate %s", common.ErrNotFound, candidateID)
	}
	return candidate, nil
}

// newDecisionEntry snapshots the candidate's scores into an audit row.
func newDecisionEntry(c *model.MatchCandidate, action model.DecisionAction, from, to model.CandidateStatus, actorID string) *model.MatchDecisionLogEntry {
	return &model.MatchDecisionLogEntry{
		ID:             uuid.NewString(),
		CreatedAt:      time.Now().UTC(),
		TenantID:       c.TenantID,
		CandidateID:    c.ID,
		DocumentID:     c.DocumentID,
		TransactionID:  c.TransactionID,
		ActorID:        actorID,
		Action:         action,
		PriorStatus:    from,
		NewStatus:      to,
		CompositeScore: c.CompositeScore,
		AmountScore:    c.AmountScore,
		DateScore:      c.DateScore,
		TextScore:      c.TextScore,
	}
}
