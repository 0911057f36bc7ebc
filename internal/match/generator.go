// Package match generates and reviews document-to-transaction match
// candidates. Generation is deterministic and idempotent per document;
// review moves candidates through an audited state machine.
package match

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/tallyhq/tally/internal/common"
	"github.com/tallyhq/tally/internal/config"
	"github.com/tallyhq/tally/internal/model"
	"github.com/tallyhq/tally/internal/normalize"
	"github.com/tallyhq/tally/internal/service"
	"github.com/tallyhq/tally/internal/similarity"
)

// Generator builds scored match candidates for documents.
type Generator struct {
	storage  service.Storage
	policies *config.Policies
}

// NewGenerator creates a match candidate generator.
func NewGenerator(storage service.Storage, policies *config.Policies) *Generator {
	return &Generator{storage: storage, policies: policies}
}

// Generate scores the document against its transaction candidate pool and
// atomically replaces the document's candidate set. Candidates below the
// policy floor are discarded. Returns the stored set, ranked for review.
// Regenerating is safe: candidate ids are derived from the pairing, so
// scores refresh in place and review decisions survive.
func (g *Generator) Generate(ctx context.Context, tenantID, documentID string) ([]model.MatchCandidate, error) {
	if tenantID == "" {
		return nil, common.ErrTenantRequired
	}

	doc, err := g.storage.GetDocument(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("failed to load document %s: %w", documentID, err)
	}
	if doc.TenantID != tenantID {
		return nil, fmt.Errorf("%w: document %s", common.ErrNotFound, documentID)
	}

	policy := g.policies.For(tenantID)
	windowDays := policy.DateWindowDays(doc.Type)
	corridor := policy.AmountCorridor(doc.Amount)

	pool, err := g.storage.ListTransactionsInWindow(ctx, service.TransactionWindow{
		TenantID:  tenantID,
		From:      doc.Date.AddDate(0, 0, -windowDays),
		To:        doc.Date.AddDate(0, 0, windowDays),
		MinAmount: doc.Amount - corridor,
		MaxAmount: doc.Amount + corridor,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load candidate pool: %w", err)
	}

	docText := normalize.Normalize(strings.TrimSpace(doc.Counterparty + " " + doc.Description))

	candidates := make([]model.MatchCandidate, 0, len(pool))
	for i := range pool {
		txn := &pool[i]
		candidate := g.score(doc, txn, docText, windowDays, policy)
		if candidate.CompositeScore < policy.CandidateFloor {
			continue
		}

		matched, err := g.transactionAlreadyMatched(ctx, tenantID, txn.ID)
		if err != nil {
			return nil, err
		}
		candidate.AlreadyMatched = matched
		candidates = append(candidates, candidate)
	}

	if err := g.storage.ReplaceCandidates(ctx, tenantID, documentID, candidates); err != nil {
		return nil, fmt.Errorf("failed to store candidates for document %s: %w", documentID, err)
	}

	slog.Debug("Generated match candidates",
		"tenant_id", tenantID,
		"document_id", documentID,
		"pool_size", len(pool),
		"candidates", len(candidates))

	return g.storage.ListCandidates(ctx, documentID)
}

// score computes the weighted composite for one pairing. The amount-ratio
// penalty is subtracted after weighting and the result clamped at zero.
func (g *Generator) score(doc *model.Document, txn *model.Transaction, docText string, windowDays int, policy config.Policy) model.MatchCandidate {
	txnText := normalize.Normalize(strings.TrimSpace(
		txn.Description + " " + txn.Origin + " " + txn.Destination))

	amountScore := similarity.AmountScore(doc.Amount, txn.Amount)
	dateScore := similarity.DateScore(doc.Date, txn.Date, windowDays)
	textScore := similarity.TextScore(docText, txnText)

	weights := policy.WeightsFor(doc.Type)
	composite := weights.Amount*amountScore +
		weights.Date*dateScore +
		weights.Text*textScore
	composite -= similarity.AmountPenalty(doc.Amount, txn.Amount)
	composite = math.Max(0, composite)

	return model.MatchCandidate{
		ID:             CandidateID(doc.ID, txn.ID),
		TenantID:       doc.TenantID,
		DocumentID:     doc.ID,
		TransactionID:  txn.ID,
		Status:         model.CandidatePending,
		Band:           Band(composite, policy),
		Explanation:    explain(doc, txn, textScore),
		CompositeScore: composite,
		AmountScore:    amountScore,
		DateScore:      dateScore,
		TextScore:      textScore,
	}
}

func (g *Generator) transactionAlreadyMatched(ctx context.Context, tenantID, transactionID string) (bool, error) {
	_, err := g.storage.GetConfirmedCandidateForTransaction(ctx, tenantID, transactionID)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, common.ErrNotFound) {
		return false, nil
	}
	return false, fmt.Errorf("failed to check existing match for transaction %s: %w", transactionID, err)
}

// CandidateID derives the stable id for a document/transaction pairing.
// Deriving instead of generating keeps regeneration and replay idempotent.
func CandidateID(documentID, transactionID string) string {
	sum := sha256.Sum256([]byte(documentID + "\x00" + transactionID))
	return hex.EncodeToString(sum[:16])
}

// Band buckets a composite score using the tenant's cutoffs.
func Band(score float64, policy config.Policy) model.ConfidenceBand {
	switch {
	case score >= policy.HighBandCutoff:
		return model.BandHigh
	case score >= policy.MediumBandCutoff:
		return model.BandMedium
	default:
		return model.BandLow
	}
}

// explain renders the human-readable reason shown next to the candidate,
// e.g. "amount exact, date 2 days apart, description 72% similar".
func explain(doc *model.Document, txn *model.Transaction, textScore float64) string {
	var parts []string

	diff := math.Abs(doc.Amount - txn.Amount)
	if diff < 0.005 {
		parts = append(parts, "amount exact")
	} else {
		parts = append(parts, fmt.Sprintf("amount differs by %.2f", diff))
	}

	days := int(math.Round(math.Abs(doc.Date.Sub(txn.Date).Hours()) / 24))
	switch days {
	case 0:
		parts = append(parts, "same day")
	case 1:
		parts = append(parts, "date 1 day apart")
	default:
		parts = append(parts, fmt.Sprintf("date %d days apart", days))
	}

	parts = append(parts, fmt.Sprintf("description %d%% similar", int(math.Round(textScore*100))))

	return strings.Join(parts, ", ")
}
