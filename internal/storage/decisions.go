package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/tallyhq/tally/internal/model"
)

// insertDecisionTx appends a decision log entry inside an open transaction.
// The log is append-only: there are no update or delete paths.
func insertDecisionTx(ctx context.Context, tx *sql.Tx, entry *model.MatchDecisionLogEntry) error {
	if entry.ID == "" {
		return fmt.Errorf("%w: decision entry ID", ErrEmptyString)
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO match_decisions (
			id, tenant_id, candidate_id, document_id, transaction_id,
			actor_id, action, prior_status, new_status,
			composite_score, amount_score, date_score, text_score, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, entry.ID, entry.TenantID, entry.CandidateID, entry.DocumentID, entry.TransactionID,
		entry.ActorID, string(entry.Action), string(entry.PriorStatus), string(entry.NewStatus),
		entry.CompositeScore, entry.AmountScore, entry.DateScore, entry.TextScore, entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to append decision log entry: %w", err)
	}
	return nil
}

// ListDecisions returns a document's decision trail, oldest first.
func (s *SQLiteStorage) ListDecisions(ctx context.Context, documentID string) ([]model.MatchDecisionLogEntry, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(documentID, "documentID"); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant_id, candidate_id, document_id, transaction_id,
			actor_id, action, prior_status, new_status,
			composite_score, amount_score, date_score, text_score, created_at
		FROM match_decisions
		WHERE document_id = ?
		ORDER BY created_at ASC, id ASC
	`, documentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list decisions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []model.MatchDecisionLogEntry
	for rows.Next() {
		var entry model.MatchDecisionLogEntry
		var action, prior, next string
		err := rows.Scan(
			&entry.ID, &entry.TenantID, &entry.CandidateID, &entry.DocumentID, &entry.TransactionID,
			&entry.ActorID, &action, &prior, &next,
			&entry.CompositeScore, &entry.AmountScore, &entry.DateScore, &entry.TextScore, &entry.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan decision: %w", err)
		}
		entry.Action = model.DecisionAction(action)
		entry.PriorStatus = model.CandidateStatus(prior)
		entry.NewStatus = model.CandidateStatus(next)
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating decisions: %w", err)
	}
	return entries, nil
}
