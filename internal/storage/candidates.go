package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/tallyhq/tally/internal/common"
	"github.com/tallyhq/tally/internal/model"
)

// ReplaceCandidates persists a freshly generated candidate set for one
// document as a single atomic unit. Existing rows are updated in place
// (keyed by document + transaction) so review status survives regeneration;
// pending rows that fell out of the new set are removed. A failed
// replacement leaves the previous set intact.
func (s *SQLiteStorage) ReplaceCandidates(ctx context.Context, tenantID, documentID string, candidates []model.MatchCandidate) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if tenantID == "" {
		return common.ErrTenantRequired
	}
	if err := validateString(documentID, "documentID"); err != nil {
		return err
	}
	for i := range candidates {
		if err := validateCandidate(&candidates[i]); err != nil {
			return fmt.Errorf("candidate at index %d: %w", i, err)
		}
		if candidates[i].TenantID != tenantID || candidates[i].DocumentID != documentID {
			return fmt.Errorf("%w: candidate does not belong to document %s", ErrInvalidCandidate, documentID)
		}
	}

	return s.execInTx(ctx, func(tx *sql.Tx) error {
		keep := make([]any, 0, len(candidates)+1)
		keep = append(keep, documentID)

		for i := range candidates {
			c := &candidates[i]
			_, err := tx.ExecContext(ctx, `
				INSERT INTO match_candidates (
					id, tenant_id, document_id, transaction_id,
					composite_score, amount_score, date_score, text_score,
					band, explanation, status, already_matched
				) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 'pending', ?)
				ON CONFLICT(document_id, transaction_id) DO UPDATE SET
					composite_score = excluded.composite_score,
					amount_score = excluded.amount_score,
					date_score = excluded.date_score,
					text_score = excluded.text_score,
					band = excluded.band,
					explanation = excluded.explanation,
					already_matched = excluded.already_matched,
					updated_at = CURRENT_TIMESTAMP
			`, c.ID, c.TenantID, c.DocumentID, c.TransactionID,
				c.CompositeScore, c.AmountScore, c.DateScore, c.TextScore,
				string(c.Band), c.Explanation, c.AlreadyMatched)
			if err != nil {
				return fmt.Errorf("failed to upsert candidate: %w", err)
			}
			keep = append(keep, c.TransactionID)
		}

		// Drop pending rows that no longer appear; reviewed rows stay.
		query := `DELETE FROM match_candidates
			WHERE document_id = ? AND status = 'pending' AND is_partial = 0`
		if len(candidates) > 0 {
			query += ` AND transaction_id NOT IN (?` + repeatPlaceholder(len(candidates)-1) + `)`
		}
		if _, err := tx.ExecContext(ctx, query, keep...); err != nil {
			return fmt.Errorf("failed to prune stale candidates: %w", err)
		}
		return nil
	})
}

func repeatPlaceholder(n int) string {
	out := ""
	for i := 0; i < n; i++ {
		out += ", ?"
	}
	return out
}

// ListCandidates returns a document's candidates ranked by composite score.
// Candidates flagged already-matched sort after unflagged ones at equal
// score so the reviewer sees free transactions first.
func (s *SQLiteStorage) ListCandidates(ctx context.Context, documentID string) ([]model.MatchCandidate, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(documentID, "documentID"); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+candidateColumns+`
		FROM match_candidates
		WHERE document_id = ?
		ORDER BY already_matched ASC, composite_score DESC, transaction_id ASC
	`, documentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list candidates: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var candidates []model.MatchCandidate
	for rows.Next() {
		candidate, scanErr := scanCandidate(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("failed to scan candidate: %w", scanErr)
		}
		candidates = append(candidates, *candidate)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating candidates: %w", err)
	}
	return candidates, nil
}

// GetCandidate retrieves a match candidate by id.
func (s *SQLiteStorage) GetCandidate(ctx context.Context, id string) (*model.MatchCandidate, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}

	candidate, err := scanCandidate(s.db.QueryRowContext(ctx, `
		SELECT `+candidateColumns+`
		FROM match_candidates
		WHERE id = ?
	`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: match candidate %s", common.ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to get candidate: %w", err)
	}
	return candidate, nil
}

// GetConfirmedCandidateForTransaction returns the full (non-partial)
// confirmed candidate claiming a transaction, or ErrNotFound.
func (s *SQLiteStorage) GetConfirmedCandidateForTransaction(ctx context.Context, tenantID, transactionID string) (*model.MatchCandidate, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if tenantID == "" {
		return nil, common.ErrTenantRequired
	}
	if err := validateString(transactionID, "transactionID"); err != nil {
		return nil, err
	}

	candidate, err := scanCandidate(s.db.QueryRowContext(ctx, `
		SELECT `+candidateColumns+`
		FROM match_candidates
		WHERE tenant_id = ? AND transaction_id = ? AND status = 'confirmed' AND is_partial = 0
	`, tenantID, transactionID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: no confirmed match for transaction %s", common.ErrNotFound, transactionID)
		}
		return nil, fmt.Errorf("failed to get confirmed candidate: %w", err)
	}
	return candidate, nil
}

// TransitionCandidate atomically moves a candidate between review states and
// appends the decision log entry. Confirming checks transaction and document
// exclusivity inside the same transaction; a losing racer gets
// common.ErrConflict, never a silent overwrite.
func (s *SQLiteStorage) TransitionCandidate(ctx context.Context, candidateID string, from, to model.CandidateStatus, entry *model.MatchDecisionLogEntry) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(candidateID, "candidateID"); err != nil {
		return err
	}
	if entry == nil {
		return fmt.Errorf("%w: decision log entry", ErrNilParameter)
	}

	return s.execInTx(ctx, func(tx *sql.Tx) error {
		candidate, err := scanCandidate(tx.QueryRowContext(ctx, `
			SELECT `+candidateColumns+`
			FROM match_candidates
			WHERE id = ?
		`, candidateID))
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("%w: match candidate %s", common.ErrNotFound, candidateID)
			}
			return fmt.Errorf("failed to load candidate: %w", err)
		}

		if candidate.Status != from {
			return fmt.Errorf("%w: candidate %s is %s, not %s",
				common.ErrInvalidTransition, candidateID, candidate.Status, from)
		}

		if to == model.CandidateConfirmed && !candidate.IsPartial {
			var conflicts int
			err := tx.QueryRowContext(ctx, `
				SELECT COUNT(*) FROM match_candidates
				WHERE tenant_id = ? AND status = 'confirmed' AND is_partial = 0
					AND (transaction_id = ? OR document_id = ?)
					AND id != ?
			`, candidate.TenantID, candidate.TransactionID, candidate.DocumentID, candidateID).Scan(&conflicts)
			if err != nil {
				return fmt.Errorf("failed to check confirmation conflicts: %w", err)
			}
			if conflicts > 0 {
				return fmt.Errorf("%w: transaction %s or document %s already has a confirmed match",
					common.ErrConflict, candidate.TransactionID, candidate.DocumentID)
			}
		}

		var reviewedAt any
		reviewer := entry.ActorID
		if to == model.CandidatePending {
			// Unmatch clears the review stamp.
			reviewer = ""
		} else {
			reviewedAt = time.Now().UTC()
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE match_candidates
			SET status = ?, reviewer_id = ?, reviewed_at = ?, updated_at = CURRENT_TIMESTAMP
			WHERE id = ?
		`, string(to), reviewer, reviewedAt, candidateID); err != nil {
			return fmt.Errorf("failed to update candidate status: %w", err)
		}

		return insertDecisionTx(ctx, tx, entry)
	})
}

// InsertPartialMatch records a split-payment link: an additional confirmed
// partial row tied to its parent, plus the audit entry. The exclusivity
// check deliberately skips partial rows.
func (s *SQLiteStorage) InsertPartialMatch(ctx context.Context, candidate *model.MatchCandidate, entry *model.MatchDecisionLogEntry) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateCandidate(candidate); err != nil {
		return err
	}
	if !candidate.IsPartial || candidate.ParentID == nil {
		return fmt.Errorf("%w: partial match requires is_partial and a parent", ErrInvalidCandidate)
	}
	if entry == nil {
		return fmt.Errorf("%w: decision log entry", ErrNilParameter)
	}

	return s.execInTx(ctx, func(tx *sql.Tx) error {
		var parentStatus string
		err := tx.QueryRowContext(ctx,
			`SELECT status FROM match_candidates WHERE id = ?`, *candidate.ParentID).Scan(&parentStatus)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("%w: parent candidate %s", common.ErrNotFound, *candidate.ParentID)
			}
			return fmt.Errorf("failed to load parent candidate: %w", err)
		}
		if parentStatus != string(model.CandidateConfirmed) {
			return fmt.Errorf("%w: parent candidate %s is not confirmed", common.ErrInvalidTransition, *candidate.ParentID)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO match_candidates (
				id, tenant_id, document_id, transaction_id,
				composite_score, amount_score, date_score, text_score,
				band, explanation, status, reviewer_id, reviewed_at,
				is_partial, parent_id
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 'confirmed', ?, ?, 1, ?)
		`, candidate.ID, candidate.TenantID, candidate.DocumentID, candidate.TransactionID,
			candidate.CompositeScore, candidate.AmountScore, candidate.DateScore, candidate.TextScore,
			string(candidate.Band), candidate.Explanation, entry.ActorID, time.Now().UTC(),
			*candidate.ParentID)
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("%w: candidate for document %s and transaction %s",
					common.ErrDuplicateEntry, candidate.DocumentID, candidate.TransactionID)
			}
			return fmt.Errorf("failed to insert partial match: %w", err)
		}

		return insertDecisionTx(ctx, tx, entry)
	})
}

const candidateColumns = `id, tenant_id, document_id, transaction_id,
	composite_score, amount_score, date_score, text_score,
	band, explanation, status, reviewer_id, reviewed_at,
	already_matched, is_partial, parent_id, created_at, updated_at`

func scanCandidate(row rowScanner) (*model.MatchCandidate, error) {
	var candidate model.MatchCandidate
	var band, status string
	var reviewedAt sql.NullTime
	var parentID sql.NullString
	err := row.Scan(
		&candidate.ID, &candidate.TenantID, &candidate.DocumentID, &candidate.TransactionID,
		&candidate.CompositeScore, &candidate.AmountScore, &candidate.DateScore, &candidate.TextScore,
		&band, &candidate.Explanation, &status, &candidate.ReviewerID, &reviewedAt,
		&candidate.AlreadyMatched, &candidate.IsPartial, &parentID,
		&candidate.CreatedAt, &candidate.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	candidate.Band = model.ConfidenceBand(band)
	candidate.Status = model.CandidateStatus(status)
	if reviewedAt.Valid {
		candidate.ReviewedAt = &reviewedAt.Time
	}
	if parentID.Valid {
		candidate.ParentID = &parentID.String
	}
	return &candidate, nil
}
