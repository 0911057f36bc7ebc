package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/tallyhq/tally/internal/common"
	"github.com/tallyhq/tally/internal/model"
)

// UpsertSuggestion inserts a pattern suggestion keyed by (tenant, signature)
// or, when the row already exists, loads it. Concurrent writers race on the
// insert; the loser falls through to the existing row. The suggestion's ID,
// status and counters reflect the stored row on return.
func (s *SQLiteStorage) UpsertSuggestion(ctx context.Context, suggestion *model.PatternSuggestion) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateSuggestion(suggestion); err != nil {
		return err
	}

	query := `
		INSERT INTO pattern_suggestions (
			tenant_id, signature, pattern_text, field, new_value,
			occurrence_count, confidence, status
		) VALUES (?, ?, ?, ?, ?, 0, ?, ?)
		ON CONFLICT(tenant_id, signature) DO NOTHING
	`

	_, err := s.db.ExecContext(ctx, query,
		suggestion.TenantID, suggestion.Signature, suggestion.PatternText,
		string(suggestion.Field), suggestion.NewValue,
		suggestion.Confidence, string(model.SuggestionPending),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert suggestion: %w", err)
	}

	stored, err := s.GetSuggestionBySignature(ctx, suggestion.TenantID, suggestion.Signature)
	if err != nil {
		return err
	}
	*suggestion = *stored
	return nil
}

// AttachSupportingEvents links correction events to a suggestion, ignoring
// events already linked. Returns the number of newly attached events, which
// is zero when a correction is replayed.
func (s *SQLiteStorage) AttachSupportingEvents(ctx context.Context, suggestionID int64, eventIDs []string) (int, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}

	added := 0
	err := s.execInTx(ctx, func(tx *sql.Tx) error {
		for _, eventID := range eventIDs {
			res, err := tx.ExecContext(ctx, `
				INSERT OR IGNORE INTO suggestion_events (suggestion_id, event_id)
				VALUES (?, ?)
			`, suggestionID, eventID)
			if err != nil {
				return fmt.Errorf("failed to attach event %s: %w", eventID, err)
			}
			n, err := res.RowsAffected()
			if err != nil {
				return fmt.Errorf("failed to get rows affected: %w", err)
			}
			added += int(n)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return added, nil
}

// SyncSuggestionOccurrences recomputes occurrence_count from the linked
// events and returns the new count. Counting from the link table keeps the
// counter monotonic and replay-safe.
func (s *SQLiteStorage) SyncSuggestionOccurrences(ctx context.Context, suggestionID int64) (int, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}

	_, err := s.db.ExecContext(ctx, `
		UPDATE pattern_suggestions
		SET occurrence_count = (SELECT COUNT(*) FROM suggestion_events WHERE suggestion_id = ?),
			updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, suggestionID, suggestionID)
	if err != nil {
		return 0, fmt.Errorf("failed to sync suggestion occurrences: %w", err)
	}

	var count int
	err = s.db.QueryRowContext(ctx,
		`SELECT occurrence_count FROM pattern_suggestions WHERE id = ?`, suggestionID).Scan(&count)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, fmt.Errorf("%w: suggestion %d", common.ErrNotFound, suggestionID)
		}
		return 0, fmt.Errorf("failed to read suggestion occurrences: %w", err)
	}
	return count, nil
}

// SetSuggestionConfidence updates the confidence score of a suggestion.
func (s *SQLiteStorage) SetSuggestionConfidence(ctx context.Context, suggestionID int64, confidence float64) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if confidence < 0 || confidence > 1 {
		return fmt.Errorf("%w: confidence must be between 0 and 1", ErrInvalidSuggestion)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE pattern_suggestions
		SET confidence = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, confidence, suggestionID)
	if err != nil {
		return fmt.Errorf("failed to set suggestion confidence: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: suggestion %d", common.ErrNotFound, suggestionID)
	}
	return nil
}

// GetSuggestion retrieves a suggestion by id, including supporting event ids.
func (s *SQLiteStorage) GetSuggestion(ctx context.Context, id int64) (*model.PatternSuggestion, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return s.getSuggestion(ctx, `WHERE id = ?`, id)
}

// GetSuggestionBySignature retrieves a suggestion by its uniqueness key.
func (s *SQLiteStorage) GetSuggestionBySignature(ctx context.Context, tenantID, signature string) (*model.PatternSuggestion, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if tenantID == "" {
		return nil, common.ErrTenantRequired
	}
	return s.getSuggestion(ctx, `WHERE tenant_id = ? AND signature = ?`, tenantID, signature)
}

func (s *SQLiteStorage) getSuggestion(ctx context.Context, where string, args ...any) (*model.PatternSuggestion, error) {
	query := `
		SELECT id, tenant_id, signature, pattern_text, field, new_value,
			occurrence_count, confidence, status, verdict, created_at, updated_at
		FROM pattern_suggestions ` + where

	suggestion, err := scanSuggestion(s.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: pattern suggestion", common.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get suggestion: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT event_id FROM suggestion_events
		WHERE suggestion_id = ?
		ORDER BY created_at ASC, event_id ASC
	`, suggestion.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load supporting events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var eventID string
		if err := rows.Scan(&eventID); err != nil {
			return nil, fmt.Errorf("failed to scan supporting event: %w", err)
		}
		suggestion.SupportingIDs = append(suggestion.SupportingIDs, eventID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating supporting events: %w", err)
	}

	return suggestion, nil
}

// ListPendingSuggestions returns the tenant's pending suggestions, most
// recently updated first. This feeds the manual approval UI.
func (s *SQLiteStorage) ListPendingSuggestions(ctx context.Context, tenantID string) ([]model.PatternSuggestion, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if tenantID == "" {
		return nil, common.ErrTenantRequired
	}
	return s.listSuggestions(ctx, `
		WHERE tenant_id = ? AND status = 'pending'
		ORDER BY updated_at DESC, id DESC
	`, tenantID)
}

// ListStaleSuggestions returns pending suggestions not updated since
// olderThan, so a stuck validation gate surfaces instead of failing silently.
func (s *SQLiteStorage) ListStaleSuggestions(ctx context.Context, tenantID string, olderThan time.Time) ([]model.PatternSuggestion, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if tenantID == "" {
		return nil, common.ErrTenantRequired
	}
	return s.listSuggestions(ctx, `
		WHERE tenant_id = ? AND status = 'pending' AND updated_at < ?
		ORDER BY updated_at ASC, id ASC
	`, tenantID, olderThan)
}

func (s *SQLiteStorage) listSuggestions(ctx context.Context, where string, args ...any) ([]model.PatternSuggestion, error) {
	query := `
		SELECT id, tenant_id, signature, pattern_text, field, new_value,
			occurrence_count, confidence, status, verdict, created_at, updated_at
		FROM pattern_suggestions ` + where

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list suggestions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var suggestions []model.PatternSuggestion
	for rows.Next() {
		suggestion, scanErr := scanSuggestion(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("failed to scan suggestion: %w", scanErr)
		}
		suggestions = append(suggestions, *suggestion)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating suggestions: %w", err)
	}
	return suggestions, nil
}

// ResolveSuggestion transitions a pending suggestion to validated or
// rejected, storing the verdict and the post-validation confidence. Returns
// false when the suggestion was already resolved, making verdict delivery
// idempotent.
func (s *SQLiteStorage) ResolveSuggestion(ctx context.Context, suggestionID int64, status model.SuggestionStatus, verdict *model.ValidationVerdict, confidence float64) (bool, error) {
	if err := validateContext(ctx); err != nil {
		return false, err
	}
	if status != model.SuggestionValidated && status != model.SuggestionRejected {
		return false, fmt.Errorf("%w: cannot resolve to %q", ErrInvalidSuggestion, status)
	}

	var verdictJSON any
	if verdict != nil {
		data, err := json.Marshal(verdict)
		if err != nil {
			return false, fmt.Errorf("failed to marshal verdict: %w", err)
		}
		verdictJSON = string(data)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE pattern_suggestions
		SET status = ?, verdict = ?, confidence = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND status = 'pending'
	`, string(status), verdictJSON, confidence, suggestionID)
	if err != nil {
		return false, fmt.Errorf("failed to resolve suggestion: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n > 0 {
		return true, nil
	}

	// Distinguish "already resolved" from "does not exist".
	if _, err := s.GetSuggestion(ctx, suggestionID); err != nil {
		return false, err
	}
	return false, nil
}

func scanSuggestion(row rowScanner) (*model.PatternSuggestion, error) {
	var suggestion model.PatternSuggestion
	var field, status string
	var verdictJSON sql.NullString
	err := row.Scan(
		&suggestion.ID, &suggestion.TenantID, &suggestion.Signature,
		&suggestion.PatternText, &field, &suggestion.NewValue,
		&suggestion.OccurrenceCount, &suggestion.Confidence, &status,
		&verdictJSON, &suggestion.CreatedAt, &suggestion.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	suggestion.Field = model.CorrectionField(field)
	suggestion.Status = model.SuggestionStatus(status)
	if verdictJSON.Valid && verdictJSON.String != "" {
		var verdict model.ValidationVerdict
		if err := json.Unmarshal([]byte(verdictJSON.String), &verdict); err != nil {
			return nil, fmt.Errorf("failed to unmarshal verdict: %w", err)
		}
		suggestion.Verdict = &verdict
	}
	return &suggestion, nil
}
