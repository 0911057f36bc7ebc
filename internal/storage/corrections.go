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

// RecordCorrection inserts a correction event. Events are append-only; a
// duplicate id is reported as common.ErrDuplicateEntry so the caller can
// treat replays as a no-op.
func (s *SQLiteStorage) RecordCorrection(ctx context.Context, event *model.CorrectionEvent) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateCorrection(event); err != nil {
		return err
	}

	query := `
		INSERT INTO correction_events (
			id, tenant_id, user_id, transaction_id, field,
			old_value, new_value, raw_description, raw_origin, raw_destination,
			normalized_text, signature, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		event.ID, event.TenantID, event.UserID, event.TransactionID, string(event.Field),
		event.OldValue, event.NewValue, event.RawDescription, event.RawOrigin, event.RawDestination,
		event.NormalizedText, event.Signature, event.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: correction event %s", common.ErrDuplicateEntry, event.ID)
		}
		return fmt.Errorf("failed to record correction: %w", err)
	}

	return nil
}

// GetCorrection retrieves a correction event by id.
func (s *SQLiteStorage) GetCorrection(ctx context.Context, id string) (*model.CorrectionEvent, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, user_id, transaction_id, field,
			old_value, new_value, raw_description, raw_origin, raw_destination,
			normalized_text, signature, created_at
		FROM correction_events
		WHERE id = ?
	`, id)

	event, err := scanCorrection(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: correction event %s", common.ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to get correction: %w", err)
	}
	return event, nil
}

// ListCorrections returns the events for one tenant with the given field and
// new value, created at or after since, oldest first. This is the pool the
// aggregator counts exact and fuzzy occurrences over.
func (s *SQLiteStorage) ListCorrections(ctx context.Context, tenantID string, field model.CorrectionField, newValue string, since time.Time) ([]model.CorrectionEvent, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if tenantID == "" {
		return nil, common.ErrTenantRequired
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant_id, user_id, transaction_id, field,
			old_value, new_value, raw_description, raw_origin, raw_destination,
			normalized_text, signature, created_at
		FROM correction_events
		WHERE tenant_id = ? AND field = ? AND new_value = ? AND created_at >= ?
		ORDER BY created_at ASC, id ASC
	`, tenantID, string(field), newValue, since)
	if err != nil {
		return nil, fmt.Errorf("failed to list corrections: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var events []model.CorrectionEvent
	for rows.Next() {
		event, scanErr := scanCorrection(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("failed to scan correction: %w", scanErr)
		}
		events = append(events, *event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating corrections: %w", err)
	}

	return events, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCorrection(row rowScanner) (*model.CorrectionEvent, error) {
	var event model.CorrectionEvent
	var field string
	err := row.Scan(
		&event.ID, &event.TenantID, &event.UserID, &event.TransactionID, &field,
		&event.OldValue, &event.NewValue, &event.RawDescription, &event.RawOrigin, &event.RawDestination,
		&event.NormalizedText, &event.Signature, &event.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	event.Field = model.CorrectionField(field)
	return &event, nil
}
