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

// CreatePattern inserts a new classification pattern.
func (s *SQLiteStorage) CreatePattern(ctx context.Context, pattern *model.ClassificationPattern) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validatePattern(pattern); err != nil {
		return err
	}

	query := `
		INSERT INTO classification_patterns (
			tenant_id, match_text, field, value, confidence,
			priority, provenance, is_active, suggestion_id
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := s.db.ExecContext(ctx, query,
		pattern.TenantID, pattern.MatchText, string(pattern.Field), pattern.Value,
		pattern.Confidence, pattern.Priority, string(pattern.Provenance),
		pattern.IsActive, pattern.SuggestionID,
	)
	if err != nil {
		return fmt.Errorf("failed to create pattern: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get pattern ID: %w", err)
	}

	pattern.ID = id
	pattern.CreatedAt = time.Now()
	pattern.UpdatedAt = time.Now()

	return nil
}

// GetPattern retrieves a classification pattern by id.
func (s *SQLiteStorage) GetPattern(ctx context.Context, id int64) (*model.ClassificationPattern, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	pattern, err := scanPattern(s.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, match_text, field, value, confidence,
			priority, provenance, is_active, suggestion_id, created_at, updated_at
		FROM classification_patterns
		WHERE id = ?
	`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: classification pattern %d", common.ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to get pattern: %w", err)
	}
	return pattern, nil
}

// ListActivePatterns returns the tenant's active rules ordered by priority
// (lower first), which is the evaluation order the classification engine
// consumes.
func (s *SQLiteStorage) ListActivePatterns(ctx context.Context, tenantID string) ([]model.ClassificationPattern, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if tenantID == "" {
		return nil, common.ErrTenantRequired
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant_id, match_text, field, value, confidence,
			priority, provenance, is_active, suggestion_id, created_at, updated_at
		FROM classification_patterns
		WHERE tenant_id = ? AND is_active = 1
		ORDER BY priority ASC, id ASC
	`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list active patterns: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var patterns []model.ClassificationPattern
	for rows.Next() {
		pattern, scanErr := scanPattern(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("failed to scan pattern: %w", scanErr)
		}
		patterns = append(patterns, *pattern)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating patterns: %w", err)
	}
	return patterns, nil
}

// SetPatternActive flips the active flag. Patterns are never hard-deleted;
// deactivation keeps the rule history auditable and reversible.
func (s *SQLiteStorage) SetPatternActive(ctx context.Context, id int64, active bool) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE classification_patterns
		SET is_active = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, active, id)
	if err != nil {
		return fmt.Errorf("failed to set pattern active flag: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: classification pattern %d", common.ErrNotFound, id)
	}
	return nil
}

func scanPattern(row rowScanner) (*model.ClassificationPattern, error) {
	var pattern model.ClassificationPattern
	var field, provenance string
	var suggestionID sql.NullInt64
	err := row.Scan(
		&pattern.ID, &pattern.TenantID, &pattern.MatchText, &field, &pattern.Value,
		&pattern.Confidence, &pattern.Priority, &provenance, &pattern.IsActive,
		&suggestionID, &pattern.CreatedAt, &pattern.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	pattern.Field = model.CorrectionField(field)
	pattern.Provenance = model.Provenance(provenance)
	if suggestionID.Valid {
		pattern.SuggestionID = &suggestionID.Int64
	}
	return &pattern, nil
}
