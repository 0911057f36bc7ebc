package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/tallyhq/tally/internal/common"
	"github.com/tallyhq/tally/internal/model"
)

// SaveDocument upserts a collaborator-fed document record.
func (s *SQLiteStorage) SaveDocument(ctx context.Context, doc *model.Document) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateDocument(doc); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO documents (id, tenant_id, doc_type, date, amount, counterparty, description)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			amount = excluded.amount,
			counterparty = excluded.counterparty,
			description = excluded.description
	`, doc.ID, doc.TenantID, string(doc.Type), doc.Date, doc.Amount, doc.Counterparty, doc.Description)
	if err != nil {
		return fmt.Errorf("failed to save document: %w", err)
	}
	return nil
}

// GetDocument retrieves a document by id.
func (s *SQLiteStorage) GetDocument(ctx context.Context, id string) (*model.Document, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}

	var d model.Document
	var docType string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, doc_type, date, amount, counterparty, description
		FROM documents
		WHERE id = ?
	`, id).Scan(&d.ID, &d.TenantID, &docType, &d.Date, &d.Amount, &d.Counterparty, &d.Description)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: document %s", common.ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	d.Type = model.DocumentType(docType)
	return &d, nil
}

// ListUnmatchedDocuments returns the tenant's documents that have no full
// confirmed match yet, oldest first. This is the work queue for the bulk
// reconciliation sweep.
func (s *SQLiteStorage) ListUnmatchedDocuments(ctx context.Context, tenantID string) ([]model.Document, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if tenantID == "" {
		return nil, common.ErrTenantRequired
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT d.id, d.tenant_id, d.doc_type, d.date, d.amount, d.counterparty, d.description
		FROM documents d
		WHERE d.tenant_id = ?
			AND NOT EXISTS (
				SELECT 1 FROM match_candidates c
				WHERE c.document_id = d.id AND c.status = 'confirmed' AND c.is_partial = 0
			)
		ORDER BY d.date ASC, d.id ASC
	`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list unmatched documents: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var docs []model.Document
	for rows.Next() {
		var d model.Document
		var docType string
		if err := rows.Scan(&d.ID, &d.TenantID, &docType, &d.Date, &d.Amount, &d.Counterparty, &d.Description); err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		d.Type = model.DocumentType(docType)
		docs = append(docs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating documents: %w", err)
	}
	return docs, nil
}
