package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/tallyhq/tally/internal/common"
	"github.com/tallyhq/tally/internal/model"
	"github.com/tallyhq/tally/internal/service"
)

// SaveTransactions upserts collaborator-fed transaction records. The engine
// never creates transactions of its own; this is the feed from the
// transaction source.
func (s *SQLiteStorage) SaveTransactions(ctx context.Context, txns []model.Transaction) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if len(txns) == 0 {
		return fmt.Errorf("%w: transactions", ErrNilParameter)
	}
	for i := range txns {
		if txns[i].ID == "" || txns[i].TenantID == "" {
			return fmt.Errorf("transaction at index %d: missing ID or tenant ID", i)
		}
	}

	return s.execInTx(ctx, func(tx *sql.Tx) error {
		for i := range txns {
			t := &txns[i]
			_, err := tx.ExecContext(ctx, `
				INSERT INTO transactions (
					id, tenant_id, date, amount, currency,
					description, origin, destination,
					entity, category, subcategory, justification
				) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
				ON CONFLICT(id) DO UPDATE SET
					entity = excluded.entity,
					category = excluded.category,
					subcategory = excluded.subcategory,
					justification = excluded.justification
			`, t.ID, t.TenantID, t.Date, t.Amount, t.Currency,
				t.Description, t.Origin, t.Destination,
				t.Entity, t.Category, t.Subcategory, t.Justification)
			if err != nil {
				return fmt.Errorf("failed to save transaction %s: %w", t.ID, err)
			}
		}
		return nil
	})
}

// GetTransaction retrieves a transaction by id.
func (s *SQLiteStorage) GetTransaction(ctx context.Context, id string) (*model.Transaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}

	var t model.Transaction
	err := s.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, date, amount, currency,
			description, origin, destination,
			entity, category, subcategory, justification
		FROM transactions
		WHERE id = ?
	`, id).Scan(
		&t.ID, &t.TenantID, &t.Date, &t.Amount, &t.Currency,
		&t.Description, &t.Origin, &t.Destination,
		&t.Entity, &t.Category, &t.Subcategory, &t.Justification,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: transaction %s", common.ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}
	return &t, nil
}

// ListTransactionsInWindow returns the tenant's transactions inside the date
// and amount corridor, ordered by id for deterministic candidate generation
// regardless of scan order.
func (s *SQLiteStorage) ListTransactionsInWindow(ctx context.Context, window service.TransactionWindow) ([]model.Transaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if window.TenantID == "" {
		return nil, common.ErrTenantRequired
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant_id, date, amount, currency,
			description, origin, destination,
			entity, category, subcategory, justification
		FROM transactions
		WHERE tenant_id = ? AND date >= ? AND date <= ? AND amount >= ? AND amount <= ?
		ORDER BY id ASC
	`, window.TenantID, window.From, window.To, window.MinAmount, window.MaxAmount)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var txns []model.Transaction
	for rows.Next() {
		var t model.Transaction
		err := rows.Scan(
			&t.ID, &t.TenantID, &t.Date, &t.Amount, &t.Currency,
			&t.Description, &t.Origin, &t.Destination,
			&t.Entity, &t.Category, &t.Subcategory, &t.Justification,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		txns = append(txns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transactions: %w", err)
	}
	return txns, nil
}
