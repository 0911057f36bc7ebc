package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// ExpectedSchemaVersion is the latest schema version that the application
// expects. If the database cannot be migrated to this version, it's a fatal
// error.
const ExpectedSchemaVersion = 4

// Migration represents a database schema migration.
type Migration struct {
	Up          func(*sql.Tx) error
	Description string
	Version     int
}

var migrations = []Migration{
	{
		Version:     1,
		Description: "Reference tables for transactions and documents",
		Up: func(tx *sql.Tx) error {
			queries := []string{
				`CREATE TABLE IF NOT EXISTS transactions (
					id TEXT PRIMARY KEY,
					tenant_id TEXT NOT NULL,
					date DATETIME NOT NULL,
					amount REAL NOT NULL,
					currency TEXT NOT NULL,
					description TEXT NOT NULL DEFAULT '',
					origin TEXT NOT NULL DEFAULT '',
					destination TEXT NOT NULL DEFAULT '',
					entity TEXT NOT NULL DEFAULT '',
					category TEXT NOT NULL DEFAULT '',
					subcategory TEXT NOT NULL DEFAULT '',
					justification TEXT NOT NULL DEFAULT '',
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,
				`CREATE INDEX idx_transactions_tenant_date ON transactions(tenant_id, date)`,
				`CREATE INDEX idx_transactions_tenant_amount ON transactions(tenant_id, amount)`,

				`CREATE TABLE IF NOT EXISTS documents (
					id TEXT PRIMARY KEY,
					tenant_id TEXT NOT NULL,
					doc_type TEXT NOT NULL,
					date DATETIME NOT NULL,
					amount REAL NOT NULL,
					counterparty TEXT NOT NULL DEFAULT '',
					description TEXT NOT NULL DEFAULT '',
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,
				`CREATE INDEX idx_documents_tenant ON documents(tenant_id, date)`,
			}

			for _, query := range queries {
				if _, err := tx.Exec(query); err != nil {
					return fmt.Errorf("failed to execute query: %w", err)
				}
			}
			return nil
		},
	},
	{
		Version:     2,
		Description: "Append-only correction event log",
		Up: func(tx *sql.Tx) error {
			queries := []string{
				`CREATE TABLE IF NOT EXISTS correction_events (
					id TEXT PRIMARY KEY,
					tenant_id TEXT NOT NULL,
					user_id TEXT NOT NULL DEFAULT '',
					transaction_id TEXT NOT NULL,
					field TEXT NOT NULL,
					old_value TEXT NOT NULL DEFAULT '',
					new_value TEXT NOT NULL,
					raw_description TEXT NOT NULL DEFAULT '',
					raw_origin TEXT NOT NULL DEFAULT '',
					raw_destination TEXT NOT NULL DEFAULT '',
					normalized_text TEXT NOT NULL DEFAULT '',
					signature TEXT NOT NULL,
					created_at DATETIME NOT NULL
				)`,
				`CREATE INDEX idx_corrections_lookup ON correction_events(tenant_id, field, new_value, created_at)`,
				`CREATE INDEX idx_corrections_signature ON correction_events(tenant_id, signature)`,
			}

			for _, query := range queries {
				if _, err := tx.Exec(query); err != nil {
					return fmt.Errorf("failed to execute query: %w", err)
				}
			}
			return nil
		},
	},
	{
		Version:     3,
		Description: "Pattern suggestions, supporting-event links and classification patterns",
		Up: func(tx *sql.Tx) error {
			queries := []string{
				`CREATE TABLE IF NOT EXISTS pattern_suggestions (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					tenant_id TEXT NOT NULL,
					signature TEXT NOT NULL,
					pattern_text TEXT NOT NULL,
					field TEXT NOT NULL,
					new_value TEXT NOT NULL,
					occurrence_count INTEGER NOT NULL DEFAULT 0,
					confidence REAL NOT NULL DEFAULT 0,
					status TEXT NOT NULL DEFAULT 'pending',
					verdict TEXT,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					UNIQUE(tenant_id, signature)
				)`,
				`CREATE INDEX idx_suggestions_status ON pattern_suggestions(tenant_id, status, updated_at)`,

				`CREATE TABLE IF NOT EXISTS suggestion_events (
					suggestion_id INTEGER NOT NULL REFERENCES pattern_suggestions(id),
					event_id TEXT NOT NULL REFERENCES correction_events(id),
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					UNIQUE(suggestion_id, event_id)
				)`,

				`CREATE TABLE IF NOT EXISTS classification_patterns (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					tenant_id TEXT NOT NULL,
					match_text TEXT NOT NULL,
					field TEXT NOT NULL,
					value TEXT NOT NULL,
					confidence REAL NOT NULL DEFAULT 0,
					priority INTEGER NOT NULL,
					provenance TEXT NOT NULL,
					is_active BOOLEAN NOT NULL DEFAULT 1,
					suggestion_id INTEGER REFERENCES pattern_suggestions(id),
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,
				`CREATE INDEX idx_patterns_active ON classification_patterns(tenant_id, is_active, priority)`,
			}

			for _, query := range queries {
				if _, err := tx.Exec(query); err != nil {
					return fmt.Errorf("failed to execute query: %w", err)
				}
			}
			return nil
		},
	},
	{
		Version:     4,
		Description: "Match candidates and append-only decision log",
		Up: func(tx *sql.Tx) error {
			queries := []string{
				`CREATE TABLE IF NOT EXISTS match_candidates (
					id TEXT PRIMARY KEY,
					tenant_id TEXT NOT NULL,
					document_id TEXT NOT NULL REFERENCES documents(id),
					transaction_id TEXT NOT NULL REFERENCES transactions(id),
					composite_score REAL NOT NULL DEFAULT 0,
					amount_score REAL NOT NULL DEFAULT 0,
					date_score REAL NOT NULL DEFAULT 0,
					text_score REAL NOT NULL DEFAULT 0,
					band TEXT NOT NULL DEFAULT 'low',
					explanation TEXT NOT NULL DEFAULT '',
					status TEXT NOT NULL DEFAULT 'pending',
					reviewer_id TEXT NOT NULL DEFAULT '',
					reviewed_at DATETIME,
					already_matched BOOLEAN NOT NULL DEFAULT 0,
					is_partial BOOLEAN NOT NULL DEFAULT 0,
					parent_id TEXT REFERENCES match_candidates(id),
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					UNIQUE(document_id, transaction_id)
				)`,
				`CREATE INDEX idx_candidates_document ON match_candidates(document_id, composite_score)`,
				`CREATE INDEX idx_candidates_transaction ON match_candidates(tenant_id, transaction_id, status)`,

				`CREATE TABLE IF NOT EXISTS match_decisions (
					id TEXT PRIMARY KEY,
					tenant_id TEXT NOT NULL,
					candidate_id TEXT NOT NULL,
					document_id TEXT NOT NULL,
					transaction_id TEXT NOT NULL,
					actor_id TEXT NOT NULL DEFAULT '',
					action TEXT NOT NULL,
					prior_status TEXT NOT NULL,
					new_status TEXT NOT NULL,
					composite_score REAL NOT NULL DEFAULT 0,
					amount_score REAL NOT NULL DEFAULT 0,
					date_score REAL NOT NULL DEFAULT 0,
					text_score REAL NOT NULL DEFAULT 0,
					created_at DATETIME NOT NULL
				)`,
				`CREATE INDEX idx_decisions_document ON match_decisions(document_id, created_at)`,
			}

			for _, query := range queries {
				if _, err := tx.Exec(query); err != nil {
					return fmt.Errorf("failed to execute query: %w", err)
				}
			}
			return nil
		},
	},
}

// Migrate applies all pending schema migrations.
func (s *SQLiteStorage) Migrate(ctx context.Context) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	var currentVersion int
	err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&currentVersion)
	if err != nil {
		return fmt.Errorf("failed to get schema version: %w", err)
	}

	for _, migration := range migrations {
		if migration.Version <= currentVersion {
			continue
		}

		tx, txErr := s.db.BeginTx(ctx, nil)
		if txErr != nil {
			return fmt.Errorf("failed to begin transaction: %w", txErr)
		}

		if upErr := migration.Up(tx); upErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d failed: %w", migration.Version, upErr)
		}

		if _, execErr := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", migration.Version)); execErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to update schema version: %w", execErr)
		}

		if commitErr := tx.Commit(); commitErr != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, commitErr)
		}

		slog.Info("Applied migration",
			"version", migration.Version,
			"description", migration.Description)
	}

	var finalVersion int
	err = s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&finalVersion)
	if err != nil {
		return fmt.Errorf("failed to verify final schema version: %w", err)
	}

	if finalVersion != ExpectedSchemaVersion {
		return fmt.Errorf("database schema version mismatch: expected %d, got %d", ExpectedSchemaVersion, finalVersion)
	}

	return nil
}
