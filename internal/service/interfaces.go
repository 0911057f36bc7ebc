// Package service defines the interfaces and shared option types for the
// engine's services.
package service

import (
	"context"
	"time"

	"github.com/tallyhq/tally/internal/model"
)

// TransactionWindow scopes a candidate-pool query. Every query is tenant
// scoped; a window with an empty tenant id is rejected by the storage layer.
type TransactionWindow struct {
	From      time.Time
	To        time.Time
	TenantID  string
	MinAmount float64
	MaxAmount float64
}

// Storage defines the contract for the persistence layer.
type Storage interface {
	// Correction events (append-only).
	RecordCorrection(ctx context.Context, event *model.CorrectionEvent) error
	GetCorrection(ctx context.Context, id string) (*model.CorrectionEvent, error)
	ListCorrections(ctx context.Context, tenantID string, field model.CorrectionField, newValue string, since time.Time) ([]model.CorrectionEvent, error)

	// Pattern suggestions. UpsertSuggestion inserts or leaves an existing
	// (tenant, signature) row untouched; supporting events attach through
	// their own uniqueness constraint so replays cannot double-count.
	UpsertSuggestion(ctx context.Context, suggestion *model.PatternSuggestion) error
	AttachSupportingEvents(ctx context.Context, suggestionID int64, eventIDs []string) (int, error)
	SyncSuggestionOccurrences(ctx context.Context, suggestionID int64) (int, error)
	SetSuggestionConfidence(ctx context.Context, suggestionID int64, confidence float64) error
	GetSuggestion(ctx context.Context, id int64) (*model.PatternSuggestion, error)
	GetSuggestionBySignature(ctx context.Context, tenantID, signature string) (*model.PatternSuggestion, error)
	ListPendingSuggestions(ctx context.Context, tenantID string) ([]model.PatternSuggestion, error)
	ListStaleSuggestions(ctx context.Context, tenantID string, olderThan time.Time) ([]model.PatternSuggestion, error)
	ResolveSuggestion(ctx context.Context, suggestionID int64, status model.SuggestionStatus, verdict *model.ValidationVerdict, confidence float64) (bool, error)

	// Classification patterns (soft deactivation only).
	CreatePattern(ctx context.Context, pattern *model.ClassificationPattern) error
	GetPattern(ctx context.Context, id int64) (*model.ClassificationPattern, error)
	ListActivePatterns(ctx context.Context, tenantID string) ([]model.ClassificationPattern, error)
	SetPatternActive(ctx context.Context, id int64, active bool) error

	// Match candidates and review. ReplaceCandidates is atomic per document.
	ReplaceCandidates(ctx context.Context, tenantID, documentID string, candidates []model.MatchCandidate) error
	ListCandidates(ctx context.Context, documentID string) ([]model.MatchCandidate, error)
	GetCandidate(ctx context.Context, id string) (*model.MatchCandidate, error)
	GetConfirmedCandidateForTransaction(ctx context.Context, tenantID, transactionID string) (*model.MatchCandidate, error)
	TransitionCandidate(ctx context.Context, candidateID string, from, to model.CandidateStatus, entry *model.MatchDecisionLogEntry) error
	InsertPartialMatch(ctx context.Context, candidate *model.MatchCandidate, entry *model.MatchDecisionLogEntry) error
	ListDecisions(ctx context.Context, documentID string) ([]model.MatchDecisionLogEntry, error)

	// Collaborator-fed reference data.
	SaveTransactions(ctx context.Context, txns []model.Transaction) error
	GetTransaction(ctx context.Context, id string) (*model.Transaction, error)
	ListTransactionsInWindow(ctx context.Context, window TransactionWindow) ([]model.Transaction, error)
	SaveDocument(ctx context.Context, doc *model.Document) error
	GetDocument(ctx context.Context, id string) (*model.Document, error)
	ListUnmatchedDocuments(ctx context.Context, tenantID string) ([]model.Document, error)

	// Database management.
	Migrate(ctx context.Context) error
	Close() error
}

// RetryOptions configures retry behavior for operations.
type RetryOptions struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}
