package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tallyhq/tally/internal/common"
	"github.com/tallyhq/tally/internal/model"
)

func newTestStorage(t *testing.T) *SQLiteStorage {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	store, err := NewSQLiteStorage(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, store.Migrate(context.Background()))
	return store
}

func testEvent(id, tenantID, signature string, at time.Time) *model.CorrectionEvent {
	return &model.CorrectionEvent{
		ID:             id,
		TenantID:       tenantID,
		UserID:         "user-1",
		TransactionID:  "txn-" + id,
		Field:          model.FieldCategory,
		OldValue:       "Uncategorized",
		NewValue:       "Software",
		RawDescription: "Payment to Acme Corp",
		NormalizedText: "payment to acme corp",
		Signature:      signature,
		CreatedAt:      at,
	}
}

func testSuggestion(tenantID, signature string) *model.PatternSuggestion {
	return &model.PatternSuggestion{
		TenantID:    tenantID,
		Signature:   signature,
		PatternText: "%payment acme corp%",
		Field:       model.FieldCategory,
		NewValue:    "Software",
		Confidence:  0.70,
		Status:      model.SuggestionPending,
	}
}

func TestMigrateIsIdempotent(t *testing.T) {
	store := newTestStorage(t)
	require.NoError(t, store.Migrate(context.Background()))
	require.NoError(t, store.Migrate(context.Background()))
}

func TestRecordCorrectionRejectsDuplicateID(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()
	now := time.Now().UTC()

	event := testEvent("evt-1", "tenant-a", "sig-1", now)
	require.NoError(t, store.RecordCorrection(ctx, event))

	err := store.RecordCorrection(ctx, testEvent("evt-1", "tenant-a", "sig-1", now))
	assert.ErrorIs(t, err, common.ErrDuplicateEntry)
}

func TestListCorrectionsFiltersAndOrders(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, store.RecordCorrection(ctx, testEvent("evt-2", "tenant-a", "sig-1", now)))
	require.NoError(t, store.RecordCorrection(ctx, testEvent("evt-1", "tenant-a", "sig-1", now.Add(-time.Hour))))

	other := testEvent("evt-3", "tenant-a", "sig-2", now)
	other.NewValue = "Hardware"
	require.NoError(t, store.RecordCorrection(ctx, other))

	foreign := testEvent("evt-4", "tenant-b", "sig-1", now)
	require.NoError(t, store.RecordCorrection(ctx, foreign))

	old := testEvent("evt-5", "tenant-a", "sig-1", now.Add(-48*time.Hour))
	require.NoError(t, store.RecordCorrection(ctx, old))

	events, err := store.ListCorrections(ctx, "tenant-a", model.FieldCategory, "Software", now.Add(-24*time.Hour))
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "evt-1", events[0].ID, "oldest first")
	assert.Equal(t, "evt-2", events[1].ID)

	_, err = store.ListCorrections(ctx, "", model.FieldCategory, "Software", now)
	assert.ErrorIs(t, err, common.ErrTenantRequired)
}

func TestUpsertSuggestionLoadsExistingRow(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	first := testSuggestion("tenant-a", "sig-1")
	require.NoError(t, store.UpsertSuggestion(ctx, first))
	require.NotZero(t, first.ID)

	// Second upsert with the same key must land on the same row.
	second := testSuggestion("tenant-a", "sig-1")
	second.PatternText = "%something else%"
	require.NoError(t, store.UpsertSuggestion(ctx, second))
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "%payment acme corp%", second.PatternText, "existing row wins")

	// Same signature under another tenant is a distinct suggestion.
	foreign := testSuggestion("tenant-b", "sig-1")
	require.NoError(t, store.UpsertSuggestion(ctx, foreign))
	assert.NotEqual(t, first.ID, foreign.ID)
}

func TestAttachSupportingEventsIsIdempotent(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()
	now := time.Now().UTC()

	for i := 1; i <= 3; i++ {
		require.NoError(t, store.RecordCorrection(ctx, testEvent(fmt.Sprintf("evt-%d", i), "tenant-a", "sig-1", now)))
	}
	s := testSuggestion("tenant-a", "sig-1")
	require.NoError(t, store.UpsertSuggestion(ctx, s))

	added, err := store.AttachSupportingEvents(ctx, s.ID, []string{"evt-1", "evt-2"})
	require.NoError(t, err)
	assert.Equal(t, 2, added)

	added, err = store.AttachSupportingEvents(ctx, s.ID, []string{"evt-1", "evt-2", "evt-3"})
	require.NoError(t, err)
	assert.Equal(t, 1, added, "already-linked events are ignored")

	count, err := store.SyncSuggestionOccurrences(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	loaded, err := store.GetSuggestion(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, loaded.OccurrenceCount)
	assert.Len(t, loaded.SupportingIDs, 3)
}

func TestResolveSuggestionIsIdempotent(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	s := testSuggestion("tenant-a", "sig-1")
	require.NoError(t, store.UpsertSuggestion(ctx, s))

	verdict := &model.ValidationVerdict{Approve: true, Risk: model.RiskLow, Rationale: "ok"}
	applied, err := store.ResolveSuggestion(ctx, s.ID, model.SuggestionValidated, verdict, 0.75)
	require.NoError(t, err)
	assert.True(t, applied)

	applied, err = store.ResolveSuggestion(ctx, s.ID, model.SuggestionRejected, nil, 0.10)
	require.NoError(t, err)
	assert.False(t, applied, "an already-resolved suggestion keeps its first verdict")

	loaded, err := store.GetSuggestion(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SuggestionValidated, loaded.Status)
	require.NotNil(t, loaded.Verdict)
	assert.Equal(t, model.RiskLow, loaded.Verdict.Risk)
	assert.InDelta(t, 0.75, loaded.Confidence, 1e-9)

	_, err = store.ResolveSuggestion(ctx, 9999, model.SuggestionValidated, nil, 0.5)
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestListStaleSuggestions(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	s := testSuggestion("tenant-a", "sig-1")
	require.NoError(t, store.UpsertSuggestion(ctx, s))

	stale, err := store.ListStaleSuggestions(ctx, "tenant-a", time.Now().UTC().Add(-time.Hour))
	require.NoError(t, err)
	assert.Empty(t, stale, "freshly touched suggestions are not stale")

	stale, err = store.ListStaleSuggestions(ctx, "tenant-a", time.Now().UTC().Add(time.Hour))
	require.NoError(t, err)
	assert.Len(t, stale, 1)
}

func TestListActivePatternsOrdersByPriority(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	learned := &model.ClassificationPattern{
		TenantID:   "tenant-a",
		MatchText:  "%acme%",
		Field:      model.FieldCategory,
		Value:      "Software",
		Provenance: model.ProvenanceLLMValidated,
		Priority:   model.PriorityLearned,
		Confidence: 0.75,
		IsActive:   true,
	}
	require.NoError(t, store.CreatePattern(ctx, learned))

	manual := &model.ClassificationPattern{
		TenantID:   "tenant-a",
		MatchText:  "%payroll%",
		Field:      model.FieldCategory,
		Value:      "Salary",
		Provenance: model.ProvenanceManual,
		Priority:   model.PriorityManual,
		Confidence: 1.0,
		IsActive:   true,
	}
	require.NoError(t, store.CreatePattern(ctx, manual))

	active, err := store.ListActivePatterns(ctx, "tenant-a")
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Equal(t, manual.ID, active[0].ID, "manual rules evaluate first")

	require.NoError(t, store.SetPatternActive(ctx, learned.ID, false))
	active, err = store.ListActivePatterns(ctx, "tenant-a")
	require.NoError(t, err)
	require.Len(t, active, 1)

	kept, err := store.GetPattern(ctx, learned.ID)
	require.NoError(t, err)
	assert.False(t, kept.IsActive, "deactivation keeps the row")
}

func seedMatchData(t *testing.T, store *SQLiteStorage) {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, store.SaveDocument(ctx, &model.Document{
		ID: "doc-1", TenantID: "tenant-a", Type: model.DocumentInvoice,
		Counterparty: "Acme Corp", Amount: 100, Date: now,
	}))
	require.NoError(t, store.SaveTransactions(ctx, []model.Transaction{
		{ID: "txn-1", TenantID: "tenant-a", Currency: "USD", Amount: 100, Date: now},
		{ID: "txn-2", TenantID: "tenant-a", Currency: "USD", Amount: 99, Date: now},
	}))
}

func testCandidate(id, documentID, transactionID string, score float64) model.MatchCandidate {
	return model.MatchCandidate{
		ID:             id,
		TenantID:       "tenant-a",
		DocumentID:     documentID,
		TransactionID:  transactionID,
		Status:         model.CandidatePending,
		Band:           model.BandMedium,
		Explanation:    "amount exact, same day",
		CompositeScore: score,
		AmountScore:    score,
		DateScore:      score,
		TextScore:      score,
	}
}

func testDecision(candidateID string, action model.DecisionAction, from, to model.CandidateStatus) *model.MatchDecisionLogEntry {
	return &model.MatchDecisionLogEntry{
		ID:            "dec-" + candidateID + "-" + string(action),
		TenantID:      "tenant-a",
		CandidateID:   candidateID,
		DocumentID:    "doc-1",
		TransactionID: "txn-1",
		ActorID:       "reviewer-1",
		Action:        action,
		PriorStatus:   from,
		NewStatus:     to,
		CreatedAt:     time.Now().UTC(),
	}
}

func TestReplaceCandidatesPreservesReviewedRows(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()
	seedMatchData(t, store)

	first := []model.MatchCandidate{
		testCandidate("cand-1", "doc-1", "txn-1", 0.9),
		testCandidate("cand-2", "doc-1", "txn-2", 0.6),
	}
	require.NoError(t, store.ReplaceCandidates(ctx, "tenant-a", "doc-1", first))

	require.NoError(t, store.TransitionCandidate(ctx, "cand-1",
		model.CandidatePending, model.CandidateConfirmed,
		testDecision("cand-1", model.ActionConfirm, model.CandidatePending, model.CandidateConfirmed)))

	// Regenerate with new scores and without txn-2.
	second := []model.MatchCandidate{testCandidate("cand-1", "doc-1", "txn-1", 0.95)}
	require.NoError(t, store.ReplaceCandidates(ctx, "tenant-a", "doc-1", second))

	remaining, err := store.ListCandidates(ctx, "doc-1")
	require.NoError(t, err)
	require.Len(t, remaining, 1, "the stale pending row is pruned")
	assert.Equal(t, model.CandidateConfirmed, remaining[0].Status, "review status survives regeneration")
	assert.InDelta(t, 0.95, remaining[0].CompositeScore, 1e-9, "scores refresh in place")
}

func TestTransitionCandidateRejectsWrongPriorStatus(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()
	seedMatchData(t, store)

	require.NoError(t, store.ReplaceCandidates(ctx, "tenant-a", "doc-1",
		[]model.MatchCandidate{testCandidate("cand-1", "doc-1", "txn-1", 0.9)}))

	err := store.TransitionCandidate(ctx, "cand-1",
		model.CandidateConfirmed, model.CandidatePending,
		testDecision("cand-1", model.ActionUnmatch, model.CandidateConfirmed, model.CandidatePending))
	assert.ErrorIs(t, err, common.ErrInvalidTransition)
}

func TestListUnmatchedDocumentsExcludesConfirmed(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()
	seedMatchData(t, store)

	docs, err := store.ListUnmatchedDocuments(ctx, "tenant-a")
	require.NoError(t, err)
	require.Len(t, docs, 1)

	require.NoError(t, store.ReplaceCandidates(ctx, "tenant-a", "doc-1",
		[]model.MatchCandidate{testCandidate("cand-1", "doc-1", "txn-1", 0.9)}))
	require.NoError(t, store.TransitionCandidate(ctx, "cand-1",
		model.CandidatePending, model.CandidateConfirmed,
		testDecision("cand-1", model.ActionConfirm, model.CandidatePending, model.CandidateConfirmed)))

	docs, err = store.ListUnmatchedDocuments(ctx, "tenant-a")
	require.NoError(t, err)
	assert.Empty(t, docs)

	_, err = store.ListUnmatchedDocuments(ctx, "")
	assert.ErrorIs(t, err, common.ErrTenantRequired)
}

func TestSaveTransactionsPreservesRawFieldsOnUpdate(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()
	now := time.Now().UTC()

	original := model.Transaction{
		ID: "txn-1", TenantID: "tenant-a", Currency: "USD",
		Description: "ACME CORP", Amount: 100, Date: now,
	}
	require.NoError(t, store.SaveTransactions(ctx, []model.Transaction{original}))

	update := original
	update.Description = "OVERWRITTEN"
	update.Category = "Software"
	require.NoError(t, store.SaveTransactions(ctx, []model.Transaction{update}))

	loaded, err := store.GetTransaction(ctx, "txn-1")
	require.NoError(t, err)
	assert.Equal(t, "ACME CORP", loaded.Description, "raw fields are immutable on re-import")
	assert.Equal(t, "Software", loaded.Category, "classification fields do update")
}
