package pattern

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tallyhq/tally/internal/model"
	"github.com/tallyhq/tally/internal/notify"
	"github.com/tallyhq/tally/internal/service"
	"github.com/tallyhq/tally/internal/storage"
)

func newTestStore(t *testing.T) (*Store, service.Storage, *notify.ChannelSink) {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	store, err := storage.NewSQLiteStorage(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	require.NoError(t, store.Migrate(context.Background()))

	sink := notify.NewChannelSink(16)
	emitter := notify.NewEmitter()
	emitter.Subscribe(sink)

	return NewStore(store, emitter), store, sink
}

func validatedSuggestion(adjustment float64) *model.PatternSuggestion {
	return &model.PatternSuggestion{
		ID:          1,
		TenantID:    "tenant-a",
		Signature:   "abc123",
		PatternText: "%payment acme corp%",
		Field:       model.FieldCategory,
		NewValue:    "Software",
		Confidence:  0.80,
		Status:      model.SuggestionValidated,
		Verdict: &model.ValidationVerdict{
			Approve:              true,
			ConfidenceAdjustment: adjustment,
			Risk:                 model.RiskLow,
			Rationale:            "specific vendor",
		},
	}
}

func TestActivateValidatedSuggestion(t *testing.T) {
	store, db, sink := newTestStore(t)
	ctx := context.Background()

	p, err := store.Activate(ctx, validatedSuggestion(0.05))
	require.NoError(t, err)

	assert.Equal(t, model.ProvenanceLLMValidated, p.Provenance)
	assert.Equal(t, model.PriorityLearned, p.Priority)
	assert.InDelta(t, 0.85, p.Confidence, 1e-9)
	require.NotNil(t, p.SuggestionID)
	assert.Equal(t, int64(1), *p.SuggestionID)

	rules, err := db.ListActivePatterns(ctx, "tenant-a")
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, "%payment acme corp%", rules[0].MatchText)

	select {
	case event := <-sink.C:
		assert.Equal(t, notify.PatternActivated, event.Type)
		assert.Equal(t, "tenant-a", event.TenantID)
	default:
		t.Fatal("expected a PatternActivated event")
	}
}

func TestActivateClampsConfidenceBelowOne(t *testing.T) {
	store, _, _ := newTestStore(t)

	s := validatedSuggestion(0.2)
	s.Confidence = 0.95

	p, err := store.Activate(context.Background(), s)
	require.NoError(t, err)
	assert.InDelta(t, 0.99, p.Confidence, 1e-9)
}

func TestActivateRejectsUnvalidatedSuggestion(t *testing.T) {
	store, _, _ := newTestStore(t)

	s := validatedSuggestion(0)
	s.Status = model.SuggestionPending

	_, err := store.Activate(context.Background(), s)
	assert.Error(t, err)
}

func TestActivateRequiresTenant(t *testing.T) {
	store, _, _ := newTestStore(t)

	s := validatedSuggestion(0)
	s.TenantID = ""

	_, err := store.Activate(context.Background(), s)
	assert.Error(t, err)
}

func TestManualRulesOutrankLearnedOnes(t *testing.T) {
	store, _, _ := newTestStore(t)
	ctx := context.Background()

	_, err := store.Activate(ctx, validatedSuggestion(0))
	require.NoError(t, err)

	_, err = store.AddManual(ctx, "tenant-a", "%acme%", model.FieldEntity, "Acme Corp", 1.0)
	require.NoError(t, err)

	rules, err := store.ActiveRules(ctx, "tenant-a")
	require.NoError(t, err)
	require.Len(t, rules, 2)
	assert.Equal(t, model.ProvenanceManual, rules[0].Provenance)
	assert.Equal(t, model.ProvenanceLLMValidated, rules[1].Provenance)
}

func TestDeactivateHidesRuleButKeepsRow(t *testing.T) {
	store, db, sink := newTestStore(t)
	ctx := context.Background()

	p, err := store.AddManual(ctx, "tenant-a", "%acme%", model.FieldCategory, "Software", 1.0)
	require.NoError(t, err)

	require.NoError(t, store.Deactivate(ctx, "tenant-a", p.ID))

	rules, err := store.ActiveRules(ctx, "tenant-a")
	require.NoError(t, err)
	assert.Empty(t, rules)

	kept, err := db.GetPattern(ctx, p.ID)
	require.NoError(t, err)
	assert.False(t, kept.IsActive)

	var sawDeactivated bool
	for len(sink.C) > 0 {
		if e := <-sink.C; e.Type == notify.PatternDeactivated {
			sawDeactivated = true
		}
	}
	assert.True(t, sawDeactivated)
}

func TestDeactivateRefusesCrossTenant(t *testing.T) {
	store, _, _ := newTestStore(t)
	ctx := context.Background()

	p, err := store.AddManual(ctx, "tenant-a", "%acme%", model.FieldCategory, "Software", 1.0)
	require.NoError(t, err)

	err = store.Deactivate(ctx, "tenant-b", p.ID)
	assert.Error(t, err)
}

func TestTenantIsolationOfActiveRules(t *testing.T) {
	store, _, _ := newTestStore(t)
	ctx := context.Background()

	_, err := store.AddManual(ctx, "tenant-a", "%acme%", model.FieldCategory, "Software", 1.0)
	require.NoError(t, err)

	rules, err := store.ActiveRules(ctx, "tenant-b")
	require.NoError(t, err)
	assert.Empty(t, rules)

	_, err = store.ActiveRules(ctx, "")
	assert.Error(t, err)
}
