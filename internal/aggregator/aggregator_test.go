package aggregator

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tallyhq/tally/internal/config"
	"github.com/tallyhq/tally/internal/model"
	"github.com/tallyhq/tally/internal/normalize"
	"github.com/tallyhq/tally/internal/notify"
	"github.com/tallyhq/tally/internal/service"
	"github.com/tallyhq/tally/internal/storage"
)

func newTestAggregator(t *testing.T) (*Aggregator, service.Storage, *notify.ChannelSink) {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	store, err := storage.NewSQLiteStorage(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, store.Migrate(context.Background()))

	sink := notify.NewChannelSink(32)
	emitter := notify.NewEmitter()
	emitter.Subscribe(sink)

	return New(store, config.NewPolicies(config.Default(), nil), emitter), store, sink
}

// correction builds and persists an event for the given raw description.
func correction(t *testing.T, store service.Storage, tenantID, description string, at time.Time) model.CorrectionEvent {
	t.Helper()

	normalized := normalize.Normalize(description)
	event := model.CorrectionEvent{
		ID:             uuid.NewString(),
		TenantID:       tenantID,
		UserID:         "user-1",
		TransactionID:  uuid.NewString(),
		Field:          model.FieldCategory,
		OldValue:       "Uncategorized",
		NewValue:       "Software",
		RawDescription: description,
		NormalizedText: normalized,
		Signature:      normalize.Signature(normalized, string(model.FieldCategory), "Software"),
		CreatedAt:      at,
	}
	require.NoError(t, store.RecordCorrection(context.Background(), &event))
	return event
}

func TestExactSignatureFamilyCrossesThreshold(t *testing.T) {
	agg, store, _ := newTestAggregator(t)
	ctx := context.Background()
	now := time.Now().UTC()

	// Invoice numbers differ but normalize away, so signatures are equal.
	var last model.CorrectionEvent
	for i := 1; i <= 3; i++ {
		last = correction(t, store, "tenant-a", fmt.Sprintf("Payment to Acme Corp #%d", 1000+i), now.Add(time.Duration(i)*time.Minute))
		suggestion, err := agg.Process(ctx, last)
		require.NoError(t, err)
		if i < 3 {
			assert.Nil(t, suggestion)
		} else {
			require.NotNil(t, suggestion)
			assert.Equal(t, 3, suggestion.OccurrenceCount)
			assert.Equal(t, model.SuggestionPending, suggestion.Status)
			assert.Equal(t, "%payment acme corp%", suggestion.PatternText)
		}
	}
}

func TestFuzzyMatchesCountTowardThreshold(t *testing.T) {
	agg, store, _ := newTestAggregator(t)
	ctx := context.Background()
	now := time.Now().UTC()

	// Two exact repeats plus one reworded description: the reworded event has
	// a different signature but clears the trigram threshold, and the union
	// of both match kinds crosses the occurrence threshold.
	correction(t, store, "tenant-a", "Payment Acme Corp", now)
	correction(t, store, "tenant-a", "Payment Acme Corp", now.Add(time.Minute))
	reworded := correction(t, store, "tenant-a", "Payment Acme Corporation", now.Add(2*time.Minute))

	suggestion, err := agg.Process(ctx, reworded)
	require.NoError(t, err)
	require.NotNil(t, suggestion)
	assert.Equal(t, 3, suggestion.OccurrenceCount)
}

func TestReplayDoesNotInflateOccurrences(t *testing.T) {
	agg, store, sink := newTestAggregator(t)
	ctx := context.Background()
	now := time.Now().UTC()

	var events []model.CorrectionEvent
	for i := 0; i < 3; i++ {
		events = append(events, correction(t, store, "tenant-a", "Payment to Acme Corp", now.Add(time.Duration(i)*time.Minute)))
	}
	for _, event := range events {
		_, err := agg.Process(ctx, event)
		require.NoError(t, err)
	}

	// Replay every event twice more.
	for i := 0; i < 2; i++ {
		for _, event := range events {
			suggestion, err := agg.Process(ctx, event)
			require.NoError(t, err)
			require.NotNil(t, suggestion)
			assert.Equal(t, 3, suggestion.OccurrenceCount)
		}
	}

	var created int
	for len(sink.C) > 0 {
		if event := <-sink.C; event.Type == notify.PatternSuggestionCreated {
			created++
		}
	}
	assert.Equal(t, 1, created, "replays must not re-announce the suggestion")
}

func TestEventsOutsideWindowAreIgnored(t *testing.T) {
	agg, store, _ := newTestAggregator(t)
	ctx := context.Background()
	now := time.Now().UTC()

	correction(t, store, "tenant-a", "Payment to Acme Corp", now.Add(-120*24*time.Hour))
	correction(t, store, "tenant-a", "Payment to Acme Corp", now.Add(-time.Hour))
	latest := correction(t, store, "tenant-a", "Payment to Acme Corp", now)

	suggestion, err := agg.Process(ctx, latest)
	require.NoError(t, err)
	assert.Nil(t, suggestion, "the 120-day-old event falls outside the 90-day window")
}

func TestTenantsDoNotShareEvidence(t *testing.T) {
	agg, store, _ := newTestAggregator(t)
	ctx := context.Background()
	now := time.Now().UTC()

	correction(t, store, "tenant-a", "Payment to Acme Corp", now)
	correction(t, store, "tenant-a", "Payment to Acme Corp", now.Add(time.Minute))
	other := correction(t, store, "tenant-b", "Payment to Acme Corp", now.Add(2*time.Minute))

	suggestion, err := agg.Process(ctx, other)
	require.NoError(t, err)
	assert.Nil(t, suggestion, "tenant-b has only one event of its own")
}

func TestResolvedSuggestionIsNotReopened(t *testing.T) {
	agg, store, _ := newTestAggregator(t)
	ctx := context.Background()
	now := time.Now().UTC()

	var events []model.CorrectionEvent
	for i := 0; i < 3; i++ {
		events = append(events, correction(t, store, "tenant-a", "Payment to Acme Corp", now.Add(time.Duration(i)*time.Minute)))
	}
	var suggestion *model.PatternSuggestion
	for _, event := range events {
		var err error
		suggestion, err = agg.Process(ctx, event)
		require.NoError(t, err)
	}
	require.NotNil(t, suggestion)

	applied, err := store.ResolveSuggestion(ctx, suggestion.ID, model.SuggestionRejected, nil, suggestion.Confidence)
	require.NoError(t, err)
	require.True(t, applied)

	// A fourth similar correction must not flip the rejection back to pending.
	fourth := correction(t, store, "tenant-a", "Payment to Acme Corp", now.Add(10*time.Minute))
	after, err := agg.Process(ctx, fourth)
	require.NoError(t, err)
	require.NotNil(t, after)
	assert.Equal(t, model.SuggestionRejected, after.Status)
	assert.Equal(t, 3, after.OccurrenceCount)
}

func TestConfidenceRamp(t *testing.T) {
	policy := config.Default()

	assert.InDelta(t, 0.70, Confidence(3, policy), 1e-9)
	assert.InDelta(t, 0.75, Confidence(4, policy), 1e-9)
	assert.InDelta(t, 0.90, Confidence(7, policy), 1e-9)
	assert.InDelta(t, 0.95, Confidence(9, policy), 1e-9)
	assert.InDelta(t, 0.95, Confidence(50, policy), 1e-9, "ramp caps below 1.0")
}

func TestProcessRequiresTenant(t *testing.T) {
	agg, _, _ := newTestAggregator(t)

	_, err := agg.Process(context.Background(), model.CorrectionEvent{ID: "x"})
	assert.Error(t, err)
}
