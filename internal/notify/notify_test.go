package notify

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type flakySink struct {
	failures int
	calls    int
	events   []Event
}

func (s *flakySink) Deliver(_ context.Context, event Event) error {
	s.calls++
	if s.calls <= s.failures {
		return errors.New("sink down")
	}
	s.events = append(s.events, event)
	return nil
}

func TestEmitFansOutToAllSinks(t *testing.T) {
	emitter := NewEmitter()
	a := NewChannelSink(1)
	b := NewChannelSink(1)
	emitter.Subscribe(a)
	emitter.Subscribe(b)

	event := Event{Type: PatternActivated, TenantID: "tenant-a", EntityID: "1"}
	emitter.Emit(context.Background(), event)

	assert.Equal(t, event, <-a.C)
	assert.Equal(t, event, <-b.C)
}

func TestEmitRetriesFailedDeliveryOnce(t *testing.T) {
	emitter := NewEmitter()
	sink := &flakySink{failures: 1}
	emitter.Subscribe(sink)

	emitter.Emit(context.Background(), Event{Type: MatchConfirmed, TenantID: "tenant-a"})

	assert.Equal(t, 2, sink.calls)
	require.Len(t, sink.events, 1)
}

func TestEmitContinuesPastFailingSink(t *testing.T) {
	emitter := NewEmitter()
	dead := &flakySink{failures: 10}
	healthy := NewChannelSink(1)
	emitter.Subscribe(dead)
	emitter.Subscribe(healthy)

	event := Event{Type: MatchRejected, TenantID: "tenant-a"}
	emitter.Emit(context.Background(), event)

	assert.Equal(t, event, <-healthy.C, "a dead sink must not block the others")
}

func TestChannelSinkHonorsContextCancellation(t *testing.T) {
	sink := NewChannelSink(0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := sink.Deliver(ctx, Event{Type: PatternRejected})
	assert.ErrorIs(t, err, context.Canceled)
}
