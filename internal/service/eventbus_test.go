package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clipforge/renderd/internal/domain"
)

func TestEventBus_PublishReachesSubscribers(t *testing.T) {
	bus := NewEventBus()
	ch1 := bus.Subscribe("job-1")
	ch2 := bus.Subscribe("job-1")
	other := bus.Subscribe("job-2")
	defer bus.Unsubscribe("job-2", other)

	event := domain.ProgressEvent{JobID: "job-1", Stage: domain.StageAudioGeneration, Percentage: 30}
	bus.Publish("job-1", event)

	assert.Equal(t, event, <-ch1)
	assert.Equal(t, event, <-ch2)
	assert.Empty(t, other)

	bus.Unsubscribe("job-1", ch1)
	bus.Unsubscribe("job-1", ch2)
}

func TestEventBus_UnsubscribeClosesChannel(t *testing.T) {
	bus := NewEventBus()
	ch := bus.Subscribe("job-1")
	bus.Unsubscribe("job-1", ch)

	_, open := <-ch
	assert.False(t, open)

	// Publishing after the last unsubscribe is a no-op.
	bus.Publish("job-1", domain.ProgressEvent{JobID: "job-1"})
}

func TestEventBus_SlowSubscriberDropsEvents(t *testing.T) {
	bus := NewEventBus()
	ch := bus.Subscribe("job-1")
	defer bus.Unsubscribe("job-1", ch)

	// Fill the buffer and keep publishing; Publish must never block.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 50; i++ {
			bus.Publish("job-1", domain.ProgressEvent{JobID: "job-1", Percentage: i})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}
	assert.Len(t, ch, 16)
}

func TestEventBus_NoSubscribers(t *testing.T) {
	bus := NewEventBus()
	require.NotPanics(t, func() {
		bus.Publish("job-1", domain.ProgressEvent{JobID: "job-1"})
	})
}
