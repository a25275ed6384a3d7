package service

import (
	"sync"

	"github.com/clipforge/renderd/internal/domain"
)

// EventBus fans progress events out to per-job subscribers. Delivery is
// at-least-once with drop-on-slow semantics; consumers re-fetch the job
// snapshot and apply latest-state-wins.
type EventBus struct {
	subscribers map[string][]chan domain.ProgressEvent
	mu          sync.RWMutex
}

func NewEventBus() *EventBus {
	return &EventBus{
		subscribers: make(map[string][]chan domain.ProgressEvent),
	}
}

func (eb *EventBus) Subscribe(jobID string) chan domain.ProgressEvent {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	ch := make(chan domain.ProgressEvent, 16)
	eb.subscribers[jobID] = append(eb.subscribers[jobID], ch)
	return ch
}

func (eb *EventBus) Unsubscribe(jobID string, ch chan domain.ProgressEvent) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	subs := eb.subscribers[jobID]
	for i, sub := range subs {
		if sub == ch {
			eb.subscribers[jobID] = append(subs[:i], subs[i+1:]...)
			close(ch)
			break
		}
	}

	if len(eb.subscribers[jobID]) == 0 {
		delete(eb.subscribers, jobID)
	}
}

func (eb *EventBus) Publish(jobID string, event domain.ProgressEvent) {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	for _, ch := range eb.subscribers[jobID] {
		select {
		case ch <- event:
		default:
			// Drop event if subscriber is slow
		}
	}
}
