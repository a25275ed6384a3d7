package service

import (
	"context"

	"github.com/clipforge/renderd/internal/domain"
	"github.com/clipforge/renderd/internal/port"
)

// MemoryQueue is a bounded FIFO handoff channel between Submit and the
// worker pool. Durability lives in the job store: pending jobs are
// re-enqueued from there at startup, so losing the channel on shutdown
// is fine.
type MemoryQueue struct {
	ch chan string
}

func NewMemoryQueue(capacity int) *MemoryQueue {
	if capacity < 1 {
		capacity = 1
	}
	return &MemoryQueue{ch: make(chan string, capacity)}
}

func (q *MemoryQueue) Enqueue(jobID string) error {
	select {
	case q.ch <- jobID:
		return nil
	default:
		return domain.ErrQueueFull
	}
}

// Dequeue blocks until a job id is available or ctx is done.
func (q *MemoryQueue) Dequeue(ctx context.Context) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case id := <-q.ch:
		return id, nil
	}
}

var _ port.JobQueue = (*MemoryQueue)(nil)
