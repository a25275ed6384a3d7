package port

import "context"

// JobQueue hands pending job ids to the worker pool in FIFO order.
type JobQueue interface {
	Enqueue(jobID string) error
	Dequeue(ctx context.Context) (string, error)
}
