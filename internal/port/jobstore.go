package port

import (
	"context"

	"github.com/clipforge/renderd/internal/domain"
)

// JobStore persists VideoJob records. Update is optimistic: it matches on
// the job's current version and returns domain.ErrConflict if the record
// was concurrently modified.
type JobStore interface {
	Save(ctx context.Context, job *domain.VideoJob) error
	Get(ctx context.Context, id string) (*domain.VideoJob, error)
	Update(ctx context.Context, job *domain.VideoJob) error

	// ClaimPending atomically flips PENDING -> PROCESSING and returns the
	// claimed job, or nil if the job is no longer pending.
	ClaimPending(ctx context.Context, id string) (*domain.VideoJob, error)

	ListByStatus(ctx context.Context, status domain.JobStatus) ([]*domain.VideoJob, error)

	// ResetStalled returns PROCESSING jobs left over from a previous run
	// to PENDING and reports their ids for re-enqueueing.
	ResetStalled(ctx context.Context) ([]string, error)

	AppendAttempt(ctx context.Context, attempt domain.JobAttempt) error
	ListAttempts(ctx context.Context, jobID string) ([]domain.JobAttempt, error)
}
