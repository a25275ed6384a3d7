package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/clipforge/renderd/internal/domain"
	"github.com/clipforge/renderd/internal/infrastructure/logger"
	"github.com/clipforge/renderd/internal/port"
)

// EventPublisher is the sink progress events are pushed into, decoupling
// the orchestrator from the transport (SSE, polling, tests).
type EventPublisher interface {
	Publish(jobID string, event domain.ProgressEvent)
}

type OrchestratorConfig struct {
	Workers           int
	JobTimeout        time.Duration
	ProgressHeartbeat time.Duration
}

// Orchestrator owns the job lifecycle: it creates PENDING records, hands
// them to a bounded worker pool over a FIFO queue, and is the single
// update path for VideoJob mutation.
type Orchestrator struct {
	store port.JobStore
	queue port.JobQueue
	bus   EventPublisher
	gen   *Generator
	cfg   OrchestratorConfig

	mu        sync.Mutex
	cancels   map[string]context.CancelFunc
	requested map[string]bool
}

func NewOrchestrator(store port.JobStore, queue port.JobQueue, bus EventPublisher, gen *Generator, cfg OrchestratorConfig) *Orchestrator {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = 30 * time.Minute
	}
	return &Orchestrator{
		store:     store,
		queue:     queue,
		bus:       bus,
		gen:       gen,
		cfg:       cfg,
		cancels:   make(map[string]context.CancelFunc),
		requested: make(map[string]bool),
	}
}

type SubmitRequest struct {
	UserID     string
	ScriptText string
	Profile    string
	Voice      domain.VoiceSelection
	Media      []domain.MediaSelection
}

// Submit persists a PENDING job and enqueues it. It is synchronous and
// cheap: no rendering work happens before a worker claims the job.
func (o *Orchestrator) Submit(ctx context.Context, req SubmitRequest) (string, error) {
	if strings.TrimSpace(req.ScriptText) == "" {
		return "", domain.ErrEmptyScript
	}

	job := domain.NewVideoJob(req.UserID, req.Profile, req.ScriptText, req.Voice, req.Media)
	if err := o.store.Save(ctx, job); err != nil {
		return "", fmt.Errorf("save job: %w", err)
	}

	if err := o.queue.Enqueue(job.ID); err != nil {
		// The record stays PENDING and is re-enqueued on the next start.
		logger.Warn.Printf("job %s saved but not enqueued: %v", job.ID, err)
		return "", err
	}

	logger.Info.Printf("job %s submitted (profile=%s, user=%s)",
		job.ID, logger.SanitizeForLog(req.Profile), logger.SanitizeForLog(req.UserID))
	return job.ID, nil
}

// Cancel requests cooperative cancellation. A PENDING job fails in place;
// a PROCESSING job has its context cancelled and the owning worker honors
// it at the next scene boundary.
func (o *Orchestrator) Cancel(ctx context.Context, jobID string) error {
	job, err := o.store.Get(ctx, jobID)
	if err != nil {
		return err
	}

	switch job.Status {
	case domain.JobStatusCompleted, domain.JobStatusFailed:
		return nil
	case domain.JobStatusPending:
		job.MarkFailed(domain.ErrKindCancelled, "cancelled before processing started")
		err := o.store.Update(ctx, job)
		if errors.Is(err, domain.ErrConflict) {
			// A worker claimed it between our read and write; fall through
			// to the running-job path.
			o.cancelRunning(jobID)
			return nil
		}
		if err != nil {
			return err
		}
		o.publish(job, "job cancelled")
		return nil
	default:
		o.cancelRunning(jobID)
		return nil
	}
}

// Retry re-enters a FAILED job at PENDING with a fresh attempt counter.
func (o *Orchestrator) Retry(ctx context.Context, jobID string) error {
	job, err := o.store.Get(ctx, jobID)
	if err != nil {
		return err
	}
	if err := job.ResetForRetry(); err != nil {
		return err
	}
	if err := o.store.Update(ctx, job); err != nil {
		return err
	}
	if err := o.queue.Enqueue(job.ID); err != nil {
		return err
	}
	logger.Info.Printf("job %s requeued for retry (attempt %d)", job.ID, job.Attempts)
	return nil
}

// Status returns the current job snapshot.
func (o *Orchestrator) Status(ctx context.Context, jobID string) (*domain.VideoJob, error) {
	return o.store.Get(ctx, jobID)
}

// Attempts returns the retained attempt history for diagnostics.
func (o *Orchestrator) Attempts(ctx context.Context, jobID string) ([]domain.JobAttempt, error) {
	return o.store.ListAttempts(ctx, jobID)
}

// Start recovers interrupted work from the store and launches the worker
// pool. Workers exit when ctx is cancelled, letting in-flight jobs finish
// their current checkpoint.
func (o *Orchestrator) Start(ctx context.Context) {
	stalled, err := o.store.ResetStalled(ctx)
	if err != nil {
		logger.Error.Printf("failed to reset stalled jobs: %v", err)
	} else if len(stalled) > 0 {
		logger.Info.Printf("reset %d stalled jobs to pending", len(stalled))
	}

	pending, err := o.store.ListByStatus(ctx, domain.JobStatusPending)
	if err != nil {
		logger.Error.Printf("failed to list pending jobs: %v", err)
	}
	for _, job := range pending {
		if err := o.queue.Enqueue(job.ID); err != nil {
			logger.Warn.Printf("job %s not re-enqueued: %v", job.ID, err)
		}
	}

	for i := 0; i < o.cfg.Workers; i++ {
		go o.runWorker(ctx, i)
	}
	logger.Info.Printf("started %d workers", o.cfg.Workers)
}

func (o *Orchestrator) runWorker(ctx context.Context, id int) {
	for {
		jobID, err := o.queue.Dequeue(ctx)
		if err != nil {
			logger.Info.Printf("worker %d shutting down", id)
			return
		}
		o.process(ctx, id, jobID)
	}
}

// process claims a job and drives it to a terminal state. The versioned
// PENDING -> PROCESSING flip guarantees at-most-one active worker per job
// even when submit/retry races put an id on the queue twice.
func (o *Orchestrator) process(ctx context.Context, workerID int, jobID string) {
	job, err := o.store.ClaimPending(ctx, jobID)
	if err != nil {
		logger.Error.Printf("worker %d: claim job %s: %v", workerID, jobID, err)
		return
	}
	if job == nil {
		// No longer pending: cancelled before start or claimed elsewhere.
		return
	}
	logger.Info.Printf("worker %d: processing job %s (attempt %d)", workerID, job.ID, job.Attempts)

	jobCtx, cancel := context.WithTimeout(ctx, o.cfg.JobTimeout)
	defer cancel()
	o.registerCancel(job.ID, cancel)
	defer o.unregisterCancel(job.ID)

	startedAt := time.Now()

	// progressMu serializes every touch of the claimed job: reports arrive
	// concurrently from the per-scene fan-out, and the heartbeat goroutine
	// reads the same record while publishing.
	var progressMu sync.Mutex
	report := func(stage domain.Stage, frac float64, message string) {
		progressMu.Lock()
		defer progressMu.Unlock()
		pct := stage.Percent(frac)
		// 100 is reserved for the COMPLETED transition.
		if pct > 99 {
			pct = 99
		}
		job.AdvanceProgress(stage, pct)
		job.ETAFromElapsed(time.Since(startedAt))
		o.persistProgress(job)
		o.publish(job, message)
	}

	stopHeartbeat := o.startHeartbeat(func() {
		progressMu.Lock()
		defer progressMu.Unlock()
		o.publish(job, "still working")
	})
	defer stopHeartbeat()

	result, err := o.gen.Generate(jobCtx, job, report)
	stopHeartbeat()

	// The job context may already be dead; terminal persistence must not
	// depend on it.
	finishCtx := context.Background()

	if err != nil {
		kind := domain.Classify(err)
		progressMu.Lock()
		job.MarkFailed(kind, err.Error())
		if uerr := o.store.Update(finishCtx, job); uerr != nil {
			logger.Error.Printf("worker %d: persist failure of job %s: %v", workerID, job.ID, uerr)
		}
		o.publish(job, fmt.Sprintf("job failed: %s", kind))
		progressMu.Unlock()
		if aerr := o.store.AppendAttempt(finishCtx, domain.JobAttempt{
			JobID:        job.ID,
			Attempt:      job.Attempts,
			ErrorKind:    kind,
			ErrorMessage: err.Error(),
			RecordedAt:   time.Now().UTC(),
		}); aerr != nil {
			logger.Error.Printf("worker %d: record attempt for job %s: %v", workerID, job.ID, aerr)
		}
		logger.Error.Printf("worker %d: job %s failed (%s): %v", workerID, job.ID, kind, err)
		return
	}

	progressMu.Lock()
	job.MarkCompleted(result.VideoPath, result.ThumbnailPath, result.FallbackCount)
	job.OutputDuration = result.Duration
	job.OutputWidth = result.Width
	job.OutputHeight = result.Height
	job.OutputSize = result.FileSize
	if uerr := o.store.Update(finishCtx, job); uerr != nil {
		logger.Error.Printf("worker %d: persist completion of job %s: %v", workerID, job.ID, uerr)
	}
	o.publish(job, "job completed")
	progressMu.Unlock()
	logger.Info.Printf("worker %d: job %s completed (%d scenes, %d fallbacks, %.1fs)",
		workerID, job.ID, result.SceneCount, result.FallbackCount, result.Duration)
}

// persistProgress writes an intermediate progress update. Conflicts are
// reconciled against the authoritative record instead of retried blindly.
func (o *Orchestrator) persistProgress(job *domain.VideoJob) {
	err := o.store.Update(context.Background(), job)
	if err == nil {
		return
	}
	if errors.Is(err, domain.ErrConflict) {
		current, gerr := o.store.Get(context.Background(), job.ID)
		if gerr != nil {
			logger.Error.Printf("job %s: reconcile after conflict: %v", job.ID, gerr)
			return
		}
		if current.Terminal() {
			// Someone else finished the record; keep their state.
			return
		}
		job.Version = current.Version
		if uerr := o.store.Update(context.Background(), job); uerr != nil {
			logger.Error.Printf("job %s: progress update after reconcile: %v", job.ID, uerr)
		}
		return
	}
	logger.Error.Printf("job %s: progress update: %v", job.ID, err)
}

func (o *Orchestrator) publish(job *domain.VideoJob, message string) {
	if o.bus == nil {
		return
	}
	o.bus.Publish(job.ID, domain.ProgressEvent{
		JobID:      job.ID,
		Stage:      job.Stage,
		Percentage: job.Progress,
		Message:    message,
		Timestamp:  time.Now().UTC(),
		ETASeconds: job.ETASeconds,
	})
}

// startHeartbeat invokes beat at a fixed interval so subscribers hear
// from long stages at minimum every N seconds. The caller provides the
// locking around the job snapshot.
func (o *Orchestrator) startHeartbeat(beat func()) (stop func()) {
	if o.cfg.ProgressHeartbeat <= 0 {
		return func() {}
	}

	done := make(chan struct{})
	var once sync.Once
	go func() {
		ticker := time.NewTicker(o.cfg.ProgressHeartbeat)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				beat()
			}
		}
	}()
	return func() { once.Do(func() { close(done) }) }
}

func (o *Orchestrator) registerCancel(jobID string, cancel context.CancelFunc) {
	o.mu.Lock()
	requested := o.requested[jobID]
	delete(o.requested, jobID)
	o.cancels[jobID] = cancel
	o.mu.Unlock()

	// Cancel arrived between claim and registration.
	if requested {
		cancel()
	}
}

func (o *Orchestrator) unregisterCancel(jobID string) {
	o.mu.Lock()
	delete(o.cancels, jobID)
	o.mu.Unlock()
}

func (o *Orchestrator) cancelRunning(jobID string) {
	o.mu.Lock()
	cancel, ok := o.cancels[jobID]
	if !ok {
		o.requested[jobID] = true
	}
	o.mu.Unlock()

	if ok {
		cancel()
	}
}
