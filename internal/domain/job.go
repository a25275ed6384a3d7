package domain

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// VoiceSelection identifies the narration voice for a job.
type VoiceSelection struct {
	VoiceID  string `json:"voice_id"`
	Language string `json:"language"`
}

// MediaSelection binds a user-chosen media reference to a scene index.
// Scenes without a selection receive a deterministic placeholder visual.
type MediaSelection struct {
	SceneIndex int    `json:"scene_index"`
	Ref        string `json:"ref"`
}

// VideoJob is the persisted record of one rendering request. A job is
// mutated only by the worker that claimed it; all writes go through the
// store's versioned update so concurrent cancel/retry races are detected.
type VideoJob struct {
	ID         string
	UserID     string
	Profile    string
	ScriptText string
	Voice      VoiceSelection
	Media      []MediaSelection

	Status        JobStatus
	Progress      int
	Stage         Stage
	ErrorKind     ErrorKind
	ErrorMessage  string
	FallbackCount int
	Attempts      int64

	OutputPath     string
	ThumbnailPath  string
	OutputDuration float64
	OutputWidth    int
	OutputHeight   int
	OutputSize     int64

	Version     int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
	CompletedAt sql.NullTime

	// ETASeconds is a derived estimate for progress events; it is not
	// persisted.
	ETASeconds int
}

func NewVideoJob(userID, profile, scriptText string, voice VoiceSelection, media []MediaSelection) *VideoJob {
	now := time.Now().UTC()
	return &VideoJob{
		ID:         uuid.NewString(),
		UserID:     userID,
		Profile:    profile,
		ScriptText: scriptText,
		Voice:      voice,
		Media:      media,
		Status:     JobStatusPending,
		Attempts:   1,
		Version:    1,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func (j *VideoJob) Terminal() bool {
	return j.Status == JobStatusCompleted || j.Status == JobStatusFailed
}

// AdvanceProgress moves the job to the given stage and percentage, never
// backwards. Returns the effective (clamped) percentage.
func (j *VideoJob) AdvanceProgress(stage Stage, pct int) int {
	if pct < j.Progress {
		pct = j.Progress
	}
	if pct > 100 {
		pct = 100
	}
	j.Stage = stage
	j.Progress = pct
	j.UpdatedAt = time.Now().UTC()
	return pct
}

// ETAFromElapsed derives the estimated seconds remaining from elapsed
// wall time and current progress. Too-early estimates are suppressed.
func (j *VideoJob) ETAFromElapsed(elapsed time.Duration) {
	if j.Progress < 5 || j.Progress >= 100 {
		j.ETASeconds = 0
		return
	}
	j.ETASeconds = int(elapsed.Seconds() * float64(100-j.Progress) / float64(j.Progress))
}

func (j *VideoJob) MarkCompleted(videoPath, thumbPath string, fallbackCount int) {
	now := time.Now().UTC()
	j.Status = JobStatusCompleted
	j.Stage = StageFinalization
	j.Progress = 100
	j.ErrorKind = ErrKindNone
	j.ErrorMessage = ""
	j.FallbackCount = fallbackCount
	j.OutputPath = videoPath
	j.ThumbnailPath = thumbPath
	j.UpdatedAt = now
	j.CompletedAt = sql.NullTime{Time: now, Valid: true}
}

func (j *VideoJob) MarkFailed(kind ErrorKind, message string) {
	now := time.Now().UTC()
	j.Status = JobStatusFailed
	j.ErrorKind = kind
	j.ErrorMessage = message
	j.UpdatedAt = now
	j.CompletedAt = sql.NullTime{Time: now, Valid: true}
}

// ResetForRetry re-enters the job at PENDING with a fresh attempt. Only
// valid from FAILED; terminal COMPLETED is absorbing.
func (j *VideoJob) ResetForRetry() error {
	if j.Status != JobStatusFailed {
		return ErrNotRetryable
	}
	j.Status = JobStatusPending
	j.Progress = 0
	j.Stage = ""
	j.ErrorKind = ErrKindNone
	j.ErrorMessage = ""
	j.FallbackCount = 0
	j.Attempts++
	j.CompletedAt = sql.NullTime{}
	j.UpdatedAt = time.Now().UTC()
	return nil
}

// JobAttempt records one terminal outcome of a job execution, retained for
// diagnostics across retries.
type JobAttempt struct {
	ID           int64
	JobID        string
	Attempt      int64
	ErrorKind    ErrorKind
	ErrorMessage string
	RecordedAt   time.Time
}
