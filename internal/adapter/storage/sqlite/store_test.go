package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clipforge/renderd/internal/domain"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func newStoredJob(t *testing.T, store *Store) *domain.VideoJob {
	t.Helper()
	job := domain.NewVideoJob("user-1", "vertical", "Some script text.",
		domain.VoiceSelection{VoiceID: "narrator", Language: "en"},
		[]domain.MediaSelection{{SceneIndex: 0, Ref: "http://media.example/clip.mp4"}},
	)
	require.NoError(t, store.Save(context.Background(), job))
	return job
}

func TestStore_SaveGetRoundtrip(t *testing.T) {
	store := newTestStore(t)
	job := newStoredJob(t, store)

	got, err := store.Get(context.Background(), job.ID)
	require.NoError(t, err)

	assert.Equal(t, job.ID, got.ID)
	assert.Equal(t, "user-1", got.UserID)
	assert.Equal(t, "vertical", got.Profile)
	assert.Equal(t, "Some script text.", got.ScriptText)
	assert.Equal(t, domain.VoiceSelection{VoiceID: "narrator", Language: "en"}, got.Voice)
	assert.Equal(t, job.Media, got.Media)
	assert.Equal(t, domain.JobStatusPending, got.Status)
	assert.Zero(t, got.Progress)
	assert.Equal(t, int64(1), got.Attempts)
	assert.Equal(t, int64(1), got.Version)
	assert.False(t, got.CompletedAt.Valid)
	assert.WithinDuration(t, job.CreatedAt, got.CreatedAt, time.Second)
}

func TestStore_GetNotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestStore_UpdateBumpsVersion(t *testing.T) {
	store := newTestStore(t)
	job := newStoredJob(t, store)

	job.Progress = 42
	job.Stage = domain.StageAudioGeneration
	require.NoError(t, store.Update(context.Background(), job))
	assert.Equal(t, int64(2), job.Version, "caller copy tracks the stored version")

	got, err := store.Get(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, 42, got.Progress)
	assert.Equal(t, domain.StageAudioGeneration, got.Stage)
	assert.Equal(t, int64(2), got.Version)
}

func TestStore_UpdateConflict(t *testing.T) {
	store := newTestStore(t)
	job := newStoredJob(t, store)

	stale, err := store.Get(context.Background(), job.ID)
	require.NoError(t, err)

	job.Progress = 10
	require.NoError(t, store.Update(context.Background(), job))

	stale.Progress = 20
	assert.ErrorIs(t, store.Update(context.Background(), stale), domain.ErrConflict)

	got, err := store.Get(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, got.Progress, "stale write must not land")
}

func TestStore_UpdateNotFound(t *testing.T) {
	store := newTestStore(t)
	job := domain.NewVideoJob("user-1", "vertical", "text", domain.VoiceSelection{}, nil)

	assert.ErrorIs(t, store.Update(context.Background(), job), domain.ErrNotFound)
}

func TestStore_ClaimPendingOnce(t *testing.T) {
	store := newTestStore(t)
	job := newStoredJob(t, store)

	claimed, err := store.ClaimPending(context.Background(), job.ID)
	require.NoError(t, err)
	require.NotNil(t, claimed)
	assert.Equal(t, domain.JobStatusProcessing, claimed.Status)
	assert.Equal(t, domain.StageSceneParsing, claimed.Stage)
	assert.Equal(t, int64(2), claimed.Version)

	// A second claim loses the race and gets nil.
	again, err := store.ClaimPending(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Nil(t, again)
}

func TestStore_ClaimPendingMissingJob(t *testing.T) {
	store := newTestStore(t)

	claimed, err := store.ClaimPending(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, claimed)
}

func TestStore_ListByStatus(t *testing.T) {
	store := newTestStore(t)
	first := newStoredJob(t, store)
	second := newStoredJob(t, store)

	_, err := store.ClaimPending(context.Background(), first.ID)
	require.NoError(t, err)

	pending, err := store.ListByStatus(context.Background(), domain.JobStatusPending)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, second.ID, pending[0].ID)

	processing, err := store.ListByStatus(context.Background(), domain.JobStatusProcessing)
	require.NoError(t, err)
	require.Len(t, processing, 1)
	assert.Equal(t, first.ID, processing[0].ID)
}

func TestStore_ResetStalled(t *testing.T) {
	store := newTestStore(t)
	stalled := newStoredJob(t, store)
	untouched := newStoredJob(t, store)

	claimed, err := store.ClaimPending(context.Background(), stalled.ID)
	require.NoError(t, err)
	claimed.Progress = 35
	require.NoError(t, store.Update(context.Background(), claimed))

	ids, err := store.ResetStalled(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{stalled.ID}, ids)

	got, err := store.Get(context.Background(), stalled.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusPending, got.Status)
	assert.Zero(t, got.Progress)
	assert.Empty(t, string(got.Stage))

	other, err := store.Get(context.Background(), untouched.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusPending, other.Status)

	// Nothing stalled on a second pass.
	ids, err = store.ResetStalled(context.Background())
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestStore_Attempts(t *testing.T) {
	store := newTestStore(t)
	job := newStoredJob(t, store)

	now := time.Now().UTC()
	require.NoError(t, store.AppendAttempt(context.Background(), domain.JobAttempt{
		JobID: job.ID, Attempt: 1, ErrorKind: domain.ErrKindProviderTimeout,
		ErrorMessage: "voice provider timed out", RecordedAt: now,
	}))
	require.NoError(t, store.AppendAttempt(context.Background(), domain.JobAttempt{
		JobID: job.ID, Attempt: 2, ErrorKind: domain.ErrKindEncoding,
		ErrorMessage: "encoder exited with status 1", RecordedAt: now.Add(time.Minute),
	}))

	attempts, err := store.ListAttempts(context.Background(), job.ID)
	require.NoError(t, err)
	require.Len(t, attempts, 2)
	assert.Equal(t, int64(1), attempts[0].Attempt)
	assert.Equal(t, domain.ErrKindProviderTimeout, attempts[0].ErrorKind)
	assert.Equal(t, int64(2), attempts[1].Attempt)
	assert.Equal(t, domain.ErrKindEncoding, attempts[1].ErrorKind)

	none, err := store.ListAttempts(context.Background(), "missing")
	require.NoError(t, err)
	assert.Empty(t, none)
}
