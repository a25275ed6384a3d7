package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/pressly/goose/v3"
	"modernc.org/sqlite"

	"github.com/clipforge/renderd/internal/domain"
	"github.com/clipforge/renderd/internal/port"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Store persists VideoJob records with optimistic versioning: every write
// matches on the version it read and bumps it, so a concurrently modified
// record surfaces as domain.ErrConflict instead of a silent overwrite.
type Store struct {
	db *sql.DB
}

var hookOnce sync.Once

func registerHook() {
	hookOnce.Do(func() {
		sqlite.RegisterConnectionHook(func(conn sqlite.ExecQuerierContext, dsn string) error {
			pragmas := []string{
				"PRAGMA journal_mode = WAL",
				"PRAGMA busy_timeout = 5000",
				"PRAGMA synchronous = NORMAL",
				"PRAGMA foreign_keys = ON",
			}
			for _, p := range pragmas {
				if _, err := conn.ExecContext(context.Background(), p, nil); err != nil {
					return fmt.Errorf("execute %s: %w", p, err)
				}
			}
			return nil
		})
	})
}

func NewStore(dataDir string) (*Store, error) {
	registerHook()

	dbPath := filepath.Join(dataDir, "renderd.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Single connection for SQLite (WAL allows concurrent reads but only one writer)
	db.SetMaxOpenConns(1)

	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("sqlite3"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set goose dialect: %w", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

const jobColumns = `id, user_id, profile, script_text, voice_id, voice_language,
	media_selections, status, progress, stage, error_kind, error_message,
	fallback_count, attempts, output_path, thumbnail_path, output_duration,
	output_width, output_height, output_size, version, created_at, updated_at,
	completed_at`

func (s *Store) Save(ctx context.Context, job *domain.VideoJob) error {
	media, err := json.Marshal(job.Media)
	if err != nil {
		return fmt.Errorf("encode media selections: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO jobs (`+jobColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID, job.UserID, job.Profile, job.ScriptText,
		job.Voice.VoiceID, job.Voice.Language, string(media),
		string(job.Status), job.Progress, string(job.Stage),
		string(job.ErrorKind), job.ErrorMessage,
		job.FallbackCount, job.Attempts,
		job.OutputPath, job.ThumbnailPath,
		job.OutputDuration, job.OutputWidth, job.OutputHeight, job.OutputSize,
		job.Version, job.CreatedAt, job.UpdatedAt, job.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, id string) (*domain.VideoJob, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return job, err
}

// Update writes the job back, requiring the version it was read at. The
// caller's copy has its version bumped on success.
func (s *Store) Update(ctx context.Context, job *domain.VideoJob) error {
	media, err := json.Marshal(job.Media)
	if err != nil {
		return fmt.Errorf("encode media selections: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE jobs SET
			status = ?, progress = ?, stage = ?,
			error_kind = ?, error_message = ?,
			fallback_count = ?, attempts = ?,
			output_path = ?, thumbnail_path = ?,
			output_duration = ?, output_width = ?, output_height = ?, output_size = ?,
			media_selections = ?,
			version = version + 1, updated_at = ?, completed_at = ?
		WHERE id = ? AND version = ?`,
		string(job.Status), job.Progress, string(job.Stage),
		string(job.ErrorKind), job.ErrorMessage,
		job.FallbackCount, job.Attempts,
		job.OutputPath, job.ThumbnailPath,
		job.OutputDuration, job.OutputWidth, job.OutputHeight, job.OutputSize,
		string(media),
		job.UpdatedAt, job.CompletedAt,
		job.ID, job.Version,
	)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	if affected == 0 {
		if _, gerr := s.Get(ctx, job.ID); errors.Is(gerr, domain.ErrNotFound) {
			return domain.ErrNotFound
		}
		return domain.ErrConflict
	}
	job.Version++
	return nil
}

// ClaimPending flips PENDING -> PROCESSING in a single statement; zero
// rows affected means another worker won or the job was cancelled, and
// the caller gets nil.
func (s *Store) ClaimPending(ctx context.Context, id string) (*domain.VideoJob, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		UPDATE jobs SET status = ?, stage = ?, version = version + 1, updated_at = ?
		WHERE id = ? AND status = ?`,
		string(domain.JobStatusProcessing), string(domain.StageSceneParsing), now,
		id, string(domain.JobStatusPending),
	)
	if err != nil {
		return nil, fmt.Errorf("claim job: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("claim job: %w", err)
	}
	if affected == 0 {
		return nil, nil
	}
	return s.Get(ctx, id)
}

func (s *Store) ListByStatus(ctx context.Context, status domain.JobStatus) ([]*domain.VideoJob, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE status = ? ORDER BY created_at`, string(status))
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []*domain.VideoJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, job)
	}
	return out, rows.Err()
}

// ResetStalled returns PROCESSING jobs left over from a previous run to
// PENDING so they can be re-enqueued at startup.
func (s *Store) ResetStalled(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM jobs WHERE status = ?`, string(domain.JobStatusProcessing))
	if err != nil {
		return nil, err
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			_ = rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	_ = rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	now := time.Now().UTC()
	_, err = s.db.ExecContext(ctx, `
		UPDATE jobs SET status = ?, progress = 0, stage = '', version = version + 1, updated_at = ?
		WHERE status = ?`,
		string(domain.JobStatusPending), now, string(domain.JobStatusProcessing))
	if err != nil {
		return nil, fmt.Errorf("reset stalled jobs: %w", err)
	}
	return ids, nil
}

func (s *Store) AppendAttempt(ctx context.Context, a domain.JobAttempt) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO job_attempts (job_id, attempt, error_kind, error_message, recorded_at)
		VALUES (?, ?, ?, ?, ?)`,
		a.JobID, a.Attempt, string(a.ErrorKind), a.ErrorMessage, a.RecordedAt,
	)
	if err != nil {
		return fmt.Errorf("insert attempt: %w", err)
	}
	return nil
}

func (s *Store) ListAttempts(ctx context.Context, jobID string) ([]domain.JobAttempt, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, job_id, attempt, error_kind, error_message, recorded_at
		FROM job_attempts WHERE job_id = ? ORDER BY attempt, id`, jobID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []domain.JobAttempt
	for rows.Next() {
		var a domain.JobAttempt
		var kind string
		if err := rows.Scan(&a.ID, &a.JobID, &a.Attempt, &kind, &a.ErrorMessage, &a.RecordedAt); err != nil {
			return nil, err
		}
		a.ErrorKind = domain.ErrorKind(kind)
		out = append(out, a)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*domain.VideoJob, error) {
	var job domain.VideoJob
	var media, status, stage, kind string
	err := row.Scan(
		&job.ID, &job.UserID, &job.Profile, &job.ScriptText,
		&job.Voice.VoiceID, &job.Voice.Language, &media,
		&status, &job.Progress, &stage, &kind, &job.ErrorMessage,
		&job.FallbackCount, &job.Attempts,
		&job.OutputPath, &job.ThumbnailPath,
		&job.OutputDuration, &job.OutputWidth, &job.OutputHeight, &job.OutputSize,
		&job.Version, &job.CreatedAt, &job.UpdatedAt, &job.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	job.Status = domain.JobStatus(status)
	job.Stage = domain.Stage(stage)
	job.ErrorKind = domain.ErrorKind(kind)
	if err := json.Unmarshal([]byte(media), &job.Media); err != nil {
		return nil, fmt.Errorf("decode media selections: %w", err)
	}
	return &job, nil
}

var _ port.JobStore = (*Store)(nil)
