package jobs

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrNotCancellable is returned when a cancel request targets a job that is
// already in a terminal state.
var ErrNotCancellable = errors.New("job is not cancellable")

// Repository is the job record store. Status updates never leave a terminal
// state and progress updates are monotonic non-decreasing; both guards are
// enforced in SQL so they hold across concurrent writers.
type Repository interface {
	CreateJob(ctx context.Context, job *VideoJob) error
	GetJob(ctx context.Context, id string) (*VideoJob, error)
	ListJobs(ctx context.Context, limit int) ([]*VideoJob, error)

	// ClaimPendingJob atomically moves the oldest pending job to processing
	// and returns it. Returns (nil, nil) when no pending job exists.
	ClaimPendingJob(ctx context.Context) (*VideoJob, error)

	UpdateStatus(ctx context.Context, id, status, message string) error
	UpdateProgress(ctx context.Context, id string, progress int) error
	UpdateSegments(ctx context.Context, id string, segments []Segment) error
	SetVideoFile(ctx context.Context, id, path string) error

	// RequestCancel sets the cancellation flag on a pending or processing
	// job. The worker observes the flag at its checkpoints and performs the
	// actual transition to cancelled.
	RequestCancel(ctx context.Context, id string) error

	// IsCancelRequested reads the cancellation flag fresh from the store.
	// Callers must not cache the result across a stage boundary.
	IsCancelRequested(ctx context.Context, id string) (bool, error)

	GetConfig(ctx context.Context, key string) (string, error)
	SetConfig(ctx context.Context, key, value string) error
}

type SQLiteRepository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const jobColumns = `id, song_title, artist, status, progress, message, video_file, segments, cancel_requested, created_at, updated_at`

func (r *SQLiteRepository) CreateJob(ctx context.Context, j *VideoJob) error {
	segments, err := json.Marshal(j.Segments)
	if err != nil {
		return fmt.Errorf("marshal segments: %w", err)
	}
	if j.Segments == nil {
		segments = []byte("[]")
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO video_jobs (id, song_title, artist, status, progress, message, video_file, segments, cancel_requested, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, j.ID, j.SongTitle, j.Artist, j.Status, j.Progress, j.Message, j.VideoFile, string(segments),
		boolToInt(j.CancelRequested), j.CreatedAt.Format(time.RFC3339), j.UpdatedAt.Format(time.RFC3339))
	return err
}

func (r *SQLiteRepository) GetJob(ctx context.Context, id string) (*VideoJob, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+jobColumns+`
		FROM video_jobs WHERE id = ?
	`, id)
	return scanJob(row)
}

func (r *SQLiteRepository) ListJobs(ctx context.Context, limit int) ([]*VideoJob, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+jobColumns+`
		FROM video_jobs ORDER BY created_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []*VideoJob
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, j)
	}
	return list, rows.Err()
}

func (r *SQLiteRepository) ClaimPendingJob(ctx context.Context) (*VideoJob, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+jobColumns+`
		FROM video_jobs WHERE status = ? ORDER BY created_at ASC LIMIT 1
	`, StatusPending)
	job, err := scanJob(row)
	if err != nil || job == nil {
		return nil, err
	}

	res, err := r.db.ExecContext(ctx, `
		UPDATE video_jobs SET status = ?, updated_at = datetime('now')
		WHERE id = ? AND status = ?
	`, StatusProcessing, job.ID, StatusPending)
	if err != nil {
		return nil, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		// Lost the claim race; the next poll tick will try again.
		return nil, nil
	}
	job.Status = StatusProcessing
	return job, nil
}

func (r *SQLiteRepository) UpdateStatus(ctx context.Context, id, status, message string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE video_jobs SET status = ?, message = ?, updated_at = datetime('now')
		WHERE id = ? AND status NOT IN (?, ?, ?)
	`, status, message, id, StatusCompleted, StatusFailed, StatusCancelled)
	return err
}

func (r *SQLiteRepository) UpdateProgress(ctx context.Context, id string, progress int) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE video_jobs
		SET progress = CASE WHEN ? > progress THEN ? ELSE progress END,
		    updated_at = datetime('now')
		WHERE id = ? AND status NOT IN (?, ?, ?)
	`, progress, progress, id, StatusCompleted, StatusFailed, StatusCancelled)
	return err
}

func (r *SQLiteRepository) UpdateSegments(ctx context.Context, id string, segments []Segment) error {
	data, err := json.Marshal(segments)
	if err != nil {
		return fmt.Errorf("marshal segments: %w", err)
	}
	if segments == nil {
		data = []byte("[]")
	}
	_, err = r.db.ExecContext(ctx, `
		UPDATE video_jobs SET segments = ?, updated_at = datetime('now') WHERE id = ?
	`, string(data), id)
	return err
}

func (r *SQLiteRepository) SetVideoFile(ctx context.Context, id, path string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE video_jobs SET video_file = ?, updated_at = datetime('now') WHERE id = ?
	`, path, id)
	return err
}

func (r *SQLiteRepository) RequestCancel(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE video_jobs SET cancel_requested = 1, updated_at = datetime('now')
		WHERE id = ? AND status IN (?, ?)
	`, id, StatusPending, StatusProcessing)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotCancellable
	}
	return nil
}

func (r *SQLiteRepository) IsCancelRequested(ctx context.Context, id string) (bool, error) {
	var flag int
	err := r.db.QueryRowContext(ctx,
		`SELECT cancel_requested FROM video_jobs WHERE id = ?`, id).Scan(&flag)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return flag == 1, nil
}

func (r *SQLiteRepository) GetConfig(ctx context.Context, key string) (string, error) {
	var value string
	err := r.db.QueryRowContext(ctx, `SELECT value FROM config WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return value, nil
}

func (r *SQLiteRepository) SetConfig(ctx context.Context, key, value string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO config (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*VideoJob, error) {
	var j VideoJob
	var segments string
	var cancelRequested int
	var createdAt, updatedAt string

	err := row.Scan(&j.ID, &j.SongTitle, &j.Artist, &j.Status, &j.Progress, &j.Message,
		&j.VideoFile, &segments, &cancelRequested, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(segments), &j.Segments); err != nil {
		return nil, fmt.Errorf("unmarshal segments for job %s: %w", j.ID, err)
	}
	j.CancelRequested = cancelRequested == 1
	j.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	j.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &j, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
