package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// ErrJobNotFound is returned when an operation targets a job id that does
// not exist.
var ErrJobNotFound = errors.New("job not found")

// Service owns job creation and the user-facing job operations.
type Service struct {
	repo   Repository
	logger *slog.Logger
}

func NewService(repo Repository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, logger: logger}
}

// CreateJob records a new pending job. The background runner picks it up.
func (s *Service) CreateJob(ctx context.Context, songTitle, artist string) (*VideoJob, error) {
	songTitle = strings.TrimSpace(songTitle)
	artist = strings.TrimSpace(artist)
	if songTitle == "" {
		return nil, errors.New("song title is required")
	}

	now := time.Now().UTC()
	job := &VideoJob{
		ID:        NewJobID(),
		SongTitle: songTitle,
		Artist:    artist,
		Status:    StatusPending,
		Message:   "Job created, waiting to start.",
		Segments:  []Segment{},
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.repo.CreateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}

	s.logger.Info("job created", "job_id", job.ID, "song_title", songTitle, "artist", artist)
	return job, nil
}

func (s *Service) GetJob(ctx context.Context, id string) (*VideoJob, error) {
	return s.repo.GetJob(ctx, id)
}

func (s *Service) ListJobs(ctx context.Context, limit int) ([]*VideoJob, error) {
	if limit <= 0 {
		limit = 20
	}
	return s.repo.ListJobs(ctx, limit)
}

// CancelJob flags a job for cancellation. The worker honors the flag at its
// next checkpoint; work already admitted into the concurrency window is
// allowed to drain.
func (s *Service) CancelJob(ctx context.Context, id string) error {
	job, err := s.repo.GetJob(ctx, id)
	if err != nil {
		return err
	}
	if job == nil {
		return ErrJobNotFound
	}

	if err := s.repo.RequestCancel(ctx, id); err != nil {
		return err
	}

	s.logger.Info("job cancellation requested", "job_id", id, "status", job.Status)
	return nil
}
