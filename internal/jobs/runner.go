package jobs

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Executor runs one claimed job to a terminal state. It must not return
// until the job record reflects that state.
type Executor interface {
	Run(ctx context.Context, job *VideoJob)
}

// Runner polls the store for pending jobs and launches one worker goroutine
// per claimed job. Jobs run in parallel with each other; concurrency inside
// a job is the executor's concern.
type Runner struct {
	repo         Repository
	exec         Executor
	logger       *slog.Logger
	pollInterval time.Duration
	running      atomic.Bool
	paused       atomic.Bool

	mu       sync.Mutex
	inflight map[string]struct{}
	wg       sync.WaitGroup
}

func NewRunner(repo Repository, exec Executor, logger *slog.Logger) *Runner {
	return &Runner{
		repo:         repo,
		exec:         exec,
		logger:       logger,
		pollInterval: 2 * time.Second,
		inflight:     make(map[string]struct{}),
	}
}

func (r *Runner) Start(ctx context.Context) {
	if r.running.Swap(true) {
		return
	}

	r.logger.Info("job runner started")

	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("job runner stopping")
			r.wg.Wait()
			r.running.Store(false)
			return
		case <-ticker.C:
			if !r.paused.Load() {
				r.claimJobs(ctx)
			}
		}
	}
}

func (r *Runner) claimJobs(ctx context.Context) {
	for {
		job, err := r.repo.ClaimPendingJob(ctx)
		if err != nil {
			r.logger.Error("failed to claim pending job", "error", err)
			return
		}
		if job == nil {
			return
		}
		r.launch(ctx, job)
	}
}

func (r *Runner) launch(ctx context.Context, job *VideoJob) {
	r.mu.Lock()
	if _, ok := r.inflight[job.ID]; ok {
		r.mu.Unlock()
		return
	}
	r.inflight[job.ID] = struct{}{}
	r.mu.Unlock()

	r.logger.Info("processing job", "job_id", job.ID, "song_title", job.SongTitle)

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer func() {
			r.mu.Lock()
			delete(r.inflight, job.ID)
			r.mu.Unlock()
		}()
		r.exec.Run(ctx, job)
	}()
}

func (r *Runner) Pause() {
	r.paused.Store(true)
	r.logger.Info("job runner paused")
}

func (r *Runner) Resume() {
	r.paused.Store(false)
	r.logger.Info("job runner resumed")
}

func (r *Runner) IsPaused() bool {
	return r.paused.Load()
}

func (r *Runner) IsRunning() bool {
	return r.running.Load()
}

// ActiveJobCount returns the number of jobs currently executing.
func (r *Runner) ActiveJobCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.inflight)
}
