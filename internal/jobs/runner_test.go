package jobs

import (
	"context"
	"log/slog"
	"os"
	"sync/atomic"
	"testing"
	"time"
)

type fakeExecutor struct {
	called atomic.Int32
	runFn  func(ctx context.Context, job *VideoJob)
}

func (f *fakeExecutor) Run(ctx context.Context, job *VideoJob) {
	f.called.Add(1)
	if f.runFn != nil {
		f.runFn(ctx, job)
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestRunner_ClaimsAndRunsPendingJob(t *testing.T) {
	repo := setupTestDB(t)
	svc := NewService(repo, nil)

	exec := &fakeExecutor{
		runFn: func(ctx context.Context, job *VideoJob) {
			repo.UpdateStatus(ctx, job.ID, StatusCompleted, "Done.")
		},
	}
	runner := NewRunner(repo, exec, testLogger())
	runner.pollInterval = 10 * time.Millisecond

	job, err := svc.CreateJob(context.Background(), "Song", "Artist")
	if err != nil {
		t.Fatalf("CreateJob() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go runner.Start(ctx)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		got, _ := repo.GetJob(context.Background(), job.ID)
		if got != nil && got.Status == StatusCompleted {
			if n := exec.called.Load(); n != 1 {
				t.Errorf("executor called %d times, want 1", n)
			}
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("job never reached completed")
}

func TestRunner_PausedDoesNotClaim(t *testing.T) {
	repo := setupTestDB(t)
	svc := NewService(repo, nil)

	exec := &fakeExecutor{}
	runner := NewRunner(repo, exec, testLogger())
	runner.pollInterval = 10 * time.Millisecond
	runner.Pause()

	if _, err := svc.CreateJob(context.Background(), "Song", ""); err != nil {
		t.Fatalf("CreateJob() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go runner.Start(ctx)

	time.Sleep(100 * time.Millisecond)
	if n := exec.called.Load(); n != 0 {
		t.Errorf("executor called %d times while paused, want 0", n)
	}
	if !runner.IsPaused() {
		t.Error("IsPaused() = false, want true")
	}

	runner.Resume()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if exec.called.Load() > 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("executor never called after Resume")
}
