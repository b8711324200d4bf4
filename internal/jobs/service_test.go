package jobs

import (
	"context"
	"errors"
	"testing"
)

func TestService_CreateJob(t *testing.T) {
	repo := setupTestDB(t)
	svc := NewService(repo, nil)

	job, err := svc.CreateJob(context.Background(), "  Bohemian Rhapsody  ", "Queen")
	if err != nil {
		t.Fatalf("CreateJob() error = %v", err)
	}

	if job.ID == "" {
		t.Error("job.ID is empty")
	}
	if job.SongTitle != "Bohemian Rhapsody" {
		t.Errorf("job.SongTitle = %q, want trimmed title", job.SongTitle)
	}
	if job.Status != StatusPending {
		t.Errorf("job.Status = %s, want pending", job.Status)
	}
	if job.Progress != 0 {
		t.Errorf("job.Progress = %d, want 0", job.Progress)
	}

	stored, err := svc.GetJob(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("GetJob() error = %v", err)
	}
	if stored == nil {
		t.Fatal("created job not found in store")
	}
}

func TestService_CreateJob_RequiresTitle(t *testing.T) {
	repo := setupTestDB(t)
	svc := NewService(repo, nil)

	if _, err := svc.CreateJob(context.Background(), "   ", "Artist"); err == nil {
		t.Error("CreateJob() with blank title should fail")
	}
}

func TestService_CancelJob(t *testing.T) {
	repo := setupTestDB(t)
	svc := NewService(repo, nil)

	job, err := svc.CreateJob(context.Background(), "Song", "")
	if err != nil {
		t.Fatalf("CreateJob() error = %v", err)
	}

	if err := svc.CancelJob(context.Background(), job.ID); err != nil {
		t.Fatalf("CancelJob() error = %v", err)
	}

	flag, _ := repo.IsCancelRequested(context.Background(), job.ID)
	if !flag {
		t.Error("cancel flag not set after CancelJob()")
	}
}

func TestService_CancelJob_NotFound(t *testing.T) {
	repo := setupTestDB(t)
	svc := NewService(repo, nil)

	if err := svc.CancelJob(context.Background(), "nope"); !errors.Is(err, ErrJobNotFound) {
		t.Errorf("CancelJob() on missing job = %v, want ErrJobNotFound", err)
	}
}
