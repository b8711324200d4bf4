package api

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/verseclip/verseclip/internal/db"
	"github.com/verseclip/verseclip/internal/jobs"
	"github.com/verseclip/verseclip/internal/lyrics"
)

const testToken = "test-token"

type fakeLyricsSearcher struct {
	text   string
	err    error
	tracks []lyrics.Track
}

func (f *fakeLyricsSearcher) Search(ctx context.Context, query string) (string, error) {
	return f.text, f.err
}

func (f *fakeLyricsSearcher) Suggestions(ctx context.Context, query string, limit int) ([]lyrics.Track, error) {
	if f.err != nil {
		return nil, f.err
	}
	if limit > 0 && len(f.tracks) > limit {
		return f.tracks[:limit], nil
	}
	return f.tracks, nil
}

func setupTestServer(t *testing.T, searcher *fakeLyricsSearcher) (*httptest.Server, jobs.Repository) {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	database, err := db.New(dbPath, nil)
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	repo := jobs.NewRepository(database.Conn())
	if err := repo.SetConfig(context.Background(), "auth_token", testToken); err != nil {
		t.Fatalf("failed to set auth token: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	if searcher == nil {
		searcher = &fakeLyricsSearcher{}
	}

	mediaDir := t.TempDir()
	router := NewRouter(ServerConfig{
		Port:       0,
		MediaDir:   mediaDir,
		JobService: jobs.NewService(repo, nil),
		Repository: repo,
		Lyrics:     searcher,
		Logger:     logger,
		StartTime:  time.Now(),
		DeviceID:   "test-device",
		Version:    "test",
	})

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv, repo
}

func doRequest(t *testing.T, method, url string, body []byte, authed bool) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, url, bytes.NewReader(body))
	if err != nil {
		t.Fatalf("create request: %v", err)
	}
	if authed {
		req.Header.Set("Authorization", "Bearer "+testToken)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	return resp
}

func TestRouter_HealthIsUnauthenticated(t *testing.T) {
	srv, _ := setupTestServer(t, nil)

	resp := doRequest(t, http.MethodGet, srv.URL+"/health", nil, false)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET /health = %d, want 200", resp.StatusCode)
	}

	var health HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		t.Fatalf("decode health: %v", err)
	}
	if health.Status != "ok" || health.DeviceID != "test-device" {
		t.Errorf("health = %+v", health)
	}
}

func TestRouter_RequiresAuth(t *testing.T) {
	srv, _ := setupTestServer(t, nil)

	for _, path := range []string{"/status", "/jobs", "/search?q=x"} {
		resp := doRequest(t, http.MethodGet, srv.URL+path, nil, false)
		resp.Body.Close()
		if resp.StatusCode != http.StatusUnauthorized {
			t.Errorf("GET %s without token = %d, want 401", path, resp.StatusCode)
		}
	}

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/jobs", nil)
	req.Header.Set("Authorization", "Bearer wrong-token")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("GET /jobs with bad token = %d, want 401", resp.StatusCode)
	}
}

func TestRouter_CreateAndGetJob(t *testing.T) {
	srv, _ := setupTestServer(t, nil)

	body, _ := json.Marshal(CreateJobRequest{SongTitle: "Hallelujah", Artist: "Leonard Cohen"})
	resp := doRequest(t, http.MethodPost, srv.URL+"/jobs", body, true)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("POST /jobs = %d, want 201", resp.StatusCode)
	}

	var created JobResponse
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		t.Fatalf("decode created job: %v", err)
	}
	if created.ID == "" || created.Status != jobs.StatusPending {
		t.Errorf("created = %+v", created)
	}

	getResp := doRequest(t, http.MethodGet, srv.URL+"/jobs/"+created.ID, nil, true)
	defer getResp.Body.Close()
	if getResp.StatusCode != http.StatusOK {
		t.Fatalf("GET /jobs/{id} = %d, want 200", getResp.StatusCode)
	}

	var got JobResponse
	json.NewDecoder(getResp.Body).Decode(&got)
	if got.SongTitle != "Hallelujah" || got.Artist != "Leonard Cohen" {
		t.Errorf("got = %+v", got)
	}
}

func TestRouter_CreateJob_RequiresTitle(t *testing.T) {
	srv, _ := setupTestServer(t, nil)

	body, _ := json.Marshal(CreateJobRequest{SongTitle: "   "})
	resp := doRequest(t, http.MethodPost, srv.URL+"/jobs", body, true)
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("POST /jobs with blank title = %d, want 400", resp.StatusCode)
	}
}

func TestRouter_GetJob_NotFound(t *testing.T) {
	srv, _ := setupTestServer(t, nil)

	resp := doRequest(t, http.MethodGet, srv.URL+"/jobs/nope", nil, true)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("GET /jobs/nope = %d, want 404", resp.StatusCode)
	}
}

func TestRouter_CancelJob(t *testing.T) {
	srv, repo := setupTestServer(t, nil)

	body, _ := json.Marshal(CreateJobRequest{SongTitle: "Song"})
	resp := doRequest(t, http.MethodPost, srv.URL+"/jobs", body, true)
	var created JobResponse
	json.NewDecoder(resp.Body).Decode(&created)
	resp.Body.Close()

	cancelResp := doRequest(t, http.MethodPost, srv.URL+"/jobs/"+created.ID+"/cancel", nil, true)
	cancelResp.Body.Close()
	if cancelResp.StatusCode != http.StatusAccepted {
		t.Fatalf("POST cancel = %d, want 202", cancelResp.StatusCode)
	}

	flag, _ := repo.IsCancelRequested(context.Background(), created.ID)
	if !flag {
		t.Error("cancel flag not set")
	}
}

func TestRouter_CancelJob_TerminalConflict(t *testing.T) {
	srv, repo := setupTestServer(t, nil)

	body, _ := json.Marshal(CreateJobRequest{SongTitle: "Song"})
	resp := doRequest(t, http.MethodPost, srv.URL+"/jobs", body, true)
	var created JobResponse
	json.NewDecoder(resp.Body).Decode(&created)
	resp.Body.Close()

	if err := repo.UpdateStatus(context.Background(), created.ID, jobs.StatusCompleted, "Done."); err != nil {
		t.Fatal(err)
	}

	cancelResp := doRequest(t, http.MethodPost, srv.URL+"/jobs/"+created.ID+"/cancel", nil, true)
	cancelResp.Body.Close()
	if cancelResp.StatusCode != http.StatusConflict {
		t.Errorf("cancel of terminal job = %d, want 409", cancelResp.StatusCode)
	}
}

func TestRouter_CancelJob_NotFound(t *testing.T) {
	srv, _ := setupTestServer(t, nil)

	resp := doRequest(t, http.MethodPost, srv.URL+"/jobs/nope/cancel", nil, true)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("cancel of missing job = %d, want 404", resp.StatusCode)
	}
}

func TestRouter_Search(t *testing.T) {
	srv, _ := setupTestServer(t, &fakeLyricsSearcher{text: "[00:01]hello"})

	resp := doRequest(t, http.MethodGet, srv.URL+"/search?q=hello", nil, true)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET /search = %d, want 200", resp.StatusCode)
	}

	var got SearchResponse
	json.NewDecoder(resp.Body).Decode(&got)
	if got.Lyrics != "[00:01]hello" {
		t.Errorf("search response = %+v", got)
	}
}

func TestRouter_Search_NotFound(t *testing.T) {
	srv, _ := setupTestServer(t, &fakeLyricsSearcher{err: lyrics.ErrNotFound})

	resp := doRequest(t, http.MethodGet, srv.URL+"/search?q=nope", nil, true)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("GET /search = %d, want 404", resp.StatusCode)
	}
}

func TestRouter_Suggestions(t *testing.T) {
	srv, _ := setupTestServer(t, &fakeLyricsSearcher{tracks: []lyrics.Track{
		{TrackName: "A", ArtistName: "X", SyncedLyrics: "[00:01]a"},
		{TrackName: "B", ArtistName: "Y"},
	}})

	resp := doRequest(t, http.MethodGet, srv.URL+"/search/suggestions?q=a", nil, true)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET /search/suggestions = %d, want 200", resp.StatusCode)
	}

	var got SuggestionsResponse
	json.NewDecoder(resp.Body).Decode(&got)
	if len(got.Tracks) != 2 {
		t.Fatalf("tracks = %d, want 2", len(got.Tracks))
	}
	if !got.Tracks[0].Synced || got.Tracks[1].Synced {
		t.Errorf("synced flags wrong: %+v", got.Tracks)
	}
}

func TestRouter_MediaServing(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	database, err := db.New(dbPath, nil)
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	repo := jobs.NewRepository(database.Conn())

	mediaDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(mediaDir, "job-1_final.mp4"), []byte("video"), 0644); err != nil {
		t.Fatal(err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	router := NewRouter(ServerConfig{
		MediaDir:   mediaDir,
		JobService: jobs.NewService(repo, nil),
		Repository: repo,
		Lyrics:     &fakeLyricsSearcher{},
		Logger:     logger,
		StartTime:  time.Now(),
	})
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	// Artifacts are served without auth.
	resp := doRequest(t, http.MethodGet, srv.URL+"/media/job-1_final.mp4", nil, false)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET /media/job-1_final.mp4 = %d, want 200", resp.StatusCode)
	}

	missing := doRequest(t, http.MethodGet, srv.URL+"/media/missing.mp4", nil, false)
	missing.Body.Close()
	if missing.StatusCode != http.StatusNotFound {
		t.Errorf("GET missing media = %d, want 404", missing.StatusCode)
	}
}
