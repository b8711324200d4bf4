package lyrics

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func newTestClient(baseURL string) *Client {
	return NewClient(Config{
		BaseURL:      baseURL,
		MaxRetries:   3,
		RetryBackoff: time.Millisecond,
	})
}

func TestClient_Search_PrefersSynced(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/search" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if q := r.URL.Query().Get("q"); q != "hello world" {
			t.Errorf("query = %q, want %q", q, "hello world")
		}
		w.Write([]byte(`[{"trackName":"Hello","artistName":"World","syncedLyrics":"[00:01]hi","plainLyrics":"hi"}]`))
	}))
	defer srv.Close()

	text, err := newTestClient(srv.URL).Search(context.Background(), "hello world")
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if text != "[00:01]hi" {
		t.Errorf("Search() = %q, want synced lyrics", text)
	}
}

func TestClient_Search_FallsBackToPlain(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"trackName":"X","plainLyrics":"plain text"}]`))
	}))
	defer srv.Close()

	text, err := newTestClient(srv.URL).Search(context.Background(), "x")
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if text != "plain text" {
		t.Errorf("Search() = %q, want plain lyrics", text)
	}
}

func TestClient_Search_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Search(context.Background(), "nope")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Search() error = %v, want ErrNotFound", err)
	}
}

func TestClient_Search_EmptyLyricsIsNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"trackName":"X"}]`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Search(context.Background(), "x")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Search() error = %v, want ErrNotFound", err)
	}
}

func TestClient_Search_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`[{"trackName":"X","plainLyrics":"ok"}]`))
	}))
	defer srv.Close()

	text, err := newTestClient(srv.URL).Search(context.Background(), "x")
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if text != "ok" {
		t.Errorf("Search() = %q, want %q", text, "ok")
	}
	if n := calls.Load(); n != 3 {
		t.Errorf("server called %d times, want 3", n)
	}
}

func TestClient_Search_ClientErrorIsPermanent(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Search(context.Background(), "x")
	var se *SearchError
	if !errors.As(err, &se) {
		t.Fatalf("Search() error = %v, want *SearchError", err)
	}
	if se.IsRetryable() {
		t.Error("SearchError.IsRetryable() = true for 400, want false")
	}
	if n := calls.Load(); n != 1 {
		t.Errorf("server called %d times, want 1", n)
	}
}

func TestClient_Suggestions_Limit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"trackName":"a"},{"trackName":"b"},{"trackName":"c"}]`))
	}))
	defer srv.Close()

	tracks, err := newTestClient(srv.URL).Suggestions(context.Background(), "q", 2)
	if err != nil {
		t.Fatalf("Suggestions() error = %v", err)
	}
	if len(tracks) != 2 {
		t.Errorf("Suggestions() returned %d tracks, want 2", len(tracks))
	}
}
