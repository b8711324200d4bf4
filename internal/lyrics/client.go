package lyrics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

// ErrNotFound is returned when no lyrics exist for a query.
var ErrNotFound = errors.New("lyrics not found")

// SearchError represents a non-2xx response from the lyrics service.
type SearchError struct {
	StatusCode int
	Body       string
}

func (e *SearchError) Error() string {
	return fmt.Sprintf("lyrics search failed: HTTP %d: %s", e.StatusCode, e.Body)
}

// IsRetryable returns true for server errors (5xx). Client errors (4xx)
// are considered permanent.
func (e *SearchError) IsRetryable() bool {
	return e.StatusCode >= 500
}

// Track is one result from the lyrics search endpoint.
type Track struct {
	ID           int64   `json:"id"`
	TrackName    string  `json:"trackName"`
	ArtistName   string  `json:"artistName"`
	AlbumName    string  `json:"albumName"`
	Duration     float64 `json:"duration"`
	SyncedLyrics string  `json:"syncedLyrics"`
	PlainLyrics  string  `json:"plainLyrics"`
}

// Config holds the lyrics client's configuration.
type Config struct {
	BaseURL      string        // e.g. https://lrclib.net
	UserAgent    string        // the service asks clients to identify themselves
	HTTPTimeout  time.Duration // per-request timeout
	MaxRetries   int           // attempts on retryable failures
	RetryBackoff time.Duration // linear backoff step between attempts
	Logger       *slog.Logger
}

// Client fetches lyrics from an LRCLIB-compatible search API.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

func NewClient(cfg Config) *Client {
	if cfg.UserAgent == "" {
		cfg.UserAgent = "verseclip/0.1.0 (https://github.com/verseclip/verseclip)"
	}
	if cfg.HTTPTimeout == 0 {
		cfg.HTTPTimeout = 15 * time.Second
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 5
	}
	if cfg.RetryBackoff == 0 {
		cfg.RetryBackoff = time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.HTTPTimeout},
	}
}

// Search returns the lyrics text of the best match for the query, preferring
// time-synced lyrics over plain text. Returns ErrNotFound when the service
// has no usable match.
func (c *Client) Search(ctx context.Context, query string) (string, error) {
	tracks, err := c.search(ctx, query)
	if err != nil {
		return "", err
	}
	if len(tracks) == 0 {
		return "", ErrNotFound
	}

	// Best match is the first result.
	track := tracks[0]
	c.cfg.Logger.Info("lyrics found",
		"query", query,
		"track", track.TrackName,
		"artist", track.ArtistName,
		"synced", track.SyncedLyrics != "",
	)

	if track.SyncedLyrics != "" {
		return track.SyncedLyrics, nil
	}
	if track.PlainLyrics != "" {
		return track.PlainLyrics, nil
	}
	return "", ErrNotFound
}

// Suggestions returns up to limit search results for interactive lookup.
func (c *Client) Suggestions(ctx context.Context, query string, limit int) ([]Track, error) {
	tracks, err := c.search(ctx, query)
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(tracks) > limit {
		tracks = tracks[:limit]
	}
	return tracks, nil
}

func (c *Client) search(ctx context.Context, query string) ([]Track, error) {
	u := fmt.Sprintf("%s/api/search?q=%s", c.cfg.BaseURL, url.QueryEscape(query))

	var lastErr error
	for attempt := 0; attempt < c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(attempt) * c.cfg.RetryBackoff
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		tracks, err := c.doSearch(ctx, u)
		if err == nil {
			return tracks, nil
		}
		lastErr = err

		var se *SearchError
		if errors.As(err, &se) && !se.IsRetryable() {
			return nil, err
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		c.cfg.Logger.Warn("lyrics search attempt failed",
			"attempt", attempt+1, "max", c.cfg.MaxRetries, "error", err)
	}
	return nil, fmt.Errorf("lyrics search exhausted %d attempts: %w", c.cfg.MaxRetries, lastErr)
}

func (c *Client) doSearch(ctx context.Context, u string) ([]Track, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &SearchError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var tracks []Track
	if err := json.NewDecoder(resp.Body).Decode(&tracks); err != nil {
		return nil, fmt.Errorf("parse search response: %w", err)
	}
	return tracks, nil
}
