// Package videostream drives a streaming video generation provider. A
// generation is a websocket session: connect, start a stream seeded with a
// source image and motion prompt, hold the stream open for the desired
// duration, end it, then poll an HTTP endpoint until the recording is ready
// for download.
package videostream

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/gorilla/websocket"
)

// ErrNotReady is returned by Recording while the provider is still
// finalizing the artifact. Callers poll until ready or out of attempts.
var ErrNotReady = errors.New("recording not ready")

// ProviderError represents an error response from the provider, either on
// the socket or the recording endpoint. Treated as retryable by the
// recording poll loop.
type ProviderError struct {
	Op      string
	Message string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("stream provider %s failed: %s", e.Op, e.Message)
}

// Config holds the stream client's configuration.
type Config struct {
	SocketURL   string // websocket endpoint, e.g. wss://api.example.com/v1/stream
	APIBaseURL  string // HTTP endpoint for recordings
	APIKey      string
	HTTPTimeout time.Duration
	Logger      *slog.Logger
}

// Client opens generation sessions against the provider.
type Client struct {
	cfg        Config
	httpClient *http.Client
	dialer     *websocket.Dialer
}

func NewClient(cfg Config) *Client {
	if cfg.HTTPTimeout == 0 {
		cfg.HTTPTimeout = 60 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.HTTPTimeout},
		dialer: &websocket.Dialer{
			HandshakeTimeout: 30 * time.Second,
		},
	}
}

// socketMessage is the envelope for every frame on the session socket.
type socketMessage struct {
	Type     string `json:"type"`
	Prompt   string `json:"prompt,omitempty"`
	Image    string `json:"image,omitempty"` // base64 source image
	StreamID string `json:"stream_id,omitempty"`
	Error    string `json:"error,omitempty"`
}

// Session is one open websocket connection to the provider. Sessions are not
// safe for concurrent use; each segment generation owns its own session.
type Session struct {
	client *Client
	conn   *websocket.Conn
	logger *slog.Logger
}

// Connect dials the provider and returns an open session. Callers must
// Close the session on every exit path.
func (c *Client) Connect(ctx context.Context) (*Session, error) {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	conn, resp, err := c.dialer.DialContext(ctx, c.cfg.SocketURL, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("connect to stream provider: HTTP %d: %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("connect to stream provider: %w", err)
	}

	c.cfg.Logger.Debug("stream session connected", "url", c.cfg.SocketURL)
	return &Session{client: c, conn: conn, logger: c.cfg.Logger}, nil
}

// Start begins a generation stream seeded with the source image and prompt,
// and returns the provider's stream ID.
func (s *Session) Start(ctx context.Context, prompt, imagePath string) (string, error) {
	imgData, err := os.ReadFile(imagePath)
	if err != nil {
		return "", fmt.Errorf("read source image: %w", err)
	}

	msg := socketMessage{
		Type:   "start_stream",
		Prompt: prompt,
		Image:  base64.StdEncoding.EncodeToString(imgData),
	}
	if err := s.write(ctx, msg); err != nil {
		return "", fmt.Errorf("start stream: %w", err)
	}

	reply, err := s.await(ctx, "stream_started")
	if err != nil {
		return "", fmt.Errorf("start stream: %w", err)
	}
	if reply.StreamID == "" {
		return "", &ProviderError{Op: "start_stream", Message: "no stream id in response"}
	}

	s.logger.Info("stream started", "stream_id", reply.StreamID)
	return reply.StreamID, nil
}

// End closes the generation stream server-side. The recording becomes
// available some time after the stream ends.
func (s *Session) End(ctx context.Context) error {
	if err := s.write(ctx, socketMessage{Type: "end_stream"}); err != nil {
		return fmt.Errorf("end stream: %w", err)
	}
	if _, err := s.await(ctx, "stream_ended"); err != nil {
		return fmt.Errorf("end stream: %w", err)
	}
	return nil
}

// Recording looks up the finished artifact for a stream. Returns ErrNotReady
// while the provider is still processing.
func (s *Session) Recording(ctx context.Context, streamID string) (string, error) {
	u := fmt.Sprintf("%s/v1/recordings/%s", s.client.cfg.APIBaseURL, streamID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.client.cfg.APIKey)

	resp, err := s.client.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("recording lookup: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return "", ErrNotReady
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", &ProviderError{Op: "get_recording", Message: fmt.Sprintf("HTTP %d: %s", resp.StatusCode, body)}
	}

	var rec struct {
		VideoURL     string `json:"video_url"`
		ThumbnailURL string `json:"thumbnail_url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&rec); err != nil {
		return "", fmt.Errorf("parse recording response: %w", err)
	}
	if rec.VideoURL == "" {
		return "", ErrNotReady
	}
	return rec.VideoURL, nil
}

// Download fetches the recording at url to outputPath.
func (s *Session) Download(ctx context.Context, url, outputPath string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	resp, err := s.client.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("download recording: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &ProviderError{Op: "download", Message: fmt.Sprintf("HTTP %d", resp.StatusCode)}
	}

	if err := os.MkdirAll(filepath.Dir(outputPath), 0755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	f, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("create output file: %w", err)
	}
	defer f.Close()

	n, err := io.Copy(f, resp.Body)
	if err != nil {
		os.Remove(outputPath)
		return fmt.Errorf("write recording: %w", err)
	}

	s.logger.Info("recording downloaded", "output", filepath.Base(outputPath), "bytes", n)
	return nil
}

// Close tears down the websocket connection.
func (s *Session) Close() error {
	return s.conn.Close()
}

func (s *Session) write(ctx context.Context, msg socketMessage) error {
	if deadline, ok := ctx.Deadline(); ok {
		s.conn.SetWriteDeadline(deadline)
	} else {
		s.conn.SetWriteDeadline(time.Now().Add(30 * time.Second))
	}
	return s.conn.WriteJSON(msg)
}

// await reads socket messages until one of the wanted type arrives. Frame
// messages streamed by the provider in between are discarded.
func (s *Session) await(ctx context.Context, wantType string) (*socketMessage, error) {
	if deadline, ok := ctx.Deadline(); ok {
		s.conn.SetReadDeadline(deadline)
	} else {
		s.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	}

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		var msg socketMessage
		if err := s.conn.ReadJSON(&msg); err != nil {
			return nil, fmt.Errorf("read socket message: %w", err)
		}

		switch msg.Type {
		case wantType:
			return &msg, nil
		case "error":
			return nil, &ProviderError{Op: wantType, Message: msg.Error}
		default:
			// Video frames and other interim messages are not needed for
			// recording-based generation.
		}
	}
}
