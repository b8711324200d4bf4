// Package imagegen calls a Gemini-style generateContent API to produce one
// illustration per segment and to probe the overall mood of a song's lyrics.
package imagegen

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"
)

// RateLimitError signals the provider throttled the request. Callers are
// expected to back off and retry.
type RateLimitError struct {
	StatusCode int
	Body       string
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("image generation rate limited: HTTP %d: %s", e.StatusCode, e.Body)
}

// GenerateError represents any other non-2xx response.
type GenerateError struct {
	StatusCode int
	Body       string
}

func (e *GenerateError) Error() string {
	return fmt.Sprintf("image generation failed: HTTP %d: %s", e.StatusCode, e.Body)
}

// Config holds the image client's configuration.
type Config struct {
	BaseURL     string // e.g. https://generativelanguage.googleapis.com
	APIKey      string
	ImageModel  string // default gemini-2.5-flash-image
	TextModel   string // default gemini-2.5-flash
	HTTPTimeout time.Duration
	Logger      *slog.Logger
}

// Client is an HTTP client for the image generation service.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

func NewClient(cfg Config) *Client {
	if cfg.ImageModel == "" {
		cfg.ImageModel = "gemini-2.5-flash-image"
	}
	if cfg.TextModel == "" {
		cfg.TextModel = "gemini-2.5-flash"
	}
	if cfg.HTTPTimeout == 0 {
		cfg.HTTPTimeout = 120 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.HTTPTimeout},
	}
}

type generateRequest struct {
	Contents []content `json:"contents"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inlineData,omitempty"`
}

type inlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"` // base64
}

type generateResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
}

// Generate requests an image for the prompt and writes the decoded result to
// outputPath. A throttled request surfaces as *RateLimitError; the retry
// schedule belongs to the caller.
func (c *Client) Generate(ctx context.Context, prompt, outputPath string) error {
	resp, err := c.generateContent(ctx, c.cfg.ImageModel, prompt)
	if err != nil {
		return err
	}

	for _, cand := range resp.Candidates {
		for _, p := range cand.Content.Parts {
			if p.InlineData == nil {
				continue
			}
			data, err := base64.StdEncoding.DecodeString(p.InlineData.Data)
			if err != nil {
				return fmt.Errorf("decode image data: %w", err)
			}
			if err := os.MkdirAll(filepath.Dir(outputPath), 0755); err != nil {
				return fmt.Errorf("create image dir: %w", err)
			}
			if err := os.WriteFile(outputPath, data, 0644); err != nil {
				return fmt.Errorf("write image: %w", err)
			}
			c.cfg.Logger.Info("image generated",
				"output", filepath.Base(outputPath),
				"bytes", len(data),
				"mime_type", p.InlineData.MimeType,
			)
			return nil
		}
	}

	return fmt.Errorf("image generation returned no image data")
}

// AnalyzeMood asks the text model for a short description of the lyrics'
// emotional tone. Any failure degrades to "Neutral"; mood is a prompt hint,
// never a reason to fail a job.
func (c *Client) AnalyzeMood(ctx context.Context, lyricsText string) string {
	lyricsText = truncate(lyricsText, 2000)

	prompt := "Analyze the sentiment and mood of the following song lyrics. " +
		"Provide a concise description of the emotional tone (e.g., 'Upbeat and Joyful', " +
		"'Dark and Melancholic', 'Energetic', 'Romantic', 'Angry'). " +
		"Return ONLY the sentiment description, nothing else.\n\nLyrics:\n" + lyricsText

	resp, err := c.generateContent(ctx, c.cfg.TextModel, prompt)
	if err != nil {
		c.cfg.Logger.Warn("mood analysis failed, using neutral", "error", err)
		return "Neutral"
	}

	for _, cand := range resp.Candidates {
		for _, p := range cand.Content.Parts {
			if text := strings.TrimSpace(p.Text); text != "" {
				return text
			}
		}
	}
	return "Neutral"
}

func (c *Client) generateContent(ctx context.Context, model, prompt string) (*generateResponse, error) {
	body, err := json.Marshal(generateRequest{
		Contents: []content{{Parts: []part{{Text: prompt}}}},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	u := fmt.Sprintf("%s/v1beta/models/%s:generateContent", c.cfg.BaseURL, model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.cfg.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<22))

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, &RateLimitError{StatusCode: resp.StatusCode, Body: truncate(string(respBody), 512)}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &GenerateError{StatusCode: resp.StatusCode, Body: truncate(string(respBody), 512)}
	}

	var parsed generateResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	return &parsed, nil
}

// truncate shortens s to at most maxLen bytes, backing up so a multi-byte
// rune is never split.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	for maxLen > 0 && !utf8.RuneStart(s[maxLen]) {
		maxLen--
	}
	return s[:maxLen]
}
