// Package config provides configuration management for the verseclip server.
// Configuration is loaded from environment variables with sensible defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

const (
	// Default values
	DefaultPort     = 8787
	DefaultLogLevel = "info"
	DefaultDataDir  = ".verseclip"

	// Environment variable names
	EnvPort     = "VERSECLIP_PORT"
	EnvLogLevel = "VERSECLIP_LOG_LEVEL"
	EnvDataDir  = "VERSECLIP_DATA_DIR"

	// Generation environment variable names
	EnvSegmentSeconds = "VERSECLIP_SEGMENT_SECONDS"
	EnvMaxSegments    = "VERSECLIP_MAX_SEGMENTS"
	EnvConcurrency    = "VERSECLIP_CONCURRENCY"
	EnvCaptions       = "VERSECLIP_CAPTIONS"

	// External service environment variable names
	EnvLyricsBaseURL   = "VERSECLIP_LYRICS_BASE_URL"
	EnvGeminiAPIKey    = "VERSECLIP_GEMINI_API_KEY"
	EnvGeminiBaseURL   = "VERSECLIP_GEMINI_BASE_URL"
	EnvStreamAPIKey    = "VERSECLIP_STREAM_API_KEY"
	EnvStreamSocketURL = "VERSECLIP_STREAM_SOCKET_URL"
	EnvStreamAPIURL    = "VERSECLIP_STREAM_API_URL"
	EnvFFmpegPath      = "VERSECLIP_FFMPEG_PATH"
	EnvFFprobePath     = "VERSECLIP_FFPROBE_PATH"

	// Database filename
	DBFilename = "verseclip.db"

	// Generation defaults
	DefaultSegmentSeconds = 10.0
	DefaultMaxSegments    = 6
	DefaultConcurrency    = 3

	// External service defaults
	DefaultLyricsBaseURL   = "https://lrclib.net"
	DefaultGeminiBaseURL   = "https://generativelanguage.googleapis.com"
	DefaultStreamSocketURL = "wss://api.odyssey.ml/v1/stream"
	DefaultStreamAPIURL    = "https://api.odyssey.ml"

	// Media tool timeouts
	DefaultProbeTimeout   = 30   // seconds
	DefaultTrimTimeout    = 120  // seconds
	DefaultConcatTimeout  = 300  // seconds
	DefaultOverlayTimeout = 600  // seconds
)

// Config defines the application configuration interface
type Config interface {
	Port() int
	LogLevel() string
	DataDir() string
	DBPath() string
	MediaDir() string

	SegmentSeconds() float64
	MaxSegments() int
	HardCapSeconds() float64
	Concurrency() int
	CaptionsEnabled() bool

	LyricsBaseURL() string
	GeminiAPIKey() string
	GeminiBaseURL() string
	StreamAPIKey() string
	StreamSocketURL() string
	StreamAPIURL() string
	FFmpegPath() string
	FFprobePath() string

	ProbeTimeout() time.Duration
	TrimTimeout() time.Duration
	ConcatTimeout() time.Duration
	OverlayTimeout() time.Duration
}

// EnvConfig reads configuration from environment variables
type EnvConfig struct {
	port     int
	logLevel string
	dataDir  string

	segmentSeconds float64
	maxSegments    int
	concurrency    int
	captions       bool

	lyricsBaseURL   string
	geminiAPIKey    string
	geminiBaseURL   string
	streamAPIKey    string
	streamSocketURL string
	streamAPIURL    string
	ffmpegPath      string
	ffprobePath     string
}

// New creates a new EnvConfig with defaults and environment variable overrides
func New() (*EnvConfig, error) {
	cfg := &EnvConfig{
		port:            DefaultPort,
		logLevel:        DefaultLogLevel,
		dataDir:         defaultDataDir(),
		segmentSeconds:  DefaultSegmentSeconds,
		maxSegments:     DefaultMaxSegments,
		concurrency:     DefaultConcurrency,
		captions:        true,
		lyricsBaseURL:   DefaultLyricsBaseURL,
		geminiBaseURL:   DefaultGeminiBaseURL,
		streamSocketURL: DefaultStreamSocketURL,
		streamAPIURL:    DefaultStreamAPIURL,
	}

	if p := os.Getenv(EnvPort); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", EnvPort, err)
		}
		if port < 1 || port > 65535 {
			return nil, fmt.Errorf("invalid %s: port must be between 1 and 65535", EnvPort)
		}
		cfg.port = port
	}

	if ll := os.Getenv(EnvLogLevel); ll != "" {
		cfg.logLevel = ll
	}

	if dd := os.Getenv(EnvDataDir); dd != "" {
		cfg.dataDir = dd
	}

	if ss := os.Getenv(EnvSegmentSeconds); ss != "" {
		secs, err := strconv.ParseFloat(ss, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", EnvSegmentSeconds, err)
		}
		if secs <= 0 {
			return nil, fmt.Errorf("invalid %s: must be positive", EnvSegmentSeconds)
		}
		cfg.segmentSeconds = secs
	}

	if ms := os.Getenv(EnvMaxSegments); ms != "" {
		n, err := strconv.Atoi(ms)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", EnvMaxSegments, err)
		}
		if n < 1 {
			return nil, fmt.Errorf("invalid %s: must be at least 1", EnvMaxSegments)
		}
		cfg.maxSegments = n
	}

	if cc := os.Getenv(EnvConcurrency); cc != "" {
		n, err := strconv.Atoi(cc)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", EnvConcurrency, err)
		}
		if n < 1 {
			return nil, fmt.Errorf("invalid %s: must be at least 1", EnvConcurrency)
		}
		cfg.concurrency = n
	}

	if v := os.Getenv(EnvCaptions); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", EnvCaptions, err)
		}
		cfg.captions = enabled
	}

	if v := os.Getenv(EnvLyricsBaseURL); v != "" {
		cfg.lyricsBaseURL = v
	}
	cfg.geminiAPIKey = os.Getenv(EnvGeminiAPIKey)
	if v := os.Getenv(EnvGeminiBaseURL); v != "" {
		cfg.geminiBaseURL = v
	}
	cfg.streamAPIKey = os.Getenv(EnvStreamAPIKey)
	if v := os.Getenv(EnvStreamSocketURL); v != "" {
		cfg.streamSocketURL = v
	}
	if v := os.Getenv(EnvStreamAPIURL); v != "" {
		cfg.streamAPIURL = v
	}
	cfg.ffmpegPath = os.Getenv(EnvFFmpegPath)
	cfg.ffprobePath = os.Getenv(EnvFFprobePath)

	return cfg, nil
}

// Port returns the HTTP server port
func (c *EnvConfig) Port() int {
	return c.port
}

// LogLevel returns the log level (debug, info, warn, error)
func (c *EnvConfig) LogLevel() string {
	return c.logLevel
}

// DataDir returns the data directory path
func (c *EnvConfig) DataDir() string {
	return c.dataDir
}

// DBPath returns the full path to the SQLite database file
func (c *EnvConfig) DBPath() string {
	return filepath.Join(c.dataDir, DBFilename)
}

// MediaDir returns the directory holding generated images and videos
func (c *EnvConfig) MediaDir() string {
	return filepath.Join(c.dataDir, "media")
}

// SegmentSeconds returns the maximum duration of one planned segment
func (c *EnvConfig) SegmentSeconds() float64 {
	return c.segmentSeconds
}

// MaxSegments returns the configured segment-count cap
func (c *EnvConfig) MaxSegments() int {
	return c.maxSegments
}

// HardCapSeconds returns the hard cap on the stitched video's total duration.
// The cap is derived from the segment budget so the planner's coverage
// invariants stay intact.
func (c *EnvConfig) HardCapSeconds() float64 {
	return float64(c.maxSegments) * c.segmentSeconds
}

// Concurrency returns the maximum number of in-flight segment generations
func (c *EnvConfig) Concurrency() int {
	return c.concurrency
}

// CaptionsEnabled reports whether lyric captions are burned into segments
func (c *EnvConfig) CaptionsEnabled() bool {
	return c.captions
}

func (c *EnvConfig) LyricsBaseURL() string {
	return c.lyricsBaseURL
}

func (c *EnvConfig) GeminiAPIKey() string {
	return c.geminiAPIKey
}

func (c *EnvConfig) GeminiBaseURL() string {
	return c.geminiBaseURL
}

func (c *EnvConfig) StreamAPIKey() string {
	return c.streamAPIKey
}

func (c *EnvConfig) StreamSocketURL() string {
	return c.streamSocketURL
}

func (c *EnvConfig) StreamAPIURL() string {
	return c.streamAPIURL
}

func (c *EnvConfig) FFmpegPath() string {
	return c.ffmpegPath
}

func (c *EnvConfig) FFprobePath() string {
	return c.ffprobePath
}

func (c *EnvConfig) ProbeTimeout() time.Duration {
	return time.Duration(DefaultProbeTimeout) * time.Second
}

func (c *EnvConfig) TrimTimeout() time.Duration {
	return time.Duration(DefaultTrimTimeout) * time.Second
}

func (c *EnvConfig) ConcatTimeout() time.Duration {
	return time.Duration(DefaultConcatTimeout) * time.Second
}

func (c *EnvConfig) OverlayTimeout() time.Duration {
	return time.Duration(DefaultOverlayTimeout) * time.Second
}

// defaultDataDir returns the default data directory path
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		// Fallback to current directory if home is not available
		return DefaultDataDir
	}
	return filepath.Join(home, DefaultDataDir)
}

// Version information (set at build time via ldflags)
var (
	Version   = "0.1.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)
