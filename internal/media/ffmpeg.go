// Package media wraps the external ffmpeg and ffprobe binaries for the
// duration probing, trimming, concatenation and caption overlay steps of
// video assembly.
package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const maxStderrBytes = 8 * 1024 // tail of stderr kept for diagnostics

// ErrUnavailable is returned by every operation when the required binary
// could not be found on PATH.
var ErrUnavailable = errors.New("media tool unavailable")

// ToolError is a non-zero exit from ffmpeg or ffprobe.
type ToolError struct {
	Tool     string
	ExitCode int
	Stderr   string
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("%s exited %d: %s", e.Tool, e.ExitCode, e.Stderr)
}

// Config holds the tool wrapper's configuration.
type Config struct {
	FFmpegPath     string // explicit binary path; empty = look up on PATH
	FFprobePath    string
	ProbeTimeout   time.Duration
	TrimTimeout    time.Duration
	ConcatTimeout  time.Duration
	OverlayTimeout time.Duration
	Logger         *slog.Logger
}

// FFmpeg executes media operations as subprocesses.
type FFmpeg struct {
	cfg     Config
	ffmpeg  string
	ffprobe string
	missing error
}

// New resolves the binaries and returns the tool wrapper. A missing binary
// does not fail construction; every operation returns an ErrUnavailable
// wrapped error instead, so a single job fails rather than the whole server.
func New(cfg Config) *FFmpeg {
	if cfg.ProbeTimeout == 0 {
		cfg.ProbeTimeout = 30 * time.Second
	}
	if cfg.TrimTimeout == 0 {
		cfg.TrimTimeout = 2 * time.Minute
	}
	if cfg.ConcatTimeout == 0 {
		cfg.ConcatTimeout = 5 * time.Minute
	}
	if cfg.OverlayTimeout == 0 {
		cfg.OverlayTimeout = 10 * time.Minute
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	f := &FFmpeg{cfg: cfg}

	ffmpeg, err := resolveBinary(cfg.FFmpegPath, "ffmpeg")
	if err != nil {
		f.missing = fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	ffprobe, err := resolveBinary(cfg.FFprobePath, "ffprobe")
	if err != nil && f.missing == nil {
		f.missing = fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	f.ffmpeg = ffmpeg
	f.ffprobe = ffprobe

	if f.missing == nil {
		cfg.Logger.Info("media tool initialised", "ffmpeg", ffmpeg, "ffprobe", ffprobe)
	}
	return f
}

// Available returns nil when both binaries were found.
func (f *FFmpeg) Available() error {
	return f.missing
}

// ProbeDuration returns the container duration of the file in seconds.
func (f *FFmpeg) ProbeDuration(ctx context.Context, path string) (float64, error) {
	if f.missing != nil {
		return 0, f.missing
	}

	ctx, cancel := context.WithTimeout(ctx, f.cfg.ProbeTimeout)
	defer cancel()

	out, err := f.run(ctx, f.ffprobe,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)
	if err != nil {
		return 0, err
	}

	return parseProbeDuration(out)
}

// Trim stream-copies the first maxSeconds of the file into a sibling file
// and returns its path.
func (f *FFmpeg) Trim(ctx context.Context, path string, maxSeconds float64) (string, error) {
	if f.missing != nil {
		return "", f.missing
	}

	ctx, cancel := context.WithTimeout(ctx, f.cfg.TrimTimeout)
	defer cancel()

	ext := filepath.Ext(path)
	outPath := strings.TrimSuffix(path, ext) + "_trimmed" + ext

	_, err := f.run(ctx, f.ffmpeg,
		"-y",
		"-i", path,
		"-t", formatSeconds(maxSeconds),
		"-c", "copy",
		outPath,
	)
	if err != nil {
		os.Remove(outPath)
		return "", err
	}
	return outPath, nil
}

// Concatenate stream-copies the inputs, in order, into outputPath using the
// concat demuxer. No re-encoding takes place.
func (f *FFmpeg) Concatenate(ctx context.Context, paths []string, outputPath string) error {
	if f.missing != nil {
		return f.missing
	}
	if len(paths) == 0 {
		return fmt.Errorf("nothing to concatenate")
	}

	ctx, cancel := context.WithTimeout(ctx, f.cfg.ConcatTimeout)
	defer cancel()

	listPath := outputPath + ".list.txt"
	if err := os.WriteFile(listPath, []byte(BuildConcatList(paths)), 0644); err != nil {
		return fmt.Errorf("write concat list: %w", err)
	}
	defer os.Remove(listPath)

	_, err := f.run(ctx, f.ffmpeg,
		"-y",
		"-f", "concat",
		"-safe", "0",
		"-i", listPath,
		"-c", "copy",
		outputPath,
	)
	if err != nil {
		os.Remove(outputPath)
		return err
	}
	return nil
}

// OverlayText burns the caption into the video. The text is rendered as a
// single subtitle cue spanning the whole clip; this re-encodes the video.
func (f *FFmpeg) OverlayText(ctx context.Context, inputPath, outputPath, text string, durationSeconds float64) error {
	if f.missing != nil {
		return f.missing
	}

	ctx, cancel := context.WithTimeout(ctx, f.cfg.OverlayTimeout)
	defer cancel()

	srtPath := outputPath + ".srt"
	if err := os.WriteFile(srtPath, []byte(BuildCaptionFile(text, durationSeconds)), 0644); err != nil {
		return fmt.Errorf("write caption file: %w", err)
	}
	defer os.Remove(srtPath)

	_, err := f.run(ctx, f.ffmpeg,
		"-y",
		"-i", inputPath,
		"-vf", "subtitles="+escapeFilterPath(srtPath),
		"-c:a", "copy",
		outputPath,
	)
	if err != nil {
		os.Remove(outputPath)
		return err
	}
	return nil
}

// run executes one subprocess, capturing a bounded tail of stderr.
func (f *FFmpeg) run(ctx context.Context, bin string, args ...string) (string, error) {
	start := time.Now()

	cmd := exec.CommandContext(ctx, bin, args...)

	var stdout bytes.Buffer
	var stderrBuf bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = io.Writer(&limitedWriter{w: &stderrBuf, limit: maxStderrBytes})

	err := cmd.Run()
	elapsed := time.Since(start)
	tool := filepath.Base(bin)

	if err != nil {
		exitCode := -1
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		}
		f.cfg.Logger.Warn("media tool command failed",
			"tool", tool,
			"exit_code", exitCode,
			"duration_ms", elapsed.Milliseconds(),
			"stderr_tail", tailString(stderrBuf.String(), 512),
		)
		return "", &ToolError{Tool: tool, ExitCode: exitCode, Stderr: tailString(stderrBuf.String(), 512)}
	}

	f.cfg.Logger.Debug("media tool command succeeded",
		"tool", tool,
		"duration_ms", elapsed.Milliseconds(),
	)
	return stdout.String(), nil
}

// BuildConcatList renders the file list consumed by the concat demuxer.
// Single quotes in paths are escaped per ffmpeg's quoting rules.
func BuildConcatList(paths []string) string {
	var b strings.Builder
	for _, p := range paths {
		b.WriteString("file '")
		b.WriteString(strings.ReplaceAll(p, "'", `'\''`))
		b.WriteString("'\n")
	}
	return b.String()
}

// BuildCaptionFile renders one SRT cue spanning [0, durationSeconds).
func BuildCaptionFile(text string, durationSeconds float64) string {
	return fmt.Sprintf("1\n%s --> %s\n%s\n", srtTimestamp(0), srtTimestamp(durationSeconds), text)
}

func srtTimestamp(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	whole := int(seconds)
	millis := int((seconds - float64(whole)) * 1000)
	h := whole / 3600
	m := (whole % 3600) / 60
	s := whole % 60
	return fmt.Sprintf("%02d:%02d:%02d,%03d", h, m, s, millis)
}

func parseProbeDuration(out string) (float64, error) {
	s := strings.TrimSpace(out)
	if s == "" || s == "N/A" {
		return 0, fmt.Errorf("no duration in probe output")
	}
	d, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("parse probe duration %q: %w", s, err)
	}
	return d, nil
}

func formatSeconds(seconds float64) string {
	return strconv.FormatFloat(seconds, 'f', 3, 64)
}

// escapeFilterPath escapes characters the ffmpeg filter parser treats
// specially in filenames.
func escapeFilterPath(path string) string {
	path = strings.ReplaceAll(path, `\`, `\\`)
	path = strings.ReplaceAll(path, `'`, `\'`)
	path = strings.ReplaceAll(path, `:`, `\:`)
	return path
}

func resolveBinary(preferred, name string) (string, error) {
	if preferred != "" {
		if p, err := exec.LookPath(preferred); err == nil {
			return p, nil
		}
		return "", fmt.Errorf("configured %s %q not found", name, preferred)
	}
	p, err := exec.LookPath(name)
	if err != nil {
		return "", fmt.Errorf("%s not found on PATH", name)
	}
	return p, nil
}

func tailString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return "..." + s[len(s)-maxLen:]
}

// limitedWriter is an io.Writer that keeps only the last `limit` bytes.
type limitedWriter struct {
	w     *bytes.Buffer
	limit int
}

func (lw *limitedWriter) Write(p []byte) (int, error) {
	n := len(p)
	lw.w.Write(p)
	if lw.w.Len() > lw.limit {
		// Keep only the tail
		b := lw.w.Bytes()
		lw.w.Reset()
		lw.w.Write(b[len(b)-lw.limit:])
	}
	return n, nil
}
