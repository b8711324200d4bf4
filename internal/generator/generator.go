// Package generator drives a video job from raw lyrics to a stitched video:
// segment planning, bounded-concurrency image and video generation against
// external providers, duration budgeting and final assembly.
package generator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/verseclip/verseclip/internal/jobs"
	"github.com/verseclip/verseclip/internal/logging"
	"github.com/verseclip/verseclip/internal/lyrics"
)

// LyricsProvider finds lyrics for a song query.
type LyricsProvider interface {
	Search(ctx context.Context, query string) (string, error)
}

// ImageService generates segment illustrations and mood hints.
type ImageService interface {
	Generate(ctx context.Context, prompt, outputPath string) error
	AnalyzeMood(ctx context.Context, lyricsText string) string
}

// StreamSession is one open generation session with the video provider.
type StreamSession interface {
	Start(ctx context.Context, prompt, imagePath string) (string, error)
	End(ctx context.Context) error
	Recording(ctx context.Context, streamID string) (string, error)
	Download(ctx context.Context, url, outputPath string) error
	Close() error
}

// StreamProvider opens generation sessions.
type StreamProvider interface {
	Connect(ctx context.Context) (StreamSession, error)
}

// MediaTool is the external ffmpeg/ffprobe surface used for assembly.
type MediaTool interface {
	ProbeDuration(ctx context.Context, path string) (float64, error)
	Trim(ctx context.Context, path string, maxSeconds float64) (string, error)
	Concatenate(ctx context.Context, paths []string, outputPath string) error
	OverlayText(ctx context.Context, inputPath, outputPath, text string, durationSeconds float64) error
}

// Config holds the generator's tunables.
type Config struct {
	MediaDir        string
	SegmentSeconds  float64 // maximum planned duration of one segment
	HardCapSeconds  float64 // hard cap on the stitched video's total duration
	Concurrency     int     // maximum in-flight segment video generations
	CaptionsEnabled bool

	ImageMaxAttempts      int           // attempts per image on throttling
	ImageRetryBackoff     time.Duration // initial backoff, doubles per attempt
	RecordingPollAttempts int
	RecordingPollInterval time.Duration
}

func (c *Config) applyDefaults() {
	if c.SegmentSeconds == 0 {
		c.SegmentSeconds = 10
	}
	if c.HardCapSeconds == 0 {
		c.HardCapSeconds = 60
	}
	if c.Concurrency == 0 {
		c.Concurrency = 3
	}
	if c.ImageMaxAttempts == 0 {
		c.ImageMaxAttempts = 3
	}
	if c.ImageRetryBackoff == 0 {
		c.ImageRetryBackoff = 20 * time.Second
	}
	if c.RecordingPollAttempts == 0 {
		c.RecordingPollAttempts = 10
	}
	if c.RecordingPollInterval == 0 {
		c.RecordingPollInterval = 3 * time.Second
	}
}

// Generator executes video jobs. It implements jobs.Executor.
type Generator struct {
	repo    jobs.Repository
	lyrics  LyricsProvider
	images  ImageService
	streams StreamProvider
	media   MediaTool
	cfg     Config
	logger  *slog.Logger
}

func New(repo jobs.Repository, lyricsProvider LyricsProvider, imageSvc ImageService,
	streamProvider StreamProvider, mediaTool MediaTool, cfg Config, logger *slog.Logger) *Generator {
	cfg.applyDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{
		repo:    repo,
		lyrics:  lyricsProvider,
		images:  imageSvc,
		streams: streamProvider,
		media:   mediaTool,
		cfg:     cfg,
		logger:  logging.WithComponent(logger, "generator"),
	}
}

// songContext carries the job-wide inputs every segment prompt draws on.
type songContext struct {
	Query    string
	FullText string
	Mood     string
}

// Run drives one claimed job to a terminal state. Per-segment failures are
// isolated; the job fails only when no lyrics exist, no segment survives
// generation, or stitching itself fails.
func (g *Generator) Run(ctx context.Context, job *jobs.VideoJob) {
	log := logging.WithJobID(g.logger, job.ID)

	if g.cancelIfRequested(ctx, job.ID, log) {
		return
	}

	g.setStage(ctx, job.ID, 5, "Fetching lyrics...")

	query := strings.TrimSpace(job.SongTitle + " " + job.Artist)
	raw, err := g.lyrics.Search(ctx, query)
	if err != nil {
		if errors.Is(err, lyrics.ErrNotFound) {
			g.fail(ctx, job.ID, log, "Lyrics not found.")
		} else {
			g.fail(ctx, job.ID, log, fmt.Sprintf("Lyrics search failed: %v", err))
		}
		return
	}

	g.setStage(ctx, job.ID, 10, "Analyzing mood...")

	mood := g.images.AnalyzeMood(ctx, raw)
	log.Info("lyrics fetched", "timed", lyrics.IsTimed(raw), "mood", mood)

	if g.cancelIfRequested(ctx, job.ID, log) {
		return
	}

	g.setStage(ctx, job.ID, 15, "Planning segments...")

	lines := lyrics.ParseTimedLyrics(raw)
	fullText := raw
	if len(lines) > 0 {
		fullText = lyrics.JoinText(lines)
	}
	plan := lyrics.PlanSegments(lines, g.cfg.SegmentSeconds, g.cfg.HardCapSeconds)
	log.Info("segment plan ready", "segments", len(plan), "lines", len(lines))

	song := songContext{Query: query, FullText: fullText, Mood: mood}
	outcome := g.generateSegments(ctx, job.ID, log, plan, song)
	if outcome.cancelled {
		g.markCancelled(ctx, job.ID, log)
		return
	}

	videos := outcome.videosInIndexOrder()
	if len(videos) == 0 {
		g.fail(ctx, job.ID, log, "No video segments were generated.")
		return
	}

	if g.cancelIfRequested(ctx, job.ID, log) {
		return
	}

	g.setStage(ctx, job.ID, 80, "Stitching videos...")

	finalPath, err := g.assemble(ctx, job.ID, videos)
	if err != nil {
		g.fail(ctx, job.ID, log, fmt.Sprintf("Stitching failed: %v", err))
		return
	}

	if err := g.repo.SetVideoFile(ctx, job.ID, finalPath); err != nil {
		log.Error("failed to record final video path", "error", err)
	}
	g.repo.UpdateProgress(ctx, job.ID, 100)
	g.repo.UpdateStatus(ctx, job.ID, jobs.StatusCompleted, "Done.")
	log.Info("job completed", "final_video", logging.SanitizePath(finalPath))
}

// cancelIfRequested reads the cancellation flag fresh from the store and,
// when set, moves the job to cancelled. Called immediately before every
// major stage so a cancel racing a worker write is never lost.
func (g *Generator) cancelIfRequested(ctx context.Context, jobID string, log *slog.Logger) bool {
	cancelled, err := g.repo.IsCancelRequested(ctx, jobID)
	if err != nil {
		log.Error("failed to read cancellation flag", "error", err)
		return false
	}
	if !cancelled {
		return false
	}
	g.markCancelled(ctx, jobID, log)
	return true
}

func (g *Generator) isCancelRequested(ctx context.Context, jobID string) bool {
	cancelled, err := g.repo.IsCancelRequested(ctx, jobID)
	return err == nil && cancelled
}

func (g *Generator) markCancelled(ctx context.Context, jobID string, log *slog.Logger) {
	if err := g.repo.UpdateStatus(ctx, jobID, jobs.StatusCancelled, "Job cancelled by user."); err != nil {
		log.Error("failed to mark job cancelled", "error", err)
		return
	}
	log.Info("job cancelled")
}

func (g *Generator) fail(ctx context.Context, jobID string, log *slog.Logger, message string) {
	if err := g.repo.UpdateStatus(ctx, jobID, jobs.StatusFailed, message); err != nil {
		log.Error("failed to mark job failed", "error", err)
		return
	}
	log.Warn("job failed", "message", message)
}

func (g *Generator) setStage(ctx context.Context, jobID string, progress int, message string) {
	g.repo.UpdateProgress(ctx, jobID, progress)
	g.repo.UpdateStatus(ctx, jobID, jobs.StatusProcessing, message)
}

// Artifact path conventions. Resume-on-restart depends on these names, so
// they are fixed per job and segment index.

func (g *Generator) segmentImagePath(jobID string, index int) string {
	return filepath.Join(g.cfg.MediaDir, fmt.Sprintf("%s_segment_%d_image.png", jobID, index))
}

func (g *Generator) segmentRawPath(jobID string, index int) string {
	return filepath.Join(g.cfg.MediaDir, fmt.Sprintf("%s_segment_%d_raw.mp4", jobID, index))
}

func (g *Generator) segmentVideoPath(jobID string, index int) string {
	return filepath.Join(g.cfg.MediaDir, fmt.Sprintf("%s_segment_%d_video.mp4", jobID, index))
}

func (g *Generator) finalVideoPath(jobID string) string {
	return filepath.Join(g.cfg.MediaDir, fmt.Sprintf("%s_final.mp4", jobID))
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// sleepCtx waits for d or until the context is done.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
