package generator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/verseclip/verseclip/internal/imagegen"
	"github.com/verseclip/verseclip/internal/jobs"
	"github.com/verseclip/verseclip/internal/logging"
	"github.com/verseclip/verseclip/internal/lyrics"
)

// pipelineOutcome is the result of the segment generation phases.
type pipelineOutcome struct {
	cancelled bool
	videos    map[int]string // segment index -> finished video path
}

func (o pipelineOutcome) videosInIndexOrder() []string {
	indexes := make([]int, 0, len(o.videos))
	for i := range o.videos {
		indexes = append(indexes, i)
	}
	sort.Ints(indexes)
	paths := make([]string, 0, len(indexes))
	for _, i := range indexes {
		paths = append(paths, o.videos[i])
	}
	return paths
}

// artifactSet owns the authoritative segment list while generation is in
// flight and publishes snapshots to the store at each state change.
type artifactSet struct {
	mu    sync.Mutex
	repo  jobs.Repository
	jobID string
	segs  []jobs.Segment
	log   *slog.Logger
}

func newArtifactSet(ctx context.Context, repo jobs.Repository, jobID string, plan []lyrics.Segment, log *slog.Logger) *artifactSet {
	segs := make([]jobs.Segment, len(plan))
	for i, s := range plan {
		segs[i] = jobs.Segment{Index: s.Index, Lyrics: s.Text, Status: jobs.SegmentPending}
	}
	a := &artifactSet{repo: repo, jobID: jobID, segs: segs, log: log}
	a.mu.Lock()
	a.publishLocked(ctx)
	a.mu.Unlock()
	return a
}

func (a *artifactSet) update(ctx context.Context, index int, fn func(*jobs.Segment)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for i := range a.segs {
		if a.segs[i].Index == index {
			fn(&a.segs[i])
			break
		}
	}
	a.publishLocked(ctx)
}

// publishLocked persists the segment list. Callers hold a.mu across the
// store write so concurrent updates cannot land their snapshots out of
// order and leave a stale one as the final record.
func (a *artifactSet) publishLocked(ctx context.Context) {
	if err := a.repo.UpdateSegments(ctx, a.jobID, a.segs); err != nil {
		a.log.Error("failed to publish segment state", "error", err)
	}
}

type videoTask struct {
	seg       lyrics.Segment
	imagePath string
}

// generateSegments runs the two generation phases: images sequentially (the
// image provider throttles aggressively), then segment videos with at most
// cfg.Concurrency in flight. Existing artifacts are reused instead of being
// regenerated, which makes a requeued job resume where it left off.
func (g *Generator) generateSegments(ctx context.Context, jobID string, log *slog.Logger, plan []lyrics.Segment, song songContext) pipelineOutcome {
	out := pipelineOutcome{videos: make(map[int]string)}
	if len(plan) == 0 {
		return out
	}

	arts := newArtifactSet(ctx, g.repo, jobID, plan, log)

	g.setStage(ctx, jobID, 20, "Generating images...")

	var tasks []videoTask
	for i, seg := range plan {
		// Fresh read before each segment so a cancel lands between
		// segments, never mid-flight.
		if g.isCancelRequested(ctx, jobID) {
			out.cancelled = true
			return out
		}

		imagePath := g.segmentImagePath(jobID, seg.Index)
		videoPath := g.segmentVideoPath(jobID, seg.Index)
		rawPath := g.segmentRawPath(jobID, seg.Index)

		switch {
		case fileExists(videoPath):
			log.Info("segment video exists, reusing", "segment", seg.Index)
			arts.update(ctx, seg.Index, func(s *jobs.Segment) {
				s.Status = jobs.SegmentVideoReady
				s.Video = videoPath
				if fileExists(imagePath) {
					s.Image = imagePath
				}
			})
			out.videos[seg.Index] = videoPath

		case fileExists(rawPath):
			// Generation finished earlier; only the finishing step remains.
			log.Info("raw segment video exists, skipping generation", "segment", seg.Index)
			arts.update(ctx, seg.Index, func(s *jobs.Segment) {
				s.Status = jobs.SegmentImageReady
				if fileExists(imagePath) {
					s.Image = imagePath
				}
			})
			tasks = append(tasks, videoTask{seg: seg, imagePath: imagePath})

		default:
			if !fileExists(imagePath) {
				arts.update(ctx, seg.Index, func(s *jobs.Segment) {
					s.Status = jobs.SegmentGeneratingImage
				})
				prompt := imagePrompt(song, seg.Text)
				if err := g.generateImage(ctx, prompt, imagePath, logging.WithSegment(log, seg.Index)); err != nil {
					log.Warn("image generation failed, skipping segment",
						"segment", seg.Index, "error", err)
					arts.update(ctx, seg.Index, func(s *jobs.Segment) {
						s.Status = jobs.SegmentFailed
					})
					continue
				}
			} else {
				log.Info("segment image exists, reusing", "segment", seg.Index)
			}
			arts.update(ctx, seg.Index, func(s *jobs.Segment) {
				s.Status = jobs.SegmentImageReady
				s.Image = imagePath
			})
			tasks = append(tasks, videoTask{seg: seg, imagePath: imagePath})
		}

		// 20 -> 50 across the image phase.
		g.repo.UpdateProgress(ctx, jobID, 20+(i+1)*30/len(plan))
	}

	if len(tasks) == 0 {
		return out
	}
	if g.isCancelRequested(ctx, jobID) {
		out.cancelled = true
		return out
	}

	g.setStage(ctx, jobID, 50, "Generating videos (this may take a while)...")

	var (
		mu        sync.Mutex
		completed int
		cancelled atomic.Bool
	)
	sem := make(chan struct{}, g.cfg.Concurrency)
	grp, gctx := errgroup.WithContext(ctx)

	for _, t := range tasks {
		t := t
		grp.Go(func() error {
			select {
			case sem <- struct{}{}:
			case <-gctx.Done():
				return gctx.Err()
			}
			defer func() { <-sem }()

			// Admission checkpoint: in-flight segments drain, but no new
			// segment starts after a cancel.
			if cancelled.Load() || g.isCancelRequested(gctx, jobID) {
				cancelled.Store(true)
				return nil
			}

			segLog := logging.WithSegment(log, t.seg.Index)
			arts.update(gctx, t.seg.Index, func(s *jobs.Segment) {
				s.Status = jobs.SegmentGeneratingVideo
			})

			videoPath, err := g.generateSegmentVideo(gctx, jobID, t.seg, t.imagePath, segLog)
			if err != nil {
				// One segment failing never takes down its siblings.
				segLog.Warn("segment video generation failed", "error", err)
				arts.update(gctx, t.seg.Index, func(s *jobs.Segment) {
					s.Status = jobs.SegmentFailed
				})
				return nil
			}

			arts.update(gctx, t.seg.Index, func(s *jobs.Segment) {
				s.Status = jobs.SegmentVideoReady
				s.Video = videoPath
			})

			mu.Lock()
			out.videos[t.seg.Index] = videoPath
			completed++
			// 50 -> 75 across the video phase.
			progress := 50 + completed*25/len(tasks)
			mu.Unlock()
			g.repo.UpdateProgress(gctx, jobID, progress)
			return nil
		})
	}

	if err := grp.Wait(); err != nil {
		log.Warn("video generation interrupted", "error", err)
	}
	if cancelled.Load() {
		out.cancelled = true
	}
	return out
}

// generateImage retries throttled requests with a doubling backoff. Any other
// failure is permanent for this segment.
func (g *Generator) generateImage(ctx context.Context, prompt, outputPath string, log *slog.Logger) error {
	backoff := g.cfg.ImageRetryBackoff
	var lastErr error
	for attempt := 1; attempt <= g.cfg.ImageMaxAttempts; attempt++ {
		err := g.images.Generate(ctx, prompt, outputPath)
		if err == nil {
			return nil
		}
		lastErr = err

		var rle *imagegen.RateLimitError
		if !errors.As(err, &rle) {
			return err
		}
		if attempt == g.cfg.ImageMaxAttempts {
			break
		}
		log.Warn("image generation throttled, backing off",
			"attempt", attempt, "wait", backoff)
		if err := sleepCtx(ctx, backoff); err != nil {
			return err
		}
		backoff *= 2
	}
	return fmt.Errorf("image generation exhausted %d attempts: %w", g.cfg.ImageMaxAttempts, lastErr)
}

// generateSegmentVideo produces the finished per-segment clip: stream the
// animation from the provider into the raw artifact, then burn the caption
// (or rename when captions are off or overlay fails).
func (g *Generator) generateSegmentVideo(ctx context.Context, jobID string, seg lyrics.Segment, imagePath string, log *slog.Logger) (string, error) {
	rawPath := g.segmentRawPath(jobID, seg.Index)
	videoPath := g.segmentVideoPath(jobID, seg.Index)

	if !fileExists(rawPath) {
		if err := g.streamSegment(ctx, seg, imagePath, rawPath, log); err != nil {
			return "", err
		}
	}

	return g.finishSegment(ctx, seg, rawPath, videoPath, log)
}

// streamSegment runs one full provider session: start the stream seeded with
// the segment image, hold it open for the segment's duration, end it, poll
// until the recording is ready, download.
func (g *Generator) streamSegment(ctx context.Context, seg lyrics.Segment, imagePath, rawPath string, log *slog.Logger) error {
	session, err := g.streams.Connect(ctx)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer session.Close()

	streamID, err := session.Start(ctx, motionPrompt(seg.Text), imagePath)
	if err != nil {
		return err
	}

	hold := time.Duration(seg.Duration() * float64(time.Second))
	log.Info("stream open, holding for segment duration", "stream_id", streamID, "hold", hold)
	if err := sleepCtx(ctx, hold); err != nil {
		return err
	}

	if err := session.End(ctx); err != nil {
		return err
	}

	var url string
	var lastErr error
	for attempt := 1; attempt <= g.cfg.RecordingPollAttempts; attempt++ {
		if err := sleepCtx(ctx, g.cfg.RecordingPollInterval); err != nil {
			return err
		}
		url, lastErr = session.Recording(ctx, streamID)
		if lastErr == nil && url != "" {
			break
		}
		url = ""
		log.Debug("recording not ready", "attempt", attempt, "error", lastErr)
	}
	if url == "" {
		return fmt.Errorf("recording not available after %d attempts: %w",
			g.cfg.RecordingPollAttempts, lastErr)
	}

	return session.Download(ctx, url, rawPath)
}

// finishSegment turns the raw clip into the final per-segment artifact.
// Caption overlay is best-effort: when it fails the uncaptioned clip is used.
func (g *Generator) finishSegment(ctx context.Context, seg lyrics.Segment, rawPath, videoPath string, log *slog.Logger) (string, error) {
	if g.cfg.CaptionsEnabled && seg.Text != lyrics.InstrumentalText {
		err := g.media.OverlayText(ctx, rawPath, videoPath, seg.Text, seg.Duration())
		if err == nil {
			os.Remove(rawPath)
			return videoPath, nil
		}
		log.Warn("caption overlay failed, using uncaptioned clip", "error", err)
	}
	if err := os.Rename(rawPath, videoPath); err != nil {
		return "", fmt.Errorf("finalize segment: %w", err)
	}
	return videoPath, nil
}
