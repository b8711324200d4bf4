package generator

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/verseclip/verseclip/internal/logging"
)

// assemble concatenates the ordered segment clips into the job's final video,
// enforcing the hard duration cap first.
func (g *Generator) assemble(ctx context.Context, jobID string, orderedPaths []string) (string, error) {
	include := g.selectWithinBudget(ctx, orderedPaths)
	if len(include) == 0 {
		return "", fmt.Errorf("no segments fit within the duration cap")
	}

	finalPath := g.finalVideoPath(jobID)
	if err := g.media.Concatenate(ctx, include, finalPath); err != nil {
		return "", fmt.Errorf("concatenate segments: %w", err)
	}
	return finalPath, nil
}

// selectWithinBudget probes each clip in index order and keeps a running
// duration total against the hard cap. The clip that crosses the cap is
// trimmed to the remaining budget; everything after it is dropped. A clip
// whose duration cannot be probed is included without budget accounting
// rather than discarded.
func (g *Generator) selectWithinBudget(ctx context.Context, paths []string) []string {
	var include []string
	total := 0.0

	for _, p := range paths {
		d, err := g.media.ProbeDuration(ctx, p)
		if err != nil {
			g.logger.Warn("duration probe failed, including clip unbudgeted",
				"clip", filepath.Base(p), "error", err)
			include = append(include, p)
			continue
		}

		remaining := g.cfg.HardCapSeconds - total
		if d > remaining {
			trimmed, err := g.media.Trim(ctx, p, remaining)
			if err != nil {
				g.logger.Warn("trim failed, dropping clip",
					"clip", filepath.Base(p), "error", err)
				continue
			}
			g.logger.Info("clip trimmed to fit duration cap",
				"clip", logging.SanitizePath(p), "seconds", remaining)
			include = append(include, trimmed)
			total = g.cfg.HardCapSeconds
			break
		}

		include = append(include, p)
		total += d
		if total >= g.cfg.HardCapSeconds {
			break
		}
	}
	return include
}
