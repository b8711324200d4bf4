package lyrics

import (
	"math"
	"strings"
)

// Segment is one time-bounded slice of the planned video.
type Segment struct {
	Index int
	Start float64 // seconds, inclusive
	End   float64 // seconds, exclusive; always > Start
	Text  string
}

// Duration returns the segment's planned length in seconds.
func (s Segment) Duration() float64 {
	return s.End - s.Start
}

// PlanSegments converts timestamped lyric lines into a contiguous segment
// plan covering [0, totalDuration), where totalDuration is the last line's
// timestamp plus a tail allowance, clamped to hardCapSeconds.
//
// The walk is a single greedy forward scan: gaps wider than
// maxSegmentDuration are subdivided into equal instrumental sub-segments,
// and each lyric segment absorbs every subsequent line that starts before
// the segment ends. Lines past the hard cap are discarded.
func PlanSegments(lines []Line, maxSegmentDuration, hardCapSeconds float64) []Segment {
	if maxSegmentDuration <= 0 || hardCapSeconds <= 0 {
		return nil
	}

	if len(lines) == 0 {
		return []Segment{{
			Index: 0,
			Start: 0,
			End:   math.Min(10, hardCapSeconds),
			Text:  InstrumentalText,
		}}
	}

	const tailSeconds = 5
	total := math.Min(lines[len(lines)-1].Timestamp+tailSeconds, hardCapSeconds)

	var segs []Segment
	current := 0.0
	i := 0

	for i < len(lines) && current < total {
		line := lines[i]

		if gap := line.Timestamp - current; gap > maxSegmentDuration {
			n := int(math.Ceil(gap / maxSegmentDuration))
			sub := gap / float64(n)
			for k := 0; k < n && current < total; k++ {
				end := current + sub
				if k == n-1 {
					// Land exactly on the line's timestamp, not on an
					// accumulation of float steps.
					end = line.Timestamp
				}
				if end > total {
					end = total
				}
				segs = append(segs, Segment{Index: len(segs), Start: current, End: end, Text: InstrumentalText})
				current = end
			}
			if current >= total {
				break
			}
			current = line.Timestamp
		}

		end := current + maxSegmentDuration
		var texts []string
		if line.Text != "" {
			texts = append(texts, line.Text)
		}
		j := i + 1
		for j < len(lines) && lines[j].Timestamp < end {
			if lines[j].Text != "" {
				texts = append(texts, lines[j].Text)
			}
			j++
		}
		if end > total {
			end = total
		}

		text := strings.TrimSpace(strings.Join(texts, " "))
		if text == "" {
			text = InstrumentalText
		}

		segs = append(segs, Segment{Index: len(segs), Start: current, End: end, Text: text})
		current = end
		i = j
	}

	return segs
}
