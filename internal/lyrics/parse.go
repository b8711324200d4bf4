package lyrics

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// InstrumentalText is the placeholder carried by segments with no lyric
// coverage.
const InstrumentalText = "(Instrumental / Music)"

// Line is one timestamped lyric line.
type Line struct {
	Timestamp float64 // seconds from song start
	Text      string
}

// Matches LRC tags of the form [mm:ss] or [mm:ss.xx] followed by text.
var lrcPattern = regexp.MustCompile(`^\[(\d+):(\d+(?:\.\d+)?)\](.*)$`)

// ParseTimedLyrics parses LRC-style lyric text into timestamped lines.
// Lines without a timestamp tag are ignored. The result is sorted by
// timestamp ascending; lines sharing a timestamp keep their original order.
// An empty result means the lyrics are untimed, not that parsing failed.
func ParseTimedLyrics(raw string) []Line {
	var lines []Line
	for _, l := range strings.Split(raw, "\n") {
		m := lrcPattern.FindStringSubmatch(strings.TrimSpace(l))
		if m == nil {
			continue
		}
		minutes, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		seconds, err := strconv.ParseFloat(m[2], 64)
		if err != nil {
			continue
		}
		lines = append(lines, Line{
			Timestamp: float64(minutes)*60 + seconds,
			Text:      strings.TrimSpace(m[3]),
		})
	}

	sort.SliceStable(lines, func(i, j int) bool {
		return lines[i].Timestamp < lines[j].Timestamp
	})
	return lines
}

// IsTimed reports whether raw lyric text contains at least one LRC tag.
// Callers use this to distinguish synced lyrics from plain text.
func IsTimed(raw string) bool {
	for _, l := range strings.Split(raw, "\n") {
		if lrcPattern.MatchString(strings.TrimSpace(l)) {
			return true
		}
	}
	return false
}

// JoinText returns the space-joined text of all lines, used as the full-song
// context for prompt construction.
func JoinText(lines []Line) string {
	parts := make([]string, 0, len(lines))
	for _, l := range lines {
		if l.Text != "" {
			parts = append(parts, l.Text)
		}
	}
	return strings.Join(parts, " ")
}
