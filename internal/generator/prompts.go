package generator

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/verseclip/verseclip/internal/lyrics"
)

const lyricContextChars = 200

// imagePrompt builds the illustration prompt for one segment: song identity,
// overall mood, a slice of the full lyrics for context, and the segment's own
// lines as the scene.
func imagePrompt(song songContext, segmentText string) string {
	context := song.FullText
	if len(context) > lyricContextChars {
		// Back up to a rune boundary so multi-byte lyrics are not mangled.
		cut := lyricContextChars
		for cut > 0 && !utf8.RuneStart(context[cut]) {
			cut--
		}
		context = context[:cut]
	}
	scene := segmentText
	if scene == lyrics.InstrumentalText {
		scene = "an instrumental passage, no vocals"
	}
	return fmt.Sprintf(
		"Song: %s. Mood/Context: %s. Lyrics excerpt: %s... "+
			"Current scene: %s. "+
			"Style: hand-drawn cartoon, whimsical, expressive, rich colors. "+
			"No text or lettering in the image.",
		song.Query, song.Mood, strings.TrimSpace(context), scene,
	)
}

// motionPrompt describes how the segment's illustration should animate.
func motionPrompt(segmentText string) string {
	if segmentText == lyrics.InstrumentalText {
		return "Subtle ambient animation, slow drifting camera, atmospheric cartoon style, minimal motion"
	}
	return fmt.Sprintf("Subtle animation of: %s. Cartoon style, gentle motion, atmospheric", segmentText)
}
