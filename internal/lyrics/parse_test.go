package lyrics

import "testing"

func TestParseTimedLyrics(t *testing.T) {
	raw := "[00:12.50]Hello darkness\n[00:05]My old friend\nnot a timed line\n[01:02.25]I've come to talk\n"

	lines := ParseTimedLyrics(raw)
	if len(lines) != 3 {
		t.Fatalf("ParseTimedLyrics() returned %d lines, want 3", len(lines))
	}

	// Sorted by timestamp ascending.
	if lines[0].Timestamp != 5 || lines[0].Text != "My old friend" {
		t.Errorf("lines[0] = %+v, want {5 My old friend}", lines[0])
	}
	if lines[1].Timestamp != 12.5 {
		t.Errorf("lines[1].Timestamp = %v, want 12.5", lines[1].Timestamp)
	}
	if lines[2].Timestamp != 62.25 {
		t.Errorf("lines[2].Timestamp = %v, want 62.25", lines[2].Timestamp)
	}
}

func TestParseTimedLyrics_Untimed(t *testing.T) {
	lines := ParseTimedLyrics("just some plain\nlyrics text\n")
	if len(lines) != 0 {
		t.Errorf("ParseTimedLyrics() returned %d lines for untimed text, want 0", len(lines))
	}
}

func TestParseTimedLyrics_EmptyLineText(t *testing.T) {
	lines := ParseTimedLyrics("[00:10]\n[00:15]   \n")
	if len(lines) != 2 {
		t.Fatalf("ParseTimedLyrics() returned %d lines, want 2", len(lines))
	}
	for _, l := range lines {
		if l.Text != "" {
			t.Errorf("line text = %q, want empty", l.Text)
		}
	}
}

func TestIsTimed(t *testing.T) {
	if !IsTimed("[00:10.00]some line") {
		t.Error("IsTimed() = false for LRC text, want true")
	}
	if IsTimed("plain lyrics\nwith no tags") {
		t.Error("IsTimed() = true for plain text, want false")
	}
}

func TestJoinText(t *testing.T) {
	lines := []Line{
		{Timestamp: 0, Text: "one"},
		{Timestamp: 5, Text: ""},
		{Timestamp: 10, Text: "two"},
	}
	if got := JoinText(lines); got != "one two" {
		t.Errorf("JoinText() = %q, want %q", got, "one two")
	}
}
