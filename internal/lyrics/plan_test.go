package lyrics

import (
	"math"
	"testing"
)

func TestPlanSegments_GapFillAndAggregation(t *testing.T) {
	lines := []Line{
		{Timestamp: 0, Text: "Hello"},
		{Timestamp: 12, Text: "World"},
	}

	segs := PlanSegments(lines, 5, 40)
	if len(segs) != 4 {
		t.Fatalf("PlanSegments() returned %d segments, want 4: %+v", len(segs), segs)
	}

	want := []Segment{
		{Index: 0, Start: 0, End: 5, Text: "Hello"},
		{Index: 1, Start: 5, End: 8.5, Text: InstrumentalText},
		{Index: 2, Start: 8.5, End: 12, Text: InstrumentalText},
		{Index: 3, Start: 12, End: 17, Text: "World"},
	}
	for i, w := range want {
		got := segs[i]
		if got.Index != w.Index || got.Text != w.Text ||
			math.Abs(got.Start-w.Start) > 1e-9 || math.Abs(got.End-w.End) > 1e-9 {
			t.Errorf("segs[%d] = %+v, want %+v", i, got, w)
		}
	}
}

func TestPlanSegments_AggregatesCloseLines(t *testing.T) {
	lines := []Line{
		{Timestamp: 0, Text: "one"},
		{Timestamp: 2, Text: "two"},
		{Timestamp: 4, Text: "three"},
		{Timestamp: 11, Text: "four"},
	}

	segs := PlanSegments(lines, 10, 60)
	if len(segs) != 2 {
		t.Fatalf("PlanSegments() returned %d segments, want 2: %+v", len(segs), segs)
	}
	if segs[0].Text != "one two three" {
		t.Errorf("segs[0].Text = %q, want %q", segs[0].Text, "one two three")
	}
	if segs[1].Text != "four" {
		t.Errorf("segs[1].Text = %q, want %q", segs[1].Text, "four")
	}
}

func TestPlanSegments_EmptyLines(t *testing.T) {
	segs := PlanSegments(nil, 10, 60)
	if len(segs) != 1 {
		t.Fatalf("PlanSegments() returned %d segments, want 1", len(segs))
	}
	if segs[0].Start != 0 || segs[0].End != 10 || segs[0].Text != InstrumentalText {
		t.Errorf("segs[0] = %+v, want instrumental [0,10)", segs[0])
	}

	// Cap below the default placeholder length clamps it.
	segs = PlanSegments(nil, 10, 4)
	if segs[0].End != 4 {
		t.Errorf("segs[0].End = %v, want 4", segs[0].End)
	}
}

func TestPlanSegments_HardCapDiscardsLateLines(t *testing.T) {
	lines := []Line{
		{Timestamp: 0, Text: "early"},
		{Timestamp: 50, Text: "late"},
	}

	segs := PlanSegments(lines, 5, 40)
	for _, s := range segs {
		if s.Text == "late" {
			t.Fatalf("line past the hard cap appeared in the plan: %+v", s)
		}
		if s.End > 40+1e-9 {
			t.Errorf("segment end %v exceeds hard cap", s.End)
		}
	}
}

func TestPlanSegments_Invariants(t *testing.T) {
	lines := []Line{
		{Timestamp: 3, Text: "a"},
		{Timestamp: 9, Text: "b"},
		{Timestamp: 30, Text: "c"},
		{Timestamp: 31, Text: "d"},
		{Timestamp: 55, Text: "e"},
	}
	const maxDur, hardCap = 7.0, 45.0

	segs := PlanSegments(lines, maxDur, hardCap)
	if len(segs) == 0 {
		t.Fatal("PlanSegments() returned no segments")
	}

	if segs[0].Start != 0 {
		t.Errorf("first segment starts at %v, want 0", segs[0].Start)
	}
	for i, s := range segs {
		if s.Index != i {
			t.Errorf("segs[%d].Index = %d", i, s.Index)
		}
		if s.End <= s.Start {
			t.Errorf("segs[%d] has non-positive duration: %+v", i, s)
		}
		if s.Duration() > maxDur+1e-9 {
			t.Errorf("segs[%d] duration %v exceeds max %v", i, s.Duration(), maxDur)
		}
		if i > 0 && math.Abs(s.Start-segs[i-1].End) > 1e-9 {
			t.Errorf("segs[%d] not contiguous: prev end %v, start %v", i, segs[i-1].End, s.Start)
		}
	}
	if last := segs[len(segs)-1]; last.End > hardCap+1e-9 {
		t.Errorf("plan exceeds hard cap: last end %v", last.End)
	}
}

func TestPlanSegments_InvalidParams(t *testing.T) {
	if segs := PlanSegments([]Line{{Timestamp: 0, Text: "x"}}, 0, 60); segs != nil {
		t.Errorf("PlanSegments() with zero max duration = %+v, want nil", segs)
	}
	if segs := PlanSegments([]Line{{Timestamp: 0, Text: "x"}}, 10, 0); segs != nil {
		t.Errorf("PlanSegments() with zero cap = %+v, want nil", segs)
	}
}
