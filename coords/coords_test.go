package coords_test

import (
	"math"
	"testing"

	"github.com/vsariola/tahti"
	"github.com/vsariola/tahti/coords"
)

var _ coords.Store = (*tahti.Timeline)(nil)

func testTimeline() *tahti.Timeline {
	ret := tahti.NewTimeline(120)
	ret.TempoRegions = []tahti.TempoRegion{
		{StartStep: 0, EndStep: 32, BPM: 120},
		{StartStep: 32, BPM: 60},
	}
	ret.SignatureRegions = []tahti.SignatureRegion{
		{StartStep: 0, EndStep: 64, TimeSignature: tahti.TimeSignature{Numerator: 4, Denominator: 4}},
		{StartStep: 64, TimeSignature: tahti.TimeSignature{Numerator: 3, Denominator: 4}},
	}
	return &ret
}

func TestPixelRoundTrip(t *testing.T) {
	c := coords.New(testTimeline(), 24)
	for _, zoom := range []float64{0.25, 1, 1.5, 4} {
		for step := 0.0; step < 100; step += 0.75 {
			px := c.StepToPixel(step, zoom)
			if got := c.PixelToStep(px, zoom); math.Abs(got-step) > 1e-9 {
				t.Fatalf("PixelToStep(StepToPixel(%v)) = %v at zoom %v, expected the original step", step, got, zoom)
			}
		}
	}
	if got := c.StepToPixel(10, 2); got != 480 {
		t.Fatalf("StepToPixel(10, 2) = %v, expected 480", got)
	}
	if got := c.PixelToStep(100, 0); got != 0 {
		t.Fatalf("PixelToStep at zoom 0 = %v, expected 0", got)
	}
}

func TestPixelPositions(t *testing.T) {
	c := coords.New(testTimeline(), 24)
	steps := []float64{0, 1, 2.5, 16}
	got := c.PixelPositions(steps, 2, nil)
	if len(got) != len(steps) {
		t.Fatalf("PixelPositions returned %v values, expected %v", len(got), len(steps))
	}
	for i, s := range steps {
		if want := c.StepToPixel(s, 2); got[i] != want {
			t.Fatalf("PixelPositions[%v] = %v, expected %v", i, got[i], want)
		}
	}
	if got := c.PixelPositions(nil, 2, nil); len(got) != 0 {
		t.Fatalf("PixelPositions of no steps returned %v values", len(got))
	}
}

func TestMsRoundTrip(t *testing.T) {
	timeline := testTimeline()
	c := coords.New(timeline, 24)
	if got := c.StepToMs(16); got != 2000 {
		t.Fatalf("StepToMs(16) = %v, expected 2000", got)
	}
	for step := 0.0; step < 100; step += 0.25 {
		ms := c.StepToMs(step)
		if want := timeline.StepToMs(step); math.Abs(ms-want) > 1e-9 {
			t.Fatalf("StepToMs(%v) = %v, expected %v as computed without the cache", step, ms, want)
		}
		if got := c.MsToStep(ms); math.Abs(got-step) > 1e-6 {
			t.Fatalf("MsToStep(StepToMs(%v)) = %v, expected the original step", step, got)
		}
	}
}

func TestInvalidate(t *testing.T) {
	timeline := testTimeline()
	c := coords.New(timeline, 24)
	if got := c.StepToMs(16); got != 2000 {
		t.Fatalf("StepToMs(16) = %v, expected 2000", got)
	}
	timeline.TempoRegions = []tahti.TempoRegion{{BPM: 60}}
	c.Invalidate()
	if got := c.StepToMs(16); got != 4000 {
		t.Fatalf("StepToMs(16) = %v after the tempo edit, expected 4000", got)
	}
}

func TestGridSnapPositions(t *testing.T) {
	c := coords.New(testTimeline(), 24)
	got := c.GridSnapPositions(3, 17, 4)
	want := []float64{4, 8, 12, 16}
	assertPositions(t, "GridSnapPositions(3, 17, 4)", got, want)
	got = c.GridSnapPositions(-5, 4, 2)
	assertPositions(t, "GridSnapPositions(-5, 4, 2)", got, []float64{0, 2, 4})
	if got := c.GridSnapPositions(0, 10, 0); got != nil {
		t.Fatalf("GridSnapPositions with zero snap = %v, expected none", got)
	}
}

func TestBarLinePositions(t *testing.T) {
	c := coords.New(testTimeline(), 24)
	got := c.BarLinePositions(0, 80)
	want := []float64{0, 16, 32, 48, 64, 76}
	assertPositions(t, "BarLinePositions(0, 80)", got, want)

	// the signature boundary appears exactly once, owned by the new meter
	count := 0
	for _, p := range got {
		if p == 64 {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("bar line at the signature change appeared %v times, expected once", count)
	}
	bb := c.StepToBarBeat(64)
	if bb.TimeSignature.Numerator != 3 {
		t.Fatalf("signature at step 64 = %v, expected 3/4", bb.TimeSignature)
	}

	got = c.BarLinePositions(40, 70)
	assertPositions(t, "BarLinePositions(40, 70)", got, []float64{48, 64})
}

func TestBarLinePositionsTruncated(t *testing.T) {
	timeline := tahti.NewTimeline(120)
	timeline.SignatureRegions = []tahti.SignatureRegion{
		{StartStep: 0, EndStep: 24, TimeSignature: tahti.TimeSignature{Numerator: 4, Denominator: 4}},
		{StartStep: 24, TimeSignature: tahti.TimeSignature{Numerator: 3, Denominator: 4}},
	}
	c := coords.New(&timeline, 24)
	got := c.BarLinePositions(0, 48)
	// the second 4/4 bar is cut short at 24; no line at 32 from the old ladder
	assertPositions(t, "BarLinePositions(0, 48)", got, []float64{0, 16, 24, 36, 48})
}

func TestBeatLinePositions(t *testing.T) {
	c := coords.New(testTimeline(), 24)
	got := c.BeatLinePositions(60, 70)
	assertPositions(t, "BeatLinePositions(60, 70)", got, []float64{60, 68})

	// no beat line may coincide with a bar line
	bars := c.BarLinePositions(0, 80)
	for _, b := range c.BeatLinePositions(0, 80) {
		for _, p := range bars {
			if b == p {
				t.Fatalf("beat line at %v coincides with a bar line", b)
			}
		}
	}
}

func TestBeatLinePositionsShortBeat(t *testing.T) {
	timeline := tahti.NewTimeline(120)
	timeline.SignatureRegions = []tahti.SignatureRegion{
		{StartStep: 0, TimeSignature: tahti.TimeSignature{Numerator: 7, Denominator: 8}},
	}
	c := coords.New(&timeline, 24)
	// a 7/8 bar is 14 steps: beats at 4, 8 and 12, then a two step short
	// beat with no line, then the next bar at 14
	assertPositions(t, "BeatLinePositions(0, 14)", c.BeatLinePositions(0, 14), []float64{4, 8, 12})
	assertPositions(t, "BarLinePositions(0, 14)", c.BarLinePositions(0, 14), []float64{0, 14})
}

func TestSnapToGrid(t *testing.T) {
	c := coords.New(testTimeline(), 24)
	tests := []struct {
		step, snap, want float64
	}{
		{5.4, 1, 5},
		{5.5, 1, 6},
		{5.4, 4, 4},
		{6.1, 4, 8},
		{-3, 4, 0},
		{7.3, 0, 7.3}, // degenerate snap leaves the step alone
	}
	for _, test := range tests {
		if got := c.SnapToGrid(test.step, test.snap); got != test.want {
			t.Fatalf("SnapToGrid(%v, %v) = %v, expected %v", test.step, test.snap, got, test.want)
		}
	}
}

func TestSnapToBarAndBeat(t *testing.T) {
	timeline := tahti.NewTimeline(120)
	timeline.SignatureRegions = []tahti.SignatureRegion{
		{StartStep: 0, EndStep: 24, TimeSignature: tahti.TimeSignature{Numerator: 4, Denominator: 4}},
		{StartStep: 24, TimeSignature: tahti.TimeSignature{Numerator: 3, Denominator: 4}},
	}
	c := coords.New(&timeline, 24)
	barTests := []struct {
		step, want float64
	}{
		{3, 0},
		{9, 16},
		{17, 16},
		{21, 24}, // the truncated bar ends at the region boundary
		{25, 24},
		{31, 36},
	}
	for _, test := range barTests {
		if got := c.SnapToBar(test.step); got != test.want {
			t.Fatalf("SnapToBar(%v) = %v, expected %v", test.step, got, test.want)
		}
	}
	beatTests := []struct {
		step, want float64
	}{
		{1, 0},
		{3, 4},
		{18, 16}, // equidistant from 16 and 20; ties round down
		{23, 24}, // the next beat start is the region boundary
		{-2, 0},
	}
	for _, test := range beatTests {
		if got := c.SnapToBeat(test.step); got != test.want {
			t.Fatalf("SnapToBeat(%v) = %v, expected %v", test.step, got, test.want)
		}
	}
}

func TestSnapToMarker(t *testing.T) {
	timeline := tahti.NewTimeline(120)
	timeline.Markers = []tahti.Marker{{Step: 16, Name: "verse"}}
	c := coords.New(&timeline, 24)
	if got := c.SnapToMarker(17, 2); got != 17 {
		t.Fatalf("SnapToMarker with snapping disabled = %v, expected 17", got)
	}
	timeline.Snap.SnapToMarkers = true
	if got := c.SnapToMarker(17, 2); got != 16 {
		t.Fatalf("SnapToMarker(17, 2) = %v, expected 16", got)
	}
	if got := c.SnapToMarker(30, 2); got != 30 {
		t.Fatalf("SnapToMarker(30, 2) = %v, expected 30 with no marker in reach", got)
	}
}

func TestMsPerStepAt(t *testing.T) {
	c := coords.New(testTimeline(), 24)
	if got := c.MsPerStepAt(0); got != 125 {
		t.Fatalf("MsPerStepAt(0) = %v, expected 125", got)
	}
	if got := c.MsPerStepAt(40); got != 250 {
		t.Fatalf("MsPerStepAt(40) = %v, expected 250", got)
	}
}

func assertPositions(t *testing.T, what string, got, want []float64) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("%v = %v, expected %v", what, got, want)
	}
	for i := range got {
		if math.Abs(got[i]-want[i]) > 1e-9 {
			t.Fatalf("%v = %v, expected %v", what, got, want)
		}
	}
}
