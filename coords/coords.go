// Package coords converts between the four coordinate spaces of a sequencer
// timeline: steps, pixels, bar:beat:subdivision positions and wall-clock
// milliseconds. The conversions consume tempo and time-signature regions
// owned by an external timeline store and cache cumulative tables derived
// from them; the owner of the store calls Invalidate after every edit.
package coords

import (
	"math"
	"sort"

	"github.com/viterin/vek"
	"github.com/vsariola/tahti"
)

type (
	// Store is the timeline data a CoordinateSystem consumes. *tahti.Timeline
	// implements it; views or remote models can substitute their own.
	Store interface {
		Tempos() []tahti.TempoRegion
		Signatures() []tahti.SignatureRegion
		TempoAt(step float64) float64
		StepToBarBeat(step float64) tahti.BarBeat
		BarBeatToStep(bar, beat int, subdivision float64) float64
		NearestMarker(step, threshold float64) (tahti.Marker, bool)
		SnapToMarkers() bool
	}

	// CoordinateSystem converts between the coordinate spaces of one timeline.
	// It is not safe for concurrent use; the UI owning the timeline is
	// expected to drive it from a single goroutine.
	CoordinateSystem struct {
		store         Store
		baseStepWidth float64

		valid      bool // whether the span tables below match the store
		tempoSpans []tempoSpan
		barSpans   []barSpan
	}

	// tempoSpan is a tempo region with the wall-clock time of its start
	// precomputed, so that conversions need only one binary search.
	tempoSpan struct {
		startStep float64
		startMs   float64
		msPerStep float64
	}

	// barSpan is a signature region with its first bar index precomputed.
	barSpan struct {
		startStep   float64
		endStep     float64 // +Inf for the last span
		startBar    int
		stepsPerBar float64
	}
)

// DefaultStepWidth is the width of one step in pixels at zoom 1.
const DefaultStepWidth = 24

// New returns a CoordinateSystem over the given store. baseStepWidth is the
// pixel width of one step at zoom 1; values not greater than zero fall back
// to DefaultStepWidth.
func New(store Store, baseStepWidth float64) *CoordinateSystem {
	if baseStepWidth <= 0 {
		baseStepWidth = DefaultStepWidth
	}
	return &CoordinateSystem{store: store, baseStepWidth: baseStepWidth}
}

// Invalidate drops the cached span tables. Call it after any edit to the
// underlying timeline; the next conversion rebuilds the cache. Serving
// conversions from a stale cache is a correctness bug, so err on the side of
// calling this too often.
func (c *CoordinateSystem) Invalidate() {
	c.valid = false
}

// StepToPixel maps a step to a horizontal pixel offset at the given zoom.
func (c *CoordinateSystem) StepToPixel(step, zoom float64) float64 {
	return step * c.baseStepWidth * zoom
}

// PixelToStep is the exact inverse of StepToPixel. A degenerate zoom maps
// every pixel to step 0 instead of dividing by zero.
func (c *CoordinateSystem) PixelToStep(pixel, zoom float64) float64 {
	w := c.baseStepWidth * zoom
	if w == 0 {
		return 0
	}
	return pixel / w
}

// PixelPositions converts a batch of steps to pixel offsets, reusing dst if
// it has the capacity. Renderers call this once per frame with every grid
// line on screen, so the conversion is vectorized.
func (c *CoordinateSystem) PixelPositions(steps []float64, zoom float64, dst []float64) []float64 {
	if cap(dst) < len(steps) {
		dst = make([]float64, len(steps))
	}
	dst = dst[:len(steps)]
	if len(steps) == 0 {
		return dst
	}
	vek.MulNumber_Into(dst, steps, c.baseStepWidth*zoom)
	return dst
}

// StepToMs converts a step position to milliseconds from the timeline start.
func (c *CoordinateSystem) StepToMs(step float64) float64 {
	c.ensure()
	if step <= 0 {
		return 0
	}
	s := c.tempoSpanAt(step)
	return s.startMs + (step-s.startStep)*s.msPerStep
}

// MsToStep converts milliseconds from the timeline start back to a step
// position. It inverts StepToMs exactly up to float rounding.
func (c *CoordinateSystem) MsToStep(ms float64) float64 {
	c.ensure()
	if ms <= 0 {
		return 0
	}
	i := sort.Search(len(c.tempoSpans), func(i int) bool { return c.tempoSpans[i].startMs >= ms })
	s := c.tempoSpans[i-1] // i >= 1 because the first span starts at 0 ms
	return s.startStep + (ms-s.startMs)/s.msPerStep
}

// MsPerStepAt returns the duration of one step at the tempo governing step.
func (c *CoordinateSystem) MsPerStepAt(step float64) float64 {
	return tahti.MsPerStep(c.store.TempoAt(step))
}

// StepToBarBeat returns the musical notation of a step position.
func (c *CoordinateSystem) StepToBarBeat(step float64) tahti.BarBeat {
	return c.store.StepToBarBeat(step)
}

// BarBeatToStep returns the step position of a musical notation triple.
func (c *CoordinateSystem) BarBeatToStep(bar, beat int, subdivision float64) float64 {
	return c.store.BarBeatToStep(bar, beat, subdivision)
}

// ensure rebuilds the cached span tables if they are stale.
func (c *CoordinateSystem) ensure() {
	if c.valid {
		return
	}
	c.tempoSpans = c.tempoSpans[:0]
	ms := 0.0
	for _, r := range c.store.Tempos() {
		per := tahti.MsPerStep(r.BPM)
		c.tempoSpans = append(c.tempoSpans, tempoSpan{r.StartStep, ms, per})
		if end := r.End(); !math.IsInf(end, 1) {
			ms += (end - r.StartStep) * per
		}
	}
	c.barSpans = c.barSpans[:0]
	bar := 0
	for _, r := range c.store.Signatures() {
		spb := r.StepsPerBar()
		c.barSpans = append(c.barSpans, barSpan{r.StartStep, r.End(), bar, spb})
		if end := r.End(); !math.IsInf(end, 1) {
			bar += int(math.Ceil((end - r.StartStep) / spb))
		}
	}
	c.valid = true
}

// tempoSpanAt returns the span containing step; step must be positive and
// the cache fresh.
func (c *CoordinateSystem) tempoSpanAt(step float64) tempoSpan {
	i := sort.Search(len(c.tempoSpans), func(i int) bool { return c.tempoSpans[i].startStep >= step })
	return c.tempoSpans[i-1]
}

// barSpanAt returns the span containing step; step must be non-negative and
// the cache fresh.
func (c *CoordinateSystem) barSpanAt(step float64) barSpan {
	i := sort.Search(len(c.barSpans), func(i int) bool { return c.barSpans[i].startStep > step })
	return c.barSpans[i-1]
}
