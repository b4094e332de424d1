package coords

import (
	"math"

	"github.com/vsariola/tahti"
)

// GridSnapPositions returns every multiple of snapValue within
// [startStep, endStep]. Negative positions are never returned.
func (c *CoordinateSystem) GridSnapPositions(startStep, endStep, snapValue float64) []float64 {
	if snapValue <= 0 || endStep < startStep {
		return nil
	}
	k := math.Ceil(startStep / snapValue)
	if k < 0 {
		k = 0
	}
	var ret []float64
	for ; ; k++ {
		step := k * snapValue
		if step > endStep {
			return ret
		}
		ret = append(ret, step)
	}
}

// BarLinePositions returns the step position of every bar start within
// [startStep, endStep]. Each signature region restarts the bar ladder at its
// own start, so a region boundary yields exactly one line even when the
// previous region was cut short in the middle of a bar.
func (c *CoordinateSystem) BarLinePositions(startStep, endStep float64) []float64 {
	c.ensure()
	var ret []float64
	for _, s := range c.barSpans {
		if s.startStep > endStep {
			break
		}
		step := s.startStep
		if startStep > step {
			k := math.Ceil((startStep - s.startStep) / s.stepsPerBar)
			step = s.startStep + k*s.stepsPerBar
		}
		for ; step <= endStep && step < s.endStep; step += s.stepsPerBar {
			ret = append(ret, step)
		}
	}
	return ret
}

// BeatLinePositions returns the step position of every beat start within
// [startStep, endStep], excluding beats that coincide with a bar start; bar
// lines take precedence when rendering, so emitting both would double-draw.
// Beats restart at every bar, so a bar whose length is not a multiple of
// four ends in a short beat without a line of its own.
func (c *CoordinateSystem) BeatLinePositions(startStep, endStep float64) []float64 {
	c.ensure()
	var ret []float64
	for _, s := range c.barSpans {
		if s.startStep > endStep {
			break
		}
		if s.endStep <= startStep {
			continue
		}
		bar := s.startStep
		if startStep > bar {
			k := math.Floor((startStep - s.startStep) / s.stepsPerBar)
			bar = s.startStep + k*s.stepsPerBar
		}
		for ; bar <= endStep && bar < s.endStep; bar += s.stepsPerBar {
			barEnd := math.Min(bar+s.stepsPerBar, s.endStep)
			for beat := bar + tahti.StepsPerBeat; beat < barEnd; beat += tahti.StepsPerBeat {
				if beat < startStep || beat > endStep {
					continue
				}
				ret = append(ret, beat)
			}
		}
	}
	return ret
}

// SnapToGrid rounds step to the nearest multiple of snapValue.
func (c *CoordinateSystem) SnapToGrid(step, snapValue float64) float64 {
	if snapValue <= 0 {
		return step
	}
	return math.Max(0, math.Round(step/snapValue)*snapValue)
}

// SnapToBar rounds step to the nearest bar start. The next signature
// region's start counts as a bar start, so snapping near the end of a
// truncated bar lands on the region boundary rather than beyond it.
func (c *CoordinateSystem) SnapToBar(step float64) float64 {
	c.ensure()
	if step < 0 {
		step = 0
	}
	s := c.barSpanAt(step)
	k := math.Floor((step - s.startStep) / s.stepsPerBar)
	lo := s.startStep + k*s.stepsPerBar
	hi := math.Min(lo+s.stepsPerBar, s.endStep)
	return nearer(step, lo, hi)
}

// SnapToBeat rounds step to the nearest beat start, counting bar starts as
// beat starts.
func (c *CoordinateSystem) SnapToBeat(step float64) float64 {
	c.ensure()
	if step < 0 {
		step = 0
	}
	s := c.barSpanAt(step)
	k := math.Floor((step - s.startStep) / s.stepsPerBar)
	bar := s.startStep + k*s.stepsPerBar
	barEnd := math.Min(bar+s.stepsPerBar, s.endStep)
	b := math.Floor((step - bar) / tahti.StepsPerBeat)
	lo := bar + b*tahti.StepsPerBeat
	hi := math.Min(lo+tahti.StepsPerBeat, barEnd)
	return nearer(step, lo, hi)
}

// SnapToMarker snaps step to the nearest marker within threshold steps, when
// the timeline has marker snapping enabled. Otherwise the step is returned
// unchanged.
func (c *CoordinateSystem) SnapToMarker(step, threshold float64) float64 {
	if !c.store.SnapToMarkers() {
		return step
	}
	if m, ok := c.store.NearestMarker(step, threshold); ok {
		return m.Step
	}
	return step
}

func nearer(step, lo, hi float64) float64 {
	if step-lo <= hi-step {
		return lo
	}
	return hi
}
