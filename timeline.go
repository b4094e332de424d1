// Package tahti implements the musical timeline and transport core of a
// sequencer: conversions between steps, bars/beats, milliseconds and pixels
// under tempo and time-signature changes, and the playback state machine
// driving an audio clock. The position unit throughout is the step: one
// sixteenth note, with fractional steps allowed.
package tahti

import (
	"errors"
	"math"
)

type (
	// Timeline is the musical time structure of a piece: where the tempo
	// changes, where the time signature changes, and any named markers. It is
	// pure data plus conversion math; it knows nothing about playback. The
	// zero value is usable and behaves as a steady 120 BPM in 4/4.
	//
	// TempoRegions and SignatureRegions are two independent partitionings of
	// the step axis: each list is sorted by StartStep, starts at step 0, and
	// is contiguous (a region ends where the next one starts). The last
	// region of each list is unbounded; its EndStep is left zero.
	Timeline struct {
		// BPM is the fallback tempo, used when TempoRegions is empty.
		BPM              float64           `yaml:",omitempty"`
		TempoRegions     []TempoRegion     `yaml:",omitempty"`
		SignatureRegions []SignatureRegion `yaml:",omitempty"`
		Markers          []Marker          `yaml:",omitempty"`
		Snap             DisplaySettings   `yaml:",omitempty"`
	}

	// TempoRegion is a contiguous span of steps with a fixed tempo. EndStep
	// is exclusive; a region whose EndStep is not greater than its StartStep
	// is unbounded (this is how the last region is stored, so that the zero
	// value stays marshallable as JSON, which has no +Inf).
	TempoRegion struct {
		StartStep float64 `yaml:",omitempty"`
		EndStep   float64 `yaml:",omitempty"`
		BPM       float64
	}

	// SignatureRegion is a contiguous span of steps with a fixed time
	// signature, with the same EndStep convention as TempoRegion. A new
	// region always starts a new bar, even when the previous region was cut
	// short in the middle of one.
	SignatureRegion struct {
		StartStep     float64 `yaml:",omitempty"`
		EndStep       float64 `yaml:",omitempty"`
		TimeSignature `yaml:",inline"`
	}

	// Marker is a named timeline position that the UI may snap to.
	Marker struct {
		Step float64
		Name string `yaml:",omitempty"`
	}

	// DisplaySettings are the snapping preferences of the timeline view.
	DisplaySettings struct {
		SnapToMarkers bool    `yaml:",omitempty"`
		SnapValue     float64 `yaml:",omitempty"`
	}
)

const (
	// StepsPerBeat is the resolution of a beat: a step is a sixteenth note,
	// so a beat is four steps regardless of the time signature denominator.
	StepsPerBeat = 4

	// DefaultBPM is used wherever a tempo is missing or nonsensical.
	DefaultBPM = 120
)

var defaultSignature = TimeSignature{Numerator: 4, Denominator: 4}

// NewTimeline returns a timeline with a single unbounded tempo region at the
// given BPM, a 4/4 signature and grid snapping at whole steps.
func NewTimeline(bpm float64) Timeline {
	if bpm <= 0 {
		bpm = DefaultBPM
	}
	return Timeline{
		BPM:              bpm,
		TempoRegions:     []TempoRegion{{BPM: bpm}},
		SignatureRegions: []SignatureRegion{{TimeSignature: defaultSignature}},
		Snap:             DisplaySettings{SnapValue: 1},
	}
}

// MsPerStep returns the duration of one step in milliseconds at the given
// tempo: a quarter note is 60000/bpm ms and spans four steps.
func MsPerStep(bpm float64) float64 {
	if bpm <= 0 {
		bpm = DefaultBPM
	}
	return 60000 / bpm / StepsPerBeat
}

// End returns the exclusive end of the region, +Inf when unbounded.
func (r TempoRegion) End() float64 {
	if r.EndStep <= r.StartStep {
		return math.Inf(1)
	}
	return r.EndStep
}

// End returns the exclusive end of the region, +Inf when unbounded.
func (r SignatureRegion) End() float64 {
	if r.EndStep <= r.StartStep {
		return math.Inf(1)
	}
	return r.EndStep
}

// Tempos returns the tempo regions, synthesizing a single unbounded region
// from the fallback BPM when the list is empty, so that every conversion
// below can assume at least one region covering [0, +Inf).
func (t *Timeline) Tempos() []TempoRegion {
	if len(t.TempoRegions) == 0 {
		bpm := t.BPM
		if bpm <= 0 {
			bpm = DefaultBPM
		}
		return []TempoRegion{{BPM: bpm}}
	}
	return t.TempoRegions
}

// Signatures returns the signature regions, synthesizing a single unbounded
// 4/4 region when the list is empty.
func (t *Timeline) Signatures() []SignatureRegion {
	if len(t.SignatureRegions) == 0 {
		return []SignatureRegion{{TimeSignature: defaultSignature}}
	}
	return t.SignatureRegions
}

// TempoAt returns the BPM governing the given step.
func (t *Timeline) TempoAt(step float64) float64 {
	if step < 0 {
		step = 0
	}
	regions := t.Tempos()
	bpm := regions[0].BPM
	for _, r := range regions {
		if step < r.StartStep {
			break
		}
		bpm = r.BPM
	}
	return bpm
}

// SignatureAt returns the time signature governing the given step.
func (t *Timeline) SignatureAt(step float64) TimeSignature {
	if step < 0 {
		step = 0
	}
	regions := t.Signatures()
	sig := regions[0].TimeSignature
	for _, r := range regions {
		if step < r.StartStep {
			break
		}
		sig = r.TimeSignature
	}
	return sig
}

// StepToMs converts a step position to wall-clock milliseconds from step 0,
// accumulating each tempo region's contribution in order.
func (t *Timeline) StepToMs(step float64) float64 {
	if step < 0 {
		step = 0
	}
	ms := 0.0
	for _, r := range t.Tempos() {
		if step <= r.StartStep {
			break
		}
		end := math.Min(r.End(), step)
		ms += (end - r.StartStep) * MsPerStep(r.BPM)
	}
	return ms
}

// MsToStep converts milliseconds from step 0 back to a step position. It is
// the inverse walk of StepToMs; the last region absorbs any remainder, as
// its end is unbounded.
func (t *Timeline) MsToStep(ms float64) float64 {
	if ms <= 0 {
		return 0
	}
	regions := t.Tempos()
	remaining := ms
	for i, r := range regions {
		per := MsPerStep(r.BPM)
		if i == len(regions)-1 {
			return r.StartStep + remaining/per
		}
		cost := (r.End() - r.StartStep) * per
		if remaining < cost {
			return r.StartStep + remaining/per
		}
		remaining -= cost
	}
	return 0 // unreachable; Tempos is never empty
}

// NearestMarker returns the marker closest to step, if any lies within
// threshold steps of it.
func (t *Timeline) NearestMarker(step, threshold float64) (Marker, bool) {
	if threshold < 0 {
		return Marker{}, false
	}
	best := Marker{}
	bestDist := math.Inf(1)
	for _, m := range t.Markers {
		if d := math.Abs(m.Step - step); d < bestDist {
			best, bestDist = m, d
		}
	}
	if bestDist > threshold {
		return Marker{}, false
	}
	return best, true
}

// SnapToMarkers reports whether marker snapping is enabled for this
// timeline's views.
func (t *Timeline) SnapToMarkers() bool {
	return t.Snap.SnapToMarkers
}

// Copy makes a deep copy of the timeline, so that edits to one cannot leak
// into snapshots held elsewhere.
func (t *Timeline) Copy() Timeline {
	ret := *t
	ret.TempoRegions = append([]TempoRegion(nil), t.TempoRegions...)
	ret.SignatureRegions = append([]SignatureRegion(nil), t.SignatureRegions...)
	ret.Markers = append([]Marker(nil), t.Markers...)
	return ret
}

// Validate checks the region invariants: sorted, contiguous from step 0,
// positive tempos and sane signatures. Only the last region of each list may
// be unbounded.
func (t *Timeline) Validate() error {
	if t.BPM < 0 {
		return errors.New("BPM cannot be negative")
	}
	prevEnd := 0.0
	for i, r := range t.TempoRegions {
		if r.BPM <= 0 {
			return errors.New("tempo region BPM should be greater than zero")
		}
		if r.StartStep != prevEnd {
			return errors.New("tempo regions should be contiguous from step 0")
		}
		if i < len(t.TempoRegions)-1 {
			if math.IsInf(r.End(), 1) {
				return errors.New("only the last tempo region can be unbounded")
			}
			prevEnd = r.End()
		}
	}
	prevEnd = 0
	for i, r := range t.SignatureRegions {
		if r.Numerator < 1 || r.Denominator < 1 {
			return errors.New("time signature should be at least 1/1")
		}
		if r.StartStep != prevEnd {
			return errors.New("signature regions should be contiguous from step 0")
		}
		if i < len(t.SignatureRegions)-1 {
			if math.IsInf(r.End(), 1) {
				return errors.New("only the last signature region can be unbounded")
			}
			prevEnd = r.End()
		}
	}
	return nil
}
