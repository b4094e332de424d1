package tahti

import (
	"fmt"
	"math"
)

type (
	// TimeSignature is a musical meter. The number of steps in one bar is
	// Numerator * 4 * (4/Denominator): a 4/4 bar is 16 sixteenths, a 3/4 bar
	// 12, a 7/8 bar 14. Beats are always four steps (see StepsPerBeat), so
	// meters whose bar length is not a multiple of four end in a short beat.
	TimeSignature struct {
		Numerator   int
		Denominator int
	}

	// BarBeat is a step position expressed in musical notation: which bar,
	// which beat within the bar, and how many steps into the beat. Bar and
	// Beat are 0-based; bar numbering is continuous over the whole timeline
	// and does not restart when the time signature changes. TimeSignature is
	// the signature governing the position.
	BarBeat struct {
		Bar         int
		Beat        int
		Subdivision float64
		TimeSignature
	}
)

// StepsPerBar returns the length of one bar in steps. The zero value acts as
// 4/4 so that unvalidated data cannot divide by zero downstream.
func (s TimeSignature) StepsPerBar() float64 {
	n, d := s.Numerator, s.Denominator
	if n < 1 || d < 1 {
		n, d = 4, 4
	}
	return float64(n) * 16 / float64(d)
}

func (s TimeSignature) String() string {
	return fmt.Sprintf("%d/%d", s.Numerator, s.Denominator)
}

// String formats the position 1-based, the way musicians count bars and
// beats; the stored fields stay 0-based.
func (b BarBeat) String() string {
	return fmt.Sprintf("%d:%d:%05.2f", b.Bar+1, b.Beat+1, b.Subdivision)
}

// StepToBarBeat locates the signature region containing step and splits the
// position into bar, beat and subdivision. The bar index carries forward the
// number of bars consumed by all earlier regions; a region cut short in the
// middle of a bar still consumes a whole bar index for the truncated bar.
func (t *Timeline) StepToBarBeat(step float64) BarBeat {
	if step < 0 {
		step = 0
	}
	regions := t.Signatures()
	barsBefore := 0
	for _, r := range regions {
		spb := r.StepsPerBar()
		if step < r.End() {
			rel := step - r.StartStep
			bar := math.Floor(rel / spb)
			within := rel - bar*spb
			beat := math.Floor(within / StepsPerBeat)
			return BarBeat{
				Bar:           barsBefore + int(bar),
				Beat:          int(beat),
				Subdivision:   within - beat*StepsPerBeat,
				TimeSignature: r.TimeSignature,
			}
		}
		barsBefore += barsInRegion(r, spb)
	}
	return BarBeat{TimeSignature: defaultSignature} // regions always cover [0,Inf)
}

// BarBeatToStep is the left inverse of StepToBarBeat: for any triple that
// StepToBarBeat can produce it returns the original step exactly. Negative
// components are clamped to zero.
func (t *Timeline) BarBeatToStep(bar, beat int, subdivision float64) float64 {
	if bar < 0 {
		bar = 0
	}
	if beat < 0 {
		beat = 0
	}
	if subdivision < 0 {
		subdivision = 0
	}
	regions := t.Signatures()
	barsBefore := 0
	for i, r := range regions {
		spb := r.StepsPerBar()
		if i < len(regions)-1 && !math.IsInf(r.End(), 1) {
			n := barsInRegion(r, spb)
			if bar >= barsBefore+n {
				barsBefore += n
				continue
			}
		}
		return r.StartStep + float64(bar-barsBefore)*spb + float64(beat)*StepsPerBeat + subdivision
	}
	return 0 // regions always cover [0,Inf)
}

// barsInRegion counts the bar indices a bounded region consumes: a trailing
// partial bar counts as one.
func barsInRegion(r SignatureRegion, spb float64) int {
	return int(math.Ceil((r.End() - r.StartStep) / spb))
}
