package transport

import (
	"math"
	"time"
)

// positionEpsilon is the smallest playhead move worth publishing, in steps.
// The audio clock advances a fraction of a step between frames at low tempos;
// republishing every wiggle would only churn the UI.
const positionEpsilon = 0.01

// startTrackingLocked launches the polling goroutine unless one is already
// alive. The caller holds e.mu. A loop that observed a pause but has not
// exited yet counts as alive and simply keeps going when it sees the
// transport playing again.
func (e *Engine) startTrackingLocked() {
	if e.tracking {
		return
	}
	e.tracking = true
	go e.trackPosition()
}

// trackPosition republishes the played position while the transport plays.
// Polling the audio clock instead of listening to audio engine events keeps
// the update cadence in the UI's hands and tolerates missed or duplicated
// engine notifications.
func (e *Engine) trackPosition() {
	ticker := time.NewTicker(e.TrackInterval)
	defer ticker.Stop()
	for range ticker.C {
		if !e.trackOnce() {
			return
		}
	}
}

// trackOnce samples the audio clock once and reports whether tracking should
// continue. The cancellation condition is re-checked at the top of every
// tick, and again after the clock read, so a loop that raced a concurrent
// pause or scrub can never publish a stale position. While a delegate call
// is in flight the clock is mid-relocation, so the tick is skipped rather
// than sampled.
func (e *Engine) trackOnce() bool {
	e.mu.Lock()
	if !e.st.IsPlaying || e.st.IsUserScrubbing {
		e.tracking = false
		e.mu.Unlock()
		return false
	}
	if e.inFlight {
		e.mu.Unlock()
		return true
	}
	e.mu.Unlock()

	steps := e.audio.TicksToSteps(e.audio.CurrentTick())

	e.mu.Lock()
	if !e.st.IsPlaying || e.st.IsUserScrubbing {
		e.tracking = false
		e.mu.Unlock()
		return false
	}
	if e.inFlight {
		e.mu.Unlock()
		return true
	}
	if math.Abs(steps-e.st.CurrentPosition) <= positionEpsilon {
		e.mu.Unlock()
		return true
	}
	now := time.Now()
	e.st.CurrentPosition = steps
	e.st.LastUpdateTime = now
	snap := e.st
	e.mu.Unlock()
	e.bus.publish(Event{Kind: PositionUpdate, State: snap, Time: now})
	return true
}
