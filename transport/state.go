// Package transport implements the playback state machine of a sequencer:
// play, pause, stop, looping, tempo, scrubbing and a ghost playhead. The
// engine owns the canonical TransportState, delegates the audible work to a
// tahti.AudioEngine and publishes immutable state snapshots to subscribers.
// While playing it polls the audio engine's clock and republishes the
// position, so the UI never talks to the audio thread directly.
package transport

import "time"

// PlaybackState enumerates the states of the transport state machine.
type PlaybackState int

const (
	StateStopped PlaybackState = iota
	StatePlaying
	StatePaused
)

func (s PlaybackState) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	}
	return "unknown"
}

// TransportState is the full state of the transport at one moment. The
// engine hands out copies, never a live reference, so a subscriber can keep
// one around or mutate it freely without affecting the engine.
type TransportState struct {
	// PlaybackState is the state machine state; IsPlaying is always
	// equivalent to PlaybackState == StatePlaying and is kept as a field so
	// that snapshots remain self-describing.
	PlaybackState PlaybackState
	IsPlaying     bool

	// CurrentPosition is the committed playhead in steps, never negative.
	CurrentPosition float64

	BPM         float64
	LoopEnabled bool
	LoopStart   float64
	LoopEnd     float64 // always greater than LoopStart

	// IsUserScrubbing is set while the user drags the playhead; position
	// tracking cedes the position to the drag until it clears.
	IsUserScrubbing bool

	// GhostPosition is a preview playhead shown during a drag before the
	// position is committed; it is only meaningful when HasGhost is set.
	GhostPosition float64
	HasGhost      bool

	LastUpdateTime time.Time // when CurrentPosition last changed
	LastStopTime   time.Time // when the transport last stopped
}

// EventKind enumerates the events the engine publishes.
type EventKind int

const (
	StateChange EventKind = iota
	PositionUpdate
	GhostPositionChange
)

func (k EventKind) String() string {
	switch k {
	case StateChange:
		return "state-change"
	case PositionUpdate:
		return "position-update"
	case GhostPositionChange:
		return "ghost-position-change"
	}
	return "unknown"
}

// Event is the envelope delivered to subscribers: what happened, the full
// state snapshot after it happened, and when.
type Event struct {
	Kind  EventKind
	State TransportState
	Time  time.Time
}
