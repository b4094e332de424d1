package transport

import (
	"log"
	"sync"
	"time"

	"github.com/vsariola/tahti"
)

type (
	// Engine is the playback state machine. All commands follow the same
	// discipline: clamp arguments instead of rejecting them, delegate the
	// audible part to the audio engine, and only commit the new state and
	// publish it once the delegate succeeded. A failed delegate call is
	// logged, leaves the state machine where it was and makes the command
	// return false; nothing here is fatal.
	//
	// Exactly one delegate call may be in flight at a time. Commands issued
	// while another is pending return false instead of queueing, so two
	// overlapping Play calls cannot both start playback.
	//
	// Engine is safe for concurrent use.
	Engine struct {
		// TrackInterval is how often the position tracking loop polls the
		// audio clock while playing. SettleDelay is how long a smooth
		// relocation lets the audio engine rest between the pause and the
		// restart. Both may be adjusted after NewEngine but before the first
		// command is issued.
		TrackInterval time.Duration
		SettleDelay   time.Duration

		audio  tahti.AudioEngine
		logger *log.Logger
		bus    bus

		mu       sync.Mutex
		st       TransportState
		inFlight bool // a delegate call is pending; overlapping commands bail out
		tracking bool // the polling goroutine is alive
	}
)

const (
	// MinBPM and MaxBPM bound SetBPM; values outside are clamped, not
	// rejected.
	MinBPM = 60
	MaxBPM = 300

	defaultLoopEnd       = 16 // one 4/4 bar
	defaultTrackInterval = 16 * time.Millisecond
	defaultSettleDelay   = 60 * time.Millisecond
)

// NewEngine returns a stopped engine driving the given audio engine. logger
// may be nil, in which case the standard logger is used.
func NewEngine(audio tahti.AudioEngine, logger *log.Logger) *Engine {
	if logger == nil {
		logger = log.Default()
	}
	ret := &Engine{
		TrackInterval: defaultTrackInterval,
		SettleDelay:   defaultSettleDelay,
		audio:         audio,
		logger:        logger,
		st: TransportState{
			PlaybackState: StateStopped,
			BPM:           tahti.DefaultBPM,
			LoopEnd:       defaultLoopEnd,
		},
	}
	ret.bus.logger = logger
	return ret
}

// State returns a snapshot of the current transport state.
func (e *Engine) State() TransportState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.st
}

// Subscribe registers fn to receive every event the engine publishes and
// synchronously replays the current state to it once, so a late subscriber
// sees the present state without waiting for the next change. The returned
// function unsubscribes.
func (e *Engine) Subscribe(fn func(Event)) func() {
	unsubscribe := e.bus.subscribe(fn)
	e.bus.deliver(fn, Event{Kind: StateChange, State: e.State(), Time: time.Now()})
	return unsubscribe
}

// Play starts or resumes playback from the current position: from wherever
// Pause left the playhead, or from wherever Stop re-homed it. It reports
// false if the transport is already playing, another command is in flight or
// the audio engine refused to start.
func (e *Engine) Play() bool {
	return e.play(0, false)
}

// PlayFrom is Play starting from the given step instead of the current
// position. The position is clamped to zero and committed before the audio
// engine confirms, so it sticks even when the start fails.
func (e *Engine) PlayFrom(step float64) bool {
	return e.play(step, true)
}

func (e *Engine) play(step float64, override bool) bool {
	e.mu.Lock()
	if e.st.PlaybackState == StatePlaying || e.inFlight {
		e.mu.Unlock()
		return false
	}
	if override {
		if step < 0 {
			step = 0
		}
		e.st.CurrentPosition = step
		e.st.LastUpdateTime = time.Now()
	}
	start := e.st.CurrentPosition
	e.inFlight = true
	e.mu.Unlock()

	err := e.audio.PlayFrom(start)

	e.mu.Lock()
	e.inFlight = false
	if err != nil {
		e.mu.Unlock()
		e.logger.Printf("transport: cannot start playback: %v", err)
		return false
	}
	e.st.PlaybackState = StatePlaying
	e.st.IsPlaying = true
	e.startTrackingLocked()
	snap := e.st
	e.mu.Unlock()
	e.bus.publish(Event{Kind: StateChange, State: snap, Time: time.Now()})
	return true
}

// Pause suspends playback, keeping the playhead at the last sampled
// position. It reports false unless the transport was playing.
func (e *Engine) Pause() bool {
	e.mu.Lock()
	if e.st.PlaybackState != StatePlaying || e.inFlight {
		e.mu.Unlock()
		return false
	}
	e.inFlight = true
	e.mu.Unlock()

	err := e.audio.Pause()

	e.mu.Lock()
	e.inFlight = false
	if err != nil {
		e.mu.Unlock()
		e.logger.Printf("transport: cannot pause playback: %v", err)
		return false
	}
	e.st.PlaybackState = StatePaused
	e.st.IsPlaying = false
	snap := e.st
	e.mu.Unlock()
	e.bus.publish(Event{Kind: StateChange, State: snap, Time: time.Now()})
	return true
}

// Stop halts playback from any state and re-homes the playhead: to the loop
// start when looping is enabled and starts past zero, to zero otherwise.
// Stopping an already stopped transport re-executes the re-homing and ends
// in the same state, so the command is idempotent. Publishes the state
// change first, then a position update for the re-homed playhead.
func (e *Engine) Stop() bool {
	e.mu.Lock()
	if e.inFlight {
		e.mu.Unlock()
		return false
	}
	e.inFlight = true
	e.mu.Unlock()

	err := e.audio.Stop()

	e.mu.Lock()
	e.inFlight = false
	if err != nil {
		e.mu.Unlock()
		e.logger.Printf("transport: cannot stop playback: %v", err)
		return false
	}
	home := 0.0
	if e.st.LoopEnabled && e.st.LoopStart > 0 {
		home = e.st.LoopStart
	}
	now := time.Now()
	e.st.PlaybackState = StateStopped
	e.st.IsPlaying = false
	e.st.CurrentPosition = home
	e.st.LastUpdateTime = now
	e.st.LastStopTime = now
	snap := e.st
	e.mu.Unlock()
	e.bus.publish(Event{Kind: StateChange, State: snap, Time: now})
	e.bus.publish(Event{Kind: PositionUpdate, State: snap, Time: now})
	return true
}

// TogglePlayPause pauses a playing transport and otherwise starts playback
// from the current position.
func (e *Engine) TogglePlayPause() bool {
	e.mu.Lock()
	playing := e.st.PlaybackState == StatePlaying
	e.mu.Unlock()
	if playing {
		return e.Pause()
	}
	return e.Play()
}

// JumpTo relocates the playhead to step, committing the new position before
// the audio engine confirms. While playing, smooth mode pauses the engine,
// waits SettleDelay and restarts at the new position, avoiding an audible
// splice; non-smooth mode relocates without stopping. While paused or
// stopped no delegate call is needed, the next Play starts from the new
// position.
func (e *Engine) JumpTo(step float64, smooth bool) bool {
	if step < 0 {
		step = 0
	}
	e.mu.Lock()
	if e.inFlight {
		e.mu.Unlock()
		return false
	}
	now := time.Now()
	e.st.CurrentPosition = step
	e.st.LastUpdateTime = now
	playing := e.st.PlaybackState == StatePlaying
	if playing {
		e.inFlight = true
	}
	snap := e.st
	e.mu.Unlock()
	e.bus.publish(Event{Kind: PositionUpdate, State: snap, Time: now})
	if !playing {
		return true
	}
	if smooth {
		go e.smoothRelocate(step)
		return true
	}

	err := e.audio.JumpToStep(step)

	e.mu.Lock()
	e.inFlight = false
	e.mu.Unlock()
	if err != nil {
		e.logger.Printf("transport: cannot relocate playback: %v", err)
		return false
	}
	return true
}

// smoothRelocate runs the pause, settle, restart sequence of a smooth jump.
// The in-flight flag stays set for its whole duration, so commands issued
// during the settle window are rejected instead of racing the restart.
func (e *Engine) smoothRelocate(step float64) {
	err := e.audio.Pause()
	if err == nil {
		time.Sleep(e.SettleDelay)
		err = e.audio.PlayFrom(step)
	}
	e.mu.Lock()
	e.inFlight = false
	if err == nil {
		e.mu.Unlock()
		return
	}
	// the audio engine may have gone silent halfway through; own up to it
	e.st.PlaybackState = StatePaused
	e.st.IsPlaying = false
	snap := e.st
	e.mu.Unlock()
	e.logger.Printf("transport: smooth relocation failed: %v", err)
	e.bus.publish(Event{Kind: StateChange, State: snap, Time: time.Now()})
}

// SetPosition moves the playhead without involving the audio engine, for
// scrub updates and editor seeks while the transport is not audible. Use
// JumpTo to relocate running playback.
func (e *Engine) SetPosition(step float64) {
	if step < 0 {
		step = 0
	}
	e.mu.Lock()
	now := time.Now()
	e.st.CurrentPosition = step
	e.st.LastUpdateTime = now
	snap := e.st
	e.mu.Unlock()
	e.bus.publish(Event{Kind: PositionUpdate, State: snap, Time: now})
}

// SetGhostPosition shows a preview playhead at step, decoupled from the
// committed position, while the user hovers or drags.
func (e *Engine) SetGhostPosition(step float64) {
	if step < 0 {
		step = 0
	}
	e.mu.Lock()
	if e.st.HasGhost && e.st.GhostPosition == step {
		e.mu.Unlock()
		return
	}
	e.st.GhostPosition = step
	e.st.HasGhost = true
	snap := e.st
	e.mu.Unlock()
	e.bus.publish(Event{Kind: GhostPositionChange, State: snap, Time: time.Now()})
}

// ClearGhostPosition removes the preview playhead.
func (e *Engine) ClearGhostPosition() {
	e.mu.Lock()
	if !e.st.HasGhost {
		e.mu.Unlock()
		return
	}
	e.st.GhostPosition = 0
	e.st.HasGhost = false
	snap := e.st
	e.mu.Unlock()
	e.bus.publish(Event{Kind: GhostPositionChange, State: snap, Time: time.Now()})
}

// SetScrubbing marks the start and end of the user dragging the playhead.
// While set, the tracking loop leaves the position to the drag; when it
// clears during playback, tracking resumes.
func (e *Engine) SetScrubbing(scrubbing bool) {
	e.mu.Lock()
	if e.st.IsUserScrubbing == scrubbing {
		e.mu.Unlock()
		return
	}
	e.st.IsUserScrubbing = scrubbing
	if !scrubbing && e.st.PlaybackState == StatePlaying {
		e.startTrackingLocked()
	}
	snap := e.st
	e.mu.Unlock()
	e.bus.publish(Event{Kind: StateChange, State: snap, Time: time.Now()})
}

// SetBPM sets the playback tempo, clamped to [MinBPM, MaxBPM]. The playhead
// is measured in steps, so a tempo change never moves it.
func (e *Engine) SetBPM(bpm float64) bool {
	if bpm < MinBPM {
		bpm = MinBPM
	}
	if bpm > MaxBPM {
		bpm = MaxBPM
	}
	e.mu.Lock()
	if e.inFlight {
		e.mu.Unlock()
		return false
	}
	e.inFlight = true
	e.mu.Unlock()

	err := e.audio.SetBPM(bpm)

	e.mu.Lock()
	e.inFlight = false
	if err != nil {
		e.mu.Unlock()
		e.logger.Printf("transport: cannot set tempo: %v", err)
		return false
	}
	e.st.BPM = bpm
	snap := e.st
	e.mu.Unlock()
	e.bus.publish(Event{Kind: StateChange, State: snap, Time: time.Now()})
	return true
}

// SetLoopRange sets the loop points. The start is clamped to zero and the
// end is forced past the start, so an inverted range is repaired instead of
// rejected: SetLoopRange(10, 5) loops from 10 to 11.
func (e *Engine) SetLoopRange(start, end float64) bool {
	if start < 0 {
		start = 0
	}
	if end < start+1 {
		end = start + 1
	}
	e.mu.Lock()
	if e.inFlight {
		e.mu.Unlock()
		return false
	}
	e.inFlight = true
	e.mu.Unlock()

	err := e.audio.SetLoopPoints(start, end)

	e.mu.Lock()
	e.inFlight = false
	if err != nil {
		e.mu.Unlock()
		e.logger.Printf("transport: cannot set loop range: %v", err)
		return false
	}
	e.st.LoopStart = start
	e.st.LoopEnd = end
	snap := e.st
	e.mu.Unlock()
	e.bus.publish(Event{Kind: StateChange, State: snap, Time: time.Now()})
	return true
}

// SetLoopEnabled turns looping on or off without moving the playhead.
func (e *Engine) SetLoopEnabled(enabled bool) bool {
	e.mu.Lock()
	if e.inFlight {
		e.mu.Unlock()
		return false
	}
	e.inFlight = true
	e.mu.Unlock()

	err := e.audio.SetLoopEnabled(enabled)

	e.mu.Lock()
	e.inFlight = false
	if err != nil {
		e.mu.Unlock()
		e.logger.Printf("transport: cannot toggle looping: %v", err)
		return false
	}
	e.st.LoopEnabled = enabled
	snap := e.st
	e.mu.Unlock()
	e.bus.publish(Event{Kind: StateChange, State: snap, Time: time.Now()})
	return true
}
