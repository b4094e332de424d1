package audio

import (
	"errors"
	"io"
	"math"
	"sync/atomic"
	"time"

	"github.com/vsariola/tahti"
)

type (
	// Player is the metronome engine, run on the audio callback goroutine:
	// whoever pulls audio calls ReadAudio, which first drains the pending
	// command messages and then renders. The command methods on the other
	// side of the broker implement tahti.AudioEngine for the transport; they
	// never block, and only CurrentTick and TicksToSteps touch state shared
	// across goroutines.
	Player struct {
		// ClickVolume is the click amplitude, nominally 0 to 1. Set it
		// before anything starts pulling audio; after that the render
		// goroutine owns it.
		ClickVolume float64

		timeline tahti.Timeline
		bpm      float64
		playing  bool
		looping  bool
		loopA    float64 // loop points in ticks
		loopB    float64
		tick     float64
		beat     int // last beat index a click was rendered for

		clickPhase float64
		clickEnv   float64
		clickFreq  float64
		clickFade  float64 // per-sample envelope decay

		sampleRate int
		closed     bool

		tickBits atomic.Uint64 // published clock, math.Float64bits
		broker   *Broker
	}

	playMsg        struct{ tick float64 }
	pauseMsg       struct{}
	stopMsg        struct{}
	jumpMsg        struct{ tick float64 }
	bpmMsg         struct{ bpm float64 }
	loopMsg        struct{ a, b float64 }
	loopEnabledMsg struct{ enabled bool }
	timelineMsg    struct{ timeline tahti.Timeline }
)

const (
	// TicksPerQuarter is the resolution of the playback clock, in pulses per
	// quarter note. A beat is a quarter note, so this is also the length of
	// one beat in ticks.
	TicksPerQuarter = 960

	// TicksPerStep is the length of one step (a sixteenth) in ticks.
	TicksPerStep = TicksPerQuarter / tahti.StepsPerBeat

	clickFreq  = 880  // Hz, ordinary beats
	accentFreq = 1760 // Hz, bar starts
	clickGain  = 0.5  // default ClickVolume
	clickTail  = 0.02 // seconds to decay to 1/e
)

var errQueueFull = errors.New("audio: player command queue full")

// NewPlayer returns a player clicking along the given timeline. The initial
// tempo is the timeline's tempo at step 0.
func NewPlayer(broker *Broker, timeline tahti.Timeline, sampleRate int) *Player {
	if sampleRate <= 0 {
		sampleRate = tahti.DefaultSampleRate
	}
	p := &Player{
		ClickVolume: clickGain,
		timeline:    timeline,
		bpm:         timeline.TempoAt(0),
		sampleRate:  sampleRate,
		clickFade:   math.Exp(-1 / (clickTail * float64(sampleRate))),
		broker:      broker,
	}
	p.setTick(0)
	return p
}

// PlayFrom starts the clock at the given step position.
func (p *Player) PlayFrom(step float64) error {
	tick := step * TicksPerStep
	p.tickBits.Store(math.Float64bits(tick))
	if !TrySend(p.broker.ToPlayer, any(playMsg{tick: tick})) {
		return errQueueFull
	}
	return nil
}

// Pause freezes the clock where it is.
func (p *Player) Pause() error {
	if !TrySend(p.broker.ToPlayer, any(pauseMsg{})) {
		return errQueueFull
	}
	return nil
}

// Stop freezes the clock and re-homes it to zero.
func (p *Player) Stop() error {
	p.tickBits.Store(math.Float64bits(0))
	if !TrySend(p.broker.ToPlayer, any(stopMsg{})) {
		return errQueueFull
	}
	return nil
}

// JumpToStep relocates the clock without stopping it.
func (p *Player) JumpToStep(step float64) error {
	tick := step * TicksPerStep
	p.tickBits.Store(math.Float64bits(tick))
	if !TrySend(p.broker.ToPlayer, any(jumpMsg{tick: tick})) {
		return errQueueFull
	}
	return nil
}

// SetBPM changes the clock rate. The position is in ticks and unaffected.
func (p *Player) SetBPM(bpm float64) error {
	if !TrySend(p.broker.ToPlayer, any(bpmMsg{bpm: bpm})) {
		return errQueueFull
	}
	return nil
}

// SetLoopPoints sets the loop range in steps.
func (p *Player) SetLoopPoints(start, end float64) error {
	if !TrySend(p.broker.ToPlayer, any(loopMsg{a: start * TicksPerStep, b: end * TicksPerStep})) {
		return errQueueFull
	}
	return nil
}

// SetLoopEnabled turns loop wrapping on or off.
func (p *Player) SetLoopEnabled(enabled bool) error {
	if !TrySend(p.broker.ToPlayer, any(loopEnabledMsg{enabled: enabled})) {
		return errQueueFull
	}
	return nil
}

// SetTimeline replaces the timeline the click accents follow.
func (p *Player) SetTimeline(timeline tahti.Timeline) error {
	if !TrySend(p.broker.ToPlayer, any(timelineMsg{timeline: timeline.Copy()})) {
		return errQueueFull
	}
	return nil
}

// CurrentTick returns the playback clock position. Unlike the rest of the
// player state this is safe to read from any goroutine; the transport polls
// it every frame while playing.
func (p *Player) CurrentTick() float64 {
	return math.Float64frombits(p.tickBits.Load())
}

// TicksToSteps converts clock ticks to step units.
func (p *Player) TicksToSteps(ticks float64) float64 {
	return ticks / TicksPerStep
}

// Close asks the player to wind down and waits for the audio callback to
// acknowledge. It gives up after a few seconds in case nothing is pulling
// audio anymore.
func (p *Player) Close() error {
	TrySend(p.broker.CloseToPlayer, struct{}{})
	select {
	case <-p.broker.FinishedToPlayer:
		return nil
	case <-time.After(3 * time.Second):
		return errors.New("audio: player close timed out")
	}
}

// ReadAudio renders the next block of interleaved stereo samples. It first
// honors a pending close, then drains the command queue, then renders, so a
// command is always fully applied before any sample of the following block.
func (p *Player) ReadAudio(buf []float32) error {
	if p.closed {
		return io.EOF
	}
	select {
	case <-p.broker.CloseToPlayer:
		p.closed = true
		close(p.broker.FinishedToPlayer)
		return io.EOF
	default:
	}
	p.processMessages()
	p.render(buf)
	p.tickBits.Store(math.Float64bits(p.tick))
	return nil
}

func (p *Player) processMessages() {
loop:
	for {
		select {
		case msg := <-p.broker.ToPlayer:
			switch m := msg.(type) {
			case playMsg:
				p.playing = true
				p.setTick(m.tick)
			case pauseMsg:
				p.playing = false
			case stopMsg:
				p.playing = false
				p.setTick(0)
			case jumpMsg:
				p.setTick(m.tick)
			case bpmMsg:
				p.bpm = m.bpm
			case loopMsg:
				p.loopA, p.loopB = m.a, m.b
			case loopEnabledMsg:
				p.looping = m.enabled
			case timelineMsg:
				p.timeline = m.timeline
			default:
				// ignore unknown messages
			}
		default:
			break loop
		}
	}
}

// setTick moves the clock and arms the click for the beat the new position
// sits on, so starting exactly on a beat still clicks.
func (p *Player) setTick(tick float64) {
	p.tick = tick
	p.beat = int(math.Floor((tick - 1e-9) / TicksPerQuarter))
	p.tickBits.Store(math.Float64bits(tick))
}

func (p *Player) render(buf []float32) {
	ticksPerSample := p.bpm * TicksPerQuarter / (60 * float64(p.sampleRate))
	for i := 0; i+1 < len(buf); i += 2 {
		if p.playing {
			p.tick += ticksPerSample
			if p.looping && p.loopB > p.loopA && p.tick >= p.loopB {
				p.tick = p.loopA + math.Mod(p.tick-p.loopA, p.loopB-p.loopA)
				// re-arm from the loop start so a loop beginning on a beat
				// clicks on every pass, not only the first
				p.beat = int(math.Floor((p.loopA - 1e-9) / TicksPerQuarter))
			}
			if b := int(math.Floor(p.tick / TicksPerQuarter)); b != p.beat {
				p.beat = b
				p.click()
			}
		}
		var v float32
		if p.clickEnv > 1e-4 {
			v = float32(math.Sin(p.clickPhase) * p.clickEnv)
			p.clickPhase += 2 * math.Pi * p.clickFreq / float64(p.sampleRate)
			p.clickEnv *= p.clickFade
		}
		buf[i] = v
		buf[i+1] = v
	}
}

// click arms the metronome click for the beat under the clock, accented when
// the beat starts a bar.
func (p *Player) click() {
	p.clickFreq = clickFreq
	if p.timeline.StepToBarBeat(p.tick / TicksPerStep).Beat == 0 {
		p.clickFreq = accentFreq
	}
	p.clickPhase = 0
	p.clickEnv = p.ClickVolume
}
