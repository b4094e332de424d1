// Package gomidi mirrors the transport to external MIDI gear as system
// realtime messages: Start/Continue/Stop for the state machine, Song
// Position Pointer for relocations and 24 PPQN Timing Clock while playing,
// so hardware sequencers and drum machines follow the playhead.
package gomidi

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"

	"github.com/vsariola/tahti/transport"
	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
	"gitlab.com/gomidi/midi/v2/drivers/rtmididrv"
)

type (
	RTMIDIContext struct {
		mu                 sync.Mutex
		driver             *rtmididrv.Driver
		currentOut         drivers.Out
		send               func(midi.Message) error
		tr                 translator
		outputDevices      []RTMIDIDevice
		devicesInitialized bool
	}

	RTMIDIDevice struct {
		context *RTMIDIContext
		out     drivers.Out
	}

	// translator turns transport events into MIDI realtime messages. It
	// tracks how many timing clocks it has emitted so position updates
	// become clock pulses, falling back to a Song Position Pointer whenever
	// the playhead moves somewhere clocks alone cannot express.
	translator struct {
		playing bool
		clocks  int // timing clocks emitted, as an absolute count from step 0
	}
)

const (
	// clocksPerStep fixes the MIDI beat grid: 24 clocks per quarter note is
	// 6 per sixteenth step, and Song Position Pointer counts sixteenths.
	clocksPerStep = 6

	// maxClockBurst is the largest forward move bridged with clock pulses;
	// anything larger resyncs with a Song Position Pointer instead.
	maxClockBurst = 24
)

// NewContext opens the MIDI driver. There is not much to be done if that
// fails, so a nil driver just means MIDI stays unavailable.
func NewContext() *RTMIDIContext {
	m := RTMIDIContext{}
	m.driver, _ = rtmididrv.New()
	return &m
}

func (c *RTMIDIContext) OutputDevices(yield func(RTMIDIDevice) bool) {
	if c.devicesInitialized {
		c.yieldCachedOutputDevices(yield)
	} else {
		c.initOutputDevices(yield)
	}
}

func (c *RTMIDIContext) yieldCachedOutputDevices(yield func(RTMIDIDevice) bool) {
	for _, device := range c.outputDevices {
		if !yield(device) {
			break
		}
	}
}

func (c *RTMIDIContext) initOutputDevices(yield func(RTMIDIDevice) bool) {
	if c.driver == nil {
		return
	}
	outs, err := c.driver.Outs()
	if err != nil {
		return
	}
	for i := 0; i < len(outs); i++ {
		device := RTMIDIDevice{context: c, out: outs[i]}
		c.outputDevices = append(c.outputDevices, device)
		if !yield(device) {
			break
		}
	}
	c.devicesInitialized = true
}

// Open an output device while closing the currently open one if necessary.
func (d RTMIDIDevice) Open() error {
	c := d.context
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.currentOut == d.out {
		return nil
	}
	if c.driver == nil {
		return errors.New("no driver available")
	}
	if c.currentOut != nil && c.currentOut.IsOpen() {
		c.currentOut.Close()
	}
	c.currentOut = d.out
	if err := d.out.Open(); err != nil {
		c.currentOut = nil
		return fmt.Errorf("opening MIDI output failed: %w", err)
	}
	send, err := midi.SendTo(d.out)
	if err != nil {
		d.out.Close()
		c.currentOut = nil
		return fmt.Errorf("attaching MIDI sender failed: %w", err)
	}
	c.send = send
	return nil
}

func (d RTMIDIDevice) String() string {
	return d.out.String()
}

func (c *RTMIDIContext) HasDeviceOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentOut != nil && c.currentOut.IsOpen()
}

// TryToOpenBy opens the first output device whose name starts with
// namePrefix, or simply the first device when takeFirst is set.
func (c *RTMIDIContext) TryToOpenBy(namePrefix string, takeFirst bool) {
	if namePrefix == "" && !takeFirst {
		return
	}
	for output := range c.OutputDevices {
		if takeFirst || strings.HasPrefix(output.String(), namePrefix) {
			output.Open()
			return
		}
	}
}

// Sync subscribes the MIDI output to the engine, so every transport event is
// mirrored to the open device. Returns the unsubscribe function. The replay
// on subscription brings late-attached gear in line with the present state.
func (c *RTMIDIContext) Sync(engine *transport.Engine) func() {
	return engine.Subscribe(c.handleEvent)
}

func (c *RTMIDIContext) handleEvent(e transport.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.send == nil {
		return
	}
	for _, msg := range c.tr.translate(e) {
		if c.send(msg) != nil {
			return // the rest of the batch is moot; SPP resyncs later
		}
	}
}

func (c *RTMIDIContext) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.driver == nil {
		return
	}
	if c.currentOut != nil && c.currentOut.IsOpen() {
		if c.send != nil {
			c.send(midi.Stop()) // leave external gear stopped, not spinning
		}
		c.currentOut.Close()
	}
	c.driver.Close()
}

func (tr *translator) translate(e transport.Event) []midi.Message {
	st := e.State
	switch e.Kind {
	case transport.StateChange:
		if st.IsPlaying && !tr.playing {
			tr.playing = true
			tr.clocks = clocksAt(st.CurrentPosition)
			if st.CurrentPosition == 0 {
				return []midi.Message{midi.Start()}
			}
			return []midi.Message{midi.SPP(sppAt(st.CurrentPosition)), midi.Continue()}
		}
		if !st.IsPlaying && tr.playing {
			tr.playing = false
			return []midi.Message{midi.Stop()}
		}
	case transport.PositionUpdate:
		if !tr.playing {
			// relocated while silent; keep gear pointed at the playhead
			return []midi.Message{midi.SPP(sppAt(st.CurrentPosition))}
		}
		target := clocksAt(st.CurrentPosition)
		if target < tr.clocks || target-tr.clocks > maxClockBurst {
			tr.clocks = target
			return []midi.Message{midi.SPP(sppAt(st.CurrentPosition))}
		}
		ret := make([]midi.Message, 0, target-tr.clocks)
		for ; tr.clocks < target; tr.clocks++ {
			ret = append(ret, midi.TimingClock())
		}
		return ret
	}
	return nil
}

func clocksAt(step float64) int {
	return int(math.Round(step * clocksPerStep))
}

// sppAt converts a step position to the 14-bit sixteenth count a Song
// Position Pointer carries.
func sppAt(step float64) uint16 {
	n := math.Round(step)
	if n < 0 {
		n = 0
	}
	if n > 0x3fff {
		n = 0x3fff
	}
	return uint16(n)
}
