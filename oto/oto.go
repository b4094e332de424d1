// Package oto plays a tahti.AudioSource on the default audio device using
// the oto library. The device pulls: oto calls Read on its own goroutine,
// which forwards to the source's ReadAudio and converts the float samples to
// the signed 16-bit little-endian format the device consumes.
package oto

import (
	"fmt"
	"math"
	"time"

	"github.com/ebitengine/oto/v3"
	"github.com/vsariola/tahti"
)

type (
	Context struct {
		ctx        *oto.Context
		sampleRate int
	}

	Player struct {
		player *oto.Player
	}

	// sourceReader adapts an AudioSource to the io.Reader oto pulls from.
	sourceReader struct {
		source tahti.AudioSource
		floats []float32
	}
)

// NewContext opens the default audio device for interleaved stereo output at
// the given sample rate and waits until it is ready to play. A bufferSize of
// zero leaves the device buffer at the platform default; smaller buffers cut
// click latency at the cost of underrun headroom.
func NewContext(sampleRate int, bufferSize time.Duration) (*Context, error) {
	if sampleRate <= 0 {
		sampleRate = tahti.DefaultSampleRate
	}
	ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: 2,
		Format:       oto.FormatSignedInt16LE,
		BufferSize:   bufferSize,
	})
	if err != nil {
		return nil, fmt.Errorf("cannot create oto context: %w", err)
	}
	<-ready
	return &Context{ctx: ctx, sampleRate: sampleRate}, nil
}

func (c *Context) SampleRate() int { return c.sampleRate }

// Play starts pulling audio from the source until the source returns an
// error (io.EOF included) or the returned player is closed.
func (c *Context) Play(source tahti.AudioSource) *Player {
	p := c.ctx.NewPlayer(&sourceReader{source: source})
	p.Play()
	return &Player{player: p}
}

func (p *Player) Close() error {
	if err := p.player.Close(); err != nil {
		return fmt.Errorf("cannot close oto player: %w", err)
	}
	return nil
}

func (r *sourceReader) Read(b []byte) (int, error) {
	samples := (len(b) / 2) &^ 1 // whole stereo frames of 16-bit samples
	if samples == 0 {
		return 0, nil
	}
	if cap(r.floats) < samples {
		r.floats = make([]float32, samples)
	}
	buf := r.floats[:samples]
	if err := r.source.ReadAudio(buf); err != nil {
		return 0, err
	}
	// converted by hand; anything reflective is too slow for the audio path
	for i, v := range buf {
		var s int16
		if v < -1.0 {
			s = -math.MaxInt16
		} else if v > 1.0 {
			s = math.MaxInt16
		} else {
			s = int16(v * math.MaxInt16)
		}
		b[2*i] = byte(s)
		b[2*i+1] = byte(s >> 8)
	}
	return samples * 2, nil
}
