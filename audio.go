package tahti

type (
	// AudioEngine is the facade of the audio side of the sequencer, as seen
	// by the transport. The command methods are fire-and-forget requests to
	// the audio thread and return an error only when the request could not
	// be delivered or the engine is unusable; the transport treats any error
	// as "state did not change". CurrentTick and TicksToSteps are safe to
	// call from any goroutine at any rate, as the transport polls them every
	// frame while playing.
	//
	// Ticks are the engine's own clock unit; implementations choose their
	// resolution and expose the conversion through TicksToSteps. The audio
	// package provides the reference implementation.
	AudioEngine interface {
		PlayFrom(step float64) error
		Pause() error
		Stop() error
		JumpToStep(step float64) error
		SetBPM(bpm float64) error
		SetLoopPoints(start, end float64) error
		SetLoopEnabled(enabled bool) error

		CurrentTick() float64
		TicksToSteps(ticks float64) float64
	}

	// AudioSource is the render side of an audio engine: ReadAudio fills the
	// whole buffer with interleaved stereo samples. An output backend (e.g.
	// the oto package) calls it from the audio thread; returning an error
	// stops the output for good.
	AudioSource interface {
		ReadAudio(buf []float32) error
	}
)

// DefaultSampleRate is the output sample rate used when nothing configures
// one.
const DefaultSampleRate = 44100
