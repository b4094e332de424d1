// Package audio implements the reference audio engine of the transport: a
// metronome player driven by the playback clock, rendering click accents
// from the timeline's time signatures. It exists so the transport can be
// heard and tested end to end without a full synthesizer behind it.
package audio

// Broker carries messages between the transport side and the player, which
// runs on the audio callback goroutine. Communication is one channel per
// recipient; senders must never block, so commands go through TrySend and
// get dropped (with an error to the caller) when the player cannot keep up.
//
// For closing the player there are two channels: CloseToPlayer has a
// capacity of 1, so requesting a close never blocks; if the channel is full,
// someone already asked and the player is on its way down. FinishedToPlayer
// is never sent to, only closed, once the player has acknowledged the close
// from inside the audio callback. Waiting on it should be combined with a
// timeout, as nothing may be pulling audio anymore.
type Broker struct {
	ToPlayer chan any

	CloseToPlayer    chan struct{}
	FinishedToPlayer chan struct{}
}

func NewBroker() *Broker {
	return &Broker{
		ToPlayer:         make(chan any, 1024),
		CloseToPlayer:    make(chan struct{}, 1),
		FinishedToPlayer: make(chan struct{}),
	}
}

// TrySend is a helper function to send a value to a channel if it is not
// full. It is guaranteed to be non-blocking. Returns true if the value was
// sent, false otherwise.
func TrySend[T any](c chan<- T, v T) bool {
	select {
	case c <- v:
	default:
		return false
	}
	return true
}
