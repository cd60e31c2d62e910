// Package audio provides PCM clip playback with a pass-through analysis tap.
// Audio output goes through a process-wide oto context; the tap exposes the
// most recent samples on the playback path without altering the audible signal.
package audio

import "time"

// Event is a playback lifecycle event.
type Event string

const (
	EventPlay  Event = "play"
	EventPause Event = "pause"
	EventEnded Event = "ended"
)

// Source is a playable audio resource an analysis engine can bind to.
// *Player is the production implementation.
type Source interface {
	// Subscribe registers a lifecycle listener and returns a disposer.
	Subscribe(fn func(Event)) (cancel func())

	// Paused reports whether playback is currently paused or stopped.
	Paused() bool

	// CurrentTime returns the playback position.
	CurrentTime() time.Duration

	// SampleRate returns the source sample rate in Hz.
	SampleRate() int

	// ReadTap copies the most recent mono samples from the playback path
	// into dst, normalized to [-1,1], newest last. It returns the number of
	// samples copied; the rest of dst is left untouched.
	ReadTap(dst []float64) (int, error)

	// Suspended reports whether the underlying output context is not yet
	// ready to produce sound.
	Suspended() bool

	// Resume blocks until the output context is ready.
	Resume() error
}
