package mouthsync

import (
	"github.com/normanking/mouthsync/internal/audio"
)

// session binds one analyzer to one audio source. Sessions are cached by
// source identity for the engine's lifetime: building the analyzer (window
// tables, FFT plan, spectrum buffers) is the expensive step and must run at
// most once per source, no matter how many times the source is attached.
type session struct {
	src      audio.Source
	analyzer *Analyzer
}

func newSession(src audio.Source, window int, gain float64) *session {
	return &session{
		src:      src,
		analyzer: NewAnalyzer(window, gain),
	}
}
