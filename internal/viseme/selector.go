package viseme

import (
	"math"
	"time"
)

// NoSelection marks the absence of an active viseme.
const NoSelection = -1

// Params tunes the selector.
type Params struct {
	// Smoothing is the per-tick interpolation factor toward the raw
	// amplitude.
	Smoothing float64
	// TalkThreshold is the smoothed amplitude above which the avatar is
	// considered talking.
	TalkThreshold float64
	// QuietInterval is the cadence switching interval at amplitude 0.
	QuietInterval time.Duration
	// LoudInterval is the cadence switching interval at amplitude 1. Louder
	// speech switches shapes at least as fast as quiet speech.
	LoudInterval time.Duration
}

// DefaultParams mirror the tuning the renderer was calibrated against.
func DefaultParams() Params {
	return Params{
		Smoothing:     0.35,
		TalkThreshold: 0.02,
		QuietInterval: 240 * time.Millisecond,
		LoudInterval:  60 * time.Millisecond,
	}
}

// Selection is the selector's per-tick output.
type Selection struct {
	// Index is the active palette shape, or NoSelection while silent.
	Index int
	// Amplitude is the smoothed mouth amplitude; it is the target influence
	// of the active shape, and drives the continuous fallback directly when
	// the palette has no discrete shapes.
	Amplitude float64
	// Talking reports whether the amplitude is above the talk threshold.
	Talking bool
}

// Selector turns the engine's per-frame signals into a discrete mouth-shape
// decision. It owns the smoothed amplitude, the cadence timer, and a pool
// cursor that breaks ties when the cadence path would re-pick the shape
// already active.
type Selector struct {
	palette *Palette
	params  Params

	amplitude float64
	current   int
	cadence   float64
	cursor    int
}

// NewSelector creates a selector over the palette.
func NewSelector(palette *Palette, params Params) *Selector {
	if palette == nil {
		palette = Default()
	}
	if params.Smoothing <= 0 {
		params = DefaultParams()
	}
	return &Selector{
		palette: palette,
		params:  params,
		current: NoSelection,
	}
}

// SetParams re-tunes the selector.
func (s *Selector) SetParams(params Params) {
	if params.Smoothing > 0 {
		s.params = params
	}
}

// Step advances the selector by one frame. dt is the frame's elapsed time,
// raw the engine's unsmoothed amplitude, and centroid the normalized
// spectral centroid (pass 0 when the spectral signal is unavailable).
func (s *Selector) Step(dt time.Duration, raw, centroid float64) Selection {
	s.amplitude += s.params.Smoothing * (raw - s.amplitude)

	talking := s.amplitude > s.params.TalkThreshold
	if !talking {
		// Silence clears the mouth immediately; the idle animation owns the
		// face until speech resumes.
		s.cadence = 0
		s.current = NoSelection
		return s.selection(false)
	}

	size := s.palette.Size()
	if size == 0 {
		// No discrete shapes; the fallback path is driven by amplitude only.
		s.current = NoSelection
		return s.selection(true)
	}

	if centroid > 0 {
		// The spectral signal varies continuously on its own, so it maps
		// straight to a shape with no cadence gate.
		s.current = paletteIndex(centroid, size)
		s.cadence = 0
		return s.selection(true)
	}

	s.cadence += dt.Seconds()
	if interval := s.switchInterval(); s.cadence >= interval {
		s.cadence = 0
		next := paletteIndex(s.amplitude, size)
		if next == s.current && size > 1 {
			// Re-picking the active shape reads as a frozen mouth; cycle to
			// a neighbor instead.
			next = (next + 1 + s.cursor%(size-1)) % size
		}
		s.cursor++
		s.current = next
	}
	return s.selection(true)
}

// switchInterval returns the cadence switching interval for the current
// amplitude: interpolated from QuietInterval down to LoudInterval as the
// amplitude rises, so louder passages animate faster.
func (s *Selector) switchInterval() float64 {
	quiet := s.params.QuietInterval.Seconds()
	loud := s.params.LoudInterval.Seconds()
	return quiet + (loud-quiet)*s.amplitude
}

// Current returns the active selection without advancing time.
func (s *Selector) Current() Selection {
	return s.selection(s.amplitude > s.params.TalkThreshold)
}

// Reset clears all selector state.
func (s *Selector) Reset() {
	s.amplitude = 0
	s.cadence = 0
	s.current = NoSelection
	s.cursor = 0
}

func (s *Selector) selection(talking bool) Selection {
	return Selection{
		Index:     s.current,
		Amplitude: s.amplitude,
		Talking:   talking,
	}
}

// paletteIndex maps a [0,1] signal to a palette index, clamping just below
// 1 so a full-scale signal stays in range.
func paletteIndex(v float64, size int) int {
	if v < 0 {
		v = 0
	}
	if v > 0.9999 {
		v = 0.9999
	}
	return int(math.Floor(v * float64(size)))
}
