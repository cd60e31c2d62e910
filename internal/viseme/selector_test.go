package viseme

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const frame = 16 * time.Millisecond

// drive steps the selector with a constant raw amplitude until the smoothed
// value converges near it.
func drive(s *Selector, raw float64, steps int) Selection {
	var sel Selection
	for i := 0; i < steps; i++ {
		sel = s.Step(frame, raw, 0)
	}
	return sel
}

func TestSilenceClearsSelection(t *testing.T) {
	s := NewSelector(Default(), DefaultParams())

	sel := drive(s, 0.8, 60)
	require.True(t, sel.Talking)
	require.NotEqual(t, NoSelection, sel.Index)

	// One tick of silence is not enough to drop a smoothed 0.8 below the
	// threshold, but once it crosses, the selection clears on that very tick.
	for i := 0; i < 60; i++ {
		sel = s.Step(frame, 0, 0)
		if !sel.Talking {
			break
		}
	}
	require.False(t, sel.Talking)
	assert.Equal(t, NoSelection, sel.Index, "selection must clear immediately, not fade")
}

func TestCentroidMapsDirectly(t *testing.T) {
	palette := Default()
	s := NewSelector(palette, DefaultParams())

	// Warm the amplitude above the talk threshold first.
	drive(s, 0.5, 30)

	sel := s.Step(frame, 0.5, 0.0001)
	assert.Equal(t, 0, sel.Index, "low centroid picks the first shape")

	sel = s.Step(frame, 0.5, 0.999)
	assert.Equal(t, palette.Size()-1, sel.Index, "high centroid picks the last shape")

	// Direct mapping, re-evaluated every tick with no cadence gate.
	sel = s.Step(frame, 0.5, 0.0001)
	assert.Equal(t, 0, sel.Index)
}

func TestCentroidFullScaleStaysInRange(t *testing.T) {
	palette := Default()
	s := NewSelector(palette, DefaultParams())
	drive(s, 0.5, 30)

	sel := s.Step(frame, 0.5, 1.0)
	assert.Less(t, sel.Index, palette.Size())
	assert.GreaterOrEqual(t, sel.Index, 0)
}

func TestCadenceSwitchAtHalfAmplitude(t *testing.T) {
	palette := New(make([]string, 12)...)
	require.Equal(t, 12, palette.Size())

	s := NewSelector(palette, DefaultParams())

	// Pin the smoothed amplitude: stepping toward a raw 0.5 from 0.5 holds it.
	s.amplitude = 0.5

	// lerp(0.24, 0.06, 0.5) = 0.15s: nine 16ms frames accumulate 0.144s with
	// no switch, the tenth crosses the interval.
	var sel Selection
	for i := 0; i < 9; i++ {
		sel = s.Step(frame, 0.5, 0)
		require.Equal(t, NoSelection, sel.Index)
	}

	sel = s.Step(frame, 0.5, 0)
	assert.Equal(t, 6, sel.Index, "floor(0.5 x 12) selects the middle shape")
	assert.Equal(t, 0.0, s.cadence, "cadence resets after a switch")
}

func TestSwitchIntervalMonotone(t *testing.T) {
	s := NewSelector(Default(), DefaultParams())

	prev := -1.0
	for _, v := range []float64{0.03, 0.1, 0.25, 0.5, 0.75, 1.0} {
		s.amplitude = v
		interval := s.switchInterval()
		if prev >= 0 {
			assert.LessOrEqual(t, interval, prev, "louder speech must switch at least as fast")
		}
		prev = interval
	}

	s.amplitude = 0
	assert.InDelta(t, 0.24, s.switchInterval(), 1e-9)
	s.amplitude = 1
	assert.InDelta(t, 0.06, s.switchInterval(), 1e-9)
	s.amplitude = 0.5
	assert.InDelta(t, 0.15, s.switchInterval(), 1e-9)
}

func TestCadenceTieBreakAdvances(t *testing.T) {
	palette := New(make([]string, 12)...)
	s := NewSelector(palette, DefaultParams())

	s.amplitude = 0.5
	s.current = paletteIndex(0.5, 12)
	s.cadence = 10 // force an immediate switch

	sel := s.Step(frame, 0.5, 0)
	assert.Equal(t, 7, sel.Index, "re-picking the active shape cycles to a neighbor")
	assert.Equal(t, 1, s.cursor, "pool cursor advances on every cadence pick")
}

func TestNoSignalKeepsPreviousSelection(t *testing.T) {
	palette := Default()
	s := NewSelector(palette, DefaultParams())
	drive(s, 0.5, 30)

	sel := s.Step(frame, 0.5, 0.5)
	picked := sel.Index
	require.NotEqual(t, NoSelection, picked)

	// Centroid gone, cadence not yet elapsed: the previous selection holds.
	sel = s.Step(frame, 0.5, 0)
	assert.Equal(t, picked, sel.Index)
}

func TestEmptyPaletteFallsBack(t *testing.T) {
	s := NewSelector(New(), DefaultParams())

	sel := drive(s, 0.8, 60)
	require.True(t, sel.Talking)
	assert.Equal(t, NoSelection, sel.Index, "no discrete selection without shapes")
	assert.Greater(t, sel.Amplitude, 0.02, "amplitude still drives the continuous fallback")
}

func TestAmplitudeSmoothing(t *testing.T) {
	s := NewSelector(Default(), DefaultParams())

	sel := s.Step(frame, 1.0, 0)
	assert.InDelta(t, 0.35, sel.Amplitude, 1e-9, "first step moves 35% toward the raw value")

	sel = s.Step(frame, 1.0, 0)
	assert.InDelta(t, 0.35+0.35*0.65, sel.Amplitude, 1e-9)
}
