package mouthsync

import (
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"

	"github.com/normanking/mouthsync/internal/audio"
)

// Magnitudes below this are treated as silence when computing the centroid.
const magnitudeFloor = 1e-6

// Analyzer extracts loudness and spectral centroid from a fixed-size window
// of the signal. All buffers are allocated once and reused every tick.
type Analyzer struct {
	window int
	gain   float64

	samples  []float64
	windowed []float64
	hamming  []float64
	fft      *fourier.FFT
	coeffs   []complex128
}

// NewAnalyzer creates an analyzer over the given window size.
func NewAnalyzer(window int, gain float64) *Analyzer {
	if window <= 0 {
		window = 2048
	}
	if gain <= 0 {
		gain = 8.0
	}
	a := &Analyzer{
		window:   window,
		gain:     gain,
		samples:  make([]float64, window),
		windowed: make([]float64, window),
		hamming:  make([]float64, window),
		fft:      fourier.NewFFT(window),
		coeffs:   make([]complex128, window/2+1),
	}
	for i := range a.hamming {
		a.hamming[i] = 0.54 - 0.46*math.Cos(2*math.Pi*float64(i)/float64(window-1))
	}
	return a
}

// Window returns the analysis window size in samples.
func (a *Analyzer) Window() int {
	return a.window
}

// SetGain updates the loudness gain factor.
func (a *Analyzer) SetGain(gain float64) {
	if gain > 0 {
		a.gain = gain
	}
}

// Fill reads the current window from the source tap. Samples not covered by
// the read are zeroed so a short tap reads as silence, not stale data.
func (a *Analyzer) Fill(src audio.Source) error {
	n, err := src.ReadTap(a.samples)
	if err != nil {
		n = 0
	}
	for i := n; i < len(a.samples); i++ {
		a.samples[i] = 0
	}
	return err
}

// Loudness returns the mean absolute deviation of the current window scaled
// by the gain factor, clamped to [0,1]. This is the instantaneous per-frame
// amplitude; smoothing is the consumer's job.
func (a *Analyzer) Loudness() float64 {
	var sum float64
	for _, s := range a.samples {
		sum += math.Abs(s)
	}
	v := sum / float64(len(a.samples)) * a.gain
	if v > 1 {
		v = 1
	}
	if v < 0 {
		v = 0
	}
	return v
}

// Centroid returns the energy-weighted mean bin index of the magnitude
// spectrum of the current window, normalized to [0,1] by the highest bin.
// An all-silent spectrum yields 0.
func (a *Analyzer) Centroid() float64 {
	for i, s := range a.samples {
		a.windowed[i] = s * a.hamming[i]
	}
	coeffs := a.fft.Coefficients(a.coeffs, a.windowed)

	var weighted, total float64
	for i, c := range coeffs {
		mag := cmplx.Abs(c) / float64(a.window)
		if mag < magnitudeFloor {
			continue
		}
		weighted += float64(i) * mag
		total += mag
	}
	if total == 0 {
		return 0
	}
	centroid := weighted / total / float64(len(coeffs)-1)
	if centroid > 1 {
		centroid = 1
	}
	return centroid
}
