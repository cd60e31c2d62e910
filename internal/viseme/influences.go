package viseme

// Influences holds the smoothed per-shape morph weights the renderer blends
// with. The selector only decides which shape is hot and at what target
// amplitude; this type moves every weight toward its target by the shared
// interpolation factor, one step per tick, so shape changes never pop.
type Influences struct {
	weights   []float64
	fallback  float64
	smoothing float64
}

// NewInfluences sizes the weight set for the palette.
func NewInfluences(palette *Palette, smoothing float64) *Influences {
	if smoothing <= 0 || smoothing > 1 {
		smoothing = 0.35
	}
	return &Influences{
		weights:   make([]float64, palette.Size()),
		smoothing: smoothing,
	}
}

// Step blends toward the selection: the hot shape's target is the smoothed
// amplitude, every other shape decays toward 0. With an empty palette the
// continuous fallback weight tracks the amplitude instead.
func (in *Influences) Step(sel Selection) {
	if len(in.weights) == 0 {
		in.fallback += in.smoothing * (sel.Amplitude - in.fallback)
		return
	}

	for i := range in.weights {
		target := 0.0
		if i == sel.Index {
			target = sel.Amplitude
		}
		in.weights[i] += in.smoothing * (target - in.weights[i])
	}
}

// Weights returns the current per-shape weights, clamped to [0,1].
func (in *Influences) Weights() []float64 {
	out := make([]float64, len(in.weights))
	for i, w := range in.weights {
		out[i] = clamp(w, 0, 1)
	}
	return out
}

// Weight returns one shape's current weight.
func (in *Influences) Weight(i int) float64 {
	return clamp(in.weights[i], 0, 1)
}

// Fallback returns the continuous mouth-open weight used when the palette
// has no discrete shapes.
func (in *Influences) Fallback() float64 {
	return clamp(in.fallback, 0, 1)
}

// Reset zeroes all weights.
func (in *Influences) Reset() {
	for i := range in.weights {
		in.weights[i] = 0
	}
	in.fallback = 0
}

func clamp(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
