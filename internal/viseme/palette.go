// Package viseme selects discrete mouth shapes from the analysis engine's
// loudness and spectral-centroid signals and smooths per-shape influences
// for a renderer to apply.
package viseme

import (
	"fmt"
	"strings"

	"github.com/qmuntal/gltf"
)

// Shape is one mouth shape in the palette.
type Shape struct {
	Name string
	// Target is the mesh morph-target index backing this shape, -1 when the
	// palette was not derived from a mesh.
	Target int
}

// Palette is the fixed set of discrete mouth shapes available to the
// selector, plus an optional continuous mouth-open fallback target. Discrete
// shapes and the fallback are mutually exclusive: a mesh that exposes any
// discrete viseme targets never uses the fallback, even if it is present.
type Palette struct {
	shapes   []Shape
	fallback int
}

const visemePrefix = "viseme_"

// silenceShape is the rest pose; it never belongs to the selectable palette.
const silenceShape = "viseme_sil"

// fallbackShape drives a single continuous mouth-open control on meshes
// without discrete viseme targets.
const fallbackShape = "mouthOpen"

// New builds a palette from shape names, with no mesh backing.
func New(names ...string) *Palette {
	p := &Palette{fallback: -1}
	for _, name := range names {
		p.shapes = append(p.shapes, Shape{Name: name, Target: -1})
	}
	return p
}

// Default returns the standard 14-shape palette used when no mesh is given,
// ordered roughly dark to bright so centroid mapping lands plosives low and
// sibilants high.
func Default() *Palette {
	return New(
		"viseme_PP",
		"viseme_FF",
		"viseme_TH",
		"viseme_DD",
		"viseme_kk",
		"viseme_CH",
		"viseme_nn",
		"viseme_RR",
		"viseme_aa",
		"viseme_E",
		"viseme_I",
		"viseme_O",
		"viseme_U",
		"viseme_SS",
	)
}

// FromGLTF derives the palette from a mesh's morph-target names: every
// viseme_* target except the silence pose joins the palette, and a mouthOpen
// target is remembered as the continuous fallback for meshes with no
// discrete shapes.
func FromGLTF(path string) (*Palette, error) {
	doc, err := gltf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open gltf: %w", err)
	}
	if len(doc.Meshes) == 0 {
		return nil, fmt.Errorf("no meshes in file")
	}

	names := targetNames(doc.Meshes[0])
	return FromTargetNames(names), nil
}

// FromTargetNames classifies morph-target names into a palette.
func FromTargetNames(names []string) *Palette {
	p := &Palette{fallback: -1}
	for i, name := range names {
		switch {
		case name == silenceShape:
			// rest pose, not selectable
		case strings.HasPrefix(name, visemePrefix):
			p.shapes = append(p.shapes, Shape{Name: name, Target: i})
		case name == fallbackShape:
			p.fallback = i
		}
	}
	if len(p.shapes) > 0 {
		p.fallback = -1
	}
	return p
}

func targetNames(mesh *gltf.Mesh) []string {
	extras, ok := mesh.Extras.(map[string]interface{})
	if !ok {
		return nil
	}
	raw, ok := extras["targetNames"].([]interface{})
	if !ok {
		return nil
	}
	names := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			names = append(names, s)
		} else {
			names = append(names, "")
		}
	}
	return names
}

// Size returns the number of discrete shapes.
func (p *Palette) Size() int {
	return len(p.shapes)
}

// Shape returns the shape at index i.
func (p *Palette) Shape(i int) Shape {
	return p.shapes[i]
}

// Names returns the shape names in palette order.
func (p *Palette) Names() []string {
	names := make([]string, len(p.shapes))
	for i, s := range p.shapes {
		names[i] = s.Name
	}
	return names
}

// HasFallback reports whether the palette carries a continuous mouth-open
// target instead of discrete shapes.
func (p *Palette) HasFallback() bool {
	return p.fallback >= 0
}

// FallbackTarget returns the morph-target index of the continuous
// mouth-open control, or -1.
func (p *Palette) FallbackTarget() int {
	return p.fallback
}
