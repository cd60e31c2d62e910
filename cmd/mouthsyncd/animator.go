package main

import (
	"sync"
	"time"

	"github.com/normanking/mouthsync/internal/bus"
	"github.com/normanking/mouthsync/internal/server"
	"github.com/normanking/mouthsync/internal/viseme"
)

// frameSink receives one message per engine tick: the WebSocket hub in
// production, a capture in tests.
type frameSink interface {
	Broadcast(server.FrameMessage)
}

// animator is the engine's consumer: it steps the selector once per mouth
// callback, broadcasts the resulting frame to renderer clients, and reports
// shape transitions on the event bus.
type animator struct {
	mu         sync.Mutex
	selector   *viseme.Selector
	influences *viseme.Influences
	sink       frameSink
	events     *bus.EventBus

	centroid  float64
	lastTick  time.Time
	lastShape int
}

func newAnimator(palette *viseme.Palette, params viseme.Params, sink frameSink, events *bus.EventBus) *animator {
	return &animator{
		selector:   viseme.NewSelector(palette, params),
		influences: viseme.NewInfluences(palette, params.Smoothing),
		sink:       sink,
		events:     events,
		lastShape:  viseme.NoSelection,
	}
}

// onMouth runs once per engine tick. The centroid for the same tick arrives
// right after; the selector uses the previous frame's value, which at frame
// rate is indistinguishable.
func (a *animator) onMouth(raw float64) {
	a.mu.Lock()
	now := time.Now()
	dt := 16 * time.Millisecond
	if !a.lastTick.IsZero() {
		if measured := now.Sub(a.lastTick); measured > 0 && measured < time.Second {
			dt = measured
		}
	}
	a.lastTick = now

	sel := a.selector.Step(dt, raw, a.centroid)
	a.influences.Step(sel)

	var transition *bus.Event
	if sel.Index != a.lastShape {
		if sel.Index == viseme.NoSelection {
			transition = &bus.Event{Type: bus.EventTypeVisemeCleared}
		} else {
			transition = &bus.Event{
				Type: bus.EventTypeVisemeChanged,
				Data: map[string]any{"index": sel.Index},
			}
		}
		a.lastShape = sel.Index
	}

	frame := server.FrameMessage{
		Mouth:      raw,
		Centroid:   a.centroid,
		Viseme:     sel.Index,
		Influences: a.influences.Weights(),
		Fallback:   a.influences.Fallback(),
	}
	a.mu.Unlock()

	if transition != nil && a.events != nil {
		a.events.Publish(*transition)
	}
	a.sink.Broadcast(frame)
}

func (a *animator) onViseme(centroid float64) {
	a.mu.Lock()
	a.centroid = centroid
	a.mu.Unlock()
}

func (a *animator) setParams(params viseme.Params) {
	a.mu.Lock()
	a.selector.SetParams(params)
	a.mu.Unlock()
}
