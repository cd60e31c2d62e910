// Package mouthsync drives mouth animation from live audio. While a bound
// source is playing, the engine samples its signal once per animation frame
// and publishes a loudness value and a normalized spectral centroid to the
// attached callbacks; on pause, stop, or end it publishes zero so the mouth
// closes immediately.
package mouthsync

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/normanking/mouthsync/internal/audio"
	"github.com/normanking/mouthsync/internal/bus"
)

// Options configures an Engine.
type Options struct {
	// WindowSize is the analysis window in samples (default 2048).
	WindowSize int
	// Gain scales the loudness estimate (default 8).
	Gain float64
	// Scheduler supplies frame callbacks (default 60fps wall clock).
	Scheduler Scheduler
	// EventBus, when set, receives playback and sampling lifecycle events.
	EventBus *bus.EventBus
	// Logger for engine diagnostics.
	Logger zerolog.Logger
}

// Engine owns the per-source analysis sessions and the sampling loop.
type Engine struct {
	mu       sync.Mutex
	sessions map[audio.Source]*session
	subs     map[*subscription]struct{}
	closed   bool

	window   int
	gain     float64
	clock    Scheduler
	eventBus *bus.EventBus
	logger   zerolog.Logger
}

// New creates an engine.
func New(opts Options) *Engine {
	if opts.WindowSize <= 0 {
		opts.WindowSize = 2048
	}
	if opts.Gain <= 0 {
		opts.Gain = 8.0
	}
	if opts.Scheduler == nil {
		opts.Scheduler = NewTickScheduler(60)
	}
	return &Engine{
		sessions: make(map[audio.Source]*session),
		subs:     make(map[*subscription]struct{}),
		window:   opts.WindowSize,
		gain:     opts.Gain,
		clock:    opts.Scheduler,
		eventBus: opts.EventBus,
		logger:   opts.Logger.With().Str("component", "mouthsync").Logger(),
	}
}

// subscription is the per-attach state: lifecycle listener, callbacks, and
// the pending frame. It is torn down on detach; the session it points at
// stays cached.
//
// emitMu serializes callback invocations between a running tick and a
// concurrent reset; gen (guarded by the engine mutex) lets a tick that
// computed its values before a reset landed detect the reset and drop its
// publication, so the reset's zeros are always the last thing emitted.
type subscription struct {
	src      audio.Source
	sess     *session
	onMouth  func(float64)
	onViseme func(float64)

	unsubscribe func()
	frame       Frame
	sampling    bool
	detached    bool
	gen         uint64

	emitMu sync.Mutex
}

// Attach binds analysis to a playable source. onMouth receives the raw
// per-frame amplitude in [0,1]; onViseme, when non-nil, receives the
// normalized spectral centroid alongside it. Both receive 0 on every pause,
// stop, or end transition. The returned function detaches: it removes the
// lifecycle listener and synchronously cancels any pending frame.
//
// A nil source is a no-op; the caller re-attaches once the resource exists.
func (e *Engine) Attach(src audio.Source, onMouth func(float64), onViseme func(float64)) func() {
	if src == nil || onMouth == nil {
		return func() {}
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return func() {}
	}
	sess := e.sessions[src]
	if sess == nil {
		sess = newSession(src, e.window, e.gain)
		e.sessions[src] = sess
		e.logger.Debug().Int("window", e.window).Msg("Analysis session created")
	}
	sub := &subscription{
		src:      src,
		sess:     sess,
		onMouth:  onMouth,
		onViseme: onViseme,
	}
	e.subs[sub] = struct{}{}
	e.mu.Unlock()

	sub.unsubscribe = src.Subscribe(func(ev audio.Event) {
		e.handleEvent(sub, ev)
	})

	// The play event may already have fired before we attached.
	if !src.Paused() && src.CurrentTime() > 0 {
		e.handleEvent(sub, audio.EventPlay)
	}

	return func() { e.detach(sub) }
}

// Sessions returns the number of cached analysis sessions.
func (e *Engine) Sessions() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.sessions)
}

// SetGain re-tunes the loudness gain on all sessions.
func (e *Engine) SetGain(gain float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if gain <= 0 {
		return
	}
	e.gain = gain
	for _, sess := range e.sessions {
		sess.analyzer.SetGain(gain)
	}
}

func (e *Engine) handleEvent(sub *subscription, ev audio.Event) {
	switch ev {
	case audio.EventPlay:
		// Output contexts can come up suspended (device not ready yet);
		// wake it before sampling starts.
		if sub.src.Suspended() {
			if err := sub.src.Resume(); err != nil {
				e.logger.Warn().Err(err).Msg("Failed to resume output context")
			}
		}
		e.startSampling(sub)
		e.publish(bus.EventTypePlaybackStarted)
	case audio.EventPause:
		e.reset(sub)
		e.publish(bus.EventTypePlaybackPaused)
	case audio.EventEnded:
		e.reset(sub)
		e.publish(bus.EventTypePlaybackEnded)
	}
}

func (e *Engine) publish(t bus.EventType) {
	if e.eventBus != nil {
		e.eventBus.Publish(bus.Event{Type: t})
	}
}

func (e *Engine) startSampling(sub *subscription) {
	e.mu.Lock()
	if sub.detached {
		e.mu.Unlock()
		return
	}
	// A stale frame here means play fired twice; cancel it so only one
	// sampling loop runs.
	if sub.frame != nil {
		sub.frame.Cancel()
	}
	sub.sampling = true
	sub.frame = e.clock.Schedule(func(time.Time) {
		e.tick(sub)
	})
	e.mu.Unlock()

	e.publish(bus.EventTypeSamplingStarted)
}

// reset cancels the pending frame and closes the mouth. It runs on pause and
// ended events and unconditionally on detach; it is idempotent. Bumping gen
// before the zeros go out invalidates any tick that already computed its
// values, so the zeros cannot be overwritten by a stale publication.
func (e *Engine) reset(sub *subscription) {
	e.mu.Lock()
	if sub.frame != nil {
		sub.frame.Cancel()
		sub.frame = nil
	}
	wasSampling := sub.sampling
	sub.sampling = false
	sub.gen++
	e.mu.Unlock()

	sub.emitMu.Lock()
	sub.onMouth(0)
	if sub.onViseme != nil {
		sub.onViseme(0)
	}
	sub.emitMu.Unlock()

	if wasSampling {
		e.publish(bus.EventTypeSamplingStopped)
	}
}

func (e *Engine) detach(sub *subscription) {
	e.mu.Lock()
	if sub.detached {
		e.mu.Unlock()
		return
	}
	sub.detached = true
	delete(e.subs, sub)
	e.mu.Unlock()

	if sub.unsubscribe != nil {
		sub.unsubscribe()
	}
	e.reset(sub)
}

// Close tears down the engine for process shutdown: every live subscription
// is detached (pending frames cancelled, mouths closed) and the session
// cache is dropped. Attach on a closed engine is a no-op.
func (e *Engine) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	subs := make([]*subscription, 0, len(e.subs))
	for sub := range e.subs {
		subs = append(subs, sub)
	}
	e.mu.Unlock()

	for _, sub := range subs {
		e.detach(sub)
	}

	e.mu.Lock()
	e.sessions = make(map[audio.Source]*session)
	e.mu.Unlock()
	e.logger.Debug().Msg("Engine closed")
}

// tick runs once per frame while sampling: read the window, publish loudness
// and centroid, reschedule. A centroid failure (closed tap, torn down
// session) skips only the viseme callback; loudness is always reported.
func (e *Engine) tick(sub *subscription) {
	e.mu.Lock()
	if !sub.sampling || sub.detached {
		e.mu.Unlock()
		return
	}
	gen := sub.gen
	err := sub.sess.analyzer.Fill(sub.src)
	loud := sub.sess.analyzer.Loudness()
	centroid := 0.0
	if err == nil {
		centroid = sub.sess.analyzer.Centroid()
	} else {
		e.logger.Debug().Err(err).Msg("Centroid skipped for this frame")
	}
	e.mu.Unlock()

	// A reset that landed between the analysis above and this point has
	// already queued (or emitted) its zeros; this tick's values are stale
	// and must not reopen the mouth.
	sub.emitMu.Lock()
	e.mu.Lock()
	stale := gen != sub.gen
	e.mu.Unlock()
	if !stale {
		sub.onMouth(loud)
		if sub.onViseme != nil && err == nil {
			sub.onViseme(centroid)
		}
	}
	sub.emitMu.Unlock()

	e.mu.Lock()
	if sub.sampling && !sub.detached {
		sub.frame = e.clock.Schedule(func(time.Time) {
			e.tick(sub)
		})
	}
	e.mu.Unlock()
}
