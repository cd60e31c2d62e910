package audio

import (
	"bytes"
	"sync"
	"time"

	"github.com/hajimehoshi/oto/v2"
	"github.com/rs/zerolog"
)

// Player plays one PCM clip through the shared output context and reports
// playback lifecycle events to subscribers. A Tap sits on the playback path
// so analyzers can read the signal without altering it.
type Player struct {
	mu sync.Mutex

	clip *Clip
	ctx  *Context
	tap  *Tap
	oto  oto.Player

	playing   bool
	endedFlag bool
	startedAt time.Time
	elapsed   time.Duration

	listeners    map[int]func(Event)
	nextListener int

	watchStop chan struct{}

	logger zerolog.Logger
}

// NewPlayer creates a player for the clip. The shared output context is
// opened on first use.
func NewPlayer(clip *Clip, tapSize int, logger zerolog.Logger) (*Player, error) {
	ctx, err := SharedContext(clip.SampleRate, clip.Channels)
	if err != nil {
		return nil, err
	}

	tap := NewTap(tapSize)
	reader := tap.Reader(bytes.NewReader(clip.Data), clip.Channels)

	p := &Player{
		clip:      clip,
		ctx:       ctx,
		tap:       tap,
		oto:       ctx.NewPlayer(reader),
		listeners: make(map[int]func(Event)),
		logger:    logger.With().Str("component", "player").Logger(),
	}
	return p, nil
}

// Play starts or resumes playback and emits EventPlay.
func (p *Player) Play() {
	p.mu.Lock()
	if p.playing || p.endedFlag {
		p.mu.Unlock()
		return
	}
	p.playing = true
	p.startedAt = time.Now()
	p.oto.Play()
	stop := make(chan struct{})
	p.watchStop = stop
	p.mu.Unlock()

	p.logger.Debug().Msg("Playback started")
	p.emit(EventPlay)

	go p.watchDrain(stop)
}

// Pause pauses playback and emits EventPause.
func (p *Player) Pause() {
	p.mu.Lock()
	if !p.playing {
		p.mu.Unlock()
		return
	}
	p.playing = false
	p.elapsed += time.Since(p.startedAt)
	p.oto.Pause()
	if p.watchStop != nil {
		close(p.watchStop)
		p.watchStop = nil
	}
	p.mu.Unlock()

	p.logger.Debug().Msg("Playback paused")
	p.emit(EventPause)
}

// watchDrain waits for the clip to run out and reports EventEnded. The oto
// player stops on its own once the source reader is exhausted and the device
// buffer drains.
func (p *Player) watchDrain(stop chan struct{}) {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			p.mu.Lock()
			if !p.playing {
				p.mu.Unlock()
				return
			}
			if p.oto.IsPlaying() {
				p.mu.Unlock()
				continue
			}
			p.playing = false
			p.endedFlag = true
			p.elapsed = p.clip.Duration()
			p.watchStop = nil
			p.mu.Unlock()

			p.logger.Debug().Msg("Playback ended")
			p.emit(EventEnded)
			return
		}
	}
}

// Subscribe registers a lifecycle listener. The returned disposer removes it.
func (p *Player) Subscribe(fn func(Event)) func() {
	p.mu.Lock()
	id := p.nextListener
	p.nextListener++
	p.listeners[id] = fn
	p.mu.Unlock()

	return func() {
		p.mu.Lock()
		delete(p.listeners, id)
		p.mu.Unlock()
	}
}

func (p *Player) emit(ev Event) {
	p.mu.Lock()
	fns := make([]func(Event), 0, len(p.listeners))
	for _, fn := range p.listeners {
		fns = append(fns, fn)
	}
	p.mu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}

// Paused reports whether playback is paused or stopped.
func (p *Player) Paused() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return !p.playing
}

// Ended reports whether the clip has played to completion.
func (p *Player) Ended() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.endedFlag
}

// CurrentTime returns the playback position.
func (p *Player) CurrentTime() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	pos := p.elapsed
	if p.playing {
		pos += time.Since(p.startedAt)
	}
	if max := p.clip.Duration(); pos > max {
		pos = max
	}
	return pos
}

// SampleRate returns the clip sample rate.
func (p *Player) SampleRate() int {
	return p.clip.SampleRate
}

// ReadTap copies the most recent mono samples into dst.
func (p *Player) ReadTap(dst []float64) (int, error) {
	return p.tap.ReadRecent(dst)
}

// Suspended reports whether the output context is not yet ready.
func (p *Player) Suspended() bool {
	return p.ctx.Suspended()
}

// Resume blocks until the output context is ready.
func (p *Player) Resume() error {
	return p.ctx.Resume()
}
