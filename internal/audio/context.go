package audio

import (
	"fmt"
	"io"
	"sync"

	"github.com/hajimehoshi/oto/v2"
)

// Context owns the process-wide audio output device. It is created lazily on
// first use and never torn down: repeated open/close cycles against the OS
// audio device are a reliable source of reconnection errors, so teardown is
// left to process exit.
//
// The device may not be ready immediately after creation (the ready channel
// closes once the OS accepts the stream); until then the context reports
// itself suspended and Resume blocks.
type Context struct {
	oto   *oto.Context
	ready chan struct{}
}

var (
	sharedMu  sync.Mutex
	sharedCtx *Context
)

// SharedContext returns the process-wide output context, creating it on
// first call. Later calls reuse the existing context regardless of the
// requested format; the first caller's format wins.
func SharedContext(sampleRate, channels int) (*Context, error) {
	sharedMu.Lock()
	defer sharedMu.Unlock()

	if sharedCtx != nil {
		return sharedCtx, nil
	}

	ctx, ready, err := oto.NewContext(sampleRate, channels, 2)
	if err != nil {
		return nil, fmt.Errorf("open audio device: %w", err)
	}
	sharedCtx = &Context{oto: ctx, ready: ready}
	return sharedCtx, nil
}

// Suspended reports whether the output device is not yet ready.
func (c *Context) Suspended() bool {
	select {
	case <-c.ready:
		return false
	default:
		return true
	}
}

// Resume blocks until the output device is ready.
func (c *Context) Resume() error {
	<-c.ready
	return nil
}

// NewPlayer creates an oto player reading PCM16 from r.
func (c *Context) NewPlayer(r io.Reader) oto.Player {
	return c.oto.NewPlayer(r)
}
