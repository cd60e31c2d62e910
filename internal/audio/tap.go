package audio

import (
	"fmt"
	"io"
	"sync"
)

// Tap is a non-destructive insertion point in a playback path. Bytes flow
// through Reader unmodified while a mono-mixed copy of the most recent
// samples is kept in a ring buffer for analysis.
type Tap struct {
	mu     sync.Mutex
	ring   []float64
	pos    int
	count  int
	closed bool
}

// NewTap creates a tap holding the given number of recent samples.
func NewTap(capacity int) *Tap {
	if capacity <= 0 {
		capacity = 2048
	}
	return &Tap{ring: make([]float64, capacity)}
}

// Reader wraps r so that all PCM16 data read through it is also pushed into
// the tap's ring buffer, mixed down to mono. The returned reader passes the
// bytes through untouched.
func (t *Tap) Reader(r io.Reader, channels int) io.Reader {
	if channels < 1 {
		channels = 1
	}
	return &tapReader{r: r, tap: t, channels: channels}
}

// ReadRecent copies the most recent samples into dst, oldest first, newest
// last. It returns the number of samples copied.
func (t *Tap) ReadRecent(dst []float64) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return 0, fmt.Errorf("tap closed")
	}

	n := t.count
	if n > len(dst) {
		n = len(dst)
	}
	// Walk backwards from the write position, filling dst from the end.
	for i := 0; i < n; i++ {
		idx := (t.pos - 1 - i + len(t.ring)*2) % len(t.ring)
		dst[n-1-i] = t.ring[idx]
	}
	return n, nil
}

// Close marks the tap closed; subsequent ReadRecent calls fail.
func (t *Tap) Close() {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
}

func (t *Tap) push(sample float64) {
	t.ring[t.pos] = sample
	t.pos = (t.pos + 1) % len(t.ring)
	if t.count < len(t.ring) {
		t.count++
	}
}

type tapReader struct {
	r        io.Reader
	tap      *Tap
	channels int
	carry    []byte // partial frame from the previous read
}

func (tr *tapReader) Read(p []byte) (int, error) {
	n, err := tr.r.Read(p)
	if n > 0 {
		tr.consume(p[:n])
	}
	return n, err
}

// consume mixes complete PCM16 frames down to mono and pushes them into the
// ring. Partial frames are carried over to the next read.
func (tr *tapReader) consume(b []byte) {
	frameSize := 2 * tr.channels

	data := b
	if len(tr.carry) > 0 {
		data = append(tr.carry, b...)
	}

	complete := len(data) / frameSize * frameSize
	rest := data[complete:]

	tr.tap.mu.Lock()
	for off := 0; off+frameSize <= complete; off += frameSize {
		var sum float64
		for ch := 0; ch < tr.channels; ch++ {
			s := int16(data[off+2*ch]) | int16(data[off+2*ch+1])<<8
			sum += float64(s) / 32768.0
		}
		tr.tap.push(sum / float64(tr.channels))
	}
	tr.tap.mu.Unlock()

	tr.carry = tr.carry[:0]
	tr.carry = append(tr.carry, rest...)
}
