package audio

import (
	"fmt"
	"io"
	"time"
)

// WAV header constants.
const (
	wavHeaderSize = 44

	// maxChunkSize bounds chunk allocations; a declared size beyond this is
	// a corrupt or hostile header, not audio we would ever play.
	maxChunkSize = 256 << 20
)

// Clip holds decoded PCM16 little-endian audio.
type Clip struct {
	SampleRate int
	Channels   int
	Data       []byte // interleaved signed 16-bit little-endian samples
}

// DecodeWAV parses a RIFF/WAVE stream containing 16-bit PCM audio.
func DecodeWAV(r io.Reader) (*Clip, error) {
	header := make([]byte, 12)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, fmt.Errorf("read riff header: %w", err)
	}
	if string(header[0:4]) != "RIFF" || string(header[8:12]) != "WAVE" {
		return nil, fmt.Errorf("not a RIFF/WAVE stream")
	}

	clip := &Clip{}
	sawFmt := false

	for {
		chunkHeader := make([]byte, 8)
		if _, err := io.ReadFull(r, chunkHeader); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				break
			}
			return nil, fmt.Errorf("read chunk header: %w", err)
		}
		chunkID := string(chunkHeader[0:4])
		chunkSize := int(getLE32(chunkHeader[4:8]))
		if chunkSize > maxChunkSize {
			return nil, fmt.Errorf("%q chunk size %d exceeds %d byte limit", chunkID, chunkSize, maxChunkSize)
		}

		switch chunkID {
		case "fmt ":
			body := make([]byte, chunkSize)
			if _, err := io.ReadFull(r, body); err != nil {
				return nil, fmt.Errorf("read fmt chunk: %w", err)
			}
			if len(body) < 16 {
				return nil, fmt.Errorf("fmt chunk too short: %d bytes", len(body))
			}
			if format := getLE16(body[0:2]); format != 1 {
				return nil, fmt.Errorf("unsupported audio format %d (want PCM)", format)
			}
			clip.Channels = int(getLE16(body[2:4]))
			clip.SampleRate = int(getLE32(body[4:8]))
			if bits := getLE16(body[14:16]); bits != 16 {
				return nil, fmt.Errorf("unsupported bit depth %d (want 16)", bits)
			}
			sawFmt = true
		case "data":
			body := make([]byte, chunkSize)
			if _, err := io.ReadFull(r, body); err != nil {
				return nil, fmt.Errorf("read data chunk: %w", err)
			}
			clip.Data = body
		default:
			// Skip unknown chunks (LIST, fact, ...)
			if _, err := io.CopyN(io.Discard, r, int64(chunkSize)); err != nil {
				return nil, fmt.Errorf("skip %q chunk: %w", chunkID, err)
			}
		}
		// Chunks are word-aligned; a stream ending right at the final chunk
		// may legitimately omit the pad byte.
		if chunkSize%2 == 1 {
			if _, err := io.CopyN(io.Discard, r, 1); err != nil {
				if err == io.EOF {
					break
				}
				return nil, fmt.Errorf("skip chunk padding: %w", err)
			}
		}
	}

	if !sawFmt {
		return nil, fmt.Errorf("missing fmt chunk")
	}
	if clip.Data == nil {
		return nil, fmt.Errorf("missing data chunk")
	}
	if clip.Channels < 1 {
		return nil, fmt.Errorf("invalid channel count %d", clip.Channels)
	}
	return clip, nil
}

// WAV wraps the clip's PCM data in a WAV header.
func (c *Clip) WAV() []byte {
	dataSize := len(c.Data)
	byteRate := c.SampleRate * c.Channels * 2
	blockAlign := c.Channels * 2

	wav := make([]byte, wavHeaderSize+dataSize)

	// RIFF header
	copy(wav[0:4], "RIFF")
	putLE32(wav[4:8], uint32(36+dataSize))
	copy(wav[8:12], "WAVE")

	// fmt subchunk
	copy(wav[12:16], "fmt ")
	putLE32(wav[16:20], 16) // Subchunk1Size for PCM
	putLE16(wav[20:22], 1)  // AudioFormat (1 = PCM)
	putLE16(wav[22:24], uint16(c.Channels))
	putLE32(wav[24:28], uint32(c.SampleRate))
	putLE32(wav[28:32], uint32(byteRate))
	putLE16(wav[32:34], uint16(blockAlign))
	putLE16(wav[34:36], 16)

	// data subchunk
	copy(wav[36:40], "data")
	putLE32(wav[40:44], uint32(dataSize))
	copy(wav[44:], c.Data)

	return wav
}

// Duration returns the clip length.
func (c *Clip) Duration() time.Duration {
	if c.SampleRate <= 0 || c.Channels <= 0 {
		return 0
	}
	frames := len(c.Data) / (2 * c.Channels)
	return time.Duration(frames) * time.Second / time.Duration(c.SampleRate)
}

// putLE16 writes a uint16 in little-endian format.
func putLE16(b []byte, v uint16) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
}

// putLE32 writes a uint32 in little-endian format.
func putLE32(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}

func getLE16(b []byte) uint16 {
	return uint16(b[0]) | uint16(b[1])<<8
}

func getLE32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}
