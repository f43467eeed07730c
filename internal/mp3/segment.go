package mp3

import (
	"fmt"
	"iter"
	"time"
)

// syncMarker is the frame synchronization pattern for MPEG-1 Layer III
// as produced by our encoder settings: 11 sync bits plus the
// version/layer/protection bits. Everything before its first
// occurrence is container metadata.
var syncMarker = [2]byte{0xFF, 0xFB}

// SamplesPerFrame is the number of PCM samples one MP3 frame encodes.
const SamplesPerFrame = 1152

// FrameDuration returns the nominal playback duration of one MP3 frame
// at the given sample rate (144ms at 8000 Hz).
func FrameDuration(sampleRate int) time.Duration {
	return time.Duration(SamplesPerFrame) * time.Second / time.Duration(sampleRate)
}

// FormatError indicates a bitstream the segmenter cannot work with.
// It aborts the cast before any frame is scheduled.
type FormatError struct {
	Reason string
}

func (e *FormatError) Error() string {
	return "mp3: " + e.Reason
}

var _ error = (*FormatError)(nil)

// Frame is one self-contained playable unit of compressed audio.
// Frames are immutable once produced.
type Frame struct {
	Index    int
	Payload  []byte
	Duration time.Duration
}

// Stream is a segmented bitstream. It holds no open resources and its
// frame sequence can be iterated any number of times, yielding the
// same frames each time.
type Stream struct {
	data          []byte // bytes from the sync marker onward
	frameSize     int
	frameDuration time.Duration
}

// Segment locates the first frame sync marker in bitstream and
// prepares a fixed-size partition of everything after it. Leading
// metadata is discarded. An empty bitstream yields an empty stream; a
// non-empty bitstream with no sync marker is a FormatError.
func Segment(bitstream []byte, frameSize int, frameDuration time.Duration) (*Stream, error) {
	if frameSize <= 0 {
		return nil, fmt.Errorf("frame size must be positive, got %d", frameSize)
	}
	s := &Stream{frameSize: frameSize, frameDuration: frameDuration}
	if len(bitstream) == 0 {
		return s, nil
	}
	start := findSync(bitstream)
	if start < 0 {
		return nil, &FormatError{Reason: "no frame sync marker found"}
	}
	s.data = bitstream[start:]
	return s, nil
}

func findSync(data []byte) int {
	for i := 0; i+1 < len(data); i++ {
		if data[i] == syncMarker[0] && data[i+1] == syncMarker[1] {
			return i
		}
	}
	return -1
}

// Count returns the number of frames the stream will yield.
func (s *Stream) Count() int {
	return (len(s.data) + s.frameSize - 1) / s.frameSize
}

// Frames returns the frame sequence in index order. Payloads are
// consecutive, non-overlapping ranges of the post-marker bytes. The
// final frame may be shorter than the nominal size; it is still
// emitted.
func (s *Stream) Frames() iter.Seq[Frame] {
	return func(yield func(Frame) bool) {
		for i, off := 0, 0; off < len(s.data); i, off = i+1, off+s.frameSize {
			end := min(off+s.frameSize, len(s.data))
			frame := Frame{
				Index:    i,
				Payload:  s.data[off:end],
				Duration: s.frameDuration,
			}
			if !yield(frame) {
				return
			}
		}
	}
}
