package mp3_test

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/mossfeld/voicecast/internal/mp3"
)

// buildBitstream returns metadata junk followed by frame data that
// starts with the sync marker and is post-marker bytes long in total.
func buildBitstream(metadataLen, postMarkerLen int) []byte {
	data := make([]byte, 0, metadataLen+postMarkerLen)
	for range metadataLen {
		data = append(data, 0x00)
	}
	data = append(data, 0xFF, 0xFB)
	for i := 2; i < postMarkerLen; i++ {
		data = append(data, byte(i%251))
	}
	return data
}

func TestSegmentFrameCounts(t *testing.T) {
	table := []struct {
		name          string
		metadataLen   int
		postMarkerLen int
		frameSize     int
		wantFrames    int
		wantLastLen   int
	}{
		{
			name:          "even split",
			metadataLen:   45,
			postMarkerLen: 5490,
			frameSize:     549,
			wantFrames:    10,
			wantLastLen:   549,
		},
		{
			name:          "short final frame",
			metadataLen:   0,
			postMarkerLen: 1000,
			frameSize:     549,
			wantFrames:    2,
			wantLastLen:   451,
		},
		{
			name:          "single short frame",
			metadataLen:   12,
			postMarkerLen: 100,
			frameSize:     549,
			wantFrames:    1,
			wantLastLen:   100,
		},
		{
			name:          "marker at start",
			metadataLen:   0,
			postMarkerLen: 549,
			frameSize:     549,
			wantFrames:    1,
			wantLastLen:   549,
		},
	}

	for _, tc := range table {
		t.Run(tc.name, func(t *testing.T) {
			bitstream := buildBitstream(tc.metadataLen, tc.postMarkerLen)
			stream, err := mp3.Segment(bitstream, tc.frameSize, 144*time.Millisecond)
			if err != nil {
				t.Fatalf("Segment returned error: %v", err)
			}

			if got := stream.Count(); got != tc.wantFrames {
				t.Errorf("Count() = %d, want %d", got, tc.wantFrames)
			}

			var frames []mp3.Frame
			for frame := range stream.Frames() {
				frames = append(frames, frame)
			}
			if len(frames) != tc.wantFrames {
				t.Fatalf("got %d frames, want %d", len(frames), tc.wantFrames)
			}

			for i, frame := range frames {
				if frame.Index != i {
					t.Errorf("frame %d has Index %d", i, frame.Index)
				}
				wantLen := tc.frameSize
				if i == len(frames)-1 {
					wantLen = tc.wantLastLen
				}
				if len(frame.Payload) != wantLen {
					t.Errorf("frame %d payload length = %d, want %d", i, len(frame.Payload), wantLen)
				}
				if frame.Duration != 144*time.Millisecond {
					t.Errorf("frame %d duration = %v, want 144ms", i, frame.Duration)
				}
			}

			// Concatenating the payloads must reconstruct the
			// post-marker bytes exactly.
			var reassembled []byte
			for _, frame := range frames {
				reassembled = append(reassembled, frame.Payload...)
			}
			if !bytes.Equal(reassembled, bitstream[tc.metadataLen:]) {
				t.Error("concatenated payloads do not reconstruct the post-marker bytes")
			}
		})
	}
}

func TestSegmentEmptyBitstream(t *testing.T) {
	stream, err := mp3.Segment(nil, 549, 144*time.Millisecond)
	if err != nil {
		t.Fatalf("Segment of empty bitstream returned error: %v", err)
	}
	if got := stream.Count(); got != 0 {
		t.Errorf("Count() = %d, want 0", got)
	}
	for range stream.Frames() {
		t.Fatal("empty bitstream yielded a frame")
	}
}

func TestSegmentNoSyncMarker(t *testing.T) {
	table := []struct {
		name string
		data []byte
	}{
		{name: "junk only", data: []byte{0x00, 0x01, 0x02, 0x03}},
		{name: "half marker at end", data: []byte{0x00, 0xFF}},
		{name: "wrong second byte", data: []byte{0xFF, 0xFA, 0xFF, 0xFA}},
	}

	for _, tc := range table {
		t.Run(tc.name, func(t *testing.T) {
			_, err := mp3.Segment(tc.data, 549, 144*time.Millisecond)
			var formatErr *mp3.FormatError
			if !errors.As(err, &formatErr) {
				t.Fatalf("expected FormatError, got %v", err)
			}
		})
	}
}

func TestSegmentRejectsBadFrameSize(t *testing.T) {
	for _, frameSize := range []int{0, -1} {
		if _, err := mp3.Segment(buildBitstream(0, 100), frameSize, time.Millisecond); err == nil {
			t.Errorf("Segment accepted frame size %d", frameSize)
		}
	}
}

func TestSegmentRestartable(t *testing.T) {
	stream, err := mp3.Segment(buildBitstream(7, 1234), 100, 144*time.Millisecond)
	if err != nil {
		t.Fatalf("Segment returned error: %v", err)
	}

	collect := func() []mp3.Frame {
		var frames []mp3.Frame
		for frame := range stream.Frames() {
			frames = append(frames, frame)
		}
		return frames
	}

	first := collect()
	second := collect()
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("second iteration differs from first (-first +second):\n%s", diff)
	}
}

func TestFrameDuration(t *testing.T) {
	if got := mp3.FrameDuration(8000); got != 144*time.Millisecond {
		t.Errorf("FrameDuration(8000) = %v, want 144ms", got)
	}
}
