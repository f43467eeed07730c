package mp3_test

import (
	"testing"

	"github.com/mossfeld/voicecast/internal/audio"
	"github.com/mossfeld/voicecast/internal/mp3"
)

func TestFFmpegEncoderRejectsNon16BitSources(t *testing.T) {
	encoder := &mp3.FFmpegEncoder{}
	src := &audio.Source{
		SampleRate:     8000,
		BytesPerSample: 1,
		Channels:       1,
		PCM:            make([]byte, 8000),
	}

	_, err := encoder.Encode(t.Context(), src, mp3.EncodeOptions{
		BitrateKbps: 8,
		SampleRate:  8000,
		Channels:    1,
	})
	if err == nil {
		t.Fatal("expected error for 8-bit source")
	}
}
