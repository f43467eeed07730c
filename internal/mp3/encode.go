package mp3

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"

	"github.com/mossfeld/voicecast/internal/audio"
)

// EncodeOptions are the target encoder settings for one cast.
type EncodeOptions struct {
	BitrateKbps int
	SampleRate  int
	Channels    int
}

// Encoder turns a decoded audio source into a compressed MP3
// bitstream. The rest of the pipeline depends only on this contract.
type Encoder interface {
	Encode(ctx context.Context, src *audio.Source, opts EncodeOptions) ([]byte, error)
}

// FFmpegEncoder encodes by piping raw PCM through an ffmpeg process.
type FFmpegEncoder struct {
	// Path is the ffmpeg binary to run. Empty means "ffmpeg" from PATH.
	Path string
}

var _ Encoder = (*FFmpegEncoder)(nil)

func (e *FFmpegEncoder) Encode(ctx context.Context, src *audio.Source, opts EncodeOptions) ([]byte, error) {
	if src.BytesPerSample != 2 {
		return nil, fmt.Errorf("only 16-bit PCM sources are supported, got %d bytes per sample", src.BytesPerSample)
	}

	bin := e.Path
	if bin == "" {
		bin = "ffmpeg"
	}

	ffmpeg := exec.CommandContext(ctx, bin,
		"-f", "s16le",
		"-ar", strconv.Itoa(src.SampleRate),
		"-ac", strconv.Itoa(src.Channels),
		"-i", "pipe:0",
		"-vn",
		"-f", "mp3",
		"-b:a", fmt.Sprintf("%dk", opts.BitrateKbps),
		"-ar", strconv.Itoa(opts.SampleRate),
		"-ac", strconv.Itoa(opts.Channels),
		"pipe:1",
	)

	ffmpeg.Stdin = bytes.NewReader(src.PCM)

	var out bytes.Buffer
	ffmpeg.Stdout = &out

	if err := ffmpeg.Run(); err != nil {
		return nil, fmt.Errorf("ffmpeg transcode failed: %w", err)
	}

	if out.Len() == 0 && len(src.PCM) > 0 {
		return nil, &FormatError{Reason: "encoder produced an empty bitstream"}
	}
	return out.Bytes(), nil
}
