package audio

import (
	"encoding/binary"
	"fmt"
	"io"
)

const wavFormatPCM = 1

// DecodeWAV reads a RIFF/WAVE file and returns its PCM data as a Source.
// Only uncompressed PCM is supported; compressed WAV variants should be
// transcoded before upload.
func DecodeWAV(r io.Reader) (*Source, error) {
	var riff [12]byte
	if _, err := io.ReadFull(r, riff[:]); err != nil {
		return nil, fmt.Errorf("failed to read RIFF header: %w", err)
	}
	if string(riff[0:4]) != "RIFF" || string(riff[8:12]) != "WAVE" {
		return nil, fmt.Errorf("not a RIFF/WAVE file")
	}

	var src Source
	var sawFormat bool

	for {
		var chunk [8]byte
		if _, err := io.ReadFull(r, chunk[:]); err != nil {
			if err == io.EOF {
				break
			}
			return nil, fmt.Errorf("failed to read chunk header: %w", err)
		}
		id := string(chunk[0:4])
		size := binary.LittleEndian.Uint32(chunk[4:8])

		switch id {
		case "fmt ":
			fmtChunk := make([]byte, size)
			if _, err := io.ReadFull(r, fmtChunk); err != nil {
				return nil, fmt.Errorf("failed to read fmt chunk: %w", err)
			}
			if len(fmtChunk) < 16 {
				return nil, fmt.Errorf("fmt chunk too short: %d bytes", len(fmtChunk))
			}
			format := binary.LittleEndian.Uint16(fmtChunk[0:2])
			if format != wavFormatPCM {
				return nil, fmt.Errorf("unsupported WAV format code %d, only PCM is supported", format)
			}
			src.Channels = int(binary.LittleEndian.Uint16(fmtChunk[2:4]))
			src.SampleRate = int(binary.LittleEndian.Uint32(fmtChunk[4:8]))
			src.BytesPerSample = int(binary.LittleEndian.Uint16(fmtChunk[14:16])) / 8
			sawFormat = true
		case "data":
			if !sawFormat {
				return nil, fmt.Errorf("data chunk before fmt chunk")
			}
			src.PCM = make([]byte, size)
			if _, err := io.ReadFull(r, src.PCM); err != nil {
				return nil, fmt.Errorf("failed to read data chunk: %w", err)
			}
			return &src, nil
		default:
			// LIST, fact, and friends carry no audio.
			if _, err := io.CopyN(io.Discard, r, int64(size)); err != nil {
				return nil, fmt.Errorf("failed to skip %q chunk: %w", id, err)
			}
		}
		// Chunks are word-aligned.
		if size%2 == 1 {
			if _, err := io.CopyN(io.Discard, r, 1); err != nil && err != io.EOF {
				return nil, err
			}
		}
	}

	return nil, fmt.Errorf("no data chunk found")
}
