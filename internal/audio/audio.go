// Package audio holds decoded PCM sources and the WAV loading that
// produces them. A Source is created once per cast and read-only after.
package audio

import "time"

// Source is an immutable decoded audio buffer.
type Source struct {
	SampleRate     int
	BytesPerSample int
	Channels       int
	PCM            []byte
}

// BytesPerSecond returns the raw PCM data rate.
func (s *Source) BytesPerSecond() int {
	return s.SampleRate * s.BytesPerSample * s.Channels
}

// Duration returns the playback length of the buffer.
func (s *Source) Duration() time.Duration {
	bps := s.BytesPerSecond()
	if bps == 0 {
		return 0
	}
	return time.Duration(len(s.PCM)) * time.Second / time.Duration(bps)
}

// Samples returns the number of samples per channel in the buffer.
func (s *Source) Samples() int {
	frame := s.BytesPerSample * s.Channels
	if frame == 0 {
		return 0
	}
	return len(s.PCM) / frame
}
