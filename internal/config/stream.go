package config

import (
	"context"
	"fmt"

	"github.com/sethvargo/go-envconfig"
)

// ConfigurationError indicates a config value that would make a stream
// misbehave. It is returned before any streaming starts.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid configuration for %s: %s", e.Field, e.Reason)
}

var _ error = (*ConfigurationError)(nil)

// StreamConfig holds the encoder and pacing settings for a cast.
//
// FrameSize is the expected byte size of one compressed frame for the
// configured bitrate and sample rate. It is a property of the encoder
// configuration, not discovered per file. The defaults match 8 kbps MP3
// at 8 kHz mono, where one 1152-sample frame is roughly 549 bytes and
// lasts 144ms.
type StreamConfig struct {
	PacingFactor float64 `env:"STREAM_PACING_FACTOR, default=0.5"`
	FrameSize    int     `env:"STREAM_FRAME_SIZE, default=549"`
	BitrateKbps  int     `env:"STREAM_BITRATE_KBPS, default=8"`
	SampleRate   int     `env:"STREAM_SAMPLE_RATE, default=8000"`
	Channels     int     `env:"STREAM_CHANNELS, default=1"`
}

func NewStreamConfigFromEnv() (*StreamConfig, error) {
	var cfg StreamConfig
	if err := envconfig.Process(context.Background(), &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings that a Session must never run with.
func (c *StreamConfig) Validate() error {
	if c.PacingFactor <= 0 || c.PacingFactor > 1 {
		return &ConfigurationError{
			Field:  "STREAM_PACING_FACTOR",
			Reason: fmt.Sprintf("must be in (0, 1], got %v", c.PacingFactor),
		}
	}
	if c.FrameSize <= 0 {
		return &ConfigurationError{
			Field:  "STREAM_FRAME_SIZE",
			Reason: fmt.Sprintf("must be positive, got %d", c.FrameSize),
		}
	}
	if c.BitrateKbps <= 0 {
		return &ConfigurationError{
			Field:  "STREAM_BITRATE_KBPS",
			Reason: fmt.Sprintf("must be positive, got %d", c.BitrateKbps),
		}
	}
	if c.SampleRate <= 0 {
		return &ConfigurationError{
			Field:  "STREAM_SAMPLE_RATE",
			Reason: fmt.Sprintf("must be positive, got %d", c.SampleRate),
		}
	}
	if c.Channels <= 0 {
		return &ConfigurationError{
			Field:  "STREAM_CHANNELS",
			Reason: fmt.Sprintf("must be positive, got %d", c.Channels),
		}
	}
	return nil
}
