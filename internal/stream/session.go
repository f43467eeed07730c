package stream

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mossfeld/voicecast/internal/audio"
	"github.com/mossfeld/voicecast/internal/broadcast"
	"github.com/mossfeld/voicecast/internal/config"
	"github.com/mossfeld/voicecast/internal/mp3"
)

// Session runs casts against one registry: encode the source, segment
// the bitstream, then pace delivery of every frame to whichever sinks
// are live at that frame's turn.
type Session struct {
	id        string
	encoder   mp3.Encoder
	registry  *broadcast.Registry
	scheduler *Scheduler
	cfg       config.StreamConfig
	logger    *slog.Logger
}

// NewSession validates cfg and builds a session. Invalid pacing or
// frame settings are rejected here, before any streaming starts.
func NewSession(id string, encoder mp3.Encoder, registry *broadcast.Registry, cfg *config.StreamConfig, logger *slog.Logger) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	scheduler, err := NewScheduler(cfg.PacingFactor)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		id:        id,
		encoder:   encoder,
		registry:  registry,
		scheduler: scheduler,
		cfg:       *cfg,
		logger:    logger,
	}, nil
}

// Cast streams src to every live listener. Encoding and segmentation
// run to completion up front; a bitstream with no sync marker aborts
// the cast before any frame is scheduled. A cast with zero listeners
// still runs to completion; absence of listeners is not an error.
func (s *Session) Cast(ctx context.Context, src *audio.Source) error {
	bitstream, err := s.encoder.Encode(ctx, src, mp3.EncodeOptions{
		BitrateKbps: s.cfg.BitrateKbps,
		SampleRate:  s.cfg.SampleRate,
		Channels:    s.cfg.Channels,
	})
	if err != nil {
		return fmt.Errorf("failed to encode source: %w", err)
	}

	stream, err := mp3.Segment(bitstream, s.cfg.FrameSize, mp3.FrameDuration(s.cfg.SampleRate))
	if err != nil {
		return fmt.Errorf("failed to segment bitstream: %w", err)
	}

	s.logger.Info(
		"starting cast",
		"sessionID", s.id,
		"sourceDuration", src.Duration(),
		"bitstreamBytes", len(bitstream),
		"frames", stream.Count(),
		"listeners", s.registry.Len(),
	)

	if err := s.scheduler.Run(ctx, stream.Frames(), s.deliver); err != nil {
		return fmt.Errorf("cast interrupted: %w", err)
	}

	s.logger.Info("cast complete", "sessionID", s.id, "frames", stream.Count())
	return nil
}

func (s *Session) deliver(frame mp3.Frame) {
	msg, err := broadcast.EncodeChunk(frame.Payload)
	if err != nil {
		s.logger.Error("failed to encode chunk envelope", "sessionID", s.id, "frameIndex", frame.Index, "error", err)
		return
	}
	s.registry.Broadcast(msg)
}
