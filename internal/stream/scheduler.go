// Package stream contains the pacing loop and the cast session that
// ties encoding, segmentation, and broadcast together.
package stream

import (
	"context"
	"fmt"
	"iter"
	"time"

	"github.com/mossfeld/voicecast/internal/config"
	"github.com/mossfeld/voicecast/internal/mp3"
)

// Scheduler drives frame delivery at a rate derived from each frame's
// nominal playback duration. The pacing factor scales the inter-frame
// delay below the nominal duration so the listener always holds a
// margin of buffered audio; it is configuration, not a constant.
type Scheduler struct {
	pacingFactor float64
}

func NewScheduler(pacingFactor float64) (*Scheduler, error) {
	if pacingFactor <= 0 || pacingFactor > 1 {
		return nil, &config.ConfigurationError{
			Field:  "pacing factor",
			Reason: fmt.Sprintf("must be in (0, 1], got %v", pacingFactor),
		}
	}
	return &Scheduler{pacingFactor: pacingFactor}, nil
}

// Run hands each frame to deliver in index order, then waits the
// frame's duration scaled by the pacing factor before advancing.
// Cancellation is honored between frames, never mid-frame: a canceled
// context stops the sequence without delivering the remaining frames.
// Run returns after the final frame's delay.
func (s *Scheduler) Run(ctx context.Context, frames iter.Seq[mp3.Frame], deliver func(mp3.Frame)) error {
	for frame := range frames {
		if err := ctx.Err(); err != nil {
			return err
		}

		deliver(frame)

		pause := time.Duration(float64(frame.Duration) * s.pacingFactor)
		timer := time.NewTimer(pause)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return nil
}
