// Package capture runs the main recording loop: it pulls blocks from the
// audio source, measures levels, drives the segment state machine and feeds
// the display.
package capture

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/pi2rec/vadrec/internal/audio"
	"github.com/pi2rec/vadrec/internal/display"
	"github.com/pi2rec/vadrec/internal/eventlog"
	"github.com/pi2rec/vadrec/internal/segment"
)

// Loop owns the capture goroutine's state. It is driven by a single call to
// Run and is not safe for concurrent use.
type Loop struct {
	src     audio.BlockSource
	machine *segment.Machine
	disp    display.Display
	events  *eventlog.Logger

	// onComplete receives every segment that survived the minimum-duration
	// check. It must not block; post-processing belongs on another goroutine.
	onComplete func(segment.Completed)

	channels      int
	blockDuration time.Duration
}

// New builds a capture loop over the given source and state machine.
func New(src audio.BlockSource, machine *segment.Machine, disp display.Display, events *eventlog.Logger, onComplete func(segment.Completed)) *Loop {
	format := src.Format()
	return &Loop{
		src:           src,
		machine:       machine,
		disp:          disp,
		events:        events,
		onComplete:    onComplete,
		channels:      format.Channels,
		blockDuration: format.BlockDuration(),
	}
}

// Run blocks until the context is canceled or the source stalls. On
// cancellation any in-progress segment is finalized and nil is returned; a
// stall also finalizes but returns audio.ErrReadStall so the caller can exit
// for the process supervisor to restart.
func (l *Loop) Run(ctx context.Context) error {
	l.disp.ShowReady()

	for {
		select {
		case <-ctx.Done():
			l.finalize()
			return nil
		default:
		}

		block, overflow, err := l.src.Read()
		if err != nil {
			if errors.Is(err, audio.ErrReadStall) {
				slog.Error("audio source stalled, giving up")
				l.events.LogAudio(eventlog.AudioStall, "no data from audio source")
				l.finalize()
				return err
			}
			slog.Error("audio read failed", "error", err)
			time.Sleep(l.blockDuration)
			continue
		}
		if overflow {
			slog.Warn("audio input overflow, samples lost")
			l.events.LogAudio(eventlog.AudioOverflow, "input ring buffer overflowed")
		}

		levels := audio.Levels(block, l.channels)
		peak := levels.Peak()
		l.disp.ShowLevels(levels, peak)

		event, err := l.machine.Feed(block, peak, time.Now())
		if err != nil {
			slog.Error("segment write failed", "error", err)
			l.disp.ShowReady()
			continue
		}
		l.handle(event)
	}
}

// finalize closes any in-progress segment the way a silence timeout would.
func (l *Loop) finalize() {
	event, err := l.machine.Finalize()
	if err != nil {
		slog.Warn("failed to finalize segment", "error", err)
	}
	l.handle(event)
}

func (l *Loop) handle(event segment.Event) {
	switch {
	case event.Started:
		slog.Info("segment started", "level", event.Level)
		l.disp.ShowRecording()
		l.events.LogSegment(eventlog.SegmentStarted, "", 0, event.Level)

	case event.Completed != nil:
		c := event.Completed
		slog.Info("segment completed", "file", c.RawPath, "duration", c.Duration)
		l.disp.ShowReady()
		l.events.LogSegment(eventlog.SegmentCompleted, c.RawPath, c.Duration, 0)
		if l.onComplete != nil {
			l.onComplete(*c)
		}

	case event.Discarded != nil:
		d := event.Discarded
		slog.Info("segment discarded, too short", "duration", d.Duration)
		l.disp.ShowReady()
		l.events.LogSegment(eventlog.SegmentDiscarded, d.Path, d.Duration, 0)
	}
}
