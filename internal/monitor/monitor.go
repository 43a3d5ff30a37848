// Package monitor implements the level-calibration mode: it streams
// per-channel levels to the display and, on exit, prints gain and threshold
// recommendations derived from the observed range.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/pi2rec/vadrec/internal/audio"
	"github.com/pi2rec/vadrec/internal/display"
)

// Stats accumulates the observed peak range over a monitoring session.
type Stats struct {
	Max    int
	Min    int
	Blocks int
}

// Observe folds one block's peak into the stats.
func (s *Stats) Observe(peak int) {
	if s.Blocks == 0 || peak > s.Max {
		s.Max = peak
	}
	if s.Blocks == 0 || peak < s.Min {
		s.Min = peak
	}
	s.Blocks++
}

// GainRecommendation classifies the observed maximum level.
func GainRecommendation(peak int) string {
	switch {
	case peak < 500:
		return "TOO LOW"
	case peak < 1500:
		return "LOW"
	case peak < 8000:
		return "GOOD"
	case peak < 20000:
		return "HIGH"
	default:
		return "TOO HIGH"
	}
}

// SignalQuality assesses the dynamic range between the loudest and quietest
// observed blocks.
func SignalQuality(maxLevel, minLevel int) string {
	if maxLevel == 0 {
		return "NO SIGNAL"
	}

	dynamicRange := float64(maxLevel) / float64(max(minLevel, 1))

	switch {
	case dynamicRange < 2:
		return "POOR SNR"
	case dynamicRange < 5:
		return "OK SNR"
	case dynamicRange < 10:
		return "GOOD SNR"
	default:
		return "EXCELLENT SNR"
	}
}

// Run streams levels from the source until the context is canceled, then
// writes the calibration report. threshold is the currently configured
// trigger level, included in the report for reference.
func Run(ctx context.Context, src audio.BlockSource, disp display.Display, out io.Writer, threshold int) error {
	format := src.Format()
	channels := format.Channels

	fmt.Fprintf(out, "Monitoring %d channels at %dHz\n", channels, format.SampleRate)
	fmt.Fprintf(out, "Configured threshold: %d\n", threshold)
	fmt.Fprintln(out, "Press Ctrl+C to stop")

	var stats Stats

	for {
		select {
		case <-ctx.Done():
			report(out, &stats, threshold)
			return nil
		default:
		}

		block, overflow, err := src.Read()
		if err != nil {
			if errors.Is(err, audio.ErrReadStall) {
				report(out, &stats, threshold)
				return err
			}
			slog.Error("audio read failed", "error", err)
			time.Sleep(format.BlockDuration())
			continue
		}
		if overflow {
			slog.Warn("audio input overflow")
		}

		levels := audio.Levels(block, channels)
		peak := levels.Peak()
		stats.Observe(peak)
		disp.ShowLevels(levels, peak)
	}
}

// report prints the gain analysis and threshold recommendation.
func report(out io.Writer, stats *Stats, threshold int) {
	minSeen := stats.Min
	if stats.Blocks == 0 {
		minSeen = 0
	}

	fmt.Fprintf(out, "\nMaximum level recorded: %d\n", stats.Max)
	fmt.Fprintf(out, "Minimum level recorded: %d\n", minSeen)
	fmt.Fprintf(out, "\nGain status: %s\n", GainRecommendation(stats.Max))
	fmt.Fprintf(out, "Signal quality: %s\n", SignalQuality(stats.Max, minSeen))

	switch {
	case stats.Max < 500:
		fmt.Fprintln(out, "\nIncrease gain on your audio interface. Levels are too low for good recording quality.")
	case stats.Max < 1500:
		fmt.Fprintln(out, "\nConsider increasing gain slightly. There is headroom for higher input levels.")
	case stats.Max > 20000:
		fmt.Fprintln(out, "\nDecrease gain. Levels this high risk clipping.")
	default:
		fmt.Fprintln(out, "\nGain levels look good.")
	}

	fmt.Fprintf(out, "\nChoose a threshold between %d and %d (currently %d).\n", minSeen, stats.Max, threshold)
}
