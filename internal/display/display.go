// Package display abstracts the operator-facing status surface. Renderers
// are informational only; a broken renderer never disturbs capture.
package display

import (
	"log/slog"
	"sync"
)

// Display receives recorder state changes and per-block level readings.
// ShowLevels is called once per block; implementations must be cheap or
// coalesce internally.
type Display interface {
	ShowReady()
	ShowRecording()
	ShowLevels(levels []int, peak int)
}

// Multi fans out to several displays. A panicking renderer is recovered and
// logged so the remaining displays keep working.
type Multi struct {
	displays []Display
}

// NewMulti returns a Display that forwards to all given displays.
func NewMulti(displays ...Display) *Multi {
	return &Multi{displays: displays}
}

func (m *Multi) ShowReady() {
	for _, d := range m.displays {
		guard(func() { d.ShowReady() })
	}
}

func (m *Multi) ShowRecording() {
	for _, d := range m.displays {
		guard(func() { d.ShowRecording() })
	}
}

func (m *Multi) ShowLevels(levels []int, peak int) {
	for _, d := range m.displays {
		guard(func() { d.ShowLevels(levels, peak) })
	}
}

func guard(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("display renderer panicked", "panic", r)
		}
	}()
	fn()
}

// LogDisplay logs state transitions. Level readings are dropped; they would
// flood the log at one line per block.
type LogDisplay struct {
	mu        sync.Mutex
	recording bool
	started   bool
}

// NewLogDisplay returns a Display backed by the structured logger.
func NewLogDisplay() *LogDisplay {
	return &LogDisplay{}
}

func (d *LogDisplay) ShowReady() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started && !d.recording {
		return
	}
	d.started = true
	d.recording = false
	slog.Info("ready, waiting for audio")
}

func (d *LogDisplay) ShowRecording() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.recording {
		return
	}
	d.recording = true
	slog.Info("recording started")
}

func (d *LogDisplay) ShowLevels([]int, int) {}
