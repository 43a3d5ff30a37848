package segment

import (
	"time"
)

// Config holds the trigger and timeout policy for the state machine.
type Config struct {
	Threshold      int           // peak level that starts/extends a segment
	BlockDuration  time.Duration // audio covered by one block
	SilenceTimeout time.Duration // accumulated silence that closes a segment
	MinDuration    time.Duration // segments shorter than this are discarded
}

// Opener creates backing storage for a new segment.
type Opener interface {
	Open(start time.Time) (BlockWriter, error)
}

// BlockWriter is the backing storage of one in-progress segment. It is
// exclusively owned by the Machine until Close or Discard, after which the
// file at Path is frozen and ownership passes to the caller.
type BlockWriter interface {
	WriteBlock(block []byte) error
	Close() error
	Discard() error
	Path() string
}

// Completed describes a closed segment that met the minimum-duration policy.
// Duration is the recorded span minus the accumulated trailing silence.
type Completed struct {
	RawPath  string
	Start    time.Time
	Duration time.Duration
}

// Discarded describes a closed segment that was too short and was deleted.
type Discarded struct {
	Path     string
	Start    time.Time
	Duration time.Duration
}

// Event reports the state transition, if any, caused by one block.
type Event struct {
	Started   bool // idle→active transition; the block was the first data
	Level     int  // peak level of the triggering block (Started only)
	Completed *Completed
	Discarded *Discarded
}

// Machine is the recording state machine. It consumes one peak-level
// reading per block and owns the in-progress backing storage. It is driven
// from a single goroutine; the injected time makes it deterministic under
// test.
type Machine struct {
	cfg    Config
	store  Opener
	writer BlockWriter

	start    time.Time
	recorded time.Duration // blocks appended × BlockDuration
	silence  time.Duration // accumulated silence since last loud block
}

// New returns an idle Machine.
func New(cfg Config, store Opener) *Machine {
	return &Machine{cfg: cfg, store: store}
}

// Recording reports whether a segment is in progress.
func (m *Machine) Recording() bool {
	return m.writer != nil
}

// Feed processes one block and its peak level. The returned Event carries
// any transition; a Completed event hands ownership of the backing file to
// the caller. Errors leave the machine idle.
func (m *Machine) Feed(block []byte, peak int, now time.Time) (Event, error) {
	if m.writer == nil {
		if peak < m.cfg.Threshold {
			return Event{}, nil
		}
		w, err := m.store.Open(now)
		if err != nil {
			return Event{}, err
		}
		// The triggering block is the first data of the segment.
		if err := w.WriteBlock(block); err != nil {
			_ = w.Discard()
			return Event{}, err
		}
		m.writer = w
		m.start = now
		m.recorded = m.cfg.BlockDuration
		m.silence = 0
		return Event{Started: true, Level: peak}, nil
	}

	if err := m.writer.WriteBlock(block); err != nil {
		_ = m.writer.Discard()
		m.reset()
		return Event{}, err
	}
	m.recorded += m.cfg.BlockDuration

	if peak < m.cfg.Threshold {
		m.silence += m.cfg.BlockDuration
	} else {
		m.silence = 0
	}

	if m.silence >= m.cfg.SilenceTimeout {
		return m.close()
	}
	return Event{}, nil
}

// Finalize closes any in-progress segment exactly as a silence timeout
// would, including the minimum-duration check. Safe to call while idle.
func (m *Machine) Finalize() (Event, error) {
	if m.writer == nil {
		return Event{}, nil
	}
	return m.close()
}

// close ends the active segment, applying the minimum-duration policy.
func (m *Machine) close() (Event, error) {
	w := m.writer
	start := m.start
	duration := m.recorded - m.silence
	m.reset()

	if duration < m.cfg.MinDuration {
		err := w.Discard()
		return Event{Discarded: &Discarded{Path: w.Path(), Start: start, Duration: duration}}, err
	}

	if err := w.Close(); err != nil {
		return Event{}, err
	}
	return Event{Completed: &Completed{RawPath: w.Path(), Start: start, Duration: duration}}, nil
}

func (m *Machine) reset() {
	m.writer = nil
	m.start = time.Time{}
	m.recorded = 0
	m.silence = 0
}
