package audio

import (
	"errors"
	"time"
)

// ErrReadStall is returned when the underlying source does not produce a
// block within the watchdog timeout. Stalled audio hardware is not
// recoverable in-process; callers are expected to terminate so an external
// supervisor can restart.
var ErrReadStall = errors.New("audio read stalled")

// StallMultiplier is the watchdog timeout expressed in block durations.
const StallMultiplier = 10

type readResult struct {
	block    []byte
	overflow bool
	err      error
}

// TimedSource wraps a BlockSource with a bounded-wait read. Reads happen on
// a dedicated goroutine so a hung device call can be abandoned.
type TimedSource struct {
	src     BlockSource
	timeout time.Duration
	results chan readResult
	stopCh  chan struct{}
}

// NewTimedSource returns a TimedSource with a timeout of StallMultiplier
// block durations.
func NewTimedSource(src BlockSource) *TimedSource {
	t := &TimedSource{
		src:     src,
		timeout: StallMultiplier * src.Format().BlockDuration(),
		results: make(chan readResult),
		stopCh:  make(chan struct{}),
	}
	go t.readLoop()
	return t
}

func (t *TimedSource) readLoop() {
	for {
		block, overflow, err := t.src.Read()
		select {
		case t.results <- readResult{block: block, overflow: overflow, err: err}:
		case <-t.stopCh:
			return
		}
	}
}

// Read returns the next block, or ErrReadStall if none arrives in time.
func (t *TimedSource) Read() ([]byte, bool, error) {
	timer := time.NewTimer(t.timeout)
	defer timer.Stop()

	select {
	case r := <-t.results:
		return r.block, r.overflow, r.err
	case <-timer.C:
		return nil, false, ErrReadStall
	}
}

// Format returns the format of the wrapped source.
func (t *TimedSource) Format() Format {
	return t.src.Format()
}

// Close stops the read goroutine and closes the wrapped source.
func (t *TimedSource) Close() error {
	close(t.stopCh)
	return t.src.Close()
}
