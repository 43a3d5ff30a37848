package audio

import (
	"errors"
	"testing"
	"time"
)

// scriptedSource feeds Read results from a channel; an empty channel makes
// Read block, simulating a hung device.
type scriptedSource struct {
	results chan readResult
	format  Format
	closed  chan struct{}
}

func newScriptedSource() *scriptedSource {
	return &scriptedSource{
		results: make(chan readResult, 16),
		// 1ms blocks keep the watchdog timeout at 10ms for fast tests.
		format: Format{SampleRate: 1000, Channels: 1, BlockSize: 1},
		closed: make(chan struct{}),
	}
}

func (s *scriptedSource) Read() ([]byte, bool, error) {
	select {
	case r := <-s.results:
		return r.block, r.overflow, r.err
	case <-s.closed:
		return nil, false, errors.New("source closed")
	}
}

func (s *scriptedSource) Format() Format { return s.format }

func (s *scriptedSource) Close() error {
	close(s.closed)
	return nil
}

func TestTimedSourcePassesBlocksThrough(t *testing.T) {
	src := newScriptedSource()
	src.results <- readResult{block: []byte{1, 2}, overflow: true}

	ts := NewTimedSource(src)
	defer func() { _ = ts.Close() }()

	block, overflow, err := ts.Read()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(block) != 2 || block[0] != 1 {
		t.Errorf("got block %v, want [1 2]", block)
	}
	if !overflow {
		t.Error("overflow flag was dropped")
	}
}

func TestTimedSourcePassesErrorsThrough(t *testing.T) {
	src := newScriptedSource()
	wantErr := errors.New("device gone")
	src.results <- readResult{err: wantErr}

	ts := NewTimedSource(src)
	defer func() { _ = ts.Close() }()

	_, _, err := ts.Read()
	if !errors.Is(err, wantErr) {
		t.Fatalf("got %v, want %v", err, wantErr)
	}
}

func TestTimedSourceReportsStall(t *testing.T) {
	src := newScriptedSource() // nothing queued, Read hangs

	ts := NewTimedSource(src)
	defer func() { _ = ts.Close() }()

	start := time.Now()
	_, _, err := ts.Read()
	if !errors.Is(err, ErrReadStall) {
		t.Fatalf("got %v, want ErrReadStall", err)
	}
	if elapsed := time.Since(start); elapsed < StallMultiplier*src.format.BlockDuration() {
		t.Errorf("stalled after %v, want at least %v", elapsed, StallMultiplier*src.format.BlockDuration())
	}
}

func TestTimedSourceRecoversAfterSlowBlock(t *testing.T) {
	src := newScriptedSource()
	ts := NewTimedSource(src)
	defer func() { _ = ts.Close() }()

	if _, _, err := ts.Read(); !errors.Is(err, ErrReadStall) {
		t.Fatalf("got %v, want ErrReadStall", err)
	}

	// A block arriving late must still be delivered on the next read.
	src.results <- readResult{block: []byte{9, 9}}
	block, _, err := ts.Read()
	if err != nil {
		t.Fatalf("unexpected error after stall: %v", err)
	}
	if len(block) != 2 {
		t.Errorf("got block %v, want 2 bytes", block)
	}
}
