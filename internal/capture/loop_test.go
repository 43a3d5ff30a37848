package capture

import (
	"context"
	"encoding/binary"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/pi2rec/vadrec/internal/audio"
	"github.com/pi2rec/vadrec/internal/segment"
)

// levelBlock builds a one-channel block of constant amplitude, so its RMS
// level equals the amplitude exactly.
func levelBlock(v int16, frames int) []byte {
	out := make([]byte, frames*2)
	for i := range frames {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(v))
	}
	return out
}

// scriptedSource replays a fixed list of blocks, then invokes onDrained and
// reports a stall for every further read.
type scriptedSource struct {
	blocks    [][]byte
	onDrained func()
	format    audio.Format
}

func (s *scriptedSource) Read() ([]byte, bool, error) {
	if len(s.blocks) == 0 {
		if s.onDrained != nil {
			s.onDrained()
			s.onDrained = nil
		}
		return nil, false, audio.ErrReadStall
	}
	b := s.blocks[0]
	s.blocks = s.blocks[1:]
	return b, false, nil
}

func (s *scriptedSource) Format() audio.Format { return s.format }
func (s *scriptedSource) Close() error         { return nil }

type fakeWriter struct {
	blocks    int
	closed    bool
	discarded bool
}

func (w *fakeWriter) WriteBlock([]byte) error { w.blocks++; return nil }
func (w *fakeWriter) Close() error            { w.closed = true; return nil }
func (w *fakeWriter) Discard() error          { w.discarded = true; return nil }
func (w *fakeWriter) Path() string            { return "seg.wav" }

type fakeStore struct {
	writers []*fakeWriter
}

func (s *fakeStore) Open(time.Time) (segment.BlockWriter, error) {
	w := &fakeWriter{}
	s.writers = append(s.writers, w)
	return w, nil
}

type recordingDisplay struct {
	mu         sync.Mutex
	ready      int
	recording  int
	levelCalls int
}

func (d *recordingDisplay) ShowReady() {
	d.mu.Lock()
	d.ready++
	d.mu.Unlock()
}

func (d *recordingDisplay) ShowRecording() {
	d.mu.Lock()
	d.recording++
	d.mu.Unlock()
}

func (d *recordingDisplay) ShowLevels([]int, int) {
	d.mu.Lock()
	d.levelCalls++
	d.mu.Unlock()
}

func testMachine(store segment.Opener) *segment.Machine {
	return segment.New(segment.Config{
		Threshold:      10000,
		BlockDuration:  100 * time.Millisecond,
		SilenceTimeout: 300 * time.Millisecond,
		MinDuration:    200 * time.Millisecond,
	}, store)
}

func TestLoopRecordsAndCompletesSegment(t *testing.T) {
	var blocks [][]byte
	for range 3 {
		blocks = append(blocks, levelBlock(15000, 4))
	}
	for range 3 {
		blocks = append(blocks, levelBlock(0, 4))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	src := &scriptedSource{
		blocks:    blocks,
		onDrained: cancel,
		format:    audio.Format{SampleRate: 1000, Channels: 1, BlockSize: 4},
	}

	store := &fakeStore{}
	disp := &recordingDisplay{}

	var completed []segment.Completed
	loop := New(src, testMachine(store), disp, nil, func(c segment.Completed) {
		completed = append(completed, c)
	})

	err := loop.Run(ctx)
	// The scripted stall happens after cancel; either exit path is fine as
	// long as the segment completed first.
	if err != nil && !errors.Is(err, audio.ErrReadStall) {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(completed) != 1 {
		t.Fatalf("got %d completed segments, want 1", len(completed))
	}
	// 6 blocks recorded minus 3 silent: 300ms retained.
	if completed[0].Duration != 300*time.Millisecond {
		t.Errorf("got duration %v, want 300ms", completed[0].Duration)
	}

	w := store.writers[0]
	if !w.closed {
		t.Error("segment writer was not closed")
	}
	if w.blocks != 6 {
		t.Errorf("got %d blocks written, want 6", w.blocks)
	}

	if disp.recording == 0 {
		t.Error("display never showed recording state")
	}
	if disp.levelCalls != 6 {
		t.Errorf("got %d level updates, want 6", disp.levelCalls)
	}
}

func TestLoopStallFinalizesAndReturnsError(t *testing.T) {
	var blocks [][]byte
	for range 3 {
		blocks = append(blocks, levelBlock(15000, 4))
	}

	src := &scriptedSource{
		blocks: blocks,
		format: audio.Format{SampleRate: 1000, Channels: 1, BlockSize: 4},
	}

	store := &fakeStore{}
	var completed []segment.Completed
	loop := New(src, testMachine(store), &recordingDisplay{}, nil, func(c segment.Completed) {
		completed = append(completed, c)
	})

	err := loop.Run(context.Background())
	if !errors.Is(err, audio.ErrReadStall) {
		t.Fatalf("got %v, want ErrReadStall", err)
	}

	// The in-progress 300ms segment must be finalized, not lost.
	if len(completed) != 1 {
		t.Fatalf("got %d completed segments, want 1", len(completed))
	}
	if !store.writers[0].closed {
		t.Error("segment writer was not closed on stall")
	}
}

func TestLoopCancelWhileIdle(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	src := &scriptedSource{
		blocks:    [][]byte{levelBlock(0, 4), levelBlock(0, 4)},
		onDrained: cancel,
		format:    audio.Format{SampleRate: 1000, Channels: 1, BlockSize: 4},
	}

	store := &fakeStore{}
	loop := New(src, testMachine(store), &recordingDisplay{}, nil, nil)

	err := loop.Run(ctx)
	if err != nil && !errors.Is(err, audio.ErrReadStall) {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(store.writers) != 0 {
		t.Errorf("opened %d segments on quiet input, want 0", len(store.writers))
	}
}
