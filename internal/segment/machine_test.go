package segment

import (
	"errors"
	"testing"
	"time"
)

// fakeWriter records everything the machine does to its backing storage.
type fakeWriter struct {
	blocks    [][]byte
	closed    bool
	discarded bool
	path      string
	writeErr  error
}

func (w *fakeWriter) WriteBlock(block []byte) error {
	if w.writeErr != nil {
		return w.writeErr
	}
	w.blocks = append(w.blocks, append([]byte(nil), block...))
	return nil
}

func (w *fakeWriter) Close() error   { w.closed = true; return nil }
func (w *fakeWriter) Discard() error { w.discarded = true; return nil }
func (w *fakeWriter) Path() string   { return w.path }

type fakeStore struct {
	writers []*fakeWriter
	openErr error
}

func (s *fakeStore) Open(start time.Time) (BlockWriter, error) {
	if s.openErr != nil {
		return nil, s.openErr
	}
	w := &fakeWriter{path: "seg.wav"}
	s.writers = append(s.writers, w)
	return w, nil
}

func testConfig() Config {
	return Config{
		Threshold:      10000,
		BlockDuration:  100 * time.Millisecond,
		SilenceTimeout: 2 * time.Second,
		MinDuration:    700 * time.Millisecond,
	}
}

// feed pushes n blocks with the given peak. It returns early with the
// event when a segment closes; Started events are fed through.
func feed(t *testing.T, m *Machine, n, peak int) Event {
	t.Helper()
	now := time.Now()
	for i := range n {
		ev, err := m.Feed([]byte{byte(peak >> 8), byte(i)}, peak, now)
		if err != nil {
			t.Fatalf("feed block %d: %v", i, err)
		}
		if ev.Completed != nil || ev.Discarded != nil {
			return ev
		}
		now = now.Add(100 * time.Millisecond)
	}
	return Event{}
}

func TestQuietInputNeverOpensSegment(t *testing.T) {
	store := &fakeStore{}
	m := New(testConfig(), store)

	feed(t, m, 50, 500)

	if len(store.writers) != 0 {
		t.Errorf("opened %d segments on quiet input, want 0", len(store.writers))
	}
	if m.Recording() {
		t.Error("machine reports recording on quiet input")
	}
}

func TestLoudBlockStartsSegmentWithTriggerData(t *testing.T) {
	store := &fakeStore{}
	m := New(testConfig(), store)

	trigger := []byte{0xAA, 0xBB}
	ev, err := m.Feed(trigger, 15000, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if !ev.Started {
		t.Fatal("expected Started event")
	}
	if ev.Level != 15000 {
		t.Errorf("got level %d, want 15000", ev.Level)
	}

	w := store.writers[0]
	if len(w.blocks) != 1 {
		t.Fatalf("got %d blocks written, want 1", len(w.blocks))
	}
	if w.blocks[0][0] != 0xAA || w.blocks[0][1] != 0xBB {
		t.Error("triggering block is not the segment's first data")
	}
}

func TestSilenceTimeoutCompletesSegment(t *testing.T) {
	store := &fakeStore{}
	m := New(testConfig(), store)

	// 8 voiced blocks (0.8s), then silence until the 2s timeout closes it.
	feed(t, m, 8, 15000)
	ev := feed(t, m, 25, 100)

	if ev.Completed == nil {
		t.Fatal("expected Completed event")
	}
	// Retained duration excludes the trailing silence: 2.8s recorded - 2.0s.
	if got := ev.Completed.Duration; got != 800*time.Millisecond {
		t.Errorf("got duration %v, want 800ms", got)
	}

	w := store.writers[0]
	if !w.closed {
		t.Error("segment file was not closed")
	}
	if w.discarded {
		t.Error("segment file was discarded")
	}
	// 8 voiced + 20 silent blocks reach the timeout.
	if len(w.blocks) != 28 {
		t.Errorf("got %d blocks on disk, want 28", len(w.blocks))
	}
	if m.Recording() {
		t.Error("machine still recording after completion")
	}
}

func TestShortBurstIsDiscarded(t *testing.T) {
	store := &fakeStore{}
	m := New(testConfig(), store)

	// 3 voiced blocks (0.3s) is under the 0.7s minimum.
	feed(t, m, 3, 15000)
	ev := feed(t, m, 25, 100)

	if ev.Discarded == nil {
		t.Fatal("expected Discarded event")
	}
	if got := ev.Discarded.Duration; got != 300*time.Millisecond {
		t.Errorf("got duration %v, want 300ms", got)
	}
	if !store.writers[0].discarded {
		t.Error("backing file was not discarded")
	}
}

func TestVoicedBlockResetsSilence(t *testing.T) {
	store := &fakeStore{}
	m := New(testConfig(), store)

	feed(t, m, 1, 15000)
	feed(t, m, 19, 100) // 1.9s silence, just under the timeout
	feed(t, m, 1, 15000)
	ev := feed(t, m, 19, 100)

	if ev.Completed != nil || ev.Discarded != nil {
		t.Fatal("segment closed although silence never reached the timeout")
	}
	if !m.Recording() {
		t.Fatal("machine should still be recording")
	}

	ev = feed(t, m, 1, 100) // silence hits 2.0s
	if ev.Completed == nil {
		t.Fatal("expected Completed event at the silence timeout")
	}
}

func TestFinalizeClosesActiveSegment(t *testing.T) {
	store := &fakeStore{}
	m := New(testConfig(), store)

	feed(t, m, 10, 15000)

	ev, err := m.Finalize()
	if err != nil {
		t.Fatal(err)
	}
	if ev.Completed == nil {
		t.Fatal("expected Completed event from Finalize")
	}
	if got := ev.Completed.Duration; got != 1000*time.Millisecond {
		t.Errorf("got duration %v, want 1s", got)
	}
}

func TestFinalizeDiscardsShortSegment(t *testing.T) {
	store := &fakeStore{}
	m := New(testConfig(), store)

	feed(t, m, 2, 15000)

	ev, err := m.Finalize()
	if err != nil {
		t.Fatal(err)
	}
	if ev.Discarded == nil {
		t.Fatal("expected Discarded event from Finalize")
	}
}

func TestFinalizeWhileIdle(t *testing.T) {
	m := New(testConfig(), &fakeStore{})

	ev, err := m.Finalize()
	if err != nil {
		t.Fatal(err)
	}
	if ev.Started || ev.Completed != nil || ev.Discarded != nil {
		t.Error("idle Finalize produced an event")
	}
}

func TestWriteErrorResetsMachine(t *testing.T) {
	store := &fakeStore{}
	m := New(testConfig(), store)

	feed(t, m, 1, 15000)

	w := store.writers[0]
	w.writeErr = errors.New("disk full")

	_, err := m.Feed([]byte{1, 2}, 15000, time.Now())
	if err == nil {
		t.Fatal("expected write error to propagate")
	}
	if !w.discarded {
		t.Error("failed segment was not discarded")
	}
	if m.Recording() {
		t.Error("machine still recording after write error")
	}
}

func TestOpenErrorLeavesMachineIdle(t *testing.T) {
	store := &fakeStore{openErr: errors.New("permission denied")}
	m := New(testConfig(), store)

	_, err := m.Feed([]byte{1, 2}, 15000, time.Now())
	if err == nil {
		t.Fatal("expected open error to propagate")
	}
	if m.Recording() {
		t.Error("machine recording despite open failure")
	}
}
