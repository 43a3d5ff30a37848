package audio

import (
	"encoding/binary"
	"testing"
)

// block builds an interleaved S16LE buffer from samples.
func block(samples ...int16) []byte {
	out := make([]byte, len(samples)*BytesPerSample)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*BytesPerSample:], uint16(s))
	}
	return out
}

func TestLevelsConstantSignal(t *testing.T) {
	// A constant-amplitude signal has an RMS equal to its amplitude.
	b := block(1000, 1000, 1000, 1000)
	levels := Levels(b, 1)

	if len(levels) != 1 {
		t.Fatalf("got %d levels, want 1", len(levels))
	}
	if levels[0] != 1000 {
		t.Errorf("got level %d, want 1000", levels[0])
	}
}

func TestLevelsChannelSeparation(t *testing.T) {
	// Two interleaved channels: ch0 carries signal, ch1 is silent.
	b := block(2000, 0, 2000, 0, 2000, 0)
	levels := Levels(b, 2)

	if levels[0] != 2000 {
		t.Errorf("channel 0: got %d, want 2000", levels[0])
	}
	if levels[1] != 0 {
		t.Errorf("channel 1: got %d, want 0", levels[1])
	}
}

func TestLevelsTruncatesSquareRoot(t *testing.T) {
	// RMS of [3, 4] is sqrt(12.5) = 3.53..., truncated to 3.
	levels := Levels(block(3, 4), 1)
	if levels[0] != 3 {
		t.Errorf("got %d, want 3 (truncated)", levels[0])
	}
}

func TestLevelsNegativeSamples(t *testing.T) {
	// Sign must not matter; RMS squares every sample.
	pos := Levels(block(5000, 5000), 1)
	neg := Levels(block(-5000, -5000), 1)
	if pos[0] != neg[0] {
		t.Errorf("positive RMS %d != negative RMS %d", pos[0], neg[0])
	}
}

func TestLevelsDeterministic(t *testing.T) {
	b := block(123, -456, 789, -1011, 1213, -1415, 1617, -1819)
	first := Levels(b, 4)
	for range 10 {
		again := Levels(b, 4)
		for ch := range first {
			if first[ch] != again[ch] {
				t.Fatalf("channel %d: %d != %d across runs", ch, first[ch], again[ch])
			}
		}
	}
}

func TestLevelsEmptyBlock(t *testing.T) {
	levels := Levels(nil, 4)
	if len(levels) != 4 {
		t.Fatalf("got %d levels, want 4", len(levels))
	}
	for ch, v := range levels {
		if v != 0 {
			t.Errorf("channel %d: got %d, want 0", ch, v)
		}
	}
}

func TestLevelsPanicsOnPartialFrame(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on partial frame")
		}
	}()
	Levels(make([]byte, 6), 4) // 4-channel frame is 8 bytes
}

func TestPeak(t *testing.T) {
	if got := (ChannelLevels{100, 9000, 30}).Peak(); got != 9000 {
		t.Errorf("got peak %d, want 9000", got)
	}
	if got := (ChannelLevels{}).Peak(); got != 0 {
		t.Errorf("empty levels: got peak %d, want 0", got)
	}
}
