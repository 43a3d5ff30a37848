package util

import (
	"errors"
	"testing"
	"time"
)

func TestWrapError(t *testing.T) {
	base := errors.New("boom")
	wrapped := WrapError("open device", base)
	if wrapped == nil {
		t.Fatal("expected wrapped error")
	}
	if !errors.Is(wrapped, base) {
		t.Error("wrapped error lost its cause")
	}
	if WrapError("open device", nil) != nil {
		t.Error("nil error should stay nil")
	}
}

func TestBackoffDoublesToMax(t *testing.T) {
	b := NewBackoff(time.Second, 5*time.Second)

	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 5 * time.Second, 5 * time.Second}
	for i, w := range want {
		if got := b.Next(); got != w {
			t.Errorf("step %d: got %v, want %v", i, got, w)
		}
	}

	b.Reset()
	if got := b.Next(); got != time.Second {
		t.Errorf("after reset: got %v, want 1s", got)
	}
}

func TestSortableTimestamp(t *testing.T) {
	ts := time.Date(2026, 3, 15, 9, 30, 5, 0, time.UTC)
	if got := SortableTimestamp(ts); got != "20260315_093005" {
		t.Errorf("got %q, want 20260315_093005", got)
	}
}

func TestSortableTimestampOrdersLexicographically(t *testing.T) {
	earlier := SortableTimestamp(time.Date(2026, 3, 15, 9, 59, 59, 0, time.UTC))
	later := SortableTimestamp(time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC))
	if earlier >= later {
		t.Errorf("%q should sort before %q", earlier, later)
	}
}

func TestFormatDuration(t *testing.T) {
	cases := []struct {
		ms   int64
		want string
	}{
		{0, "0s"},
		{45000, "45s"},
		{154000, "2m 34s"},
		{4980000, "1h 23m"},
	}
	for _, c := range cases {
		if got := FormatDuration(c.ms); got != c.want {
			t.Errorf("%dms: got %q, want %q", c.ms, got, c.want)
		}
	}
}

func TestIsConfigured(t *testing.T) {
	if !IsConfigured("a", "b") {
		t.Error("all-set values reported unconfigured")
	}
	if IsConfigured("a", "") {
		t.Error("empty value reported configured")
	}
	if !IsConfigured() {
		t.Error("no values should count as configured")
	}
}

func TestCheckPathWritable(t *testing.T) {
	if err := CheckPathWritable(t.TempDir()); err != nil {
		t.Errorf("temp dir should be writable: %v", err)
	}
}
