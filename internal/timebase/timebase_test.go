package timebase

import (
	"testing"
	"time"
)

func TestTickOf(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := New(start, 5*time.Second, 60, discardLogger(), noopMetrics())

	cases := []struct {
		offset time.Duration
		want   Tick
	}{
		{0, 0},
		{4999 * time.Millisecond, 0},
		{5 * time.Second, 1},
		{30 * time.Second, 6},
		{-time.Second, 0},
	}
	for _, tc := range cases {
		got := clock.TickOf(start.Add(tc.offset))
		if got != tc.want {
			t.Errorf("TickOf(start+%s) = %d, want %d", tc.offset, got, tc.want)
		}
	}
}

func TestDeadline(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := New(start, 5*time.Second, 60, discardLogger(), noopMetrics())

	want := start.Add(5 * time.Second)
	if got := clock.Deadline(0); !got.Equal(want) {
		t.Errorf("Deadline(0) = %s, want %s", got, want)
	}
}
