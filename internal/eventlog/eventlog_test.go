package eventlog

import (
	"testing"
	"time"
)

func TestAppendAssignsID(t *testing.T) {
	l := New()
	ok := l.Append(Event{Kind: ScreenshotTaken, Instant: time.Now(), Filename: "a.png"})
	if !ok {
		t.Fatal("Append returned false for a new filename")
	}
	events := l.Events()
	if len(events) != 1 || events[0].ID == "" {
		t.Fatalf("events = %+v, want one event with a generated ID", events)
	}
}

func TestAppendDedupsByFilename(t *testing.T) {
	l := New()
	l.Append(Event{Kind: ScreenshotTaken, Instant: time.Now(), Filename: "a.png"})
	ok := l.Append(Event{Kind: ScreenshotTaken, Instant: time.Now(), Filename: "a.png"})
	if ok {
		t.Fatal("Append should reject a duplicate filename")
	}
	if len(l.Events()) != 1 {
		t.Fatalf("Events() length = %d, want 1", len(l.Events()))
	}
}

func TestAppendAllowsEmptyFilename(t *testing.T) {
	l := New()
	l.Append(Event{Kind: VoiceMemo, Instant: time.Now()})
	l.Append(Event{Kind: VoiceMemo, Instant: time.Now()})
	if len(l.Events()) != 2 {
		t.Fatalf("events without filenames should not dedup against each other, got %d", len(l.Events()))
	}
}

func TestSinceFiltersByInstant(t *testing.T) {
	l := New()
	base := time.Now()
	l.Append(Event{Kind: AudioPlayed, Instant: base})
	l.Append(Event{Kind: VideoPlayed, Instant: base.Add(time.Minute)})

	got := l.Since(base.Add(30 * time.Second))
	if len(got) != 1 || got[0].Kind != VideoPlayed {
		t.Fatalf("Since() = %+v, want only the later event", got)
	}
}
