// Package eventlog is the append-only record of session events that sit
// alongside the Timeline but are not tick-bound: screenshots, voice
// memos, audio/video playback. The tagged-union message shape is adapted
// from the teacher's internal/ws.WSMessage (a Type discriminator plus a
// Payload carrying the concrete fields for that type).
package eventlog

import (
	"time"

	"github.com/google/uuid"
)

// Kind discriminates a SessionEvent's payload.
type Kind string

const (
	ScreenshotTaken Kind = "screenshot_taken"
	VoiceMemo       Kind = "voice_memo"
	AudioPlayed     Kind = "audio_played"
	VideoPlayed     Kind = "video_played"
)

// Event is one append-only entry, ordered by Instant.
type Event struct {
	ID       string    `json:"id"`
	Kind     Kind      `json:"kind"`
	Instant  time.Time `json:"instant"`
	Filename string    `json:"filename,omitempty"`
	UserID   string    `json:"userId,omitempty"`
}

// Log is the append-only, ordered, dedup-by-filename session event log.
type Log struct {
	events    []Event
	filenames map[string]bool // dedup key, populated for events that carry one
}

// New returns an empty Log.
func New() *Log {
	return &Log{filenames: make(map[string]bool)}
}

// Append records e, assigning a uuid if e.ID is empty. If e.Filename is
// non-empty and has already been logged, Append is a no-op (spec.md §4.I
// "dedup by filename") and returns false.
func (l *Log) Append(e Event) bool {
	if e.Filename != "" {
		if l.filenames[e.Filename] {
			return false
		}
		l.filenames[e.Filename] = true
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	l.events = append(l.events, e)
	return true
}

// Events returns every recorded event, ordered by append order (which is
// instant order, since the Session Coordinator appends under a single
// writer — spec.md §5).
func (l *Log) Events() []Event {
	out := make([]Event, len(l.events))
	copy(out, l.events)
	return out
}

// Since returns events recorded at or after instant.
func (l *Log) Since(instant time.Time) []Event {
	var out []Event
	for _, e := range l.events {
		if !e.Instant.Before(instant) {
			out = append(out, e)
		}
	}
	return out
}
