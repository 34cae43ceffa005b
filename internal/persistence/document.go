// Package persistence defines the v3 session document schema and the
// version-normalizing reader/writer pair, plus dropout reconstruction
// from a session's heart_rate and coins_total series on restart. The
// atomic write (temp file + rename) is adapted directly from the
// teacher's internal/gamification.Store.Save.
package persistence

import "time"

// CurrentVersion is the schema version this module writes. Older
// documents are normalized up to this version on read; nothing is ever
// written back down.
const CurrentVersion = 3

// SessionDocument is the v3 persisted shape of a session (spec.md §6,
// canonical keys). Legacy fields from v1/v2 documents (voiceMemos,
// deviceAssignments, seriesMeta, _persistWarnings) are dropped on
// normalization rather than carried forward.
type SessionDocument struct {
	Version      int                          `json:"version"`
	Session      SessionInfo                  `json:"session"`
	Totals       Totals                       `json:"totals"`
	Participants map[string]ParticipantDoc    `json:"participants"`
	Timeline     TimelineDoc                  `json:"timeline"`
	Events       EventsDoc                    `json:"events"`
}

// SessionInfo is the document's top-level session identity block
// (spec.md §6 "session: { id, date, start, end, duration_seconds,
// timezone }"). Its presence alongside version == 3 is what distinguishes
// a v3 document from a v2 one on read (spec.md §6, §8 scenario S6).
type SessionInfo struct {
	ID              string     `json:"id"`
	Date            string     `json:"date"`
	Start           time.Time  `json:"start"`
	End             *time.Time `json:"end,omitempty"`
	DurationSeconds int        `json:"duration_seconds"`
	Timezone        string     `json:"timezone"`
}

// Totals is the session-wide coin and zone-bucket tally.
type Totals struct {
	Coins   int            `json:"coins"`
	Buckets map[string]int `json:"buckets"`
}

// ParticipantDoc is one participant's persisted summary.
type ParticipantDoc struct {
	DisplayName     string         `json:"display_name"`
	IsPrimary       bool           `json:"is_primary"`
	IsGuest         bool           `json:"is_guest"`
	CoinsEarned     int            `json:"coins_earned"`
	ActiveSeconds   int            `json:"active_seconds"`
	ZoneTimeSeconds map[string]int `json:"zone_time_seconds"`
	HRStats         HRStats        `json:"hr_stats"`
}

// HRStats is one participant's running heart-rate statistics.
type HRStats struct {
	Min int     `json:"min"`
	Max int     `json:"max"`
	Avg float64 `json:"avg"`
}

// TimelineDoc is the tick-aligned series block (spec.md §6 "timeline:
// interval_seconds, tick_count, encoding, participants, equipment,
// global"). Series values are RLE-encoded JSON carried as strings
// (spec.md §4.K "per-subject metric series are RLE-encoded strings").
type TimelineDoc struct {
	IntervalSeconds int                           `json:"interval_seconds"`
	TickCount       int                           `json:"tick_count"`
	Encoding        string                        `json:"encoding"`
	Participants    map[string]ParticipantSeries  `json:"participants"`
	Equipment       map[string]map[string]string  `json:"equipment,omitempty"`
	Global          map[string]string             `json:"global,omitempty"`
}

// ParticipantSeries is one participant's tick-aligned series, each one
// RLE-encoded (spec.md §6).
type ParticipantSeries struct {
	HR         string `json:"hr"`
	Zone       string `json:"zone"`
	CoinsTotal string `json:"coins_total"`
}

// EventsDoc is the persisted subset of the session event log that the
// canonical v3 layout names explicitly (spec.md §6): audio and video
// playback. Screenshot captures and voice memos stay in the live
// Session Event Log (internal/eventlog) for in-session broadcast; the
// canonical document does not define slots for them.
type EventsDoc struct {
	Audio []AudioEvent `json:"audio,omitempty"`
	Video []VideoEvent `json:"video,omitempty"`
}

// AudioEvent is one persisted audio-playback entry.
type AudioEvent struct {
	At              time.Time `json:"at"`
	Title           string    `json:"title"`
	Artist          string    `json:"artist,omitempty"`
	PlexID          string    `json:"plex_id,omitempty"`
	DurationSeconds int       `json:"duration_seconds"`
}

// VideoEvent is one persisted video-playback entry.
type VideoEvent struct {
	At              time.Time `json:"at"`
	Title           string    `json:"title"`
	Show            string    `json:"show,omitempty"`
	Season          string    `json:"season,omitempty"`
	PlexID          string    `json:"plex_id,omitempty"`
	DurationSeconds int       `json:"duration_seconds"`
}
