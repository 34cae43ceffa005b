package persistence

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// versionProbe reads just enough of a document to learn its schema
// version and whether it carries the nested v3 session block, without
// committing to either decode shape.
type versionProbe struct {
	Version int `json:"version"`
	Session struct {
		ID string `json:"id"`
	} `json:"session"`
}

// IsV3 reports whether data is a v3 document: version == 3 AND a nested
// session.id is present (spec.md §6, §8 scenario S6). A document with a
// top-level sessionId and no version field — the shape this module
// itself wrote before v3 — is not v3 and is read as v2.
func IsV3(data []byte) bool {
	var probe versionProbe
	if err := json.Unmarshal(data, &probe); err != nil {
		return false
	}
	return probe.Version == 3 && probe.Session.ID != ""
}

// legacyDocument is the v1/v2 wire shape: a flat document keyed by
// sessionId rather than a nested session block. v2 added
// deviceAssignments and _persistWarnings on top of v1's
// voiceMemos/seriesMeta; both are folded into SessionDocument the same
// way, since neither field survives normalization.
type legacyDocument struct {
	Version           int                      `json:"version"`
	SessionID         string                   `json:"sessionId"`
	StartedAt         time.Time                `json:"startedAt"`
	EndedAt           *time.Time               `json:"endedAt"`
	Series            map[string]legacySeries  `json:"series"`
	CoinsTotal        int                      `json:"coinsTotal"`
	ZoneSeconds       map[string]int           `json:"zoneSeconds"`
	MinHR             int                      `json:"minHr"`
	MaxHR             int                      `json:"maxHr"`
	VoiceMemos        json.RawMessage          `json:"voiceMemos,omitempty"`
	DeviceAssignments json.RawMessage          `json:"deviceAssignments,omitempty"`
	SeriesMeta        json.RawMessage          `json:"seriesMeta,omitempty"`
	PersistWarnings   json.RawMessage          `json:"_persistWarnings,omitempty"`
}

// legacySeries is one v1/v2 per-(subject,metric) series, keyed in the
// map by "subjectId|metric" and carrying its RLE payload as a bare JSON
// array (the pre-v3 shape this module wrote); it is re-serialized as an
// RLE-encoded string to match the v3 ParticipantSeries fields.
type legacySeries struct {
	RLE json.RawMessage `json:"rle"`
}

// Normalize decodes raw document bytes of any known version and returns
// the v3 shape, stripping legacy fields that v3 no longer carries
// (spec.md §6 "normalize to v3 ... strip legacy fields").
func Normalize(data []byte) (SessionDocument, error) {
	if IsV3(data) {
		var doc SessionDocument
		if err := json.Unmarshal(data, &doc); err != nil {
			return SessionDocument{}, fmt.Errorf("persistence: decoding v3 document: %w", err)
		}
		return doc, nil
	}

	var probe versionProbe
	if err := json.Unmarshal(data, &probe); err != nil {
		return SessionDocument{}, fmt.Errorf("persistence: probing version: %w", err)
	}
	if probe.Version == 3 {
		// version: 3 without a nested session.id is neither a valid v3
		// document nor a recognizable legacy one.
		return SessionDocument{}, fmt.Errorf("persistence: document declares version 3 but is missing session.id")
	}
	if probe.Version != 0 && probe.Version != 1 && probe.Version != 2 {
		return SessionDocument{}, fmt.Errorf("persistence: unsupported document version %d", probe.Version)
	}

	var legacy legacyDocument
	if err := json.Unmarshal(data, &legacy); err != nil {
		return SessionDocument{}, fmt.Errorf("persistence: decoding legacy document: %w", err)
	}
	return upgradeLegacy(legacy), nil
}

// upgradeLegacy maps the flat v1/v2 shape onto the canonical v3 layout.
// Only heart_rate, zone, and coins_total per-subject series are
// recognized; any other metric (e.g. cadence) a legacy document carried
// is dropped rather than guessed into the optional equipment/global
// slots, since the legacy format never distinguished them by subject
// kind.
func upgradeLegacy(legacy legacyDocument) SessionDocument {
	doc := SessionDocument{
		Version: CurrentVersion,
		Session: SessionInfo{
			ID:    legacy.SessionID,
			Start: legacy.StartedAt,
			End:   legacy.EndedAt,
		},
		Totals: Totals{
			Coins:   legacy.CoinsTotal,
			Buckets: legacy.ZoneSeconds,
		},
		Participants: make(map[string]ParticipantDoc),
		Timeline: TimelineDoc{
			Encoding:     "rle",
			Participants: make(map[string]ParticipantSeries),
		},
	}
	if legacy.EndedAt != nil {
		doc.Session.DurationSeconds = int(legacy.EndedAt.Sub(legacy.StartedAt) / time.Second)
	}

	for key, series := range legacy.Series {
		subjectID, metric, ok := strings.Cut(key, "|")
		if !ok {
			continue
		}
		ps := doc.Timeline.Participants[subjectID]
		switch metric {
		case "heart_rate":
			ps.HR = string(series.RLE)
		case "zone":
			ps.Zone = string(series.RLE)
		case "coins_total":
			ps.CoinsTotal = string(series.RLE)
		default:
			continue
		}
		doc.Timeline.Participants[subjectID] = ps
		if _, ok := doc.Participants[subjectID]; !ok {
			doc.Participants[subjectID] = ParticipantDoc{DisplayName: subjectID, ZoneTimeSeconds: map[string]int{}}
		}
	}

	return doc
}
