// Package zone classifies heart-rate samples into configured zone bands and
// resolves each zone's midpoint heart rate. The
// resolution order (highest-min-downward scan, falling back to a default
// table) mirrors the teacher's internal/config.Config.MaxContextTokens
// exact-match-then-fallback pattern.
package zone

import (
	"errors"
	"sort"

	"github.com/kckern/daylightfit/internal/config"
)

// ErrUnknownZone is returned when a zone id referenced by a governance
// policy or equipment threshold doesn't exist in the configured table.
// Per spec.md §7, this is fatal only at startup validation time; it is
// never raised mid-session.
var ErrUnknownZone = errors.New("zone: unknown zone id")

// defaultZones is used when a config supplies no zone table at all.
var defaultZones = []config.ZoneEntry{
	{ID: "a", Min: 160, Label: "peak", Color: "#d62728"},
	{ID: "b", Min: 140, Label: "hard", Color: "#ff7f0e"},
	{ID: "c", Min: 120, Label: "moderate", Color: "#ffdd57"},
	{ID: "d", Min: 100, Label: "light", Color: "#2ca02c"},
	{ID: "e", Min: 0, Label: "rest", Color: "#1f77b4"},
}

// Classifier resolves heart-rate samples into zone bands. It holds an
// immutable, sorted-descending copy of the zone table; classification does
// not allocate or lock.
type Classifier struct {
	zones []config.ZoneEntry // sorted by Min descending
}

// New builds a Classifier from the configured zone table, falling back to
// defaultZones when none is configured. Zones are sorted by Min descending
// so Classify can scan highest-first and stop at the first match.
func New(zones []config.ZoneEntry) *Classifier {
	if len(zones) == 0 {
		zones = defaultZones
	}
	sorted := make([]config.ZoneEntry, len(zones))
	copy(sorted, zones)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Min > sorted[j].Min })
	return &Classifier{zones: sorted}
}

// Classify returns the zone id whose Min is the highest value not
// exceeding hr. If hr falls below every configured Min, the lowest zone is
// returned (the default table's "rest" band has Min 0, so this is the
// common case; a custom table that omits a 0-floor zone will still return
// its lowest entry).
func (c *Classifier) Classify(hr int) string {
	for _, z := range c.zones {
		if hr >= z.Min {
			return z.ID
		}
	}
	return c.zones[len(c.zones)-1].ID
}

// Zones returns the configured zone table, sorted by Min descending.
func (c *Classifier) Zones() []config.ZoneEntry {
	out := make([]config.ZoneEntry, len(c.zones))
	copy(out, c.zones)
	return out
}

// Midpoint resolves a zone id to a representative heart rate for that
// zone. Nothing in this module calls it. The table's topmost zone
// (highest Min, open-ended above) has no upper neighbor to average
// against, so its midpoint is its Min plus 15; every other zone's midpoint
// is the average of its own Min and the next-higher zone's Min.
func (c *Classifier) Midpoint(zoneID string) (int, error) {
	for i, z := range c.zones {
		if z.ID != zoneID {
			continue
		}
		if i == 0 {
			return z.Min + 15, nil
		}
		return (z.Min + c.zones[i-1].Min) / 2, nil
	}
	return 0, ErrUnknownZone
}

// Validate checks that every zone id referenced elsewhere in config (e.g.
// a governance policy's zone_id, or an equipment threshold) names a zone
// present in this table. Intended to run once at startup.
func (c *Classifier) Validate(zoneID string) error {
	for _, z := range c.zones {
		if z.ID == zoneID {
			return nil
		}
	}
	return ErrUnknownZone
}
