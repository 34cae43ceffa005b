package persistence

import (
	"github.com/kckern/daylightfit/internal/participant"
	"github.com/kckern/daylightfit/internal/timeline"
)

// DropoutEvent mirrors spec.md §3's DropoutEvent: a participant's
// transition out of ACTIVE status, identified by the last tick they were
// active and the coin total banked by then. The Session Coordinator
// records these live as they happen; ReconstructDropouts derives the same
// set from a persisted document on restart. The two must compare equal
// as sets of (ParticipantID, Tick, Value) — spec.md §8 invariant 2.
type DropoutEvent struct {
	ParticipantID string `json:"participantId"`
	Tick          int64  `json:"tick"`
	Value         int    `json:"value"`
	ID            string `json:"id"`
}

// ReconstructDropouts walks participantID's heart_rate series and emits a
// DropoutEvent whenever a null follows a non-null: the dropout's tick is
// the index of the last non-null entry, and its value is read from the
// coins_total series at that same index (spec.md §4.K). A leading run of
// nulls — the participant never having started — produces no event, and
// a dropout is never reported for the series' final entry (still active
// when the series ends, not a dropout).
func ReconstructDropouts(participantID string, hr, coinsTotal []*float64) []DropoutEvent {
	var out []DropoutEvent
	for i := 0; i < len(hr); i++ {
		if hr[i] == nil {
			continue
		}
		if i+1 >= len(hr) || hr[i+1] != nil {
			continue
		}

		value := 0
		if i < len(coinsTotal) && coinsTotal[i] != nil {
			value = int(*coinsTotal[i])
		}
		tick := int64(i)
		out = append(out, DropoutEvent{
			ParticipantID: participantID,
			Tick:          tick,
			Value:         value,
			ID:            participant.DropoutID(participantID, tick),
		})
	}
	return out
}

// DecodeParticipantSeries decodes one participant's RLE-encoded hr and
// coins_total series from their persisted string form, ready for
// ReconstructDropouts.
func DecodeParticipantSeries(ps ParticipantSeries) (hr, coinsTotal []*float64, err error) {
	if ps.HR == "" || ps.CoinsTotal == "" {
		return nil, nil, nil
	}
	hr, err = timeline.DecodeRLE([]byte(ps.HR))
	if err != nil {
		return nil, nil, err
	}
	coinsTotal, err = timeline.DecodeRLE([]byte(ps.CoinsTotal))
	if err != nil {
		return nil, nil, err
	}
	return hr, coinsTotal, nil
}
