// Package participant implements the per-user ABSENT -> ACTIVE -> IDLE ->
// REMOVED state machine. The enum-plus-transition shape is adapted from
// the teacher's internal/session.SessionState Activity field; the
// debounce/streak counting (consecutive missed ticks before a demotion
// fires) is adapted from other_examples' tiroq-memofy state machine,
// which debounces stop requests behind a streak counter rather than
// acting on the first missed beat.
package participant

import (
	"fmt"
	"time"
)

// Status is a participant's lifecycle stage within one session.
type Status int

const (
	Absent Status = iota
	Active
	Idle
	Removed
)

func (s Status) String() string {
	switch s {
	case Absent:
		return "ABSENT"
	case Active:
		return "ACTIVE"
	case Idle:
		return "IDLE"
	case Removed:
		return "REMOVED"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// State tracks one participant's lifecycle within a session.
type State struct {
	UserID          string
	DeviceID        string
	Status          Status
	MissedTicks     int
	LastSeenAt      time.Time
	LastSeenTick    int64
	dropoutRecorded map[int64]bool
}

// Config carries the thresholds that govern transitions (spec.md §4.F).
type Config struct {
	IdleThresholdTicks int
	RemovalTimeout     time.Duration
	ResurrectRemoved   bool
}

// Machine owns every participant's State for a single session and applies
// transitions as samples arrive and ticks elapse.
type Machine struct {
	cfg      Config
	states   map[string]*State // keyed by userId
	onDropout func(userID string, tick int64)
}

// New builds a Machine. onDropout is invoked exactly once per (userId,
// last active tick) when that participant transitions ACTIVE -> IDLE; the
// tick passed is the last active tick, not the tick of the demotion,
// matching the idempotent dropout-id dedup rule in spec.md
// §4.F ("{userId}-dropout-{tick}").
func New(cfg Config, onDropout func(userID string, tick int64)) *Machine {
	return &Machine{
		cfg:       cfg,
		states:    make(map[string]*State),
		onDropout: onDropout,
	}
}

// Observe records a sample for userId bound to deviceId at the given
// tick. A participant in REMOVED never reacts to samples again unless
// ResurrectRemoved is configured, in which case a sample from a new
// deviceId re-admits them as ACTIVE.
func (m *Machine) Observe(userID, deviceID string, tick int64, at time.Time) {
	st, ok := m.states[userID]
	if !ok {
		st = &State{UserID: userID, Status: Absent, dropoutRecorded: make(map[int64]bool)}
		m.states[userID] = st
	}

	if st.Status == Removed {
		if !m.cfg.ResurrectRemoved {
			return
		}
		if deviceID == st.DeviceID {
			return
		}
		st.Status = Absent
		st.MissedTicks = 0
	}

	st.DeviceID = deviceID
	st.Status = Active
	st.MissedTicks = 0
	st.LastSeenAt = at
	st.LastSeenTick = tick
}

// Tick advances every tracked participant by one tick, demoting ACTIVE
// participants who have missed cfg.IdleThresholdTicks consecutive ticks to
// IDLE (firing onDropout once), and demoting any non-ABSENT, non-REMOVED
// participant whose wall-clock gap since LastSeenAt exceeds
// cfg.RemovalTimeout to REMOVED.
func (m *Machine) Tick(tick int64, now time.Time) {
	for _, st := range m.states {
		if st.Status == Absent || st.Status == Removed {
			continue
		}

		if st.LastSeenTick != tick {
			st.MissedTicks++
		}

		if st.Status == Active && st.MissedTicks >= m.cfg.IdleThresholdTicks {
			st.Status = Idle
			// The last active tick is tick - idleThresholdTicks (spec.md
			// §4.F), which is exactly st.LastSeenTick: MissedTicks has
			// been incrementing once per elapsed tick since then.
			lastActiveTick := st.LastSeenTick
			if !st.dropoutRecorded[lastActiveTick] {
				st.dropoutRecorded[lastActiveTick] = true
				if m.onDropout != nil {
					m.onDropout(st.UserID, lastActiveTick)
				}
			}
		}

		if now.Sub(st.LastSeenAt) > m.cfg.RemovalTimeout {
			st.Status = Removed
		}
	}
}

// Get returns a copy of a participant's current state, or false if the
// participant has never been observed.
func (m *Machine) Get(userID string) (State, bool) {
	st, ok := m.states[userID]
	if !ok {
		return State{}, false
	}
	return *st, true
}

// Active returns the userIds currently in ACTIVE status.
func (m *Machine) Active() []string {
	var out []string
	for id, st := range m.states {
		if st.Status == Active {
			out = append(out, id)
		}
	}
	return out
}

// DropoutID formats the idempotent dropout event id for a userId/tick
// pair (spec.md §4.F).
func DropoutID(userID string, tick int64) string {
	return fmt.Sprintf("%s-dropout-%d", userID, tick)
}
