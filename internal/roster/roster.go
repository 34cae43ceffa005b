// Package roster tracks which device is currently assigned to which
// participant role and whether a device has been seen recently enough to
// be considered live. The RWMutex-guarded map store with defensive-copy
// reads is adapted from the teacher's internal/session.Store.
package roster

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Role is a device's declared role in the configured user table.
type Role int

const (
	Unassigned Role = iota
	Primary
	Secondary
)

// LivenessWindow is how long a device may go unheard from before Lookup
// stops considering it live (spec.md §4.B).
const LivenessWindow = 5 * time.Second

// entry is one device's roster record, guarded by Roster.mu.
type entry struct {
	deviceID   string
	role       Role
	userID     string
	lastSeenAt time.Time
	limiter    *rate.Limiter
}

// Device is a defensive-copy snapshot of one roster entry.
type Device struct {
	DeviceID   string
	Role       Role
	UserID     string
	LastSeenAt time.Time
	Live       bool
}

// Roster is the live device assignment table for one session.
type Roster struct {
	mu      sync.RWMutex
	devices map[string]*entry
	// frameRateLimit bounds how many frames per second a single device
	// may contribute before Roster.Allow starts shedding, guarding the
	// ingestion fan-in against a runaway or misbehaving gateway.
	frameRateLimit rate.Limit
	frameBurst     int
}

// New builds an empty Roster. frameRateLimit and frameBurst configure the
// per-device rate limiter (golang.org/x/time/rate); pass 0 rate limit for
// unlimited.
func New(frameRateLimit float64, frameBurst int) *Roster {
	return &Roster{
		devices:        make(map[string]*entry),
		frameRateLimit: rate.Limit(frameRateLimit),
		frameBurst:     frameBurst,
	}
}

// Assign binds deviceID to userID with the given role. If deviceID is
// already assigned, its role and userID are updated (a config reload can
// reassign a device without restarting the session). Ties between a
// primary and a secondary claim on the same userID are broken in favor of
// primary; among equal roles, first-come-first-served wins and a later
// Assign call for the same userID with an equal role is ignored.
func (r *Roster) Assign(deviceID, userID string, role Role) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing := r.deviceForUserLocked(userID); existing != nil && existing.deviceID != deviceID {
		if rolePriority(role) < rolePriority(existing.role) {
			return // lower priority claim loses to the existing assignment
		}
		if role == existing.role {
			return // FCFS: existing claim keeps the slot
		}
		// A higher-priority claim takes the userID slot from the existing device.
		existing.userID = ""
		existing.role = Unassigned
	}

	e, ok := r.devices[deviceID]
	if !ok {
		e = &entry{deviceID: deviceID}
		r.devices[deviceID] = e
		if r.frameRateLimit > 0 {
			e.limiter = rate.NewLimiter(r.frameRateLimit, r.frameBurst)
		}
	}
	e.role = role
	e.userID = userID
}

// rolePriority ranks roles for Assign's tie-break: Primary over Secondary
// over Unassigned.
func rolePriority(role Role) int {
	switch role {
	case Primary:
		return 2
	case Secondary:
		return 1
	default:
		return 0
	}
}

func (r *Roster) deviceForUserLocked(userID string) *entry {
	for _, e := range r.devices {
		if e.userID == userID {
			return e
		}
	}
	return nil
}

// MarkSeen records a frame's arrival for deviceID at instant at, keeping
// the device live.
func (r *Roster) MarkSeen(deviceID string, at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.devices[deviceID]
	if !ok {
		e = &entry{deviceID: deviceID}
		r.devices[deviceID] = e
	}
	e.lastSeenAt = at
}

// Allow reports whether a frame from deviceID arriving now should be
// accepted under the device's rate limit. Devices with no configured
// limit always allow.
func (r *Roster) Allow(deviceID string) bool {
	r.mu.RLock()
	e, ok := r.devices[deviceID]
	r.mu.RUnlock()
	if !ok || e.limiter == nil {
		return true
	}
	return e.limiter.Allow()
}

// Lookup returns a defensive copy of deviceID's roster entry and whether
// it exists, with Live computed against now.
func (r *Roster) Lookup(deviceID string, now time.Time) (Device, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.devices[deviceID]
	if !ok {
		return Device{}, false
	}
	return Device{
		DeviceID:   e.deviceID,
		Role:       e.role,
		UserID:     e.userID,
		LastSeenAt: e.lastSeenAt,
		Live:       now.Sub(e.lastSeenAt) <= LivenessWindow,
	}, true
}

// Active returns every device currently considered live as of now.
func (r *Roster) Active(now time.Time) []Device {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Device
	for _, e := range r.devices {
		if now.Sub(e.lastSeenAt) <= LivenessWindow {
			out = append(out, Device{
				DeviceID:   e.deviceID,
				Role:       e.role,
				UserID:     e.userID,
				LastSeenAt: e.lastSeenAt,
				Live:       true,
			})
		}
	}
	return out
}
