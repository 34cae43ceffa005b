// Package wsapi is the outbound Subscriber wire surface: a WebSocket
// server that pushes session snapshots to connected clients. The delta,
// source-health, milestone, challenge and error message types are defined
// here, but the server sends only snapshot messages. The tagged-union message envelope
// and per-client write pump are adapted from the teacher's internal/ws
// package, trimmed of the sound/tmux-focus/session-list endpoints that
// have no analog in this domain.
package wsapi

import "github.com/kckern/daylightfit/internal/coordinator"

// MessageType discriminates a wire message's payload.
type MessageType string

const (
	MsgSnapshot      MessageType = "snapshot"
	MsgDelta         MessageType = "delta"
	MsgSourceHealth  MessageType = "source_health"
	MsgMilestone     MessageType = "milestone"
	MsgChallenge     MessageType = "challenge"
	MsgError         MessageType = "error"
)

// Message is the envelope every outbound frame carries.
type Message struct {
	Type    MessageType `json:"type"`
	Payload interface{} `json:"payload"`
}

// SnapshotPayload mirrors coordinator.Snapshot in wire form.
type SnapshotPayload struct {
	SessionID string                          `json:"sessionId"`
	Status    string                          `json:"status"`
	Tick      int64                           `json:"tick"`
	Coins     int                             `json:"coinsTotal"`
	MinHR     int                             `json:"minHr"`
	MaxHR     int                             `json:"maxHr"`
	AvgHR     float64                         `json:"avgHr"`
	Zones     map[string]int                  `json:"zoneSeconds"`
}

// SourceHealthPayload reports one gateway's current health, the
// supplemented feature from SPEC_FULL.md §4 adapted from the teacher's
// internal/monitor/health.go status classification.
type SourceHealthPayload struct {
	Source string `json:"source"`
	Status string `json:"status"` // healthy, degraded, failed
}

// MilestonePayload announces a governance milestone crossing.
type MilestonePayload struct {
	PolicyID string `json:"policyId"`
}

// ChallengePayload reports a governance challenge's current phase.
type ChallengePayload struct {
	PolicyID string `json:"policyId"`
	Phase    string `json:"phase"`
}

// toSnapshotPayload converts a coordinator.Snapshot into its wire form.
func toSnapshotPayload(s coordinator.Snapshot) SnapshotPayload {
	return SnapshotPayload{
		SessionID: s.SessionID,
		Status:    s.Status.String(),
		Tick:      s.Tick,
		Coins:     s.Totals.CoinsTotal,
		MinHR:     s.Totals.MinHR,
		MaxHR:     s.Totals.MaxHR,
		AvgHR:     s.Totals.AvgHR(),
		Zones:     s.Totals.ZoneSeconds,
	}
}
