package frame

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// antFrame is the wire shape a single ANT+ gateway WebSocket connection
// emits per reading: a device id and a raw numeric value, timestamped by
// the gateway itself.
type antFrame struct {
	DeviceID string  `json:"deviceId"`
	Value    float64 `json:"value"`
	At       string  `json:"at"`
}

// ANTGateway streams one ANT+ channel (heart-rate or cadence) over a
// WebSocket connection, adapted from the teacher's internal/ws client
// dial pattern but reading rather than writing frames.
type ANTGateway struct {
	name     string
	url      string
	kind     Kind
	dialer   *websocket.Dialer
	logger   zerolog.Logger
	knownIDs map[string]bool // nil means accept any device id
}

// NewANTGateway builds a gateway for the given ANT+ channel. knownIDs
// restricts accepted device ids to the configured ant_devices table; pass
// nil to accept any device id (useful for discovery/testing).
func NewANTGateway(name, url string, kind Kind, knownIDs map[string]bool, logger zerolog.Logger) *ANTGateway {
	return &ANTGateway{
		name:     name,
		url:      url,
		kind:     kind,
		dialer:   websocket.DefaultDialer,
		logger:   logger.With().Str("source", name).Logger(),
		knownIDs: knownIDs,
	}
}

func (g *ANTGateway) Name() string { return g.name }

// Run dials the gateway and decodes frames until ctx is canceled or the
// connection drops. A dropped connection is a recoverable error: the
// caller is expected to retry Run with backoff, matching spec.md §7's
// description of gateway failures as transient.
func (g *ANTGateway) Run(ctx context.Context, out chan<- Sample, drops chan<- Drop) error {
	conn, _, err := g.dialer.DialContext(ctx, g.url, nil)
	if err != nil {
		return fmt.Errorf("frame: dialing %s: %w", g.name, err)
	}
	defer conn.Close()

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("frame: reading from %s: %w", g.name, err)
		}

		var raw antFrame
		if err := json.Unmarshal(data, &raw); err != nil {
			g.emitDrop(ctx, drops, Malformed)
			continue
		}
		if g.knownIDs != nil && !g.knownIDs[raw.DeviceID] {
			g.emitDrop(ctx, drops, UnknownDevice)
			continue
		}

		at, err := time.Parse(time.RFC3339Nano, raw.At)
		if err != nil {
			at = time.Now()
		}

		var value int
		var ok bool
		switch g.kind {
		case HeartRate:
			value, ok = ClampHR(raw.Value)
		case Cadence:
			value, ok = ClampCadence(raw.Value)
		}
		if !ok {
			g.emitDrop(ctx, drops, OutOfRange)
			continue
		}

		sample := Sample{Kind: g.kind, DeviceID: raw.DeviceID, Value: float64(value), At: at}
		select {
		case out <- sample:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (g *ANTGateway) emitDrop(ctx context.Context, drops chan<- Drop, reason DropReason) {
	select {
	case drops <- Drop{Source: g.name, Reason: reason, At: time.Now()}:
	case <-ctx.Done():
	}
}
