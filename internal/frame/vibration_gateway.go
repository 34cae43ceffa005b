package frame

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
)

// vibrationFrame is the MQTT payload shape for one equipment vibration
// sensor edge, grounded on the ingest pipeline pattern in other_examples'
// LumenPrima-tr-engine (an MQTT message decoded straight into a small
// struct rather than a generic map).
type vibrationFrame struct {
	DeviceID string `json:"deviceId"`
	Pulse    bool   `json:"pulse"`
}

// VibrationGateway subscribes to one MQTT topic carrying equipment
// vibration pulses and coalesces true/false edge pairs into discrete
// pulse samples.
type VibrationGateway struct {
	name       string
	brokerURL  string
	topic      string
	clientID   string
	coalescer  *PulseCoalescer
	logger     zerolog.Logger
}

// NewVibrationGateway builds a gateway subscribing to topic on the broker
// at brokerURL, coalescing edges within window into single pulses.
func NewVibrationGateway(name, brokerURL, topic, clientID string, window time.Duration, logger zerolog.Logger) *VibrationGateway {
	return &VibrationGateway{
		name:      name,
		brokerURL: brokerURL,
		topic:     topic,
		clientID:  clientID,
		coalescer: NewPulseCoalescer(window),
		logger:    logger.With().Str("source", name).Logger(),
	}
}

// Run connects to the broker and streams coalesced vibration samples
// until ctx is canceled or the connection is lost.
func (g *VibrationGateway) Run(ctx context.Context, out chan<- Sample, drops chan<- Drop) error {
	done := make(chan error, 1)

	opts := mqtt.NewClientOptions().
		AddBroker(g.brokerURL).
		SetClientID(g.clientID).
		SetAutoReconnect(false).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			select {
			case done <- fmt.Errorf("frame: mqtt connection lost on %s: %w", g.name, err):
			default:
			}
		})

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("frame: connecting %s: %w", g.name, token.Error())
	}
	defer client.Disconnect(250)

	handler := func(_ mqtt.Client, msg mqtt.Message) {
		var raw vibrationFrame
		if err := json.Unmarshal(msg.Payload(), &raw); err != nil {
			g.emitDrop(ctx, drops, Malformed)
			return
		}

		at := time.Now()
		if !g.coalescer.Observe(raw.DeviceID, raw.Pulse, at) {
			return
		}

		sample := Sample{Kind: Vibration, DeviceID: raw.DeviceID, Value: 1, At: at}
		select {
		case out <- sample:
		case <-ctx.Done():
		}
	}

	if token := client.Subscribe(g.topic, 1, handler); token.Wait() && token.Error() != nil {
		return fmt.Errorf("frame: subscribing %s to %s: %w", g.name, g.topic, token.Error())
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		return err
	}
}

func (g *VibrationGateway) Name() string { return g.name }

func (g *VibrationGateway) emitDrop(ctx context.Context, drops chan<- Drop, reason DropReason) {
	select {
	case drops <- Drop{Source: g.name, Reason: reason, At: time.Now()}:
	case <-ctx.Done():
	}
}
