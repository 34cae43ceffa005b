// Package config loads and resolves the fitness session core's static
// configuration: device assignments, user rosters, zone tables, governance
// policies, and the ambient timing knobs. It mirrors the teacher's
// load/reload shape (Load, LoadOrDefault, Diff) with domain-specific
// sections in place of the teacher's monitor/source settings.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultIdleThresholdTicks is the number of missed ticks before an ACTIVE
// participant is marked IDLE (spec.md §4.F).
const DefaultIdleThresholdTicks = 2

// DefaultRemovalTimeout is the wall-clock gap after which an IDLE or ACTIVE
// participant is marked REMOVED (spec.md §4.F).
const DefaultRemovalTimeout = 120 * time.Second

// DefaultTickInterval is the Timebase's default interval (spec.md §4.D).
const DefaultTickInterval = 5 * time.Second

// DefaultCoinDivisor is the Aggregator's coin formula divisor (spec.md §4.G).
const DefaultCoinDivisor = 30

// DefaultCatchupCap is the maximum number of back-to-back ticks the
// Timebase will emit to catch up on wall-clock skew before degrading
// (spec.md §4.D).
const DefaultCatchupCap = 60

// Config is the fitness session core's static configuration, loaded from
// YAML at startup and reloadable at runtime for the sections that are safe
// to apply without restarting ingestion (see Diff).
type Config struct {
	Session    SessionConfig    `yaml:"session"`
	AntDevices AntDevicesConfig `yaml:"ant_devices"`
	Equipment  []EquipmentEntry `yaml:"equipment"`
	Users      UsersConfig      `yaml:"users"`
	Zones      []ZoneEntry      `yaml:"zones"`
	Governance GovernanceConfig `yaml:"governance"`
	Participant ParticipantConfig `yaml:"participant"`
	MQTT       MQTTConfig        `yaml:"mqtt"`
}

// MQTTConfig names the broker vibration-sensor equipment connects to.
// Equipment entries only carry their own topic (SensorConfig.MQTTTopic);
// the broker connection itself is shared across all of them.
type MQTTConfig struct {
	BrokerURL string `yaml:"broker_url"`
}

// SessionConfig controls the Timebase, Aggregator, and persistence timers.
type SessionConfig struct {
	TickInterval          time.Duration `yaml:"tick_interval"`
	CoinDivisor           int           `yaml:"coin_divisor"`
	CatchupCap            int           `yaml:"catchup_cap"`
	PersistenceInterval   time.Duration `yaml:"persistence_interval"`
	SnapshotThrottle      time.Duration `yaml:"snapshot_throttle"`
	VibrationCoalesceWindow time.Duration `yaml:"vibration_coalesce_window"`
}

// AntDevicesConfig maps ANT+ device ids to display colors, declared ahead of
// live discovery (spec.md §6 Configuration).
type AntDevicesConfig struct {
	HR      map[string]string `yaml:"hr"`
	Cadence map[string]string `yaml:"cadence"`
}

// EquipmentEntry declares a piece of equipment and its sensor wiring.
type EquipmentEntry struct {
	ID         string            `yaml:"id"`
	Name       string            `yaml:"name"`
	Sensor     SensorConfig      `yaml:"sensor"`
	Thresholds map[string]int    `yaml:"thresholds"`
}

// SensorConfig names the wire protocol an equipment's sensor uses.
type SensorConfig struct {
	Type      string `yaml:"type"` // "ant" or "mqtt"
	MQTTTopic string `yaml:"mqtt_topic"`
}

// UsersConfig declares primary and secondary participants and their
// device assignments (deviceId -> role is resolved by the Device Roster).
type UsersConfig struct {
	Primary   []UserEntry `yaml:"primary"`
	Secondary []UserEntry `yaml:"secondary"`
}

// UserEntry binds a display name to a heart-rate device id.
type UserEntry struct {
	HR   string `yaml:"hr"`
	Name string `yaml:"name"`
}

// ZoneEntry is one band of the zone table (spec.md §3 ZoneConfig).
type ZoneEntry struct {
	ID    string `yaml:"id"`
	Min   int    `yaml:"min"`
	Label string `yaml:"label"`
	Color string `yaml:"color"`
}

// GovernanceConfig carries policy definitions and the zone-to-bucket
// mapping (an Open Question in spec.md §9, resolved here as configurable).
type GovernanceConfig struct {
	Policies   []PolicyEntry     `yaml:"policies"`
	ZoneBuckets map[string]string `yaml:"zone_buckets"`
}

// PolicyEntry is one governance policy declaration. Kind selects which
// evaluator applies: "require_zone_at_least", "challenge", or the
// supplemented "milestone" (see SPEC_FULL.md §4).
type PolicyEntry struct {
	ID             string        `yaml:"id"`
	Kind           string        `yaml:"kind"`
	ZoneID         string        `yaml:"zone_id"`
	GraceSeconds   int           `yaml:"grace_seconds"`
	Target         int           `yaml:"target"`
	DurationSeconds int          `yaml:"duration_seconds"`
	Metric         string        `yaml:"metric"`
	Threshold      int           `yaml:"threshold"`
}

// ParticipantConfig resolves spec.md §9's open question on REMOVED re-entry.
type ParticipantConfig struct {
	IdleThresholdTicks int           `yaml:"idle_threshold_ticks"`
	RemovalTimeout     time.Duration `yaml:"removal_timeout"`
	ResurrectRemoved   bool          `yaml:"resurrect_removed"`
}

// Load reads and parses a YAML config file, filling unset fields with
// defaults.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	return cfg, nil
}

// LoadOrDefault loads config from path, or returns the default config if
// the file does not exist.
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return defaultConfig(), nil
	}
	return Load(path)
}

func defaultConfig() *Config {
	return &Config{
		Session: SessionConfig{
			TickInterval:            DefaultTickInterval,
			CoinDivisor:             DefaultCoinDivisor,
			CatchupCap:              DefaultCatchupCap,
			PersistenceInterval:     30 * time.Second,
			SnapshotThrottle:        100 * time.Millisecond,
			VibrationCoalesceWindow: 200 * time.Millisecond,
		},
		AntDevices: AntDevicesConfig{
			HR:      map[string]string{},
			Cadence: map[string]string{},
		},
		Governance: GovernanceConfig{
			ZoneBuckets: map[string]string{
				"a": "exercise",
				"f": "bonus",
			},
		},
		Participant: ParticipantConfig{
			IdleThresholdTicks: DefaultIdleThresholdTicks,
			RemovalTimeout:     DefaultRemovalTimeout,
			ResurrectRemoved:   false,
		},
	}
}

// DefaultConfigPath returns the XDG-compliant config file path.
func DefaultConfigPath() string {
	return filepath.Join(defaultConfigDir(), "daylightfit", "config.yaml")
}

func defaultConfigDir() string {
	if v := os.Getenv("XDG_CONFIG_HOME"); v != "" {
		return v
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config")
}

// Diff reports human-readable descriptions of what changed between two
// configs. It compares session.tick_interval, session.coin_divisor, the
// list of zone ids, the number of governance policies, and
// participant.resurrect_removed; equipment and the other sections are not
// compared.
func Diff(old, new *Config) []string {
	var changes []string

	if old.Session.TickInterval != new.Session.TickInterval {
		changes = append(changes, fmt.Sprintf("session.tick_interval: %s -> %s", old.Session.TickInterval, new.Session.TickInterval))
	}
	if old.Session.CoinDivisor != new.Session.CoinDivisor {
		changes = append(changes, fmt.Sprintf("session.coin_divisor: %d -> %d", old.Session.CoinDivisor, new.Session.CoinDivisor))
	}
	if !slices.Equal(zoneIDs(old.Zones), zoneIDs(new.Zones)) {
		changes = append(changes, fmt.Sprintf("zones: %v -> %v", zoneIDs(old.Zones), zoneIDs(new.Zones)))
	}
	if len(old.Governance.Policies) != len(new.Governance.Policies) {
		changes = append(changes, fmt.Sprintf("governance.policies: %d -> %d", len(old.Governance.Policies), len(new.Governance.Policies)))
	}
	if old.Participant.ResurrectRemoved != new.Participant.ResurrectRemoved {
		changes = append(changes, fmt.Sprintf("participant.resurrect_removed: %v -> %v", old.Participant.ResurrectRemoved, new.Participant.ResurrectRemoved))
	}
	return changes
}

func zoneIDs(zones []ZoneEntry) []string {
	ids := make([]string, len(zones))
	for i, z := range zones {
		ids[i] = z.ID
	}
	return ids
}
