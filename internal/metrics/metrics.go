// Package metrics exposes the Prometheus instrumentation shared across the
// fitness session core. Every counter/gauge is registered once against the
// Registerer passed to New; components receive the already-constructed handles
// through their constructors rather than touching the registry themselves.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry bundles every metric the fitness session core publishes.
type Registry struct {
	FramesNormalized  *prometheus.CounterVec
	FramesDropped     *prometheus.CounterVec
	TicksEmitted      prometheus.Counter
	TickDrift         prometheus.Counter
	TickCatchupRun    prometheus.Histogram
	ActiveParticipant prometheus.Gauge
	Dropouts          prometheus.Counter
	PersistenceOK     prometheus.Counter
	PersistenceRetry  prometheus.Counter
	PersistenceFail   prometheus.Counter
	PausedIntent      prometheus.Gauge
	SourceHealth      *prometheus.GaugeVec
}

// New registers and returns the metrics bundle. Safe to call once per
// process; a second call against the same registerer will panic on
// duplicate registration, matching promauto's documented behavior.
func New(reg prometheus.Registerer) *Registry {
	factory := promauto.With(reg)
	return &Registry{
		FramesNormalized: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fitness",
			Subsystem: "frame",
			Name:      "normalized_total",
			Help:      "Frames successfully normalized into samples, by device kind.",
		}, []string{"kind"}),
		FramesDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fitness",
			Subsystem: "frame",
			Name:      "dropped_total",
			Help:      "Frames dropped, by reason (malformed, unknown_device, out_of_range).",
		}, []string{"reason"}),
		TicksEmitted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "fitness",
			Subsystem: "timebase",
			Name:      "ticks_emitted_total",
			Help:      "Ticks emitted by the timebase, including catch-up ticks.",
		}),
		TickDrift: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "fitness",
			Subsystem: "timebase",
			Name:      "drift_total",
			Help:      "Times wall-clock skew exceeded the catch-up cap.",
		}),
		TickCatchupRun: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "fitness",
			Subsystem: "timebase",
			Name:      "catchup_run_length",
			Help:      "Number of back-to-back ticks emitted in a single catch-up burst.",
			Buckets:   []float64{1, 2, 4, 8, 16, 32, 60},
		}),
		ActiveParticipant: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "fitness",
			Subsystem: "participant",
			Name:      "active",
			Help:      "Current count of ACTIVE participants.",
		}),
		Dropouts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "fitness",
			Subsystem: "participant",
			Name:      "dropouts_total",
			Help:      "ACTIVE to IDLE dropout transitions recorded.",
		}),
		PersistenceOK: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "fitness",
			Subsystem: "persistence",
			Name:      "writes_total",
			Help:      "Session documents written successfully.",
		}),
		PersistenceRetry: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "fitness",
			Subsystem: "persistence",
			Name:      "retries_total",
			Help:      "Write retries attempted after a persistence error.",
		}),
		PersistenceFail: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "fitness",
			Subsystem: "persistence",
			Name:      "failures_total",
			Help:      "Writes that exhausted all retries.",
		}),
		PausedIntent: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "fitness",
			Subsystem: "governance",
			Name:      "pause_intent",
			Help:      "1 if governance currently publishes a pause intent, else 0.",
		}),
		SourceHealth: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "fitness",
			Subsystem: "frame",
			Name:      "source_health",
			Help:      "Gateway source health: 0=healthy, 1=degraded, 2=failed.",
		}, []string{"source"}),
	}
}
