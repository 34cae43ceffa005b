// Package aggregator accumulates per-tick session totals from ACTIVE
// participant heart-rate readings: coin income, zone bucket time, and
// running min/max/avg heart rate. The channel-fed accumulator shape with
// deterministic, replayable updates is adapted from the teacher's
// internal/gamification.StatsTracker, which folds session events into a
// running Stats value under a single goroutine rather than locking a
// shared struct from many writers.
package aggregator

import (
	"github.com/kckern/daylightfit/internal/zone"
)

// Reading is one ACTIVE participant's heart rate at a tick, already
// clamped and zone-eligible.
type Reading struct {
	UserID string
	HR     int
}

// Totals is the running session aggregate after zero or more ticks.
// Every field is derived solely from the sequence of Readings folded in,
// which is what makes it safe to recompute identically during persistence
// reconstruction (spec.md §4.G "determinism requirement").
type Totals struct {
	CoinsTotal   int
	ZoneSeconds  map[string]int // bucket name -> accumulated seconds
	MinHR        int
	MaxHR        int
	avgSum       int64
	avgCount     int64
}

// AvgHR returns the running average heart rate across every ACTIVE-tick
// reading folded in so far, or 0 if none have been recorded.
func (t *Totals) AvgHR() float64 {
	if t.avgCount == 0 {
		return 0
	}
	return float64(t.avgSum) / float64(t.avgCount)
}

// Aggregator folds per-tick ACTIVE readings into session Totals.
type Aggregator struct {
	coinDivisor     int
	intervalSeconds int
	zoneBuckets     map[string]string // zoneId -> bucket name
	classifier      *zone.Classifier
	totals          Totals
}

// New builds an Aggregator. coinDivisor and intervalSeconds come from
// config.SessionConfig (coin_divisor, tick_interval); zoneBuckets resolves
// spec.md §9's zone-to-bucket Open Question.
func New(coinDivisor, intervalSeconds int, zoneBuckets map[string]string, classifier *zone.Classifier) *Aggregator {
	return &Aggregator{
		coinDivisor:     coinDivisor,
		intervalSeconds: intervalSeconds,
		zoneBuckets:     zoneBuckets,
		classifier:      classifier,
		totals:          Totals{ZoneSeconds: make(map[string]int)},
	}
}

// FoldTick applies one tick's ACTIVE readings to the running totals.
// Readings are processed in a fixed order (as given) so replays against
// the same reconstructed input sequence produce identical totals.
func (a *Aggregator) FoldTick(readings []Reading) {
	for _, r := range readings {
		coinDelta := CoinDelta(r.HR, a.coinDivisor)
		a.totals.CoinsTotal += coinDelta

		zoneID := a.classifier.Classify(r.HR)
		if bucket, ok := a.zoneBuckets[zoneID]; ok {
			a.totals.ZoneSeconds[bucket] += a.intervalSeconds
		}

		if a.totals.avgCount == 0 || r.HR < a.totals.MinHR {
			a.totals.MinHR = r.HR
		}
		if r.HR > a.totals.MaxHR {
			a.totals.MaxHR = r.HR
		}
		a.totals.avgSum += int64(r.HR)
		a.totals.avgCount++
	}
}

// Snapshot returns a copy of the current totals.
func (a *Aggregator) Snapshot() Totals {
	out := a.totals
	out.ZoneSeconds = make(map[string]int, len(a.totals.ZoneSeconds))
	for k, v := range a.totals.ZoneSeconds {
		out.ZoneSeconds[k] = v
	}
	return out
}

// Restore replaces the running totals wholesale, used when a session is
// reconstructed from persisted state rather than replayed from scratch.
func (a *Aggregator) Restore(t Totals) {
	a.totals = t
	if a.totals.ZoneSeconds == nil {
		a.totals.ZoneSeconds = make(map[string]int)
	}
}

// CoinDelta computes the coin award for one ACTIVE tick's heart-rate
// reading (spec.md §4.G "coinDelta = round(hr / coinDivisor)"). Exported
// so the Session Coordinator can maintain the same per-participant
// cumulative coins_total series that feeds persistence and dropout
// reconstruction, without duplicating the rounding rule.
func CoinDelta(hr, coinDivisor int) int {
	return int(roundHalfUp(float64(hr) / float64(coinDivisor)))
}

func roundHalfUp(f float64) float64 {
	if f < 0 {
		return -roundHalfUp(-f)
	}
	i := int64(f)
	if f-float64(i) >= 0.5 {
		i++
	}
	return float64(i)
}
