// Package timebase drives the fitness session core's fixed-interval tick
// clock. It adapts the teacher's internal/monitor.Monitor.Start poll loop
// (a ticker-driven cycle with an initial immediate poll) to emit discrete,
// monotonically increasing tick indices instead of re-polling sources.
package timebase

import (
	"context"
	"time"

	"github.com/kckern/daylightfit/internal/metrics"
	"github.com/rs/zerolog"
)

// Tick identifies one interval since session start, counting from 0.
type Tick int64

// Clock emits ticks at a fixed wall-clock interval starting from a
// session's start time, catching up on skew up to a configured cap before
// degrading (spec.md §4.D).
type Clock struct {
	interval   time.Duration
	catchupCap int
	startedAt  time.Time
	logger     zerolog.Logger
	metrics    *metrics.Registry
}

// New builds a Clock anchored at startedAt.
func New(startedAt time.Time, interval time.Duration, catchupCap int, logger zerolog.Logger, reg *metrics.Registry) *Clock {
	return &Clock{
		interval:   interval,
		catchupCap: catchupCap,
		startedAt:  startedAt,
		logger:     logger.With().Str("component", "timebase").Logger(),
		metrics:    reg,
	}
}

// TickOf returns the tick index covering instant, relative to startedAt.
// Instants before startedAt resolve to tick 0.
func (c *Clock) TickOf(instant time.Time) Tick {
	if instant.Before(c.startedAt) {
		return 0
	}
	elapsed := instant.Sub(c.startedAt)
	return Tick(elapsed / c.interval)
}

// Deadline returns the wall-clock instant at which tick t completes.
func (c *Clock) Deadline(t Tick) time.Time {
	return c.startedAt.Add(time.Duration(t+1) * c.interval)
}

// Run drives out with a tick for every interval elapsed, catching up on
// delivery delay (GC pause, scheduler contention) by emitting back-to-back
// ticks up to catchupCap in a single wake-up. If more than catchupCap
// ticks have elapsed since the last delivered tick, the clock emits a
// degraded-mode gap: it jumps straight to the current tick and reports the
// skipped range to the caller via the DegradedGap callback, rather than
// silently missing the ticks or flooding out with an unbounded burst.
//
// Run blocks until ctx is done.
func (c *Clock) Run(ctx context.Context, out chan<- Tick, onGap func(from, to Tick)) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	var last Tick = -1
	emit := func(now time.Time) {
		current := c.TickOf(now)
		if current <= last {
			return
		}
		pending := int64(current - last)
		if pending > int64(c.catchupCap) {
			c.metrics.TickDrift.Inc()
			gapFrom := last + 1
			c.logger.Warn().
				Int64("skew_ticks", pending).
				Int64("tick_from", int64(gapFrom)).
				Int64("tick_to", int64(current)).
				Msg("timebase catch-up exceeded cap, degrading")
			if onGap != nil {
				onGap(gapFrom, current)
			}
			last = current
			select {
			case out <- current:
				c.metrics.TicksEmitted.Inc()
			case <-ctx.Done():
			}
			return
		}

		run := 0
		for t := last + 1; t <= current; t++ {
			select {
			case out <- t:
				c.metrics.TicksEmitted.Inc()
				run++
			case <-ctx.Done():
				return
			}
		}
		if run > 1 {
			c.metrics.TickCatchupRun.Observe(float64(run))
		}
		last = current
	}

	emit(time.Now())
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			emit(now)
		}
	}
}
