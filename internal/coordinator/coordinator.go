// Package coordinator owns one session's full lifecycle: ingesting
// normalized samples, driving the tick loop, applying governance,
// persisting periodically, and broadcasting snapshots to subscribers. Every
// mutation runs through a single command channel (the teacher's
// internal/gamification.StatsTracker select-loop shape, generalized from
// one event source to several), which is what gives the whole component
// its single-writer discipline (spec.md §5) without a lock.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kckern/daylightfit/internal/aggregator"
	"github.com/kckern/daylightfit/internal/eventlog"
	"github.com/kckern/daylightfit/internal/frame"
	"github.com/kckern/daylightfit/internal/governance"
	"github.com/kckern/daylightfit/internal/metrics"
	"github.com/kckern/daylightfit/internal/participant"
	"github.com/kckern/daylightfit/internal/persistence"
	"github.com/kckern/daylightfit/internal/roster"
	"github.com/kckern/daylightfit/internal/timebase"
	"github.com/kckern/daylightfit/internal/timeline"
	"github.com/kckern/daylightfit/internal/zone"
	"github.com/rs/zerolog"
)

// Status is the session's overall lifecycle stage (spec.md §4.J).
type Status int

const (
	StatusNew Status = iota
	StatusRunning
	StatusPaused
	StatusEnded
)

func (s Status) String() string {
	switch s {
	case StatusNew:
		return "NEW"
	case StatusRunning:
		return "RUNNING"
	case StatusPaused:
		return "PAUSED"
	case StatusEnded:
		return "ENDED"
	default:
		return "UNKNOWN"
	}
}

// ErrInvalidSessionState is returned when a command is attempted from a
// status that doesn't permit it (spec.md §7).
type ErrInvalidSessionState struct {
	From    Status
	Command string
}

func (e *ErrInvalidSessionState) Error() string {
	return fmt.Sprintf("coordinator: cannot %s from state %s", e.Command, e.From)
}

// Snapshot is what a subscriber receives: the session's current status,
// tick, aggregator totals, ACTIVE participants' states, and the event log.
// It is sent in full on subscribe and on every later broadcast; no deltas
// are computed.
type Snapshot struct {
	SessionID    string
	Status       Status
	Tick         int64
	Totals       aggregator.Totals
	Participants map[string]participant.State
	Events       []eventlog.Event
}

// Subscriber receives full snapshots. Send must not block the
// Coordinator's single writer goroutine; implementations (internal/wsapi)
// are expected to buffer and drop slow clients themselves, the same
// discipline the teacher's internal/ws.Broadcaster applies per client.
type Subscriber interface {
	Send(Snapshot)
}

// Config carries every tunable the Coordinator needs, assembled from
// internal/config at wiring time.
type Config struct {
	SessionID           string
	TickInterval        time.Duration
	CatchupCap          int
	PersistenceInterval time.Duration
	SnapshotThrottle    time.Duration
	CoinDivisor         int
	ZoneBuckets         map[string]string
	Participant         participant.Config
	Policies            []governance.Policy
	// ParticipantNames maps a participant's userId to the display name
	// persisted in the session document (spec.md §6
	// "participants.<id>.display_name"), sourced from the configured
	// user table (internal/config UsersConfig).
	ParticipantNames map[string]string
}

// command is the single-writer mailbox's envelope; exactly one of the
// fields is populated per command.
type command struct {
	sample      *frame.Sample
	tick        *timebase.Tick
	subscribe   *subscribeCmd
	unsubscribe string
	pause       bool
	resume      bool
	end         bool
	reply       chan error
}

type subscribeCmd struct {
	id  string
	sub Subscriber
}

// participantAccum is the per-participant running state the Session
// Coordinator maintains tick by tick, the source for both the persisted
// ParticipantDoc summary and the live dropout event's coin value (spec.md
// §6, §4.F).
type participantAccum struct {
	displayName string
	isPrimary   bool
	coinsTotal  int
	activeTicks int
	zoneSeconds map[string]int
	minHR       int
	maxHR       int
	avgSum      int64
	avgCount    int64
}

func (a *participantAccum) avgHR() float64 {
	if a.avgCount == 0 {
		return 0
	}
	return float64(a.avgSum) / float64(a.avgCount)
}

// Coordinator runs one session's lifecycle.
type Coordinator struct {
	cfg        Config
	logger     zerolog.Logger
	clock      *timebase.Clock
	classifier *zone.Classifier
	roster     *roster.Roster
	machine    *participant.Machine
	agg        *aggregator.Aggregator
	gov        *governance.Engine
	events     *eventlog.Log
	store      *persistence.Store

	mu          sync.Mutex // guards subscribers only; everything else is single-writer
	subscribers map[string]Subscriber

	series     map[string]*timeline.Series       // key: subjectId + "|" + metric
	zoneSeries map[string]*timeline.StringSeries  // key: subjectId

	startedAt     time.Time
	participants  map[string]*participantAccum
	dropoutEvents []persistence.DropoutEvent

	status      Status
	currentTick int64
	lastFlush   time.Time
	pauseIntent bool

	commands chan command
}

// New builds a Coordinator in NEW status, anchoring its Timebase at
// startedAt. Call Run to start processing.
func New(cfg Config, logger zerolog.Logger, classifier *zone.Classifier, store *persistence.Store, reg *metrics.Registry, startedAt time.Time) *Coordinator {
	logger = logger.With().Str("component", "coordinator").Str("sessionId", cfg.SessionID).Logger()

	c := &Coordinator{
		cfg:          cfg,
		logger:       logger,
		clock:        timebase.New(startedAt, cfg.TickInterval, cfg.CatchupCap, logger, reg),
		classifier:   classifier,
		roster:       roster.New(0, 0),
		agg:          aggregator.New(cfg.CoinDivisor, int(cfg.TickInterval/time.Second), cfg.ZoneBuckets, classifier),
		gov:          governance.New(cfg.Policies),
		events:       eventlog.New(),
		store:        store,
		subscribers:  make(map[string]Subscriber),
		series:       make(map[string]*timeline.Series),
		zoneSeries:   make(map[string]*timeline.StringSeries),
		startedAt:    startedAt,
		participants: make(map[string]*participantAccum),
		status:       StatusNew,
		commands:     make(chan command, 256),
	}
	c.machine = participant.New(cfg.Participant, func(userID string, tick int64) {
		c.recordDropoutEvent(userID, tick)
	})
	return c
}

// Roster exposes the session's device roster so gateway wiring code can
// assign devices to participants before ingestion begins.
func (c *Coordinator) Roster() *roster.Roster { return c.roster }

// DropoutEvents returns every dropout event recorded live so far, each
// carrying the coin total banked as of the participant's last active
// tick (spec.md §4.F, §8 invariant 2).
func (c *Coordinator) DropoutEvents() []persistence.DropoutEvent {
	out := make([]persistence.DropoutEvent, len(c.dropoutEvents))
	copy(out, c.dropoutEvents)
	return out
}

func (c *Coordinator) recordDropoutEvent(userID string, tick int64) {
	value := 0
	if acc, ok := c.participants[userID]; ok {
		value = acc.coinsTotal
	}
	c.dropoutEvents = append(c.dropoutEvents, persistence.DropoutEvent{
		ParticipantID: userID,
		Tick:          tick,
		Value:         value,
		ID:            participant.DropoutID(userID, tick),
	})
}

// participantAccumFor returns userID's accumulator, creating it on first
// reference.
func (c *Coordinator) participantAccumFor(userID string) *participantAccum {
	acc, ok := c.participants[userID]
	if !ok {
		acc = &participantAccum{displayName: userID, zoneSeconds: make(map[string]int)}
		if name, ok := c.cfg.ParticipantNames[userID]; ok && name != "" {
			acc.displayName = name
		}
		c.participants[userID] = acc
	}
	return acc
}

// Start transitions NEW -> RUNNING. Valid only from NEW.
func (c *Coordinator) Start() error {
	return c.submit(command{})
}

// Ingest feeds one normalized sample into the session. Safe to call from
// any goroutine; the sample is queued and applied by the single writer.
func (c *Coordinator) Ingest(s frame.Sample) error {
	return c.submit(command{sample: &s})
}

// Tick advances the session by one tick.
func (c *Coordinator) Tick(t timebase.Tick) error {
	return c.submit(command{tick: &t})
}

// Subscribe registers sub to receive the current snapshot and every later
// broadcast snapshot, returning a uuid subscriber id for later Unsubscribe.
func (c *Coordinator) Subscribe(sub Subscriber) (string, error) {
	id := uuid.NewString()
	if err := c.submit(command{subscribe: &subscribeCmd{id: id, sub: sub}}); err != nil {
		return "", err
	}
	return id, nil
}

// Unsubscribe removes a subscriber by id.
func (c *Coordinator) Unsubscribe(id string) {
	c.submit(command{unsubscribe: id})
}

// Pause requests a transition RUNNING -> PAUSED.
func (c *Coordinator) Pause() error {
	return c.submit(command{pause: true})
}

// Resume requests a transition PAUSED -> RUNNING.
func (c *Coordinator) Resume() error {
	return c.submit(command{resume: true})
}

// End requests a transition to ENDED, including a final persistence
// write.
func (c *Coordinator) End() error {
	return c.submit(command{end: true})
}

func (c *Coordinator) submit(cmd command) error {
	cmd.reply = make(chan error, 1)
	c.commands <- cmd
	return <-cmd.reply
}

// Run drives the single-writer command loop plus the periodic
// persistence ticker, until ctx is canceled. It must run in its own
// goroutine for the Coordinator's lifetime.
func (c *Coordinator) Run(ctx context.Context) {
	persistTicker := time.NewTicker(c.cfg.PersistenceInterval)
	defer persistTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case cmd := <-c.commands:
			cmd.reply <- c.apply(cmd)
		case <-persistTicker.C:
			if c.status == StatusRunning || c.status == StatusPaused {
				if err := c.persist(); err != nil {
					c.logger.Warn().Err(err).Msg("periodic persistence failed")
				}
			}
		}
	}
}

func (c *Coordinator) apply(cmd command) error {
	switch {
	case cmd.subscribe != nil:
		c.mu.Lock()
		c.subscribers[cmd.subscribe.id] = cmd.subscribe.sub
		c.mu.Unlock()
		cmd.subscribe.sub.Send(c.snapshotLocked())
		return nil

	case cmd.unsubscribe != "":
		c.mu.Lock()
		delete(c.subscribers, cmd.unsubscribe)
		c.mu.Unlock()
		return nil

	case cmd.sample != nil:
		return c.applySample(*cmd.sample)

	case cmd.tick != nil:
		return c.applyTick(*cmd.tick)

	case cmd.pause:
		if c.status != StatusRunning {
			return &ErrInvalidSessionState{From: c.status, Command: "pause"}
		}
		c.status = StatusPaused
		c.broadcast()
		return nil

	case cmd.resume:
		if c.status != StatusPaused {
			return &ErrInvalidSessionState{From: c.status, Command: "resume"}
		}
		c.status = StatusRunning
		c.broadcast()
		return nil

	case cmd.end:
		if c.status == StatusEnded {
			return &ErrInvalidSessionState{From: c.status, Command: "end"}
		}
		c.status = StatusEnded
		c.broadcast()
		return c.persist()

	default: // Start
		if c.status != StatusNew {
			return &ErrInvalidSessionState{From: c.status, Command: "start"}
		}
		c.status = StatusRunning
		c.broadcast()
		return nil
	}
}

func (c *Coordinator) applySample(s frame.Sample) error {
	if c.status != StatusRunning {
		return &ErrInvalidSessionState{From: c.status, Command: "ingest"}
	}

	dev, ok := c.roster.Lookup(s.DeviceID, s.At)
	if !ok || dev.UserID == "" {
		c.logger.Debug().Str("deviceId", s.DeviceID).Msg("sample from unassigned device")
		return nil
	}

	tick := int64(c.clock.TickOf(s.At))
	c.machine.Observe(dev.UserID, s.DeviceID, tick, s.At)

	acc := c.participantAccumFor(dev.UserID)
	acc.isPrimary = dev.Role == roster.Primary

	metric := string(s.Kind)
	key := dev.UserID + "|" + metric
	series, ok := c.series[key]
	if !ok {
		series = timeline.NewSeries()
		c.series[key] = series
	}
	if s.Kind == frame.Vibration {
		series.RecordBool(int(tick), s.Value != 0)
	} else {
		series.Record(int(tick), s.Value)
	}
	return nil
}

func (c *Coordinator) applyTick(t timebase.Tick) error {
	if c.status != StatusRunning && c.status != StatusPaused {
		return &ErrInvalidSessionState{From: c.status, Command: "tick"}
	}
	c.currentTick = int64(t)
	c.machine.Tick(int64(t), time.Now())

	for _, series := range c.series {
		series.FinalizeTick(int(t))
	}

	if c.status == StatusRunning {
		var readings []aggregator.Reading
		zoneByUser := make(map[string]string)
		intervalSeconds := int(c.cfg.TickInterval / time.Second)
		for _, userID := range c.machine.Active() {
			key := userID + "|" + string(frame.HeartRate)
			series, ok := c.series[key]
			if !ok {
				continue
			}
			snap := series.Snapshot()
			if int(t) >= len(snap) || snap[t] == nil {
				continue
			}
			hr := int(*snap[t])
			readings = append(readings, aggregator.Reading{UserID: userID, HR: hr})
			zoneID := c.classifier.Classify(hr)
			zoneByUser[userID] = zoneID

			acc := c.participantAccumFor(userID)
			acc.coinsTotal += aggregator.CoinDelta(hr, c.cfg.CoinDivisor)
			acc.activeTicks++
			acc.zoneSeconds[zoneID] += intervalSeconds
			if acc.avgCount == 0 || hr < acc.minHR {
				acc.minHR = hr
			}
			if hr > acc.maxHR {
				acc.maxHR = hr
			}
			acc.avgSum += int64(hr)
			acc.avgCount++

			coinsKey := userID + "|coins_total"
			coinsSeries, ok := c.series[coinsKey]
			if !ok {
				coinsSeries = timeline.NewSeries()
				c.series[coinsKey] = coinsSeries
			}
			coinsSeries.Record(int(t), float64(acc.coinsTotal))

			zs, ok := c.zoneSeries[userID]
			if !ok {
				zs = timeline.NewStringSeries()
				c.zoneSeries[userID] = zs
			}
			zs.Record(int(t), zoneID)
		}
		c.agg.FoldTick(readings)

		totals := c.agg.Snapshot()
		result := c.gov.Evaluate(governance.Snapshot{
			Tick:        int64(t),
			ZoneByUser:  zoneByUser,
			CoinsTotal:  totals.CoinsTotal,
			ZoneSeconds: totals.ZoneSeconds,
		})
		c.pauseIntent = result.PauseIntent
	}

	for _, zs := range c.zoneSeries {
		zs.FinalizeTick(int(t))
	}

	if time.Since(c.lastFlush) >= c.cfg.SnapshotThrottle {
		c.broadcast()
		c.lastFlush = time.Now()
	}
	return nil
}

func (c *Coordinator) broadcast() {
	snap := c.snapshotLocked()
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, sub := range c.subscribers {
		sub.Send(snap)
	}
}

func (c *Coordinator) snapshotLocked() Snapshot {
	participants := make(map[string]participant.State)
	for _, userID := range c.machine.Active() {
		if st, ok := c.machine.Get(userID); ok {
			participants[userID] = st
		}
	}
	return Snapshot{
		SessionID:    c.cfg.SessionID,
		Status:       c.status,
		Tick:         c.currentTick,
		Totals:       c.agg.Snapshot(),
		Participants: participants,
		Events:       c.events.Events(),
	}
}

// persist builds the canonical v3 SessionDocument (spec.md §6) from the
// running aggregator totals, per-participant accumulators, and tick
// series, and hands it to the Store for an atomic write.
func (c *Coordinator) persist() error {
	now := time.Now()
	totals := c.agg.Snapshot()

	var end *time.Time
	if c.status == StatusEnded {
		end = &now
	}

	doc := persistence.SessionDocument{
		Version: persistence.CurrentVersion,
		Session: persistence.SessionInfo{
			ID:              c.cfg.SessionID,
			Date:            c.startedAt.Format("2006-01-02"),
			Start:           c.startedAt,
			End:             end,
			DurationSeconds: int(now.Sub(c.startedAt) / time.Second),
			Timezone:        c.startedAt.Location().String(),
		},
		Totals: persistence.Totals{
			Coins:   totals.CoinsTotal,
			Buckets: totals.ZoneSeconds,
		},
		Participants: make(map[string]persistence.ParticipantDoc, len(c.participants)),
		Timeline: persistence.TimelineDoc{
			IntervalSeconds: int(c.cfg.TickInterval / time.Second),
			TickCount:       int(c.currentTick) + 1,
			Encoding:        "rle",
			Participants:    make(map[string]persistence.ParticipantSeries, len(c.participants)),
			Equipment:       make(map[string]map[string]string),
		},
		Events: persistence.EventsDoc{},
	}

	for userID, acc := range c.participants {
		doc.Participants[userID] = persistence.ParticipantDoc{
			DisplayName:     acc.displayName,
			IsPrimary:       acc.isPrimary,
			IsGuest:         !acc.isPrimary,
			CoinsEarned:     acc.coinsTotal,
			ActiveSeconds:   acc.activeTicks * int(c.cfg.TickInterval/time.Second),
			ZoneTimeSeconds: acc.zoneSeconds,
			HRStats: persistence.HRStats{
				Min: acc.minHR,
				Max: acc.maxHR,
				Avg: acc.avgHR(),
			},
		}
	}

	for key, series := range c.series {
		subjectID, metric, ok := strings.Cut(key, "|")
		if !ok {
			continue
		}
		rle, err := timeline.EncodeRLE(series.Snapshot())
		if err != nil {
			return fmt.Errorf("coordinator: encoding series %s: %w", key, err)
		}
		switch metric {
		case string(frame.HeartRate):
			ps := doc.Timeline.Participants[subjectID]
			ps.HR = string(rle)
			doc.Timeline.Participants[subjectID] = ps
		case "coins_total":
			ps := doc.Timeline.Participants[subjectID]
			ps.CoinsTotal = string(rle)
			doc.Timeline.Participants[subjectID] = ps
		default:
			// Non-participant metrics (cadence, vibration) are equipment
			// readings attached to the subject's device, not part of the
			// participant's own hr/zone/coins_total triple (spec.md §6).
			if doc.Timeline.Equipment[subjectID] == nil {
				doc.Timeline.Equipment[subjectID] = make(map[string]string)
			}
			doc.Timeline.Equipment[subjectID][metric] = string(rle)
		}
	}

	for subjectID, zs := range c.zoneSeries {
		rle, err := timeline.EncodeRLEString(zs.Snapshot())
		if err != nil {
			return fmt.Errorf("coordinator: encoding zone series %s: %w", subjectID, err)
		}
		ps := doc.Timeline.Participants[subjectID]
		ps.Zone = string(rle)
		doc.Timeline.Participants[subjectID] = ps
	}

	for _, e := range c.events.Events() {
		switch e.Kind {
		case eventlog.AudioPlayed:
			doc.Events.Audio = append(doc.Events.Audio, persistence.AudioEvent{
				At:    e.Instant,
				Title: e.Filename,
			})
		case eventlog.VideoPlayed:
			doc.Events.Video = append(doc.Events.Video, persistence.VideoEvent{
				At:    e.Instant,
				Title: e.Filename,
			})
		}
	}

	if err := c.store.Save(doc); err != nil {
		if errors.Is(err, persistence.ErrPersistenceDegraded) {
			c.logger.Warn().Str("sessionId", c.cfg.SessionID).Msg("persistence degraded")
		}
		return err
	}
	return nil
}
