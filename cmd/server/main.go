// Command server wires together the fitness session core's components
// and runs a single session to completion, following the teacher's
// cmd/server/main.go flag-parse-then-wire shape: load config, construct
// every component, start the background goroutines, and wait on a signal
// for graceful shutdown.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/kckern/daylightfit/internal/config"
	"github.com/kckern/daylightfit/internal/coordinator"
	"github.com/kckern/daylightfit/internal/frame"
	"github.com/kckern/daylightfit/internal/governance"
	"github.com/kckern/daylightfit/internal/metrics"
	"github.com/kckern/daylightfit/internal/participant"
	"github.com/kckern/daylightfit/internal/persistence"
	"github.com/kckern/daylightfit/internal/roster"
	"github.com/kckern/daylightfit/internal/timebase"
	"github.com/kckern/daylightfit/internal/wsapi"
	"github.com/kckern/daylightfit/internal/zone"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

func main() {
	configPath := flag.String("config", config.DefaultConfigPath(), "path to config.yaml")
	port := flag.String("port", "8089", "HTTP/WS listen port")
	metricsPort := flag.String("metrics-port", "9090", "Prometheus metrics listen port")
	stateDir := flag.String("state-dir", "", "directory for persisted session documents")
	flag.Parse()

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Timestamp().Logger()

	cfg, err := config.LoadOrDefault(*configPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("loading config")
	}

	reg := metrics.New(prometheus.DefaultRegisterer)

	dir := *stateDir
	if dir == "" {
		dir = "./sessions"
	}
	store, err := persistence.New(dir, logger, reg)
	if err != nil {
		logger.Fatal().Err(err).Msg("constructing persistence store")
	}

	classifier := zone.New(cfg.Zones)

	policies := make([]governance.Policy, 0, len(cfg.Governance.Policies))
	for _, p := range cfg.Governance.Policies {
		policies = append(policies, governance.Policy{
			ID:            p.ID,
			Kind:          p.Kind,
			ZoneID:        p.ZoneID,
			GraceTicks:    int(time.Duration(p.GraceSeconds) * time.Second / cfg.Session.TickInterval),
			Target:        p.Target,
			DurationTicks: int(time.Duration(p.DurationSeconds) * time.Second / cfg.Session.TickInterval),
			Metric:        p.Metric,
			Threshold:     p.Threshold,
		})
	}

	participantNames := make(map[string]string, len(cfg.Users.Primary)+len(cfg.Users.Secondary))
	for _, u := range cfg.Users.Primary {
		participantNames[u.HR] = u.Name
	}
	for _, u := range cfg.Users.Secondary {
		participantNames[u.HR] = u.Name
	}

	coordCfg := coordinator.Config{
		SessionID:           time.Now().UTC().Format("20060102T150405Z"),
		TickInterval:        cfg.Session.TickInterval,
		CatchupCap:          cfg.Session.CatchupCap,
		PersistenceInterval: cfg.Session.PersistenceInterval,
		SnapshotThrottle:    cfg.Session.SnapshotThrottle,
		CoinDivisor:         cfg.Session.CoinDivisor,
		ZoneBuckets:         cfg.Governance.ZoneBuckets,
		Participant: participant.Config{
			IdleThresholdTicks: cfg.Participant.IdleThresholdTicks,
			RemovalTimeout:     cfg.Participant.RemovalTimeout,
			ResurrectRemoved:   cfg.Participant.ResurrectRemoved,
		},
		Policies:         policies,
		ParticipantNames: participantNames,
	}

	startedAt := time.Now()
	coord := coordinator.New(coordCfg, logger, classifier, store, reg, startedAt)

	for _, u := range cfg.Users.Primary {
		coord.Roster().Assign(u.HR, u.HR, roster.Primary)
	}
	for _, u := range cfg.Users.Secondary {
		coord.Roster().Assign(u.HR, u.HR, roster.Secondary)
	}

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		coord.Run(ctx)
	}()

	if err := coord.Start(); err != nil {
		logger.Fatal().Err(err).Msg("starting session")
	}

	knownHR := make(map[string]bool)
	for id := range cfg.AntDevices.HR {
		knownHR[id] = true
	}
	knownCadence := make(map[string]bool)
	for id := range cfg.AntDevices.Cadence {
		knownCadence[id] = true
	}

	samples := make(chan frame.Sample, 256)
	drops := make(chan frame.Drop, 256)

	sources := []frame.Source{}
	for id, url := range cfg.AntDevices.HR {
		_ = id
		sources = append(sources, frame.NewANTGateway("ant-hr", url, frame.HeartRate, knownHR, logger))
	}
	for id, url := range cfg.AntDevices.Cadence {
		_ = id
		sources = append(sources, frame.NewANTGateway("ant-cadence", url, frame.Cadence, knownCadence, logger))
	}
	for _, eq := range cfg.Equipment {
		if eq.Sensor.Type != "mqtt" || cfg.MQTT.BrokerURL == "" {
			continue
		}
		sources = append(sources, frame.NewVibrationGateway(
			"vibration-"+eq.ID, cfg.MQTT.BrokerURL, eq.Sensor.MQTTTopic,
			"daylightfit-"+eq.ID, cfg.Session.VibrationCoalesceWindow, logger,
		))
	}

	for _, src := range sources {
		wg.Add(1)
		go func(s frame.Source) {
			defer wg.Done()
			if err := s.Run(ctx, samples, drops); err != nil && ctx.Err() == nil {
				logger.Warn().Err(err).Str("source", s.Name()).Msg("gateway source stopped")
			}
		}(src)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case s := <-samples:
				reg.FramesNormalized.WithLabelValues(string(s.Kind)).Inc()
				if err := coord.Ingest(s); err != nil {
					logger.Debug().Err(err).Msg("sample rejected")
				}
			case d := <-drops:
				reg.FramesDropped.WithLabelValues(string(d.Reason)).Inc()
			}
		}
	}()

	clock := timebase.New(startedAt, cfg.Session.TickInterval, cfg.Session.CatchupCap, logger, reg)
	ticks := make(chan timebase.Tick, 64)
	wg.Add(1)
	go func() {
		defer wg.Done()
		clock.Run(ctx, ticks, func(from, to timebase.Tick) {
			logger.Warn().Int64("from", int64(from)).Int64("to", int64(to)).Msg("timebase gap")
		})
	}()
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case t := <-ticks:
				if err := coord.Tick(t); err != nil {
					logger.Debug().Err(err).Msg("tick rejected")
				}
			}
		}
	}()

	wsServer := wsapi.NewServer(coord, nil, os.Getenv("FITNESS_AUTH_TOKEN"), logger)
	mux := http.NewServeMux()
	wsServer.SetupRoutes(mux)
	httpSrv := &http.Server{Addr: ":" + *port, Handler: mux}

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsSrv := &http.Server{Addr: ":" + *metricsPort, Handler: metricsMux}

	wg.Add(2)
	go func() {
		defer wg.Done()
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("http server stopped")
		}
	}()
	go func() {
		defer wg.Done()
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("metrics server stopped")
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	logger.Info().Msg("shutting down")
	_ = coord.End()
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	httpSrv.Shutdown(shutdownCtx)
	metricsSrv.Shutdown(shutdownCtx)
	wg.Wait()
}
