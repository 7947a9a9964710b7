package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/peripheral-controller/db"
	"github.com/thatsimonsguy/peripheral-controller/internal/api"
	"github.com/thatsimonsguy/peripheral-controller/internal/config"
	"github.com/thatsimonsguy/peripheral-controller/internal/datadog"
	"github.com/thatsimonsguy/peripheral-controller/internal/gcode"
	"github.com/thatsimonsguy/peripheral-controller/internal/logging"
	"github.com/thatsimonsguy/peripheral-controller/internal/mqtt"
	"github.com/thatsimonsguy/peripheral-controller/internal/notifications"
	"github.com/thatsimonsguy/peripheral-controller/internal/reactor"
	"github.com/thatsimonsguy/peripheral-controller/internal/sim"
	"github.com/thatsimonsguy/peripheral-controller/system/shutdown"
)

type outcome int

const (
	stopped outcome = iota
	restarting
	halted
)

func main() {
	cfg := config.Load()
	logging.Init(cfg.LogLevel, cfg.LogFile)

	datadog.InitMetrics(cfg.Datadog.Addr, cfg.Datadog.Namespace, cfg.Datadog.Tags)
	defer datadog.Close()

	for {
		switch run(cfg) {
		case halted:
			datadog.Close()
			os.Exit(1)
		case stopped:
			log.Info().Msg("Peripheral controller stopped")
			return
		}

		next, err := config.Reload(cfg)
		if err != nil {
			log.Error().Err(err).Str("config_file", cfg.ConfigFile).Msg("Failed to reload config for restart")
			datadog.Close()
			os.Exit(1)
		}
		cfg = next
		log.Info().Msg("Restarting peripheral controller")
	}
}

// run serves one configuration until a signal, a restart request or an
// emergency shutdown.
func run(cfg config.Config) outcome {
	log.Info().
		Str("config_file", cfg.ConfigFile).
		Str("database", cfg.Database).
		Bool("debug_output", cfg.DebugOutput).
		Msg("Starting peripheral controller")

	conn, err := db.Open(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open journal database")
	}
	defer conn.Close()
	journal := db.NewJournal(conn)

	r := reactor.New()
	deps := shutdown.Deps{Journal: journal, Halter: r}

	var pub mqtt.Publisher
	if cfg.MQTT.Broker != "" {
		rp, err := mqtt.NewRealPublisher(cfg.MQTT.Broker, cfg.MQTT.ClientID, cfg.MQTT.StatusTopic, cfg.MQTT.FaultTopic)
		if err != nil {
			log.Warn().Err(err).Str("broker", cfg.MQTT.Broker).Msg("MQTT unavailable, status publishing disabled")
		} else {
			pub = rp
			deps.Publisher = rp
			defer rp.Close()
		}
	} else {
		log.Info().Msg("MQTT broker not configured - status publishing disabled")
	}

	if n := notifications.New(cfg.NtfyTopic); n != nil {
		deps.Notifier = n
	}

	sd := shutdown.New(deps)
	toolhead := sim.NewToolhead(0)
	dispatcher := gcode.NewDispatcher()

	p, err := setup(cfg, components{
		reactor:    r,
		shutdown:   sd,
		toolhead:   toolhead,
		dispatcher: dispatcher,
		journal:    journal,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to set up peripherals")
	}
	defer p.close()

	p.connect(cfg.DebugOutput)

	if pub != nil {
		reporter := mqtt.NewReporter(pub, cfg.StatusInterval.Seconds(), p.mqttStatus)
		r.RegisterTimer(reporter.Callback, reactor.NOW)
	}

	server := api.NewServer(r, dispatcher, p.snapshot)
	go func() {
		if err := server.Start(cfg.APIListen); err != nil {
			log.Error().Err(err).Msg("API server stopped")
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := r.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("Reactor stopped")
	}

	if err := server.Shutdown(); err != nil {
		log.Warn().Err(err).Msg("Failed to stop API server")
	}

	switch {
	case sd.IsShutdown():
		log.Error().Str("message", sd.Message()).Msg("Peripheral controller halted after shutdown")
		return halted
	case p.restartRequested:
		return restarting
	default:
		return stopped
	}
}
