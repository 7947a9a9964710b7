package main

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/peripheral-controller/db"
	"github.com/thatsimonsguy/peripheral-controller/internal/config"
	"github.com/thatsimonsguy/peripheral-controller/internal/fan"
	"github.com/thatsimonsguy/peripheral-controller/internal/gcode"
	"github.com/thatsimonsguy/peripheral-controller/internal/gpio"
	"github.com/thatsimonsguy/peripheral-controller/internal/heatercheck"
	"github.com/thatsimonsguy/peripheral-controller/internal/mqtt"
	"github.com/thatsimonsguy/peripheral-controller/internal/probe"
	"github.com/thatsimonsguy/peripheral-controller/internal/reactor"
	"github.com/thatsimonsguy/peripheral-controller/internal/sim"
	"github.com/thatsimonsguy/peripheral-controller/system/shutdown"
)

// components are the shared collaborators every peripheral is wired to.
type components struct {
	reactor    *reactor.Reactor
	shutdown   *shutdown.Handler
	toolhead   *sim.Toolhead
	dispatcher *gcode.Dispatcher
	journal    *db.Journal
}

// restartDwell lets queued moves drain before a restart takes effect.
const restartDwell = 0.500

type peripherals struct {
	c components

	probe        *probe.Controller
	probeControl *sim.PWM
	sensor       *gpio.Endstop
	fans         []*fan.Controller
	fanOutputs   map[string]*sim.PWM
	heaters      map[string]*sim.Heater
	checks       []*heatercheck.Monitor

	restartRequested bool
}

func setup(cfg config.Config, c components) (*peripherals, error) {
	p := &peripherals{
		c:          c,
		fanOutputs: make(map[string]*sim.PWM),
		heaters:    make(map[string]*sim.Heater),
	}

	for _, name := range []string{"RESTART", "FIRMWARE_RESTART"} {
		if err := c.dispatcher.Register(name, p.cmdRestart, "Reload config file and restart the controller"); err != nil {
			return nil, err
		}
	}

	if cfg.Probe != nil {
		if err := p.setupProbe(*cfg.Probe, cfg.ProbeSensor); err != nil {
			p.close()
			return nil, err
		}
	}

	for _, fc := range cfg.Fans {
		out := sim.NewPWM(fc.Name)
		f := fan.New(fc, fan.Deps{PWM: out, Journal: c.journal})
		if err := f.RegisterCommands(c.dispatcher, c.toolhead); err != nil {
			p.close()
			return nil, fmt.Errorf("fan %s: %w", fc.Name, err)
		}
		p.fans = append(p.fans, f)
		p.fanOutputs[fc.Name] = out
	}
	c.shutdown.OnShutdown(p.shutdownOutputs)

	for _, hc := range cfg.Heaters {
		h := sim.NewHeater(sim.HeaterConfig(hc))
		if err := h.RegisterCommands(c.dispatcher); err != nil {
			p.close()
			return nil, fmt.Errorf("heater %s: %w", hc.Name, err)
		}
		p.heaters[hc.Name] = h
	}

	for _, mc := range cfg.HeaterChecks {
		m := heatercheck.New(mc, heatercheck.Deps{
			Heater:    p.heaters[mc.HeaterName],
			Scheduler: c.reactor,
			Shutdown:  c.shutdown.For("heater " + mc.HeaterName),
		})
		c.shutdown.OnShutdown(m.HandleShutdown)
		p.checks = append(p.checks, m)
	}

	return p, nil
}

func (p *peripherals) setupProbe(cfg probe.Config, sensor config.ProbeSensor) error {
	control := sim.NewPWM(cfg.Name)
	device := sim.NewProbe(control, sim.ProbeFaults{})
	p.probeControl = control

	var endstop probe.Endstop = device
	if sensor.Pin == nil {
		if err := device.RegisterCommands(p.c.dispatcher); err != nil {
			return err
		}
	} else {
		e, err := gpio.OpenEndstop(cfg.Name, sensor.Chip, *sensor.Pin, p.c.toolhead.Now)
		if err != nil {
			return fmt.Errorf("probe sensor: %w", err)
		}
		p.sensor = e
		endstop = e
	}

	p.probe = probe.New(cfg, probe.Deps{
		PWM:      control,
		Endstop:  endstop,
		Toolhead: p.c.toolhead,
		Shutdown: p.c.shutdown.For("probe"),
		Journal:  p.c.journal,
	})
	if err := p.c.dispatcher.Register("PROBE", p.probe.CmdProbe, probe.ProbeHelp); err != nil {
		return err
	}
	return p.c.dispatcher.Register("BLTOUCH_DEBUG", p.probe.CmdDebug, probe.DebugHelp)
}

// cmdRestart turns outputs off through the restart handlers, lets the move
// queue drain and stops the reactor once the command has returned.
func (p *peripherals) cmdRestart(gc *gcode.Command) error {
	p.c.dispatcher.RequestRestart(p.c.toolhead.LastMoveTime())
	p.c.toolhead.Dwell(restartDwell)
	if err := p.c.toolhead.WaitMoves(); err != nil {
		return fmt.Errorf("drain moves before restart: %w", err)
	}
	p.restartRequested = true
	gc.RespondInfo("Restarting peripheral controller")
	p.c.reactor.EndAfter()
	return nil
}

// shutdownOutputs drives every output to its configured shutdown value.
func (p *peripherals) shutdownOutputs() {
	outputs := make([]*sim.PWM, 0, len(p.fanOutputs)+1)
	for _, out := range p.fanOutputs {
		outputs = append(outputs, out)
	}
	if p.probeControl != nil {
		outputs = append(outputs, p.probeControl)
	}
	for _, out := range outputs {
		out.Shutdown()
		log.Info().Str("output", out.Name).Float64("value", out.ShutdownValue()).Msg("Output set to shutdown value")
	}
}

// connect runs the connect handlers. It must run before the reactor starts
// or on the reactor goroutine.
func (p *peripherals) connect(debugOutput bool) {
	if p.probe != nil {
		if err := p.probe.HandleConnect(); err != nil {
			log.Error().Err(err).Str("probe", p.probe.Name()).Msg("Probe failed to reset on connect")
		}
	}
	for _, m := range p.checks {
		m.HandleConnect(debugOutput)
	}
}

func (p *peripherals) mqttStatus(eventtime float64) mqtt.Status {
	status := mqtt.Status{
		Timestamp:    time.Now(),
		Fans:         make(map[string]map[string]any, len(p.fans)),
		HeaterChecks: make(map[string]map[string]any, len(p.checks)),
	}
	for _, f := range p.fans {
		status.Fans[f.Name()] = f.Status()
	}
	for _, m := range p.checks {
		status.HeaterChecks[m.HeaterName()] = m.Status()
	}
	if p.probe != nil {
		status.Probe = p.probe.Status()
	}
	return status
}

func (p *peripherals) snapshot(eventtime float64) map[string]any {
	status := p.mqttStatus(eventtime)

	heaters := make(map[string]any, len(p.heaters))
	for name, h := range p.heaters {
		heaters[name] = h.Status()
	}

	snap := map[string]any{
		"eventtime":     eventtime,
		"print_time":    p.c.toolhead.LastMoveTime(),
		"fans":          status.Fans,
		"heater_checks": status.HeaterChecks,
		"heaters":       heaters,
		"shutdown":      p.c.shutdown.Status(),
	}
	if status.Probe != nil {
		snap["probe"] = status.Probe
	}
	return snap
}

func (p *peripherals) close() {
	if p.sensor == nil {
		return
	}
	if err := p.sensor.Close(); err != nil {
		log.Warn().Err(err).Msg("Failed to release probe sensor line")
	}
}
