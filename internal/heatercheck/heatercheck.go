// Package heatercheck verifies that a heater approaches and then holds its
// target temperature, shutting the process down when it does not.
package heatercheck

import (
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/peripheral-controller/internal/datadog"
	"github.com/thatsimonsguy/peripheral-controller/internal/reactor"
)

// HintThermal is appended to every heater fault message.
const HintThermal = `
See the 'verify_heaters' section of the configuration file
for the parameters that control this check.
`

const checkInterval = 1.0

// Heater reports the current temperature and target of one heater.
type Heater interface {
	GetTemp(eventtime float64) (temp, target float64)
}

// Scheduler is the periodic timer service driving the check.
type Scheduler interface {
	RegisterTimer(cb reactor.TimerCallback, waketime float64) *reactor.Timer
	UpdateTimer(t *reactor.Timer, waketime float64)
}

type Shutdowner interface {
	InvokeShutdown(msg string)
}

type Config struct {
	HeaterName    string
	Hysteresis    float64
	MaxError      float64
	HeatingGain   float64
	CheckGainTime float64
}

// DefaultCheckGainTime is 60s for the bed and 20s for every other heater.
func DefaultCheckGainTime(heaterName string) float64 {
	if heaterName == "heater_bed" {
		return 60
	}
	return 20
}

type Deps struct {
	Heater    Heater
	Scheduler Scheduler
	Shutdown  Shutdowner
}

type state int

const (
	stateApproaching state = iota
	stateHolding
	stateFaulted
)

func (s state) String() string {
	switch s {
	case stateApproaching:
		return "approaching"
	case stateHolding:
		return "holding"
	default:
		return "faulted"
	}
}

type Monitor struct {
	cfg       Config
	heater    Heater
	scheduler Scheduler
	shutdown  Shutdowner

	state      state
	lastTarget float64
	goalTemp   float64
	accumError float64
	faultTime  float64
	timer      *reactor.Timer
}

func New(cfg Config, deps Deps) *Monitor {
	return &Monitor{
		cfg:       cfg,
		heater:    deps.Heater,
		scheduler: deps.Scheduler,
		shutdown:  deps.Shutdown,
		state:     stateApproaching,
		faultTime: reactor.NEVER,
	}
}

func (m *Monitor) HeaterName() string {
	return m.cfg.HeaterName
}

// HandleConnect arms the periodic check. Nothing is armed when the process
// only records a debug output.
func (m *Monitor) HandleConnect(debugOutput bool) {
	if debugOutput {
		log.Info().Str("heater", m.cfg.HeaterName).Msg("Heater checks disabled for debug output")
		return
	}
	log.Info().Str("heater", m.cfg.HeaterName).Msg("Starting heater checks")
	m.timer = m.scheduler.RegisterTimer(m.CheckEvent, reactor.NOW)
}

// HandleShutdown retracts the periodic check.
func (m *Monitor) HandleShutdown() {
	if m.timer != nil {
		m.scheduler.UpdateTimer(m.timer, reactor.NEVER)
	}
}

// Armed reports whether the periodic check is scheduled.
func (m *Monitor) Armed() bool {
	return m.timer != nil && m.timer.Waketime() != reactor.NEVER
}

func (m *Monitor) heating() bool {
	return m.cfg.HeatingGain > 0
}

func (m *Monitor) adjustedTarget(target float64) float64 {
	if m.heating() {
		return target - m.cfg.Hysteresis
	}
	return target + m.cfg.Hysteresis
}

func (m *Monitor) withinRange(temp, adjusted float64) bool {
	if m.heating() {
		return temp >= adjusted
	}
	return temp <= adjusted
}

// pastGoal keeps the >= / < pair for heating and cooling directions.
func (m *Monitor) pastGoal(temp float64) bool {
	if m.heating() {
		return temp >= m.goalTemp
	}
	return temp < m.goalTemp
}

func (m *Monitor) resetCheckpoint(temp, eventtime float64) {
	m.goalTemp = temp + m.cfg.HeatingGain
	m.faultTime = eventtime + m.cfg.CheckGainTime
}

// CheckEvent is the timer callback. It returns the next waketime, or
// reactor.NEVER once the heater has faulted.
func (m *Monitor) CheckEvent(eventtime float64) float64 {
	temp, target := m.heater.GetTemp(eventtime)

	var next state
	switch m.state {
	case stateApproaching:
		next = m.approaching(temp, target, eventtime)
	case stateHolding:
		next = m.holding(temp, target, eventtime)
	default:
		return reactor.NEVER
	}

	if next == stateFaulted {
		return m.fault()
	}
	m.state = next
	m.lastTarget = target
	datadog.Gauge("heater_check.error", m.accumError, "component:heatercheck", "heater:"+m.cfg.HeaterName)
	return eventtime + checkInterval
}

func (m *Monitor) approaching(temp, target, eventtime float64) state {
	adjusted := m.adjustedTarget(target)
	switch {
	case m.withinRange(temp, adjusted):
		if target != 0 {
			log.Info().Str("heater", m.cfg.HeaterName).Msgf("Heater %s within range of %.3f", m.cfg.HeaterName, target)
		}
		m.accumError = 0
		return stateHolding
	case m.pastGoal(temp):
		m.resetCheckpoint(temp, eventtime)
		return stateApproaching
	case eventtime >= m.faultTime:
		return stateFaulted
	}
	return stateApproaching
}

func (m *Monitor) holding(temp, target, eventtime float64) state {
	adjusted := m.adjustedTarget(target)
	if m.withinRange(temp, adjusted) {
		m.accumError = 0
		return stateHolding
	}

	if m.heating() {
		m.accumError += adjusted - temp
	} else {
		m.accumError += temp - adjusted
	}

	if target != m.lastTarget {
		log.Info().Str("heater", m.cfg.HeaterName).Msgf("Heater %s approaching new target of %.3f", m.cfg.HeaterName, target)
		m.accumError = 0
		m.resetCheckpoint(temp, eventtime)
		return stateApproaching
	}
	if m.accumError >= m.cfg.MaxError {
		return stateFaulted
	}
	return stateHolding
}

func (m *Monitor) fault() float64 {
	m.state = stateFaulted
	msg := fmt.Sprintf("Heater %s not heating at expected rate", m.cfg.HeaterName)
	log.Error().Str("heater", m.cfg.HeaterName).Float64("error", m.accumError).Msg(msg)
	datadog.Incr("heater_check.fault", "component:heatercheck", "heater:"+m.cfg.HeaterName)
	m.shutdown.InvokeShutdown(msg + HintThermal)
	return reactor.NEVER
}

func (m *Monitor) Status() map[string]any {
	return map[string]any{
		"state":       m.state.String(),
		"error":       m.accumError,
		"goal_temp":   m.goalTemp,
		"last_target": m.lastTarget,
	}
}
