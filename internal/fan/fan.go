// Package fan converts requested fan speeds into PWM duty updates.
package fan

import (
	"fmt"
	"math"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/peripheral-controller/internal/datadog"
)

// MinTime is the minimum spacing between two PWM updates of one fan.
const MinTime = 0.100

// PWM is a timed PWM output driving the fan.
type PWM interface {
	SetupMaxDuration(maxDuration float64)
	SetupCycleTime(cycleTime float64, hardwarePWM bool)
	SetupStartValue(startValue, shutdownValue float64)
	SetPWM(printTime, value float64) error
}

// Journal records applied fan speeds. It is optional.
type Journal interface {
	RecordFanSpeed(fan string, printTime, value float64) error
}

type Config struct {
	Name          string
	MaxPower      float64
	KickStartTime float64
	OffBelow      float64
	CycleTime     float64
	HardwarePWM   bool
	ShutdownSpeed float64
}

type Deps struct {
	PWM     PWM
	Journal Journal
}

type Controller struct {
	name    string
	pwm     PWM
	journal Journal

	maxPower      float64
	kickStartTime float64
	offBelow      float64

	lastValue float64
	lastTime  float64
}

func New(cfg Config, deps Deps) *Controller {
	name := cfg.Name
	if name == "" {
		name = "fan"
	}

	deps.PWM.SetupMaxDuration(0)
	deps.PWM.SetupCycleTime(cfg.CycleTime, cfg.HardwarePWM)
	deps.PWM.SetupStartValue(0, math.Max(0, math.Min(cfg.MaxPower, cfg.ShutdownSpeed)))

	return &Controller{
		name:          name,
		pwm:           deps.PWM,
		journal:       deps.Journal,
		maxPower:      cfg.MaxPower,
		kickStartTime: cfg.KickStartTime,
		offBelow:      cfg.OffBelow,
	}
}

func (c *Controller) Name() string {
	return c.name
}

// Speed is the last duty value written to the fan.
func (c *Controller) Speed() float64 {
	return c.lastValue
}

// SetSpeed requests a fractional speed at printTime. The written duty is
// scaled by max_power and never lands closer than MinTime to the previous
// update.
func (c *Controller) SetSpeed(printTime, value float64) error {
	if value < c.offBelow {
		value = 0
	}
	value = math.Max(0, math.Min(c.maxPower, value*c.maxPower))
	if value == c.lastValue {
		return nil
	}

	printTime = math.Max(c.lastTime+MinTime, printTime)
	if value > 0 && value < c.maxPower && c.kickStartTime > 0 &&
		(c.lastValue == 0 || value-c.lastValue > .5) {
		log.Debug().Str("fan", c.name).Float64("print_time", printTime).Msg("Kick-starting fan")
		if err := c.pwm.SetPWM(printTime, c.maxPower); err != nil {
			return fmt.Errorf("kick-start fan %s: %w", c.name, err)
		}
		printTime += c.kickStartTime
	}
	if err := c.pwm.SetPWM(printTime, value); err != nil {
		return fmt.Errorf("set fan %s: %w", c.name, err)
	}

	c.lastTime = printTime
	c.lastValue = value

	log.Info().Str("fan", c.name).Float64("speed", value).Float64("print_time", printTime).Msg("Fan speed set")
	datadog.Gauge("fan.speed", value, "component:fan", "fan:"+c.name)
	if c.journal != nil {
		if err := c.journal.RecordFanSpeed(c.name, printTime, value); err != nil {
			log.Warn().Err(err).Str("fan", c.name).Msg("Failed to journal fan speed")
		}
	}
	return nil
}

// HandleRequestRestart turns the fan off ahead of a controller restart.
func (c *Controller) HandleRequestRestart(printTime float64) error {
	return c.SetSpeed(printTime, 0)
}

func (c *Controller) Status() map[string]any {
	return map[string]any{"speed": c.lastValue}
}
