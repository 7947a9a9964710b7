// Package probe drives a dual-pin smart probe (BLTouch style): a control pin
// carrying pulse-coded commands and a sensor pin read as a homing endstop.
package probe

import (
	"fmt"
	"math"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/peripheral-controller/internal/datadog"
	"github.com/thatsimonsguy/peripheral-controller/internal/gcode"
)

// PWM is a timed PWM output on the control pin.
type PWM interface {
	SetupMaxDuration(maxDuration float64)
	SetupCycleTime(cycleTime float64, hardwarePWM bool)
	SetPWM(printTime, value float64) error
}

// Endstop is the sensor pin used as a homing endstop.
type Endstop interface {
	QueryEndstop(printTime float64)
	QueryEndstopWait() (bool, error)
	HomeStart(printTime, sampleTime float64, sampleCount int, restTime float64) error
	HomeWait(moveEndPrintTime float64) (float64, error)
	HomePrepare()
	HomeFinalize()
}

// Toolhead is the timed move queue.
type Toolhead interface {
	LastMoveTime() float64
	Dwell(delay float64)
	WaitMoves() error
}

type Shutdowner interface {
	InvokeShutdown(msg string)
}

// Journal records probe commands. It is optional.
type Journal interface {
	RecordProbeCommand(probe, command string, printTime float64, outcome string) error
}

type Config struct {
	Name          string
	ZOffset       float64
	PinMoveTime   float64
	TestSensorPin bool
}

type Deps struct {
	PWM      PWM
	Endstop  Endstop
	Toolhead Toolhead
	Shutdown Shutdowner
	Journal  Journal
}

type Controller struct {
	name     string
	pwm      PWM
	endstop  Endstop
	toolhead Toolhead
	shutdown Shutdowner
	journal  Journal

	positionEndstop float64
	pinMoveTime     float64
	testSensorPin   bool
	nextTestTime    float64
	lastCommand     Command
}

func New(cfg Config, deps Deps) *Controller {
	name := cfg.Name
	if name == "" {
		name = "bltouch"
	}

	deps.PWM.SetupMaxDuration(0)
	deps.PWM.SetupCycleTime(SignalPeriod, false)

	return &Controller{
		name:            name,
		pwm:             deps.PWM,
		endstop:         deps.Endstop,
		toolhead:        deps.Toolhead,
		shutdown:        deps.Shutdown,
		journal:         deps.Journal,
		positionEndstop: cfg.ZOffset,
		pinMoveTime:     QuantizePinMoveTime(cfg.PinMoveTime),
		testSensorPin:   cfg.TestSensorPin,
	}
}

// QuantizePinMoveTime rounds up to a whole number of signal periods, never
// below MinCmdTime.
func QuantizePinMoveTime(pmt float64) float64 {
	pmt = math.Max(pmt, MinCmdTime)
	return math.Ceil(pmt/SignalPeriod) * SignalPeriod
}

func (c *Controller) Name() string {
	return c.name
}

func (c *Controller) PinMoveTime() float64 {
	return c.pinMoveTime
}

// NextTestTime is the earliest print time the next wiring self-test may run.
func (c *Controller) NextTestTime() float64 {
	return c.nextTestTime
}

// HandleConnect resets the probe once the MCU connection is up.
func (c *Controller) HandleConnect() error {
	return c.Reset()
}

func (c *Controller) sendCmd(printTime float64, cmd Command) error {
	log.Info().Str("probe", c.name).Str("command", cmd.String()).Float64("print_time", printTime).Msg("Sending BLTouch command")
	if err := c.pwm.SetPWM(printTime, cmd.Ratio()); err != nil {
		return fmt.Errorf("send %s: %w", cmd, err)
	}
	if cmd != CmdNone {
		c.lastCommand = cmd
		datadog.Incr("probe.command", "component:probe", "command:"+cmd.String())
	}
	return nil
}

func (c *Controller) queryTriggered() (bool, error) {
	c.endstop.QueryEndstop(c.toolhead.LastMoveTime())
	triggered, err := c.endstop.QueryEndstopWait()
	if err != nil {
		return false, fmt.Errorf("query probe sensor: %w", err)
	}
	return triggered, nil
}

// SendAndVerify sends cmd, waits pin_move_time for it to take effect and
// fails if the sensor reports triggered afterwards.
func (c *Controller) SendAndVerify(cmd Command) error {
	printTime := c.toolhead.LastMoveTime()
	if err := c.sendCmd(printTime, cmd); err != nil {
		return err
	}
	if err := c.sendCmd(printTime+MinCmdTime, CmdNone); err != nil {
		return err
	}
	c.toolhead.Dwell(c.pinMoveTime)
	if err := c.toolhead.WaitMoves(); err != nil {
		return fmt.Errorf("wait for %s: %w", cmd, err)
	}

	triggered, err := c.queryTriggered()
	if err != nil {
		return err
	}
	if triggered {
		log.Info().Str("probe", c.name).Str("command", cmd.String()).Msg("BLTouch command failed")
		datadog.Incr("probe.command_failed", "component:probe", "command:"+cmd.String())
		c.record(cmd, printTime, "failed")
		return commandFailed(cmd)
	}
	c.record(cmd, printTime, "verified")
	return nil
}

func (c *Controller) record(cmd Command, printTime float64, outcome string) {
	if c.journal == nil {
		return
	}
	if err := c.journal.RecordProbeCommand(c.name, cmd.String(), printTime, outcome); err != nil {
		log.Warn().Err(err).Str("probe", c.name).Msg("Failed to journal probe command")
	}
}

func (c *Controller) resetSequence() error {
	if err := c.SendAndVerify(CmdReset); err != nil {
		return err
	}
	return c.SendAndVerify(CmdPinUp)
}

// Reset sends reset then pin_up. A probe that cannot be reset is a fatal
// fault: the shutdown sink is invoked and ErrMalfunction is returned.
func (c *Controller) Reset() error {
	err := c.resetSequence()
	if err == nil {
		return nil
	}
	if !isEndstopError(err) {
		return err
	}
	log.Error().Err(err).Str("probe", c.name).Msg("Probe reset failed")
	c.shutdown.InvokeShutdown(ErrMalfunction.Error())
	return fmt.Errorf("%w: %v", ErrMalfunction, err)
}

// HomePrepare deploys the probe pin before a homing move.
func (c *Controller) HomePrepare() error {
	log.Info().Str("probe", c.name).Msg("BLTouch prepare")
	if err := c.TestSensor(); err != nil {
		return err
	}
	if err := c.SendAndVerify(CmdPinDown); err != nil {
		if !isEndstopError(err) {
			return err
		}
		if rerr := c.Reset(); rerr != nil {
			return rerr
		}
		return &EndstopError{
			Command: CmdPinDown,
			Msg:     "Failed to prepare the BLTouch probe, it's probably too close to the bed",
			Kind:    ErrTooClose,
		}
	}
	c.endstop.HomePrepare()
	return nil
}

// HomeFinalize retracts the probe pin after a homing move.
func (c *Controller) HomeFinalize() error {
	log.Info().Str("probe", c.name).Msg("BLTouch finalize")
	if err := c.SendAndVerify(CmdPinUp); err != nil {
		if !isEndstopError(err) {
			return err
		}
		if rerr := c.Reset(); rerr != nil {
			return rerr
		}
		return &EndstopError{
			Command: CmdPinUp,
			Msg:     "An error was detected during the BLTouch probing",
			Kind:    ErrProbing,
		}
	}
	c.endstop.HomeFinalize()
	return nil
}

// HomeStart arms the sensor, capping rest_time so a touch is resampled quickly.
func (c *Controller) HomeStart(printTime, sampleTime float64, sampleCount int, restTime float64) error {
	restTime = math.Min(restTime, EndstopRestTime)
	return c.endstop.HomeStart(printTime, sampleTime, sampleCount, restTime)
}

func (c *Controller) HomeWait(moveEndPrintTime float64) (float64, error) {
	return c.endstop.HomeWait(moveEndPrintTime)
}

func (c *Controller) QueryEndstop(printTime float64) {
	c.endstop.QueryEndstop(printTime)
}

func (c *Controller) QueryEndstopWait() (bool, error) {
	return c.endstop.QueryEndstopWait()
}

// PositionEndstop is the configured z_offset.
func (c *Controller) PositionEndstop() float64 {
	return c.positionEndstop
}

const DebugHelp = "Send a command to the bltouch for debugging"

// CmdDebug implements BLTOUCH_DEBUG COMMAND=<name>.
func (c *Controller) CmdDebug(gc *gcode.Command) error {
	name := gc.Get("COMMAND", "")
	cmd, ok := ParseCommand(name)
	if name == "" || !ok {
		gc.RespondInfo("BLTouch commands: " + strings.Join(CommandNames(), ", "))
		return nil
	}

	printTime := c.toolhead.LastMoveTime()
	msg := fmt.Sprintf("Sending BLTOUCH_DEBUG COMMAND=%s", cmd)
	gc.RespondInfo(msg)
	log.Info().Str("probe", c.name).Msg(msg)

	if err := c.sendCmd(printTime, cmd); err != nil {
		return err
	}
	if err := c.sendCmd(printTime+c.pinMoveTime, CmdNone); err != nil {
		return err
	}
	c.toolhead.Dwell(c.pinMoveTime + MinCmdTime)
	return nil
}

func (c *Controller) Status() map[string]any {
	return map[string]any{
		"last_command":    c.lastCommand.String(),
		"pin_move_time":   c.pinMoveTime,
		"next_test_time":  c.nextTestTime,
		"test_sensor_pin": c.testSensorPin,
		"z_offset":        c.positionEndstop,
	}
}
