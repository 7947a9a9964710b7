package probe

import (
	"github.com/rs/zerolog/log"
)

type selfTestState int

const (
	testCheckAlarm selfTestState = iota
	testCheckEnabled
	testCheckSchedule
	testTouchMode
	testRecover
	testDone
)

func (s selfTestState) String() string {
	switch s {
	case testCheckAlarm:
		return "check_alarm"
	case testCheckEnabled:
		return "check_enabled"
	case testCheckSchedule:
		return "check_schedule"
	case testTouchMode:
		return "touch_mode"
	case testRecover:
		return "recover"
	default:
		return "done"
	}
}

// TestSensor runs before each probing pass. It clears a latched alarm and,
// at most once per TestTime, verifies the sensor wiring using touch mode.
func (c *Controller) TestSensor() error {
	state := testCheckAlarm
	for state != testDone {
		var (
			next selfTestState
			err  error
		)
		switch state {
		case testCheckAlarm:
			next, err = c.testCheckAlarm()
		case testCheckEnabled:
			next, err = c.testCheckEnabled()
		case testCheckSchedule:
			next, err = c.testCheckSchedule()
		case testTouchMode:
			next, err = c.testTouchMode()
		case testRecover:
			next, err = c.testRecover()
		}
		if err != nil {
			log.Warn().Err(err).Str("probe", c.name).Str("state", state.String()).Msg("BLTouch sensor test failed")
			return err
		}
		state = next
	}
	return nil
}

func (c *Controller) testCheckAlarm() (selfTestState, error) {
	if err := c.toolhead.WaitMoves(); err != nil {
		return testDone, err
	}
	triggered, err := c.queryTriggered()
	if err != nil {
		return testDone, err
	}
	if triggered {
		log.Warn().Str("probe", c.name).Msg("BLTouch error, trying to reset")
		if err := c.resetSequence(); err != nil {
			// The pin_down verification that follows surfaces a stuck probe.
			log.Error().Err(err).Str("probe", c.name).Msg("BLTouch reset before sensor test failed")
		}
	}
	return testCheckEnabled, nil
}

func (c *Controller) testCheckEnabled() (selfTestState, error) {
	if !c.testSensorPin {
		return testDone, nil
	}
	return testCheckSchedule, nil
}

func (c *Controller) testCheckSchedule() (selfTestState, error) {
	printTime := c.toolhead.LastMoveTime()
	if printTime < c.nextTestTime {
		c.nextTestTime = printTime + TestTime
		return testDone, nil
	}
	return testTouchMode, nil
}

func (c *Controller) testTouchMode() (selfTestState, error) {
	printTime := c.toolhead.LastMoveTime()
	if err := c.sendCmd(printTime, CmdPinUp); err != nil {
		return testDone, err
	}
	if err := c.sendCmd(printTime+MinCmdTime, CmdTouchMode); err != nil {
		return testDone, err
	}
	if err := c.sendCmd(printTime+2*MinCmdTime, CmdNone); err != nil {
		return testDone, err
	}
	c.toolhead.Dwell(c.pinMoveTime)
	if err := c.toolhead.WaitMoves(); err != nil {
		return testDone, err
	}

	triggered, err := c.queryTriggered()
	if err != nil {
		return testDone, err
	}
	if !triggered {
		return testDone, &EndstopError{
			Command: CmdTouchMode,
			Msg: "Failed to verify the BLTouch wiring.\n" +
				"This is not necessarily an error, some clones can't perform this test\n" +
				"If that's the case, add test_sensor_pin: False to your configuration.",
			Kind: ErrWiringCheck,
		}
	}
	return testRecover, nil
}

// Reset alone does not leave touch mode, so pin_up goes first.
func (c *Controller) testRecover() (selfTestState, error) {
	printTime := c.toolhead.LastMoveTime()
	if err := c.sendCmd(printTime, CmdPinUp); err != nil {
		return testDone, err
	}
	if err := c.sendCmd(printTime+MinCmdTime, CmdNone); err != nil {
		return testDone, err
	}
	c.toolhead.Dwell(2 * MinCmdTime)

	if err := c.SendAndVerify(CmdReset); err != nil {
		if !isEndstopError(err) {
			return testDone, err
		}
		return testDone, &EndstopError{
			Command: CmdReset,
			Msg: "Failed to reset the probe after enabling touch_mode\n" +
				"Some clones don't supports this, so if that's the case, \n" +
				"then add test_sensor_pin: False to your configuration.",
			Kind: ErrTouchModeReset,
		}
	}

	c.nextTestTime = c.toolhead.LastMoveTime() + TestTime
	return testDone, nil
}
