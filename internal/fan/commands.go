package fan

import (
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/peripheral-controller/internal/gcode"
)

// PrimaryName is the fan that answers M106/M107.
const PrimaryName = "fan"

const setFanSpeedHelp = "Sets the speed of a fan"

// Lookahead defers a callback until the move queue assigns it a print time.
type Lookahead interface {
	RegisterLookaheadCallback(cb func(printTime float64))
}

// RegisterCommands installs M106/M107 for the primary fan and
// SET_FAN_SPEED FAN=<name> for every other fan. Every fan turns off when a
// restart is requested.
func (c *Controller) RegisterCommands(d *gcode.Dispatcher, la Lookahead) error {
	d.OnRequestRestart(func(printTime float64) {
		if err := c.HandleRequestRestart(printTime); err != nil {
			log.Error().Err(err).Str("fan", c.name).Msg("Failed to stop fan for restart")
		}
	})
	if c.name == PrimaryName {
		if err := d.Register("M106", func(gc *gcode.Command) error {
			return c.cmdM106(gc, la)
		}, ""); err != nil {
			return err
		}
		return d.Register("M107", func(gc *gcode.Command) error {
			c.delayedSetSpeed(la, 0)
			return nil
		}, "")
	}
	return d.RegisterMux("SET_FAN_SPEED", "FAN", c.name, func(gc *gcode.Command) error {
		return c.cmdSetFanSpeed(gc, la)
	}, setFanSpeedHelp)
}

func (c *Controller) cmdM106(gc *gcode.Command, la Lookahead) error {
	s, err := gc.GetFloat("S", 255)
	if err != nil {
		return err
	}
	if s < 0 {
		return fmt.Errorf("error on '%s': parameter 'S' must have minimum of 0", gc.Name)
	}
	c.delayedSetSpeed(la, s/255)
	return nil
}

func (c *Controller) cmdSetFanSpeed(gc *gcode.Command, la Lookahead) error {
	speed, err := gc.GetFloat("SPEED", 0)
	if err != nil {
		return err
	}
	c.delayedSetSpeed(la, speed)
	return nil
}

func (c *Controller) delayedSetSpeed(la Lookahead, value float64) {
	la.RegisterLookaheadCallback(func(printTime float64) {
		if err := c.SetSpeed(printTime, value); err != nil {
			log.Error().Err(err).Str("fan", c.name).Msg("Delayed fan update failed")
		}
	})
}
