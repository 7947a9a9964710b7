package probe

import (
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/peripheral-controller/internal/gcode"
)

const ProbeHelp = "Probe Z-height at current XY position"

// DefaultProbeDuration is the length of a probing move when none is given.
const DefaultProbeDuration = 5.0

// Probe runs one probing move of the given duration: prepare, arm the
// sensor, move, wait for the trigger and finalize. It returns the trigger
// print time. Finalize runs even when the move saw no trigger.
func (c *Controller) Probe(duration float64) (float64, error) {
	if err := c.HomePrepare(); err != nil {
		return 0, err
	}

	printTime := c.toolhead.LastMoveTime()
	if err := c.HomeStart(printTime, EndstopSampleTime, EndstopSampleCount, EndstopRestTime); err != nil {
		if ferr := c.HomeFinalize(); ferr != nil {
			log.Warn().Err(ferr).Str("probe", c.name).Msg("BLTouch finalize after failed start")
		}
		return 0, fmt.Errorf("start probing move: %w", err)
	}
	c.toolhead.Dwell(duration)
	trigger, waitErr := c.HomeWait(c.toolhead.LastMoveTime())

	if err := c.HomeFinalize(); err != nil {
		return 0, err
	}
	if waitErr != nil {
		return 0, waitErr
	}
	log.Info().Str("probe", c.name).Float64("trigger_time", trigger).Msg("Probe triggered")
	return trigger, nil
}

// CmdProbe implements PROBE [DURATION=<seconds>].
func (c *Controller) CmdProbe(gc *gcode.Command) error {
	duration, err := gc.GetFloat("DURATION", DefaultProbeDuration)
	if err != nil {
		return err
	}
	if duration <= 0 {
		return fmt.Errorf("error on '%s': parameter 'DURATION' must be above 0", gc.Name)
	}
	trigger, err := c.Probe(duration)
	if err != nil {
		return err
	}
	gc.RespondInfo(fmt.Sprintf("probe at print time %.6f is z=%.6f", trigger, c.positionEndstop))
	return nil
}
