package probe

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thatsimonsguy/peripheral-controller/internal/gcode"
)

func TestProbe_FullMove(t *testing.T) {
	f := newFixture(false)

	trigger, err := f.ctrl.Probe(2.0)
	require.NoError(t, err)

	moveEnd := 10.0 + f.ctrl.PinMoveTime() + 2.0
	assert.InDelta(t, moveEnd, f.endstop.waitedUntil, 1e-9)
	assert.InDelta(t, moveEnd-0.25, trigger, 1e-9)
	assert.Equal(t, []Command{CmdPinDown, CmdPinUp}, f.pwm.commands())
	assert.Equal(t, 1, f.endstop.homePrepared)
	assert.Equal(t, 1, f.endstop.homeFinal)
	assert.Equal(t, EndstopRestTime, f.endstop.restTime)
}

func TestProbe_NoTriggerStillFinalizes(t *testing.T) {
	f := newFixture(false)
	f.endstop.waitErr = errors.New("no trigger on probe after full movement")

	_, err := f.ctrl.Probe(2.0)
	assert.ErrorIs(t, err, f.endstop.waitErr)
	assert.Equal(t, []Command{CmdPinDown, CmdPinUp}, f.pwm.commands())
	assert.Equal(t, 1, f.endstop.homeFinal)
}

func TestProbe_StartFailureFinalizes(t *testing.T) {
	f := newFixture(false)
	f.endstop.startErr = errors.New("sensor busy")

	_, err := f.ctrl.Probe(2.0)
	assert.ErrorIs(t, err, f.endstop.startErr)
	assert.Equal(t, []Command{CmdPinDown, CmdPinUp}, f.pwm.commands())
	assert.Equal(t, 0.0, f.endstop.waitedUntil)
}

func TestProbe_PrepareFailureSkipsMove(t *testing.T) {
	// sensor check ok, pin_down triggered, reset ok, pin_up ok
	f := newFixture(false, false, true, false, false)

	_, err := f.ctrl.Probe(2.0)
	assert.ErrorIs(t, err, ErrTooClose)
	assert.Equal(t, 0.0, f.endstop.waitedUntil)
	assert.Equal(t, 0, f.endstop.homeFinal)
}

func TestCmdProbe(t *testing.T) {
	f := newFixture(false)
	gc := gcode.NewCommand("PROBE", map[string]string{"DURATION": "1"})

	require.NoError(t, f.ctrl.CmdProbe(gc))

	trigger := 10.0 + f.ctrl.PinMoveTime() + 1.0 - 0.25
	assert.Equal(t, []string{fmt.Sprintf("probe at print time %.6f is z=1.500000", trigger)}, gc.Responses())
}

func TestCmdProbe_RejectsBadDuration(t *testing.T) {
	f := newFixture(false)

	err := f.ctrl.CmdProbe(gcode.NewCommand("PROBE", map[string]string{"DURATION": "0"}))
	assert.EqualError(t, err, "error on 'PROBE': parameter 'DURATION' must be above 0")
	assert.Empty(t, f.pwm.events)
}
