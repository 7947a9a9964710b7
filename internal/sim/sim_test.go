package sim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thatsimonsguy/peripheral-controller/internal/gcode"
)

func TestToolhead(t *testing.T) {
	th := NewToolhead(1.0)
	th.Dwell(0.5)
	th.Dwell(-1)
	assert.Equal(t, 1.5, th.LastMoveTime())
	assert.Equal(t, 1.0, th.Now())

	require.NoError(t, th.WaitMoves())
	assert.Equal(t, 1.5, th.Now())
	assert.Equal(t, 1, th.Flushes())

	var got float64
	th.RegisterLookaheadCallback(func(pt float64) { got = pt })
	assert.Equal(t, 1.5, got)
}

func TestPWM_RejectsRegression(t *testing.T) {
	p := NewPWM("fan")
	require.NoError(t, p.SetPWM(1.0, 0.5))
	require.NoError(t, p.SetPWM(1.0, 0.6))
	assert.Error(t, p.SetPWM(0.9, 0.7))
	assert.Error(t, p.SetPWM(2.0, 1.5))
	assert.Equal(t, []Event{{1.0, 0.5}, {1.0, 0.6}}, p.Events())
	assert.Equal(t, 0.6, p.Value())
}

func TestPWM_SetupAndListener(t *testing.T) {
	p := NewPWM("fan")
	p.SetupCycleTime(0.01, false)
	p.SetupStartValue(0, 0.4)
	assert.Equal(t, 0.01, p.CycleTime())
	assert.Equal(t, 0.4, p.ShutdownValue())
	assert.Equal(t, 0.0, p.Value())

	var seen []Event
	p.OnEvent(func(ev Event) { seen = append(seen, ev) })
	require.NoError(t, p.SetPWM(2.0, 1.0))
	assert.Equal(t, []Event{{2.0, 1.0}}, seen)
}

func TestProbe_DecodesCommands(t *testing.T) {
	control := NewPWM("bltouch")
	p := NewProbe(control, ProbeFaults{})

	require.NoError(t, control.SetPWM(1.0, 0.0007/signalPeriod))
	require.NoError(t, control.SetPWM(1.1, 0))
	assert.True(t, p.Deployed())
	assert.False(t, p.Triggered())

	require.NoError(t, control.SetPWM(2.0, 0.0012/signalPeriod))
	assert.True(t, p.Triggered())

	require.NoError(t, control.SetPWM(3.0, 0.0015/signalPeriod))
	assert.False(t, p.Triggered())
	assert.False(t, p.Deployed())

	require.NoError(t, control.SetPWM(4.0, 0.5))
	assert.Equal(t, []string{"pin_down", "touch_mode", "pin_up"}, p.Commands())
}

func TestProbe_AlarmAndReset(t *testing.T) {
	control := NewPWM("bltouch")
	p := NewProbe(control, ProbeFaults{Stuck: true})

	require.NoError(t, control.SetPWM(1.0, 0.0007/signalPeriod))
	assert.True(t, p.Triggered())
	assert.False(t, p.Deployed())

	require.NoError(t, control.SetPWM(2.0, 0.0015/signalPeriod))
	assert.True(t, p.Triggered(), "pin_up does not clear the alarm")

	require.NoError(t, control.SetPWM(3.0, 0.0022/signalPeriod))
	assert.False(t, p.Triggered())

	p.SetFaults(ProbeFaults{ResetBroken: true})
	p.RaiseAlarm()
	require.NoError(t, control.SetPWM(4.0, 0.0022/signalPeriod))
	assert.True(t, p.Triggered())
}

func TestProbe_Homing(t *testing.T) {
	control := NewPWM("bltouch")
	p := NewProbe(control, ProbeFaults{})

	require.NoError(t, control.SetPWM(1.0, 0.0007/signalPeriod))
	require.NoError(t, p.HomeStart(2.0, 0.000015, 4, 0.001))
	_, err := p.HomeWait(3.0)
	assert.ErrorIs(t, err, ErrNoContact)

	require.NoError(t, p.HomeStart(4.0, 0.000015, 4, 0.001))
	p.SetBedContact(true)
	trigger, err := p.HomeWait(5.0)
	require.NoError(t, err)
	assert.Equal(t, 5.0, trigger)
}

func TestHeater_Model(t *testing.T) {
	h := NewHeater(HeaterConfig{Name: "extruder", Ambient: 25, MaxRate: 2, CoolingCoeff: 0})

	temp, target := h.GetTemp(0)
	assert.Equal(t, 25.0, temp)
	assert.Equal(t, 0.0, target)

	h.SetTarget(35)
	temp, _ = h.GetTemp(2)
	assert.Equal(t, 29.0, temp)
	temp, _ = h.GetTemp(100)
	assert.Equal(t, 35.0, temp)

	h.SetTarget(100)
	h.SetBroken(true)
	temp, _ = h.GetTemp(200)
	assert.Equal(t, 35.0, temp)
}

func TestHeater_Cooling(t *testing.T) {
	h := NewHeater(HeaterConfig{Name: "bed", Ambient: 20, MaxRate: 1, CoolingCoeff: 0.1})
	h.GetTemp(0)
	h.SetTarget(0)

	temp, _ := h.GetTemp(1)
	assert.Equal(t, 20.0, temp)
}

func TestHeater_Command(t *testing.T) {
	h := NewHeater(HeaterConfig{Name: "extruder", Ambient: 25, MaxRate: 2})
	d := gcode.NewDispatcher()
	require.NoError(t, h.RegisterCommands(d))

	resp, err := d.Run("SET_HEATER_TEMPERATURE", map[string]string{"HEATER": "extruder", "TARGET": "210"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Heater extruder target set to 210.0"}, resp)
	assert.Equal(t, 210.0, h.Status()["target"])

	_, err = d.Run("SET_HEATER_TEMPERATURE", map[string]string{"HEATER": "extruder", "TARGET": "-5"})
	assert.Error(t, err)
}

func TestPWM_Shutdown(t *testing.T) {
	p := NewPWM("hotend")
	p.SetupStartValue(0, 1.0)
	var seen []Event
	p.OnEvent(func(ev Event) { seen = append(seen, ev) })

	require.NoError(t, p.SetPWM(2.0, 0.3))
	p.Shutdown()
	p.Shutdown()

	assert.True(t, p.IsShutdown())
	assert.Equal(t, 1.0, p.Value())
	assert.Equal(t, []Event{{2.0, 0.3}, {2.0, 1.0}}, seen)

	err := p.SetPWM(3.0, 0.0)
	assert.EqualError(t, err, "pwm hotend: output is shut down")
	assert.Equal(t, 1.0, p.Value())
}

func TestProbe_BedCommand(t *testing.T) {
	control := NewPWM("bltouch")
	p := NewProbe(control, ProbeFaults{})
	d := gcode.NewDispatcher()
	require.NoError(t, p.RegisterCommands(d))

	require.NoError(t, control.SetPWM(1.0, 0.0007/signalPeriod))
	resp, err := d.Run("SET_PROBE_BED", map[string]string{"REACH": "1"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Simulated bed in reach 1"}, resp)
	assert.False(t, p.Triggered(), "the bed is only touched by a probing move")

	require.NoError(t, p.HomeStart(2.0, 0.000015, 4, 0.001))
	trigger, err := p.HomeWait(3.0)
	require.NoError(t, err)
	assert.Equal(t, 3.0, trigger)

	_, err = d.Run("SET_PROBE_BED", map[string]string{"REACH": "0"})
	require.NoError(t, err)
	require.NoError(t, p.HomeStart(4.0, 0.000015, 4, 0.001))
	_, err = p.HomeWait(5.0)
	assert.ErrorIs(t, err, ErrNoContact)

	_, err = d.Run("SET_PROBE_BED", map[string]string{"REACH": "maybe"})
	assert.Error(t, err)
}
