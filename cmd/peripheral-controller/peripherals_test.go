package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thatsimonsguy/peripheral-controller/db"
	"github.com/thatsimonsguy/peripheral-controller/internal/config"
	"github.com/thatsimonsguy/peripheral-controller/internal/gcode"
	"github.com/thatsimonsguy/peripheral-controller/internal/reactor"
	"github.com/thatsimonsguy/peripheral-controller/internal/sim"
	"github.com/thatsimonsguy/peripheral-controller/system/shutdown"
)

const testConfig = `
database: ":memory:"
bltouch:
  z_offset: 1.25
  pin_move_time: 0.5
fans:
  - name: fan
  - name: exhaust
    max_power: 0.8
    shutdown_speed: 0.5
  - name: hotend
    shutdown_speed: 1.0
heaters:
  - name: extruder
verify_heaters:
  - heater: extruder
`

func newTestPeripherals(t *testing.T) (*peripherals, components) {
	t.Helper()

	cfg, err := config.Parse([]byte(testConfig))
	require.NoError(t, err)

	conn, err := db.Open(cfg.Database)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	r := reactor.New()
	c := components{
		reactor:    r,
		shutdown:   shutdown.New(shutdown.Deps{Halter: r}),
		toolhead:   sim.NewToolhead(0),
		dispatcher: gcode.NewDispatcher(),
		journal:    db.NewJournal(conn),
	}
	p, err := setup(cfg, c)
	require.NoError(t, err)
	t.Cleanup(p.close)
	return p, c
}

func TestSetup_RegistersCommands(t *testing.T) {
	_, c := newTestPeripherals(t)

	help := c.dispatcher.Help()
	for _, name := range []string{
		"BLTOUCH_DEBUG", "PROBE", "SET_PROBE_BED", "M106", "M107", "SET_FAN_SPEED",
		"SET_HEATER_TEMPERATURE", "RESTART", "FIRMWARE_RESTART",
	} {
		assert.Contains(t, help, name)
	}
	assert.Equal(t, "Sets the speed of a fan (FAN=exhaust|hotend)", help["SET_FAN_SPEED"])
}

func TestConnect_ResetsProbeAndArmsChecks(t *testing.T) {
	p, c := newTestPeripherals(t)

	p.connect(false)

	assert.False(t, c.shutdown.IsShutdown())
	assert.Equal(t, "pin_up", p.probe.Status()["last_command"])
	require.Len(t, p.checks, 1)
	assert.True(t, p.checks[0].Armed())

	probes, err := db.GetRecentProbeCommands(c.journal.DB(), 10)
	require.NoError(t, err)
	assert.Len(t, probes, 2)
}

func TestConnect_DebugOutputLeavesChecksDisarmed(t *testing.T) {
	p, _ := newTestPeripherals(t)

	p.connect(true)

	assert.False(t, p.checks[0].Armed())
}

func TestSnapshot(t *testing.T) {
	p, c := newTestPeripherals(t)
	p.connect(false)

	_, err := c.dispatcher.Run("M106", map[string]string{"S": "255"})
	require.NoError(t, err)

	snap := p.snapshot(5.0)
	assert.Equal(t, 5.0, snap["eventtime"])
	assert.Contains(t, snap, "probe")
	assert.Contains(t, snap, "heaters")
	assert.Contains(t, snap, "shutdown")

	fans := snap["fans"].(map[string]map[string]any)
	assert.Equal(t, 1.0, fans["fan"]["speed"])
	assert.Equal(t, 0.0, fans["exhaust"]["speed"])

	checks := snap["heater_checks"].(map[string]map[string]any)
	assert.Contains(t, checks, "extruder")
}

func TestShutdown_DrivesOutputsToShutdownSpeed(t *testing.T) {
	p, c := newTestPeripherals(t)
	p.connect(false)

	_, err := c.dispatcher.Run("SET_FAN_SPEED", map[string]string{"FAN": "hotend", "SPEED": "1"})
	require.NoError(t, err)
	_, err = c.dispatcher.Run("M106", map[string]string{"S": "255"})
	require.NoError(t, err)

	c.shutdown.InvokeShutdown("heater fault")

	assert.True(t, c.shutdown.IsShutdown())
	assert.Equal(t, 1.0, p.fanOutputs["hotend"].Value(), "hotend keeps running at shutdown_speed")
	assert.Equal(t, 0.0, p.fanOutputs["fan"].Value())
	assert.Equal(t, 0.5, p.fanOutputs["exhaust"].Value())
	assert.True(t, p.probeControl.IsShutdown())
	assert.False(t, p.checks[0].Armed())

	// outputs ignore requests once shut down
	_, err = c.dispatcher.Run("SET_FAN_SPEED", map[string]string{"FAN": "hotend", "SPEED": "0"})
	require.NoError(t, err)
	assert.Equal(t, 1.0, p.fanOutputs["hotend"].Value())
}

func TestRestart_TurnsFansOffAndStopsReactor(t *testing.T) {
	p, c := newTestPeripherals(t)
	p.connect(false)

	_, err := c.dispatcher.Run("SET_FAN_SPEED", map[string]string{"FAN": "hotend", "SPEED": "1"})
	require.NoError(t, err)
	before := c.toolhead.LastMoveTime()

	resp, err := c.dispatcher.Run("RESTART", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"Restarting peripheral controller"}, resp)

	assert.True(t, p.restartRequested)
	assert.False(t, c.shutdown.IsShutdown())
	for _, f := range p.fans {
		assert.Equal(t, 0.0, f.Speed(), f.Name())
	}
	assert.Equal(t, 0.0, p.fanOutputs["hotend"].Value())
	assert.InDelta(t, before+restartDwell, c.toolhead.LastMoveTime(), 1e-9)

	c.reactor.RunDue(c.reactor.Monotonic())
	assert.ErrorIs(t, c.reactor.Call(context.Background(), func(float64) error { return nil }), reactor.ErrClosed)
}

func TestProbeCommand(t *testing.T) {
	p, c := newTestPeripherals(t)
	p.connect(false)

	_, err := c.dispatcher.Run("PROBE", map[string]string{"DURATION": "1"})
	assert.ErrorIs(t, err, sim.ErrNoContact)

	_, err = c.dispatcher.Run("SET_PROBE_BED", map[string]string{"REACH": "1"})
	require.NoError(t, err)
	resp, err := c.dispatcher.Run("PROBE", map[string]string{"DURATION": "1"})
	require.NoError(t, err)
	require.Len(t, resp, 1)
	assert.Contains(t, resp[0], "is z=1.250000")
	assert.False(t, c.shutdown.IsShutdown())
}
