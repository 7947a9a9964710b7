package gcode

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun_PlainCommand(t *testing.T) {
	d := NewDispatcher()
	var got string
	require.NoError(t, d.Register("bltouch_debug", func(cmd *Command) error {
		got = cmd.Get("COMMAND", "")
		cmd.RespondInfo("ok")
		return nil
	}, "debug"))

	resp, err := d.Run("BLTOUCH_DEBUG", map[string]string{"command": "pin_up"})
	require.NoError(t, err)
	assert.Equal(t, "pin_up", got)
	assert.Equal(t, []string{"ok"}, resp)
}

func TestRun_Unknown(t *testing.T) {
	d := NewDispatcher()
	_, err := d.Run("NOPE", nil)
	assert.True(t, errors.Is(err, ErrUnknownCommand))
}

func TestRegister_Duplicate(t *testing.T) {
	d := NewDispatcher()
	h := func(*Command) error { return nil }
	require.NoError(t, d.Register("M106", h, ""))
	assert.Error(t, d.Register("m106", h, ""))
}

func TestRunMux_RoutesByKey(t *testing.T) {
	d := NewDispatcher()
	var called []string
	require.NoError(t, d.RegisterMux("SET_FAN_SPEED", "FAN", "exhaust", func(*Command) error {
		called = append(called, "exhaust")
		return nil
	}, "Sets the speed of a fan"))
	require.NoError(t, d.RegisterMux("SET_FAN_SPEED", "FAN", "nozzle", func(*Command) error {
		called = append(called, "nozzle")
		return nil
	}, "Sets the speed of a fan"))

	_, err := d.Run("SET_FAN_SPEED", map[string]string{"FAN": "nozzle"})
	require.NoError(t, err)
	_, err = d.Run("SET_FAN_SPEED", map[string]string{"FAN": "hotend"})
	assert.Error(t, err)

	assert.Equal(t, []string{"nozzle"}, called)
	assert.Contains(t, d.Help()["SET_FAN_SPEED"], "exhaust|nozzle")
}

func TestRegisterMux_KeyMismatch(t *testing.T) {
	d := NewDispatcher()
	h := func(*Command) error { return nil }
	require.NoError(t, d.RegisterMux("SET_FAN_SPEED", "FAN", "a", h, ""))
	assert.Error(t, d.RegisterMux("SET_FAN_SPEED", "NAME", "b", h, ""))
}

func TestGetFloat(t *testing.T) {
	cmd := NewCommand("M106", map[string]string{"S": "127.5", "BAD": "x"})

	v, err := cmd.GetFloat("S", 255)
	require.NoError(t, err)
	assert.Equal(t, 127.5, v)

	v, err = cmd.GetFloat("MISSING", 255)
	require.NoError(t, err)
	assert.Equal(t, 255.0, v)

	_, err = cmd.GetFloat("BAD", 0)
	assert.Error(t, err)
}

func TestRequestRestart_RunsHandlersInOrder(t *testing.T) {
	d := NewDispatcher()
	var calls []string
	d.OnRequestRestart(func(printTime float64) {
		calls = append(calls, "first")
		assert.Equal(t, 4.5, printTime)
	})
	d.OnRequestRestart(func(printTime float64) {
		calls = append(calls, "second")
	})

	d.RequestRestart(4.5)
	assert.Equal(t, []string{"first", "second"}, calls)
}
