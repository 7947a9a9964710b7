package fan

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pwmEvent struct {
	printTime float64
	value     float64
}

type mockPWM struct {
	maxDuration   float64
	cycleTime     float64
	hardwarePWM   bool
	startValue    float64
	shutdownValue float64
	events        []pwmEvent
	err           error
}

func (m *mockPWM) SetupMaxDuration(d float64) { m.maxDuration = d }
func (m *mockPWM) SetupCycleTime(c float64, hw bool) {
	m.cycleTime = c
	m.hardwarePWM = hw
}
func (m *mockPWM) SetupStartValue(start, shutdown float64) {
	m.startValue = start
	m.shutdownValue = shutdown
}
func (m *mockPWM) SetPWM(printTime, value float64) error {
	if m.err != nil {
		return m.err
	}
	m.events = append(m.events, pwmEvent{printTime, value})
	return nil
}

type mockJournal struct {
	values []float64
}

func (m *mockJournal) RecordFanSpeed(fan string, printTime, value float64) error {
	m.values = append(m.values, value)
	return nil
}

func defaultConfig() Config {
	return Config{
		Name:          "fan",
		MaxPower:      1.0,
		KickStartTime: 0.1,
		CycleTime:     0.010,
	}
}

func newTestFan(cfg Config) (*Controller, *mockPWM, *mockJournal) {
	pwm := &mockPWM{}
	journal := &mockJournal{}
	return New(cfg, Deps{PWM: pwm, Journal: journal}), pwm, journal
}

func TestNew_SetsUpPin(t *testing.T) {
	cfg := defaultConfig()
	cfg.MaxPower = 0.6
	cfg.ShutdownSpeed = 0.9
	cfg.HardwarePWM = true
	_, pwm, _ := newTestFan(cfg)

	assert.Equal(t, 0.0, pwm.maxDuration)
	assert.Equal(t, 0.010, pwm.cycleTime)
	assert.True(t, pwm.hardwarePWM)
	assert.Equal(t, 0.0, pwm.startValue)
	assert.Equal(t, 0.6, pwm.shutdownValue)
}

func TestSetSpeed_Full(t *testing.T) {
	fan, pwm, journal := newTestFan(defaultConfig())

	require.NoError(t, fan.SetSpeed(1.0, 1.0))
	assert.Equal(t, []pwmEvent{{1.0, 1.0}}, pwm.events)
	assert.Equal(t, 1.0, fan.Speed())
	assert.Equal(t, []float64{1.0}, journal.values)
}

func TestSetSpeed_UnchangedValueIsNoop(t *testing.T) {
	fan, pwm, _ := newTestFan(defaultConfig())

	require.NoError(t, fan.SetSpeed(1.0, 0.8))
	n := len(pwm.events)
	require.NoError(t, fan.SetSpeed(2.0, 0.8))
	require.NoError(t, fan.SetSpeed(3.0, 0.8))
	assert.Len(t, pwm.events, n)
}

func TestSetSpeed_ZeroFromZeroIsNoop(t *testing.T) {
	fan, pwm, _ := newTestFan(defaultConfig())

	require.NoError(t, fan.SetSpeed(1.0, 0))
	assert.Empty(t, pwm.events)
}

func TestSetSpeed_KickStart(t *testing.T) {
	tests := []struct {
		name   string
		start  float64
		target float64
		kick   bool
	}{
		{"from off", 0, 0.3, true},
		{"large jump", 0.2, 0.8, true},
		{"small jump", 0.2, 0.6, false},
		{"to full", 0, 1.0, false},
		{"slowing down", 0.8, 0.3, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fan, pwm, _ := newTestFan(defaultConfig())
			if tt.start > 0 {
				require.NoError(t, fan.SetSpeed(0, tt.start))
			}
			pwm.events = nil

			require.NoError(t, fan.SetSpeed(5.0, tt.target))
			if !tt.kick {
				assert.Equal(t, []pwmEvent{{5.0, tt.target}}, pwm.events)
				return
			}
			require.Len(t, pwm.events, 2)
			assert.Equal(t, pwmEvent{5.0, 1.0}, pwm.events[0])
			assert.Less(t, pwm.events[0].printTime, pwm.events[1].printTime)
			assert.InDelta(t, 5.1, pwm.events[1].printTime, 1e-9)
			assert.Equal(t, tt.target, pwm.events[1].value)
		})
	}
}

func TestSetSpeed_NoKickWhenDisabled(t *testing.T) {
	cfg := defaultConfig()
	cfg.KickStartTime = 0
	fan, pwm, _ := newTestFan(cfg)

	require.NoError(t, fan.SetSpeed(1.0, 0.3))
	assert.Equal(t, []pwmEvent{{1.0, 0.3}}, pwm.events)
}

func TestSetSpeed_KickUsesMaxPower(t *testing.T) {
	cfg := defaultConfig()
	cfg.MaxPower = 0.5
	fan, pwm, _ := newTestFan(cfg)

	require.NoError(t, fan.SetSpeed(1.0, 0.5))
	require.Len(t, pwm.events, 2)
	assert.Equal(t, 0.5, pwm.events[0].value)
	assert.Equal(t, 0.25, pwm.events[1].value)
}

func TestSetSpeed_ScalesAndClamps(t *testing.T) {
	cfg := defaultConfig()
	cfg.MaxPower = 0.5
	cfg.KickStartTime = 0
	fan, pwm, _ := newTestFan(cfg)

	require.NoError(t, fan.SetSpeed(1.0, 4.0))
	assert.Equal(t, 0.5, fan.Speed())

	require.NoError(t, fan.SetSpeed(2.0, -1.0))
	assert.Equal(t, 0.0, fan.Speed())
	assert.Len(t, pwm.events, 2)
}

func TestSetSpeed_OffBelow(t *testing.T) {
	cfg := defaultConfig()
	cfg.OffBelow = 0.2
	fan, pwm, _ := newTestFan(cfg)

	require.NoError(t, fan.SetSpeed(1.0, 0.15))
	assert.Empty(t, pwm.events)

	require.NoError(t, fan.SetSpeed(1.0, 0.2))
	assert.NotEmpty(t, pwm.events)
}

func TestSetSpeed_MinimumSpacing(t *testing.T) {
	cfg := defaultConfig()
	cfg.KickStartTime = 0
	fan, pwm, _ := newTestFan(cfg)

	require.NoError(t, fan.SetSpeed(1.0, 0.4))
	require.NoError(t, fan.SetSpeed(1.01, 0.6))
	require.NoError(t, fan.SetSpeed(1.02, 0.3))

	require.Len(t, pwm.events, 3)
	for i := 1; i < len(pwm.events); i++ {
		assert.GreaterOrEqual(t, pwm.events[i].printTime-pwm.events[i-1].printTime, MinTime-1e-9)
	}
}

func TestSetSpeed_MinimumSpacingAfterKick(t *testing.T) {
	fan, pwm, _ := newTestFan(defaultConfig())

	require.NoError(t, fan.SetSpeed(1.0, 0.3))
	require.NoError(t, fan.SetSpeed(1.05, 0.5))

	require.Len(t, pwm.events, 3)
	assert.InDelta(t, 1.1, pwm.events[1].printTime, 1e-9)
	assert.InDelta(t, 1.2, pwm.events[2].printTime, 1e-9)
}

func TestSetSpeed_PWMErrorKeepsState(t *testing.T) {
	fan, pwm, journal := newTestFan(defaultConfig())
	pwm.err = errors.New("queue full")

	assert.Error(t, fan.SetSpeed(1.0, 1.0))
	assert.Equal(t, 0.0, fan.Speed())
	assert.Empty(t, journal.values)
}

func TestHandleRequestRestart(t *testing.T) {
	fan, pwm, _ := newTestFan(defaultConfig())
	require.NoError(t, fan.SetSpeed(1.0, 1.0))

	require.NoError(t, fan.HandleRequestRestart(2.0))
	assert.Equal(t, pwmEvent{2.0, 0}, pwm.events[len(pwm.events)-1])
	assert.Equal(t, map[string]any{"speed": 0.0}, fan.Status())
}
