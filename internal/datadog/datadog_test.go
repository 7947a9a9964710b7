package datadog

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

type mockClient struct {
	gauges map[string]float64
	counts map[string]int
	tags   map[string][]string
	closed bool
	err    error
}

func newMockClient() *mockClient {
	return &mockClient{
		gauges: map[string]float64{},
		counts: map[string]int{},
		tags:   map[string][]string{},
	}
}

func (m *mockClient) Gauge(name string, value float64, tags []string, rate float64) error {
	m.gauges[name] = value
	m.tags[name] = tags
	return m.err
}

func (m *mockClient) Incr(name string, tags []string, rate float64) error {
	m.counts[name]++
	m.tags[name] = tags
	return m.err
}

func (m *mockClient) Close() error {
	m.closed = true
	return nil
}

func TestGaugeAndIncr(t *testing.T) {
	mock := newMockClient()
	SetClient(mock)
	defer SetClient(nil)

	Gauge("fan.speed", 0.5, "fan:nozzle")
	Incr("probe.command", "command:pin_up")
	Incr("probe.command", "command:pin_up")

	assert.Equal(t, 0.5, mock.gauges["fan.speed"])
	assert.Equal(t, []string{"fan:nozzle"}, mock.tags["fan.speed"])
	assert.Equal(t, 2, mock.counts["probe.command"])
}

func TestEmitErrorsAreSwallowed(t *testing.T) {
	mock := newMockClient()
	mock.err = errors.New("agent down")
	SetClient(mock)
	defer SetClient(nil)

	assert.NotPanics(t, func() {
		Gauge("heater.check_error", 3)
		Incr("faults")
	})
}

func TestNilClientIsNoop(t *testing.T) {
	SetClient(nil)
	assert.NotPanics(t, func() {
		Gauge("fan.speed", 1)
		Incr("faults")
		Close()
	})
}

func TestClose(t *testing.T) {
	mock := newMockClient()
	SetClient(mock)
	Close()
	assert.True(t, mock.closed)
	assert.Nil(t, dogstatsd)
}

func TestInitMetrics_NoAddress(t *testing.T) {
	SetClient(nil)
	InitMetrics("", "peripherals.", nil)
	assert.Nil(t, dogstatsd)
}
