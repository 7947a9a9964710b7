// Package mqtt publishes peripheral status snapshots and faults to a broker.
package mqtt

import (
	"encoding/json"
	"time"
)

const (
	DefaultStatusTopic = "peripherals/status"
	DefaultFaultTopic  = "peripherals/faults"
)

// Publisher publishes controller events to MQTT.
type Publisher interface {
	// PublishStatus sends a periodic status snapshot.
	PublishStatus(status Status) error

	// PublishFault sends a fatal fault. Delivery is at-least-once.
	PublishFault(fault Fault) error

	Close() error
}

// Status is a snapshot of every peripheral component.
type Status struct {
	Timestamp    time.Time
	Fans         map[string]map[string]any
	HeaterChecks map[string]map[string]any
	Probe        map[string]any
}

type Fault struct {
	Timestamp time.Time
	Source    string
	Message   string
}

type statusPayload struct {
	Timestamp    string                    `json:"timestamp"`
	Fans         map[string]map[string]any `json:"fans"`
	HeaterChecks map[string]map[string]any `json:"heater_checks"`
	Probe        map[string]any            `json:"probe,omitempty"`
}

type faultPayload struct {
	Fault faultPayloadInner `json:"fault"`
}

type faultPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Source    string `json:"source"`
	Message   string `json:"message"`
}

// FormatStatusPayload creates the JSON payload for a status snapshot.
func FormatStatusPayload(status Status) ([]byte, error) {
	fans := status.Fans
	if fans == nil {
		fans = map[string]map[string]any{}
	}
	checks := status.HeaterChecks
	if checks == nil {
		checks = map[string]map[string]any{}
	}
	return json.Marshal(statusPayload{
		Timestamp:    status.Timestamp.UTC().Format(time.RFC3339),
		Fans:         fans,
		HeaterChecks: checks,
		Probe:        status.Probe,
	})
}

// FormatFaultPayload creates the JSON payload for a fault.
func FormatFaultPayload(fault Fault) ([]byte, error) {
	return json.Marshal(faultPayload{
		Fault: faultPayloadInner{
			Timestamp: fault.Timestamp.UTC().Format(time.RFC3339),
			Source:    fault.Source,
			Message:   fault.Message,
		},
	})
}
