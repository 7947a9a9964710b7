package mqtt

import (
	"fmt"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
)

// RealPublisher publishes to an actual MQTT broker.
type RealPublisher struct {
	client      paho.Client
	statusTopic string
	faultTopic  string
}

// NewRealPublisher creates a publisher connected to the given broker.
func NewRealPublisher(broker, clientID, statusTopic, faultTopic string) (*RealPublisher, error) {
	opts := paho.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second)

	client := paho.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return nil, fmt.Errorf("connection timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}

	return &RealPublisher{
		client:      client,
		statusTopic: statusTopic,
		faultTopic:  faultTopic,
	}, nil
}

// PublishStatus sends a status snapshot, retained so new subscribers see
// the latest state.
func (p *RealPublisher) PublishStatus(status Status) error {
	payload, err := FormatStatusPayload(status)
	if err != nil {
		return fmt.Errorf("format status payload: %w", err)
	}
	return p.publish(p.statusTopic, 0, true, payload)
}

// PublishFault sends a fault with QoS 1.
func (p *RealPublisher) PublishFault(fault Fault) error {
	payload, err := FormatFaultPayload(fault)
	if err != nil {
		return fmt.Errorf("format fault payload: %w", err)
	}
	return p.publish(p.faultTopic, 1, false, payload)
}

func (p *RealPublisher) publish(topic string, qos byte, retained bool, payload []byte) error {
	token := p.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("publish %s timeout", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	p.client.Disconnect(1000)
	return nil
}
