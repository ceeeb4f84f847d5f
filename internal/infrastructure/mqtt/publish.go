package mqtt

import (
	"encoding/json"
	"fmt"
)

// maxPayloadSize matches the common broker default of 1 MiB.
const maxPayloadSize = 1 << 20

// Publish sends payload on topic and waits for the broker's ack.
//
// Readings and the scheduler state are published retained so a dashboard
// that connects later sees the latest value. Cycle summaries are not.
//
// Returns:
//   - error: ErrInvalidTopic, ErrInvalidQoS, ErrOffline or ErrNotPublished
func (c *Client) Publish(topic string, payload []byte, qos byte, retained bool) error {
	switch {
	case topic == "":
		return ErrInvalidTopic
	case qos > maxQoS:
		return ErrInvalidQoS
	case len(payload) > maxPayloadSize:
		return fmt.Errorf("%w: %s: payload of %d bytes exceeds %d", ErrNotPublished, topic, len(payload), maxPayloadSize)
	case !c.IsConnected():
		return ErrOffline
	}
	return wait(c.paho.Publish(topic, qos, retained, payload), ErrNotPublished, topic)
}

// PublishJSON marshals v and publishes it with the configured QoS.
func (c *Client) PublishJSON(topic string, v any, retained bool) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("%w: %s: encoding payload: %w", ErrNotPublished, topic, err)
	}
	return c.Publish(topic, payload, c.qos, retained)
}
