package mqtt

import "errors"

// Broker failures seen by the reading mirror, the scheduler command topic
// and meters fed over MQTT.
var (
	// ErrBrokerUnreachable means the initial connection to the broker failed.
	ErrBrokerUnreachable = errors.New("mqtt: broker unreachable")

	// ErrOffline means there is no live broker session right now.
	ErrOffline = errors.New("mqtt: broker session down")

	// ErrNotPublished means a reading, cycle summary or status message was
	// not acknowledged by the broker.
	ErrNotPublished = errors.New("mqtt: message not published")

	// ErrSubscription means joining or leaving a device or command topic failed.
	ErrSubscription = errors.New("mqtt: topic subscription failed")

	// ErrInvalidTopic is returned for an empty topic.
	ErrInvalidTopic = errors.New("mqtt: empty topic")

	// ErrInvalidQoS is returned for a QoS above 2.
	ErrInvalidQoS = errors.New("mqtt: qos must be 0, 1 or 2")
)
