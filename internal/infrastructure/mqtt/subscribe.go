package mqtt

import "fmt"

// Subscribe routes messages on topic to handler. Wildcards are allowed;
// Shelly adapters subscribe to exact <prefix>/status/switch:N and
// <prefix>/online topics.
//
// The subscription is tracked and replayed after a reconnect. Subscribing
// to a tracked topic again replaces its handler.
//
// Returns:
//   - error: ErrInvalidTopic, ErrInvalidQoS, ErrOffline or ErrSubscription
func (c *Client) Subscribe(topic string, qos byte, handler MessageHandler) error {
	switch {
	case topic == "":
		return ErrInvalidTopic
	case qos > maxQoS:
		return ErrInvalidQoS
	case handler == nil:
		return fmt.Errorf("%w: %s: nil handler", ErrSubscription, topic)
	case !c.IsConnected():
		return ErrOffline
	}

	if err := wait(c.paho.Subscribe(topic, qos, c.dispatch(handler)), ErrSubscription, topic); err != nil {
		return err
	}

	c.mu.Lock()
	c.routes[topic] = route{qos: qos, handler: handler}
	c.mu.Unlock()
	return nil
}

// Unsubscribe stops routing topic. The route is dropped even if the broker
// does not acknowledge, so it is not replayed on reconnect.
func (c *Client) Unsubscribe(topic string) error {
	if topic == "" {
		return ErrInvalidTopic
	}

	c.mu.Lock()
	delete(c.routes, topic)
	c.mu.Unlock()

	if !c.IsConnected() {
		return ErrOffline
	}
	return wait(c.paho.Unsubscribe(topic), ErrSubscription, topic)
}
