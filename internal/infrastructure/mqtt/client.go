package mqtt

import (
	"context"
	"fmt"
	"sync"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/Nussi649/ShellyManager/internal/infrastructure/config"
)

// Client wraps paho.mqtt.golang for ShellyManager.
//
// It is used in two directions: Shelly meters addressed as mqtt:// are fed
// by subscriptions to their status and online topics, and stored readings
// are mirrored back out as retained messages.
//
// The client announces itself on shellymanager/status ("online" on every
// connect, "offline" on Close, and the will on an unexpected drop) and
// re-subscribes every tracked topic after a reconnect.
type Client struct {
	paho     pahomqtt.Client
	qos      byte
	clientID string
	log      Logger

	mu        sync.RWMutex
	connected bool
	routes    map[string]route
}

// Logger is the subset of logging.Logger the client reports through.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// route is a tracked subscription, replayed after reconnect.
type route struct {
	qos     byte
	handler MessageHandler
}

// MessageHandler receives one message. Handlers run on paho's router
// goroutine and must not block; a returned error is logged.
type MessageHandler func(topic string, payload []byte) error

// Connect opens a session with the broker configured in cfg.
//
// The caller checks cfg.Enabled. Connect blocks for at most ten seconds.
//
// Returns:
//   - *Client: Connected client
//   - error: ErrBrokerUnreachable wrapping the paho error
func Connect(cfg config.MQTTConfig, log Logger) (*Client, error) {
	c := &Client{
		qos:      byte(cfg.QoS),
		clientID: cfg.Broker.ClientID,
		log:      log,
		routes:   make(map[string]route),
	}

	opts := buildClientOptions(cfg)
	opts.SetOnConnectHandler(func(pahomqtt.Client) { c.onConnect() })
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		c.setConnected(false)
		c.log.Warn("broker connection lost", "error", err)
	})
	opts.SetReconnectingHandler(func(pahomqtt.Client, *pahomqtt.ClientOptions) {
		c.log.Warn("reconnecting to broker", "broker", brokerURL(cfg.Broker))
	})

	c.paho = pahomqtt.NewClient(opts)
	token := c.paho.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return nil, fmt.Errorf("%w: %s: no answer within %v", ErrBrokerUnreachable, brokerURL(cfg.Broker), connectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrBrokerUnreachable, brokerURL(cfg.Broker), err)
	}

	// The connect handler runs asynchronously and may not have fired yet.
	c.setConnected(true)
	return c, nil
}

// onConnect restores subscriptions and announces the service. It runs on
// the first connect and after every reconnect.
func (c *Client) onConnect() {
	c.setConnected(true)

	c.mu.RLock()
	routes := make(map[string]route, len(c.routes))
	for topic, r := range c.routes {
		routes[topic] = r
	}
	c.mu.RUnlock()

	for topic, r := range routes {
		if err := wait(c.paho.Subscribe(topic, r.qos, c.dispatch(r.handler)), ErrSubscription, topic); err != nil {
			c.log.Error("restoring subscription failed", "error", err)
		}
	}

	status := serviceStatus{Status: "online", ClientID: c.clientID}
	c.paho.Publish(Topics{}.SystemStatus(), c.qos, true, status.encode())
	c.log.Info("broker session up", "subscriptions", len(routes))
}

// Close publishes the graceful offline status and disconnects.
func (c *Client) Close() error {
	if c.paho == nil {
		return nil
	}
	if c.IsConnected() {
		status := serviceStatus{Status: "offline", ClientID: c.clientID, Reason: "graceful_shutdown"}
		c.paho.Publish(Topics{}.SystemStatus(), c.qos, true, status.encode()).WaitTimeout(ackTimeout)
	}
	c.paho.Disconnect(disconnectQuiesce)
	c.setConnected(false)
	return nil
}

// HealthCheck reports ErrOffline while the broker session is down.
func (c *Client) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("mqtt health check: %w", err)
	}
	if !c.IsConnected() {
		return ErrOffline
	}
	return nil
}

// IsConnected returns the last known session state.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected && c.paho != nil && c.paho.IsConnected()
}

func (c *Client) setConnected(v bool) {
	c.mu.Lock()
	c.connected = v
	c.mu.Unlock()
}

// dispatch adapts a MessageHandler to paho, logging errors and panics.
func (c *Client) dispatch(handler MessageHandler) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		defer func() {
			if r := recover(); r != nil {
				c.log.Error("message handler panicked", "topic", msg.Topic(), "panic", r)
			}
		}()
		if err := handler(msg.Topic(), msg.Payload()); err != nil {
			c.log.Warn("message handler failed", "topic", msg.Topic(), "error", err)
		}
	}
}

// wait blocks on token for at most ackTimeout and wraps failures in sentinel.
func wait(token pahomqtt.Token, sentinel error, topic string) error {
	if !token.WaitTimeout(ackTimeout) {
		return fmt.Errorf("%w: %s: no ack within %v", sentinel, topic, ackTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %s: %w", sentinel, topic, err)
	}
	return nil
}
