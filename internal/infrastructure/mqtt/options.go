package mqtt

import (
	"crypto/tls"
	"encoding/json"
	"fmt"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/Nussi649/ShellyManager/internal/infrastructure/config"
)

const (
	connectTimeout = 10 * time.Second

	// ackTimeout bounds waiting for a publish, subscribe or unsubscribe ack.
	ackTimeout = 5 * time.Second

	// disconnectQuiesce is in milliseconds, as paho expects.
	disconnectQuiesce = 1000

	keepAlive = 60 * time.Second
	maxQoS    = 2
)

// brokerURL returns tcp://host:port, or ssl:// when TLS is enabled.
func brokerURL(cfg config.MQTTBrokerConfig) string {
	scheme := "tcp"
	if cfg.TLS {
		scheme = "ssl"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, cfg.Host, cfg.Port)
}

// buildClientOptions maps the mqtt config section onto paho options. The
// session is clean, so subscriptions are restored by the client on
// reconnect rather than by the broker.
func buildClientOptions(cfg config.MQTTConfig) *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions().
		AddBroker(brokerURL(cfg.Broker)).
		SetClientID(cfg.Broker.ClientID).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(secondsOr(cfg.Reconnect.InitialDelay, 1)).
		SetMaxReconnectInterval(secondsOr(cfg.Reconnect.MaxDelay, 60)).
		SetConnectTimeout(connectTimeout).
		SetKeepAlive(keepAlive)

	if cfg.Auth.Username != "" {
		opts.SetUsername(cfg.Auth.Username)
		opts.SetPassword(cfg.Auth.Password)
	}
	if cfg.Broker.TLS {
		opts.SetTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12})
	}

	will := serviceStatus{Status: "offline", ClientID: cfg.Broker.ClientID, Reason: "unexpected_disconnect"}
	opts.SetWill(Topics{}.SystemStatus(), string(will.encode()), 1, true)
	return opts
}

// serviceStatus is the retained payload on shellymanager/status. The broker
// publishes the unexpected_disconnect variant as the will.
type serviceStatus struct {
	Status    string    `json:"status"`
	ClientID  string    `json:"client_id"`
	Reason    string    `json:"reason,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func (s serviceStatus) encode() []byte {
	s.Timestamp = time.Now().UTC().Truncate(time.Second)
	b, _ := json.Marshal(s) //nolint:errcheck // plain strings and a time cannot fail
	return b
}

// secondsOr converts n seconds to a Duration, using def when n is not positive.
func secondsOr(n, def int) time.Duration {
	if n <= 0 {
		n = def
	}
	return time.Duration(n) * time.Second
}
