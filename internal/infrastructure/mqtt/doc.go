// Package mqtt provides MQTT client connectivity for ShellyManager.
//
// The client keeps one broker session with auto-reconnect, replays its
// subscriptions after every reconnect and announces the service on
// shellymanager/status, with a Last Will for unexpected drops.
//
// # Uses
//
// Shelly Gen2 devices can push their switch status to a broker instead of
// being polled. Meters with an mqtt:// address subscribe to
// <prefix>/status/switch:N and <prefix>/online through this client.
// Independently, when mqtt.publish_readings is set, every stored reading
// is republished as a
// retained message on shellymanager/reading/<meter>.
//
//	Shelly ──▶ broker ──▶ ShellyManager ──▶ broker ──▶ dashboards
//
// # Security Considerations
//
//   - Enable TLS (cfg.Broker.TLS) whenever the broker is not on localhost
//   - Credentials should come from SHELLYMANAGER_MQTT_USERNAME/PASSWORD
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT, log.ForComponent("mqtt"))
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Subscribe(mqtt.Topics{}.ShellySwitchStatus("shellies/garage", 0), 1,
//	    func(topic string, payload []byte) error {
//	        return handle(payload)
//	    })
package mqtt
