package bridges

import (
	"fmt"
	"strings"

	"github.com/Nussi649/ShellyManager/internal/bridges/modbus"
	"github.com/Nussi649/ShellyManager/internal/bridges/shelly"
	"github.com/Nussi649/ShellyManager/internal/bridges/shellymqtt"
	"github.com/Nussi649/ShellyManager/internal/infrastructure/config"
	"github.com/Nussi649/ShellyManager/internal/meter"
)

// FactoryOptions holds what the device families need to build adapters.
type FactoryOptions struct {
	// Config supplies the shelly, modbus and mqtt sections. Required.
	Config *config.Config

	// MQTT is the shared broker connection. Nil when MQTT is disabled;
	// mqtt:// meters then fail to build.
	MQTT shellymqtt.Subscriber

	// Logger is passed to every adapter.
	Logger meter.Logger
}

// Family returns the device family an address belongs to, or "" when no
// family handles it.
func Family(address string) string {
	scheme, _, found := strings.Cut(strings.TrimSpace(address), "://")
	if !found {
		return shelly.Family
	}
	switch strings.ToLower(scheme) {
	case "http", "https":
		return shelly.Family
	case "mqtt":
		return shellymqtt.Family
	case "modbus", "modbus-tcp":
		return modbus.Family
	default:
		return ""
	}
}

// NewAdapterFactory returns a factory that builds the adapter for a meter
// from its address scheme.
func NewAdapterFactory(opts FactoryOptions) meter.AdapterFactory {
	logger := opts.Logger
	if logger == nil {
		logger = meter.NoopLogger{}
	}

	return func(m meter.Meter) (meter.Adapter, error) {
		switch Family(m.Address) {
		case shelly.Family:
			return shelly.New(m, shelly.AdapterOptions{
				Config: opts.Config.Shelly,
				Logger: logger,
			})
		case shellymqtt.Family:
			if opts.MQTT == nil {
				return nil, fmt.Errorf("%w: mqtt is disabled", shellymqtt.ErrNoSubscriber)
			}
			return shellymqtt.New(m, shellymqtt.AdapterOptions{
				Subscriber: opts.MQTT,
				SwitchID:   opts.Config.Shelly.SwitchID,
				QoS:        byte(opts.Config.MQTT.QoS), //nolint:gosec // validated to 0..2
				Logger:     logger,
			})
		case modbus.Family:
			return modbus.New(m, modbus.AdapterOptions{
				Config: opts.Config.Modbus,
				Logger: logger,
			})
		default:
			return nil, fmt.Errorf("%w: %q", meter.ErrUnsupportedAddress, m.Address)
		}
	}
}
