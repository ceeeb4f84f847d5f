package shellymqtt

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/Nussi649/ShellyManager/internal/bridges/shelly"
	"github.com/Nussi649/ShellyManager/internal/infrastructure/mqtt"
	"github.com/Nussi649/ShellyManager/internal/meter"
)

const (
	// Family identifies this device family in status output.
	Family = "shelly-mqtt"

	scheme = "mqtt://"

	// DefaultMaxSampleAge is how long a cached status stays usable.
	DefaultMaxSampleAge = 5 * time.Minute
)

// Subscriber is the part of the MQTT client the adapter needs.
// *mqtt.Client satisfies it.
type Subscriber interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
}

// AdapterOptions configures a Shelly MQTT adapter.
type AdapterOptions struct {
	// Subscriber is the shared broker connection. Required.
	Subscriber Subscriber

	// SwitchID selects the switch component (switch:N).
	SwitchID int

	// QoS for the status and online subscriptions.
	QoS byte

	// MaxSampleAge defaults to DefaultMaxSampleAge.
	MaxSampleAge time.Duration

	// Logger is optional.
	Logger meter.Logger

	// Now overrides the local clock. Used by tests.
	Now func() time.Time
}

// Adapter implements meter.Adapter from the status a Shelly publishes over MQTT.
type Adapter struct {
	mu          sync.RWMutex
	meter       meter.Meter
	topic       string
	onlineTopic string
	latest      *shelly.SwitchStatus
	latestAt    time.Time

	// online is the device's last <prefix>/online flag, nil until one arrives.
	online *bool

	// startPending is set when an interval start found no usable sample;
	// the next status message opens the interval.
	startPending bool

	opts     AdapterOptions
	interval meter.CounterInterval
	logger   meter.Logger
	now      func() time.Time
}

// ParsePrefix extracts the device topic prefix from an mqtt:// address.
func ParsePrefix(address string) (string, error) {
	a := strings.TrimSpace(address)
	if len(a) < len(scheme) || !strings.EqualFold(a[:len(scheme)], scheme) {
		return "", fmt.Errorf("%w: %q is not an mqtt address", meter.ErrUnsupportedAddress, address)
	}
	prefix := strings.Trim(a[len(scheme):], "/")
	if prefix == "" || strings.ContainsAny(prefix, "+#") {
		return "", fmt.Errorf("%w: %q", ErrInvalidAddress, address)
	}
	return prefix, nil
}

// New creates an adapter for m and subscribes to the device's status and
// online topics.
func New(m meter.Meter, opts AdapterOptions) (*Adapter, error) {
	prefix, err := ParsePrefix(m.Address)
	if err != nil {
		return nil, err
	}
	if opts.Subscriber == nil {
		return nil, ErrNoSubscriber
	}
	if opts.MaxSampleAge <= 0 {
		opts.MaxSampleAge = DefaultMaxSampleAge
	}

	a := &Adapter{
		meter:  m,
		opts:   opts,
		logger: opts.Logger,
		now:    opts.Now,
	}
	if a.logger == nil {
		a.logger = meter.NoopLogger{}
	}
	if a.now == nil {
		a.now = time.Now
	}

	a.topic, a.onlineTopic = a.topicsFor(prefix)
	if err := a.subscribe(a.topic, a.onlineTopic); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *Adapter) topicsFor(prefix string) (status, online string) {
	return mqtt.Topics{}.ShellySwitchStatus(prefix, a.opts.SwitchID), mqtt.Topics{}.ShellyOnline(prefix)
}

// subscribe joins both device topics, leaving neither joined on failure.
func (a *Adapter) subscribe(status, online string) error {
	sub := a.opts.Subscriber
	if err := sub.Subscribe(status, a.opts.QoS, a.handleStatus); err != nil {
		return fmt.Errorf("subscribing to %s: %w", status, err)
	}
	if err := sub.Subscribe(online, a.opts.QoS, a.handleOnline); err != nil {
		if uerr := sub.Unsubscribe(status); uerr != nil {
			a.logger.Warn("unsubscribing status topic", "topic", status, "error", uerr)
		}
		return fmt.Errorf("subscribing to %s: %w", online, err)
	}
	return nil
}

// Meter returns a copy of the served meter.
func (a *Adapter) Meter() meter.Meter {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.meter
}

// SetMeterID updates the ID stamped on readings.
func (a *Adapter) SetMeterID(id int64) {
	a.mu.Lock()
	a.meter.ID = id
	a.mu.Unlock()
}

// Topic returns the subscribed status topic.
func (a *Adapter) Topic() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.topic
}

// SetAddress moves the subscriptions to another device prefix and discards
// the cached status, the online flag and the open interval.
func (a *Adapter) SetAddress(address string) error {
	prefix, err := ParsePrefix(address)
	if err != nil {
		return err
	}
	topic, onlineTopic := a.topicsFor(prefix)

	a.mu.Lock()
	a.meter.Address = address
	old, oldOnline := a.topic, a.onlineTopic
	if topic == old {
		a.mu.Unlock()
		return nil
	}
	a.topic, a.onlineTopic = topic, onlineTopic
	a.latest = nil
	a.online = nil
	a.startPending = false
	a.mu.Unlock()

	a.interval.Reset()

	for _, t := range []string{old, oldOnline} {
		if t == "" {
			continue
		}
		if err := a.opts.Subscriber.Unsubscribe(t); err != nil {
			a.logger.Warn("unsubscribing old device topic", "topic", t, "error", err)
		}
	}
	return a.subscribe(topic, onlineTopic)
}

// AttemptStartInterval opens an interval on the cached counter. Without a
// usable sample the start is deferred to the next status message.
func (a *Adapter) AttemptStartInterval(_ context.Context) error {
	if _, open := a.interval.Open(); open {
		return nil
	}

	s, err := a.cachedSample()
	if err != nil {
		a.mu.Lock()
		a.startPending = true
		a.mu.Unlock()
		return fmt.Errorf("starting interval for %s: %w", a.Meter().Name, err)
	}
	a.interval.Start(s)
	return nil
}

// CloseInterval closes the open interval on the cached counter and opens the next.
func (a *Adapter) CloseInterval(_ context.Context) (*meter.IntervalReading, error) {
	s, err := a.cachedSample()
	if err != nil {
		return nil, fmt.Errorf("closing interval for %s: %w", a.Meter().Name, err)
	}
	return a.interval.Close(s)
}

// Status reports the cached switch status. Online follows the device's
// online flag once one has been received.
func (a *Adapter) Status(_ context.Context) (meter.Status, error) {
	a.mu.RLock()
	latest, latestAt, online := a.latest, a.latestAt, a.online
	m := a.meter
	a.mu.RUnlock()

	st := meter.Status{
		Name:    m.Name,
		Address: m.Address,
		Family:  Family,
	}
	if start, open := a.interval.Open(); open {
		st.IntervalOpen = true
		st.IntervalStart = &start
	}

	if online != nil {
		st.Online = *online
	}
	if _, err := a.cachedSample(); err != nil {
		st.Error = err.Error()
		if latest != nil {
			st.SampledAt = latestAt
		}
		return st, err
	}

	st.Online = true
	st.SampledAt = latestAt
	st.CounterWh = latest.AEnergy.Total
	st.PowerW = latest.APower
	st.Voltage = latest.Voltage
	st.Output = latest.Output
	return st, nil
}

// Close unsubscribes from both device topics.
func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.topic == "" {
		return nil
	}
	err := errors.Join(
		a.opts.Subscriber.Unsubscribe(a.topic),
		a.opts.Subscriber.Unsubscribe(a.onlineTopic),
	)
	a.topic, a.onlineTopic = "", ""
	return err
}

// handleStatus caches a status message and opens a deferred interval.
func (a *Adapter) handleStatus(topic string, payload []byte) error {
	st, err := shelly.DecodeSwitchStatus(payload)
	if err != nil {
		return fmt.Errorf("decoding %s: %w", topic, err)
	}
	received := a.now()

	a.mu.Lock()
	if topic != a.topic {
		// Message for a topic we have already moved away from.
		a.mu.Unlock()
		return nil
	}
	a.latest = st
	a.latestAt = received
	pending := a.startPending
	a.startPending = false
	name := a.meter.Name
	a.mu.Unlock()

	if pending {
		s, err := st.Sample(received)
		if err != nil {
			return err
		}
		if a.interval.Start(s) {
			a.logger.Debug("deferred interval started", "meter", name, "counter_wh", s.Counter)
		}
	}
	return nil
}

// handleOnline records the device's online flag. Shelly publishes "true"
// on connect and sets "false" as its will.
func (a *Adapter) handleOnline(topic string, payload []byte) error {
	var up bool
	switch strings.TrimSpace(string(payload)) {
	case "true":
		up = true
	case "false":
	default:
		return fmt.Errorf("%w: %s: %q", ErrBadOnlineFlag, topic, payload)
	}

	a.mu.Lock()
	if topic != a.onlineTopic {
		a.mu.Unlock()
		return nil
	}
	changed := a.online == nil || *a.online != up
	a.online = &up
	name := a.meter.Name
	a.mu.Unlock()

	if changed {
		a.logger.Info("device online flag", "meter", name, "online", up)
	}
	return nil
}

// cachedSample returns the latest counter sample if it is fresh enough and
// the device has not announced that it went offline.
func (a *Adapter) cachedSample() (meter.Sample, error) {
	a.mu.RLock()
	latest, latestAt, online := a.latest, a.latestAt, a.online
	a.mu.RUnlock()

	if online != nil && !*online {
		return meter.Sample{}, fmt.Errorf("%w: %w", meter.ErrDeviceUnavailable, ErrDeviceOffline)
	}
	if latest == nil {
		return meter.Sample{}, fmt.Errorf("%w: no status received", meter.ErrDeviceUnavailable)
	}
	if age := a.now().Sub(latestAt); age > a.opts.MaxSampleAge {
		return meter.Sample{}, fmt.Errorf("%w: %w (age %s)", meter.ErrDeviceUnavailable, ErrStaleSample, age.Round(time.Second))
	}
	return latest.Sample(latestAt)
}
