package shelly

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/Nussi649/ShellyManager/internal/infrastructure/config"
	"github.com/Nussi649/ShellyManager/internal/meter"
)

// Family identifies this device family in status output.
const Family = "shelly-http"

// defaultTimeout applies when the config does not set one.
const defaultTimeout = 5 * time.Second

// AdapterOptions configures a Shelly HTTP adapter.
type AdapterOptions struct {
	// Config holds the switch id, request timeout and credentials.
	Config config.ShellyConfig

	// HTTPClient overrides the client built from Config.Timeout.
	HTTPClient *http.Client

	// Logger is optional.
	Logger meter.Logger

	// Now overrides the local clock. Used by tests.
	Now func() time.Time
}

// Adapter implements meter.Adapter for a Shelly Gen2 device over HTTP.
type Adapter struct {
	mu     sync.RWMutex
	meter  meter.Meter
	client *Client

	opts     AdapterOptions
	http     *http.Client
	interval meter.CounterInterval
	logger   meter.Logger
	now      func() time.Time
}

// New creates an adapter for m. It returns meter.ErrUnsupportedAddress
// when m's address is not an HTTP address.
func New(m meter.Meter, opts AdapterOptions) (*Adapter, error) {
	base, err := ParseAddress(m.Address)
	if err != nil {
		return nil, err
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := defaultTimeout
		if opts.Config.Timeout > 0 {
			timeout = time.Duration(opts.Config.Timeout) * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	a := &Adapter{
		meter:  m,
		opts:   opts,
		http:   httpClient,
		logger: opts.Logger,
		now:    opts.Now,
	}
	if a.logger == nil {
		a.logger = meter.NoopLogger{}
	}
	if a.now == nil {
		a.now = time.Now
	}
	a.client = a.newClient(base)
	return a, nil
}

func (a *Adapter) newClient(base *url.URL) *Client {
	cfg := a.opts.Config
	return NewClient(base, cfg.SwitchID, cfg.Username, cfg.Password, a.http)
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

// SetAddress points the adapter at another device and discards the open interval.
func (a *Adapter) SetAddress(address string) error {
	base, err := ParseAddress(address)
	if err != nil {
		return err
	}

	a.mu.Lock()
	a.meter.Address = address
	a.client = a.newClient(base)
	a.mu.Unlock()

	a.interval.Reset()
	return nil
}

// AttemptStartInterval samples the counter and opens an interval if none is open.
func (a *Adapter) AttemptStartInterval(ctx context.Context) error {
	if _, open := a.interval.Open(); open {
		return nil
	}

	s, err := a.sample(ctx)
	if err != nil {
		return fmt.Errorf("starting interval for %s: %w", a.Meter().Name, err)
	}
	if a.interval.Start(s) {
		a.logger.Debug("interval started", "meter", a.Meter().Name, "counter_wh", s.Counter, "at", s.At)
	}
	return nil
}

// CloseInterval samples the counter, closes the open interval and opens the next.
func (a *Adapter) CloseInterval(ctx context.Context) (*meter.IntervalReading, error) {
	s, err := a.sample(ctx)
	if err != nil {
		return nil, fmt.Errorf("closing interval for %s: %w", a.Meter().Name, err)
	}
	return a.interval.Close(s)
}

// Status reports the device's live switch status.
func (a *Adapter) Status(ctx context.Context) (meter.Status, error) {
	m := a.Meter()
	st := meter.Status{
		Name:      m.Name,
		Address:   m.Address,
		Family:    Family,
		SampledAt: a.now(),
	}
	if start, open := a.interval.Open(); open {
		st.IntervalOpen = true
		st.IntervalStart = &start
	}

	a.mu.RLock()
	client := a.client
	a.mu.RUnlock()

	sw, err := client.GetSwitchStatus(ctx)
	if err != nil {
		st.Error = err.Error()
		return st, err
	}

	st.Online = true
	st.CounterWh = sw.AEnergy.Total
	st.PowerW = sw.APower
	st.Voltage = sw.Voltage
	st.Output = sw.Output
	return st, nil
}

func (a *Adapter) sample(ctx context.Context) (meter.Sample, error) {
	a.mu.RLock()
	client := a.client
	a.mu.RUnlock()

	sw, err := client.GetSwitchStatus(ctx)
	if err != nil {
		return meter.Sample{}, err
	}
	return sw.Sample(a.now())
}
