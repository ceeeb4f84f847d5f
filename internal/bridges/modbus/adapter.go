package modbus

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Nussi649/ShellyManager/internal/infrastructure/config"
	"github.com/Nussi649/ShellyManager/internal/meter"
)

// Family identifies this device family in status output.
const Family = "modbus-tcp"

const defaultTimeout = 3 * time.Second

// AdapterOptions configures a Modbus adapter.
type AdapterOptions struct {
	// Config holds the register layout, default unit id and timeout.
	Config config.ModbusConfig

	// Dial defaults to DialTCP.
	Dial Dialer

	// Logger is optional.
	Logger meter.Logger

	// Now overrides the local clock. Used by tests.
	Now func() time.Time
}

// Adapter implements meter.Adapter for a Modbus TCP energy meter.
type Adapter struct {
	mu     sync.RWMutex
	meter  meter.Meter
	target Target

	defaultUnit uint8
	register    Register
	timeout     time.Duration
	dial        Dialer
	interval    meter.CounterInterval
	logger      meter.Logger
	now         func() time.Time
}

// New creates an adapter for m. It returns meter.ErrUnsupportedAddress
// when m's address is not a modbus:// address.
func New(m meter.Meter, opts AdapterOptions) (*Adapter, error) {
	target, err := ParseAddress(m.Address, opts.Config.UnitID)
	if err != nil {
		return nil, err
	}

	a := &Adapter{
		meter:       m,
		target:      target,
		defaultUnit: opts.Config.UnitID,
		register:    RegisterFromConfig(opts.Config),
		timeout:     defaultTimeout,
		dial:        opts.Dial,
		logger:      opts.Logger,
		now:         opts.Now,
	}
	if opts.Config.Timeout > 0 {
		a.timeout = time.Duration(opts.Config.Timeout) * time.Second
	}
	if a.dial == nil {
		a.dial = DialTCP
	}
	if a.logger == nil {
		a.logger = meter.NoopLogger{}
	}
	if a.now == nil {
		a.now = time.Now
	}
	return a, nil
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
	target, err := ParseAddress(address, a.defaultUnit)
	if err != nil {
		return err
	}

	a.mu.Lock()
	a.meter.Address = address
	a.target = target
	a.mu.Unlock()

	a.interval.Reset()
	return nil
}

// AttemptStartInterval reads the counter and opens an interval if none is open.
func (a *Adapter) AttemptStartInterval(ctx context.Context) error {
	if _, open := a.interval.Open(); open {
		return nil
	}

	s, err := a.sample(ctx)
	if err != nil {
		return fmt.Errorf("starting interval for %s: %w", a.Meter().Name, err)
	}
	if a.interval.Start(s) {
		a.logger.Debug("interval started", "meter", a.Meter().Name, "counter_wh", s.Counter)
	}
	return nil
}

// CloseInterval reads the counter, closes the open interval and opens the next.
func (a *Adapter) CloseInterval(ctx context.Context) (*meter.IntervalReading, error) {
	s, err := a.sample(ctx)
	if err != nil {
		return nil, fmt.Errorf("closing interval for %s: %w", a.Meter().Name, err)
	}
	return a.interval.Close(s)
}

// Status reads the counter. Modbus meters report no switch state.
func (a *Adapter) Status(ctx context.Context) (meter.Status, error) {
	m := a.Meter()
	st := meter.Status{
		Name:    m.Name,
		Address: m.Address,
		Family:  Family,
	}
	if start, open := a.interval.Open(); open {
		st.IntervalOpen = true
		st.IntervalStart = &start
	}

	s, err := a.sample(ctx)
	if err != nil {
		st.SampledAt = a.now()
		st.Error = err.Error()
		return st, err
	}
	st.Online = true
	st.CounterWh = s.Counter
	st.SampledAt = s.At
	return st, nil
}

// sample opens a connection, reads the counter register and closes it.
func (a *Adapter) sample(ctx context.Context) (meter.Sample, error) {
	a.mu.RLock()
	target := a.target
	a.mu.RUnlock()

	conn, err := a.dial(ctx, target, a.timeout)
	if err != nil {
		return meter.Sample{}, err
	}
	defer func() {
		if cerr := conn.Close(); cerr != nil {
			a.logger.Debug("closing modbus connection", "address", target.Address, "error", cerr)
		}
	}()

	var data []byte
	qty := a.register.Quantity()
	if a.register.Type == "holding" {
		data, err = conn.ReadHoldingRegisters(a.register.Address, qty)
	} else {
		data, err = conn.ReadInputRegisters(a.register.Address, qty)
	}
	if err != nil {
		return meter.Sample{}, fmt.Errorf("%w: reading register %d: %v", meter.ErrDeviceUnavailable, a.register.Address, err)
	}

	value, err := a.register.Decode(data)
	if err != nil {
		return meter.Sample{}, err
	}
	return meter.Sample{Counter: value, At: a.now()}, nil
}
