package meter

import "context"

// Adapter is the per-device capability the fetch core depends on.
// Implementations exist per device family (see internal/bridges).
//
// All methods must be safe for concurrent use.
type Adapter interface {
	// Meter returns a copy of the meter this adapter serves.
	Meter() Meter

	// SetAddress points the adapter at a new address and discards any open
	// interval. It returns ErrUnsupportedAddress when the address belongs
	// to another device family; the registry then rebuilds the adapter.
	SetAddress(address string) error

	// SetMeterID updates the database ID stamped on readings, for a meter
	// row that was re-created under the same name. The open interval is kept.
	SetMeterID(id int64)

	// AttemptStartInterval opens an interval if none is open. It is
	// idempotent and failures are left for the next attempt.
	AttemptStartInterval(ctx context.Context) error

	// CloseInterval closes the open interval, returns its reading and opens
	// the next one. An error or a nil reading means no reading this cycle.
	CloseInterval(ctx context.Context) (*IntervalReading, error)

	// Status queries the device for its current state.
	Status(ctx context.Context) (Status, error)
}

// AdapterFactory builds the adapter for a meter, choosing the device family
// from the address. It returns ErrUnsupportedAddress for unknown schemes.
type AdapterFactory func(m Meter) (Adapter, error)

// Source provides the set of meters the registry should know about.
type Source interface {
	ListActive(ctx context.Context) ([]Meter, error)
}

// Logger defines the logging interface used by the Registry and adapters.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// NoopLogger discards all log output.
type NoopLogger struct{}

func (NoopLogger) Debug(string, ...any) {}
func (NoopLogger) Info(string, ...any)  {}
func (NoopLogger) Warn(string, ...any)  {}
func (NoopLogger) Error(string, ...any) {}
