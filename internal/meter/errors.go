package meter

import "errors"

// Domain errors for the meter package.
//
// These errors can be checked using errors.Is():
//
//	if errors.Is(err, meter.ErrNoActiveInterval) {
//	    // the adapter had nothing to close
//	}
var (
	// ErrMeterNotFound is returned when a meter name or ID does not exist.
	ErrMeterNotFound = errors.New("meter: not found")

	// ErrInvalidMeter is returned when a meter has no name or no address.
	ErrInvalidMeter = errors.New("meter: invalid")

	// ErrUnsupportedAddress is returned by an AdapterFactory (or SetAddress)
	// when no device family handles the address.
	ErrUnsupportedAddress = errors.New("meter: unsupported address")

	// ErrNoActiveInterval is returned by CloseInterval when no interval was open.
	ErrNoActiveInterval = errors.New("meter: no active interval")

	// ErrDeviceUnavailable is returned when the device cannot be reached or
	// has not reported a sample yet.
	ErrDeviceUnavailable = errors.New("meter: device unavailable")
)
