package shelly

import "errors"

// Domain errors for the Shelly HTTP bridge.
var (
	// ErrInvalidAddress is returned when an address cannot be parsed into a device URL.
	ErrInvalidAddress = errors.New("shelly: invalid address")

	// ErrRequestFailed is returned when the device answers with a non-2xx status.
	ErrRequestFailed = errors.New("shelly: request failed")

	// ErrUnauthorized is returned when the device rejects the credentials.
	ErrUnauthorized = errors.New("shelly: unauthorized")

	// ErrInvalidResponse is returned when the device response cannot be decoded
	// or lacks the energy counter.
	ErrInvalidResponse = errors.New("shelly: invalid response")
)
