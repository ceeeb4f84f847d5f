package shellymqtt

import "errors"

// Domain errors for the Shelly MQTT bridge.
var (
	// ErrInvalidAddress is returned when an mqtt:// address has no topic prefix.
	ErrInvalidAddress = errors.New("shellymqtt: invalid address")

	// ErrNoSubscriber is returned when an adapter is built without a broker connection.
	ErrNoSubscriber = errors.New("shellymqtt: no mqtt subscriber")

	// ErrStaleSample is returned when the last status is older than the maximum sample age.
	ErrStaleSample = errors.New("shellymqtt: stale sample")

	// ErrDeviceOffline is returned after the device published online=false.
	ErrDeviceOffline = errors.New("shellymqtt: device reported offline")

	// ErrBadOnlineFlag is returned for an online payload other than true or false.
	ErrBadOnlineFlag = errors.New("shellymqtt: bad online flag")
)
