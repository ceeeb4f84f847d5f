package influxdb

import "errors"

// Mirror failures. A failed write never affects the SQLite copy of a cycle.
var (
	// ErrDisabled means the InfluxDB mirror is switched off in config.
	ErrDisabled = errors.New("influxdb: mirror disabled")

	// ErrUnreachable means the server did not answer ping or write.
	ErrUnreachable = errors.New("influxdb: server unreachable")

	// ErrReadingsRejected means the server answered a write with an error status.
	ErrReadingsRejected = errors.New("influxdb: readings rejected")
)
