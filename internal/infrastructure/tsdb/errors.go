package tsdb

import "errors"

// Mirror failures. A failed write never affects the SQLite copy of a cycle.
var (
	// ErrDisabled means the VictoriaMetrics mirror is switched off in config.
	ErrDisabled = errors.New("tsdb: mirror disabled")

	// ErrUnreachable means /health or /write could not be reached.
	ErrUnreachable = errors.New("tsdb: victoriametrics unreachable")

	// ErrReadingsRejected means /write answered with a non-2xx status.
	ErrReadingsRejected = errors.New("tsdb: readings rejected")
)
