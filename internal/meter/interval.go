package meter

import (
	"sync"
	"time"
)

// CounterInterval turns samples of a cumulative energy counter into
// contiguous interval readings. The zero value has no open interval.
type CounterInterval struct {
	mu    sync.Mutex
	start *Sample
}

// Start opens an interval at s unless one is already open.
// It reports whether a new interval was opened.
func (c *CounterInterval) Start(s Sample) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.start != nil {
		return false
	}
	c.start = &s
	return true
}

// Close ends the open interval at s and opens the next one at s.
//
// When no interval was open, the next one is still opened at s and
// ErrNoActiveInterval is returned. A counter lower than the interval's
// starting counter is taken as a device reset: the new counter value is
// the consumption since the reset.
func (c *CounterInterval) Close(s Sample) (*IntervalReading, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	prev := c.start
	next := s
	c.start = &next

	if prev == nil {
		return nil, ErrNoActiveInterval
	}

	consumption := s.Counter - prev.Counter
	if consumption < 0 {
		consumption = s.Counter
	}

	duration := s.At.Unix() - prev.At.Unix()
	if duration < 0 {
		duration = 0
	}

	return &IntervalReading{
		Timestamp:   prev.At.Unix(),
		Duration:    duration,
		Consumption: consumption,
	}, nil
}

// Reset discards the open interval.
func (c *CounterInterval) Reset() {
	c.mu.Lock()
	c.start = nil
	c.mu.Unlock()
}

// Open reports the start time of the open interval.
func (c *CounterInterval) Open() (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.start == nil {
		return time.Time{}, false
	}
	return c.start.At, true
}
