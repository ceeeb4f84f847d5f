package meter

import (
	"strings"
	"time"
)

// Meter describes one metering device as stored in the meters table.
type Meter struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	Address string `json:"address"`
	Active  bool   `json:"active"`

	LastFetchedAt *time.Time `json:"last_fetched_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// Validate checks that the meter can be given an adapter.
func (m Meter) Validate() error {
	if strings.TrimSpace(m.Name) == "" || strings.TrimSpace(m.Address) == "" {
		return ErrInvalidMeter
	}
	return nil
}

// IntervalReading is the result of closing one measurement interval.
type IntervalReading struct {
	// Timestamp is the interval start in Unix seconds.
	Timestamp int64 `json:"timestamp"`

	// Duration is the interval length in seconds.
	Duration int64 `json:"duration"`

	// Consumption is the energy used during the interval in Wh.
	Consumption float64 `json:"consumption"`
}

// Start returns the interval start as a time.Time in UTC.
func (r IntervalReading) Start() time.Time {
	return time.Unix(r.Timestamp, 0).UTC()
}

// Reading is one row of the readings table, built by a fetch cycle.
// Readings are never modified after they are produced.
type Reading struct {
	MeterID   int64  `json:"meter_id"`
	MeterName string `json:"meter_name"`

	// IntervalStart is the zone-localised "YYYY-MM-DD HH:MM:SS" start.
	IntervalStart string `json:"interval_start"`

	// IntervalLength is in seconds.
	IntervalLength int64   `json:"interval_length"`
	ConsumptionWh  float64 `json:"consumption_wh"`

	// Start is the absolute interval start, kept for mirrors that need a point time.
	Start time.Time `json:"-"`
}

// Sample is one reading of a device's cumulative energy counter.
type Sample struct {
	// Counter is the cumulative energy in Wh.
	Counter float64
	At      time.Time
}

// Status is a point-in-time view of a device, used by the status command.
type Status struct {
	Name    string `json:"name"`
	Address string `json:"address"`
	Family  string `json:"family"`
	Online  bool   `json:"online"`

	// CounterWh is the device's cumulative energy counter.
	CounterWh float64 `json:"counter_wh"`

	// PowerW is the instantaneous power, when the device reports it.
	PowerW  *float64 `json:"power_w,omitempty"`
	Voltage *float64 `json:"voltage,omitempty"`
	Output  *bool    `json:"output,omitempty"`

	IntervalOpen  bool       `json:"interval_open"`
	IntervalStart *time.Time `json:"interval_start,omitempty"`
	SampledAt     time.Time  `json:"sampled_at"`
	Error         string     `json:"error,omitempty"`
}
