package influxdb

import (
	"strconv"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/Nussi649/ShellyManager/internal/meter"
)

// Measurement names written by ShellyManager.
const (
	MeasurementInterval = "energy_interval"
	MeasurementCycle    = "fetch_cycle"
)

// intervalPoint is one closed measurement interval, stamped with the
// interval start so consecutive intervals line up on the time axis.
func intervalPoint(r meter.Reading) *write.Point {
	return write.NewPoint(MeasurementInterval,
		map[string]string{
			"meter":    r.MeterName,
			"meter_id": strconv.FormatInt(r.MeterID, 10),
		},
		map[string]interface{}{
			"consumption_wh":  r.ConsumptionWh,
			"length_seconds":  r.IntervalLength,
			"avg_power_watts": averagePower(r.ConsumptionWh, r.IntervalLength),
		},
		r.Start,
	)
}

// cyclePoint carries the outcome counts of one fetch cycle.
func cyclePoint(site, cycleID string, at time.Time, ok, absent int, totalWh float64) *write.Point {
	return write.NewPoint(MeasurementCycle,
		map[string]string{"site": site},
		map[string]interface{}{
			"cycle_id": cycleID,
			"ok":       ok,
			"absent":   absent,
			"total_wh": totalWh,
		},
		at,
	)
}

// averagePower converts Wh over a number of seconds into mean watts.
func averagePower(wh float64, seconds int64) float64 {
	if seconds <= 0 {
		return 0
	}
	return wh * 3600 / float64(seconds)
}
