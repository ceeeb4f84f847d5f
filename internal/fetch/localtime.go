package fetch

import "time"

// IntervalStartLayout is the stored format of readings.interval_start.
const IntervalStartLayout = "2006-01-02 15:04:05"

// FormatIntervalStart renders Unix seconds as wall-clock time in loc.
func FormatIntervalStart(unix int64, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return time.Unix(unix, 0).In(loc).Format(IntervalStartLayout)
}

// ParseIntervalStart is the inverse of FormatIntervalStart. Wall-clock
// times that occur twice when clocks go back cannot be told apart; Go
// resolves them to one of the two instants.
func ParseIntervalStart(s string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	return time.ParseInLocation(IntervalStartLayout, s, loc)
}
