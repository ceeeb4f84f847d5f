package scheduler

import "time"

// Period is the spacing of fetch boundaries.
const Period = 15 * time.Minute

// Delay returns the time from t to the next quarter-hour boundary in t's
// location. A t exactly on a boundary waits a full period.
func Delay(t time.Time) time.Duration {
	s := t.Second()
	m := t.Minute()
	ms := t.Nanosecond() / int(time.Millisecond)

	secToMinute := (60 - s) % 60
	minutesLeft := 15 - m%15
	if secToMinute != 0 {
		minutesLeft--
	}

	return time.Duration(minutesLeft*60_000+secToMinute*1_000-ms) * time.Millisecond
}

// NextBoundary returns the next quarter-hour boundary after t.
func NextBoundary(t time.Time) time.Time {
	return t.Truncate(time.Millisecond).Add(Delay(t))
}
