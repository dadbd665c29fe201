// Package ephemeris wraps sunrise/sunset computation for the day-ahead
// loop's logged rationale, grounded on the teacher's scheduler/server.go use
// of github.com/sixdouglas/suncalc (sunTimes["sunrise"].Value). Not required
// by any bidding invariant - an optional enrichment carried over from the
// teacher's ambient stack per SPEC_FULL.md §4.5.
package ephemeris

import (
	"time"

	"github.com/sixdouglas/suncalc"
)

// IsDaylight reports whether t falls between sunrise and sunset at the given
// latitude/longitude.
func IsDaylight(t time.Time, lat, lon float64) bool {
	times := suncalc.GetTimes(t, lat, lon)
	sunrise, ok := times["sunrise"]
	if !ok {
		return false
	}
	sunset, ok := times["sunset"]
	if !ok {
		return false
	}
	return t.After(sunrise.Value) && t.Before(sunset.Value)
}

// DaylightHours returns, for a 24-hour window starting at the top of t's
// day, which hours (0-23, local time) fall within daylight.
func DaylightHours(t time.Time, lat, lon float64) [24]bool {
	var out [24]bool
	dayStart := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	for h := 0; h < 24; h++ {
		out[h] = IsDaylight(dayStart.Add(time.Duration(h)*time.Hour), lat, lon)
	}
	return out
}
