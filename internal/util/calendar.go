package util

import "time"

// LastTradingDay returns the most recent weekday at or before t, truncated
// to midnight UTC. Exchange holidays are not modeled; the data API simply
// returns no bars for them and the store stays unchanged.
func LastTradingDay(t time.Time) time.Time {
	d := t.UTC().Truncate(24 * time.Hour)
	for d.Weekday() == time.Saturday || d.Weekday() == time.Sunday {
		d = d.AddDate(0, 0, -1)
	}
	return d
}
