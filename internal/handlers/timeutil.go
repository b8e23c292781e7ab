package handlers

import "time"

// now is swapped in tests.
var now = time.Now

// ISO-8601 in UTC with microseconds, e.g. "2006-01-02T15:04:05.000000Z"
func isoUTC(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000000Z")
}
