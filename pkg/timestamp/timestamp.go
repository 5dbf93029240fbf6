// Package timestamp gives the pipeline one canonical timestamp
// representation — int64 milliseconds since the Unix epoch (UTC) — for the
// handful of places that need to stamp an event for a log line rather than
// carry a time.Time around: pipeline-demo's startup/shutdown banner today,
// and any future structured log field that wants a wire-stable number
// instead of a time.Time value.
//
// A timestamp of 0 always means "not set"; every conversion here treats it
// as such rather than as the 1970 epoch.
package timestamp

import (
	"time"
)

// Now returns the current time as Unix milliseconds.
func Now() int64 {
	return time.Now().UnixMilli()
}

// ToUnixMs converts a time.Time to Unix milliseconds. Returns 0 for the
// zero time.Time.
func ToUnixMs(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

// FromUnixMs converts Unix milliseconds to time.Time.
// Returns zero time if timestamp is 0.
func FromUnixMs(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

// Format converts Unix milliseconds to an RFC3339 string for a log line.
// Returns empty string if timestamp is 0.
func Format(ms int64) string {
	if ms == 0 {
		return ""
	}
	return time.UnixMilli(ms).UTC().Format(time.RFC3339)
}

// IsZero reports whether a timestamp is unset.
func IsZero(ms int64) bool {
	return ms == 0
}
