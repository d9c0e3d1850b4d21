// Package system provides the wall clock used for task timestamps.
package system

import "time"

// Clock implements tender.Clock on the system clock, always in UTC.
type Clock struct{}

// New creates a new Clock.
func New() *Clock {
	return &Clock{}
}

// Now returns the current UTC time truncated to microseconds, the precision
// the report and status payloads carry.
func (Clock) Now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}
