// Package system provides the wall clock used to date results.
package system

import "time"

// ISO8601 is the layout of result dates: UTC with microseconds.
const ISO8601 = "2006-01-02T15:04:05.000000Z07:00"

// Clock reads the system time in UTC.
type Clock struct{}

// New creates a new Clock.
func New() *Clock {
	return &Clock{}
}

// Now returns the current time in UTC.
func (Clock) Now() time.Time {
	return time.Now().UTC()
}

// Stamp formats t as a UTC ISO-8601 result date.
func Stamp(t time.Time) string {
	return t.UTC().Format(ISO8601)
}
