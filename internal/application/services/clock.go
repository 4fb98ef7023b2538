package services

import "time"

// Clock returns the current time. Services read it on every use, so two
// values computed in one call may see slightly different instants.
type Clock func() time.Time

// SystemClock is the wall clock in UTC.
func SystemClock() time.Time { return time.Now().UTC() }

func (c Clock) orSystem() Clock {
	if c == nil {
		return SystemClock
	}
	return c
}
