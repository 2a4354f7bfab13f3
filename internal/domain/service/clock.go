package service

import "time"

// Clock returns the current time. Components take one so expiry logic is testable.
type Clock func() time.Time

// SystemClock returns time.Now in UTC.
func SystemClock() Clock {
	return func() time.Time { return time.Now().UTC() }
}
