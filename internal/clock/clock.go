package clock

import "time"

// Clock allows injecting time into the session and the relay cache.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

// NewSystem returns a clock backed by time.Now in the local zone, since
// "today" for the kiosk is a calendar day where it stands.
func NewSystem() Clock {
	return systemClock{}
}

func (systemClock) Now() time.Time {
	return time.Now()
}

type fixedClock struct {
	now time.Time
}

// NewFixed returns a clock that always returns the same instant (useful for tests).
func NewFixed(t time.Time) Clock {
	return fixedClock{now: t}
}

func (f fixedClock) Now() time.Time {
	return f.now
}

// Func adapts a function to Clock, e.g. a manual scheduler's Now.
type Func func() time.Time

func (f Func) Now() time.Time {
	return f()
}
