package csp

import "time"

// Clock abstracts time.Now so the timer service and deadline checks can be
// driven by a fake clock in tests without real sleeps.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to a Clock.
type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time { return f() }

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// RealClock is the default Clock, backed by time.Now.
var RealClock Clock = realClock{}
