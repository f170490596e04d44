package services

import "time"

// Clock supplies the current time to the session state machine. It is an
// interface so elapsed-time and timeout decisions are deterministic in
// tests.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock returns the wall-clock implementation.
func SystemClock() Clock { return systemClock{} }
