package submitonce

import "time"

// Clock abstracts time for deterministic tests.
type Clock interface {
	// Now returns the current time.
	Now() time.Time
}

// SystemClock uses the system time in UTC.
type SystemClock struct{}

// Now returns the current UTC time.
func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}

// Timer is a handle to a scheduled function.
type Timer interface {
	// Stop cancels the function if it has not run yet and reports whether it did.
	Stop() bool
}

// Scheduler runs functions after a delay. It abstracts time.AfterFunc so
// retry, poll, and completion timers can be fired by hand in tests.
type Scheduler interface {
	// AfterFunc schedules fn to run once on its own goroutine after d elapses.
	AfterFunc(d time.Duration, fn func()) Timer
}

// SystemScheduler schedules functions with time.AfterFunc.
type SystemScheduler struct{}

// AfterFunc implements Scheduler.
func (SystemScheduler) AfterFunc(d time.Duration, fn func()) Timer {
	return time.AfterFunc(d, fn)
}
