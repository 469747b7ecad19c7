package submitonce

import "time"

// Metrics captures controller and ledger telemetry.
type Metrics interface {
	// ObserveSubmitDuration records the time the ledger spent deciding a submit.
	ObserveSubmitDuration(duration time.Duration)
	// AddSubmissions increments the count of new ledger records created.
	AddSubmissions(count int)
	// AddReplays increments the count of idempotent replays served.
	AddReplays(count int)
	// AddRetries increments the count of controller retry dispatches.
	AddRetries(count int)
	// AddCompletions increments the count of delayed completions that fired.
	AddCompletions(count int)
	// AddFailures increments the count of submissions that ended in error.
	AddFailures(count int)
	// SetPending updates the current pending record count.
	SetPending(count int)
}

// NopMetrics is a no-op metrics recorder.
type NopMetrics struct{}

// ObserveSubmitDuration implements Metrics.
func (NopMetrics) ObserveSubmitDuration(time.Duration) {}

// AddSubmissions implements Metrics.
func (NopMetrics) AddSubmissions(int) {}

// AddReplays implements Metrics.
func (NopMetrics) AddReplays(int) {}

// AddRetries implements Metrics.
func (NopMetrics) AddRetries(int) {}

// AddCompletions implements Metrics.
func (NopMetrics) AddCompletions(int) {}

// AddFailures implements Metrics.
func (NopMetrics) AddFailures(int) {}

// SetPending implements Metrics.
func (NopMetrics) SetPending(int) {}
