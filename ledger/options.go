package ledger

import (
	"time"

	"github.com/clearway/submitonce"
)

// Config defines ledger behavior.
type Config struct {
	Store           RecordStore
	Simulator       Simulator
	Clock           submitonce.Clock
	Scheduler       submitonce.Scheduler
	Logger          submitonce.Logger
	Metrics         submitonce.Metrics
	PendingInterval time.Duration
}

func (c Config) withDefaults() Config {
	if c.Store == nil {
		c.Store = NewMemoryStore()
	}
	if c.Simulator == nil {
		c.Simulator = NewRandomSimulator()
	}
	if c.Clock == nil {
		c.Clock = submitonce.SystemClock{}
	}
	if c.Scheduler == nil {
		c.Scheduler = submitonce.SystemScheduler{}
	}
	if c.Logger == nil {
		c.Logger = submitonce.NopLogger{}
	}
	if c.Metrics == nil {
		c.Metrics = submitonce.NopMetrics{}
	}

	return c
}

// Option configures the ledger.
type Option func(*Config)

// WithStore sets the record store.
func WithStore(store RecordStore) Option {
	return func(c *Config) {
		c.Store = store
	}
}

// WithSimulator sets the outcome simulator.
func WithSimulator(sim Simulator) Option {
	return func(c *Config) {
		c.Simulator = sim
	}
}

// WithClock sets the time source used for record timestamps.
func WithClock(clock submitonce.Clock) Option {
	return func(c *Config) {
		c.Clock = clock
	}
}

// WithScheduler sets the scheduler for delayed completion timers.
func WithScheduler(scheduler submitonce.Scheduler) Option {
	return func(c *Config) {
		c.Scheduler = scheduler
	}
}

// WithLogger sets the ledger logger.
func WithLogger(logger submitonce.Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}

// WithMetrics sets the ledger metrics recorder.
func WithMetrics(metrics submitonce.Metrics) Option {
	return func(c *Config) {
		c.Metrics = metrics
	}
}

// WithPendingInterval sets the minimum interval between pending count
// samples. Use a positive value to enable sampling or zero to keep it
// disabled. The default is disabled.
func WithPendingInterval(interval time.Duration) Option {
	return func(c *Config) {
		c.PendingInterval = interval
	}
}
