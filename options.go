package submitonce

import "time"

const (
	defaultMaxRetries   = 3
	defaultBaseDelay    = 1 * time.Second
	defaultPollInterval = 2 * time.Second
	maxRetryDelay       = 30 * time.Second
)

// ControllerConfig defines how the Controller dispatches, retries, and polls.
type ControllerConfig struct {
	MaxRetries        int
	BaseDelay         time.Duration
	PollInterval      time.Duration
	SubmitTimeout     time.Duration
	Clock             Clock
	Scheduler         Scheduler
	IDs               IDGenerator
	Logger            Logger
	Metrics           Metrics
	FailureClassifier FailureClassifier
	OnTransition      func(State)
}

func (c ControllerConfig) withDefaults() ControllerConfig {
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	} else if c.MaxRetries == 0 {
		c.MaxRetries = defaultMaxRetries
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = defaultBaseDelay
	}
	if c.PollInterval <= 0 {
		c.PollInterval = defaultPollInterval
	}
	if c.Clock == nil {
		c.Clock = SystemClock{}
	}
	if c.Scheduler == nil {
		c.Scheduler = SystemScheduler{}
	}
	if c.IDs == nil {
		c.IDs = NewTokenGenerator(c.Clock)
	}
	if c.Logger == nil {
		c.Logger = NopLogger{}
	}
	if c.Metrics == nil {
		c.Metrics = NopMetrics{}
	}
	if c.FailureClassifier == nil {
		c.FailureClassifier = defaultFailureClassifier
	}

	return c
}

// ControllerOption configures Controller behavior.
type ControllerOption func(*ControllerConfig)

// WithMaxRetries sets the retry budget per submission. Use a negative value
// to disable retries entirely.
func WithMaxRetries(count int) ControllerOption {
	return func(c *ControllerConfig) {
		c.MaxRetries = count
	}
}

// WithBaseDelay sets the first retry delay. Each further retry doubles it.
func WithBaseDelay(delay time.Duration) ControllerOption {
	return func(c *ControllerConfig) {
		c.BaseDelay = delay
	}
}

// WithStatusPollInterval sets the delay between status polls while an
// accepted submission completes server-side.
func WithStatusPollInterval(interval time.Duration) ControllerOption {
	return func(c *ControllerConfig) {
		c.PollInterval = interval
	}
}

// WithSubmitTimeout bounds each transport call. Zero disables the bound.
func WithSubmitTimeout(timeout time.Duration) ControllerOption {
	return func(c *ControllerConfig) {
		c.SubmitTimeout = timeout
	}
}

// WithClock sets the controller clock.
func WithClock(clock Clock) ControllerOption {
	return func(c *ControllerConfig) {
		c.Clock = clock
	}
}

// WithScheduler sets the timer scheduler.
func WithScheduler(scheduler Scheduler) ControllerOption {
	return func(c *ControllerConfig) {
		c.Scheduler = scheduler
	}
}

// WithIDGenerator sets the request id generator.
func WithIDGenerator(ids IDGenerator) ControllerOption {
	return func(c *ControllerConfig) {
		c.IDs = ids
	}
}

// WithLogger sets the controller logger.
func WithLogger(logger Logger) ControllerOption {
	return func(c *ControllerConfig) {
		c.Logger = logger
	}
}

// WithMetrics sets the controller metrics recorder.
func WithMetrics(metrics Metrics) ControllerOption {
	return func(c *ControllerConfig) {
		c.Metrics = metrics
	}
}

// WithFailureClassifier sets the classifier for retry/terminal decisions.
func WithFailureClassifier(classifier FailureClassifier) ControllerOption {
	return func(c *ControllerConfig) {
		c.FailureClassifier = classifier
	}
}

// WithTransitionListener registers a callback invoked after every state
// change with a snapshot of the new state. Callbacks may arrive from timer
// goroutines and must not block.
func WithTransitionListener(fn func(State)) ControllerOption {
	return func(c *ControllerConfig) {
		c.OnTransition = fn
	}
}
