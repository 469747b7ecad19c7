package ledger

import (
	crand "crypto/rand"
	"encoding/binary"
	"math/rand"
	"sync"
	"time"

	"github.com/clearway/submitonce"
)

// Outcome is the simulated result class for one submit attempt.
type Outcome int

const (
	// OutcomeSuccess completes the submission immediately.
	OutcomeSuccess Outcome = iota
	// OutcomeTransientFailure reports a retryable failure and leaves the
	// record pending.
	OutcomeTransientFailure
	// OutcomeDelayedSuccess accepts the submission and completes it after
	// CompleteAfter.
	OutcomeDelayedSuccess
)

// Decision is an outcome with its timing hints.
type Decision struct {
	// Outcome is the result class.
	Outcome Outcome
	// RetryAfter hints when the client should retry a transient failure.
	RetryAfter time.Duration
	// CompleteAfter is the server-side completion delay for a delayed success.
	CompleteAfter time.Duration
}

// Simulator decides the outcome of a submit attempt. The ledger consults it
// for new submissions and for duplicates still pending; recorded successes
// replay without consulting it again. Decide runs while the ledger holds the
// record slot, so it must not call back into the ledger or its store.
type Simulator interface {
	// Decide returns the decision for req.
	Decide(req submitonce.SubmissionRequest) Decision
}

// SimulatorFunc adapts a function to Simulator.
type SimulatorFunc func(req submitonce.SubmissionRequest) Decision

// Decide implements Simulator.
func (fn SimulatorFunc) Decide(req submitonce.SubmissionRequest) Decision {
	return fn(req)
}

const (
	defaultSuccessWeight   = 50
	defaultTransientWeight = 25
	defaultDelayedWeight   = 25
	defaultDelayMin        = 5 * time.Second
	defaultDelayMax        = 10 * time.Second
	defaultRetryAfter      = 2 * time.Second
)

// SimulatorConfig defines RandomSimulator behavior.
type SimulatorConfig struct {
	SuccessWeight   int
	TransientWeight int
	DelayedWeight   int
	DelayMin        time.Duration
	DelayMax        time.Duration
	RetryAfter      time.Duration
	Seed            int64
	Rand            *rand.Rand
}

func (c SimulatorConfig) withDefaults() SimulatorConfig {
	if c.SuccessWeight < 0 {
		c.SuccessWeight = 0
	}
	if c.TransientWeight < 0 {
		c.TransientWeight = 0
	}
	if c.DelayedWeight < 0 {
		c.DelayedWeight = 0
	}
	if c.SuccessWeight == 0 && c.TransientWeight == 0 && c.DelayedWeight == 0 {
		c.SuccessWeight = defaultSuccessWeight
		c.TransientWeight = defaultTransientWeight
		c.DelayedWeight = defaultDelayedWeight
	}
	if c.DelayMin <= 0 {
		c.DelayMin = defaultDelayMin
	}
	if c.DelayMax <= 0 {
		c.DelayMax = defaultDelayMax
	}
	if c.DelayMax < c.DelayMin {
		c.DelayMax = c.DelayMin
	}
	if c.RetryAfter <= 0 {
		c.RetryAfter = defaultRetryAfter
	}

	return c
}

// SimulatorOption configures the RandomSimulator.
type SimulatorOption func(*SimulatorConfig)

// WithWeights sets the relative weights for immediate success, transient
// failure, and delayed success. A zero weight disables that outcome.
func WithWeights(success, transient, delayed int) SimulatorOption {
	return func(c *SimulatorConfig) {
		c.SuccessWeight = success
		c.TransientWeight = transient
		c.DelayedWeight = delayed
	}
}

// WithDelayBounds sets the [min, max) range for delayed completion. Equal
// bounds pin the delay to min.
func WithDelayBounds(min, max time.Duration) SimulatorOption {
	return func(c *SimulatorConfig) {
		c.DelayMin = min
		c.DelayMax = max
	}
}

// WithRetryAfter sets the retry hint attached to transient failures.
func WithRetryAfter(d time.Duration) SimulatorOption {
	return func(c *SimulatorConfig) {
		c.RetryAfter = d
	}
}

// WithSeed seeds the random source for reproducible runs. Zero draws a
// random seed.
func WithSeed(seed int64) SimulatorOption {
	return func(c *SimulatorConfig) {
		c.Seed = seed
	}
}

// WithRand sets the random source directly, overriding WithSeed.
func WithRand(r *rand.Rand) SimulatorOption {
	return func(c *SimulatorConfig) {
		c.Rand = r
	}
}

// RandomSimulator draws outcomes from a weighted distribution. With the
// default weights half the submissions succeed immediately, a quarter fail
// transiently with a retry hint, and a quarter are accepted with a
// completion delay drawn from [DelayMin, DelayMax).
type RandomSimulator struct {
	mu  sync.Mutex
	rng *rand.Rand
	cfg SimulatorConfig
}

var _ Simulator = (*RandomSimulator)(nil)

// NewRandomSimulator constructs a RandomSimulator with defaults and
// optional settings.
func NewRandomSimulator(opts ...SimulatorOption) *RandomSimulator {
	var cfg SimulatorConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	cfg = cfg.withDefaults()

	rng := cfg.Rand
	if rng == nil {
		seed := cfg.Seed
		if seed == 0 {
			seed = randomSeed()
		}
		rng = rand.New(rand.NewSource(seed))
	}

	return &RandomSimulator{rng: rng, cfg: cfg}
}

// Decide implements Simulator. It is safe for concurrent use.
func (s *RandomSimulator) Decide(_ submitonce.SubmissionRequest) Decision {
	s.mu.Lock()
	defer s.mu.Unlock()

	total := s.cfg.SuccessWeight + s.cfg.TransientWeight + s.cfg.DelayedWeight
	n := s.rng.Intn(total)
	switch {
	case n < s.cfg.SuccessWeight:
		return Decision{Outcome: OutcomeSuccess}
	case n < s.cfg.SuccessWeight+s.cfg.TransientWeight:
		return Decision{Outcome: OutcomeTransientFailure, RetryAfter: s.cfg.RetryAfter}
	default:
		return Decision{Outcome: OutcomeDelayedSuccess, CompleteAfter: s.completeAfterLocked()}
	}
}

func (s *RandomSimulator) completeAfterLocked() time.Duration {
	span := s.cfg.DelayMax - s.cfg.DelayMin
	if span <= 0 {
		return s.cfg.DelayMin
	}

	return s.cfg.DelayMin + time.Duration(s.rng.Int63n(int64(span)))
}

// randomSeed draws a seed from crypto/rand, falling back to the wall clock
// when the system source is unavailable.
func randomSeed() int64 {
	var buf [8]byte
	if _, err := crand.Read(buf[:]); err != nil {
		return time.Now().UnixNano()
	}

	return int64(binary.LittleEndian.Uint64(buf[:]))
}
