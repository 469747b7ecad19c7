package submitonce

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// Phase is the controller's lifecycle phase.
type Phase string

const (
	// PhaseIdle means no submission is in flight.
	PhaseIdle Phase = "idle"
	// PhasePending means a submission is dispatched, retrying, or completing
	// server-side.
	PhasePending Phase = "pending"
	// PhaseSuccess means the submission completed. Terminal until Reset.
	PhaseSuccess Phase = "success"
	// PhaseError means the submission failed for good. Terminal until Reset.
	PhaseError Phase = "error"
)

// State is a consistent snapshot of the controller.
type State struct {
	// Phase is the lifecycle phase.
	Phase Phase
	// RequestID is the id of the current or last submission, empty when idle.
	RequestID string
	// Attempt counts dispatches of the current submission, starting at 1.
	Attempt int
	// RetryCount counts retries consumed from the budget.
	RetryCount int
	// Delayed reports that the server accepted the submission and the
	// controller is polling for the delayed outcome.
	Delayed bool
	// LastError describes the most recent failure, empty otherwise.
	LastError string
	// Result holds the success response once Phase is PhaseSuccess.
	Result *Response
}

// Controller drives one logical submission at a time through a Transport.
// It generates the request id once per submission and reuses it for every
// retry, so the ledger can deduplicate no matter how many times the wire
// delivers the request. Transient failures are retried with exponential
// backoff until the budget runs out; accepted submissions are polled until
// the ledger reports success.
//
// All methods are safe for concurrent use. Timer and transport callbacks
// carry the request id they were armed for and are ignored once the
// controller has moved on, so a late callback can never touch a newer
// submission.
type Controller struct {
	transport Transport
	cfg       ControllerConfig

	mu         sync.Mutex
	phase      Phase
	requestID  string
	email      string
	amount     float64
	attempt    int
	retryCount int
	delayed    bool
	lastErr    string
	result     *Response
	cancel     context.CancelFunc
	timer      Timer
	done       chan struct{}
	closed     bool
}

// NewController constructs a Controller with defaults and optional settings.
func NewController(transport Transport, opts ...ControllerOption) *Controller {
	if transport == nil {
		panic("submitonce: nil Transport")
	}

	var cfg ControllerConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	cfg = cfg.withDefaults()

	return &Controller{
		transport: transport,
		cfg:       cfg,
		phase:     PhaseIdle,
	}
}

// Start begins a new submission for email and amount and returns without
// waiting for the outcome. Invalid input is rejected before anything is
// dispatched and the controller stays idle. While a submission is pending,
// further Start calls fail with ErrSubmissionInFlight. The submission runs
// until ctx is canceled, the retry budget is spent, or a terminal outcome
// arrives.
func (c *Controller) Start(ctx context.Context, email string, amount float64) error {
	if err := ValidateInput(email, amount); err != nil {
		return err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()

		return ErrControllerClosed
	}
	if c.phase == PhasePending {
		c.mu.Unlock()

		return ErrSubmissionInFlight
	}
	if c.phase != PhaseIdle {
		c.mu.Unlock()

		return ErrNotTerminal
	}

	id, err := c.cfg.IDs.New(email)
	if err != nil {
		c.mu.Unlock()

		return fmt.Errorf("submission id generation failed: %w", err)
	}

	subCtx, cancel := context.WithCancel(ctx)
	c.phase = PhasePending
	c.requestID = id
	c.email = email
	c.amount = amount
	c.attempt = 0
	c.retryCount = 0
	c.delayed = false
	c.lastErr = ""
	c.result = nil
	c.cancel = cancel
	c.done = make(chan struct{})
	s := c.snapshotLocked()
	c.mu.Unlock()

	c.cfg.Logger.Info("submission started", "request_id", id, "amount", amount)
	c.notify(s)
	c.dispatch(subCtx, id)

	return nil
}

// Reset returns the controller to idle so a new submission can start. It is
// only valid once the current submission reached success or error; any timer
// or response still in flight for the old request id is discarded on arrival.
func (c *Controller) Reset() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()

		return ErrControllerClosed
	}
	if c.phase != PhaseSuccess && c.phase != PhaseError {
		c.mu.Unlock()

		return ErrNotTerminal
	}

	c.phase = PhaseIdle
	c.requestID = ""
	c.email = ""
	c.amount = 0
	c.attempt = 0
	c.retryCount = 0
	c.delayed = false
	c.lastErr = ""
	c.result = nil
	s := c.snapshotLocked()
	c.mu.Unlock()

	c.notify(s)

	return nil
}

// State returns a snapshot of the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.snapshotLocked()
}

// Wait blocks until the current submission reaches success or error, or ctx
// is canceled. It returns immediately when nothing is in flight. The
// returned snapshot is taken after the wait ends.
func (c *Controller) Wait(ctx context.Context) (State, error) {
	c.mu.Lock()
	done := c.done
	c.mu.Unlock()

	if done == nil {
		return c.State(), nil
	}

	select {
	case <-ctx.Done():
		return c.State(), ctx.Err()
	case <-done:
		return c.State(), nil
	}
}

// Close stops timers, cancels the in-flight submission, and releases Wait
// callers. The controller refuses further Start and Reset calls. Close is
// idempotent.
func (c *Controller) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}

	c.closed = true
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	if c.done != nil {
		close(c.done)
		c.done = nil
	}

	return nil
}

// dispatch sends one attempt for id on its own goroutine.
func (c *Controller) dispatch(ctx context.Context, id string) {
	c.mu.Lock()
	if !c.active(id) {
		c.mu.Unlock()

		return
	}
	c.timer = nil
	c.attempt++
	attempt := c.attempt
	req := SubmissionRequest{RequestID: id, Email: c.email, Amount: c.amount}
	c.mu.Unlock()

	c.cfg.Logger.Debug("submission dispatched", "request_id", id, "attempt", attempt)

	go func() {
		callCtx := ctx
		cancel := func() {}
		if c.cfg.SubmitTimeout > 0 {
			callCtx, cancel = context.WithTimeout(ctx, c.cfg.SubmitTimeout)
		}
		resp, err := c.transport.Submit(callCtx, req)
		cancel()

		if err != nil {
			c.handleFailure(ctx, id, err)

			return
		}
		c.handleResponse(ctx, id, resp)
	}()
}

// handleResponse routes a delivered ledger decision.
func (c *Controller) handleResponse(ctx context.Context, id string, resp Response) {
	switch resp.Kind {
	case KindSucceeded:
		c.finishSuccess(id, resp)
	case KindAccepted:
		c.acceptDelayed(ctx, id, resp.EstimatedDelay)
	case KindTransientFailure:
		reason := resp.Err
		if reason == "" {
			reason = msgTransient
		}
		if resp.RetryAfter > 0 {
			c.cfg.Logger.Debug("submission retry-after hint", "request_id", id, "retry_after", resp.RetryAfter)
		}
		c.handleFailure(ctx, id, errors.New(reason))
	default:
		c.handleFailure(ctx, id, fmt.Errorf("submission response kind %q is unknown", resp.Kind))
	}
}

// handleFailure retries a failed attempt or fails the submission when the
// budget is spent, the failure is terminal, or the submission is canceled.
func (c *Controller) handleFailure(ctx context.Context, id string, err error) {
	if ctx.Err() != nil {
		c.finishError(id, err)

		return
	}
	if c.cfg.FailureClassifier(id, err) == FailureTerminal {
		c.finishError(id, err)

		return
	}

	c.mu.Lock()
	if !c.active(id) {
		c.mu.Unlock()

		return
	}
	if c.retryCount >= c.cfg.MaxRetries {
		c.mu.Unlock()
		c.finishError(id, fmt.Errorf("%w: %v", ErrRetriesExhausted, err))

		return
	}

	c.retryCount++
	retry := c.retryCount
	delay := retryDelay(c.cfg.BaseDelay, retry)
	c.lastErr = err.Error()
	c.timer = c.cfg.Scheduler.AfterFunc(delay, func() { c.dispatch(ctx, id) })
	s := c.snapshotLocked()
	c.mu.Unlock()

	c.cfg.Metrics.AddRetries(1)
	c.cfg.Logger.Info("submission retry scheduled", "request_id", id, "retry", retry, "delay", delay, "reason", err)
	c.notify(s)
}

// acceptDelayed marks the submission as completing server-side and arms the
// first status poll.
func (c *Controller) acceptDelayed(ctx context.Context, id string, estimated time.Duration) {
	delay := estimated
	if delay <= 0 {
		delay = c.cfg.PollInterval
	}

	c.mu.Lock()
	if !c.active(id) {
		c.mu.Unlock()

		return
	}
	c.delayed = true
	c.timer = c.cfg.Scheduler.AfterFunc(delay, func() { c.poll(ctx, id) })
	s := c.snapshotLocked()
	c.mu.Unlock()

	c.cfg.Logger.Info("submission accepted, awaiting completion", "request_id", id, "estimated_delay", estimated)
	c.notify(s)
}

// poll asks the ledger for the record status. It runs on a timer goroutine.
// Poll failures do not consume the retry budget; polling continues on the
// configured interval until an outcome or cancellation.
func (c *Controller) poll(ctx context.Context, id string) {
	c.mu.Lock()
	if !c.active(id) {
		c.mu.Unlock()

		return
	}
	c.timer = nil
	c.mu.Unlock()

	callCtx := ctx
	cancel := func() {}
	if c.cfg.SubmitTimeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, c.cfg.SubmitTimeout)
	}
	rec, err := c.transport.Status(callCtx, id)
	cancel()

	if err != nil {
		if ctx.Err() != nil {
			c.finishError(id, err)

			return
		}
		if errors.Is(err, ErrUnknownRequestID) {
			c.finishError(id, err)

			return
		}
		c.cfg.Logger.Warn("submission status poll failed", "request_id", id, "err", err)
		c.rearmPoll(ctx, id)

		return
	}

	if rec.Status == StatusSuccess {
		c.finishSuccess(id, NewSuccessResponse(rec))

		return
	}

	c.cfg.Logger.Debug("submission still pending", "request_id", id)
	c.rearmPoll(ctx, id)
}

func (c *Controller) rearmPoll(ctx context.Context, id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.active(id) {
		return
	}

	c.timer = c.cfg.Scheduler.AfterFunc(c.cfg.PollInterval, func() { c.poll(ctx, id) })
}

func (c *Controller) finishSuccess(id string, resp Response) {
	c.mu.Lock()
	if !c.active(id) {
		c.mu.Unlock()

		return
	}

	c.phase = PhaseSuccess
	r := resp
	c.result = &r
	c.lastErr = ""
	c.finishLocked()
	s := c.snapshotLocked()
	c.mu.Unlock()

	c.cfg.Logger.Info("submission succeeded", "request_id", id, "amount", resp.Amount)
	c.notify(s)
}

func (c *Controller) finishError(id string, err error) {
	c.mu.Lock()
	if !c.active(id) {
		c.mu.Unlock()

		return
	}

	c.phase = PhaseError
	c.lastErr = err.Error()
	c.finishLocked()
	s := c.snapshotLocked()
	c.mu.Unlock()

	c.cfg.Metrics.AddFailures(1)
	c.cfg.Logger.Warn("submission failed", "request_id", id, "err", err)
	c.notify(s)
}

// finishLocked stops the outstanding timer, cancels the submission context,
// and releases Wait callers. Callers hold c.mu.
func (c *Controller) finishLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	if c.done != nil {
		close(c.done)
		c.done = nil
	}
}

// active reports whether id is still the in-flight submission. Callers hold
// c.mu. Stale timers and responses fail this check and are dropped.
func (c *Controller) active(id string) bool {
	return !c.closed && c.phase == PhasePending && c.requestID == id
}

func (c *Controller) snapshotLocked() State {
	s := State{
		Phase:      c.phase,
		RequestID:  c.requestID,
		Attempt:    c.attempt,
		RetryCount: c.retryCount,
		Delayed:    c.delayed,
		LastError:  c.lastErr,
	}
	if c.result != nil {
		r := *c.result
		s.Result = &r
	}

	return s
}

func (c *Controller) notify(s State) {
	if c.cfg.OnTransition == nil {
		return
	}
	c.cfg.OnTransition(s)
}

// retryDelay returns base doubled retry-1 times: 1s, 2s, 4s for the default
// base. Capped at maxRetryDelay for large budgets.
func retryDelay(base time.Duration, retry int) time.Duration {
	d := base
	for i := 1; i < retry; i++ {
		d *= 2
		if d >= maxRetryDelay {
			return maxRetryDelay
		}
	}

	return d
}
