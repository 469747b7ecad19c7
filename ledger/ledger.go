package ledger

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/clearway/submitonce"
)

// ErrClosed is returned by Submit and Status after Close.
var ErrClosed = errors.New("submitonce ledger: closed")

// Ledger is the idempotent server side of the protocol. It keeps exactly one
// record per request id forever: the first submission creates the record,
// duplicates of a success replay the recorded outcome unchanged, and
// duplicates of a still-pending submission have their outcome decided again
// against the same record. A record's status only ever moves from pending to
// success.
type Ledger struct {
	cfg Config

	mu     sync.Mutex
	timers map[string]submitonce.Timer
	closed bool

	pendingMu sync.Mutex
	pendingAt time.Time
}

var _ submitonce.Transport = (*Ledger)(nil)

// NewLedger constructs a Ledger with defaults and optional settings.
func NewLedger(opts ...Option) *Ledger {
	var cfg Config
	for _, opt := range opts {
		opt(&cfg)
	}
	cfg = cfg.withDefaults()

	return &Ledger{
		cfg:    cfg,
		timers: make(map[string]submitonce.Timer),
	}
}

// Submit implements submitonce.Transport. The check-then-act against the
// record slot runs atomically inside the store, so concurrent submissions of
// the same request id still produce a single record and consistent replies.
// Submit never fails because a request id was seen before; duplicates are
// the protocol working as intended.
func (l *Ledger) Submit(ctx context.Context, req submitonce.SubmissionRequest) (submitonce.Response, error) {
	start := time.Now()
	defer func() {
		l.cfg.Metrics.ObserveSubmitDuration(time.Since(start))
	}()

	if l.isClosed() {
		return submitonce.Response{}, ErrClosed
	}
	if err := req.Validate(); err != nil {
		return submitonce.Response{}, err
	}

	var (
		resp          submitonce.Response
		created       bool
		replayed      bool
		schedule      bool
		completeAfter time.Duration
	)
	if _, err := l.cfg.Store.Update(ctx, req.RequestID, func(rec submitonce.Record, found bool) (submitonce.Record, error) {
		if found && rec.Status == submitonce.StatusSuccess {
			replayed = true
			resp = submitonce.NewSuccessResponse(rec)

			return rec, nil
		}
		if !found {
			created = true
			rec = submitonce.Record{
				RequestID: req.RequestID,
				Email:     req.Email,
				Amount:    req.Amount,
				Status:    submitonce.StatusPending,
				CreatedAt: l.cfg.Clock.Now(),
			}
		}

		decision := l.cfg.Simulator.Decide(req)
		switch decision.Outcome {
		case OutcomeSuccess:
			now := l.cfg.Clock.Now()
			rec.Status = submitonce.StatusSuccess
			rec.CompletedAt = &now
			resp = submitonce.NewSuccessResponse(rec)
		case OutcomeDelayedSuccess:
			schedule = true
			completeAfter = decision.CompleteAfter
			resp = submitonce.NewAcceptedResponse(rec, completeAfter)
		default:
			resp = submitonce.NewTransientFailureResponse(req.RequestID, decision.RetryAfter)
		}

		return rec, nil
	}); err != nil {
		return submitonce.Response{}, err
	}

	if created {
		l.cfg.Metrics.AddSubmissions(1)
		l.cfg.Logger.Debug("submission recorded", "request_id", req.RequestID)
	}
	if replayed {
		l.cfg.Metrics.AddReplays(1)
		l.cfg.Logger.Debug("submission outcome replayed", "request_id", req.RequestID)
	}
	if schedule {
		l.scheduleCompletion(req.RequestID, completeAfter)
	}
	l.maybeRecordPending(ctx)

	return resp, nil
}

// Status implements submitonce.Transport.
func (l *Ledger) Status(ctx context.Context, requestID string) (submitonce.Record, error) {
	if l.isClosed() {
		return submitonce.Record{}, ErrClosed
	}
	if requestID == "" {
		return submitonce.Record{}, submitonce.ErrRequestIDRequired
	}

	rec, found, err := l.cfg.Store.Get(ctx, requestID)
	if err != nil {
		return submitonce.Record{}, err
	}
	if !found {
		return submitonce.Record{}, submitonce.ErrUnknownRequestID
	}

	return rec, nil
}

// Close stops completion timers and refuses further calls. Records already
// accepted but not yet completed stay pending. Close is idempotent.
func (l *Ledger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}

	l.closed = true
	for id, timer := range l.timers {
		timer.Stop()
		delete(l.timers, id)
	}

	return nil
}

func (l *Ledger) isClosed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.closed
}

// scheduleCompletion arms the completion timer for id, replacing any timer
// armed by an earlier duplicate of the same submission.
func (l *Ledger) scheduleCompletion(id string, after time.Duration) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()

		return
	}
	if prev, ok := l.timers[id]; ok {
		prev.Stop()
	}
	l.timers[id] = l.cfg.Scheduler.AfterFunc(after, func() { l.complete(id) })
	l.mu.Unlock()

	l.cfg.Logger.Info("submission deferred", "request_id", id, "complete_after", after)
}

// complete flips a pending record to success. It runs on a timer goroutine;
// a record that already completed through another path is left untouched.
func (l *Ledger) complete(id string) {
	l.mu.Lock()
	delete(l.timers, id)
	closed := l.closed
	l.mu.Unlock()
	if closed {
		return
	}

	completed := false
	if _, err := l.cfg.Store.Update(context.Background(), id, func(rec submitonce.Record, found bool) (submitonce.Record, error) {
		if !found {
			return rec, submitonce.ErrUnknownRequestID
		}
		if rec.Status != submitonce.StatusPending {
			return rec, nil
		}

		now := l.cfg.Clock.Now()
		rec.Status = submitonce.StatusSuccess
		rec.CompletedAt = &now
		completed = true

		return rec, nil
	}); err != nil {
		l.cfg.Logger.Error("submission completion failed", "request_id", id, "err", err)

		return
	}

	if completed {
		l.cfg.Metrics.AddCompletions(1)
		l.cfg.Logger.Info("submission completed", "request_id", id)
	}
	l.maybeRecordPending(context.Background())
}

// maybeRecordPending samples the pending record count at most once per
// PendingInterval.
func (l *Ledger) maybeRecordPending(ctx context.Context) {
	if l.cfg.PendingInterval <= 0 {
		return
	}
	if ctx.Err() != nil {
		return
	}

	now := l.cfg.Clock.Now()
	l.pendingMu.Lock()
	nextAllowed := l.pendingAt.Add(l.cfg.PendingInterval)
	if !l.pendingAt.IsZero() && now.Before(nextAllowed) {
		l.pendingMu.Unlock()

		return
	}
	l.pendingAt = now
	l.pendingMu.Unlock()

	count, err := l.cfg.Store.PendingCount(ctx)
	if err != nil {
		l.cfg.Logger.Warn("submission pending count failed", "err", err)

		return
	}

	l.cfg.Metrics.SetPending(count)
}
