package submitonce

import "time"

// Record is the ledger entry for one request id. A record is created the
// first time an id is seen and is never deleted; its status only ever moves
// from pending to success.
type Record struct {
	// RequestID is the idempotency key the record is stored under.
	RequestID string
	// Email is the submitter address captured from the first submission.
	Email string
	// Amount is the submitted amount captured from the first submission.
	Amount float64
	// Status is the current lifecycle state.
	Status Status
	// CreatedAt is when the id was first seen.
	CreatedAt time.Time
	// CompletedAt is when the record flipped to success, nil while pending.
	CompletedAt *time.Time
}
