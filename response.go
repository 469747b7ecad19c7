package submitonce

import "time"

// ResponseKind discriminates the submit response variants.
type ResponseKind string

const (
	// KindSucceeded reports a completed submission. It corresponds to HTTP 200.
	KindSucceeded ResponseKind = "succeeded"
	// KindAccepted reports a submission that will complete asynchronously.
	// It corresponds to HTTP 202.
	KindAccepted ResponseKind = "accepted"
	// KindTransientFailure reports a retryable failure. It corresponds to HTTP 503.
	KindTransientFailure ResponseKind = "transient_failure"
)

// Response messages are fixed so an idempotent replay is identical to the
// response it replays.
const (
	msgSucceeded = "submission processed"
	msgAccepted  = "submission accepted"
	msgTransient = "service temporarily unavailable"
)

// Response is the ledger's answer to a submit. Kind selects the variant;
// the remaining fields are populated per variant.
type Response struct {
	// Kind selects the variant.
	Kind ResponseKind
	// Message is a short human-readable summary for succeeded and accepted.
	Message string
	// RequestID echoes the submission's request id.
	RequestID string
	// Email echoes the recorded submitter address for succeeded and accepted.
	Email string
	// Amount echoes the recorded amount for succeeded and accepted.
	Amount float64
	// Timestamp is the completion time for succeeded.
	Timestamp time.Time
	// EstimatedDelay is the expected completion delay for accepted.
	EstimatedDelay time.Duration
	// RetryAfter hints when to retry a transient failure.
	RetryAfter time.Duration
	// Err describes a transient failure.
	Err string
}

// NewSuccessResponse builds the succeeded response for a completed record.
// Building it from the record alone keeps replays identical to the original.
func NewSuccessResponse(rec Record) Response {
	resp := Response{
		Kind:      KindSucceeded,
		Message:   msgSucceeded,
		RequestID: rec.RequestID,
		Email:     rec.Email,
		Amount:    rec.Amount,
	}
	if rec.CompletedAt != nil {
		resp.Timestamp = *rec.CompletedAt
	}

	return resp
}

// NewAcceptedResponse builds the accepted response for a pending record.
func NewAcceptedResponse(rec Record, estimated time.Duration) Response {
	return Response{
		Kind:           KindAccepted,
		Message:        msgAccepted,
		RequestID:      rec.RequestID,
		Email:          rec.Email,
		Amount:         rec.Amount,
		EstimatedDelay: estimated,
	}
}

// NewTransientFailureResponse builds the transient failure response.
func NewTransientFailureResponse(requestID string, retryAfter time.Duration) Response {
	return Response{
		Kind:       KindTransientFailure,
		RequestID:  requestID,
		RetryAfter: retryAfter,
		Err:        msgTransient,
	}
}
