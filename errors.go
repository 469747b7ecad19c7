package submitonce

import "errors"

var (
	// ErrEmailRequired is returned when the submission email is empty.
	ErrEmailRequired = errors.New("submission email is required")
	// ErrEmailInvalid is returned when the submission email cannot be parsed as an address.
	ErrEmailInvalid = errors.New("submission email is not a valid address")
	// ErrAmountInvalid is returned when the submission amount is not a positive finite number.
	ErrAmountInvalid = errors.New("submission amount must be a positive finite number")
	// ErrRequestIDRequired is returned when a request id is empty.
	ErrRequestIDRequired = errors.New("submission request id is required")
	// ErrRequestIDInvalid is returned when parsing a request id fails.
	ErrRequestIDInvalid = errors.New("submission request id is invalid")
	// ErrUnknownRequestID is returned by status lookups for ids the ledger has never seen.
	ErrUnknownRequestID = errors.New("submission request id is unknown")
	// ErrSubmissionInFlight is returned by Start while an earlier submission is still pending.
	ErrSubmissionInFlight = errors.New("submission already in flight")
	// ErrNotTerminal is returned by Reset before the submission reaches success or error.
	ErrNotTerminal = errors.New("submission has not reached a terminal phase")
	// ErrRetriesExhausted indicates the retry budget was spent without a success.
	ErrRetriesExhausted = errors.New("submission retries exhausted")
	// ErrControllerClosed is returned after Close.
	ErrControllerClosed = errors.New("submission controller is closed")
)
