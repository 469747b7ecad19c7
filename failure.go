package submitonce

import "errors"

// FailureAction defines how a failed dispatch should be handled.
type FailureAction int

const (
	// FailureRetry counts the failure against the retry budget and re-dispatches.
	FailureRetry FailureAction = iota
	// FailureTerminal fails the submission immediately without retrying.
	FailureTerminal
)

// FailureClassifier decides whether a dispatch failure is retryable. The
// default retries everything except failures wrapped in TerminalError, so a
// broken channel is indistinguishable from a transient server failure.
type FailureClassifier func(requestID string, err error) FailureAction

func defaultFailureClassifier(_ string, err error) FailureAction {
	var terminal *TerminalError
	if errors.As(err, &terminal) {
		return FailureTerminal
	}

	return FailureRetry
}

// TerminalError marks a dispatch failure that must not be retried, such as a
// rejection the server will repeat on every attempt.
type TerminalError struct {
	Err error
}

// Error implements error.
func (e *TerminalError) Error() string {
	return e.Err.Error()
}

// Unwrap returns the underlying cause.
func (e *TerminalError) Unwrap() error {
	return e.Err
}
