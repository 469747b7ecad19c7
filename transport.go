package submitonce

import "context"

// Transport is the request/response channel between a controller and the
// ledger. The in-process ledger satisfies it directly; httpapi.Client
// satisfies it across HTTP. Submit returns an error only when the channel
// itself fails or the server rejects the request; a delivered decision,
// including a transient failure, arrives as a Response.
type Transport interface {
	// Submit delivers a submission and returns the ledger's decision.
	Submit(ctx context.Context, req SubmissionRequest) (Response, error)
	// Status looks up the record for a previously submitted request id.
	// Ids the ledger has never seen fail with ErrUnknownRequestID.
	Status(ctx context.Context, requestID string) (Record, error)
}
