package httpapi

import (
	"time"

	"github.com/clearway/submitonce"
)

// Wire shapes for the JSON API. Durations cross the wire as integers with
// the unit in the field name; timestamps are RFC 3339. Success bodies are
// built from the stored record alone, so a replayed submission serializes
// to the same bytes as the original reply.

type submissionBody struct {
	RequestID string  `json:"requestId"`
	Email     string  `json:"email"`
	Amount    float64 `json:"amount"`
}

type successBody struct {
	Message   string    `json:"message"`
	RequestID string    `json:"requestId"`
	Email     string    `json:"email"`
	Amount    float64   `json:"amount"`
	Timestamp time.Time `json:"timestamp"`
}

type acceptedBody struct {
	Message          string  `json:"message"`
	RequestID        string  `json:"requestId"`
	Email            string  `json:"email"`
	Amount           float64 `json:"amount"`
	EstimatedDelayMs int64   `json:"estimatedDelayMs"`
}

type transientBody struct {
	Error             string `json:"error"`
	RequestID         string `json:"requestId"`
	RetryAfterSeconds int64  `json:"retryAfterSeconds"`
}

type recordBody struct {
	RequestID   string     `json:"requestId"`
	Email       string     `json:"email"`
	Amount      float64    `json:"amount"`
	Status      string     `json:"status"`
	CreatedAt   time.Time  `json:"createdAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

type errorBody struct {
	Error string `json:"error"`
}

func successBodyOf(resp submitonce.Response) successBody {
	return successBody{
		Message:   resp.Message,
		RequestID: resp.RequestID,
		Email:     resp.Email,
		Amount:    resp.Amount,
		Timestamp: resp.Timestamp,
	}
}

func (b successBody) response() submitonce.Response {
	return submitonce.Response{
		Kind:      submitonce.KindSucceeded,
		Message:   b.Message,
		RequestID: b.RequestID,
		Email:     b.Email,
		Amount:    b.Amount,
		Timestamp: b.Timestamp,
	}
}

func acceptedBodyOf(resp submitonce.Response) acceptedBody {
	return acceptedBody{
		Message:          resp.Message,
		RequestID:        resp.RequestID,
		Email:            resp.Email,
		Amount:           resp.Amount,
		EstimatedDelayMs: int64(resp.EstimatedDelay / time.Millisecond),
	}
}

func (b acceptedBody) response() submitonce.Response {
	return submitonce.Response{
		Kind:           submitonce.KindAccepted,
		Message:        b.Message,
		RequestID:      b.RequestID,
		Email:          b.Email,
		Amount:         b.Amount,
		EstimatedDelay: time.Duration(b.EstimatedDelayMs) * time.Millisecond,
	}
}

func transientBodyOf(resp submitonce.Response) transientBody {
	return transientBody{
		Error:             resp.Err,
		RequestID:         resp.RequestID,
		RetryAfterSeconds: retryAfterSeconds(resp.RetryAfter),
	}
}

func (b transientBody) response() submitonce.Response {
	return submitonce.Response{
		Kind:       submitonce.KindTransientFailure,
		RequestID:  b.RequestID,
		RetryAfter: time.Duration(b.RetryAfterSeconds) * time.Second,
		Err:        b.Error,
	}
}

func recordBodyOf(rec submitonce.Record) recordBody {
	body := recordBody{
		RequestID: rec.RequestID,
		Email:     rec.Email,
		Amount:    rec.Amount,
		Status:    string(rec.Status),
		CreatedAt: rec.CreatedAt,
	}
	if rec.CompletedAt != nil {
		completed := *rec.CompletedAt
		body.CompletedAt = &completed
	}

	return body
}

func (b recordBody) record() submitonce.Record {
	rec := submitonce.Record{
		RequestID: b.RequestID,
		Email:     b.Email,
		Amount:    b.Amount,
		Status:    submitonce.Status(b.Status),
		CreatedAt: b.CreatedAt,
	}
	if b.CompletedAt != nil {
		completed := *b.CompletedAt
		rec.CompletedAt = &completed
	}

	return rec
}

// retryAfterSeconds rounds up so a sub-second hint never becomes zero.
func retryAfterSeconds(d time.Duration) int64 {
	if d <= 0 {
		return 0
	}
	s := int64(d / time.Second)
	if time.Duration(s)*time.Second < d {
		s++
	}

	return s
}
