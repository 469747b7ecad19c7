package httpapi_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/clearway/submitonce"
	"github.com/clearway/submitonce/httpapi"
)

const testRequestID = "user@example.com-1700000000000-3k9zpb1q7c"

type scriptedTransport struct {
	submitFn func(ctx context.Context, req submitonce.SubmissionRequest) (submitonce.Response, error)
	statusFn func(ctx context.Context, requestID string) (submitonce.Record, error)
	submits  []submitonce.SubmissionRequest
}

func (s *scriptedTransport) Submit(ctx context.Context, req submitonce.SubmissionRequest) (submitonce.Response, error) {
	s.submits = append(s.submits, req)
	if s.submitFn == nil {
		return submitonce.Response{}, errors.New("no submit script")
	}

	return s.submitFn(ctx, req)
}

func (s *scriptedTransport) Status(ctx context.Context, requestID string) (submitonce.Record, error) {
	if s.statusFn == nil {
		return submitonce.Record{}, errors.New("no status script")
	}

	return s.statusFn(ctx, requestID)
}

// reply is a catch-all decode target for every wire body the API writes.
type reply struct {
	Message           string     `json:"message"`
	Error             string     `json:"error"`
	RequestID         string     `json:"requestId"`
	Email             string     `json:"email"`
	Amount            float64    `json:"amount"`
	Status            string     `json:"status"`
	Timestamp         time.Time  `json:"timestamp"`
	EstimatedDelayMs  int64      `json:"estimatedDelayMs"`
	RetryAfterSeconds int64      `json:"retryAfterSeconds"`
	CreatedAt         time.Time  `json:"createdAt"`
	CompletedAt       *time.Time `json:"completedAt"`
}

func decodeReply(t *testing.T, rec *httptest.ResponseRecorder) reply {
	t.Helper()
	var body reply
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))

	return body
}

func postSubmission(handler http.Handler, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/v1/submissions", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	return rec
}

func TestHandlerSubmitSucceeded(t *testing.T) {
	completed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	transport := &scriptedTransport{
		submitFn: func(_ context.Context, req submitonce.SubmissionRequest) (submitonce.Response, error) {
			return submitonce.NewSuccessResponse(submitonce.Record{
				RequestID:   req.RequestID,
				Email:       req.Email,
				Amount:      req.Amount,
				Status:      submitonce.StatusSuccess,
				CompletedAt: &completed,
			}), nil
		},
	}
	handler := httpapi.NewHandler(transport)

	rec := postSubmission(handler, `{"requestId":"`+testRequestID+`","email":"user@example.com","amount":100.50}`)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	require.Equal(t, testRequestID, rec.Header().Get("X-Request-Id"))

	body := decodeReply(t, rec)
	require.Equal(t, "submission processed", body.Message)
	require.Equal(t, testRequestID, body.RequestID)
	require.Equal(t, "user@example.com", body.Email)
	require.Equal(t, 100.50, body.Amount)
	require.True(t, completed.Equal(body.Timestamp))

	require.Len(t, transport.submits, 1)
	require.Equal(t, 100.50, transport.submits[0].Amount)
}

func TestHandlerSubmitAccepted(t *testing.T) {
	transport := &scriptedTransport{
		submitFn: func(_ context.Context, req submitonce.SubmissionRequest) (submitonce.Response, error) {
			rec := submitonce.Record{
				RequestID: req.RequestID,
				Email:     req.Email,
				Amount:    req.Amount,
				Status:    submitonce.StatusPending,
			}

			return submitonce.NewAcceptedResponse(rec, 6*time.Second), nil
		},
	}
	handler := httpapi.NewHandler(transport)

	rec := postSubmission(handler, `{"requestId":"`+testRequestID+`","email":"user@example.com","amount":42}`)

	require.Equal(t, http.StatusAccepted, rec.Code)
	body := decodeReply(t, rec)
	require.Equal(t, "submission accepted", body.Message)
	require.Equal(t, int64(6000), body.EstimatedDelayMs)
}

func TestHandlerSubmitTransientFailure(t *testing.T) {
	transport := &scriptedTransport{
		submitFn: func(_ context.Context, req submitonce.SubmissionRequest) (submitonce.Response, error) {
			return submitonce.NewTransientFailureResponse(req.RequestID, 2*time.Second), nil
		},
	}
	handler := httpapi.NewHandler(transport)

	rec := postSubmission(handler, `{"requestId":"`+testRequestID+`","email":"user@example.com","amount":42}`)

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.Equal(t, "2", rec.Header().Get("Retry-After"))

	body := decodeReply(t, rec)
	require.Equal(t, "service temporarily unavailable", body.Error)
	require.Equal(t, testRequestID, body.RequestID)
	require.Equal(t, int64(2), body.RetryAfterSeconds)
}

func TestHandlerSubmitValidationError(t *testing.T) {
	transport := &scriptedTransport{
		submitFn: func(_ context.Context, _ submitonce.SubmissionRequest) (submitonce.Response, error) {
			return submitonce.Response{}, submitonce.ErrEmailInvalid
		},
	}
	handler := httpapi.NewHandler(transport)

	rec := postSubmission(handler, `{"requestId":"`+testRequestID+`","email":"not-an-email","amount":42}`)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, submitonce.ErrEmailInvalid.Error(), decodeReply(t, rec).Error)
}

func TestHandlerSubmitMalformedBody(t *testing.T) {
	transport := &scriptedTransport{}
	handler := httpapi.NewHandler(transport)

	rec := postSubmission(handler, `{"requestId":`)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "malformed submission body", decodeReply(t, rec).Error)
	require.Empty(t, transport.submits)
}

func TestHandlerSubmitTransportError(t *testing.T) {
	transport := &scriptedTransport{
		submitFn: func(_ context.Context, _ submitonce.SubmissionRequest) (submitonce.Response, error) {
			return submitonce.Response{}, errors.New("backend exploded")
		},
	}
	handler := httpapi.NewHandler(transport)

	rec := postSubmission(handler, `{"requestId":"`+testRequestID+`","email":"user@example.com","amount":42}`)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Equal(t, "internal error", decodeReply(t, rec).Error)
}

func TestHandlerSubmitRequestIDFromHeader(t *testing.T) {
	transport := &scriptedTransport{
		submitFn: func(_ context.Context, req submitonce.SubmissionRequest) (submitonce.Response, error) {
			return submitonce.NewSuccessResponse(submitonce.Record{
				RequestID: req.RequestID,
				Email:     req.Email,
				Amount:    req.Amount,
				Status:    submitonce.StatusSuccess,
			}), nil
		},
	}
	handler := httpapi.NewHandler(transport)

	req := httptest.NewRequest(http.MethodPost, "/v1/submissions", strings.NewReader(`{"email":"user@example.com","amount":42}`))
	req.Header.Set("X-Request-Id", testRequestID)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, transport.submits, 1)
	require.Equal(t, testRequestID, transport.submits[0].RequestID)
}

func TestHandlerStatusFound(t *testing.T) {
	created := time.Date(2024, 5, 1, 11, 59, 54, 0, time.UTC)
	completed := created.Add(6 * time.Second)
	transport := &scriptedTransport{
		statusFn: func(_ context.Context, requestID string) (submitonce.Record, error) {
			return submitonce.Record{
				RequestID:   requestID,
				Email:       "user@example.com",
				Amount:      100.50,
				Status:      submitonce.StatusSuccess,
				CreatedAt:   created,
				CompletedAt: &completed,
			}, nil
		},
	}
	handler := httpapi.NewHandler(transport)

	req := httptest.NewRequest(http.MethodGet, "/v1/submissions/"+testRequestID, nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, testRequestID, rec.Header().Get("X-Request-Id"))

	body := decodeReply(t, rec)
	require.Equal(t, testRequestID, body.RequestID)
	require.Equal(t, "success", body.Status)
	require.Equal(t, 100.50, body.Amount)
	require.NotNil(t, body.CompletedAt)
	require.True(t, completed.Equal(*body.CompletedAt))
}

func TestHandlerStatusUnknown(t *testing.T) {
	transport := &scriptedTransport{
		statusFn: func(_ context.Context, _ string) (submitonce.Record, error) {
			return submitonce.Record{}, submitonce.ErrUnknownRequestID
		},
	}
	handler := httpapi.NewHandler(transport)

	req := httptest.NewRequest(http.MethodGet, "/v1/submissions/"+testRequestID, nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, submitonce.ErrUnknownRequestID.Error(), decodeReply(t, rec).Error)
}

func TestHandlerStatusTransportError(t *testing.T) {
	transport := &scriptedTransport{
		statusFn: func(_ context.Context, _ string) (submitonce.Record, error) {
			return submitonce.Record{}, errors.New("backend exploded")
		},
	}
	handler := httpapi.NewHandler(transport)

	req := httptest.NewRequest(http.MethodGet, "/v1/submissions/"+testRequestID, nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Equal(t, "internal error", decodeReply(t, rec).Error)
}

func TestHandlerHealthz(t *testing.T) {
	handler := httpapi.NewHandler(&scriptedTransport{})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"service":"submitonce","status":"ok"}`, rec.Body.String())
}

func TestNewHandlerNilTransportPanics(t *testing.T) {
	require.Panics(t, func() {
		httpapi.NewHandler(nil)
	})
}
