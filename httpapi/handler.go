package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/clearway/submitonce"
)

const (
	headerRequestID = "X-Request-Id"
	headerTraceID   = "X-Trace-Id"

	serviceName = "submitonce"

	// maxSubmissionBody caps the submit request body.
	maxSubmissionBody = 1 << 20
)

// Handler serves the submission API over a Transport:
//
//	POST /v1/submissions          submit, idempotent per request id
//	GET  /v1/submissions/{id}     record lookup
//	GET  /healthz                 liveness
type Handler struct {
	transport submitonce.Transport
	cfg       HandlerConfig
	mux       *http.ServeMux
}

var _ http.Handler = (*Handler)(nil)

// NewHandler wraps a transport, usually a *ledger.Ledger. It panics when
// transport is nil.
func NewHandler(transport submitonce.Transport, opts ...HandlerOption) *Handler {
	if transport == nil {
		panic("submitonce httpapi: nil Transport")
	}

	var cfg HandlerConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	cfg = cfg.withDefaults()

	h := &Handler{transport: transport, cfg: cfg}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/submissions", h.handleSubmit)
	mux.HandleFunc("GET /v1/submissions/{requestID}", h.handleStatus)
	mux.HandleFunc("GET /healthz", h.handleHealthz)
	h.mux = mux

	return h
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var body submissionBody
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxSubmissionBody))
	if err := dec.Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "malformed submission body"})

		return
	}

	req := submitonce.SubmissionRequest{
		RequestID: strings.TrimSpace(body.RequestID),
		Email:     body.Email,
		Amount:    body.Amount,
	}
	if req.RequestID == "" {
		req.RequestID = strings.TrimSpace(r.Header.Get(headerRequestID))
	}
	w.Header().Set(headerRequestID, req.RequestID)

	resp, err := h.transport.Submit(r.Context(), req)
	if err != nil {
		if isValidationError(err) {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})

			return
		}
		h.cfg.Logger.Error("submission submit failed", "request_id", req.RequestID, "error", err)
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal error"})

		return
	}

	switch resp.Kind {
	case submitonce.KindSucceeded:
		writeJSON(w, http.StatusOK, successBodyOf(resp))
	case submitonce.KindAccepted:
		writeJSON(w, http.StatusAccepted, acceptedBodyOf(resp))
	case submitonce.KindTransientFailure:
		if seconds := retryAfterSeconds(resp.RetryAfter); seconds > 0 {
			w.Header().Set("Retry-After", strconv.FormatInt(seconds, 10))
		}
		writeJSON(w, http.StatusServiceUnavailable, transientBodyOf(resp))
	default:
		h.cfg.Logger.Error("submission response kind unknown", "request_id", req.RequestID, "kind", string(resp.Kind))
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal error"})
	}
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	requestID := strings.TrimSpace(r.PathValue("requestID"))
	w.Header().Set(headerRequestID, requestID)

	rec, err := h.transport.Status(r.Context(), requestID)
	if err != nil {
		switch {
		case errors.Is(err, submitonce.ErrUnknownRequestID):
			writeJSON(w, http.StatusNotFound, errorBody{Error: err.Error()})
		case errors.Is(err, submitonce.ErrRequestIDRequired), errors.Is(err, submitonce.ErrRequestIDInvalid):
			writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
		default:
			h.cfg.Logger.Error("submission status failed", "request_id", requestID, "error", err)
			writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal error"})
		}

		return
	}

	writeJSON(w, http.StatusOK, recordBodyOf(rec))
}

func (h *Handler) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"service": serviceName,
		"status":  "ok",
	})
}

func isValidationError(err error) bool {
	return errors.Is(err, submitonce.ErrEmailRequired) ||
		errors.Is(err, submitonce.ErrEmailInvalid) ||
		errors.Is(err, submitonce.ErrAmountInvalid) ||
		errors.Is(err, submitonce.ErrRequestIDRequired) ||
		errors.Is(err, submitonce.ErrRequestIDInvalid)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(true)
	_ = enc.Encode(body)
}
