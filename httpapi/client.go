package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/clearway/submitonce"
)

// maxResponseBody caps how much of a reply the client reads.
const maxResponseBody = 1 << 20

// Client implements submitonce.Transport against a Handler on the far
// side. Delivered protocol decisions, including 503 transient failures,
// come back as a Response; everything else is an error. A 400 surfaces as
// a TerminalError so the controller fails fast instead of retrying, and a
// 404 on Status wraps submitonce.ErrUnknownRequestID.
type Client struct {
	baseURL string
	cfg     ClientConfig
}

var _ submitonce.Transport = (*Client)(nil)

// NewClient builds a client for the API rooted at baseURL, such as
// "http://localhost:8080".
func NewClient(baseURL string, opts ...ClientOption) (*Client, error) {
	trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if trimmed == "" {
		return nil, errors.New("submitonce httpapi: base url is required")
	}
	parsed, err := url.Parse(trimmed)
	if err != nil {
		return nil, fmt.Errorf("submitonce httpapi: parse base url: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("submitonce httpapi: base url %q needs a scheme and host", trimmed)
	}

	var cfg ClientConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	cfg = cfg.withDefaults()

	return &Client{baseURL: trimmed, cfg: cfg}, nil
}

// Submit implements submitonce.Transport.
func (c *Client) Submit(ctx context.Context, req submitonce.SubmissionRequest) (submitonce.Response, error) {
	payload, err := json.Marshal(submissionBody{
		RequestID: req.RequestID,
		Email:     req.Email,
		Amount:    req.Amount,
	})
	if err != nil {
		return submitonce.Response{}, fmt.Errorf("submitonce httpapi: encode submission: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/submissions", bytes.NewReader(payload))
	if err != nil {
		return submitonce.Response{}, fmt.Errorf("submitonce httpapi: build submit request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set(headerRequestID, req.RequestID)

	status, raw, err := c.do(httpReq)
	if err != nil {
		return submitonce.Response{}, fmt.Errorf("submitonce httpapi: submit: %w", err)
	}

	switch status {
	case http.StatusOK:
		var body successBody
		if err := json.Unmarshal(raw, &body); err != nil {
			return submitonce.Response{}, fmt.Errorf("submitonce httpapi: decode success reply: %w", err)
		}

		return body.response(), nil
	case http.StatusAccepted:
		var body acceptedBody
		if err := json.Unmarshal(raw, &body); err != nil {
			return submitonce.Response{}, fmt.Errorf("submitonce httpapi: decode accepted reply: %w", err)
		}

		return body.response(), nil
	case http.StatusServiceUnavailable:
		var body transientBody
		if err := json.Unmarshal(raw, &body); err != nil {
			return submitonce.Response{}, fmt.Errorf("submitonce httpapi: decode transient reply: %w", err)
		}

		return body.response(), nil
	case http.StatusBadRequest:
		return submitonce.Response{}, &submitonce.TerminalError{
			Err: fmt.Errorf("submitonce httpapi: submission rejected: %s", errorMessage(raw)),
		}
	default:
		return submitonce.Response{}, fmt.Errorf("submitonce httpapi: unexpected submit status %d: %s", status, errorMessage(raw))
	}
}

// Status implements submitonce.Transport.
func (c *Client) Status(ctx context.Context, requestID string) (submitonce.Record, error) {
	if strings.TrimSpace(requestID) == "" {
		return submitonce.Record{}, submitonce.ErrRequestIDRequired
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/submissions/"+url.PathEscape(requestID), nil)
	if err != nil {
		return submitonce.Record{}, fmt.Errorf("submitonce httpapi: build status request: %w", err)
	}
	httpReq.Header.Set(headerRequestID, requestID)

	status, raw, err := c.do(httpReq)
	if err != nil {
		return submitonce.Record{}, fmt.Errorf("submitonce httpapi: status: %w", err)
	}

	switch status {
	case http.StatusOK:
		var body recordBody
		if err := json.Unmarshal(raw, &body); err != nil {
			return submitonce.Record{}, fmt.Errorf("submitonce httpapi: decode record reply: %w", err)
		}

		return body.record(), nil
	case http.StatusNotFound:
		return submitonce.Record{}, fmt.Errorf("%w: %s", submitonce.ErrUnknownRequestID, requestID)
	case http.StatusBadRequest:
		return submitonce.Record{}, fmt.Errorf("submitonce httpapi: status rejected: %s", errorMessage(raw))
	default:
		return submitonce.Record{}, fmt.Errorf("submitonce httpapi: unexpected status %d on lookup: %s", status, errorMessage(raw))
	}
}

func (c *Client) do(req *http.Request) (int, []byte, error) {
	resp, err := c.cfg.HTTPClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return 0, nil, fmt.Errorf("read reply: %w", err)
	}

	return resp.StatusCode, raw, nil
}

// errorMessage extracts the error field from a reply, falling back to the
// raw body for replies that did not come from a Handler.
func errorMessage(raw []byte) string {
	var body errorBody
	if err := json.Unmarshal(raw, &body); err == nil && body.Error != "" {
		return body.Error
	}
	msg := strings.TrimSpace(string(raw))
	if msg == "" {
		return "no reply body"
	}

	return msg
}
