// Package httpapi carries the submitonce protocol over HTTP. Handler
// exposes any submitonce.Transport as a small JSON API and Client
// implements submitonce.Transport against that API, so a Controller talks
// to a remote ledger exactly as it would to an in-process one.
//
// Status codes map the protocol variants: succeeded is 200, accepted is
// 202 and a transient failure is 503 with a Retry-After header. Invalid
// submissions get 400, unknown request ids 404 and rate-limited clients
// 429. The submission's request id travels in the X-Request-Id header on
// every exchange; Wrap additionally stamps each HTTP request with an
// X-Trace-Id for log correlation.
package httpapi
