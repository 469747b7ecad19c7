// Package ledger implements the server side of the submitonce protocol: an
// idempotency ledger that stores exactly one record per request id and
// replays the recorded outcome when a duplicate submission arrives.
//
// Outcomes for new or still-pending submissions come from a Simulator. The
// default RandomSimulator mimics an eventually consistent backend: half the
// submissions succeed immediately, a quarter fail transiently, and a quarter
// are accepted and complete on their own a few seconds later.
//
// Ledger satisfies submitonce.Transport, so a Controller can talk to it
// in-process; the httpapi package carries the same protocol over HTTP.
package ledger
