// Package submitonce implements an idempotent submission protocol for
// eventually consistent request/response channels.
//
// Typical flow:
//  1. A Controller starts a submission, generating one request id for its
//     whole lifetime, and dispatches it through a Transport.
//  2. The server-side ledger (see the ledger package) keeps exactly one
//     record per request id and replays the recorded outcome for duplicate
//     submissions, so retries are safe even when the channel loses replies.
//  3. Transient failures are retried with exponential backoff; accepted
//     submissions are polled until the delayed outcome lands.
//
// For the HTTP edge that carries the protocol between processes, see the
// httpapi package.
package submitonce
