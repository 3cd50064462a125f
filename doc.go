// Package authpipe is a client for token-authenticated HTTP APIs. It attaches
// bearer tokens to outbound calls, detects access-token expiry, and resolves
// it with a single refresh shared by every request that hit the expiry at the
// same time.
//
// Requests that fail while a refresh is in flight wait in a FIFO queue and are
// replayed once with the new access token. When the refresh token itself is
// rejected the session is torn down exactly once: the store is cleared and a
// [Navigation] to the login entry point is emitted before any waiting caller
// sees the terminal error.
//
// # Architecture boundaries
//
// authpipe is the public surface: [Client], [Builder], [Config], errors,
// events and metrics. The refresh state machine lives in package refresh,
// per-call orchestration under internal/flows, and persistence under session.
//
// # What this package must NOT do
//
//   - Refresh more than once for a batch of concurrent expiries.
//   - Replay a request before the new tokens are stored.
//   - Treat 403 or an unauthenticated 401 as token expiry.
package authpipe
