// Package refresh implements single-flight token refresh with a FIFO waiter
// queue.
//
// # State machine
//
// A [Coordinator] is either [Idle] or [Refreshing]. The first caller that
// reports an expired access token while Idle moves it to Refreshing and runs
// the one refresh call. Callers arriving while Refreshing are appended to the
// waiter queue and block on a one-shot channel; they make no network call.
//
// When the refresh call returns, the coordinator goes back to Idle and
// drains the queue:
//
//   - success: every waiter is replayed (in FIFO start order, concurrently),
//     then the triggering request is replayed on the caller's goroutine.
//   - terminal failure: teardown runs once, then every waiter and the
//     trigger receive the same error.
//   - other failure: every waiter and the trigger receive the error; no
//     teardown, credentials are left as they were.
//
// The refresh call runs on a context detached from the triggering caller's
// cancellation and bounded by [Deps.Timeout].
//
// # What this package must NOT do
//
//   - Hold session state or talk to the network itself; both are injected.
//   - Use package-level state. Each client owns its own Coordinator.
package refresh
