// Package flows contains the pure orchestration steps behind Client
// operations: executing one attempt, running one refresh, logging in.
//
// Each Run* function takes a typed dependency struct and returns a classified
// result. The root package maps results to its public errors, metrics and
// events.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import authpipe (to avoid import cycles).
//   - Decide about teardown; it only classifies.
package flows
