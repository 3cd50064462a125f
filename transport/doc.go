// Package transport defines the request descriptor passed through the
// authenticated pipeline and the single-round-trip Transport contract.
//
// The default implementation is backed by resty. It attaches a bearer token
// only when one is supplied, so anonymous calls carry no Authorization header.
//
// # What this package must NOT do
//
//   - Read or mutate session state.
//   - Retry requests or interpret 401 responses.
package transport
