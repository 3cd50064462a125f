// Package middleware guards HTTP handlers with bearer access tokens.
//
// # Guards
//
//   - [Guard] wraps any [Verifier].
//   - [RequireJWTOnly] verifies signature and expiry with a jwt.Manager.
//   - [RequireStrict] additionally asks a session check callback.
//
// Rejected requests get 401 with a WWW-Authenticate challenge, which is the
// signal an authpipe client treats as access-token expiry.
//
// # What this package must NOT do
//
//   - Answer 403 for an invalid token (clients would not refresh).
//   - Mint tokens.
package middleware
