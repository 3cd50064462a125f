// Package apitest runs a small token-issuing API in process. It issues HS256
// access tokens and rotating opaque refresh tokens, and exposes controls to
// expire access tokens, revoke sessions, hold refresh calls and force refresh
// failures. Tests and the authpipe fakeapi command use it as the remote API.
package apitest
