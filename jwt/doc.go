// Package jwt issues and verifies access tokens for the fake API and reads
// unverified expiry hints for the client's proactive refresh.
package jwt
