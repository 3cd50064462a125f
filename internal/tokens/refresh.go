// Package tokens mints and parses the opaque rotating refresh tokens issued
// by the fake API. A token is base64url(sessionID || secret); the server
// stores only sha256(secret).
package tokens

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
)

const (
	sessionIDSize    = 16
	secretSize       = 32
	refreshTokenSize = sessionIDSize + secretSize
)

// ErrMalformed reports a token that is not structurally a refresh token.
var ErrMalformed = errors.New("malformed refresh token")

// SessionID identifies one server-side login.
type SessionID [sessionIDSize]byte

// Secret is the rotating part of a refresh token.
type Secret [secretSize]byte

func NewSessionID() (SessionID, error) {
	var sid SessionID
	_, err := rand.Read(sid[:])
	return sid, err
}

func (s SessionID) String() string {
	return base64.RawURLEncoding.EncodeToString(s[:])
}

func NewSecret() (Secret, error) {
	var secret Secret
	_, err := rand.Read(secret[:])
	return secret, err
}

// Hash is what the server persists.
func (s Secret) Hash() [32]byte {
	return sha256.Sum256(s[:])
}

func Encode(sid SessionID, secret Secret) string {
	var raw [refreshTokenSize]byte
	copy(raw[:sessionIDSize], sid[:])
	copy(raw[sessionIDSize:], secret[:])
	return base64.RawURLEncoding.EncodeToString(raw[:])
}

// Decode splits token into its session ID and secret.
func Decode(token string) (SessionID, Secret, error) {
	var (
		sid    SessionID
		secret Secret
	)
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return sid, secret, ErrMalformed
	}
	if len(raw) != refreshTokenSize {
		return sid, secret, ErrMalformed
	}
	copy(sid[:], raw[:sessionIDSize])
	copy(secret[:], raw[sessionIDSize:])
	return sid, secret, nil
}
