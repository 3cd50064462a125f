// Package endpoint talks to the remote login and refresh endpoints.
//
// Two dialects are provided: [JSON] posts a JSON body with configurable field
// names, and [OAuth2] uses the refresh_token and password grants of
// golang.org/x/oauth2. Both classify refresh failures into [ErrTokenRejected],
// [ErrMalformed] and [ErrUnavailable]; only the first two end a session.
package endpoint
