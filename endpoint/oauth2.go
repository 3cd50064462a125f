package endpoint

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
)

// OAuth2 implements Refresher with the refresh_token grant and
// Authenticator with the resource owner password grant.
type OAuth2 struct {
	config     *oauth2.Config
	httpClient *http.Client
}

// NewOAuth2 wraps cfg. httpClient may be nil to use http.DefaultClient.
func NewOAuth2(cfg *oauth2.Config, httpClient *http.Client) *OAuth2 {
	return &OAuth2{config: cfg, httpClient: httpClient}
}

func (o *OAuth2) context(ctx context.Context) context.Context {
	if o.httpClient == nil {
		return ctx
	}
	return context.WithValue(ctx, oauth2.HTTPClient, o.httpClient)
}

// Refresh runs the refresh_token grant.
func (o *OAuth2) Refresh(ctx context.Context, refreshToken string) (Tokens, error) {
	if o == nil || o.config == nil {
		return Tokens{}, fmt.Errorf("%w: oauth2 config is nil", ErrUnavailable)
	}
	src := o.config.TokenSource(o.context(ctx), &oauth2.Token{RefreshToken: refreshToken})
	tok, err := src.Token()
	if err != nil {
		return Tokens{}, classifyOAuth2(err)
	}

	out := Tokens{AccessToken: tok.AccessToken, RefreshToken: tok.RefreshToken}
	if out.AccessToken == "" {
		return Tokens{}, fmt.Errorf("%w: token response has no access_token", ErrUnavailable)
	}
	if out.RefreshToken == "" {
		out.RefreshToken = refreshToken
	}
	return out, nil
}

// Login runs the password grant.
func (o *OAuth2) Login(ctx context.Context, username, password string) (Tokens, error) {
	if o == nil || o.config == nil {
		return Tokens{}, fmt.Errorf("%w: oauth2 config is nil", ErrUnavailable)
	}
	tok, err := o.config.PasswordCredentialsToken(o.context(ctx), username, password)
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) && (re.ErrorCode == "invalid_grant" || statusOf(re) == http.StatusUnauthorized) {
			return Tokens{}, ErrInvalidCredentials
		}
		return Tokens{}, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	if tok.AccessToken == "" || tok.RefreshToken == "" {
		return Tokens{}, fmt.Errorf("%w: password grant returned incomplete tokens", ErrUnavailable)
	}
	return Tokens{AccessToken: tok.AccessToken, RefreshToken: tok.RefreshToken}, nil
}

// classifyOAuth2 maps RFC 6749 section 5.2 error codes.
func classifyOAuth2(err error) error {
	var re *oauth2.RetrieveError
	if !errors.As(err, &re) {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	switch re.ErrorCode {
	case "invalid_grant", "invalid_token":
		return fmt.Errorf("%w: %s", ErrTokenRejected, re.ErrorCode)
	case "invalid_request", "unsupported_grant_type":
		return fmt.Errorf("%w: %s", ErrMalformed, re.ErrorCode)
	}
	switch statusOf(re) {
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: status %d", ErrTokenRejected, statusOf(re))
	case http.StatusBadRequest:
		return fmt.Errorf("%w: status %d", ErrMalformed, statusOf(re))
	}
	return fmt.Errorf("%w: %w", ErrUnavailable, err)
}

func statusOf(re *oauth2.RetrieveError) int {
	if re == nil || re.Response == nil {
		return 0
	}
	return re.Response.StatusCode
}
