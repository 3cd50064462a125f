package endpoint

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-resty/resty/v2"
)

// JSONConfig names the paths and body fields of a JSON auth API.
type JSONConfig struct {
	LoginPath     string
	RefreshPath   string
	UsernameField string
	PasswordField string
	// RequestField carries the refresh token in the refresh request.
	RequestField string
	AccessField  string
	RefreshField string
}

// DefaultJSONConfig matches the common {"refresh": "..."} -> {"access": "..."} shape.
func DefaultJSONConfig() JSONConfig {
	return JSONConfig{
		LoginPath:     "/auth/login",
		RefreshPath:   "/auth/refresh",
		UsernameField: "username",
		PasswordField: "password",
		RequestField:  "refresh",
		AccessField:   "access",
		RefreshField:  "refresh",
	}
}

// JSON implements Refresher and Authenticator over JSON bodies.
type JSON struct {
	client *resty.Client
	cfg    JSONConfig
}

// NewJSON returns a JSON endpoint. Empty config fields fall back to
// DefaultJSONConfig.
func NewJSON(client *resty.Client, cfg JSONConfig) *JSON {
	def := DefaultJSONConfig()
	if cfg.LoginPath == "" {
		cfg.LoginPath = def.LoginPath
	}
	if cfg.RefreshPath == "" {
		cfg.RefreshPath = def.RefreshPath
	}
	if cfg.UsernameField == "" {
		cfg.UsernameField = def.UsernameField
	}
	if cfg.PasswordField == "" {
		cfg.PasswordField = def.PasswordField
	}
	if cfg.RequestField == "" {
		cfg.RequestField = def.RequestField
	}
	if cfg.AccessField == "" {
		cfg.AccessField = def.AccessField
	}
	if cfg.RefreshField == "" {
		cfg.RefreshField = def.RefreshField
	}
	if client == nil {
		client = resty.New()
	}
	return &JSON{client: client, cfg: cfg}
}

// Refresh posts the refresh token. 401 and 403 mean the token was rejected,
// 400 means the request was malformed, anything else is unavailable.
func (e *JSON) Refresh(ctx context.Context, refreshToken string) (Tokens, error) {
	resp, err := e.client.R().
		SetContext(ctx).
		SetBody(map[string]string{e.cfg.RequestField: refreshToken}).
		Post(e.cfg.RefreshPath)
	if err != nil {
		return Tokens{}, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	switch code := resp.StatusCode(); {
	case code >= 200 && code < 300:
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return Tokens{}, fmt.Errorf("%w: status %d", ErrTokenRejected, code)
	case code == http.StatusBadRequest:
		return Tokens{}, fmt.Errorf("%w: status %d", ErrMalformed, code)
	default:
		return Tokens{}, fmt.Errorf("%w: status %d", ErrUnavailable, code)
	}

	tokens, err := e.decode(resp.Body())
	if err != nil {
		return Tokens{}, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	if tokens.RefreshToken == "" {
		tokens.RefreshToken = refreshToken
	}
	return tokens, nil
}

// Login posts credentials and returns the issued pair.
func (e *JSON) Login(ctx context.Context, username, password string) (Tokens, error) {
	resp, err := e.client.R().
		SetContext(ctx).
		SetBody(map[string]string{
			e.cfg.UsernameField: username,
			e.cfg.PasswordField: password,
		}).
		Post(e.cfg.LoginPath)
	if err != nil {
		return Tokens{}, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	switch code := resp.StatusCode(); {
	case code >= 200 && code < 300:
	case code == http.StatusUnauthorized || code == http.StatusBadRequest || code == http.StatusForbidden:
		return Tokens{}, ErrInvalidCredentials
	default:
		return Tokens{}, fmt.Errorf("%w: status %d", ErrUnavailable, code)
	}

	tokens, err := e.decode(resp.Body())
	if err != nil {
		return Tokens{}, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	if tokens.RefreshToken == "" {
		return Tokens{}, fmt.Errorf("%w: login response has no %q field", ErrUnavailable, e.cfg.RefreshField)
	}
	return tokens, nil
}

func (e *JSON) decode(body []byte) (Tokens, error) {
	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		return Tokens{}, fmt.Errorf("decode token response: %w", err)
	}
	access, _ := payload[e.cfg.AccessField].(string)
	if access == "" {
		return Tokens{}, fmt.Errorf("token response has no %q field", e.cfg.AccessField)
	}
	refresh, _ := payload[e.cfg.RefreshField].(string)
	return Tokens{AccessToken: access, RefreshToken: refresh}, nil
}
