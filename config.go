package authpipe

import (
	"errors"
	"strings"
	"time"
)

// Config defines the full client configuration.
//
// Config values are copied by Builder.WithConfig; mutating the original
// afterwards does not affect a built Client.
type Config struct {
	Transport TransportConfig
	Session   SessionConfig
	Refresh   RefreshConfig
	Login     LoginConfig
	Teardown  TeardownConfig
	Events    EventsConfig
	Metrics   MetricsConfig
}

/*
====================================
TRANSPORT CONFIG
====================================
*/

// TransportConfig configures the default resty transport.
type TransportConfig struct {
	BaseURL   string
	Timeout   time.Duration
	UserAgent string
	Headers   map[string]string
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionBackend names a durable session backend.
type SessionBackend string

const (
	// BackendMemory keeps the session in process memory only.
	BackendMemory SessionBackend = "memory"
	// BackendFile persists the session as a YAML file.
	BackendFile SessionBackend = "file"
	// BackendRedis persists the session under Redis keys.
	BackendRedis SessionBackend = "redis"
)

// SessionConfig selects and configures session persistence.
type SessionConfig struct {
	Backend     SessionBackend
	FilePath    string
	RedisPrefix string
	RedisTTL    time.Duration
	// Watch reloads the in-memory session when the session file changes on
	// disk. File backend only.
	Watch bool
}

/*
====================================
REFRESH CONFIG
====================================
*/

// RefreshMode selects the refresh endpoint protocol.
type RefreshMode string

const (
	// RefreshJSON posts {"refresh": "<token>"} and reads {"access", "refresh"}.
	RefreshJSON RefreshMode = "json"
	// RefreshOAuth2 uses the OAuth2 refresh_token grant.
	RefreshOAuth2 RefreshMode = "oauth2"
)

// RefreshConfig configures the refresh endpoint and refresh behavior.
type RefreshConfig struct {
	Mode         RefreshMode
	Endpoint     string
	Timeout      time.Duration
	RequestField string
	AccessField  string
	RefreshField string

	// ProactiveEnabled treats a JWT access token whose exp falls within
	// ProactiveSkew as already expired.
	ProactiveEnabled bool
	ProactiveSkew    time.Duration

	OAuth2 OAuth2Config
}

// OAuth2Config configures RefreshOAuth2 mode. Login then uses the password
// grant against the same token URL.
type OAuth2Config struct {
	TokenURL     string
	ClientID     string
	ClientSecret string
	Scopes       []string
}

/*
====================================
LOGIN CONFIG
====================================
*/

// LoginConfig configures the JSON login endpoint.
type LoginConfig struct {
	Endpoint      string
	UsernameField string
	PasswordField string
}

/*
====================================
TEARDOWN CONFIG
====================================
*/

// TeardownConfig configures the navigation emitted on session teardown.
type TeardownConfig struct {
	LoginPath   string
	ReturnParam string
}

// EventsConfig configures the asynchronous lifecycle event dispatcher.
type EventsConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig defines the in-process metrics settings.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// DefaultConfig returns the configuration used when Builder.WithConfig is
// not called.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		Transport: TransportConfig{
			Timeout:   30 * time.Second,
			UserAgent: "authpipe",
		},
		Session: SessionConfig{
			Backend:     BackendMemory,
			RedisPrefix: "authpipe",
		},
		Refresh: RefreshConfig{
			Mode:          RefreshJSON,
			Endpoint:      "/auth/refresh",
			Timeout:       10 * time.Second,
			RequestField:  "refresh",
			AccessField:   "access",
			RefreshField:  "refresh",
			ProactiveSkew: 30 * time.Second,
		},
		Login: LoginConfig{
			Endpoint:      "/auth/login",
			UsernameField: "username",
			PasswordField: "password",
		},
		Teardown: TeardownConfig{
			LoginPath:   "/login",
			ReturnParam: "next",
		},
		Events: EventsConfig{
			Enabled:    false,
			BufferSize: 256,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 true,
			EnableLatencyHistograms: false,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	if cfg.Transport.Headers != nil {
		out.Transport.Headers = make(map[string]string, len(cfg.Transport.Headers))
		for k, v := range cfg.Transport.Headers {
			out.Transport.Headers[k] = v
		}
	}
	if cfg.Refresh.OAuth2.Scopes != nil {
		out.Refresh.OAuth2.Scopes = append([]string(nil), cfg.Refresh.OAuth2.Scopes...)
	}
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate checks the configuration for contradictions and missing values.
func (c *Config) Validate() error {
	// Transport
	if c.Transport.Timeout < 0 {
		return errors.New("Transport Timeout must be >= 0")
	}

	// Session
	switch c.Session.Backend {
	case BackendMemory:
	case BackendFile:
		if strings.TrimSpace(c.Session.FilePath) == "" {
			return errors.New("Session FilePath required for file backend")
		}
	case BackendRedis:
		if strings.TrimSpace(c.Session.RedisPrefix) == "" {
			return errors.New("Session RedisPrefix required for redis backend")
		}
		if c.Session.RedisTTL < 0 {
			return errors.New("Session RedisTTL must be >= 0")
		}
	default:
		return errors.New("unsupported Session Backend")
	}
	if c.Session.Watch && c.Session.Backend != BackendFile {
		return errors.New("Session Watch requires file backend")
	}

	// Refresh
	if c.Refresh.Timeout <= 0 {
		return errors.New("Refresh Timeout must be > 0")
	}
	if c.Refresh.ProactiveEnabled && c.Refresh.ProactiveSkew <= 0 {
		return errors.New("Refresh ProactiveSkew must be > 0 when ProactiveEnabled is true")
	}
	switch c.Refresh.Mode {
	case RefreshJSON:
		if strings.TrimSpace(c.Refresh.Endpoint) == "" {
			return errors.New("Refresh Endpoint required for json mode")
		}
		if c.Refresh.RequestField == "" || c.Refresh.AccessField == "" || c.Refresh.RefreshField == "" {
			return errors.New("Refresh field names must be non-empty")
		}
		if c.Login.UsernameField == "" || c.Login.PasswordField == "" {
			return errors.New("Login field names must be non-empty")
		}
	case RefreshOAuth2:
		if strings.TrimSpace(c.Refresh.OAuth2.TokenURL) == "" {
			return errors.New("Refresh OAuth2 TokenURL required for oauth2 mode")
		}
		if strings.TrimSpace(c.Refresh.OAuth2.ClientID) == "" {
			return errors.New("Refresh OAuth2 ClientID required for oauth2 mode")
		}
	default:
		return errors.New("unsupported Refresh Mode")
	}

	// Teardown
	if !strings.HasPrefix(c.Teardown.LoginPath, "/") {
		return errors.New("Teardown LoginPath must start with /")
	}
	if strings.TrimSpace(c.Teardown.ReturnParam) == "" {
		return errors.New("Teardown ReturnParam must be non-empty")
	}

	// Events
	if c.Events.Enabled && c.Events.BufferSize <= 0 {
		return errors.New("Events BufferSize must be > 0")
	}

	if c.Metrics.EnableLatencyHistograms && !c.Metrics.Enabled {
		return errors.New("Metrics EnableLatencyHistograms requires Metrics Enabled")
	}

	return nil
}
