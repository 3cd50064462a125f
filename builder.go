package authpipe

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"

	"github.com/studyclub/authpipe/endpoint"
	"github.com/studyclub/authpipe/internal/flows"
	"github.com/studyclub/authpipe/jwt"
	"github.com/studyclub/authpipe/refresh"
	"github.com/studyclub/authpipe/session"
	"github.com/studyclub/authpipe/session/filestore"
	"github.com/studyclub/authpipe/session/redisstore"
	"github.com/studyclub/authpipe/transport"
)

// Builder assembles a Client. A Builder is single-use.
type Builder struct {
	config Config
	log    logrus.FieldLogger
	redis  redis.UniversalClient

	store         *session.Store
	transport     transport.Transport
	refresher     endpoint.Refresher
	authenticator endpoint.Authenticator
	navigator     Navigator
	eventSink     EventSink

	built bool
}

// New returns a Builder seeded with DefaultConfig.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithLogger sets the logger. Defaults to logrus.StandardLogger().
func (b *Builder) WithLogger(log logrus.FieldLogger) *Builder {
	b.log = log
	return b
}

// WithRedis supplies the client used by the redis session backend.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithStore uses an existing session store and ignores Session config.
func (b *Builder) WithStore(store *session.Store) *Builder {
	b.store = store
	return b
}

// WithTransport replaces the default resty transport.
func (b *Builder) WithTransport(t transport.Transport) *Builder {
	b.transport = t
	return b
}

// WithRefresher replaces the refresher derived from Refresh config.
func (b *Builder) WithRefresher(r endpoint.Refresher) *Builder {
	b.refresher = r
	return b
}

// WithAuthenticator replaces the authenticator derived from config.
func (b *Builder) WithAuthenticator(a endpoint.Authenticator) *Builder {
	b.authenticator = a
	return b
}

// WithNavigator sets where teardown navigations go. Defaults to a logger.
func (b *Builder) WithNavigator(n Navigator) *Builder {
	b.navigator = n
	return b
}

// WithEventSink sets the lifecycle event sink and enables events.
func (b *Builder) WithEventSink(sink EventSink) *Builder {
	b.eventSink = sink
	b.config.Events.Enabled = sink != nil
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and returns a ready Client. With the
// file backend any persisted session is loaded before Build returns.
func (b *Builder) Build() (*Client, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log := b.log
	if log == nil {
		log = logrus.StandardLogger()
	}
	log = log.WithField("component", "authpipe")

	c := &Client{
		config:    cfg,
		log:       log,
		navigator: b.navigator,
		metrics:   NewMetrics(cfg.Metrics),
	}
	if c.navigator == nil {
		c.navigator = logNavigator{log: log}
	}

	// -------- SESSION STORE --------
	var fileBackend *filestore.Store
	if b.store != nil {
		c.store = b.store
	} else {
		var backend session.Backend
		switch cfg.Session.Backend {
		case BackendFile:
			fileBackend = filestore.New(cfg.Session.FilePath)
			backend = fileBackend
		case BackendRedis:
			if b.redis == nil {
				return nil, errors.New("redis client required for redis session backend")
			}
			backend = redisstore.New(b.redis, cfg.Session.RedisPrefix, cfg.Session.RedisTTL)
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		store, err := session.Open(ctx, backend, log)
		cancel()
		if err != nil {
			return nil, err
		}
		c.store = store
	}

	// -------- TRANSPORT --------
	c.transport = b.transport
	var rt *transport.Resty
	if r, ok := c.transport.(*transport.Resty); ok {
		rt = r
	}
	if c.transport == nil {
		rt = transport.NewResty(transport.Config{
			BaseURL:   cfg.Transport.BaseURL,
			Timeout:   cfg.Transport.Timeout,
			UserAgent: cfg.Transport.UserAgent,
			Headers:   cfg.Transport.Headers,
		})
		c.transport = rt
	}
	endpointClient := func() *transport.Resty {
		if rt != nil {
			return rt
		}
		return transport.NewResty(transport.Config{
			BaseURL:   cfg.Transport.BaseURL,
			Timeout:   cfg.Transport.Timeout,
			UserAgent: cfg.Transport.UserAgent,
		})
	}

	// -------- AUTH ENDPOINTS --------
	c.refresher = b.refresher
	c.authenticator = b.authenticator
	if c.refresher == nil || c.authenticator == nil {
		var ep interface {
			endpoint.Refresher
			endpoint.Authenticator
		}
		switch cfg.Refresh.Mode {
		case RefreshOAuth2:
			hc := endpointClient().Client().GetClient()
			ep = endpoint.NewOAuth2(&oauth2.Config{
				ClientID:     cfg.Refresh.OAuth2.ClientID,
				ClientSecret: cfg.Refresh.OAuth2.ClientSecret,
				Scopes:       cfg.Refresh.OAuth2.Scopes,
				Endpoint:     oauth2.Endpoint{TokenURL: cfg.Refresh.OAuth2.TokenURL},
			}, hc)
		default:
			ep = endpoint.NewJSON(endpointClient().Client(), endpoint.JSONConfig{
				LoginPath:     cfg.Login.Endpoint,
				RefreshPath:   cfg.Refresh.Endpoint,
				UsernameField: cfg.Login.UsernameField,
				PasswordField: cfg.Login.PasswordField,
				RequestField:  cfg.Refresh.RequestField,
				AccessField:   cfg.Refresh.AccessField,
				RefreshField:  cfg.Refresh.RefreshField,
			})
		}
		if c.refresher == nil {
			c.refresher = ep
		}
		if c.authenticator == nil {
			c.authenticator = ep
		}
	}

	// -------- FLOWS --------
	execDeps := flows.ExecuteDeps{
		AccessToken: c.store.AccessToken,
		Transport:   c.transport,
	}
	if cfg.Refresh.ProactiveEnabled {
		skew := cfg.Refresh.ProactiveSkew
		execDeps.ExpiresSoon = func(token string) bool {
			return jwt.ExpiresWithin(token, time.Now(), skew)
		}
	}
	c.flowDeps = flows.Deps{
		Execute: execDeps,
		Refresh: flows.RefreshDeps{
			Store:     c.store,
			Refresher: c.refresher,
			Warn: func(format string, args ...any) {
				log.Warnf(format, args...)
			},
		},
		Login: flows.LoginDeps{
			Authenticator: c.authenticator,
			Store:         c.store,
		},
	}

	coord, err := refresh.New(refresh.Deps[flows.Attempt, *transport.Response]{
		Refresh:      c.refreshSession,
		Terminal:     IsTerminal,
		Replay:       c.replay,
		Teardown:     c.teardownAfterRefresh,
		CurrentToken: c.store.AccessToken,
		Timeout:      cfg.Refresh.Timeout,
		Observer:     coordinatorObserver{c: c},
	})
	if err != nil {
		return nil, err
	}
	c.coord = coord

	c.events = newEventDispatcher(cfg.Events, b.eventSink)

	// -------- SESSION FILE WATCH --------
	if cfg.Session.Watch && fileBackend != nil {
		ctx, cancel := context.WithCancel(context.Background())
		err := fileBackend.Watch(ctx, log, func() {
			if err := c.store.Reload(ctx); err != nil {
				log.WithError(err).Warn("session reload failed")
				return
			}
			log.Debug("session reloaded from file")
		})
		if err != nil {
			cancel()
			c.events.Close()
			return nil, err
		}
		c.stopWatch = cancel
	}

	b.built = true

	return c, nil
}
