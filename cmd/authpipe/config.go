package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/studyclub/authpipe"
)

// cliConfig is the file/env shape of the client configuration.
type cliConfig struct {
	Logging   loggingConfig     `mapstructure:"logging"`
	BaseURL   string            `mapstructure:"base_url"`
	Timeout   time.Duration     `mapstructure:"timeout"`
	UserAgent string            `mapstructure:"user_agent"`
	Headers   map[string]string `mapstructure:"headers"`
	Session   sessionConfig     `mapstructure:"session"`
	Refresh   refreshConfig     `mapstructure:"refresh"`
	Login     loginConfig       `mapstructure:"login"`
	Teardown  teardownConfig    `mapstructure:"teardown"`
	Events    eventsConfig      `mapstructure:"events"`
	Metrics   metricsConfig     `mapstructure:"metrics"`
}

type loggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type sessionConfig struct {
	Backend     string        `mapstructure:"backend"`
	File        string        `mapstructure:"file"`
	Watch       bool          `mapstructure:"watch"`
	RedisAddr   string        `mapstructure:"redis_addr"`
	RedisPrefix string        `mapstructure:"redis_prefix"`
	RedisTTL    time.Duration `mapstructure:"redis_ttl"`
}

type refreshConfig struct {
	Mode         string        `mapstructure:"mode"`
	Endpoint     string        `mapstructure:"endpoint"`
	Timeout      time.Duration `mapstructure:"timeout"`
	RequestField string        `mapstructure:"request_field"`
	AccessField  string        `mapstructure:"access_field"`
	RefreshField string        `mapstructure:"refresh_field"`
	Proactive    bool          `mapstructure:"proactive"`
	Skew         time.Duration `mapstructure:"skew"`
	OAuth2       oauth2Config  `mapstructure:"oauth2"`
}

type oauth2Config struct {
	TokenURL     string   `mapstructure:"token_url"`
	ClientID     string   `mapstructure:"client_id"`
	ClientSecret string   `mapstructure:"client_secret"`
	Scopes       []string `mapstructure:"scopes"`
}

type loginConfig struct {
	Endpoint      string `mapstructure:"endpoint"`
	UsernameField string `mapstructure:"username_field"`
	PasswordField string `mapstructure:"password_field"`
}

type teardownConfig struct {
	LoginPath   string `mapstructure:"login_path"`
	ReturnParam string `mapstructure:"return_param"`
}

type eventsConfig struct {
	Enabled    bool `mapstructure:"enabled"`
	BufferSize int  `mapstructure:"buffer_size"`
}

type metricsConfig struct {
	Enabled    bool `mapstructure:"enabled"`
	Histograms bool `mapstructure:"histograms"`
}

// loadConfig reads config from file, AUTHPIPE_* environment and the
// persistent flags, then sets up logging.
func loadConfig(configFile string, flags *pflag.FlagSet) (*cliConfig, *logrus.Logger, error) {
	v := viper.New()
	setupViperConfig(v, configFile)

	if flags != nil {
		if f := flags.Lookup("base-url"); f != nil {
			if err := v.BindPFlag("base_url", f); err != nil {
				return nil, nil, fmt.Errorf("bind base-url flag: %w", err)
			}
		}
	}

	config, err := readAndUnmarshalConfig(v)
	if err != nil {
		return nil, nil, err
	}

	log, err := setupLogging(config, v)
	if err != nil {
		return nil, nil, err
	}
	return config, log, nil
}

func setupViperConfig(v *viper.Viper, configFile string) {
	v.SetConfigName("authpipe")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if dir, err := os.UserConfigDir(); err == nil {
		v.AddConfigPath(filepath.Join(dir, "authpipe"))
	}
	v.AddConfigPath("/etc/authpipe")

	if len(configFile) > 0 {
		v.SetConfigFile(configFile)
	}

	setDefaults(v)

	v.SetEnvPrefix("AUTHPIPE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// setDefaults registers every key so AutomaticEnv can override it during
// Unmarshal.
func setDefaults(v *viper.Viper) {
	d := authpipe.DefaultConfig()

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")

	v.SetDefault("base_url", d.Transport.BaseURL)
	v.SetDefault("timeout", d.Transport.Timeout)
	v.SetDefault("user_agent", d.Transport.UserAgent)
	v.SetDefault("headers", map[string]string{})

	v.SetDefault("session.backend", string(authpipe.BackendFile))
	v.SetDefault("session.file", defaultSessionFile())
	v.SetDefault("session.watch", false)
	v.SetDefault("session.redis_addr", "127.0.0.1:6379")
	v.SetDefault("session.redis_prefix", d.Session.RedisPrefix)
	v.SetDefault("session.redis_ttl", d.Session.RedisTTL)

	v.SetDefault("refresh.mode", string(d.Refresh.Mode))
	v.SetDefault("refresh.endpoint", d.Refresh.Endpoint)
	v.SetDefault("refresh.timeout", d.Refresh.Timeout)
	v.SetDefault("refresh.request_field", d.Refresh.RequestField)
	v.SetDefault("refresh.access_field", d.Refresh.AccessField)
	v.SetDefault("refresh.refresh_field", d.Refresh.RefreshField)
	v.SetDefault("refresh.proactive", d.Refresh.ProactiveEnabled)
	v.SetDefault("refresh.skew", d.Refresh.ProactiveSkew)
	v.SetDefault("refresh.oauth2.token_url", "")
	v.SetDefault("refresh.oauth2.client_id", "")
	v.SetDefault("refresh.oauth2.client_secret", "")
	v.SetDefault("refresh.oauth2.scopes", []string{})

	v.SetDefault("login.endpoint", d.Login.Endpoint)
	v.SetDefault("login.username_field", d.Login.UsernameField)
	v.SetDefault("login.password_field", d.Login.PasswordField)

	v.SetDefault("teardown.login_path", d.Teardown.LoginPath)
	v.SetDefault("teardown.return_param", d.Teardown.ReturnParam)

	v.SetDefault("events.enabled", d.Events.Enabled)
	v.SetDefault("events.buffer_size", d.Events.BufferSize)

	v.SetDefault("metrics.enabled", d.Metrics.Enabled)
	v.SetDefault("metrics.histograms", d.Metrics.EnableLatencyHistograms)
}

func defaultSessionFile() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "authpipe-session.yaml"
	}
	return filepath.Join(dir, "authpipe", "session.yaml")
}

func readAndUnmarshalConfig(v *viper.Viper) (*cliConfig, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// No config file; defaults and environment only.
	}

	var config cliConfig
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	return &config, nil
}

func setupLogging(config *cliConfig, v *viper.Viper) (*logrus.Logger, error) {
	level, err := logrus.ParseLevel(config.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("error parsing log level: %w", err)
	}

	log := logrus.New()
	log.SetOutput(os.Stderr)
	log.SetLevel(level)

	switch strings.ToLower(config.Logging.Format) {
	case "json":
		log.SetFormatter(&logrus.JSONFormatter{})
	case "text", "":
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	default:
		log.WithField("format", config.Logging.Format).Warn("unknown log format")
	}

	if level >= logrus.DebugLevel {
		for key, value := range v.AllSettings() {
			if strings.Contains(key, "secret") {
				continue
			}
			log.Debugf("config %s: %v", key, value)
		}
	}
	return log, nil
}

// clientConfig maps the file shape onto the library configuration.
func (c *cliConfig) clientConfig() authpipe.Config {
	out := authpipe.DefaultConfig()

	out.Transport = authpipe.TransportConfig{
		BaseURL:   c.BaseURL,
		Timeout:   c.Timeout,
		UserAgent: c.UserAgent,
		Headers:   c.Headers,
	}
	out.Session = authpipe.SessionConfig{
		Backend:     authpipe.SessionBackend(c.Session.Backend),
		FilePath:    c.Session.File,
		RedisPrefix: c.Session.RedisPrefix,
		RedisTTL:    c.Session.RedisTTL,
		Watch:       c.Session.Watch,
	}
	out.Refresh = authpipe.RefreshConfig{
		Mode:             authpipe.RefreshMode(c.Refresh.Mode),
		Endpoint:         c.Refresh.Endpoint,
		Timeout:          c.Refresh.Timeout,
		RequestField:     c.Refresh.RequestField,
		AccessField:      c.Refresh.AccessField,
		RefreshField:     c.Refresh.RefreshField,
		ProactiveEnabled: c.Refresh.Proactive,
		ProactiveSkew:    c.Refresh.Skew,
		OAuth2: authpipe.OAuth2Config{
			TokenURL:     c.Refresh.OAuth2.TokenURL,
			ClientID:     c.Refresh.OAuth2.ClientID,
			ClientSecret: c.Refresh.OAuth2.ClientSecret,
			Scopes:       c.Refresh.OAuth2.Scopes,
		},
	}
	out.Login = authpipe.LoginConfig{
		Endpoint:      c.Login.Endpoint,
		UsernameField: c.Login.UsernameField,
		PasswordField: c.Login.PasswordField,
	}
	out.Teardown = authpipe.TeardownConfig{
		LoginPath:   c.Teardown.LoginPath,
		ReturnParam: c.Teardown.ReturnParam,
	}
	out.Events.Enabled = c.Events.Enabled
	out.Events.BufferSize = c.Events.BufferSize
	out.Metrics = authpipe.MetricsConfig{
		Enabled:                 c.Metrics.Enabled,
		EnableLatencyHistograms: c.Metrics.Histograms,
	}
	return out
}
