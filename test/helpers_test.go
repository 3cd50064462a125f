//go:build integration
// +build integration

package test

import (
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/studyclub/authpipe"
	"github.com/studyclub/authpipe/apitest"
)

// newRedis connects to REDIS_ADDR when set, otherwise to a miniredis.
func newRedis(t *testing.T) redis.UniversalClient {
	t.Helper()

	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			t.Fatalf("miniredis run failed: %v", err)
		}
		t.Cleanup(mr.Close)
		addr = mr.Addr()
	}

	rdb := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

func newAPI(t *testing.T) (*apitest.API, *httptest.Server) {
	t.Helper()
	log, _ := test.NewNullLogger()
	api, err := apitest.New(apitest.Config{Logger: log})
	if err != nil {
		t.Fatalf("apitest.New: %v", err)
	}
	srv := httptest.NewServer(api.Handler())
	t.Cleanup(srv.Close)
	return api, srv
}

func quietLogger() logrus.FieldLogger {
	log, _ := test.NewNullLogger()
	return log
}

func newRedisClient(t *testing.T, baseURL string, rdb redis.UniversalClient, prefix string) *authpipe.Client {
	t.Helper()
	cfg := authpipe.DefaultConfig()
	cfg.Transport.BaseURL = baseURL
	cfg.Session.Backend = authpipe.BackendRedis
	cfg.Session.RedisPrefix = prefix

	client, err := authpipe.New().
		WithConfig(cfg).
		WithLogger(quietLogger()).
		WithRedis(rdb).
		WithNavigator(authpipe.NewChannelNavigator(8)).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	t.Cleanup(client.Close)
	return client
}

func newFileClient(t *testing.T, baseURL, path string) *authpipe.Client {
	t.Helper()
	cfg := authpipe.DefaultConfig()
	cfg.Transport.BaseURL = baseURL
	cfg.Session.Backend = authpipe.BackendFile
	cfg.Session.FilePath = path
	cfg.Session.Watch = true

	client, err := authpipe.New().
		WithConfig(cfg).
		WithLogger(quietLogger()).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	t.Cleanup(client.Close)
	return client
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(2 * time.Millisecond)
	}
}
