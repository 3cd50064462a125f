package test

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/studyclub/authpipe"
	"github.com/studyclub/authpipe/transport"
)

// ExampleNew demonstrates client construction with a Redis-backed session.
func ExampleNew() {
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:6379"})

	cfg := authpipe.DefaultConfig()
	cfg.Transport.BaseURL = "https://api.example.com"
	cfg.Session.Backend = authpipe.BackendRedis
	cfg.Refresh.ProactiveEnabled = true

	client, _ := authpipe.New().
		WithConfig(cfg).
		WithRedis(rdb).
		Build()
	_ = client
}

// ExampleClient_Do shows a request whose teardown should return the user to
// the page that made it.
func ExampleClient_Do() {
	var client *authpipe.Client
	ctx := authpipe.WithReturnPath(context.Background(), "/teams/4")

	resp, err := client.Do(ctx, transport.Request{Method: "GET", Path: "/api/teams/4"})
	switch {
	case errors.Is(err, authpipe.ErrSessionTerminated):
		// The store is empty and a navigation to the login page was emitted.
	case err != nil:
		var status *authpipe.StatusError
		if errors.As(err, &status) {
			fmt.Println(status.StatusCode)
		}
	default:
		_ = resp
	}
}

// ExampleClient_MetricsSnapshot shows how to read in-process metrics counters.
func ExampleClient_MetricsSnapshot() {
	var client *authpipe.Client
	snapshot := client.MetricsSnapshot()
	_ = snapshot.Counters[authpipe.MetricRefreshStarted]
}
