//go:build integration
// +build integration

package test

import (
	"context"
	"net/http"
	"sync"
	"testing"
)

func TestRefreshRaceSingleRefreshRedisBackend(t *testing.T) {
	ctx := context.Background()
	rdb := newRedis(t)
	api, srv := newAPI(t)

	client := newRedisClient(t, srv.URL, rdb, "race")
	if err := client.Login(ctx, "alice", "wonderland"); err != nil {
		t.Fatalf("Login: %v", err)
	}

	const workers = 24
	api.ExpireAccessTokens()
	release := api.HoldRefresh()

	start := make(chan struct{})
	results := make(chan int, workers)
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			<-start
			resp, err := client.Get(ctx, "/api/whoami")
			if err != nil {
				results <- 0
				return
			}
			results <- resp.StatusCode
		}()
	}

	close(start)
	waitFor(t, "all requests queued", func() bool {
		return api.RefreshCalls() == 1 && client.Waiting() == workers-1
	})
	release()
	wg.Wait()
	close(results)

	for status := range results {
		if status != http.StatusOK {
			t.Fatalf("expected every request to succeed after refresh, got %d", status)
		}
	}
	if got := api.RefreshCalls(); got != 1 {
		t.Fatalf("expected exactly one refresh call, got %d", got)
	}
}
