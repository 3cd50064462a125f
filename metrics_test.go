package authpipe

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/studyclub/authpipe/endpoint"
	"github.com/studyclub/authpipe/session"
)

func TestMetricsDisabledNoIncrement(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: false})
	m.Inc(MetricRefreshStarted)

	if got := m.Value(MetricRefreshStarted); got != 0 {
		t.Fatalf("expected 0, got %d", got)
	}
	if snap := m.Snapshot(); len(snap.Counters) != 0 {
		t.Fatalf("expected empty snapshot")
	}
}

func TestMetricsConcurrentIncrementSafe(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true})

	const goroutines = 32
	const perG = 4000

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < perG; j++ {
				m.Inc(MetricRequestReplayed)
			}
		}()
	}
	wg.Wait()

	want := uint64(goroutines * perG)
	if got := m.Value(MetricRequestReplayed); got != want {
		t.Fatalf("expected %d, got %d", want, got)
	}
}

func TestMetricsHistogramBucketCorrectness(t *testing.T) {
	m := NewMetrics(MetricsConfig{
		Enabled:                 true,
		EnableLatencyHistograms: true,
	})

	observations := []time.Duration{
		5 * time.Millisecond,
		10 * time.Millisecond,
		25 * time.Millisecond,
		50 * time.Millisecond,
		100 * time.Millisecond,
		250 * time.Millisecond,
		500 * time.Millisecond,
		700 * time.Millisecond,
	}

	for _, d := range observations {
		m.Observe(MetricRefreshLatency, d)
	}
	m.Observe(MetricRefreshStarted, time.Millisecond)

	snap := m.Snapshot()
	buckets := snap.Histograms[MetricRefreshLatency]
	if len(buckets) != 8 {
		t.Fatalf("expected 8 buckets, got %d", len(buckets))
	}
	for i, v := range buckets {
		if v != 1 {
			t.Fatalf("bucket %d expected 1, got %d", i, v)
		}
	}
	for _, v := range snap.Histograms[MetricRequestLatency] {
		if v != 0 {
			t.Fatalf("request latency should be untouched")
		}
	}
	if _, ok := snap.Counters[MetricRefreshLatency]; ok {
		t.Fatalf("histogram ids must not appear as counters")
	}
}

func TestMetricsHistogramsOffByDefault(t *testing.T) {
	m := NewMetrics(DefaultConfig().Metrics)
	m.Observe(MetricRequestLatency, time.Millisecond)
	if len(m.Snapshot().Histograms) != 0 {
		t.Fatalf("expected no histograms")
	}
}

// heldRefresher blocks every refresh until release is closed.
type heldRefresher struct {
	release chan struct{}
	calls   atomic.Int32
}

func (r *heldRefresher) Refresh(context.Context, string) (endpoint.Tokens, error) {
	r.calls.Add(1)
	<-r.release
	return endpoint.Tokens{AccessToken: "a2", RefreshToken: "r2"}, nil
}

func TestClientCountsQueueReplayAndRotation(t *testing.T) {
	var rotateOnce atomic.Bool
	var c *Client
	tr := &scriptedTransport{status: func(token string) int {
		switch {
		case token == "a1":
			return http.StatusUnauthorized
		case token == "a2" && rotateOnce.CompareAndSwap(true, false):
			// Another writer rotated the pair while this request was out.
			c.Store().Set(session.Session{AccessToken: "a3", RefreshToken: "r3"})
			return http.StatusUnauthorized
		default:
			return http.StatusOK
		}
	}}
	ref := &heldRefresher{release: make(chan struct{})}
	c = newScriptedClient(t, testConfig(""), tr, ref)
	c.Store().Set(session.Session{AccessToken: "a1", RefreshToken: "r1"})

	const callers = 4
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		go func() {
			_, err := c.Get(context.Background(), "/x")
			errs <- err
		}()
	}
	deadline := time.Now().Add(2 * time.Second)
	for c.Waiting() != callers-1 {
		if time.Now().After(deadline) {
			t.Fatalf("expected %d waiters, got %d", callers-1, c.Waiting())
		}
		time.Sleep(time.Millisecond)
	}
	close(ref.release)
	for i := 0; i < callers; i++ {
		if err := <-errs; err != nil {
			t.Fatalf("request failed: %v", err)
		}
	}

	rotateOnce.Store(true)
	if _, err := c.Get(context.Background(), "/x"); err != nil {
		t.Fatalf("request after rotation: %v", err)
	}

	counters := c.MetricsSnapshot().Counters
	want := map[MetricID]uint64{
		MetricRequestTotal:          callers + 1,
		MetricAccessExpired:         callers + 1,
		MetricRefreshStarted:        1,
		MetricRefreshSuccess:        1,
		MetricRequestQueued:         callers - 1,
		MetricRequestReplayed:       callers + 1,
		MetricRefreshSkippedRotated: 1,
		MetricReplayFailure:         0,
	}
	for id, v := range want {
		if counters[id] != v {
			t.Fatalf("metric %d: expected %d, got %d", id, v, counters[id])
		}
	}
	if ref.calls.Load() != 1 {
		t.Fatalf("expected one refresh call, got %d", ref.calls.Load())
	}
}
