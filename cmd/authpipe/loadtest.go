package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/spf13/cobra"

	"github.com/studyclub/authpipe"
	"github.com/studyclub/authpipe/apitest"
)

var loadtestCmd = &cobra.Command{
	Use:   "loadtest",
	Short: "Hammer an in-process API while access tokens keep expiring",
	Long: `Start the fake API in-process, log in, and run concurrent requests while
every access token is invalidated on a fixed interval. Reports latency
percentiles and how many refresh calls served how many expiries.

With --backend redis and no --redis-addr an in-process miniredis is used.`,
	RunE: runLoadtest,
}

func init() {
	loadtestCmd.Flags().Int("concurrency", 64, "Number of concurrent workers")
	loadtestCmd.Flags().Int("ops", 20000, "Total requests to send")
	loadtestCmd.Flags().Duration("expire-every", 50*time.Millisecond, "Interval between forced access token expiries")
	loadtestCmd.Flags().String("backend", string(authpipe.BackendMemory), "Session backend: memory or redis")
	loadtestCmd.Flags().String("redis-addr", "", "Redis address; miniredis when empty")

	rootCmd.AddCommand(loadtestCmd)
}

func runLoadtest(cmd *cobra.Command, _ []string) error {
	concurrency, _ := cmd.Flags().GetInt("concurrency")
	ops, _ := cmd.Flags().GetInt("ops")
	expireEvery, _ := cmd.Flags().GetDuration("expire-every")
	backend, _ := cmd.Flags().GetString("backend")
	redisAddr, _ := cmd.Flags().GetString("redis-addr")

	if concurrency <= 0 || ops <= 0 || expireEvery <= 0 {
		return errors.New("concurrency, ops and expire-every must be > 0")
	}

	out := cmd.OutOrStdout()
	ctx := cmd.Context()

	apiLog := log.WithField("component", "loadtest")
	api, err := apitest.New(apitest.Config{AccessTTL: time.Hour, Logger: apiLog})
	if err != nil {
		return err
	}
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	srv := &http.Server{Handler: api.Handler(), ReadHeaderTimeout: 5 * time.Second}
	go func() { _ = srv.Serve(ln) }()
	defer srv.Close()

	config := authpipe.DefaultConfig()
	config.Transport.BaseURL = "http://" + ln.Addr().String()
	config.Metrics.EnableLatencyHistograms = true

	switch authpipe.SessionBackend(backend) {
	case authpipe.BackendMemory:
	case authpipe.BackendRedis:
		config.Session.Backend = authpipe.BackendRedis
		if redisAddr == "" {
			mr, err := miniredis.Run()
			if err != nil {
				return fmt.Errorf("failed to start miniredis: %w", err)
			}
			defer mr.Close()
			redisAddr = mr.Addr()
			fmt.Fprintf(out, "using miniredis at %s\n", redisAddr)
		} else {
			fmt.Fprintf(out, "using redis at %s\n", redisAddr)
		}
	default:
		return fmt.Errorf("unsupported backend %q", backend)
	}

	client, release, err := newClient(config, redisAddr, io.Discard)
	if err != nil {
		return err
	}
	defer release()

	if err := client.Login(ctx, "alice", "wonderland"); err != nil {
		return fmt.Errorf("login: %w", err)
	}

	var expiries int64
	stopExpiry := make(chan struct{})
	expiryDone := make(chan struct{})
	go func() {
		defer close(expiryDone)
		ticker := time.NewTicker(expireEvery)
		defer ticker.Stop()
		for {
			select {
			case <-stopExpiry:
				return
			case <-ticker.C:
				api.ExpireAccessTokens()
				atomic.AddInt64(&expiries, 1)
			}
		}
	}()

	fmt.Fprintf(out, "running %d requests with %d workers...\n", ops, concurrency)
	stats := runRequestPhase(ctx, client, ops, concurrency)
	close(stopExpiry)
	<-expiryDone

	snap := client.MetricsSnapshot()
	fmt.Fprintln(out, "---- results ----")
	printStats(out, "requests", stats)
	fmt.Fprintf(out, "expiries=%d refresh_calls=%d queued=%d replayed=%d retry_exhausted=%d teardowns=%d\n",
		atomic.LoadInt64(&expiries),
		api.RefreshCalls(),
		snap.Counters[authpipe.MetricRequestQueued],
		snap.Counters[authpipe.MetricRequestReplayed],
		snap.Counters[authpipe.MetricRetryExhausted],
		snap.Counters[authpipe.MetricTeardown],
	)
	return nil
}

func runRequestPhase(ctx context.Context, client *authpipe.Client, ops, concurrency int) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				t0 := time.Now()
				_, err := client.Get(ctx, "/api/whoami")
				d := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	total := time.Since(start)
	return computeStats(total, latencies, failures)
}

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

func computeStats(total time.Duration, samples []time.Duration, failures int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total, failures: failures}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
	}
}

func percentile(samples []time.Duration, p int) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	idx := (len(samples) - 1) * p / 100
	return samples[idx]
}

func printStats(w io.Writer, name string, s phaseStats) {
	fmt.Fprintf(w, "%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}
