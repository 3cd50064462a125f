package prometheus

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"

	"github.com/studyclub/authpipe"
)

type fakeSource struct {
	snapshot authpipe.MetricsSnapshot
	dropped  uint64
}

func (f fakeSource) MetricsSnapshot() authpipe.MetricsSnapshot { return f.snapshot }
func (f fakeSource) EventsDropped() uint64                    { return f.dropped }

func TestRenderEmptyWhenMetricsDisabled(t *testing.T) {
	exp := NewPrometheusExporterFromSource(fakeSource{
		snapshot: authpipe.MetricsSnapshot{
			Counters:   map[authpipe.MetricID]uint64{},
			Histograms: map[authpipe.MetricID][]uint64{},
		},
		dropped: 0,
	})

	if got := exp.Render(); got != "" {
		t.Fatalf("expected empty output for disabled metrics, got:\n%s", got)
	}
}

func TestRenderDeterministicIncludesCounterAndHistogram(t *testing.T) {
	exp := NewPrometheusExporterFromSource(fakeSource{
		snapshot: authpipe.MetricsSnapshot{
			Counters: map[authpipe.MetricID]uint64{
				authpipe.MetricRefreshSuccess: 7,
			},
			Histograms: map[authpipe.MetricID][]uint64{
				authpipe.MetricRefreshLatency: {1, 2, 3, 4, 5, 6, 7, 8},
			},
		},
		dropped: 2,
	})

	out := exp.Render()
	if !strings.Contains(out, "authpipe_refresh_success_total 7") {
		t.Fatalf("expected refresh_success counter in output, got:\n%s", out)
	}
	if !strings.Contains(out, "authpipe_refresh_latency_seconds_bucket{le=\"0.005\"} 1") {
		t.Fatalf("expected first histogram bucket in output, got:\n%s", out)
	}
	if !strings.Contains(out, "authpipe_refresh_latency_seconds_bucket{le=\"+Inf\"} 36") {
		t.Fatalf("expected +Inf cumulative bucket in output, got:\n%s", out)
	}
	if !strings.Contains(out, "authpipe_events_dropped_total 2") {
		t.Fatalf("expected events dropped counter in output, got:\n%s", out)
	}
}

func TestRenderListsEveryCounterInOrder(t *testing.T) {
	exp := NewPrometheusExporterFromSource(fakeSource{
		snapshot: authpipe.MetricsSnapshot{
			Counters:   map[authpipe.MetricID]uint64{authpipe.MetricTeardown: 1},
			Histograms: map[authpipe.MetricID][]uint64{authpipe.MetricRequestLatency: {0, 1}},
		},
	})

	out := exp.Render()
	requests := strings.Index(out, "authpipe_requests_total 0")
	teardown := strings.Index(out, "authpipe_teardown_total 1")
	request := strings.Index(out, "# TYPE authpipe_request_latency_seconds histogram")
	if requests < 0 || teardown < 0 || request < 0 {
		t.Fatalf("missing series in output:\n%s", out)
	}
	if !(requests < teardown && teardown < request) {
		t.Fatalf("unexpected series order in output:\n%s", out)
	}
}

func TestRenderSkipsHistogramsWhenDisabled(t *testing.T) {
	exp := NewPrometheusExporterFromSource(fakeSource{
		snapshot: authpipe.MetricsSnapshot{
			Counters: map[authpipe.MetricID]uint64{authpipe.MetricRequestTotal: 3},
		},
	})

	out := exp.Render()
	if strings.Contains(out, "_bucket{") {
		t.Fatalf("expected no histogram series, got:\n%s", out)
	}
}

type queueingSource struct {
	fakeSource
	waiting int
}

func (q queueingSource) Waiting() int { return q.waiting }

func TestRenderIncludesQueueDepthWhenAvailable(t *testing.T) {
	exp := NewPrometheusExporterFromSource(queueingSource{
		fakeSource: fakeSource{snapshot: authpipe.MetricsSnapshot{
			Counters: map[authpipe.MetricID]uint64{authpipe.MetricRequestQueued: 4},
		}},
		waiting: 4,
	})

	out := exp.Render()
	if !strings.Contains(out, "# TYPE authpipe_refresh_waiting gauge\nauthpipe_refresh_waiting 4\n") {
		t.Fatalf("expected waiting gauge, got:\n%s", out)
	}
	if strings.Contains(NewPrometheusExporterFromSource(fakeSource{dropped: 1}).Render(), "authpipe_refresh_waiting") {
		t.Fatalf("plain source must not report queue depth")
	}
}

func TestHandlerWritesPrometheusContentType(t *testing.T) {
	exp := NewPrometheusExporterFromSource(fakeSource{
		snapshot: authpipe.MetricsSnapshot{
			Counters:   map[authpipe.MetricID]uint64{authpipe.MetricRefreshSuccess: 1},
			Histograms: map[authpipe.MetricID][]uint64{},
		},
	})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	exp.Handler().ServeHTTP(rec, req)

	if got := rec.Header().Get("Content-Type"); !strings.Contains(got, "text/plain") {
		t.Fatalf("expected prometheus content type, got %q", got)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func BenchmarkRender(b *testing.B) {
	exp := NewPrometheusExporterFromSource(fakeSource{
		snapshot: authpipe.MetricsSnapshot{
			Counters: map[authpipe.MetricID]uint64{
				authpipe.MetricRequestTotal:     1000,
				authpipe.MetricAccessExpired:    40,
				authpipe.MetricRefreshStarted:   12,
				authpipe.MetricRefreshSuccess:   10,
				authpipe.MetricRequestQueued:    28,
				authpipe.MetricRequestReplayed:  38,
				authpipe.MetricRetryExhausted:   1,
				authpipe.MetricTeardown:         2,
			},
			Histograms: map[authpipe.MetricID][]uint64{
				authpipe.MetricRefreshLatency: {10, 20, 30, 40, 50, 60, 70, 80},
			},
		},
		dropped: 0,
	})

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = exp.Render()
	}
}

func TestRenderFromClient(t *testing.T) {
	log, _ := test.NewNullLogger()
	client, err := authpipe.New().WithLogger(log).WithLatencyHistograms(true).Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer client.Close()

	out := NewPrometheusExporter(client).Render()
	for _, want := range []string{
		"authpipe_requests_total 0",
		`authpipe_refresh_latency_seconds_bucket{le="+Inf"} 0`,
		"authpipe_refresh_waiting 0",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output:\n%s", want, out)
		}
	}
}
