package internaldefs

import (
	"github.com/studyclub/authpipe"
)

// CounterDef names one exported counter.
type CounterDef struct {
	ID   authpipe.MetricID
	Name string
	Help string
}

// HistogramDef names one exported latency histogram.
type HistogramDef struct {
	ID   authpipe.MetricID
	Name string
	Help string
}

var CounterDefs = []CounterDef{
	{ID: authpipe.MetricRequestTotal, Name: "authpipe_requests_total", Help: "Requests issued through the client."},
	{ID: authpipe.MetricRequestFailure, Name: "authpipe_request_failure_total", Help: "Requests that ended with a passthrough non-success status."},
	{ID: authpipe.MetricTransportFailure, Name: "authpipe_transport_failure_total", Help: "Requests that failed at the network level."},
	{ID: authpipe.MetricAccessExpired, Name: "authpipe_access_expired_total", Help: "Attempts classified as access-token expiry."},
	{ID: authpipe.MetricProactiveExpiry, Name: "authpipe_proactive_expiry_total", Help: "Expiries detected from the token's exp claim before sending."},
	{ID: authpipe.MetricRefreshStarted, Name: "authpipe_refresh_started_total", Help: "Refresh calls issued."},
	{ID: authpipe.MetricRefreshSuccess, Name: "authpipe_refresh_success_total", Help: "Successful refresh calls."},
	{ID: authpipe.MetricRefreshInvalid, Name: "authpipe_refresh_invalid_total", Help: "Refresh calls rejected because the refresh token was invalid."},
	{ID: authpipe.MetricRefreshMalformed, Name: "authpipe_refresh_malformed_total", Help: "Refresh calls rejected as malformed."},
	{ID: authpipe.MetricRefreshTransport, Name: "authpipe_refresh_transport_total", Help: "Refresh calls that failed transiently."},
	{ID: authpipe.MetricRefreshSkippedRotated, Name: "authpipe_refresh_skipped_rotated_total", Help: "Expiries resolved without refresh because the token had already rotated."},
	{ID: authpipe.MetricRequestQueued, Name: "authpipe_request_queued_total", Help: "Requests queued behind an in-flight refresh."},
	{ID: authpipe.MetricRequestReplayed, Name: "authpipe_request_replayed_total", Help: "Requests replayed after refresh."},
	{ID: authpipe.MetricReplayFailure, Name: "authpipe_replay_failure_total", Help: "Replays that did not succeed."},
	{ID: authpipe.MetricRetryExhausted, Name: "authpipe_retry_exhausted_total", Help: "Replays rejected with 401 again."},
	{ID: authpipe.MetricTeardown, Name: "authpipe_teardown_total", Help: "Session teardowns."},
	{ID: authpipe.MetricLogin, Name: "authpipe_login_total", Help: "Successful logins."},
	{ID: authpipe.MetricLoginFailure, Name: "authpipe_login_failure_total", Help: "Failed logins."},
	{ID: authpipe.MetricLogout, Name: "authpipe_logout_total", Help: "Logouts."},
}

var HistogramDefs = []HistogramDef{
	{ID: authpipe.MetricRefreshLatency, Name: "authpipe_refresh_latency_seconds", Help: "Refresh call latency histogram."},
	{ID: authpipe.MetricRequestLatency, Name: "authpipe_request_latency_seconds", Help: "Request latency histogram, refresh wait included."},
}

// HistogramBounds are the upper bounds, in seconds, of the eight buckets.
var HistogramBounds = []string{
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"+Inf",
}

// HistogramBoundSuffix is HistogramBounds in instrument-name form.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets copies raw into a fixed array, zero-filling missing
// buckets.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
