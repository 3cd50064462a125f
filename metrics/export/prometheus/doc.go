// Package prometheus renders authpipe client metrics in Prometheus text
// exposition format.
//
// [NewPrometheusExporter] accepts an [authpipe.Client] and exposes an
// [http.Handler]. Counter names are prefixed authpipe_*_total; the latency
// histograms are authpipe_refresh_latency_seconds and
// authpipe_request_latency_seconds.
//
// # What this package must NOT do
//
//   - Register metrics in a global Prometheus registry. Callers mount the Handler.
//   - Mutate client state.
package prometheus
