package prometheus

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/studyclub/authpipe"
	"github.com/studyclub/authpipe/metrics/export/internaldefs"
)

type metricsSource interface {
	MetricsSnapshot() authpipe.MetricsSnapshot
	EventsDropped() uint64
}

// queueSource is implemented by sources that can report the refresh queue
// depth. *authpipe.Client does.
type queueSource interface {
	Waiting() int
}

// PrometheusExporter renders client metrics in Prometheus text exposition format.
type PrometheusExporter struct {
	source metricsSource
}

// NewPrometheusExporter creates a Prometheus exporter that reads from c.
func NewPrometheusExporter(c *authpipe.Client) *PrometheusExporter {
	return &PrometheusExporter{source: c}
}

// NewPrometheusExporterFromSource creates a Prometheus exporter from a
// custom metrics source.
func NewPrometheusExporterFromSource(source metricsSource) *PrometheusExporter {
	return &PrometheusExporter{source: source}
}

// Handler returns an http.Handler that serves Prometheus metrics.
func (p *PrometheusExporter) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		_, _ = w.Write([]byte(p.Render()))
	})
}

// Render returns the current metrics in Prometheus text exposition format.
// It returns "" when the source has nothing to report, which is the case
// for a client built with metrics disabled.
func (p *PrometheusExporter) Render() string {
	if p == nil || p.source == nil {
		return ""
	}

	snapshot := p.source.MetricsSnapshot()
	dropped := p.source.EventsDropped()
	if len(snapshot.Counters) == 0 && len(snapshot.Histograms) == 0 && dropped == 0 {
		return ""
	}

	var w exposition
	w.b.Grow(8192)

	for _, def := range internaldefs.CounterDefs {
		w.family(def.Name, def.Help, "counter")
		w.sample(def.Name, "", snapshot.Counters[def.ID])
	}

	for _, def := range internaldefs.HistogramDefs {
		raw, ok := snapshot.Histograms[def.ID]
		if !ok {
			continue
		}
		cumulative := internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(raw))
		w.family(def.Name, def.Help, "histogram")
		for i, le := range internaldefs.HistogramBounds {
			w.sample(def.Name+"_bucket", `le="`+le+`"`, cumulative[i])
		}
		w.sample(def.Name+"_count", "", cumulative[len(cumulative)-1])
		// Snapshots keep bucket counts only.
		w.sample(def.Name+"_sum", "", 0)
	}

	w.family("authpipe_events_dropped_total", "Lifecycle events dropped because the dispatcher buffer was full.", "counter")
	w.sample("authpipe_events_dropped_total", "", dropped)

	if q, ok := p.source.(queueSource); ok {
		w.family("authpipe_refresh_waiting", "Requests currently queued behind an in-flight refresh.", "gauge")
		w.sample("authpipe_refresh_waiting", "", uint64(q.Waiting()))
	}

	return w.b.String()
}

type exposition struct {
	b strings.Builder
}

func (w *exposition) family(name, help, typ string) {
	w.b.WriteString("# HELP ")
	w.b.WriteString(name)
	w.b.WriteByte(' ')
	w.b.WriteString(escapeHelp(help))
	w.b.WriteString("\n# TYPE ")
	w.b.WriteString(name)
	w.b.WriteByte(' ')
	w.b.WriteString(typ)
	w.b.WriteByte('\n')
}

func (w *exposition) sample(name, labels string, value uint64) {
	w.b.WriteString(name)
	if labels != "" {
		w.b.WriteByte('{')
		w.b.WriteString(labels)
		w.b.WriteByte('}')
	}
	w.b.WriteByte(' ')
	w.b.WriteString(strconv.FormatUint(value, 10))
	w.b.WriteByte('\n')
}

func escapeHelp(help string) string {
	help = strings.ReplaceAll(help, "\\", "\\\\")
	help = strings.ReplaceAll(help, "\n", "\\n")
	return help
}
