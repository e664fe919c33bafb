package prometheus

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/MrEthical07/sessionwatch"
	"github.com/MrEthical07/sessionwatch/metrics/export/internaldefs"
)

const contentType = "text/plain; version=0.0.4; charset=utf-8"

// PrometheusExporter renders monitor metrics in Prometheus text exposition format.
type PrometheusExporter struct {
	source internaldefs.Source
}

// NewPrometheusExporter creates an exporter that reads from m.
func NewPrometheusExporter(m *sessionwatch.Monitor) *PrometheusExporter {
	return &PrometheusExporter{source: m}
}

// NewPrometheusExporterFromSource creates an exporter over any source.
func NewPrometheusExporterFromSource(source internaldefs.Source) *PrometheusExporter {
	return &PrometheusExporter{source: source}
}

// Handler serves Render over HTTP.
func (p *PrometheusExporter) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", contentType)
		_, _ = w.Write([]byte(p.Render()))
	})
}

// Render returns the current metrics, or "" while metrics are disabled and
// no audit event has been delivered or dropped.
func (p *PrometheusExporter) Render() string {
	if p == nil || p.source == nil {
		return ""
	}
	frame := internaldefs.Collect(p.source)
	if !frame.Live {
		return ""
	}

	var w familyWriter
	w.Grow(4096)
	for _, s := range frame.Series {
		w.family(s.Name, s.Help, s.Kind.String())
		w.sample(s.Name, "", s.Value)
	}
	for _, d := range frame.Distributions {
		w.family(d.Name, d.Help, "histogram")
		for i, le := range internaldefs.HistogramBounds {
			w.sample(d.Name+"_bucket", le, d.Cumulative[i])
		}
		w.sample(d.Name+"_count", "", d.Count())
		// Snapshots carry no sum.
		w.sample(d.Name+"_sum", "", 0)
	}
	return w.String()
}

type familyWriter struct {
	strings.Builder
}

func (w *familyWriter) family(name, help, kind string) {
	w.WriteString("# HELP ")
	w.WriteString(name)
	w.WriteByte(' ')
	w.WriteString(helpEscaper.Replace(help))
	w.WriteString("\n# TYPE ")
	w.WriteString(name)
	w.WriteByte(' ')
	w.WriteString(kind)
	w.WriteByte('\n')
}

// sample writes one line. A non-empty le becomes the bucket label.
func (w *familyWriter) sample(name, le string, v uint64) {
	w.WriteString(name)
	if le != "" {
		w.WriteString(`{le="`)
		w.WriteString(le)
		w.WriteString(`"}`)
	}
	w.WriteByte(' ')
	w.WriteString(strconv.FormatUint(v, 10))
	w.WriteByte('\n')
}

var helpEscaper = strings.NewReplacer(`\`, `\\`, "\n", `\n`)
