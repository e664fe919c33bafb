// Package prometheus renders monitor metrics in Prometheus text exposition
// format.
//
// [NewPrometheusExporter] wraps a [sessionwatch.Monitor] and exposes an
// [http.Handler]. Counters are named sessionwatch_*_total, open tabs are the
// sessionwatch_open_tabs gauge and the single histogram is
// sessionwatch_store_latency_seconds.
//
// # What this package must NOT do
//
//   - Register metrics in a global Prometheus registry. Callers mount the Handler.
//   - Mutate monitor state.
package prometheus
