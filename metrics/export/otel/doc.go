// Package otel binds monitor metrics to OpenTelemetry observable instruments.
//
// [NewOTelExporter] registers an Int64ObservableCounter or
// Int64ObservableGauge per series of the shared frame and a gauge per
// histogram bucket. One callback collects the frame on each read.
// [LogExporter] is an sdk exporter for deployments without a collector.
//
// # What this package must NOT do
//
//   - Own the MeterProvider. Callers supply the Meter.
//   - Mutate monitor state.
package otel
