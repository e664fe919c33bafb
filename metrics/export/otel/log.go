package otel

import (
	"context"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.uber.org/zap"
)

// LogExporter is an sdk metric exporter that writes every collection as one
// structured log line. Zero-valued points are left out.
type LogExporter struct {
	logger *zap.Logger
}

var _ sdkmetric.Exporter = (*LogExporter)(nil)

// NewLogExporter logs collections through logger.
func NewLogExporter(logger *zap.Logger) *LogExporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogExporter{logger: logger}
}

func (e *LogExporter) Temporality(k sdkmetric.InstrumentKind) metricdata.Temporality {
	return sdkmetric.DefaultTemporalitySelector(k)
}

func (e *LogExporter) Aggregation(k sdkmetric.InstrumentKind) sdkmetric.Aggregation {
	return sdkmetric.DefaultAggregationSelector(k)
}

func (e *LogExporter) Export(_ context.Context, rm *metricdata.ResourceMetrics) error {
	fields := Fields(rm)
	if len(fields) == 0 {
		return nil
	}
	e.logger.Info("metrics collected", fields...)
	return nil
}

func (e *LogExporter) ForceFlush(context.Context) error { return nil }
func (e *LogExporter) Shutdown(context.Context) error   { return nil }

// Fields flattens the int64 sums and gauges of rm into zap fields named
// after their instruments.
func Fields(rm *metricdata.ResourceMetrics) []zap.Field {
	var fields []zap.Field
	add := func(name string, points []metricdata.DataPoint[int64]) {
		if len(points) > 0 && points[0].Value != 0 {
			fields = append(fields, zap.Int64(name, points[0].Value))
		}
	}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			switch data := m.Data.(type) {
			case metricdata.Sum[int64]:
				add(m.Name, data.DataPoints)
			case metricdata.Gauge[int64]:
				add(m.Name, data.DataPoints)
			}
		}
	}
	return fields
}
