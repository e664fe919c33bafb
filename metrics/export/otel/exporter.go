package otel

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrEthical07/sessionwatch"
	"github.com/MrEthical07/sessionwatch/metrics/export/internaldefs"
	"go.opentelemetry.io/otel/metric"
)

var (
	ErrNilMeter  = errors.New("nil meter")
	ErrNilSource = errors.New("nil metrics source")
)

// distribution holds one histogram's bucket gauges followed by its count.
type distribution struct {
	buckets [internaldefs.BucketCount]metric.Int64ObservableGauge
	count   metric.Int64ObservableGauge
}

// OTelExporter publishes monitor metrics as observable instruments. Every
// collection reads the source once.
type OTelExporter struct {
	source        internaldefs.Source
	registration  metric.Registration
	series        []metric.Int64Observable
	distributions []distribution
}

// NewOTelExporter registers instruments on meter that read from m.
func NewOTelExporter(meter metric.Meter, m *sessionwatch.Monitor) (*OTelExporter, error) {
	if m == nil {
		return nil, ErrNilSource
	}
	return NewOTelExporterFromSource(meter, m)
}

// NewOTelExporterFromSource registers instruments on meter that read from
// source.
func NewOTelExporterFromSource(meter metric.Meter, source internaldefs.Source) (*OTelExporter, error) {
	if meter == nil {
		return nil, ErrNilMeter
	}
	if source == nil {
		return nil, ErrNilSource
	}

	layout := internaldefs.Layout()
	e := &OTelExporter{source: source}
	var observables []metric.Observable

	for _, s := range layout.Series {
		ins, err := seriesInstrument(meter, s)
		if err != nil {
			return nil, err
		}
		e.series = append(e.series, ins)
		observables = append(observables, ins)
	}

	for _, d := range layout.Distributions {
		var dist distribution
		for i, suffix := range internaldefs.HistogramBoundSuffix {
			name := d.Name + "_bucket_le_" + suffix
			g, err := meter.Int64ObservableGauge(name, metric.WithDescription("Cumulative count of "+d.Name+" at or below the bound."))
			if err != nil {
				return nil, fmt.Errorf("create gauge %s: %w", name, err)
			}
			dist.buckets[i] = g
			observables = append(observables, g)
		}
		g, err := meter.Int64ObservableGauge(d.Name+"_count", metric.WithDescription(d.Help))
		if err != nil {
			return nil, fmt.Errorf("create gauge %s_count: %w", d.Name, err)
		}
		dist.count = g
		observables = append(observables, g)
		e.distributions = append(e.distributions, dist)
	}

	reg, err := meter.RegisterCallback(e.observe, observables...)
	if err != nil {
		return nil, fmt.Errorf("register callback: %w", err)
	}
	e.registration = reg
	return e, nil
}

func seriesInstrument(meter metric.Meter, s internaldefs.Series) (metric.Int64Observable, error) {
	var (
		ins metric.Int64Observable
		err error
	)
	if s.Kind == internaldefs.Gauge {
		ins, err = meter.Int64ObservableGauge(s.Name, metric.WithDescription(s.Help))
	} else {
		ins, err = meter.Int64ObservableCounter(s.Name, metric.WithDescription(s.Help))
	}
	if err != nil {
		return nil, fmt.Errorf("create %s %s: %w", s.Kind, s.Name, err)
	}
	return ins, nil
}

func (e *OTelExporter) observe(_ context.Context, o metric.Observer) error {
	frame := internaldefs.Collect(e.source)
	for i, s := range frame.Series {
		o.ObserveInt64(e.series[i], int64(s.Value))
	}
	for i, d := range frame.Distributions {
		dist := e.distributions[i]
		for j, v := range d.Cumulative {
			o.ObserveInt64(dist.buckets[j], int64(v))
		}
		o.ObserveInt64(dist.count, int64(d.Count()))
	}
	return nil
}

// Close unregisters the collection callback.
func (e *OTelExporter) Close() error {
	if e == nil || e.registration == nil {
		return nil
	}
	return e.registration.Unregister()
}
