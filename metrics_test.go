package sessionwatch

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMetricsDisabledNoIncrement(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: false})
	m.Inc(MetricSignIn)

	require.Zero(t, m.Value(MetricSignIn))
	require.Empty(t, m.Snapshot().Counters)
}

func TestMetricsNilIsSafe(t *testing.T) {
	var m *Metrics
	m.Inc(MetricSignIn)
	m.Observe(MetricStoreLatency, time.Millisecond)
	require.False(t, m.Enabled())
	require.Zero(t, m.Value(MetricSignIn))
}

func TestMetricsConcurrentIncrementSafe(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true})

	const goroutines = 32
	const perG = 4000

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < perG; j++ {
				m.Inc(MetricRenewal)
			}
		}()
	}
	wg.Wait()

	require.Equal(t, uint64(goroutines*perG), m.Value(MetricRenewal))
}

func TestMetricsHistogramBucketCorrectness(t *testing.T) {
	m := NewMetrics(MetricsConfig{
		Enabled:                 true,
		EnableLatencyHistograms: true,
	})

	observations := []time.Duration{
		500 * time.Microsecond,
		time.Millisecond,
		2500 * time.Microsecond,
		5 * time.Millisecond,
		10 * time.Millisecond,
		25 * time.Millisecond,
		100 * time.Millisecond,
		time.Second,
	}

	for _, d := range observations {
		m.Observe(MetricStoreLatency, d)
	}
	m.Observe(MetricSignIn, time.Millisecond)

	require.Equal(t, []uint64{1, 1, 1, 1, 1, 1, 1, 1}, m.Snapshot().Histograms[MetricStoreLatency])
}

func TestMetricsSnapshotConsistency(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true})
	m.Inc(MetricWarningShown)
	m.Inc(MetricForcedLogout)
	m.Inc(MetricForcedLogout)
	m.Observe(MetricStoreLatency, time.Millisecond)

	snap := m.Snapshot()
	require.Equal(t, uint64(1), snap.Counters[MetricWarningShown])
	require.Equal(t, uint64(2), snap.Counters[MetricForcedLogout])
	require.NotContains(t, snap.Counters, MetricStoreLatency, "histogram ids must not appear as counters")
	require.NotContains(t, snap.Histograms, MetricStoreLatency, "histograms are absent when latency is disabled")
}
