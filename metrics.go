package sessionwatch

import (
	"sync/atomic"
	"time"
)

// MetricID identifies one monitor counter or histogram.
type MetricID uint16

const (
	// MetricSignIn counts records created by SignIn.
	MetricSignIn MetricID = iota
	// MetricSignInFailure counts sign-in attempts rejected upstream.
	MetricSignInFailure
	// MetricSignInRateLimited counts sign-in attempts refused by the throttle.
	MetricSignInRateLimited
	// MetricRenewal counts activity touches that moved the expiry.
	MetricRenewal
	// MetricWarningShown counts expiry prompts opened.
	MetricWarningShown
	// MetricExtended counts prompts confirmed by the user.
	MetricExtended
	// MetricWarningReset counts prompts closed by a renewal in another tab.
	MetricWarningReset
	// MetricForcedLogout counts sessions ended by the watchdog.
	MetricForcedLogout
	// MetricLogout counts explicit logouts.
	MetricLogout
	// MetricCrossTabRedirect counts guard redirects.
	MetricCrossTabRedirect
	// MetricTabOpened counts tabs opened.
	MetricTabOpened
	// MetricTabClosed counts tabs closed.
	MetricTabClosed
	// MetricMalformedRecord counts store reads that found an unusable record.
	MetricMalformedRecord
	// MetricStoreLatency is the store round-trip latency histogram.
	MetricStoreLatency
	metricIDCount
)

const (
	histBucketCount = 8
	cacheLineSize   = 64
)

type metricHistogram struct {
	buckets [histBucketCount]uint64
}

type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Metrics is a set of lock-free counters. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	enabled       bool
	enableLatency bool
	counters      [metricIDCount]paddedCounter
	histograms    [metricIDCount]metricHistogram
}

// MetricsSnapshot is a point-in-time copy of every counter and histogram.
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

// NewMetrics creates a metrics set.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		enabled:       cfg.Enabled,
		enableLatency: cfg.Enabled && cfg.EnableLatencyHistograms,
	}
}

func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

func (m *Metrics) LatencyEnabled() bool {
	return m != nil && m.enableLatency
}

// Inc adds one to a counter.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

// Observe records a latency sample. Only MetricStoreLatency is a histogram.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if m == nil || !m.enabled || !m.enableLatency || id != MetricStoreLatency {
		return
	}
	atomic.AddUint64(&m.histograms[id].buckets[bucketIndex(d)], 1)
}

func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

// Snapshot copies the current values.
func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil || !m.enabled {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}

	s := MetricsSnapshot{
		Counters:   make(map[MetricID]uint64, int(metricIDCount)),
		Histograms: make(map[MetricID][]uint64, 1),
	}

	for id := MetricID(0); id < metricIDCount; id++ {
		if id == MetricStoreLatency {
			continue
		}
		s.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
	}

	if m.enableLatency {
		buckets := make([]uint64, histBucketCount)
		for i := 0; i < histBucketCount; i++ {
			buckets[i] = atomic.LoadUint64(&m.histograms[MetricStoreLatency].buckets[i])
		}
		s.Histograms[MetricStoreLatency] = buckets
	}

	return s
}

// bucketIndex maps a store round trip onto the bounds exported as
// 0.5ms, 1ms, 2.5ms, 5ms, 10ms, 25ms, 100ms and +Inf.
func bucketIndex(d time.Duration) int {
	us := d.Microseconds()

	switch {
	case us <= 500:
		return 0
	case us <= 1000:
		return 1
	case us <= 2500:
		return 2
	case us <= 5000:
		return 3
	case us <= 10000:
		return 4
	case us <= 25000:
		return 5
	case us <= 100000:
		return 6
	default:
		return 7
	}
}
