package internaldefs

import (
	"github.com/MrEthical07/sessionwatch"
)

// Source is what an exporter reads on every scrape or collection.
// *sessionwatch.Monitor satisfies it.
type Source interface {
	MetricsSnapshot() sessionwatch.MetricsSnapshot
	AuditDelivered() uint64
	AuditDropped() uint64
	OpenTabs() int
}

// Kind is how a scalar series is published.
type Kind uint8

const (
	Counter Kind = iota
	Gauge
)

func (k Kind) String() string {
	if k == Gauge {
		return "gauge"
	}
	return "counter"
}

// CounterDef names one exported monitor counter.
type CounterDef struct {
	ID   sessionwatch.MetricID
	Name string
	Help string
}

// HistogramDef names one exported monitor histogram.
type HistogramDef struct {
	ID   sessionwatch.MetricID
	Name string
	Help string
}

// CounterDefs lists every snapshot counter in exposition order.
var CounterDefs = []CounterDef{
	{ID: sessionwatch.MetricSignIn, Name: "sessionwatch_sign_in_total", Help: "Session records created by sign-in."},
	{ID: sessionwatch.MetricSignInFailure, Name: "sessionwatch_sign_in_failure_total", Help: "Sign-in attempts rejected by the backend."},
	{ID: sessionwatch.MetricSignInRateLimited, Name: "sessionwatch_sign_in_rate_limited_total", Help: "Sign-in attempts refused by the throttle."},
	{ID: sessionwatch.MetricRenewal, Name: "sessionwatch_renewal_total", Help: "Activity touches that moved the session expiry."},
	{ID: sessionwatch.MetricWarningShown, Name: "sessionwatch_warning_shown_total", Help: "Expiry prompts opened."},
	{ID: sessionwatch.MetricExtended, Name: "sessionwatch_extended_total", Help: "Expiry prompts confirmed by the user."},
	{ID: sessionwatch.MetricWarningReset, Name: "sessionwatch_warning_reset_total", Help: "Expiry prompts closed by activity in another tab."},
	{ID: sessionwatch.MetricForcedLogout, Name: "sessionwatch_forced_logout_total", Help: "Sessions ended by the expiry watchdog."},
	{ID: sessionwatch.MetricLogout, Name: "sessionwatch_logout_total", Help: "Explicit logouts."},
	{ID: sessionwatch.MetricCrossTabRedirect, Name: "sessionwatch_cross_tab_redirect_total", Help: "Tabs sent to sign-in after a sign-out elsewhere."},
	{ID: sessionwatch.MetricTabOpened, Name: "sessionwatch_tab_opened_total", Help: "Tabs opened."},
	{ID: sessionwatch.MetricTabClosed, Name: "sessionwatch_tab_closed_total", Help: "Tabs closed."},
	{ID: sessionwatch.MetricMalformedRecord, Name: "sessionwatch_malformed_record_total", Help: "Store reads that found an unusable record."},
}

// HistogramDefs lists every histogram in exposition order.
var HistogramDefs = []HistogramDef{
	{ID: sessionwatch.MetricStoreLatency, Name: "sessionwatch_store_latency_seconds", Help: "Session store round-trip latency."},
}

// Series outside the monitor snapshot.
const (
	AuditDeliveredName = "sessionwatch_audit_delivered_total"
	AuditDroppedName   = "sessionwatch_audit_dropped_total"
	OpenTabsName       = "sessionwatch_open_tabs"
)

// BucketCount is the number of latency buckets, +Inf included.
const BucketCount = 8

// HistogramBounds are the upper bounds, in seconds, of the latency buckets.
var HistogramBounds = [BucketCount]string{"0.0005", "0.001", "0.0025", "0.005", "0.01", "0.025", "0.1", "+Inf"}

// HistogramBoundSuffix is HistogramBounds spelled for instrument names.
var HistogramBoundSuffix = [BucketCount]string{"0_0005", "0_001", "0_0025", "0_005", "0_01", "0_025", "0_1", "inf"}

// Series is one scalar value of a [Frame].
type Series struct {
	Name  string
	Help  string
	Kind  Kind
	Value uint64
}

// Distribution is one latency histogram of a [Frame], already cumulative.
type Distribution struct {
	Name       string
	Help       string
	Cumulative [BucketCount]uint64
}

// Count is the total number of samples.
func (d Distribution) Count() uint64 { return d.Cumulative[BucketCount-1] }

// Frame is one consistent read of a [Source]. Series and Distributions keep
// the same order and length on every collection, so exporters may bind
// instruments by index.
type Frame struct {
	Series        []Series
	Distributions []Distribution
	// Live is false when metrics are disabled and the audit counters are
	// still zero; exporters render nothing then.
	Live bool
}

// Layout returns a zero-valued frame. Exporters use it to register
// instruments before the first collection.
func Layout() Frame {
	return build(sessionwatch.MetricsSnapshot{}, 0, 0, 0)
}

// Collect reads src once.
func Collect(src Source) Frame {
	snap := src.MetricsSnapshot()
	delivered, dropped := src.AuditDelivered(), src.AuditDropped()
	f := build(snap, delivered, dropped, src.OpenTabs())
	f.Live = len(snap.Counters) > 0 || len(snap.Histograms) > 0 || delivered > 0 || dropped > 0
	return f
}

func build(snap sessionwatch.MetricsSnapshot, delivered, dropped uint64, tabs int) Frame {
	f := Frame{
		Series:        make([]Series, 0, len(CounterDefs)+3),
		Distributions: make([]Distribution, 0, len(HistogramDefs)),
	}
	for _, def := range CounterDefs {
		f.Series = append(f.Series, Series{Name: def.Name, Help: def.Help, Kind: Counter, Value: snap.Counters[def.ID]})
	}
	f.Series = append(f.Series,
		Series{Name: AuditDeliveredName, Help: "Audit events handed to the sink.", Kind: Counter, Value: delivered},
		Series{Name: AuditDroppedName, Help: "Audit events dropped under dispatcher backpressure.", Kind: Counter, Value: dropped},
		Series{Name: OpenTabsName, Help: "Tabs currently registered with the monitor.", Kind: Gauge, Value: uint64(max(tabs, 0))},
	)
	for _, def := range HistogramDefs {
		f.Distributions = append(f.Distributions, Distribution{
			Name:       def.Name,
			Help:       def.Help,
			Cumulative: cumulative(snap.Histograms[def.ID]),
		})
	}
	return f
}

// cumulative turns per-bucket counts into running totals. Missing buckets
// count as zero and extras are ignored.
func cumulative(raw []uint64) [BucketCount]uint64 {
	var out [BucketCount]uint64
	var running uint64
	for i := range out {
		if i < len(raw) {
			running += raw[i]
		}
		out[i] = running
	}
	return out
}
