package internaldefs

import (
	"testing"

	"github.com/MrEthical07/sessionwatch"
	"github.com/stretchr/testify/require"
)

type source struct {
	snap            sessionwatch.MetricsSnapshot
	delivered, lost uint64
	tabs            int
}

func (s source) MetricsSnapshot() sessionwatch.MetricsSnapshot { return s.snap }
func (s source) AuditDelivered() uint64                        { return s.delivered }
func (s source) AuditDropped() uint64                          { return s.lost }
func (s source) OpenTabs() int                                 { return s.tabs }

func TestCollectKeepsLayoutOrder(t *testing.T) {
	layout := Layout()
	frame := Collect(source{
		snap: sessionwatch.MetricsSnapshot{
			Counters:   map[sessionwatch.MetricID]uint64{sessionwatch.MetricLogout: 3},
			Histograms: map[sessionwatch.MetricID][]uint64{sessionwatch.MetricStoreLatency: {1, 0, 2}},
		},
		delivered: 4,
		tabs:      2,
	})

	require.True(t, frame.Live)
	require.False(t, layout.Live)
	require.Len(t, frame.Series, len(layout.Series))
	require.Len(t, frame.Series, len(CounterDefs)+3)
	for i := range layout.Series {
		require.Equal(t, layout.Series[i].Name, frame.Series[i].Name)
		require.Equal(t, layout.Series[i].Kind, frame.Series[i].Kind)
	}

	byName := map[string]Series{}
	for _, s := range frame.Series {
		byName[s.Name] = s
	}
	require.Equal(t, uint64(3), byName["sessionwatch_logout_total"].Value)
	require.Equal(t, uint64(4), byName[AuditDeliveredName].Value)
	require.Equal(t, uint64(2), byName[OpenTabsName].Value)
	require.Equal(t, Gauge, byName[OpenTabsName].Kind)

	require.Len(t, frame.Distributions, 1)
	require.Equal(t, [BucketCount]uint64{1, 1, 3, 3, 3, 3, 3, 3}, frame.Distributions[0].Cumulative)
	require.Equal(t, uint64(3), frame.Distributions[0].Count())
}

func TestCollectNotLiveWithoutMetricsOrAudit(t *testing.T) {
	require.False(t, Collect(source{tabs: 5}).Live)
	require.True(t, Collect(source{lost: 1}).Live)
}

func TestCumulativeIgnoresExtraBuckets(t *testing.T) {
	got := cumulative([]uint64{1, 1, 1, 1, 1, 1, 1, 1, 50})
	require.Equal(t, uint64(8), got[BucketCount-1])
}
