package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noCache(o *RecorderOptions) { o.SnapshotCacheTTL = 0 }

func TestRecorder_WindowBound(t *testing.T) {
	r := NewRecorder(func(o *RecorderOptions) { o.WindowSize = 10; o.SnapshotCacheTTL = 0 })

	for i := 0; i < 25; i++ {
		r.Record(Record{Latency: time.Millisecond, Success: true})
	}
	assert.Equal(t, 10, r.Len())
	assert.Equal(t, 10, r.Snapshot().TotalInferences)
}

func TestRecorder_SnapshotAggregates(t *testing.T) {
	r := NewRecorder(noCache)

	r.Record(Record{Latency: 100 * time.Millisecond, TokensGenerated: 50, Success: true})
	r.Record(Record{Latency: 200 * time.Millisecond, TokensGenerated: 100, Success: true, Retries: 1})
	r.Record(Record{Latency: 300 * time.Millisecond, Success: false, Retries: 2, UsedFallback: true})

	snap := r.Snapshot()
	assert.Equal(t, 3, snap.TotalInferences)
	assert.Equal(t, 2, snap.SuccessCount)
	assert.Equal(t, 1, snap.FailureCount)
	assert.Equal(t, 3, snap.LastHourCount)
	assert.InDelta(t, 1.0/3.0, snap.ErrorRate, 0.001)
	assert.InDelta(t, 200, snap.AvgLatencyMs, 0.001)
	assert.InDelta(t, 200, snap.P50LatencyMs, 0.001)
	assert.Equal(t, 3, snap.TotalRetries)
	assert.Equal(t, 1, snap.FallbackCount)
	// 150 tokens over 0.3s of successful generation time.
	assert.InDelta(t, 500, snap.AvgTokensPerSecond, 0.001)
}

func TestRecorder_LastHourCount(t *testing.T) {
	r := NewRecorder(noCache)
	r.Record(Record{Timestamp: time.Now().Add(-2 * time.Hour), Latency: time.Millisecond, Success: true})
	r.Record(Record{Latency: time.Millisecond, Success: true})

	snap := r.Snapshot()
	assert.Equal(t, 2, snap.TotalInferences)
	assert.Equal(t, 1, snap.LastHourCount)
}

func TestRecorder_SnapshotCache(t *testing.T) {
	r := NewRecorder(func(o *RecorderOptions) { o.SnapshotCacheTTL = time.Minute })

	r.Record(Record{Latency: time.Millisecond, Success: true})
	first := r.Snapshot()
	assert.Equal(t, 1, first.TotalInferences)

	// New records invalidate the cache immediately.
	r.Record(Record{Latency: time.Millisecond, Success: true})
	assert.Equal(t, 2, r.Snapshot().TotalInferences)

	// Without new records the cached snapshot is served.
	again := r.Snapshot()
	assert.Equal(t, 2, again.TotalInferences)
}

func TestRecorder_Reset(t *testing.T) {
	r := NewRecorder(noCache)
	r.Record(Record{Latency: time.Millisecond, Success: true})
	r.Reset()
	assert.Equal(t, 0, r.Len())
	assert.Equal(t, 0, r.Snapshot().TotalInferences)
}

func TestPercentile(t *testing.T) {
	sorted := []float64{10, 20, 30, 40, 50}
	assert.InDelta(t, 30, percentile(sorted, 0.5), 0.001)
	assert.InDelta(t, 48, percentile(sorted, 0.95), 0.001)
	assert.InDelta(t, 10, percentile(sorted, 0), 0.001)
	assert.InDelta(t, 50, percentile(sorted, 1), 0.001)
	assert.Equal(t, 0.0, percentile(nil, 0.5))
}

func TestCollector(t *testing.T) {
	r := NewRecorder(noCache)
	r.Record(Record{Latency: 100 * time.Millisecond, TokensGenerated: 10, Success: true})

	reg := prometheus.NewRegistry()
	require.NoError(t, Register(reg, r))

	n := testutil.CollectAndCount(NewCollector(r))
	assert.Equal(t, 10, n, "collector emits one sample per stat plus three latency quantiles")
}
