package metrics

import (
	"sort"
	"sync"
	"time"
)

// Record captures one inference attempt, successful or not.
type Record struct {
	Timestamp       time.Time
	Latency         time.Duration
	TokensGenerated int
	Success         bool
	Retries         int
	UsedFallback    bool
}

// Snapshot is the derived view over the rolling window. It is recomputed
// on demand and cached briefly to keep hot status paths cheap.
type Snapshot struct {
	TotalInferences int
	SuccessCount    int
	FailureCount    int
	// LastHourCount counts records within the trailing hour, a secondary
	// view on the same window.
	LastHourCount int

	ErrorRate          float64
	AvgLatencyMs       float64
	P50LatencyMs       float64
	P95LatencyMs       float64
	P99LatencyMs       float64
	AvgTokensPerSecond float64

	TotalRetries  int
	FallbackCount int

	GeneratedAt time.Time
}

// Recorder owns the rolling window. All mutation is serialized; reads
// share the same lock but return copies, so callers may be concurrent.
type Recorder struct {
	mu         sync.Mutex
	records    []Record
	windowSize int
	cacheTTL   time.Duration
	cached     *Snapshot
	cachedAt   time.Time
}

// RecorderOptions configures a Recorder.
type RecorderOptions struct {
	// WindowSize bounds the number of retained records.
	WindowSize int
	// SnapshotCacheTTL is how long a computed snapshot is served before
	// recomputation.
	SnapshotCacheTTL time.Duration
}

// NewRecorder constructs a Recorder retaining the last 1,000 records with
// a 5 second snapshot cache unless overridden.
func NewRecorder(optFns ...func(o *RecorderOptions)) *Recorder {
	opts := RecorderOptions{WindowSize: 1000, SnapshotCacheTTL: 5 * time.Second}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Recorder{windowSize: opts.WindowSize, cacheTTL: opts.SnapshotCacheTTL}
}

// Record appends one inference record, trimming the window if needed.
func (r *Recorder) Record(rec Record) {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, rec)
	if len(r.records) > r.windowSize {
		r.records = r.records[len(r.records)-r.windowSize:]
	}
	r.cached = nil
}

// Snapshot returns the aggregate view, recomputing it at most once per
// cache interval.
func (r *Recorder) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cached != nil && time.Since(r.cachedAt) < r.cacheTTL {
		return *r.cached
	}
	snap := r.computeLocked()
	r.cached = &snap
	r.cachedAt = time.Now()
	return snap
}

// Reset drops all records and the cached snapshot.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = nil
	r.cached = nil
}

// Len returns the number of retained records.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.records)
}

func (r *Recorder) computeLocked() Snapshot {
	snap := Snapshot{GeneratedAt: time.Now()}
	n := len(r.records)
	if n == 0 {
		return snap
	}

	snap.TotalInferences = n
	hourAgo := time.Now().Add(-time.Hour)

	latencies := make([]float64, 0, n)
	var latencySum float64
	var tokenSum int
	var tokenTime float64

	for _, rec := range r.records {
		ms := float64(rec.Latency) / float64(time.Millisecond)
		latencies = append(latencies, ms)
		latencySum += ms
		snap.TotalRetries += rec.Retries
		if rec.Success {
			snap.SuccessCount++
		} else {
			snap.FailureCount++
		}
		if rec.UsedFallback {
			snap.FallbackCount++
		}
		if rec.Timestamp.After(hourAgo) {
			snap.LastHourCount++
		}
		if rec.Success && rec.TokensGenerated > 0 && rec.Latency > 0 {
			tokenSum += rec.TokensGenerated
			tokenTime += rec.Latency.Seconds()
		}
	}

	snap.ErrorRate = float64(snap.FailureCount) / float64(n)
	snap.AvgLatencyMs = latencySum / float64(n)

	sort.Float64s(latencies)
	snap.P50LatencyMs = percentile(latencies, 0.50)
	snap.P95LatencyMs = percentile(latencies, 0.95)
	snap.P99LatencyMs = percentile(latencies, 0.99)

	if tokenTime > 0 {
		snap.AvgTokensPerSecond = float64(tokenSum) / tokenTime
	}
	return snap
}

// percentile expects a sorted slice and interpolates between neighbours.
func percentile(sorted []float64, q float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if len(sorted) == 1 {
		return sorted[0]
	}
	pos := q * float64(len(sorted)-1)
	lo := int(pos)
	hi := lo + 1
	if hi >= len(sorted) {
		return sorted[len(sorted)-1]
	}
	frac := pos - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}
