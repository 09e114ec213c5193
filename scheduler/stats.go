package scheduler

import (
	"sync"
	"time"

	"github.com/hupe1980/infermesh/core"
)

// Stats is a point-in-time view of scheduler activity.
type Stats struct {
	TotalRequests  int
	SuccessCount   int
	FailureCount   int
	RejectedCount  int
	CacheHits      int
	TotalRetries   int
	StrategyCounts map[core.Strategy]int
}

// HistoryEntry is one completed request kept in the execution history
// ring.
type HistoryEntry struct {
	RequestID   string
	Strategy    core.Strategy
	Success     bool
	FromCache   bool
	Retries     int
	Duration    time.Duration
	CompletedAt time.Time
}

// statsBook tracks aggregate counters and a bounded execution history.
type statsBook struct {
	mu          sync.Mutex
	total       int
	success     int
	failure     int
	rejected    int
	cacheHits   int
	retries     int
	byStrategy  map[core.Strategy]int
	history     []HistoryEntry
	historySize int
}

func newStatsBook(historySize int) *statsBook {
	if historySize <= 0 {
		historySize = 100
	}
	return &statsBook{
		byStrategy:  make(map[core.Strategy]int),
		historySize: historySize,
	}
}

func (s *statsBook) recordRejection() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.total++
	s.rejected++
}

func (s *statsBook) recordCompletion(entry HistoryEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.total++
	if entry.Success {
		s.success++
	} else {
		s.failure++
	}
	if entry.FromCache {
		s.cacheHits++
	}
	s.retries += entry.Retries
	s.byStrategy[entry.Strategy]++

	s.history = append(s.history, entry)
	if len(s.history) > s.historySize {
		s.history = s.history[len(s.history)-s.historySize:]
	}
}

func (s *statsBook) snapshot() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	counts := make(map[core.Strategy]int, len(s.byStrategy))
	for k, v := range s.byStrategy {
		counts[k] = v
	}
	return Stats{
		TotalRequests:  s.total,
		SuccessCount:   s.success,
		FailureCount:   s.failure,
		RejectedCount:  s.rejected,
		CacheHits:      s.cacheHits,
		TotalRetries:   s.retries,
		StrategyCounts: counts,
	}
}

func (s *statsBook) historySnapshot() []HistoryEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]HistoryEntry, len(s.history))
	copy(out, s.history)
	return out
}

func (s *statsBook) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.total, s.success, s.failure, s.rejected, s.cacheHits, s.retries = 0, 0, 0, 0, 0, 0
	s.byStrategy = make(map[core.Strategy]int)
	s.history = nil
}
