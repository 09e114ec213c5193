package guardrail

import "sync"

// ViolationCounters tracks security violations per user. It is an
// injected, lock-protected store shared across in-flight requests; the
// scheduler receives a handle at construction instead of relying on
// package-level state.
type ViolationCounters struct {
	mu     sync.RWMutex
	counts map[string]map[string]int
}

// NewViolationCounters constructs an empty counter store.
func NewViolationCounters() *ViolationCounters {
	return &ViolationCounters{counts: make(map[string]map[string]int)}
}

// Increment records one violation of the given category for a user.
// Safe for concurrent use from multiple in-flight requests.
func (c *ViolationCounters) Increment(userID, category string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	byCat, ok := c.counts[userID]
	if !ok {
		byCat = make(map[string]int)
		c.counts[userID] = byCat
	}
	byCat[category]++
}

// Count returns the total violations recorded for a user.
func (c *ViolationCounters) Count(userID string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	total := 0
	for _, n := range c.counts[userID] {
		total += n
	}
	return total
}

// Snapshot returns a copy of all counters keyed by user and category.
func (c *ViolationCounters) Snapshot() map[string]map[string]int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]map[string]int, len(c.counts))
	for user, byCat := range c.counts {
		cp := make(map[string]int, len(byCat))
		for cat, n := range byCat {
			cp[cat] = n
		}
		out[user] = cp
	}
	return out
}
