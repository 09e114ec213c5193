package cache

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/hupe1980/infermesh/core"
)

// keySep joins prompt and model key without ambiguity; the unit
// separator cannot appear in either component in practice.
const keySep = "\x1f"

// LRUStore is a volatile core.ResponseCache bounded by entry count and
// an optional TTL. Safe for concurrent use.
type LRUStore struct {
	lru *expirable.LRU[string, core.CacheEntry]
}

// LRUStoreOptions configures an LRUStore.
type LRUStoreOptions struct {
	// Size bounds the number of cached responses.
	Size int
	// TTL expires entries after the given duration; zero disables expiry.
	TTL time.Duration
}

// NewLRUStore constructs a cache holding 256 responses with no expiry
// unless overridden.
func NewLRUStore(optFns ...func(o *LRUStoreOptions)) *LRUStore {
	opts := LRUStoreOptions{Size: 256}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &LRUStore{lru: expirable.NewLRU[string, core.CacheEntry](opts.Size, nil, opts.TTL)}
}

// Get implements core.ResponseCache. Absence is a normal outcome.
func (s *LRUStore) Get(prompt, modelKey string) (core.CacheEntry, bool) {
	return s.lru.Get(prompt + keySep + modelKey)
}

// Set implements core.ResponseCache.
func (s *LRUStore) Set(prompt, modelKey, text string, tokens int) {
	s.lru.Add(prompt+keySep+modelKey, core.CacheEntry{
		Text:     text,
		Tokens:   tokens,
		StoredAt: time.Now(),
	})
}

// Len returns the number of cached responses.
func (s *LRUStore) Len() int { return s.lru.Len() }

// Purge drops every cached response.
func (s *LRUStore) Purge() { s.lru.Purge() }
