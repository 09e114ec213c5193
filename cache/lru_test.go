package cache

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLRUStore_SetGet(t *testing.T) {
	s := NewLRUStore()

	_, ok := s.Get("2+2?", "tiny")
	assert.False(t, ok)

	s.Set("2+2?", "tiny", "4", 1)
	entry, ok := s.Get("2+2?", "tiny")
	assert.True(t, ok)
	assert.Equal(t, "4", entry.Text)
	assert.Equal(t, 1, entry.Tokens)
	assert.False(t, entry.StoredAt.IsZero())

	// Same prompt, different model key is a distinct entry.
	_, ok = s.Get("2+2?", "large")
	assert.False(t, ok)
}

func TestLRUStore_Eviction(t *testing.T) {
	s := NewLRUStore(func(o *LRUStoreOptions) { o.Size = 2 })

	for i := 0; i < 3; i++ {
		s.Set(fmt.Sprintf("p%d", i), "m", "text", 1)
	}
	assert.Equal(t, 2, s.Len())
	_, ok := s.Get("p0", "m")
	assert.False(t, ok, "oldest entry should have been evicted")
}

func TestLRUStore_TTL(t *testing.T) {
	s := NewLRUStore(func(o *LRUStoreOptions) { o.TTL = 20 * time.Millisecond })

	s.Set("p", "m", "text", 1)
	_, ok := s.Get("p", "m")
	assert.True(t, ok)

	time.Sleep(40 * time.Millisecond)
	_, ok = s.Get("p", "m")
	assert.False(t, ok, "entry should expire after the TTL")
}

func TestLRUStore_Purge(t *testing.T) {
	s := NewLRUStore()
	s.Set("p", "m", "text", 1)
	s.Purge()
	assert.Equal(t, 0, s.Len())
}
