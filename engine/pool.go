package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hupe1980/infermesh/logging"
)

// poolEntry tracks one loaded engine together with its usage state.
type poolEntry struct {
	engine   Engine
	active   int
	lastUsed time.Time
}

// enginePool keeps a bounded set of loaded engines keyed by model and
// backend. When the pool is full, the least recently used inactive
// engine is evicted; engines with in-flight generations are never
// evicted, and when every entry is active the pool transiently exceeds
// its bound instead.
type enginePool struct {
	mu      sync.Mutex
	entries map[string]*poolEntry
	limit   int
	factory Factory
	retry   RetryConfig
	logger  logging.Logger
}

func poolKey(modelID string, backend Backend) string {
	return modelID + "@" + string(backend)
}

func newEnginePool(limit int, factory Factory, retry RetryConfig, logger logging.Logger) *enginePool {
	if limit <= 0 {
		limit = 3
	}
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	return &enginePool{
		entries: make(map[string]*poolEntry),
		limit:   limit,
		factory: factory,
		retry:   retry,
		logger:  logger,
	}
}

// acquire returns a loaded engine for the model and backend, creating
// and loading one if needed. The caller must release the engine when the
// generation finishes.
func (p *enginePool) acquire(ctx context.Context, modelID string, backend Backend, progress chan<- LoadProgress) (Engine, error) {
	key := poolKey(modelID, backend)

	p.mu.Lock()
	if entry, ok := p.entries[key]; ok {
		entry.active++
		entry.lastUsed = time.Now()
		p.mu.Unlock()
		return entry.engine, nil
	}

	if len(p.entries) >= p.limit {
		p.evictLocked()
	}
	p.mu.Unlock()

	var eng Engine
	_, err := Do(ctx, p.retry, func(ctx context.Context) error {
		e, ferr := p.factory(modelID, backend)
		if ferr != nil {
			return fmt.Errorf("create engine %s: %w", key, ferr)
		}
		if lerr := e.Load(ctx, progress); lerr != nil {
			return lerr
		}
		eng = e
		return nil
	}, func(attempt int, attemptErr error) {
		p.logger.Warn("load engine %s attempt %d failed: %v", key, attempt, attemptErr)
	})
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	// Another goroutine may have loaded the same engine concurrently.
	if entry, ok := p.entries[key]; ok {
		entry.active++
		entry.lastUsed = time.Now()
		go func() {
			if err := eng.Unload(); err != nil {
				p.logger.Warn("unload duplicate engine %s: %v", key, err)
			}
		}()
		return entry.engine, nil
	}

	p.entries[key] = &poolEntry{engine: eng, active: 1, lastUsed: time.Now()}
	return eng, nil
}

// release marks one generation on the engine as finished.
func (p *enginePool) release(modelID string, backend Backend) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if entry, ok := p.entries[poolKey(modelID, backend)]; ok && entry.active > 0 {
		entry.active--
		entry.lastUsed = time.Now()
	}
}

// evictLocked removes the least recently used inactive engine. When
// every pooled engine has in-flight generations nothing is evicted and
// the caller's insert pushes the pool over its bound.
func (p *enginePool) evictLocked() {
	var victimKey string
	var victim *poolEntry
	for key, entry := range p.entries {
		if entry.active > 0 {
			continue
		}
		if victim == nil || entry.lastUsed.Before(victim.lastUsed) {
			victimKey = key
			victim = entry
		}
	}
	if victim == nil {
		p.logger.Warn("engine pool over capacity: all %d engines are active", p.limit)
		return
	}

	delete(p.entries, victimKey)
	p.logger.Info("evicting engine %s from pool", victimKey)
	if err := victim.engine.Unload(); err != nil {
		p.logger.Warn("unload evicted engine %s: %v", victimKey, err)
	}
}

// contains reports whether an engine for the model and backend is loaded.
func (p *enginePool) contains(modelID string, backend Backend) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.entries[poolKey(modelID, backend)]
	return ok
}

// len returns the number of loaded engines.
func (p *enginePool) len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}

// shutdown unloads every pooled engine. Unload errors are logged and
// swallowed so shutdown always completes.
func (p *enginePool) shutdown() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for key, entry := range p.entries {
		if err := entry.engine.Unload(); err != nil {
			p.logger.Warn("unload engine %s during shutdown: %v", key, err)
		}
		delete(p.entries, key)
	}
}
