// Package cache provides the in-memory response cache used by the
// scheduler to short-circuit repeated generation requests. Entries are
// keyed by (prompt, modelKey) and bounded by an LRU with optional TTL.
package cache
