package core

import (
	"time"

	"github.com/google/uuid"
)

// CacheEntry is a previously fused response held by a ResponseCache.
type CacheEntry struct {
	Text     string
	Tokens   int
	StoredAt time.Time
}

// ResponseCache stores fused responses keyed by (prompt, modelKey).
// Absence is a normal, non-error outcome.
type ResponseCache interface {
	Get(prompt, modelKey string) (CacheEntry, bool)
	Set(prompt, modelKey, text string, tokens int)
}

// FuseInput carries the results handed to a Fuser. Experts contains only
// successful fallback results; failed fallbacks never reach fusion.
type FuseInput struct {
	Primary *TaskExecutionResult
	Experts []*TaskExecutionResult
}

// Fuser combines a primary result and zero or more expert results into
// one output string. Implementations must not fail on an empty expert
// list and should support fusing from experts alone when the primary
// failed.
type Fuser interface {
	Fuse(in FuseInput) (string, error)
}

// NewID generates a unique identifier for requests, tasks and results.
func NewID() string { return uuid.NewString() }
