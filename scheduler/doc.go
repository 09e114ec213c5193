// Package scheduler executes inference request plans through a guarded
// pipeline: rate limiting, input validation, response caching, bounded
// priority dispatch, output sanitation, watermarking and fusion. Tasks
// are dispatched through process-wide queues shared by every concurrent
// request using the same strategy.
package scheduler
