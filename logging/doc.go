// Package logging provides a minimal logging interface and adapters for
// the infermesh kernel.
//
// The Logger interface defines the standard logging methods (Debug, Info,
// Warn, Error) that the scheduler and engine manager use for
// observability. This package includes:
//
//   - Logger interface for dependency injection
//   - SlogAdapter wrapping Go's structured logging
//   - NoOpLogger for silent operation (testing, minimal setups)
//   - KernelLogger with contextual helpers for inference and task logging
//
// Usage:
//
//	logger := logging.NewSlogLogger(logging.LogLevelInfo, "json", false)
//	kernel := infermesh.New(func(o *infermesh.Options) { o.Logger = logger })
//
// The design intentionally keeps the interface minimal to avoid vendor
// lock-in while supporting structured logging where available.
package logging
