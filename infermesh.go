// Package infermesh provides a high-level façade over the inference
// kernel: a guarded task scheduler in front of a pooled, fallback-aware
// engine manager. Most applications interact with this package by:
//  1. Creating a Kernel via New() (optionally overriding guardrails,
//     cache, fuser, plan producer or engine factory)
//  2. Calling Initialize() to load the configured model
//  3. Submitting prompts via Process (blocking) or ProcessStream
//
// All defaults are safe for local development and testing; production
// deployments typically supply a real engine factory, durable guardrail
// implementations and a structured logger.
package infermesh

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/hupe1980/infermesh/cache"
	"github.com/hupe1980/infermesh/config"
	"github.com/hupe1980/infermesh/core"
	"github.com/hupe1980/infermesh/engine"
	"github.com/hupe1980/infermesh/guardrail"
	"github.com/hupe1980/infermesh/logging"
	"github.com/hupe1980/infermesh/metrics"
	"github.com/hupe1980/infermesh/plan"
	"github.com/hupe1980/infermesh/scheduler"
)

// Options configures a Kernel instance.
type Options struct {
	// Config supplies tunables for the scheduler, engine, guardrails and
	// cache. Defaults to config.Default().
	Config *config.Config

	// EngineFactory creates inference engines on demand. Defaults to the
	// mock factory, which is only useful for development and tests.
	EngineFactory engine.Factory

	// Planner produces execution plans. Defaults to a single-task plan
	// producer targeting the configured model.
	Planner core.PlanProducer

	// Guardrail overrides. Each nil field falls back to the built-in
	// in-memory implementation configured from Config.
	RateLimiter guardrail.RateLimiter
	Validator   guardrail.InputValidator
	Sanitizer   guardrail.OutputSanitizer
	Watermarker guardrail.Watermarker
	Audit       guardrail.AuditSink

	// Cache overrides the response cache. Nil uses the configured LRU
	// cache, or no cache when Config.Cache.Enabled is false.
	Cache core.ResponseCache

	// Fuser overrides result fusion.
	Fuser core.Fuser

	// Logger (defaults to NoOp logger if nil).
	Logger logging.Logger
}

// Kernel is the high-level façade aggregating the scheduler and the
// engine manager behind one submission surface.
type Kernel struct {
	cfg       *config.Config
	manager   *engine.Manager
	scheduler *scheduler.Scheduler
	logger    logging.Logger

	// admission bounds concurrently processed requests.
	admission *semaphore.Weighted
}

// New creates a Kernel with optional overrides. Any unset dependency is
// initialized with a working in-memory implementation.
func New(optFns ...func(o *Options)) (*Kernel, error) {
	opts := Options{
		Config: config.Default(),
		Logger: logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	cfg := opts.Config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if opts.EngineFactory == nil {
		opts.EngineFactory = engine.MockFactory(nil)
	}
	if opts.Planner == nil {
		modelKey := cfg.Engine.ModelID
		if modelKey == "" {
			modelKey = "default"
		}
		p, err := plan.NewProducer(modelKey)
		if err != nil {
			return nil, err
		}
		opts.Planner = p
	}
	if opts.RateLimiter == nil {
		opts.RateLimiter = guardrail.NewFixedWindowLimiter(func(o *guardrail.FixedWindowLimiterOptions) {
			o.Limit = cfg.Guardrail.RateLimit
			o.Window = time.Duration(cfg.Guardrail.RateWindowMs) * time.Millisecond
		})
	}
	if opts.Validator == nil {
		opts.Validator = guardrail.NewPatternValidator(func(o *guardrail.PatternValidatorOptions) {
			o.MaxPromptLength = cfg.Guardrail.MaxPromptLength
		})
	}
	if opts.Sanitizer == nil {
		opts.Sanitizer = guardrail.NewPatternSanitizer()
	}
	if opts.Watermarker == nil {
		opts.Watermarker = guardrail.NewHashWatermarker()
	}
	if opts.Audit == nil {
		opts.Audit = guardrail.NewLoggerAuditSink(opts.Logger)
	}
	if opts.Cache == nil && cfg.Cache.Enabled {
		opts.Cache = cache.NewLRUStore(func(o *cache.LRUStoreOptions) {
			o.Size = cfg.Cache.Size
			o.TTL = time.Duration(cfg.Cache.TTLMs) * time.Millisecond
		})
	}

	manager := engine.NewManager(func(o *engine.ManagerOptions) {
		o.Factory = opts.EngineFactory
		o.PoolSize = cfg.Engine.PoolSize
		o.Retry = cfg.Engine.Retry.ToEngine()
		o.EnableFallback = cfg.Engine.EnableFallback
		o.Logger = opts.Logger
	})

	sched, err := scheduler.New(manager, opts.Planner, func(o *scheduler.Options) {
		o.RateLimiter = opts.RateLimiter
		o.Validator = opts.Validator
		o.Sanitizer = opts.Sanitizer
		o.Watermarker = opts.Watermarker
		o.Audit = opts.Audit
		o.Cache = opts.Cache
		if opts.Fuser != nil {
			o.Fuser = opts.Fuser
		}
		o.TaskTimeout = time.Duration(cfg.Scheduler.TaskTimeoutMs) * time.Millisecond
		o.TaskRetry = cfg.Scheduler.TaskRetry.ToEngine()
		o.HistorySize = cfg.Scheduler.HistorySize
		o.Logger = opts.Logger
	})
	if err != nil {
		return nil, err
	}

	return &Kernel{
		cfg:       cfg,
		manager:   manager,
		scheduler: sched,
		logger:    opts.Logger,
		admission: semaphore.NewWeighted(int64(cfg.MaxConcurrentRequests)),
	}, nil
}

// Initialize loads the configured model. It must be called before
// Process or ProcessStream; generation fails fast otherwise.
func (k *Kernel) Initialize(ctx context.Context) error {
	if k.cfg.Engine.ModelID == "" {
		return fmt.Errorf("infermesh: engine.model_id is not configured")
	}
	return k.manager.Initialize(ctx, engine.InitConfig{
		ModelID: k.cfg.Engine.ModelID,
		Backend: engine.Backend(k.cfg.Engine.Backend),
	})
}

// InitializeModel loads a specific model, overriding the configured one.
func (k *Kernel) InitializeModel(ctx context.Context, modelID string, backend engine.Backend, progress chan<- engine.LoadProgress) error {
	return k.manager.Initialize(ctx, engine.InitConfig{ModelID: modelID, Backend: backend, Progress: progress})
}

// Process submits one prompt and blocks until the fused result is
// available or the request fails.
func (k *Kernel) Process(ctx context.Context, prompt, userID, sessionID string) (*core.PlanExecutionResult, error) {
	if err := k.admission.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer k.admission.Release(1)
	return k.scheduler.Process(ctx, prompt, userID, sessionID)
}

// ProcessStream submits one prompt for streaming delivery. The chunk
// channel closes after the terminal fusion chunk or on failure; the
// error channel carries at most one terminal error.
func (k *Kernel) ProcessStream(ctx context.Context, prompt, userID, sessionID string) (<-chan core.StreamChunk, <-chan error) {
	if err := k.admission.Acquire(ctx, 1); err != nil {
		chunks := make(chan core.StreamChunk)
		close(chunks)
		errCh := make(chan error, 1)
		errCh <- err
		close(errCh)
		return chunks, errCh
	}

	chunks, errCh := k.scheduler.ProcessStream(ctx, prompt, userID, sessionID)

	out := make(chan core.StreamChunk, 16)
	go func() {
		defer close(out)
		defer k.admission.Release(1)
		for c := range chunks {
			out <- c
		}
	}()
	return out, errCh
}

// Manager exposes the underlying engine manager for model and backend
// control (switch, preload, hardware detection).
func (k *Kernel) Manager() *engine.Manager { return k.manager }

// Scheduler exposes the underlying scheduler for stats and history.
func (k *Kernel) Scheduler() *scheduler.Scheduler { return k.scheduler }

// PerformanceMetrics returns aggregate inference statistics.
func (k *Kernel) PerformanceMetrics() metrics.Snapshot { return k.manager.PerformanceMetrics() }

// ResetMetrics clears inference statistics and scheduler counters.
func (k *Kernel) ResetMetrics() {
	k.manager.ResetMetrics()
	k.scheduler.ResetStats()
}

// Status reports the engine lifecycle state, active model and backend.
func (k *Kernel) Status() (engine.State, string, engine.Backend) { return k.manager.Status() }

// IsReady reports whether the kernel can serve requests.
func (k *Kernel) IsReady() bool { return k.manager.IsReady() }

// Shutdown unloads all engines and rejects further generation.
func (k *Kernel) Shutdown() { k.manager.Shutdown() }
