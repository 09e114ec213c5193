package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/hupe1980/infermesh/core"
	"github.com/hupe1980/infermesh/engine"
	"github.com/hupe1980/infermesh/fuse"
	"github.com/hupe1980/infermesh/guardrail"
	"github.com/hupe1980/infermesh/logging"
)

// InferenceRunner is the generation contract the scheduler dispatches
// tasks against. engine.Manager satisfies it.
type InferenceRunner interface {
	Generate(ctx context.Context, req engine.Request) (*engine.Result, error)
	GenerateStream(ctx context.Context, req engine.Request, emit func(chunk string)) (*engine.Result, error)
}

// primaryWeight outranks every task priority so the primary task is
// always admitted ahead of queued fallbacks.
const primaryWeight = 4

// Options configures a Scheduler. All guardrail and fusion dependencies
// have working in-memory defaults.
type Options struct {
	// RateLimiter gates requests per user. Defaults to a fixed window
	// limiter of 10 requests per minute.
	RateLimiter guardrail.RateLimiter

	// Validator inspects prompts before planning. Defaults to the
	// pattern validator.
	Validator guardrail.InputValidator

	// Sanitizer rewrites generated text. Defaults to the pattern
	// sanitizer. Sanitizer failures degrade gracefully.
	Sanitizer guardrail.OutputSanitizer

	// Watermarker signs generated text. Defaults to the hash
	// watermarker. Watermarker failures degrade gracefully.
	Watermarker guardrail.Watermarker

	// Audit receives security events. Defaults to NoOpAuditSink.
	Audit guardrail.AuditSink

	// Violations tracks per-user validation failures. Defaults to a
	// fresh counter set.
	Violations *guardrail.ViolationCounters

	// Cache stores fused responses. Nil disables caching.
	Cache core.ResponseCache

	// Fuser combines results. Defaults to fuse.NewDefaultFuser().
	Fuser core.Fuser

	// TaskTimeout bounds each task execution including its retries.
	TaskTimeout time.Duration

	// TaskRetry is the per-task retry policy.
	TaskRetry engine.RetryConfig

	// HistorySize bounds the execution history ring.
	HistorySize int

	// Logger provides structured logging. Defaults to NoOpLogger.
	Logger logging.Logger
}

// Scheduler runs the request pipeline. It is safe for concurrent use;
// all requests share the same per-strategy dispatch queues.
type Scheduler struct {
	runner  InferenceRunner
	planner core.PlanProducer

	limiter     guardrail.RateLimiter
	validator   guardrail.InputValidator
	sanitizer   guardrail.OutputSanitizer
	watermarker guardrail.Watermarker
	audit       guardrail.AuditSink
	violations  *guardrail.ViolationCounters

	cache core.ResponseCache
	fuser core.Fuser

	taskTimeout time.Duration
	taskRetry   engine.RetryConfig

	queues map[core.Strategy]*dispatchQueue
	stats  *statsBook
	logger logging.Logger
}

// New constructs a Scheduler over a runner and a plan producer.
func New(runner InferenceRunner, planner core.PlanProducer, optFns ...func(o *Options)) (*Scheduler, error) {
	if runner == nil {
		return nil, fmt.Errorf("scheduler: runner is required")
	}
	if planner == nil {
		return nil, fmt.Errorf("scheduler: plan producer is required")
	}

	opts := Options{
		RateLimiter: guardrail.NewFixedWindowLimiter(),
		Validator:   guardrail.NewPatternValidator(),
		Sanitizer:   guardrail.NewPatternSanitizer(),
		Watermarker: guardrail.NewHashWatermarker(),
		Audit:       guardrail.NoOpAuditSink{},
		Violations:  guardrail.NewViolationCounters(),
		Fuser:       fuse.NewDefaultFuser(),
		TaskTimeout: 30 * time.Second,
		TaskRetry:   engine.DefaultTaskRetryConfig(),
		HistorySize: 100,
		Logger:      logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	return &Scheduler{
		runner:      runner,
		planner:     planner,
		limiter:     opts.RateLimiter,
		validator:   opts.Validator,
		sanitizer:   opts.Sanitizer,
		watermarker: opts.Watermarker,
		audit:       opts.Audit,
		violations:  opts.Violations,
		cache:       opts.Cache,
		fuser:       opts.Fuser,
		taskTimeout: opts.TaskTimeout,
		taskRetry:   opts.TaskRetry,
		queues:      newStrategyQueues(),
		stats:       newStatsBook(opts.HistorySize),
		logger:      opts.Logger,
	}, nil
}

// Process runs the full pipeline for one prompt and blocks until the
// request completes, fails, or ctx is cancelled.
func (s *Scheduler) Process(ctx context.Context, prompt, userID, sessionID string) (*core.PlanExecutionResult, error) {
	return s.process(ctx, prompt, userID, sessionID, nil)
}

// ProcessStream is Process with incremental delivery. Status chunks mark
// stage transitions, primary chunks carry incremental primary text, and
// a single terminal fusion chunk carries the final result. Fallback
// tasks never stream. A primary retry restarts its stream from the
// beginning; already delivered chunks are not retracted.
func (s *Scheduler) ProcessStream(ctx context.Context, prompt, userID, sessionID string) (<-chan core.StreamChunk, <-chan error) {
	chunks := make(chan core.StreamChunk, 16)
	errCh := make(chan error, 1)

	go func() {
		defer close(chunks)
		defer close(errCh)

		emit := func(c core.StreamChunk) {
			select {
			case <-ctx.Done():
			case chunks <- c:
			}
		}

		result, err := s.process(ctx, prompt, userID, sessionID, emit)
		if err != nil {
			emit(core.StreamChunk{Type: core.ChunkStatus, Stage: "failed"})
			errCh <- err
			return
		}
		emit(core.StreamChunk{Type: core.ChunkFusion, Text: result.FusedResponse, Result: result})
	}()

	return chunks, errCh
}

// process is the shared pipeline. emit is nil for blocking requests.
func (s *Scheduler) process(ctx context.Context, prompt, userID, sessionID string, emit func(core.StreamChunk)) (*core.PlanExecutionResult, error) {
	start := time.Now()
	requestID := core.NewID()
	auditCtx := guardrail.AuditContext{UserID: userID, SessionID: sessionID, RequestID: requestID}

	status := func(stage string) {
		if emit != nil {
			emit(core.StreamChunk{Type: core.ChunkStatus, Stage: stage})
		}
	}

	if decision := s.limiter.IsAllowed(userID); !decision.Allowed {
		s.audit.LogSecurityEvent(guardrail.EventRateLimitExceeded, decision.Reason, guardrail.SeverityHigh, auditCtx)
		s.stats.recordRejection()
		return nil, &core.RateLimitError{UserID: userID, Reason: decision.Reason}
	}

	if verdict := s.validator.Validate(prompt); !verdict.Safe {
		s.audit.LogSecurityEvent(guardrail.EventInputValidationFailed, verdict.Reason, verdict.Severity, auditCtx)
		s.violations.Increment(userID, verdict.Category)
		s.stats.recordRejection()
		return nil, &core.InputRejectedError{
			Category: verdict.Category,
			Severity: string(verdict.Severity),
			Reason:   verdict.Reason,
		}
	}
	status("validated")

	// The cache key needs the primary model key, so the plan is acquired
	// before the cache is consulted. Plan producers must stay cheap and
	// deterministic for the lookup to behave as a stage-3 check.
	plan, err := s.planner.CreatePlan(ctx, prompt)
	if err != nil {
		s.stats.recordCompletion(HistoryEntry{RequestID: requestID, Success: false, Duration: time.Since(start), CompletedAt: time.Now()})
		return nil, fmt.Errorf("create plan: %w", err)
	}
	if err := plan.Validate(); err != nil {
		s.stats.recordCompletion(HistoryEntry{RequestID: requestID, Success: false, Duration: time.Since(start), CompletedAt: time.Now()})
		return nil, err
	}
	status("plan_ready")

	if s.cache != nil {
		if entry, ok := s.cache.Get(prompt, plan.Primary.ModelKey); ok {
			s.audit.LogSecurityEvent(guardrail.EventCacheServed, "cache hit", guardrail.SeverityLow, auditCtx)
			status("cache_hit")

			// The cached text is re-watermarked so the signature binds
			// the requester being served, not the one who populated
			// the cache.
			text := s.watermark(entry.Text, plan.Primary.ModelKey, userID, sessionID, auditCtx)

			result := &core.PlanExecutionResult{
				RequestID:     requestID,
				Strategy:      plan.Strategy,
				FusedResponse: text,
				TotalDuration: time.Since(start),
				FromCache:     true,
			}
			s.stats.recordCompletion(HistoryEntry{
				RequestID:   requestID,
				Strategy:    plan.Strategy,
				Success:     true,
				FromCache:   true,
				Duration:    result.TotalDuration,
				CompletedAt: time.Now(),
			})
			return result, nil
		}
	}

	status("dispatching")
	primary, fallbacks := s.dispatch(ctx, plan, emit)

	totalRetries := primary.Retries
	for _, fb := range fallbacks {
		totalRetries += fb.Retries
	}

	result := &core.PlanExecutionResult{
		RequestID: requestID,
		Strategy:  plan.Strategy,
		Primary:   primary,
		Fallbacks: fallbacks,
	}

	experts := result.SuccessfulFallbacks()
	if !primary.Succeeded() && len(experts) == 0 {
		status("primary_failed")
		s.stats.recordCompletion(HistoryEntry{
			RequestID:   requestID,
			Strategy:    plan.Strategy,
			Retries:     totalRetries,
			Duration:    time.Since(start),
			CompletedAt: time.Now(),
		})
		return nil, fmt.Errorf("primary task failed with no salvageable fallbacks: %w", primary.Err)
	}

	if primary.Succeeded() {
		primary.Result = s.guard(primary.Result, plan.Primary.ModelKey, userID, sessionID, auditCtx)
	} else {
		status("degraded_to_fallbacks")
	}

	fused, err := s.fuser.Fuse(core.FuseInput{Primary: primary, Experts: experts})
	if err != nil {
		s.stats.recordCompletion(HistoryEntry{
			RequestID:   requestID,
			Strategy:    plan.Strategy,
			Retries:     totalRetries,
			Duration:    time.Since(start),
			CompletedAt: time.Now(),
		})
		return nil, fmt.Errorf("fuse results: %w", err)
	}
	if !primary.Succeeded() {
		// Fallback-only output skipped the per-result guard pass, so the
		// fused text is guarded as a whole.
		fused = s.guard(fused, plan.Primary.ModelKey, userID, sessionID, auditCtx)
	}
	result.FusedResponse = fused
	result.TotalDuration = time.Since(start)

	if s.cache != nil && primary.Succeeded() {
		s.cache.Set(prompt, plan.Primary.ModelKey, fused, primary.TokensGenerated)
	}

	s.stats.recordCompletion(HistoryEntry{
		RequestID:   requestID,
		Strategy:    plan.Strategy,
		Success:     true,
		Retries:     totalRetries,
		Duration:    result.TotalDuration,
		CompletedAt: time.Now(),
	})
	s.logger.Debug("request %s completed strategy=%s retries=%d duration=%s", requestID, plan.Strategy, totalRetries, result.TotalDuration)
	return result, nil
}

// dispatch submits the primary and all fallback tasks to the plan's
// strategy queue and waits for every task to finish. Queue entries are
// submitted synchronously here, primary first, so the primary precedes
// every fallback in admission order. Fallback failures are recorded,
// never propagated.
func (s *Scheduler) dispatch(ctx context.Context, plan *core.ExecutionPlan, emit func(core.StreamChunk)) (*core.TaskExecutionResult, []*core.TaskExecutionResult) {
	queue := s.queues[plan.Strategy]

	var primary *core.TaskExecutionResult
	fallbacks := make([]*core.TaskExecutionResult, len(plan.Fallbacks))

	primaryItem := queue.submit(primaryWeight)
	done := make(chan struct{})
	go func() {
		defer close(done)
		primary = s.runTask(ctx, queue, primaryItem, plan.Primary, emit)
	}()

	fbDone := make(chan int, len(plan.Fallbacks))
	for i, task := range plan.Fallbacks {
		item := queue.submit(task.Priority.Weight())
		go func(i int, item *queueItem, task core.Task) {
			// Fallbacks run to completion silently; they never stream.
			fallbacks[i] = s.runTask(ctx, queue, item, task, nil)
			fbDone <- i
		}(i, item, task)
	}

	<-done
	for range plan.Fallbacks {
		<-fbDone
	}
	return primary, fallbacks
}

// runTask executes one submitted task through the queue with the
// per-task timeout and retry policy.
func (s *Scheduler) runTask(ctx context.Context, queue *dispatchQueue, item *queueItem, task core.Task, emit func(core.StreamChunk)) *core.TaskExecutionResult {
	result := &core.TaskExecutionResult{
		TaskID:    core.NewID(),
		AgentName: task.AgentName,
		ModelKey:  task.ModelKey,
		StartedAt: time.Now(),
	}

	err := queue.wait(ctx, item, func() {
		taskCtx, cancel := context.WithTimeout(ctx, s.taskTimeout)
		defer cancel()

		req := engine.Request{
			Prompt:      task.Prompt,
			Temperature: task.Temperature,
			ModelKey:    task.ModelKey,
		}

		var genResult *engine.Result
		attempts, genErr := engine.Do(taskCtx, s.taskRetry, func(c context.Context) error {
			var opErr error
			if emit != nil {
				genResult, opErr = s.runner.GenerateStream(c, req, func(chunk string) {
					emit(core.StreamChunk{Type: core.ChunkPrimary, Text: chunk})
				})
			} else {
				genResult, opErr = s.runner.Generate(c, req)
			}
			return opErr
		}, func(attempt int, attemptErr error) {
			s.logger.Warn("task %s attempt %d failed: %v", result.TaskID, attempt, attemptErr)
		})

		result.Retries = attempts - 1
		result.CompletedAt = time.Now()
		result.Duration = result.CompletedAt.Sub(result.StartedAt)

		switch {
		case genErr == nil:
			result.Status = core.StatusSuccess
			result.Result = genResult.Text
			result.TokensGenerated = genResult.TokensGenerated
		case taskCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil:
			result.Status = core.StatusTimeout
			result.Err = core.ErrTaskTimeout
		case ctx.Err() != nil:
			result.Status = core.StatusCancelled
			result.Err = core.ErrTaskCancelled
		default:
			result.Status = core.StatusError
			result.Err = core.WrapUnknown(genErr)
		}
	})
	if err != nil {
		// Cancelled before admission; the task never started.
		result.Status = core.StatusCancelled
		result.Err = core.ErrTaskCancelled
		result.CompletedAt = time.Now()
		result.Duration = result.CompletedAt.Sub(result.StartedAt)
	}
	return result
}

// guard applies sanitation and watermarking to text. Both stages degrade
// gracefully on failure, returning the text unmodified.
func (s *Scheduler) guard(text, modelKey, userID, sessionID string, auditCtx guardrail.AuditContext) string {
	sanitized, err := s.sanitizer.Sanitize(text)
	if err != nil {
		s.logger.Warn("sanitize failed, passing text through: %v", err)
	} else {
		if sanitized.Modified {
			s.audit.LogSecurityEvent(guardrail.EventOutputSanitized,
				fmt.Sprintf("%d redactions", sanitized.Redactions), guardrail.SeverityMedium, auditCtx)
		}
		text = sanitized.Text
	}

	return s.watermark(text, modelKey, userID, sessionID, auditCtx)
}

// watermark signs text for the current requester, degrading gracefully
// on failure.
func (s *Scheduler) watermark(text, modelKey, userID, sessionID string, auditCtx guardrail.AuditContext) string {
	wm, err := s.watermarker.Apply(text, guardrail.WatermarkContext{
		ModelID:   modelKey,
		SessionID: sessionID,
		UserID:    userID,
	})
	if err != nil {
		s.logger.Warn("watermark failed, passing text through: %v", err)
		return text
	}
	s.audit.LogSecurityEvent(guardrail.EventWatermarkApplied, wm.ContentHash, guardrail.SeverityLow, auditCtx)
	return wm.Text
}

// Stats returns the aggregate request counters.
func (s *Scheduler) Stats() Stats { return s.stats.snapshot() }

// History returns the bounded execution history, oldest first.
func (s *Scheduler) History() []HistoryEntry { return s.stats.historySnapshot() }

// ResetStats clears counters and history.
func (s *Scheduler) ResetStats() { s.stats.reset() }

// Violations exposes the per-user validation failure counters.
func (s *Scheduler) Violations() *guardrail.ViolationCounters { return s.violations }

// QueueDepth reports waiting and running tasks for a strategy queue.
func (s *Scheduler) QueueDepth(strategy core.Strategy) (waiting, running int) {
	q, ok := s.queues[strategy]
	if !ok {
		return 0, 0
	}
	return q.depth()
}
