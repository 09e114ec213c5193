package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/hupe1980/infermesh/core"
	"github.com/hupe1980/infermesh/logging"
	"github.com/hupe1980/infermesh/metrics"
)

// hardwareFailureFragments mark error messages caused by the
// accelerating device or its resources rather than by the request.
var hardwareFailureFragments = []string{
	"out of memory", "oom", "cuda", "gpu", "device", "driver", "hardware", "resource",
}

// hardwareFailure reports whether err justifies demoting the accelerated
// backend to CPU. Transient inference failures count as resource
// pressure; request-level rejections and cancellations do not.
func hardwareFailure(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var ie *core.InferenceError
	if errors.As(err, &ie) && ie.Retryable {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, frag := range hardwareFailureFragments {
		if strings.Contains(msg, frag) {
			return true
		}
	}
	return false
}

// State describes the Manager lifecycle.
type State string

const (
	StateUninitialized State = "uninitialized"
	StateInitializing  State = "initializing"
	StateReady         State = "ready"
	StateGenerating    State = "generating"
	StateFailed        State = "failed"
	StateShutdown      State = "shutdown"
)

// ManagerOptions configures a Manager.
type ManagerOptions struct {
	// Factory creates engines on demand. Defaults to MockFactory.
	Factory Factory

	// PoolSize bounds the number of concurrently loaded engines.
	PoolSize int

	// Retry is the backend-level retry policy for generation calls.
	Retry RetryConfig

	// EnableFallback controls GPU to CPU demotion after exhausted
	// retries. Demotion only applies to the GPU backend.
	EnableFallback bool

	// Recorder receives one record per generation. Defaults to a fresh
	// Recorder owned by the Manager.
	Recorder *metrics.Recorder

	// Logger provides structured logging. Defaults to NoOpLogger.
	Logger logging.Logger
}

// Manager owns engine lifecycle: initialization, pooled loading, retry
// with backend demotion, model and backend switching, and performance
// metrics. All methods are safe for concurrent use.
type Manager struct {
	mu      sync.Mutex
	state   State
	modelID string
	backend Backend

	pool     *enginePool
	factory  Factory
	retry    RetryConfig
	fallback bool
	recorder *metrics.Recorder
	logger   logging.Logger

	hwOnce sync.Once
	hw     HardwareInfo
	hwErr  error

	generating int
}

// NewManager constructs an uninitialized Manager.
func NewManager(optFns ...func(o *ManagerOptions)) *Manager {
	opts := ManagerOptions{
		Factory:        MockFactory(nil),
		PoolSize:       3,
		Retry:          DefaultEngineRetryConfig(),
		EnableFallback: true,
		Logger:         logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Recorder == nil {
		opts.Recorder = metrics.NewRecorder()
	}

	return &Manager{
		state:    StateUninitialized,
		factory:  opts.Factory,
		pool:     newEnginePool(opts.PoolSize, opts.Factory, opts.Retry, opts.Logger),
		retry:    opts.Retry,
		fallback: opts.EnableFallback,
		recorder: opts.Recorder,
		logger:   opts.Logger,
	}
}

// InitConfig parameterizes Initialize.
type InitConfig struct {
	ModelID string

	// Backend selects the execution backend. Empty means auto-detect.
	Backend Backend

	// Progress, when non-nil, receives model loading updates.
	Progress chan<- LoadProgress
}

// DetectHardware probes the host once and caches the result.
func (m *Manager) DetectHardware() (HardwareInfo, error) {
	m.hwOnce.Do(func() {
		m.hw, m.hwErr = ProbeHardware()
	})
	return m.hw, m.hwErr
}

// AutoSelectBackend returns the recommended backend for this host.
func (m *Manager) AutoSelectBackend() (Backend, error) {
	hw, err := m.DetectHardware()
	if err != nil {
		return "", err
	}
	return hw.RecommendedUse, nil
}

// Initialize loads the configured model and moves the Manager to ready.
// A failed load leaves the Manager in the failed state; Initialize may
// be called again to recover.
func (m *Manager) Initialize(ctx context.Context, cfg InitConfig) error {
	if cfg.ModelID == "" {
		return fmt.Errorf("model id is required")
	}

	backend := cfg.Backend
	if backend == "" {
		selected, err := m.AutoSelectBackend()
		if err != nil {
			return fmt.Errorf("auto-select backend: %w", err)
		}
		backend = selected
	}
	if !backend.Valid() {
		return fmt.Errorf("invalid backend %q", backend)
	}

	m.mu.Lock()
	if m.state == StateShutdown {
		m.mu.Unlock()
		return fmt.Errorf("manager is shut down")
	}
	m.state = StateInitializing
	m.mu.Unlock()

	m.logger.Info("initializing model %s on backend %s", cfg.ModelID, backend)

	eng, err := m.pool.acquire(ctx, cfg.ModelID, backend, cfg.Progress)
	if err != nil && ctx.Err() == nil && m.fallback && backend.Fallback() != "" && hardwareFailure(err) {
		demoted := backend.Fallback()
		m.logger.Warn("loading %s on backend %s failed, demoting to %s: %v", cfg.ModelID, backend, demoted, err)
		backend = demoted
		eng, err = m.pool.acquire(ctx, cfg.ModelID, backend, cfg.Progress)
	}
	if err != nil {
		m.mu.Lock()
		m.state = StateFailed
		m.mu.Unlock()
		return &core.ModelLoadError{ModelID: cfg.ModelID, Backend: string(backend), Err: err}
	}
	m.pool.release(eng.ModelID(), eng.Backend())

	m.mu.Lock()
	m.state = StateReady
	m.modelID = cfg.ModelID
	m.backend = backend
	m.mu.Unlock()
	return nil
}

// PreloadModel loads a model into the pool without making it active.
func (m *Manager) PreloadModel(ctx context.Context, modelID string, backend Backend) error {
	if modelID == "" {
		return fmt.Errorf("model id is required")
	}
	if backend == "" {
		selected, err := m.AutoSelectBackend()
		if err != nil {
			return err
		}
		backend = selected
	}
	eng, err := m.pool.acquire(ctx, modelID, backend, nil)
	if err != nil {
		return &core.ModelLoadError{ModelID: modelID, Backend: string(backend), Err: err}
	}
	m.pool.release(eng.ModelID(), eng.Backend())
	return nil
}

// SwitchModel makes a different model the active generation target. The
// previous model stays pooled until evicted.
func (m *Manager) SwitchModel(ctx context.Context, modelID string) error {
	m.mu.Lock()
	backend := m.backend
	ready := m.state == StateReady || m.state == StateGenerating
	m.mu.Unlock()
	if !ready {
		return core.ErrEngineNotInitialized
	}

	if err := m.PreloadModel(ctx, modelID, backend); err != nil {
		return err
	}

	m.mu.Lock()
	m.modelID = modelID
	m.mu.Unlock()
	return nil
}

// SwitchBackend reloads the active model on a different backend.
func (m *Manager) SwitchBackend(ctx context.Context, backend Backend) error {
	if !backend.Valid() {
		return fmt.Errorf("invalid backend %q", backend)
	}

	m.mu.Lock()
	modelID := m.modelID
	ready := m.state == StateReady || m.state == StateGenerating
	m.mu.Unlock()
	if !ready {
		return core.ErrEngineNotInitialized
	}

	if err := m.PreloadModel(ctx, modelID, backend); err != nil {
		return err
	}

	m.mu.Lock()
	m.backend = backend
	m.mu.Unlock()
	return nil
}

// Generate runs one completion with retry and optional backend
// demotion. Request.ModelKey routes to a pooled model other than the
// active one.
func (m *Manager) Generate(ctx context.Context, req Request) (*Result, error) {
	return m.run(ctx, req, nil)
}

// GenerateStream is Generate with chunk emission. A retried attempt
// restarts the stream from the beginning, so emit may observe chunks
// from abandoned attempts; callers that buffer per attempt should reset
// on retry via the onAttempt hook of Do or buffer externally.
func (m *Manager) GenerateStream(ctx context.Context, req Request, emit func(chunk string)) (*Result, error) {
	if emit == nil {
		return nil, fmt.Errorf("emit callback is required")
	}
	return m.run(ctx, req, emit)
}

func (m *Manager) run(ctx context.Context, req Request, emit func(chunk string)) (*Result, error) {
	m.mu.Lock()
	if m.state != StateReady && m.state != StateGenerating {
		m.mu.Unlock()
		return nil, core.ErrEngineNotInitialized
	}
	modelID := m.modelID
	backend := m.backend
	if req.ModelKey != "" {
		modelID = req.ModelKey
	}
	m.generating++
	m.state = StateGenerating
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.generating--
		if m.generating == 0 && m.state == StateGenerating {
			m.state = StateReady
		}
		m.mu.Unlock()
	}()

	res, attempts, err := m.runOnBackend(ctx, modelID, backend, req, emit, false)
	if err != nil && ctx.Err() == nil && m.fallback && backend.Fallback() != "" && hardwareFailure(err) {
		demoted := backend.Fallback()
		m.logger.Warn("backend %s failed for model %s, demoting to %s: %v", backend, modelID, demoted, err)

		// The demotion is sticky: later calls go straight to the
		// demoted backend instead of re-probing the failing one.
		m.mu.Lock()
		if m.backend == backend {
			m.backend = demoted
		}
		m.mu.Unlock()

		var demotedAttempts int
		res, demotedAttempts, err = m.runOnBackend(ctx, modelID, demoted, req, emit, true)
		attempts += demotedAttempts
	}
	if err != nil {
		return nil, err
	}
	if attempts > 0 {
		res.Retries = attempts - 1
	}
	return res, nil
}

// runOnBackend executes the generation on a specific backend with the
// retry policy, recording one metrics record for the whole call. It
// returns the number of generation attempts made so the caller can
// accumulate retries across backend demotion.
func (m *Manager) runOnBackend(ctx context.Context, modelID string, backend Backend, req Request, emit func(chunk string), usedFallback bool) (*Result, int, error) {
	start := time.Now()

	eng, err := m.pool.acquire(ctx, modelID, backend, nil)
	if err != nil {
		m.record(time.Since(start), 0, false, 0, usedFallback)
		return nil, 0, err
	}
	defer m.pool.release(modelID, backend)

	var res *Result
	attempts, err := Do(ctx, m.retry, func(ctx context.Context) error {
		var genErr error
		if emit != nil {
			res, genErr = eng.GenerateStream(ctx, req, emit)
		} else {
			res, genErr = eng.Generate(ctx, req)
		}
		return genErr
	}, func(attempt int, attemptErr error) {
		m.logger.Warn("generation attempt %d on %s/%s failed: %v", attempt, modelID, backend, attemptErr)
	})

	retries := attempts - 1
	if err != nil {
		m.record(time.Since(start), 0, false, retries, usedFallback)
		return nil, attempts, err
	}

	res.UsedFallback = usedFallback
	m.record(res.Latency, res.TokensGenerated, true, retries, usedFallback)
	m.logger.Debug("generated %d tokens on %s/%s retries=%d fallback=%t", res.TokensGenerated, modelID, backend, retries, usedFallback)
	return res, attempts, nil
}

func (m *Manager) record(latency time.Duration, tokens int, success bool, retries int, usedFallback bool) {
	m.recorder.Record(metrics.Record{
		Latency:         latency,
		TokensGenerated: tokens,
		Success:         success,
		Retries:         retries,
		UsedFallback:    usedFallback,
	})
}

// PerformanceMetrics returns the aggregate generation statistics.
func (m *Manager) PerformanceMetrics() metrics.Snapshot {
	return m.recorder.Snapshot()
}

// ResetMetrics clears the metrics window.
func (m *Manager) ResetMetrics() { m.recorder.Reset() }

// Recorder exposes the underlying metrics recorder, for example to
// register a prometheus collector over it.
func (m *Manager) Recorder() *metrics.Recorder { return m.recorder }

// Status returns the current lifecycle state and active model.
func (m *Manager) Status() (State, string, Backend) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state, m.modelID, m.backend
}

// IsReady reports whether the Manager can serve generations.
func (m *Manager) IsReady() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state == StateReady || m.state == StateGenerating
}

// Shutdown unloads all pooled engines and rejects further use.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	m.state = StateShutdown
	m.mu.Unlock()
	m.pool.shutdown()
}
