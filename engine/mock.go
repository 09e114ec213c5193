package engine

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/hupe1980/infermesh/core"
)

// MockEngine is a lightweight in-memory Engine useful for tests and
// examples. Responses can be scripted per prompt, and failures can be
// injected to exercise retry and fallback paths.
type MockEngine struct {
	mu        sync.Mutex
	modelID   string
	backend   Backend
	loaded    bool
	responses map[string]string

	// failNext injects transient errors for the next N generations.
	failNext int

	// failAlways makes every generation fail, useful for demotion tests.
	failAlways bool

	// failErr overrides the default injected failure error when set.
	failErr error

	// loadErr makes Load fail when set.
	loadErr error

	generateCount int
	loadDelay     time.Duration
}

// NewMockEngine constructs a loaded-on-demand mock for the given model.
func NewMockEngine(modelID string, backend Backend) *MockEngine {
	return &MockEngine{
		modelID:   modelID,
		backend:   backend,
		responses: make(map[string]string),
	}
}

// AddResponse registers a deterministic canned completion for a prompt.
func (m *MockEngine) AddResponse(prompt, response string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses[prompt] = response
}

// FailNext makes the next n generations return a retryable error.
func (m *MockEngine) FailNext(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failNext = n
}

// FailAlways makes every generation fail with a retryable error.
func (m *MockEngine) FailAlways(v bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failAlways = v
}

// FailWith sets the error returned by injected generation failures.
// Nil restores the default transient error.
func (m *MockEngine) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failErr = err
}

// FailLoad makes Load return err.
func (m *MockEngine) FailLoad(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loadErr = err
}

// GenerateCount returns how many generations ran, including failures.
func (m *MockEngine) GenerateCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.generateCount
}

// ModelID implements Engine.
func (m *MockEngine) ModelID() string { return m.modelID }

// Backend implements Engine.
func (m *MockEngine) Backend() Backend { return m.backend }

// Load implements Engine; emits staged progress events.
func (m *MockEngine) Load(ctx context.Context, progress chan<- LoadProgress) error {
	m.mu.Lock()
	loadErr := m.loadErr
	delay := m.loadDelay
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}

	emit := func(p LoadProgress) {
		if progress != nil {
			p.ModelID = m.modelID
			progress <- p
		}
	}

	emit(LoadProgress{Stage: "downloading", Percent: 50})
	if loadErr != nil {
		emit(LoadProgress{Stage: "failed", Percent: 50, Terminal: true, Err: loadErr})
		return &core.ModelLoadError{ModelID: m.modelID, Backend: string(m.backend), Err: loadErr}
	}
	emit(LoadProgress{Stage: "ready", Percent: 100, Terminal: true})

	m.mu.Lock()
	m.loaded = true
	m.mu.Unlock()
	return nil
}

// Generate implements Engine.
func (m *MockEngine) Generate(ctx context.Context, req Request) (*Result, error) {
	return m.generate(ctx, req, nil)
}

// GenerateStream implements Engine; emits the response one rune at a time.
func (m *MockEngine) GenerateStream(ctx context.Context, req Request, emit func(chunk string)) (*Result, error) {
	return m.generate(ctx, req, emit)
}

func (m *MockEngine) generate(ctx context.Context, req Request, emit func(chunk string)) (*Result, error) {
	start := time.Now()

	m.mu.Lock()
	if !m.loaded {
		m.mu.Unlock()
		return nil, core.ErrEngineNotInitialized
	}
	m.generateCount++
	if m.failAlways || m.failNext > 0 {
		if m.failNext > 0 {
			m.failNext--
		}
		failErr := m.failErr
		m.mu.Unlock()
		if failErr != nil {
			return nil, failErr
		}
		return nil, &core.InferenceError{Retryable: true, Err: fmt.Errorf("mock engine %s: injected failure", m.modelID)}
	}
	full, ok := m.responses[req.Prompt]
	m.mu.Unlock()

	if !ok {
		full = fmt.Sprintf("Mock response to: %s", req.Prompt)
	}

	if emit != nil {
		for _, r := range full {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			default:
			}
			emit(string(r))
		}
	} else {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
	}

	return &Result{
		Text:            full,
		TokensGenerated: len(strings.Fields(full)),
		Latency:         time.Since(start),
		ModelID:         m.modelID,
		Backend:         m.backend,
		FinishReason:    "stop",
	}, nil
}

// Unload implements Engine.
func (m *MockEngine) Unload() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loaded = false
	return nil
}

// MockFactory returns a Factory producing MockEngines. configure, when
// non-nil, customizes each created engine before it is returned.
func MockFactory(configure func(m *MockEngine)) Factory {
	return func(modelID string, backend Backend) (Engine, error) {
		m := NewMockEngine(modelID, backend)
		if configure != nil {
			configure(m)
		}
		return m, nil
	}
}
