package anthropic

import (
	"context"
	"errors"
	"testing"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/infermesh/core"
	"github.com/hupe1980/infermesh/engine"
)

func TestNew_Defaults(t *testing.T) {
	e := New("claude-3-5-haiku-latest")
	assert.Equal(t, "claude-3-5-haiku-latest", e.ModelID())
	assert.Equal(t, engine.BackendHosted, e.Backend())
	assert.InDelta(t, 0.7, e.opts.Temperature, 0.001)
	assert.Equal(t, int64(4096), e.opts.MaxTokens)
}

func TestEngine_GenerateRequiresLoad(t *testing.T) {
	e := New("claude-3-5-haiku-latest")
	_, err := e.Generate(context.Background(), engine.Request{Prompt: "hi"})
	assert.ErrorIs(t, err, core.ErrEngineNotInitialized)
}

func TestEngine_LoadEmitsTerminalProgress(t *testing.T) {
	e := New("claude-3-5-haiku-latest")
	progress := make(chan engine.LoadProgress, 1)
	require.NoError(t, e.Load(context.Background(), progress))

	p := <-progress
	assert.True(t, p.Terminal)
	assert.Equal(t, "ready", p.Stage)
}

func TestClassify(t *testing.T) {
	assert.True(t, core.Retryable(classify(&anthropic.Error{StatusCode: 529})))
	assert.True(t, core.Retryable(classify(&anthropic.Error{StatusCode: 429})))
	assert.False(t, core.Retryable(classify(&anthropic.Error{StatusCode: 400})))
	assert.True(t, core.Retryable(classify(errors.New("connection reset"))))
}

func TestBuildParams_RequestOverrides(t *testing.T) {
	e := New("claude-3-5-haiku-latest")
	temp := 0.2
	params := e.buildParams(engine.Request{Prompt: "hi", Temperature: &temp, MaxTokens: 128})
	assert.Equal(t, anthropic.Model("claude-3-5-haiku-latest"), params.Model)
	assert.Equal(t, 0.2, params.Temperature.Value)
	assert.Equal(t, int64(128), params.MaxTokens)
}
