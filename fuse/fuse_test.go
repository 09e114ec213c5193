package fuse

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hupe1980/infermesh/core"
)

func successResult(agent, text string) *core.TaskExecutionResult {
	return &core.TaskExecutionResult{AgentName: agent, Status: core.StatusSuccess, Result: text}
}

func TestDefaultFuser_PrimaryOnly(t *testing.T) {
	f := NewDefaultFuser()

	out, err := f.Fuse(core.FuseInput{Primary: successResult("primary", "4")})
	assert.NoError(t, err)
	assert.Equal(t, "4", out)
}

func TestDefaultFuser_WithExperts(t *testing.T) {
	f := NewDefaultFuser()

	out, err := f.Fuse(core.FuseInput{
		Primary: successResult("primary", "lead answer"),
		Experts: []*core.TaskExecutionResult{
			successResult("historian", "historical context"),
			successResult("critic", "counterpoints"),
		},
	})
	assert.NoError(t, err)
	assert.Contains(t, out, "lead answer")
	assert.Contains(t, out, "--- historian ---")
	assert.Contains(t, out, "historical context")
	assert.Contains(t, out, "counterpoints")
}

func TestDefaultFuser_FallbackOnly(t *testing.T) {
	f := NewDefaultFuser()

	out, err := f.Fuse(core.FuseInput{
		Primary: &core.TaskExecutionResult{Status: core.StatusError, Err: errors.New("boom")},
		Experts: []*core.TaskExecutionResult{
			successResult("expert-a", "salvaged answer"),
			successResult("expert-b", "extra detail"),
		},
	})
	assert.NoError(t, err)
	assert.Contains(t, out, "salvaged answer")
	assert.Contains(t, out, "extra detail")
}

func TestDefaultFuser_NothingToFuse(t *testing.T) {
	f := NewDefaultFuser()

	_, err := f.Fuse(core.FuseInput{
		Primary: &core.TaskExecutionResult{Status: core.StatusError, Err: errors.New("boom")},
	})
	assert.Error(t, err)
}

func TestDefaultFuser_ExcludeExperts(t *testing.T) {
	f := NewDefaultFuser(func(o *DefaultFuserOptions) { o.IncludeExperts = false })

	out, err := f.Fuse(core.FuseInput{
		Primary: successResult("primary", "just this"),
		Experts: []*core.TaskExecutionResult{successResult("expert", "ignored")},
	})
	assert.NoError(t, err)
	assert.Equal(t, "just this", out)
}
