package core

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func validPlan() *ExecutionPlan {
	return &ExecutionPlan{
		Primary:  Task{AgentName: "primary", ModelKey: "tiny", Prompt: "hello", Priority: PriorityHigh},
		Strategy: StrategySerial,
	}
}

func TestPriorityWeights(t *testing.T) {
	assert.Equal(t, 3, PriorityHigh.Weight())
	assert.Equal(t, 2, PriorityMedium.Weight())
	assert.Equal(t, 1, PriorityLow.Weight())
	assert.Equal(t, 0, Priority("urgent").Weight())
	assert.False(t, Priority("urgent").Valid())
}

func TestStrategyConcurrency(t *testing.T) {
	assert.Equal(t, 1, StrategySerial.Concurrency())
	assert.Equal(t, 2, StrategyParallelLimited.Concurrency())
	assert.Equal(t, 4, StrategyParallelFull.Concurrency())
	assert.False(t, Strategy("fanout").Valid())
}

func TestExecutionPlan_Validate(t *testing.T) {
	assert.NoError(t, validPlan().Validate())

	p := validPlan()
	p.Strategy = "fanout"
	assert.ErrorContains(t, p.Validate(), "unknown strategy")

	p = validPlan()
	p.Primary.ModelKey = ""
	assert.ErrorContains(t, p.Validate(), "no model key")

	p = validPlan()
	p.Primary.Prompt = ""
	assert.ErrorContains(t, p.Validate(), "empty prompt")

	p = validPlan()
	p.Fallbacks = []Task{{AgentName: "expert", ModelKey: "tiny", Prompt: "hello", Priority: "nope"}}
	assert.ErrorContains(t, p.Validate(), "fallback[0]")

	var nilPlan *ExecutionPlan
	assert.Error(t, nilPlan.Validate())
}

func TestErrorTaxonomy(t *testing.T) {
	rl := &RateLimitError{UserID: "u1", Reason: "window exhausted"}
	assert.Contains(t, rl.Error(), "u1")
	assert.Contains(t, rl.Error(), "window exhausted")

	ir := &InputRejectedError{Category: "prompt_injection", Severity: "high", Reason: "blocked pattern"}
	assert.Contains(t, ir.Error(), "prompt_injection")

	inner := errors.New("device lost")
	le := &ModelLoadError{ModelID: "m1", Backend: "gpu", Err: inner}
	assert.ErrorIs(t, le, inner)

	ie := &InferenceError{Retryable: true, Err: inner}
	assert.ErrorIs(t, ie, inner)
	assert.True(t, Retryable(ie))
	assert.False(t, Retryable(&InferenceError{Retryable: false, Err: inner}))
	assert.False(t, Retryable(inner))
}

func TestWrapUnknown(t *testing.T) {
	assert.NoError(t, WrapUnknown(nil))

	classified := []error{
		ErrEngineNotInitialized,
		ErrTaskCancelled,
		ErrTaskTimeout,
		&RateLimitError{UserID: "u1"},
		&InputRejectedError{Category: "prompt_injection"},
		&ModelLoadError{ModelID: "m1", Err: errors.New("boom")},
		&InferenceError{Retryable: true, Err: errors.New("boom")},
	}
	for _, err := range classified {
		assert.Same(t, err, WrapUnknown(err))
	}

	wrapped := WrapUnknown(errors.New("disk exploded"))
	var ue *UnknownError
	assert.ErrorAs(t, wrapped, &ue)
	assert.Contains(t, wrapped.Error(), "disk exploded")

	// Already-wrapped errors are not wrapped twice.
	assert.Same(t, wrapped, WrapUnknown(wrapped))
}

func TestPlanExecutionResult_SuccessfulFallbacks(t *testing.T) {
	res := &PlanExecutionResult{
		Fallbacks: []*TaskExecutionResult{
			{AgentName: "a", Status: StatusSuccess, Result: "ok"},
			{AgentName: "b", Status: StatusError, Err: errors.New("boom")},
			{AgentName: "c", Status: StatusSuccess, Result: "fine"},
		},
	}
	ok := res.SuccessfulFallbacks()
	assert.Len(t, ok, 2)
	assert.Equal(t, "a", ok[0].AgentName)
	assert.Equal(t, "c", ok[1].AgentName)
}

func TestNewID_Unique(t *testing.T) {
	a := NewID()
	b := NewID()
	assert.NotEmpty(t, a)
	assert.NotEqual(t, a, b)
}
