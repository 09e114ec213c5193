package plan

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/infermesh/core"
)

func TestNewProducer_RequiresModelKey(t *testing.T) {
	_, err := NewProducer("")
	assert.Error(t, err)
}

func TestNewProducer_RejectsUnknownStrategy(t *testing.T) {
	_, err := NewProducer("tiny", func(o *ProducerOptions) { o.Strategy = "fanout" })
	assert.Error(t, err)
}

func TestProducer_CreatePlan_Defaults(t *testing.T) {
	p, err := NewProducer("tiny")
	require.NoError(t, err)

	ep, err := p.CreatePlan(context.Background(), "2+2?")
	require.NoError(t, err)
	assert.Equal(t, "primary", ep.Primary.AgentName)
	assert.Equal(t, "tiny", ep.Primary.ModelKey)
	assert.Equal(t, "2+2?", ep.Primary.Prompt)
	assert.Equal(t, core.PriorityHigh, ep.Primary.Priority)
	assert.Equal(t, core.StrategySerial, ep.Strategy)
	assert.Empty(t, ep.Fallbacks)
}

func TestProducer_CreatePlan_WithExperts(t *testing.T) {
	p, err := NewProducer("tiny", func(o *ProducerOptions) {
		o.Strategy = core.StrategyParallelLimited
		o.Experts = []ExpertSpec{
			{AgentName: "caveats", PromptPrefix: "List caveats for: ", Priority: core.PriorityLow},
			{ModelKey: "large"},
		}
	})
	require.NoError(t, err)

	ep, err := p.CreatePlan(context.Background(), "2+2?")
	require.NoError(t, err)
	require.Len(t, ep.Fallbacks, 2)

	assert.Equal(t, "caveats", ep.Fallbacks[0].AgentName)
	assert.Equal(t, "List caveats for: 2+2?", ep.Fallbacks[0].Prompt)
	assert.Equal(t, core.PriorityLow, ep.Fallbacks[0].Priority)
	assert.Equal(t, "tiny", ep.Fallbacks[0].ModelKey, "expert inherits primary model key")

	assert.Equal(t, "expert-2", ep.Fallbacks[1].AgentName)
	assert.Equal(t, "large", ep.Fallbacks[1].ModelKey)
	assert.Equal(t, core.PriorityMedium, ep.Fallbacks[1].Priority)
}

func TestProducer_CreatePlan_WithTemplate(t *testing.T) {
	p, err := NewProducer("tiny", func(o *ProducerOptions) {
		o.Experts = []ExpertSpec{
			{AgentName: "critic", PromptTemplate: "Critique this answer request: {{.Prompt}} (model {{.ModelKey}})"},
			{AgentName: "broken", PromptTemplate: "{{.Oops"},
		}
	})
	require.NoError(t, err)

	_, err = p.CreatePlan(context.Background(), "2+2?")
	assert.ErrorContains(t, err, "broken")

	p, err = NewProducer("tiny", func(o *ProducerOptions) {
		o.Experts = []ExpertSpec{
			{AgentName: "critic", PromptTemplate: "Critique this answer request: {{.Prompt}} (model {{.ModelKey}})"},
		}
	})
	require.NoError(t, err)

	ep, err := p.CreatePlan(context.Background(), "2+2?")
	require.NoError(t, err)
	require.Len(t, ep.Fallbacks, 1)
	assert.Equal(t, "Critique this answer request: 2+2? (model tiny)", ep.Fallbacks[0].Prompt)
}

func TestProducer_CreatePlan_ValidatesOutput(t *testing.T) {
	p, err := NewProducer("tiny")
	require.NoError(t, err)

	_, err = p.CreatePlan(context.Background(), "")
	assert.Error(t, err, "empty prompt must fail plan validation")
}
