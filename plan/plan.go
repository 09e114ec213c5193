package plan

import (
	"context"
	"fmt"

	"github.com/hupe1980/infermesh/core"
	"github.com/hupe1980/infermesh/internal/prompt"
)

// ExpertSpec declares one speculative fallback task added to every plan.
type ExpertSpec struct {
	AgentName string
	ModelKey  string
	// PromptPrefix is prepended to the request prompt, letting an expert
	// reframe the question (e.g. "List caveats for: ").
	PromptPrefix string
	// PromptTemplate, when set, replaces PromptPrefix handling entirely.
	// It is rendered with {{.Prompt}}, {{.ModelKey}} and {{.AgentName}}.
	PromptTemplate string
	Priority       core.Priority
}

// Producer builds execution plans with a fixed primary model and a fixed
// expert roster. Plans are created fresh per request and validated before
// being handed to the scheduler.
type Producer struct {
	agentName string
	modelKey  string
	strategy  core.Strategy
	experts   []ExpertSpec
}

// ProducerOptions configures a Producer.
type ProducerOptions struct {
	// AgentName labels the primary task. Defaults to "primary".
	AgentName string
	// Strategy selects the dispatch queue for produced plans.
	Strategy core.Strategy
	// Experts lists the fallback tasks attached to every plan.
	Experts []ExpertSpec
}

// NewProducer constructs a Producer targeting the given model with a
// serial strategy and no experts unless overridden.
func NewProducer(modelKey string, optFns ...func(o *ProducerOptions)) (*Producer, error) {
	if modelKey == "" {
		return nil, fmt.Errorf("plan: model key must not be empty")
	}
	opts := ProducerOptions{AgentName: "primary", Strategy: core.StrategySerial}
	for _, fn := range optFns {
		fn(&opts)
	}
	if !opts.Strategy.Valid() {
		return nil, fmt.Errorf("plan: unknown strategy %q", opts.Strategy)
	}
	experts := make([]ExpertSpec, len(opts.Experts))
	copy(experts, opts.Experts)
	for i := range experts {
		if experts[i].Priority == "" {
			experts[i].Priority = core.PriorityMedium
		}
		if experts[i].ModelKey == "" {
			experts[i].ModelKey = modelKey
		}
		if experts[i].AgentName == "" {
			experts[i].AgentName = fmt.Sprintf("expert-%d", i+1)
		}
	}
	return &Producer{
		agentName: opts.AgentName,
		modelKey:  modelKey,
		strategy:  opts.Strategy,
		experts:   experts,
	}, nil
}

// CreatePlan implements core.PlanProducer.
func (p *Producer) CreatePlan(_ context.Context, input string) (*core.ExecutionPlan, error) {
	ep := &core.ExecutionPlan{
		Primary: core.Task{
			AgentName: p.agentName,
			ModelKey:  p.modelKey,
			Prompt:    input,
			Priority:  core.PriorityHigh,
		},
		Strategy: p.strategy,
	}
	for _, ex := range p.experts {
		text := ex.PromptPrefix + input
		if ex.PromptTemplate != "" {
			rendered, err := prompt.Render(ex.PromptTemplate, prompt.Vars{
				Prompt:    input,
				ModelKey:  ex.ModelKey,
				AgentName: ex.AgentName,
			})
			if err != nil {
				return nil, fmt.Errorf("plan: expert %q template: %w", ex.AgentName, err)
			}
			text = rendered
		}
		ep.Fallbacks = append(ep.Fallbacks, core.Task{
			AgentName: ex.AgentName,
			ModelKey:  ex.ModelKey,
			Prompt:    text,
			Priority:  ex.Priority,
		})
	}
	if err := ep.Validate(); err != nil {
		return nil, err
	}
	return ep, nil
}
