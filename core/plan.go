package core

import (
	"context"
	"fmt"
)

// ExecutionPlan is one primary task plus an ordered set of speculative
// fallback tasks. A plan is created fresh per request, never mutated,
// and owned exclusively by the scheduler for the request's lifetime.
type ExecutionPlan struct {
	Primary   Task
	Fallbacks []Task
	Strategy  Strategy
}

// Validate fails fast on malformed plans so producer errors surface at
// the boundary instead of deep inside dispatch.
func (p *ExecutionPlan) Validate() error {
	if p == nil {
		return fmt.Errorf("plan: nil execution plan")
	}
	if !p.Strategy.Valid() {
		return fmt.Errorf("plan: unknown strategy %q", p.Strategy)
	}
	if err := validateTask("primary", p.Primary); err != nil {
		return err
	}
	for i, fb := range p.Fallbacks {
		if err := validateTask(fmt.Sprintf("fallback[%d]", i), fb); err != nil {
			return err
		}
	}
	return nil
}

func validateTask(label string, t Task) error {
	if t.ModelKey == "" {
		return fmt.Errorf("plan: %s task has no model key", label)
	}
	if t.Prompt == "" {
		return fmt.Errorf("plan: %s task has an empty prompt", label)
	}
	if !t.Priority.Valid() {
		return fmt.Errorf("plan: %s task has unknown priority %q", label, t.Priority)
	}
	return nil
}

// PlanProducer turns a raw prompt into an execution plan. The returned
// plan is treated as authoritative; the scheduler validates its shape
// but never second-guesses its routing.
type PlanProducer interface {
	CreatePlan(ctx context.Context, prompt string) (*ExecutionPlan, error)
}

// PlanProducerFunc adapts a plain function to the PlanProducer interface.
type PlanProducerFunc func(ctx context.Context, prompt string) (*ExecutionPlan, error)

// CreatePlan implements PlanProducer.
func (f PlanProducerFunc) CreatePlan(ctx context.Context, prompt string) (*ExecutionPlan, error) {
	return f(ctx, prompt)
}
