package core

// Priority orders tasks admitted to a shared dispatch queue. It only
// influences queue ordering, never correctness.
type Priority string

const (
	// PriorityHigh is used for tasks that should jump ahead of pending work.
	PriorityHigh Priority = "high"
	// PriorityMedium is the default priority for speculative fallback tasks.
	PriorityMedium Priority = "medium"
	// PriorityLow marks best-effort tasks.
	PriorityLow Priority = "low"
)

// Weight maps a priority to its numeric scheduling weight. Unknown
// priorities weigh zero and fail plan validation.
func (p Priority) Weight() int {
	switch p {
	case PriorityHigh:
		return 3
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 1
	default:
		return 0
	}
}

// Valid reports whether p is a known priority.
func (p Priority) Valid() bool { return p.Weight() > 0 }

// Strategy selects which process-wide bounded queue a plan's tasks are
// dispatched through. Queues are shared across concurrent requests, so
// all requests using the same strategy share one concurrency budget.
type Strategy string

const (
	// StrategySerial dispatches one task at a time.
	StrategySerial Strategy = "serial"
	// StrategyParallelLimited allows two in-flight tasks.
	StrategyParallelLimited Strategy = "parallel_limited"
	// StrategyParallelFull allows four in-flight tasks.
	StrategyParallelFull Strategy = "parallel_full"
)

// Concurrency returns the queue bound for the strategy.
func (s Strategy) Concurrency() int {
	switch s {
	case StrategySerial:
		return 1
	case StrategyParallelLimited:
		return 2
	case StrategyParallelFull:
		return 4
	default:
		return 0
	}
}

// Valid reports whether s is a known strategy.
func (s Strategy) Valid() bool { return s.Concurrency() > 0 }

// Task is one unit of generation work. Tasks are immutable once created
// by the plan producer; the scheduler never rewrites them.
type Task struct {
	// AgentName is the logical identity of the task. It labels results and
	// fused sections but plays no role in dispatch decisions.
	AgentName string

	// ModelKey identifies the engine/model the task targets.
	ModelKey string

	// Prompt is the text submitted for generation.
	Prompt string

	// Temperature optionally overrides the engine default.
	Temperature *float64

	// Priority maps to the numeric weight used for queue ordering.
	Priority Priority
}
