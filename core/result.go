package core

import "time"

// Status is the terminal state of one attempted task.
type Status string

const (
	// StatusSuccess marks a task that produced text.
	StatusSuccess Status = "success"
	// StatusError marks a task abandoned after retry exhaustion.
	StatusError Status = "error"
	// StatusTimeout marks a task that exceeded its per-task deadline.
	StatusTimeout Status = "timeout"
	// StatusCancelled marks a task skipped because the request was cancelled
	// before it started.
	StatusCancelled Status = "cancelled"
)

// TaskExecutionResult records the outcome of one attempted task. It is
// created once per task and immutable after creation.
type TaskExecutionResult struct {
	TaskID    string
	AgentName string
	ModelKey  string

	Status Status
	Result string
	Err    error

	// Retries counts the retries actually performed, not the configured cap.
	Retries         int
	TokensGenerated int

	StartedAt   time.Time
	CompletedAt time.Time
	Duration    time.Duration
}

// Succeeded reports whether the task produced usable text.
func (r *TaskExecutionResult) Succeeded() bool {
	return r != nil && r.Status == StatusSuccess
}

// PlanExecutionResult aggregates everything one request produced. It is
// the unit returned to the caller by Process and carried by the terminal
// fusion chunk of ProcessStream.
type PlanExecutionResult struct {
	RequestID string
	Strategy  Strategy

	Primary   *TaskExecutionResult
	Fallbacks []*TaskExecutionResult

	FusedResponse string
	TotalDuration time.Duration
	FromCache     bool
}

// SuccessfulFallbacks returns the fallback results that produced text.
// Failed fallbacks stay in Fallbacks for observability but are excluded
// from fusion quality.
func (r *PlanExecutionResult) SuccessfulFallbacks() []*TaskExecutionResult {
	var out []*TaskExecutionResult
	for _, fb := range r.Fallbacks {
		if fb.Succeeded() {
			out = append(out, fb)
		}
	}
	return out
}
