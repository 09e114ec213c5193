package engine

import (
	"context"
	"time"
)

// Request captures the normalized generation input handed to a backend.
type Request struct {
	Prompt string `json:"prompt"`

	// Temperature overrides the backend default when non-nil.
	Temperature *float64 `json:"temperature,omitempty"`

	// MaxTokens caps the completion length. Zero means backend default.
	MaxTokens int `json:"max_tokens,omitempty"`

	// ModelKey selects the model when a Manager routes across several
	// loaded engines. Empty means the Manager's active model.
	ModelKey string `json:"model_key,omitempty"`
}

// Result is the outcome of a single completed generation.
type Result struct {
	Text            string        `json:"text"`
	TokensGenerated int           `json:"tokens_generated"`
	Latency         time.Duration `json:"latency"`
	ModelID         string        `json:"model_id"`
	Backend         Backend       `json:"backend"`
	FinishReason    string        `json:"finish_reason"` // "stop", "length", "cancelled"

	// Retries counts attempts beyond the first.
	Retries int `json:"retries"`

	// UsedFallback is set when the result came from a demoted backend.
	UsedFallback bool `json:"used_fallback"`
}

// LoadProgress reports model loading stages to an optional observer.
type LoadProgress struct {
	ModelID string  `json:"model_id"`
	Stage   string  `json:"stage"`
	Percent float64 `json:"percent"`

	// Terminal marks the final progress event, successful or not.
	Terminal bool  `json:"terminal"`
	Err      error `json:"-"`
}

// Engine is the minimal contract an inference backend must satisfy.
//
// Load must be called before Generate or GenerateStream. Implementations
// are expected to be safe for concurrent Generate calls once loaded.
type Engine interface {
	// ModelID returns the identifier of the loaded model.
	ModelID() string

	// Backend reports which execution backend this engine runs on.
	Backend() Backend

	// Load prepares the model for generation. When progress is non-nil
	// the engine sends loading updates to it; the engine never closes
	// the channel.
	Load(ctx context.Context, progress chan<- LoadProgress) error

	// Generate runs one blocking completion.
	Generate(ctx context.Context, req Request) (*Result, error)

	// GenerateStream runs one completion, invoking emit for each text
	// chunk as it is produced. The returned Result carries the full
	// accumulated text.
	GenerateStream(ctx context.Context, req Request, emit func(chunk string)) (*Result, error)

	// Unload releases model resources. Safe to call more than once.
	Unload() error
}

// Factory constructs an Engine for a model on a given backend. The
// Manager uses it to create engines on demand, including CPU fallbacks.
type Factory func(modelID string, backend Backend) (Engine, error)
