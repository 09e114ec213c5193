// Package anthropic implements engine.Engine over the Anthropic
// Messages API.
package anthropic

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/hupe1980/infermesh/core"
	"github.com/hupe1980/infermesh/engine"
)

// Options configures the Anthropic engine adapter.
type Options struct {
	Temperature float64
	MaxTokens   int64

	// APIKey overrides the ANTHROPIC_API_KEY environment variable.
	APIKey string
}

// Engine wraps the Messages API behind the engine.Engine interface.
type Engine struct {
	client  *anthropic.Client
	modelID string
	opts    Options
	loaded  atomic.Bool
}

// New creates an Engine using a client built from the options.
func New(modelID string, optFns ...func(o *Options)) *Engine {
	opts := Options{
		Temperature: 0.7,
		MaxTokens:   4096,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	var clientOpts []option.RequestOption
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}
	client := anthropic.NewClient(clientOpts...)

	return NewFromClient(&client, modelID, optFns...)
}

// NewFromClient creates an Engine from an existing client.
func NewFromClient(client *anthropic.Client, modelID string, optFns ...func(o *Options)) *Engine {
	opts := Options{
		Temperature: 0.7,
		MaxTokens:   4096,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Engine{client: client, modelID: modelID, opts: opts}
}

// ModelID implements engine.Engine.
func (e *Engine) ModelID() string { return e.modelID }

// Backend implements engine.Engine.
func (e *Engine) Backend() engine.Backend { return engine.BackendHosted }

// Load implements engine.Engine. Hosted models need no local weights,
// so loading only marks the engine usable.
func (e *Engine) Load(ctx context.Context, progress chan<- engine.LoadProgress) error {
	if progress != nil {
		progress <- engine.LoadProgress{ModelID: e.modelID, Stage: "ready", Percent: 100, Terminal: true}
	}
	e.loaded.Store(true)
	return nil
}

// Generate implements engine.Engine.
func (e *Engine) Generate(ctx context.Context, req engine.Request) (*engine.Result, error) {
	if !e.loaded.Load() {
		return nil, core.ErrEngineNotInitialized
	}
	start := time.Now()

	resp, err := e.client.Messages.New(ctx, e.buildParams(req))
	if err != nil {
		return nil, classify(err)
	}

	var text string
	for _, block := range resp.Content {
		if block.Type == "text" {
			text += block.AsText().Text
		}
	}

	finishReason := "stop"
	if resp.StopReason != "" {
		finishReason = string(resp.StopReason)
	}

	return &engine.Result{
		Text:            text,
		TokensGenerated: int(resp.Usage.OutputTokens),
		Latency:         time.Since(start),
		ModelID:         e.modelID,
		Backend:         engine.BackendHosted,
		FinishReason:    finishReason,
	}, nil
}

// GenerateStream implements engine.Engine.
func (e *Engine) GenerateStream(ctx context.Context, req engine.Request, emit func(chunk string)) (*engine.Result, error) {
	if !e.loaded.Load() {
		return nil, core.ErrEngineNotInitialized
	}
	start := time.Now()

	stream := e.client.Messages.NewStreaming(ctx, e.buildParams(req))
	message := anthropic.Message{}
	for stream.Next() {
		event := stream.Current()
		if err := message.Accumulate(event); err != nil {
			return nil, &core.InferenceError{Retryable: false, Err: fmt.Errorf("anthropic stream accumulate: %w", err)}
		}
		switch eventVariant := event.AsAny().(type) {
		case anthropic.ContentBlockDeltaEvent:
			if delta, ok := eventVariant.Delta.AsAny().(anthropic.TextDelta); ok && delta.Text != "" {
				emit(delta.Text)
			}
		}
	}
	if err := stream.Err(); err != nil {
		return nil, classify(err)
	}

	var text string
	for _, block := range message.Content {
		if block.Type == "text" {
			text += block.AsText().Text
		}
	}

	finishReason := "stop"
	if message.StopReason != "" {
		finishReason = string(message.StopReason)
	}

	return &engine.Result{
		Text:            text,
		TokensGenerated: int(message.Usage.OutputTokens),
		Latency:         time.Since(start),
		ModelID:         e.modelID,
		Backend:         engine.BackendHosted,
		FinishReason:    finishReason,
	}, nil
}

// Unload implements engine.Engine.
func (e *Engine) Unload() error {
	e.loaded.Store(false)
	return nil
}

func (e *Engine) buildParams(req engine.Request) anthropic.MessageNewParams {
	temperature := e.opts.Temperature
	if req.Temperature != nil {
		temperature = *req.Temperature
	}
	maxTokens := e.opts.MaxTokens
	if req.MaxTokens > 0 {
		maxTokens = int64(req.MaxTokens)
	}
	return anthropic.MessageNewParams{
		Model:       anthropic.Model(e.modelID),
		MaxTokens:   maxTokens,
		Temperature: anthropic.Float(temperature),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
	}
}

// classify maps API failures onto the retryability taxonomy.
func classify(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		retryable := apiErr.StatusCode == 408 || apiErr.StatusCode == 429 || apiErr.StatusCode >= 500
		return &core.InferenceError{Retryable: retryable, Err: fmt.Errorf("anthropic api error: %w", err)}
	}
	return &core.InferenceError{Retryable: true, Err: fmt.Errorf("anthropic request error: %w", err)}
}
