// Package openai implements engine.Engine over the OpenAI Chat
// Completions API. A custom base URL makes it work against any
// OpenAI-compatible server such as vLLM, llama.cpp or Ollama.
package openai

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/hupe1980/infermesh/core"
	"github.com/hupe1980/infermesh/engine"
)

// Options configure the OpenAI engine adapter.
type Options struct {
	Temperature float64
	MaxTokens   int64

	// BaseURL points the client at an OpenAI-compatible server. Empty
	// uses the official API endpoint.
	BaseURL string

	// APIKey overrides the OPENAI_API_KEY environment variable.
	APIKey string
}

// Engine wraps the Chat Completions API behind the engine.Engine interface.
type Engine struct {
	client  *openai.Client
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
	if opts.BaseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(opts.BaseURL))
	}
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}
	client := openai.NewClient(clientOpts...)

	return NewFromClient(&client, modelID, optFns...)
}

// NewFromClient creates an Engine from an existing client.
func NewFromClient(client *openai.Client, modelID string, optFns ...func(o *Options)) *Engine {
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

	resp, err := e.client.Chat.Completions.New(ctx, e.buildParams(req))
	if err != nil {
		return nil, classify(err)
	}
	if len(resp.Choices) == 0 {
		return nil, &core.InferenceError{Retryable: true, Err: errors.New("openai: no choices returned")}
	}

	choice := resp.Choices[0]
	return &engine.Result{
		Text:            choice.Message.Content,
		TokensGenerated: int(resp.Usage.CompletionTokens),
		Latency:         time.Since(start),
		ModelID:         e.modelID,
		Backend:         engine.BackendHosted,
		FinishReason:    choice.FinishReason,
	}, nil
}

// GenerateStream implements engine.Engine.
func (e *Engine) GenerateStream(ctx context.Context, req engine.Request, emit func(chunk string)) (*engine.Result, error) {
	if !e.loaded.Load() {
		return nil, core.ErrEngineNotInitialized
	}
	start := time.Now()

	stream := e.client.Chat.Completions.NewStreaming(ctx, e.buildParams(req))
	acc := openai.ChatCompletionAccumulator{}
	for stream.Next() {
		chunk := stream.Current()
		acc.AddChunk(chunk)
		if len(chunk.Choices) > 0 && chunk.Choices[0].Delta.Content != "" {
			emit(chunk.Choices[0].Delta.Content)
		}
	}
	if err := stream.Err(); err != nil {
		return nil, classify(err)
	}
	if len(acc.Choices) == 0 {
		return nil, &core.InferenceError{Retryable: true, Err: errors.New("openai: empty stream")}
	}

	choice := acc.Choices[0]
	return &engine.Result{
		Text:            choice.Message.Content,
		TokensGenerated: int(acc.Usage.CompletionTokens),
		Latency:         time.Since(start),
		ModelID:         e.modelID,
		Backend:         engine.BackendHosted,
		FinishReason:    choice.FinishReason,
	}, nil
}

// Unload implements engine.Engine.
func (e *Engine) Unload() error {
	e.loaded.Store(false)
	return nil
}

func (e *Engine) buildParams(req engine.Request) openai.ChatCompletionNewParams {
	temperature := e.opts.Temperature
	if req.Temperature != nil {
		temperature = *req.Temperature
	}
	maxTokens := e.opts.MaxTokens
	if req.MaxTokens > 0 {
		maxTokens = int64(req.MaxTokens)
	}
	return openai.ChatCompletionNewParams{
		Model:               e.modelID,
		Messages:            []openai.ChatCompletionMessageParamUnion{openai.UserMessage(req.Prompt)},
		Temperature:         openai.Float(temperature),
		MaxCompletionTokens: openai.Int(maxTokens),
	}
}

// classify maps API failures onto the retryability taxonomy. Timeouts,
// throttling and server-side errors are transient; everything else is a
// caller error and not worth retrying.
func classify(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		retryable := apiErr.StatusCode == 408 || apiErr.StatusCode == 429 || apiErr.StatusCode >= 500
		return &core.InferenceError{Retryable: retryable, Err: fmt.Errorf("openai api error: %w", err)}
	}
	// Transport-level failures have no status code; assume transient.
	return &core.InferenceError{Retryable: true, Err: fmt.Errorf("openai request error: %w", err)}
}
