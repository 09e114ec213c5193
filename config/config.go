// Package config loads kernel configuration from YAML with defaults and
// validation.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hupe1980/infermesh/engine"
)

// RetryConfig mirrors engine.RetryConfig with YAML-friendly millisecond
// fields.
type RetryConfig struct {
	MaxRetries        int      `yaml:"max_retries"`
	InitialDelayMs    int      `yaml:"initial_delay_ms"`
	MaxDelayMs        int      `yaml:"max_delay_ms"`
	BackoffMultiplier float64  `yaml:"backoff_multiplier"`
	RetryableErrors   []string `yaml:"retryable_errors,omitempty"`
}

// ToEngine converts to the runtime retry configuration.
func (c RetryConfig) ToEngine() engine.RetryConfig {
	return engine.RetryConfig{
		MaxRetries:        c.MaxRetries,
		InitialDelay:      time.Duration(c.InitialDelayMs) * time.Millisecond,
		MaxDelay:          time.Duration(c.MaxDelayMs) * time.Millisecond,
		BackoffMultiplier: c.BackoffMultiplier,
		RetryableErrors:   c.RetryableErrors,
	}
}

// SchedulerConfig tunes the request pipeline.
type SchedulerConfig struct {
	TaskTimeoutMs int         `yaml:"task_timeout_ms"`
	TaskRetry     RetryConfig `yaml:"task_retry"`
	HistorySize   int         `yaml:"history_size"`
}

// EngineConfig tunes the inference engine manager.
type EngineConfig struct {
	ModelID        string      `yaml:"model_id"`
	Backend        string      `yaml:"backend,omitempty"`
	PoolSize       int         `yaml:"pool_size"`
	EnableFallback bool        `yaml:"enable_fallback"`
	Retry          RetryConfig `yaml:"retry"`
}

// GuardrailConfig tunes the built-in guardrail implementations.
type GuardrailConfig struct {
	RateLimit       int `yaml:"rate_limit"`
	RateWindowMs    int `yaml:"rate_window_ms"`
	MaxPromptLength int `yaml:"max_prompt_length"`
}

// CacheConfig tunes the response cache.
type CacheConfig struct {
	Enabled bool `yaml:"enabled"`
	Size    int  `yaml:"size"`
	TTLMs   int  `yaml:"ttl_ms"`
}

// Config is the root kernel configuration.
type Config struct {
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Engine    EngineConfig    `yaml:"engine"`
	Guardrail GuardrailConfig `yaml:"guardrail"`
	Cache     CacheConfig     `yaml:"cache"`

	// MaxConcurrentRequests bounds requests admitted into the pipeline.
	MaxConcurrentRequests int `yaml:"max_concurrent_requests"`
}

// Default returns the baseline configuration.
func Default() *Config {
	return &Config{
		Scheduler: SchedulerConfig{
			TaskTimeoutMs: 30000,
			TaskRetry: RetryConfig{
				MaxRetries:        2,
				InitialDelayMs:    500,
				MaxDelayMs:        10000,
				BackoffMultiplier: 2.0,
			},
			HistorySize: 100,
		},
		Engine: EngineConfig{
			PoolSize:       3,
			EnableFallback: true,
			Retry: RetryConfig{
				MaxRetries:        3,
				InitialDelayMs:    200,
				MaxDelayMs:        5000,
				BackoffMultiplier: 2.0,
				RetryableErrors:   []string{"timeout", "connection", "temporarily unavailable", "overloaded", "rate limit"},
			},
		},
		Guardrail: GuardrailConfig{
			RateLimit:       10,
			RateWindowMs:    60000,
			MaxPromptLength: 8192,
		},
		Cache: CacheConfig{
			Enabled: true,
			Size:    256,
		},
		MaxConcurrentRequests: 16,
	}
}

// Load parses a YAML document over the defaults.
func Load(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile reads and parses a YAML config file.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return Load(data)
}

// Validate rejects configurations the kernel cannot run with.
func (c *Config) Validate() error {
	if c.Scheduler.TaskTimeoutMs <= 0 {
		return fmt.Errorf("config: scheduler.task_timeout_ms must be positive")
	}
	if c.Scheduler.TaskRetry.MaxRetries < 0 {
		return fmt.Errorf("config: scheduler.task_retry.max_retries must not be negative")
	}
	if c.Engine.Retry.MaxRetries < 0 {
		return fmt.Errorf("config: engine.retry.max_retries must not be negative")
	}
	if c.Engine.PoolSize <= 0 {
		return fmt.Errorf("config: engine.pool_size must be positive")
	}
	if c.Engine.Backend != "" && !engine.Backend(c.Engine.Backend).Valid() {
		return fmt.Errorf("config: unknown engine.backend %q", c.Engine.Backend)
	}
	if c.Guardrail.RateLimit <= 0 {
		return fmt.Errorf("config: guardrail.rate_limit must be positive")
	}
	if c.Cache.Enabled && c.Cache.Size <= 0 {
		return fmt.Errorf("config: cache.size must be positive when the cache is enabled")
	}
	if c.MaxConcurrentRequests <= 0 {
		return fmt.Errorf("config: max_concurrent_requests must be positive")
	}
	return nil
}
