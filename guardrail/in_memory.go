package guardrail

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/hupe1980/infermesh/logging"
)

// FixedWindowLimiter is a volatile RateLimiter counting requests per user
// within a fixed window. Safe for concurrent use; best suited for tests
// and single-process deployments.
type FixedWindowLimiter struct {
	mu       sync.Mutex
	limit    int
	window   time.Duration
	counters map[string]*windowCounter
	now      func() time.Time
}

type windowCounter struct {
	start time.Time
	count int
}

// FixedWindowLimiterOptions configures a FixedWindowLimiter.
type FixedWindowLimiterOptions struct {
	// Limit is the number of requests allowed per window.
	Limit int
	// Window is the counting interval.
	Window time.Duration
}

// NewFixedWindowLimiter constructs a limiter allowing 10 requests per
// minute unless overridden.
func NewFixedWindowLimiter(optFns ...func(o *FixedWindowLimiterOptions)) *FixedWindowLimiter {
	opts := FixedWindowLimiterOptions{Limit: 10, Window: time.Minute}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &FixedWindowLimiter{
		limit:    opts.Limit,
		window:   opts.Window,
		counters: make(map[string]*windowCounter),
		now:      time.Now,
	}
}

// IsAllowed implements RateLimiter.
func (l *FixedWindowLimiter) IsAllowed(userID string) RateDecision {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	wc, ok := l.counters[userID]
	if !ok || now.Sub(wc.start) >= l.window {
		wc = &windowCounter{start: now}
		l.counters[userID] = wc
	}
	wc.count++
	if wc.count > l.limit {
		return RateDecision{
			Allowed: false,
			Reason:  fmt.Sprintf("limit of %d requests per %s exhausted", l.limit, l.window),
		}
	}
	return RateDecision{Allowed: true}
}

// AllowAllLimiter is a RateLimiter that never rejects.
type AllowAllLimiter struct{}

// IsAllowed implements RateLimiter.
func (AllowAllLimiter) IsAllowed(string) RateDecision { return RateDecision{Allowed: true} }

// PatternValidator is an InputValidator matching prompts against blocked
// patterns. It covers the common prompt-injection phrasings well enough
// for tests; production deployments supply a real classifier.
type PatternValidator struct {
	maxLength int
	patterns  []validatorPattern
}

type validatorPattern struct {
	re       *regexp.Regexp
	category string
	severity Severity
}

// PatternValidatorOptions configures a PatternValidator.
type PatternValidatorOptions struct {
	// MaxPromptLength rejects prompts longer than this many runes.
	MaxPromptLength int
}

// NewPatternValidator constructs a validator with a small built-in
// pattern set.
func NewPatternValidator(optFns ...func(o *PatternValidatorOptions)) *PatternValidator {
	opts := PatternValidatorOptions{MaxPromptLength: 8192}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &PatternValidator{
		maxLength: opts.MaxPromptLength,
		patterns: []validatorPattern{
			{regexp.MustCompile(`(?i)ignore\s+(all\s+)?previous\s+instructions`), "prompt_injection", SeverityHigh},
			{regexp.MustCompile(`(?i)disregard\s+your\s+system\s+prompt`), "prompt_injection", SeverityHigh},
			{regexp.MustCompile(`(?i)you\s+are\s+now\s+in\s+developer\s+mode`), "jailbreak", SeverityMedium},
		},
	}
}

// Validate implements InputValidator.
func (v *PatternValidator) Validate(prompt string) Verdict {
	if strings.TrimSpace(prompt) == "" {
		return Verdict{Safe: false, Category: "empty_prompt", Severity: SeverityLow, Reason: "prompt is empty"}
	}
	if len([]rune(prompt)) > v.maxLength {
		return Verdict{Safe: false, Category: "prompt_too_long", Severity: SeverityMedium, Reason: fmt.Sprintf("prompt exceeds %d characters", v.maxLength)}
	}
	for _, p := range v.patterns {
		if p.re.MatchString(prompt) {
			return Verdict{Safe: false, Category: p.category, Severity: p.severity, Reason: "blocked pattern matched"}
		}
	}
	return Verdict{Safe: true}
}

// AllowAllValidator is an InputValidator that accepts every prompt.
type AllowAllValidator struct{}

// Validate implements InputValidator.
func (AllowAllValidator) Validate(string) Verdict { return Verdict{Safe: true} }

// PatternSanitizer is an OutputSanitizer redacting text matching a set of
// sensitive-data patterns (emails, bearer tokens, api keys).
type PatternSanitizer struct {
	patterns []sanitizerPattern
}

type sanitizerPattern struct {
	re   *regexp.Regexp
	name string
}

// NewPatternSanitizer constructs a sanitizer with built-in patterns.
func NewPatternSanitizer() *PatternSanitizer {
	return &PatternSanitizer{
		patterns: []sanitizerPattern{
			{regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`), "email"},
			{regexp.MustCompile(`(?i)bearer\s+[a-z0-9._\-]{16,}`), "bearer_token"},
			{regexp.MustCompile(`sk-[a-zA-Z0-9]{20,}`), "api_key"},
		},
	}
}

// Sanitize implements OutputSanitizer.
func (s *PatternSanitizer) Sanitize(text string) (SanitizeResult, error) {
	out := text
	redactions := 0
	var detected []string
	for _, p := range s.patterns {
		matches := p.re.FindAllString(out, -1)
		if len(matches) == 0 {
			continue
		}
		redactions += len(matches)
		detected = append(detected, p.name)
		out = p.re.ReplaceAllString(out, "[REDACTED]")
	}
	return SanitizeResult{
		Text:       out,
		Modified:   redactions > 0,
		Redactions: redactions,
		Patterns:   detected,
	}, nil
}

// NoOpSanitizer is an OutputSanitizer that passes text through unchanged.
type NoOpSanitizer struct{}

// Sanitize implements OutputSanitizer.
func (NoOpSanitizer) Sanitize(text string) (SanitizeResult, error) {
	return SanitizeResult{Text: text}, nil
}

// HashWatermarker is a Watermarker computing a content hash over the text
// and its binding context. The text itself is returned unchanged; actual
// signal embedding is left to external implementations.
type HashWatermarker struct{}

// NewHashWatermarker constructs a HashWatermarker.
func NewHashWatermarker() *HashWatermarker { return &HashWatermarker{} }

// Apply implements Watermarker.
func (HashWatermarker) Apply(text string, wc WatermarkContext) (WatermarkResult, error) {
	h := sha256.New()
	h.Write([]byte(text))
	h.Write([]byte(wc.ModelID))
	h.Write([]byte(wc.SessionID))
	h.Write([]byte(wc.UserID))
	return WatermarkResult{
		Text:        text,
		ContentHash: hex.EncodeToString(h.Sum(nil)),
		Metadata: map[string]string{
			"model_id":   wc.ModelID,
			"session_id": wc.SessionID,
			"user_id":    wc.UserID,
		},
	}, nil
}

// NoOpWatermarker is a Watermarker that returns the text unchanged with
// no hash.
type NoOpWatermarker struct{}

// Apply implements Watermarker.
func (NoOpWatermarker) Apply(text string, _ WatermarkContext) (WatermarkResult, error) {
	return WatermarkResult{Text: text}, nil
}

// LoggerAuditSink writes audit events through the logging package.
type LoggerAuditSink struct {
	logger logging.Logger
}

// NewLoggerAuditSink constructs an AuditSink backed by the given logger.
func NewLoggerAuditSink(logger logging.Logger) *LoggerAuditSink {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	return &LoggerAuditSink{logger: logger}
}

// LogSecurityEvent implements AuditSink.
func (s *LoggerAuditSink) LogSecurityEvent(eventType, details string, severity Severity, auditCtx AuditContext) {
	s.logger.Info("security event %s severity=%s details=%q user_id=%s session_id=%s request_id=%s",
		eventType, severity, details, auditCtx.UserID, auditCtx.SessionID, auditCtx.RequestID)
}

// NoOpAuditSink discards audit events.
type NoOpAuditSink struct{}

// LogSecurityEvent implements AuditSink.
func (NoOpAuditSink) LogSecurityEvent(string, string, Severity, AuditContext) {}
