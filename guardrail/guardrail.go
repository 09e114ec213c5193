package guardrail

// Severity grades audit events and validation verdicts.
type Severity string

const (
	// SeverityLow marks informational findings.
	SeverityLow Severity = "low"
	// SeverityMedium marks findings worth reviewing.
	SeverityMedium Severity = "medium"
	// SeverityHigh marks findings that blocked a request.
	SeverityHigh Severity = "high"
	// SeverityCritical marks findings requiring immediate attention.
	SeverityCritical Severity = "critical"
)

// Audit event types emitted by the kernel pipeline.
const (
	EventRateLimitExceeded     = "RATE_LIMIT_EXCEEDED"
	EventInputValidationFailed = "INPUT_VALIDATION_FAILED"
	EventOutputSanitized       = "OUTPUT_SANITIZED"
	EventWatermarkApplied      = "WATERMARK_APPLIED"
	EventCacheServed           = "CACHE_SERVED"
)

// RateDecision is the outcome of a rate-limit check.
type RateDecision struct {
	Allowed bool
	Reason  string
}

// Verdict is the outcome of input validation.
type Verdict struct {
	Safe     bool
	Category string
	Severity Severity
	Reason   string
}

// SanitizeResult reports a possibly rewritten output text.
type SanitizeResult struct {
	Text       string
	Modified   bool
	Redactions int
	Patterns   []string
}

// WatermarkContext binds the identifiers embedded into a watermark
// signature.
type WatermarkContext struct {
	ModelID   string
	SessionID string
	UserID    string
}

// WatermarkResult carries the watermarked text and its content hash.
type WatermarkResult struct {
	Text        string
	ContentHash string
	Metadata    map[string]string
}

// AuditContext identifies the request an audit event belongs to.
type AuditContext struct {
	UserID    string
	SessionID string
	RequestID string
}

// RateLimiter decides whether a user may issue another request.
type RateLimiter interface {
	IsAllowed(userID string) RateDecision
}

// InputValidator inspects a prompt before any plan is produced.
type InputValidator interface {
	Validate(prompt string) Verdict
}

// OutputSanitizer rewrites generated text to remove sensitive elements.
// A sanitizer error is non-fatal; the pipeline falls through with the
// unmodified text.
type OutputSanitizer interface {
	Sanitize(text string) (SanitizeResult, error)
}

// Watermarker embeds a signature binding model, session and user into
// generated text. A watermarker error is non-fatal.
type Watermarker interface {
	Apply(text string, wc WatermarkContext) (WatermarkResult, error)
}

// AuditSink receives security events. Calls are fire-and-forget; no
// return value is consumed by the kernel.
type AuditSink interface {
	LogSecurityEvent(eventType, details string, severity Severity, auditCtx AuditContext)
}
