// Package guardrail defines the policy-enforcing collaborator contracts
// applied around task execution (rate limiting, input validation, output
// sanitation, watermarking, auditing) plus in-memory reference
// implementations suitable for tests and local development.
//
// The decision algorithms behind these contracts are intentionally out of
// scope for the kernel; production deployments plug in their own
// implementations. The in-memory variants exist so the kernel is usable
// standalone, mirroring the defaults-everywhere construction style of the
// rest of the module.
package guardrail
