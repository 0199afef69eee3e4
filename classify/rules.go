package classify

import (
	"context"
	"errors"
	"net"
	"strings"
	"syscall"

	"github.com/zero-day-ai/recovery/types"
)

// Rule is one entry in the ordered classification table. Match inspects
// the error and its invocation context; Result is the classification
// template applied when the rule fires (the rule's Name is recorded as
// the matched pattern).
type Rule struct {
	Name   string
	Match  func(err error, ectx types.Context) bool
	Result Classification
}

// Code extracts a declared error code when the error exposes one.
// It recognizes the two accessor shapes seen in the wild and falls back
// to the empty string.
func Code(err error) string {
	type coded interface{ Code() string }
	type errorCoded interface{ ErrorCode() string }

	var c coded
	if errors.As(err, &c) {
		return c.Code()
	}
	var ec errorCoded
	if errors.As(err, &ec) {
		return ec.ErrorCode()
	}
	return ""
}

// contains reports whether the error's message or code contains any of
// the given fragments, case-insensitively.
func contains(err error, fragments ...string) bool {
	msg := strings.ToLower(err.Error())
	code := strings.ToLower(Code(err))
	for _, f := range fragments {
		f = strings.ToLower(f)
		if strings.Contains(msg, f) || (code != "" && strings.Contains(code, f)) {
			return true
		}
	}
	return false
}

// builtinRules returns the default ordered rule table. Order matters:
// the first matching rule wins, so specific system and authorization
// signatures sit ahead of the broad message-substring rules.
func builtinRules() []Rule {
	return []Rule{
		{
			Name: "operation_deadline",
			Match: func(err error, _ types.Context) bool {
				return errors.Is(err, context.DeadlineExceeded)
			},
			Result: Classification{
				Category: CategoryTimeout, Severity: SeverityMedium,
				Confidence: 0.9, Retryable: true,
			},
		},
		{
			Name: "network_timeout",
			Match: func(err error, _ types.Context) bool {
				var ne net.Error
				if errors.As(err, &ne) && ne.Timeout() {
					return true
				}
				if errors.Is(err, syscall.ETIMEDOUT) {
					return true
				}
				return contains(err, "etimedout", "timed out", "timeout")
			},
			Result: Classification{
				Category: CategoryNetwork, Severity: SeverityMedium,
				Confidence: 0.85, Retryable: true,
			},
		},
		{
			Name: "connection_refused",
			Match: func(err error, _ types.Context) bool {
				return errors.Is(err, syscall.ECONNREFUSED) ||
					contains(err, "econnrefused", "connection refused")
			},
			Result: Classification{
				Category: CategoryNetwork, Severity: SeverityMedium,
				Confidence: 0.9, Retryable: true,
			},
		},
		{
			Name: "connection_reset",
			Match: func(err error, _ types.Context) bool {
				return errors.Is(err, syscall.ECONNRESET) ||
					contains(err, "econnreset", "connection reset", "broken pipe")
			},
			Result: Classification{
				Category: CategoryNetwork, Severity: SeverityMedium,
				Confidence: 0.85, Retryable: true,
			},
		},
		{
			Name: "dns_failure",
			Match: func(err error, _ types.Context) bool {
				var dnsErr *net.DNSError
				return errors.As(err, &dnsErr) ||
					contains(err, "enotfound", "no such host")
			},
			Result: Classification{
				Category: CategoryNetwork, Severity: SeverityMedium,
				Confidence: 0.8, Retryable: true,
			},
		},
		{
			Name: "rate_limited",
			Match: func(err error, _ types.Context) bool {
				return contains(err, "rate limit", "too many requests", "429", "throttl")
			},
			Result: Classification{
				Category: CategoryRateLimit, Severity: SeverityLow,
				Confidence: 0.85, Retryable: true,
			},
		},
		{
			Name: "out_of_memory",
			Match: func(err error, _ types.Context) bool {
				return errors.Is(err, syscall.ENOMEM) ||
					contains(err, "out of memory", "cannot allocate memory", "enomem", "oom")
			},
			Result: Classification{
				Category: CategorySystem, Severity: SeverityCritical,
				Confidence: 0.9, RequiresEscalation: true,
			},
		},
		{
			Name: "disk_full",
			Match: func(err error, _ types.Context) bool {
				return errors.Is(err, syscall.ENOSPC) ||
					contains(err, "no space left", "disk full", "enospc")
			},
			Result: Classification{
				Category: CategorySystem, Severity: SeverityCritical,
				Confidence: 0.9, RequiresEscalation: true,
			},
		},
		{
			Name: "runtime_fault",
			Match: func(err error, _ types.Context) bool {
				return contains(err, "panic:", "segmentation fault", "fatal error:", "stack overflow")
			},
			Result: Classification{
				Category: CategorySystem, Severity: SeverityCritical,
				Confidence: 0.8, RequiresEscalation: true,
			},
		},
		{
			Name: "unauthorized",
			Match: func(err error, _ types.Context) bool {
				return contains(err, "unauthorized", "unauthenticated", "401",
					"invalid token", "token expired", "authentication failed")
			},
			Result: Classification{
				Category: CategoryAuthorization, Severity: SeverityHigh,
				Confidence: 0.85, RequiresUserAction: true,
			},
		},
		{
			Name: "forbidden",
			Match: func(err error, _ types.Context) bool {
				return errors.Is(err, syscall.EACCES) ||
					contains(err, "forbidden", "403", "permission denied", "access denied")
			},
			Result: Classification{
				Category: CategoryAuthorization, Severity: SeverityHigh,
				Confidence: 0.85, RequiresUserAction: true,
			},
		},
		{
			Name: "validation_failed",
			Match: func(err error, _ types.Context) bool {
				return errors.Is(err, syscall.EINVAL) ||
					contains(err, "validation", "invalid argument", "invalid input",
						"invalid parameter", "malformed", "required field", "must be")
			},
			Result: Classification{
				Category: CategoryValidation, Severity: SeverityLow,
				Confidence: 0.8, RequiresUserAction: true,
			},
		},
		{
			Name: "not_found",
			Match: func(err error, _ types.Context) bool {
				return errors.Is(err, syscall.ENOENT) ||
					contains(err, "not found", "404", "no such file", "does not exist")
			},
			Result: Classification{
				Category: CategoryNotFound, Severity: SeverityLow,
				Confidence: 0.75, RequiresUserAction: true,
			},
		},
	}
}
