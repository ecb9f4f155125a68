package retry

import (
	"math"
	"math/rand"
	"time"
)

// ErrorCode is the closed classification of a failed push attempt. Every
// layer above the transport consumes these codes instead of re-deriving
// retryability from raw errors.
type ErrorCode string

const (
	CodeExpired            ErrorCode = "EXPIRED"             // 410, endpoint gone
	CodePermissionDenied   ErrorCode = "PERMISSION_DENIED"   // 403
	CodeNotFound           ErrorCode = "NOT_FOUND"           // 404
	CodeRateLimited        ErrorCode = "RATE_LIMITED"        // 429
	CodeTimeout            ErrorCode = "TIMEOUT"             // request deadline hit
	CodeNetwork            ErrorCode = "NETWORK"             // connection-level failure
	CodeInvalidPayload     ErrorCode = "INVALID_PAYLOAD"     // 400
	CodePayloadTooLarge    ErrorCode = "PAYLOAD_TOO_LARGE"   // 413
	CodeServerError        ErrorCode = "SERVER_ERROR"        // 500
	CodeServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE" // 503
	CodeUnknown            ErrorCode = "UNKNOWN"
)

// Policy tunes the backoff schedule for one error class.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Multiplier  float64
	Jitter      bool
}

// DefaultPolicy is the schedule used when no class-specific tuning applies:
// three attempts, one second base, one minute ceiling, jittered.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		BaseDelay:   1000 * time.Millisecond,
		MaxDelay:    60 * time.Second,
		Multiplier:  2,
		Jitter:      true,
	}
}

// IsRetryable reports whether a later attempt could possibly succeed.
// Gone endpoints, revoked permissions, unknown endpoints and payloads the
// push service rejected outright can never be fixed by waiting.
func IsRetryable(code ErrorCode) bool {
	switch code {
	case CodeExpired, CodePermissionDenied, CodeNotFound, CodeInvalidPayload, CodePayloadTooLarge:
		return false
	}
	return true
}

// PolicyFor returns the backoff schedule for an error class. Non-retryable
// classes get a single attempt so callers need no special casing.
func PolicyFor(code ErrorCode) Policy {
	p := DefaultPolicy()
	if !IsRetryable(code) {
		p.MaxAttempts = 1
		return p
	}
	switch code {
	case CodeRateLimited:
		// Push services throttle aggressively; back off far and slow.
		p.MaxAttempts = 5
		p.BaseDelay = 5000 * time.Millisecond
		p.MaxDelay = 300 * time.Second
	case CodeTimeout, CodeNetwork:
		p.MaxAttempts = 4
		p.BaseDelay = 2000 * time.Millisecond
	case CodeServerError, CodeServiceUnavailable:
		p.MaxAttempts = 3
		p.BaseDelay = 3000 * time.Millisecond
	}
	return p
}

// NextDelay computes the sleep before the given attempt (1-based):
// min(base * multiplier^(attempt-1), ceiling), then scaled by a uniform
// factor in [0.5, 1.0) when jitter is on so simultaneous failures across
// thousands of subscribers do not retry in lockstep.
func NextDelay(attempt int, p Policy) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	mult := p.Multiplier
	if mult <= 0 {
		mult = 2
	}
	d := float64(p.BaseDelay) * math.Pow(mult, float64(attempt-1))
	if ceiling := float64(p.MaxDelay); ceiling > 0 && d > ceiling {
		d = ceiling
	}
	if p.Jitter {
		d *= 0.5 + rand.Float64()*0.5
	}
	return time.Duration(d)
}
