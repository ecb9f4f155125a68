package retry

import (
	"context"
	"errors"
	"net"
	"strings"
)

// StatusCoder is implemented by transport errors that carry the HTTP status
// returned by the push service. Classification prefers this over message
// inspection; the string fallback below only exists for transports that
// surface opaque errors.
type StatusCoder interface {
	HTTPStatus() int
}

// Coder is implemented by errors that were already classified once and carry
// their code along, so re-classification is exact.
type Coder interface {
	Code() ErrorCode
}

// Classify maps a send error onto the closed error-code taxonomy.
func Classify(err error) ErrorCode {
	if err == nil {
		return CodeUnknown
	}

	var c Coder
	if errors.As(err, &c) {
		if code := c.Code(); code != "" {
			return code
		}
	}

	var sc StatusCoder
	if errors.As(err, &sc) {
		if code := classifyStatus(sc.HTTPStatus()); code != CodeUnknown {
			return code
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return CodeTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return CodeTimeout
		}
		return CodeNetwork
	}

	return classifyMessage(err.Error())
}

func classifyStatus(status int) ErrorCode {
	switch status {
	case 410:
		return CodeExpired
	case 403:
		return CodePermissionDenied
	case 404:
		return CodeNotFound
	case 429:
		return CodeRateLimited
	case 400:
		return CodeInvalidPayload
	case 413:
		return CodePayloadTooLarge
	case 503:
		return CodeServiceUnavailable
	}
	if status >= 500 && status < 600 {
		return CodeServerError
	}
	return CodeUnknown
}

// classifyMessage pattern-matches the error text the way the original
// transport integrations did. Kept as the fallback path only; structured
// status codes always win.
func classifyMessage(msg string) ErrorCode {
	m := strings.ToLower(msg)
	switch {
	case strings.Contains(m, "410") || strings.Contains(m, "gone") || strings.Contains(m, "expired"):
		return CodeExpired
	case strings.Contains(m, "403") || strings.Contains(m, "forbidden") || strings.Contains(m, "permission"):
		return CodePermissionDenied
	case strings.Contains(m, "404") || strings.Contains(m, "not found"):
		return CodeNotFound
	case strings.Contains(m, "429") || strings.Contains(m, "too many request") || strings.Contains(m, "rate limit"):
		return CodeRateLimited
	case strings.Contains(m, "timeout") || strings.Contains(m, "timed out") || strings.Contains(m, "deadline exceeded"):
		return CodeTimeout
	case strings.Contains(m, "connection refused") || strings.Contains(m, "no such host") ||
		strings.Contains(m, "network") || strings.Contains(m, "broken pipe") || strings.Contains(m, "eof"):
		return CodeNetwork
	case strings.Contains(m, "413") || strings.Contains(m, "too large"):
		return CodePayloadTooLarge
	case strings.Contains(m, "400") || strings.Contains(m, "bad request") || strings.Contains(m, "invalid payload"):
		return CodeInvalidPayload
	case strings.Contains(m, "503") || strings.Contains(m, "unavailable"):
		return CodeServiceUnavailable
	case strings.Contains(m, "500") || strings.Contains(m, "internal server"):
		return CodeServerError
	}
	return CodeUnknown
}
