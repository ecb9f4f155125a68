package transport

import "fmt"

// Error is a non-2xx response from a push service. It exposes the status
// code structurally for classification, and keeps "status <code>" in the
// message so log-line grepping and legacy string matching still work.
type Error struct {
	StatusCode int
	Body       string
}

func (e *Error) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("push service returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("push service returned status %d: %s", e.StatusCode, e.Body)
}

// HTTPStatus reports the push service's response code.
func (e *Error) HTTPStatus() int { return e.StatusCode }
