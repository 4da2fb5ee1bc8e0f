package telegram

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Transport error kinds. Forbidden is permanent for the recipient, TimedOut
// is retryable, BadRequest fails the current action.
var (
	ErrForbidden  = errors.New("telegram: forbidden")
	ErrBadRequest = errors.New("telegram: bad request")
	ErrTimedOut   = errors.New("telegram: timed out")
)

// APIError is a non-ok Bot API response.
type APIError struct {
	Method      string
	Code        int
	Description string
	RetryAfter  int
}

func (e *APIError) Error() string {
	return fmt.Sprintf("telegram %s: %d %s", e.Method, e.Code, e.Description)
}

func (e *APIError) Unwrap() error {
	switch {
	case e.Code == 403:
		return ErrForbidden
	case e.Code == 429 || e.Code >= 500:
		return ErrTimedOut
	default:
		return ErrBadRequest
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, ErrTimedOut) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
