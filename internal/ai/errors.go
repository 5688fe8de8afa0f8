package ai

import (
	"fmt"
	"time"
)

// Typed provider failures. Each wraps the decoded APIError so callers can
// branch with errors.As and still print the provider's own message.

// AuthError is a 401/403: missing, revoked or mis-scoped key.
type AuthError struct{ *APIError }

func (e *AuthError) Error() string { return "authentication failed: " + e.APIError.Error() }
func (e *AuthError) Unwrap() error { return e.APIError }

// RateLimitError is a 429. RetryAfter is zero when the provider sent no hint.
type RateLimitError struct {
	*APIError
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limited (retry after %s): %s", e.RetryAfter.Round(time.Second), e.APIError.Error())
	}
	return "rate limited: " + e.APIError.Error()
}

func (e *RateLimitError) Unwrap() error { return e.APIError }

// ModelNotFoundError means the provider does not serve the requested model.
type ModelNotFoundError struct{ *APIError }

func (e *ModelNotFoundError) Error() string { return "model not found: " + e.APIError.Error() }
func (e *ModelNotFoundError) Unwrap() error { return e.APIError }

// BadRequestError is any other 4xx, usually a prompt that exceeds the context window.
type BadRequestError struct{ *APIError }

func (e *BadRequestError) Error() string { return "bad request: " + e.APIError.Error() }
func (e *BadRequestError) Unwrap() error { return e.APIError }

// QuotaExceededError is a billing or credit problem (402, insufficient_quota).
type QuotaExceededError struct{ *APIError }

func (e *QuotaExceededError) Error() string { return "quota exceeded: " + e.APIError.Error() }
func (e *QuotaExceededError) Unwrap() error { return e.APIError }

// ServerError is a 5xx that survived the retry budget.
type ServerError struct{ *APIError }

func (e *ServerError) Error() string { return "provider error: " + e.APIError.Error() }
func (e *ServerError) Unwrap() error { return e.APIError }

// UnreachableError means no HTTP response came back at all, typically a
// local Ollama that is not running.
type UnreachableError struct {
	Host string
	Err  error
}

func (e *UnreachableError) Error() string {
	if e.Host != "" {
		return fmt.Sprintf("endpoint unreachable at %s: %v", e.Host, e.Err)
	}
	return fmt.Sprintf("endpoint unreachable: %v", e.Err)
}

func (e *UnreachableError) Unwrap() error { return e.Err }

// TimeoutError is returned by WithTimeout when a single model call outlives
// its budget while the caller's own context is still live. It unwraps to
// the underlying error, which matches context.DeadlineExceeded.
type TimeoutError struct {
	Limit time.Duration
	Err   error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("model call exceeded %s: %v", e.Limit, e.Err)
}

func (e *TimeoutError) Unwrap() error { return e.Err }
