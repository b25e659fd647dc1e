package llmerrors

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

// FromStatus classifies an HTTP status code reported by a provider SDK.
// It returns nil when the status carries no classification.
func FromStatus(statusCode int, cause error) *Error {
	var (
		errorType ErrorType
		message   string
	)

	switch {
	case statusCode == http.StatusUnauthorized:
		errorType, message = ErrorTypeAuth, "authentication failed - check API key"
	case statusCode == http.StatusForbidden:
		errorType, message = ErrorTypeAuth, "permission denied - check API access"
	case statusCode == http.StatusTooManyRequests:
		errorType, message = ErrorTypeRateLimit, "rate limit exceeded"
	case statusCode == http.StatusBadRequest, statusCode == http.StatusNotFound, statusCode == http.StatusRequestEntityTooLarge:
		errorType, message = ErrorTypeBadPrompt, "bad request - check prompt format and parameters"
	case statusCode >= http.StatusInternalServerError:
		errorType, message = ErrorTypeTransient, "server error"
	default:
		return nil
	}

	return &Error{Type: errorType, StatusCode: statusCode, Message: message, Err: cause}
}

// Classify maps an unstructured provider error to a classified error by inspecting its text.
// Context errors keep their identity through Unwrap so callers can still detect cancellation.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}

	var classified *Error
	if errors.As(err, &classified) {
		return classified
	}

	if errors.Is(err, context.Canceled) {
		return NewErrorWithCause(ErrorTypeTransient, err, "request canceled")
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return NewErrorWithCause(ErrorTypeTransient, err, "request timeout")
	}

	errStr := strings.ToLower(err.Error())

	if status := extractStatusCode(errStr); status != 0 {
		if c := FromStatus(status, err); c != nil {
			return c
		}
	}

	switch {
	case containsAny(errStr, "timeout", "connection", "network", "temporary", "eof", "reset"):
		return NewErrorWithCause(ErrorTypeTransient, err, "network or connection error")
	case containsAny(errStr, "rate", "quota", "limit"):
		return NewErrorWithCause(ErrorTypeRateLimit, err, "rate limiting detected")
	case containsAny(errStr, "auth", "api key", "unauthorized"):
		return NewErrorWithCause(ErrorTypeAuth, err, "authentication error")
	case containsAny(errStr, "invalid", "malformed", "too large", "too long", "not found"):
		return NewErrorWithCause(ErrorTypeBadPrompt, err, "prompt or request error")
	default:
		return NewErrorWithCause(ErrorTypeUnknown, err, "unclassified error")
	}
}

func containsAny(s string, patterns ...string) bool {
	for _, p := range patterns {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}

// extractStatusCode looks for an HTTP status code following a common prefix.
func extractStatusCode(errStr string) int {
	for _, pattern := range []string{"status code: ", "status: ", "http ", "code "} {
		idx := strings.Index(errStr, pattern)
		if idx == -1 {
			continue
		}
		start := idx + len(pattern)
		if start+3 > len(errStr) {
			continue
		}
		code := 0
		for _, r := range errStr[start : start+3] {
			if r < '0' || r > '9' {
				code = 0
				break
			}
			code = code*10 + int(r-'0')
		}
		if code >= 400 && code <= 599 {
			return code
		}
	}
	return 0
}
