package llmerrors

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestErrorTypeString(t *testing.T) {
	tests := map[ErrorType]string{
		ErrorTypeRateLimit:          "rate_limit",
		ErrorTypeTransient:          "transient",
		ErrorTypeEmptyResponse:      "empty_response",
		ErrorTypeAuth:               "auth",
		ErrorTypeBadPrompt:          "bad_prompt",
		ErrorTypeUnknown:            "unknown",
		ErrorTypeServiceUnavailable: "service_unavailable",
		ErrorType(99):               "invalid",
	}
	for et, want := range tests {
		if et.String() != want {
			t.Errorf("%d.String() = %q, want %q", et, et.String(), want)
		}
	}
}

func TestIsRetryable(t *testing.T) {
	retryable := []ErrorType{ErrorTypeRateLimit, ErrorTypeTransient, ErrorTypeEmptyResponse, ErrorTypeUnknown}
	for _, et := range retryable {
		if !NewError(et, "x").IsRetryable() {
			t.Errorf("%s should be retryable", et)
		}
	}
	for _, et := range []ErrorType{ErrorTypeAuth, ErrorTypeBadPrompt, ErrorTypeServiceUnavailable} {
		if NewError(et, "x").IsRetryable() {
			t.Errorf("%s should not be retryable", et)
		}
	}
}

func TestRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"cancelled", context.Canceled, false},
		{"cancelled wrapping classified", NewErrorWithCause(ErrorTypeTransient, context.Canceled, "aborted"), false},
		{"deadline", fmt.Errorf("call: %w", context.DeadlineExceeded), false},
		{"wrapped rate limit", fmt.Errorf("call: %w", NewError(ErrorTypeRateLimit, "slow down")), true},
		{"auth", NewError(ErrorTypeAuth, "bad key"), false},
		{"unclassified", errors.New("mystery"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Retryable(tt.err); got != tt.want {
				t.Errorf("Retryable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestIsAndTypeOf(t *testing.T) {
	err := fmt.Errorf("summarize: %w", NewErrorWithStatus(ErrorTypeAuth, 401, "unauthorized"))

	if !Is(err, ErrorTypeAuth) || Is(err, ErrorTypeTransient) {
		t.Error("Is did not unwrap correctly")
	}
	if TypeOf(err) != ErrorTypeAuth {
		t.Errorf("TypeOf = %s", TypeOf(err))
	}
	if TypeOf(errors.New("plain")) != ErrorTypeUnknown {
		t.Error("plain errors should be unknown")
	}
}

func TestLabel(t *testing.T) {
	if Label(nil) != "" {
		t.Error("nil error should have empty label")
	}
	if Label(fmt.Errorf("x: %w", context.Canceled)) != "canceled" {
		t.Error("expected canceled label")
	}
	if Label(NewError(ErrorTypeRateLimit, "429")) != "rate_limit" {
		t.Error("expected rate_limit label")
	}
}

func TestServiceUnavailable(t *testing.T) {
	cause := NewError(ErrorTypeTransient, "503")
	err := NewServiceUnavailableError(cause, 3)

	if !IsServiceUnavailable(err) {
		t.Error("expected service unavailable")
	}
	if !errors.Is(err, cause) {
		t.Error("expected cause to be unwrapped")
	}
	if !strings.Contains(err.Error(), "3 retry attempts") {
		t.Errorf("unexpected message %q", err.Error())
	}
}

func TestSanitizePrompt(t *testing.T) {
	short := "short prompt"
	if SanitizePrompt(short, 100) != short {
		t.Error("short prompts should be unchanged")
	}

	long := strings.Repeat("a", 500) + strings.Repeat("b", 500)
	got := SanitizePrompt(long, 200)
	if !strings.HasPrefix(got, strings.Repeat("a", 100)) || !strings.HasSuffix(got, strings.Repeat("b", 100)) {
		t.Errorf("expected head and tail to be kept, got %q", got)
	}
	if !strings.Contains(got, "[1000 chars, hash:") {
		t.Errorf("expected length and hash marker, got %q", got)
	}
}
