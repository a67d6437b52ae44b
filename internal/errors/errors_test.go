package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestAppErrorError(t *testing.T) {
	err := NewAppError(ErrCodeConfigLoad, "failed to load config", nil)
	expected := "[CONFIG_LOAD_ERROR] failed to load config"
	if err.Error() != expected {
		t.Errorf("Expected %q, got %q", expected, err.Error())
	}

	err = NewAppErrorWithDetails(ErrCodeConfigParse, "parse failed", "line 3: bad indent", nil)
	expected = "[CONFIG_PARSE_ERROR] parse failed: line 3: bad indent"
	if err.Error() != expected {
		t.Errorf("Expected %q, got %q", expected, err.Error())
	}
}

func TestAppErrorUnwrap(t *testing.T) {
	cause := fmt.Errorf("underlying")
	err := NewAppError(ErrCodeInternal, "wrapper", cause)

	if !errors.Is(err, cause) {
		t.Error("errors.Is should find the cause")
	}
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		code   ErrorCode
		status int
	}{
		{ErrCodeConfigNotFound, http.StatusNotFound},
		{ErrCodeVersionNotFound, http.StatusNotFound},
		{ErrCodeUnauthorized, http.StatusUnauthorized},
		{ErrCodeConfigValidation, http.StatusBadRequest},
		{ErrCodeRateLimit, http.StatusTooManyRequests},
		{ErrCodeInternal, http.StatusInternalServerError},
		{ErrCodeDBConnection, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			err := NewAppError(tt.code, "test", nil)
			if got := err.HTTPStatus(); got != tt.status {
				t.Errorf("HTTPStatus() = %d, want %d", got, tt.status)
			}
		})
	}
}

func TestSeverity(t *testing.T) {
	if NewAppError(ErrCodeDBConnection, "", nil).Severity != SeverityCritical {
		t.Error("DB connection errors should be critical")
	}
	if NewAppError(ErrCodeConfigLoad, "", nil).Severity != SeverityHigh {
		t.Error("config load errors should be high severity")
	}
	if NewAppError(ErrCodeNotFound, "", nil).Severity != SeverityLow {
		t.Error("not found errors should be low severity")
	}
}

func TestIsAppError(t *testing.T) {
	appErr := NewAppError(ErrCodeConflict, "conflict", nil)
	if got, ok := IsAppError(appErr); !ok || got.Code != ErrCodeConflict {
		t.Error("IsAppError should recognize AppError")
	}

	if _, ok := IsAppError(fmt.Errorf("plain")); ok {
		t.Error("IsAppError should reject plain errors")
	}
}
