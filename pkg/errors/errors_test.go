package errors

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"
)

func TestAppError_Error(t *testing.T) {
	err := NewAppError(ErrCodeInvalidInput, "test error", 400)
	expected := "INVALID_INPUT: test error"
	if err.Error() != expected {
		t.Errorf("Error() = %v, want %v", err.Error(), expected)
	}
}

func TestAppError_WithCause(t *testing.T) {
	originalErr := errors.New("original error")
	err := WrapError(originalErr, ErrCodeInternal, "wrapped error", 500)

	if err.Cause != originalErr {
		t.Errorf("Cause = %v, want %v", err.Cause, originalErr)
	}
	if !strings.Contains(err.Error(), "original error") {
		t.Errorf("Error() should contain cause, got: %v", err.Error())
	}
	if !errors.Is(err, originalErr) {
		t.Error("errors.Is should see the cause through Unwrap")
	}
}

func TestAppError_WithContext(t *testing.T) {
	err := NewAppError(ErrCodeInvalidInput, "test error", 400)
	err.WithContext("field", "value").WithContext("count", 42)

	if err.Context["field"] != "value" {
		t.Errorf("Context[field] = %v, want 'value'", err.Context["field"])
	}
	if err.Context["count"] != 42 {
		t.Errorf("Context[count] = %v, want 42", err.Context["count"])
	}
}

func TestTaxonomyConstructors(t *testing.T) {
	cause := errors.New("boom")
	cases := []struct {
		name      string
		err       *AppError
		code      ErrorCode
		status    int
		retryable bool
	}{
		{"invalid input", NewInvalidInputError("bad"), ErrCodeInvalidInput, http.StatusBadRequest, false},
		{"not found", NewNotFoundError("session"), ErrCodeNotFound, http.StatusNotFound, false},
		{"configuration", NewConfigurationError("missing key"), ErrCodeConfiguration, http.StatusInternalServerError, false},
		{"store", NewStoreError(cause, "create session"), ErrCodeStoreUnavailable, http.StatusServiceUnavailable, true},
		{"signing", NewSigningError(cause), ErrCodeSigningFailed, http.StatusInternalServerError, false},
		{"sdk load", NewSDKLoadError(cause), ErrCodeSDKLoadFailed, http.StatusBadGateway, true},
		{"conflict", NewConflictError("dup"), ErrCodeConflict, http.StatusConflict, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if tc.err.Code != tc.code {
				t.Errorf("Code = %v, want %v", tc.err.Code, tc.code)
			}
			if tc.err.HTTPStatus != tc.status {
				t.Errorf("HTTPStatus = %v, want %v", tc.err.HTTPStatus, tc.status)
			}
			if tc.err.Retryable() != tc.retryable {
				t.Errorf("Retryable() = %v, want %v", tc.err.Retryable(), tc.retryable)
			}
		})
	}
}

func TestNewStoreError_RecordsOperation(t *testing.T) {
	err := NewStoreError(errors.New("dial tcp: refused"), "list permissions")
	if err.Context["operation"] != "list permissions" {
		t.Errorf("Context[operation] = %v, want 'list permissions'", err.Context["operation"])
	}
}

func TestIsAppError(t *testing.T) {
	appErr := NewAppError(ErrCodeInvalidInput, "test", 400)
	regularErr := errors.New("regular error")

	if !IsAppError(appErr) {
		t.Error("IsAppError() should return true for AppError")
	}
	if IsAppError(regularErr) {
		t.Error("IsAppError() should return false for regular error")
	}
}

func TestGetAppError(t *testing.T) {
	appErr := NewAppError(ErrCodeInvalidInput, "test", 400)

	if result := GetAppError(appErr); result != appErr {
		t.Errorf("GetAppError() = %v, want %v", result, appErr)
	}

	wrapped := fmt.Errorf("handler: %w", appErr)
	if result := GetAppError(wrapped); result != appErr {
		t.Error("GetAppError() should extract AppError from fmt-wrapped error")
	}

	if result := GetAppError(errors.New("regular error")); result != nil {
		t.Error("GetAppError() should return nil for regular error")
	}

	if GetAppError(nil) != nil {
		t.Error("GetAppError(nil) should return nil")
	}
}

func TestHasCode(t *testing.T) {
	err := fmt.Errorf("outer: %w", NewConfigurationError("no key"))
	if !HasCode(err, ErrCodeConfiguration) {
		t.Error("HasCode should find CONFIGURATION_ERROR in chain")
	}
	if HasCode(err, ErrCodeInvalidInput) {
		t.Error("HasCode should not match a different code")
	}
}
