package types

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestAppError_ErrorFormat(t *testing.T) {
	err := NewAppError(ErrCodeValidationInvalidLat, "latitude must be between -90 and 90", nil)

	want := "validation_invalid_latitude: latitude must be between -90 and 90"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestAppError_Unwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := NewAppError(ErrCodeInternalDB, "failed to load map session", cause)

	if !errors.Is(err, cause) {
		t.Error("errors.Is did not find the wrapped cause")
	}
	if NewAppError(ErrCodeNotFoundSession, "gone", nil).Unwrap() != nil {
		t.Error("Unwrap() should be nil without a cause")
	}
}

func TestAppError_As(t *testing.T) {
	wrapped := fmt.Errorf("handler: %w", NewAppErrorWithDetails(ErrCodeNotFoundChargeSite,
		"charge site is not in the current list", nil, map[string]any{"site_id": int64(9)}))

	var appErr *AppError
	if !errors.As(wrapped, &appErr) {
		t.Fatal("errors.As failed to find *AppError")
	}
	if appErr.Code != ErrCodeNotFoundChargeSite {
		t.Errorf("Code = %q", appErr.Code)
	}
	if appErr.Details["site_id"] != int64(9) {
		t.Errorf("Details = %v", appErr.Details)
	}
}

func TestErrorCode_HTTPStatus(t *testing.T) {
	tests := []struct {
		code ErrorCode
		want int
	}{
		{ErrCodeValidationInvalidLat, http.StatusBadRequest},
		{ErrCodeValidationInvalidLon, http.StatusBadRequest},
		{ErrCodeValidationInvalidRegion, http.StatusBadRequest},
		{ErrCodeValidationInvalidFilters, http.StatusBadRequest},
		{ErrCodeValidationInvalidAspect, http.StatusBadRequest},
		{ErrCodeValidationMissingField, http.StatusBadRequest},
		{ErrCodeValidationInvalidJSON, http.StatusBadRequest},
		{ErrCodeValidationFailed, http.StatusBadRequest},
		{ErrCodeNotFoundSession, http.StatusNotFound},
		{ErrCodeNotFoundChargeSite, http.StatusNotFound},
		{ErrCodeInternalDB, http.StatusInternalServerError},
		{ErrCodeInternalCache, http.StatusInternalServerError},
		{ErrCodeInternalUnexpected, http.StatusInternalServerError},
		{ErrCodeUpstreamChargeSites, http.StatusBadGateway},
		{ErrCodeUpstreamTimeout, http.StatusGatewayTimeout},
		{ErrorCode("something_else"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			if got := tt.code.HTTPStatus(); got != tt.want {
				t.Errorf("HTTPStatus() = %d, want %d", got, tt.want)
			}
			if got := NewAppError(tt.code, "x", nil).HTTPStatus(); got != tt.want {
				t.Errorf("AppError.HTTPStatus() = %d, want %d", got, tt.want)
			}
		})
	}
}
