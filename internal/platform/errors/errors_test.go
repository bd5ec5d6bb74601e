package errors

import (
	"errors"
	"net/http"
	"strings"
	"testing"
)

func TestError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		contains []string
	}{
		{
			name: "error with cause",
			err: Wrap(KindIO, "store_latents", "failed to write latents",
				errors.New("disk full")),
			contains: []string{"[io:store_latents]", "failed to write latents", "disk full"},
		},
		{
			name:     "error without cause",
			err:      New(KindValidation, "tts_to_audio", "unsupported language"),
			contains: []string{"[validation:tts_to_audio]", "unsupported language"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errStr := tt.err.Error()
			for _, substr := range tt.contains {
				if !strings.Contains(errStr, substr) {
					t.Errorf("error string %q does not contain %q", errStr, substr)
				}
			}
		})
	}
}

func TestError_Unwrap(t *testing.T) {
	originalErr := errors.New("original error")
	wrappedErr := Wrap(KindSynthesis, "test", "wrapped", originalErr)

	if !errors.Is(wrappedErr, originalErr) {
		t.Error("Unwrap should return the original error")
	}
}

func TestIsKind(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		kind     Kind
		expected bool
	}{
		{
			name:     "direct error kind match",
			err:      New(KindValidation, "test", "message"),
			kind:     KindValidation,
			expected: true,
		},
		{
			name:     "wrapped error kind match",
			err:      Wrap(KindNotFound, "test", "message", errors.New("cause")),
			kind:     KindNotFound,
			expected: true,
		},
		{
			name:     "error kind mismatch",
			err:      New(KindValidation, "test", "message"),
			kind:     KindSynthesis,
			expected: false,
		},
		{
			name:     "non-typed error",
			err:      errors.New("plain error"),
			kind:     KindValidation,
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := IsKind(tt.err, tt.kind)
			if result != tt.expected {
				t.Errorf("IsKind() = %v, expected %v", result, tt.expected)
			}
		})
	}
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected int
	}{
		{"validation", New(KindValidation, "op", "bad input"), http.StatusBadRequest},
		{"not found", New(KindNotFound, "op", "missing"), http.StatusNotFound},
		{"synthesis", New(KindSynthesis, "op", "engine failed"), http.StatusInternalServerError},
		{"io", New(KindIO, "op", "write failed"), http.StatusInternalServerError},
		{"untyped", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HTTPStatus(tt.err); got != tt.expected {
				t.Errorf("HTTPStatus() = %d, expected %d", got, tt.expected)
			}
		})
	}
}

func TestDetail(t *testing.T) {
	err := Wrap(KindSynthesis, "tts_to_file", "synthesis failed", errors.New("model crashed"))
	detail := Detail(err)
	if strings.Contains(detail, "[synthesis") {
		t.Errorf("Detail() leaked internal prefix: %q", detail)
	}
	if !strings.Contains(detail, "model crashed") {
		t.Errorf("Detail() missing cause: %q", detail)
	}
}
