package client

import (
	"errors"
	"fmt"
	"testing"
)

func TestAPIError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *APIError
		want string
	}{
		{
			name: "without wrapped error",
			err:  &APIError{StatusCode: 503, ErrorClass: ErrorClassServer, Message: "503 Service Unavailable"},
			want: "server error (status 503): 503 Service Unavailable",
		},
		{
			name: "with wrapped error",
			err:  &APIError{StatusCode: 200, ErrorClass: ErrorClassDecode, Message: "decode listing", Err: errors.New("unexpected EOF")},
			want: "decode error (status 200): decode listing: unexpected EOF",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestAPIError_Unwrap(t *testing.T) {
	inner := errors.New("unexpected EOF")
	err := fmt.Errorf("fetch: %w", &APIError{ErrorClass: ErrorClassDecode, Err: inner})

	if !errors.Is(err, inner) {
		t.Error("errors.Is() should find the wrapped error")
	}

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatal("errors.As() should find the APIError")
	}
	if apiErr.ErrorClass != ErrorClassDecode {
		t.Errorf("ErrorClass = %q, want %q", apiErr.ErrorClass, ErrorClassDecode)
	}
}

func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		code int
		want ErrorClass
	}{
		{200, ""},
		{304, ""},
		{400, ErrorClassClient},
		{404, ErrorClassClient},
		{429, ErrorClassRateLimit},
		{500, ErrorClassServer},
		{503, ErrorClassServer},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.code), func(t *testing.T) {
			if got := classifyStatus(tt.code); got != tt.want {
				t.Errorf("classifyStatus(%d) = %q, want %q", tt.code, got, tt.want)
			}
		})
	}
}

func TestShouldRetry(t *testing.T) {
	tests := []struct {
		class ErrorClass
		want  bool
	}{
		{ErrorClassClient, false},
		{ErrorClassDecode, false},
		{ErrorClassServer, true},
		{ErrorClassRateLimit, true},
		{ErrorClassNetwork, true},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(string(tt.class), func(t *testing.T) {
			if got := shouldRetry(tt.class); got != tt.want {
				t.Errorf("shouldRetry(%q) = %v, want %v", tt.class, got, tt.want)
			}
		})
	}
}

func TestClassify(t *testing.T) {
	if got := classify(errors.New("dial tcp: connection refused")); got != ErrorClassNetwork {
		t.Errorf("classify(plain) = %q, want network", got)
	}
	wrapped := fmt.Errorf("attempt: %w", &APIError{ErrorClass: ErrorClassRateLimit})
	if got := classify(wrapped); got != ErrorClassRateLimit {
		t.Errorf("classify(wrapped) = %q, want rate_limit", got)
	}
}
