package errors

import (
	"errors"
	"net/http"
	"testing"
)

func TestErrorFormatting(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "op and message",
			err:  E(KindRouting, "action.Route", "no disambiguator"),
			want: "action.Route: no disambiguator",
		},
		{
			name: "op message and wrapped",
			err:  E(KindNetwork, "enrich.Fetch", "request failed", errors.New("dial tcp")),
			want: "enrich.Fetch: request failed: dial tcp",
		},
		{
			name: "bare wrapped error",
			err:  &Error{Err: errors.New("NetworkError")},
			want: "NetworkError",
		},
	}

	for _, tt := range tests {
		if got := tt.err.Error(); got != tt.want {
			t.Errorf("%s: Error() = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestGetKind(t *testing.T) {
	err := E(KindFixGeneration, "llm.GenerateFix", "bad response")
	if got := GetKind(err); got != KindFixGeneration {
		t.Errorf("GetKind = %v, want %v", got, KindFixGeneration)
	}

	wrapped := Wrap(err, "workflow.Run")
	if got := GetKind(wrapped); got != KindFixGeneration {
		t.Errorf("GetKind through wrap = %v, want %v", got, KindFixGeneration)
	}

	if got := GetKind(errors.New("plain")); got != KindUnknown {
		t.Errorf("GetKind(plain) = %v, want %v", got, KindUnknown)
	}
}

func TestIs(t *testing.T) {
	err := E(KindRouting, "action.Route", "cloud posture issue lacks filePath and resourceId")
	if !errors.Is(err, ErrUnroutableIssue) {
		t.Error("expected routing error to match ErrUnroutableIssue")
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"routing never retryable", E(KindRouting, "action.Route", "x"), false},
		{"network retryable", E(KindNetwork, "op", "x"), true},
		{"timeout retryable", E(KindTimeout, "op", "x"), true},
		{"server 500 retryable", &APIError{StatusCode: http.StatusInternalServerError, Code: "internal"}, true},
		{"501 not retryable", &APIError{StatusCode: http.StatusNotImplemented, Code: "not_implemented"}, false},
		{"429 retryable", &APIError{StatusCode: http.StatusTooManyRequests, Code: "rate_limited"}, true},
		{"plain not retryable", errors.New("boom"), false},
	}

	for _, tt := range tests {
		if got := IsRetryable(tt.err); got != tt.want {
			t.Errorf("%s: IsRetryable = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestWrapNil(t *testing.T) {
	if Wrap(nil, "op") != nil {
		t.Error("Wrap(nil) should be nil")
	}
}
