// Package errors provides typed errors for the Remedly AutoFix SDK.
// Collaborator clients and the workflow engine use these types so callers can
// distinguish routing failures from network or server failures.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error is the base error type for all SDK errors.
type Error struct {
	// Kind indicates the category of error
	Kind Kind

	// Op is the operation being performed (e.g., "workflow.Run", "action.Route")
	Op string

	// Message is a human-readable description
	Message string

	// Err is the underlying error
	Err error
}

// Kind represents the kind/category of error.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindInvalidInput
	KindAuthentication
	KindNotFound
	KindRateLimit
	KindTimeout
	KindNetwork
	KindServer
	KindInternal

	// KindRouting indicates the action router could not resolve a
	// category/disambiguator combination.
	KindRouting

	// KindEnrichment indicates the enrichment collaborator failed.
	KindEnrichment

	// KindFixGeneration indicates the fix-generation collaborator failed.
	KindFixGeneration

	// KindExecution indicates the execution collaborator failed.
	KindExecution
)

func (k Kind) String() string {
	switch k {
	case KindInvalidInput:
		return "invalid_input"
	case KindAuthentication:
		return "authentication"
	case KindNotFound:
		return "not_found"
	case KindRateLimit:
		return "rate_limit"
	case KindTimeout:
		return "timeout"
	case KindNetwork:
		return "network"
	case KindServer:
		return "server"
	case KindInternal:
		return "internal"
	case KindRouting:
		return "routing"
	case KindEnrichment:
		return "enrichment"
	case KindFixGeneration:
		return "fix_generation"
	case KindExecution:
		return "execution"
	default:
		return "unknown"
	}
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Op != "" {
		if e.Err != nil {
			return fmt.Sprintf("%s: %s: %v", e.Op, e.Message, e.Err)
		}
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	if e.Err != nil {
		if e.Message == "" {
			return e.Err.Error()
		}
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether the error matches the target.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// APIError represents an error returned by a collaborator service API.
type APIError struct {
	// StatusCode is the HTTP status code
	StatusCode int `json:"status_code"`

	// Code is a service-specific error code
	Code string `json:"code"`

	// Message is the error message from the service
	Message string `json:"message"`

	// RequestID is the request ID for debugging
	RequestID string `json:"request_id,omitempty"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.RequestID != "" {
		return fmt.Sprintf("[%s] %s: %s (request_id: %s)", e.Code, http.StatusText(e.StatusCode), e.Message, e.RequestID)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, http.StatusText(e.StatusCode), e.Message)
}

// E constructs an Error from the given arguments.
// Arguments can be: Kind, string (Op then Message), error.
func E(args ...interface{}) error {
	e := &Error{}
	for _, arg := range args {
		switch a := arg.(type) {
		case Kind:
			e.Kind = a
		case string:
			if e.Op == "" {
				e.Op = a
			} else {
				e.Message = a
			}
		case error:
			e.Err = a
		}
	}
	return e
}

// New creates a new simple error.
func New(message string) error {
	return &Error{Message: message}
}

// Wrap wraps an error with an operation name.
func Wrap(err error, op string) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, Err: err}
}

// GetKind returns the Kind of the error, or KindUnknown.
func GetKind(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsAPIError checks if err is an APIError and returns it.
func IsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

// IsRoutingError checks if the error is an action routing error.
func IsRoutingError(err error) bool {
	return GetKind(err) == KindRouting
}

// IsNetworkError checks if the error is a network error.
func IsNetworkError(err error) bool {
	return GetKind(err) == KindNetwork
}

// IsTimeoutError checks if the error is a timeout error.
func IsTimeoutError(err error) bool {
	return GetKind(err) == KindTimeout
}

// IsRateLimitError checks if the error is a rate limit error.
func IsRateLimitError(err error) bool {
	if GetKind(err) == KindRateLimit {
		return true
	}
	if apiErr, ok := IsAPIError(err); ok {
		return apiErr.StatusCode == http.StatusTooManyRequests
	}
	return false
}

// IsRetryable checks if the error is worth retrying by a calling layer.
// Routing errors are deterministic and never retryable.
func IsRetryable(err error) bool {
	if IsRoutingError(err) {
		return false
	}
	if IsRateLimitError(err) || IsNetworkError(err) || IsTimeoutError(err) {
		return true
	}
	if apiErr, ok := IsAPIError(err); ok {
		return apiErr.StatusCode >= 500 && apiErr.StatusCode != http.StatusNotImplemented
	}
	return false
}

// Common errors.
var (
	// ErrMissingEndpoint is returned when a collaborator client has no endpoint configured.
	ErrMissingEndpoint = &Error{Kind: KindInvalidInput, Message: "endpoint is required"}

	// ErrMissingAPIKey is returned when an API key is missing.
	ErrMissingAPIKey = &Error{Kind: KindAuthentication, Message: "API key is required"}

	// ErrUnroutableIssue is returned when no execution action can be derived for an issue.
	ErrUnroutableIssue = &Error{Kind: KindRouting, Message: "issue cannot be routed to an execution action"}
)
