package domain

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorType represents the category of a council error.
type ErrorType string

const (
	// ErrorTypeInvalidRequest indicates a malformed or invalid request.
	ErrorTypeInvalidRequest ErrorType = "invalid_request"

	// ErrorTypeNotFound indicates a resource was not found.
	ErrorTypeNotFound ErrorType = "not_found"

	// ErrorTypeInsufficientQuorum is fatal for a deliberation.
	ErrorTypeInsufficientQuorum ErrorType = "insufficient_quorum"

	// Non-fatal degradations. They are reported inside a successful result.
	ErrorTypeMemberTimeout          ErrorType = "member_timeout"
	ErrorTypeMemberInvocation       ErrorType = "member_invocation_failure"
	ErrorTypeReviewCoverageLow      ErrorType = "review_coverage_low"
	ErrorTypeSynthesisFailure       ErrorType = "synthesis_failure"
	ErrorTypeContextProviderFailure ErrorType = "context_provider_failure"

	// ErrorTypeCanceled indicates the caller went away.
	ErrorTypeCanceled ErrorType = "canceled"

	// Upstream reasoner errors.
	ErrorTypeAuthentication ErrorType = "authentication"
	ErrorTypePermission     ErrorType = "permission"
	ErrorTypeRateLimit      ErrorType = "rate_limit"
	ErrorTypeOverloaded     ErrorType = "overloaded"
	ErrorTypeContextLength  ErrorType = "context_length"

	// ErrorTypeServer indicates an internal server error.
	ErrorTypeServer ErrorType = "server"
)

// ErrorCode provides additional specificity beyond the error type.
type ErrorCode string

const (
	ErrorCodeContextLengthExceeded ErrorCode = "context_length_exceeded"
	ErrorCodeRateLimitExceeded     ErrorCode = "rate_limit_exceeded"
	ErrorCodeInvalidAPIKey         ErrorCode = "invalid_api_key"
	ErrorCodeModelNotFound         ErrorCode = "model_not_found"
	ErrorCodeUnknownProvider       ErrorCode = "unknown_provider"
	ErrorCodeUnknownPerspective    ErrorCode = "unknown_perspective"
	ErrorCodeEmptyResponse         ErrorCode = "empty_response"
)

// Sentinels for errors.Is checks.
var (
	ErrNotFound           = errors.New("not found")
	ErrMemberNotFound     = fmt.Errorf("council member %w", ErrNotFound)
	ErrInsufficientQuorum = errors.New("insufficient quorum")
	ErrMemberTimeout      = errors.New("member timed out")
	ErrEmptyResponse      = errors.New("empty response from reasoner")
)

// APIError is the canonical error surfaced at the HTTP boundary.
type APIError struct {
	Type       ErrorType `json:"type"`
	Code       ErrorCode `json:"code,omitempty"`
	Message    string    `json:"message"`
	Param      string    `json:"param,omitempty"`
	StatusCode int       `json:"-"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s (%s): %s", e.Type, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// HTTPStatusCode returns the appropriate HTTP status code for this error.
func (e *APIError) HTTPStatusCode() int {
	if e.StatusCode != 0 {
		return e.StatusCode
	}

	switch e.Type {
	case ErrorTypeInvalidRequest, ErrorTypeContextLength:
		return http.StatusBadRequest
	case ErrorTypeAuthentication:
		return http.StatusUnauthorized
	case ErrorTypePermission:
		return http.StatusForbidden
	case ErrorTypeNotFound:
		return http.StatusNotFound
	case ErrorTypeRateLimit:
		return http.StatusTooManyRequests
	case ErrorTypeOverloaded, ErrorTypeInsufficientQuorum:
		return http.StatusServiceUnavailable
	case ErrorTypeCanceled:
		return 499
	default:
		return http.StatusInternalServerError
	}
}

// NewAPIError creates a new API error.
func NewAPIError(errType ErrorType, message string) *APIError {
	return &APIError{
		Type:    errType,
		Message: message,
	}
}

// WithCode adds an error code to the error.
func (e *APIError) WithCode(code ErrorCode) *APIError {
	e.Code = code
	return e
}

// WithParam adds a parameter name to the error.
func (e *APIError) WithParam(param string) *APIError {
	e.Param = param
	return e
}

// WithStatusCode sets a specific HTTP status code.
func (e *APIError) WithStatusCode(code int) *APIError {
	e.StatusCode = code
	return e
}

// ErrInvalidRequest creates an invalid request error.
func ErrInvalidRequest(message string) *APIError {
	return NewAPIError(ErrorTypeInvalidRequest, message)
}

// ErrNotFoundf creates a not found error.
func ErrNotFoundf(format string, args ...any) *APIError {
	return NewAPIError(ErrorTypeNotFound, fmt.Sprintf(format, args...))
}

// ErrAuthentication creates an authentication error.
func ErrAuthentication(message string) *APIError {
	return NewAPIError(ErrorTypeAuthentication, message)
}

// ErrRateLimit creates a rate limit error.
func ErrRateLimit(message string) *APIError {
	return NewAPIError(ErrorTypeRateLimit, message).WithCode(ErrorCodeRateLimitExceeded)
}

// ErrOverloaded creates an overloaded error.
func ErrOverloaded(message string) *APIError {
	return NewAPIError(ErrorTypeOverloaded, message)
}

// ErrContextLength creates a context length exceeded error.
func ErrContextLength(message string) *APIError {
	return NewAPIError(ErrorTypeContextLength, message).WithCode(ErrorCodeContextLengthExceeded)
}

// ErrServer creates a server error.
func ErrServer(message string) *APIError {
	return NewAPIError(ErrorTypeServer, message)
}

// QuorumError reports how many members answered versus how many were needed.
type QuorumError struct {
	Obtained int `json:"obtained"`
	Required int `json:"required"`
}

func (e *QuorumError) Error() string {
	return fmt.Sprintf("insufficient quorum: %d of %d required responses", e.Obtained, e.Required)
}

// Unwrap lets errors.Is match ErrInsufficientQuorum.
func (e *QuorumError) Unwrap() error {
	return ErrInsufficientQuorum
}

// ToAPIError converts any error into the canonical API error.
func ToAPIError(err error) *APIError {
	if err == nil {
		return nil
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}

	var quorumErr *QuorumError
	if errors.As(err, &quorumErr) {
		return NewAPIError(ErrorTypeInsufficientQuorum, quorumErr.Error())
	}

	switch {
	case errors.Is(err, ErrNotFound):
		return NewAPIError(ErrorTypeNotFound, err.Error())
	case errors.Is(err, ErrMemberTimeout):
		return NewAPIError(ErrorTypeMemberTimeout, err.Error())
	}

	return ErrServer(err.Error())
}
