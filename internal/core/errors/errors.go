package errors

import (
	"errors"
	"fmt"
)

// Domain errors - these represent failures of the real-time subsystem
var (
	// Authentication (handshake rejected, no connection is created)
	ErrAuthenticationFailed = errors.New("authentication failed")
	ErrTokenMissing         = errors.New("authentication token is required")

	// Event validation (malformed events are dropped, never delivered)
	ErrValidationFailed  = errors.New("event validation failed")
	ErrUnknownEventKind  = errors.New("unknown event kind")
	ErrUnknownContent    = errors.New("unknown content type")
	ErrContentIDRequired = errors.New("content ID is required")
	ErrActorRequired     = errors.New("actor ID is required")
	ErrActorNameRequired = errors.New("actor display name is required")
	ErrAuthorRequired    = errors.New("author ID is required")
	ErrNegativeCount     = errors.New("aggregate count cannot be negative")
	ErrAuthorNotFound    = errors.New("content author not found")

	// Delivery (isolated per connection, never surfaced to Emit callers)
	ErrDeliveryFailed     = errors.New("payload delivery failed")
	ErrConnectionNotFound = errors.New("connection not found")
	ErrConnectionClosed   = errors.New("connection closed")
	ErrDispatcherClosed   = errors.New("dispatcher is shut down")

	// Distribution medium (cluster fan-out degraded to local-only)
	ErrBrokerUnavailable = errors.New("distribution medium unavailable")
	ErrBrokerClosed      = errors.New("broker is closed")

	// Resource exhaustion (rejected with a retry signal, not a crash)
	ErrRateLimited     = errors.New("rate limit exceeded")
	ErrConnectionLimit = errors.New("connection limit reached")

	// Room membership
	ErrRoomForbidden = errors.New("room cannot be joined by clients")
	ErrInvalidRoom   = errors.New("invalid room key")

	// Generic
	ErrNotFound   = errors.New("resource not found")
	ErrBadRequest = errors.New("bad request")
)

// AppError wraps errors with additional context for HTTP responses
type AppError struct {
	Err        error  // The underlying error
	Message    string // User-friendly message
	Code       string // Machine-readable error code
	StatusCode int    // HTTP status code
	Details    map[string]interface{}
}

func (e *AppError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Err.Error()
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Error constructors for common cases
func NewBadRequestError(err error, message string) *AppError {
	return &AppError{
		Err:        err,
		Message:    message,
		Code:       "BAD_REQUEST",
		StatusCode: 400,
	}
}

func NewUnauthorizedError(message string) *AppError {
	return &AppError{
		Err:        ErrAuthenticationFailed,
		Message:    message,
		Code:       "UNAUTHORIZED",
		StatusCode: 401,
	}
}

func NewValidationError(err error, message string, details map[string]interface{}) *AppError {
	return &AppError{
		Err:        err,
		Message:    message,
		Code:       "VALIDATION_ERROR",
		StatusCode: 422,
		Details:    details,
	}
}

func NewRateLimitError(retryAfter string) *AppError {
	return &AppError{
		Err:        ErrRateLimited,
		Message:    "Too many requests. Please try again later.",
		Code:       "RATE_LIMITED",
		StatusCode: 429,
		Details:    map[string]interface{}{"retryAfter": retryAfter},
	}
}

// ValidationErrors holds multiple field validation errors
type ValidationErrors struct {
	Errors map[string][]string `json:"errors"`
}

func NewValidationErrors() *ValidationErrors {
	return &ValidationErrors{
		Errors: make(map[string][]string),
	}
}

func (v *ValidationErrors) Add(field, message string) {
	v.Errors[field] = append(v.Errors[field], message)
}

func (v *ValidationErrors) HasErrors() bool {
	return len(v.Errors) > 0
}

func (v *ValidationErrors) Error() string {
	return fmt.Sprintf("validation failed: %d field(s) have errors", len(v.Errors))
}
