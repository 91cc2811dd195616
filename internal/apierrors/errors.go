package apierrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind names an error category. It is rendered as the "type" field of the
// error response body.
type Kind string

const (
	KindConfiguration    Kind = "ConfigurationError"
	KindAuthentication   Kind = "AuthenticationFailure"
	KindValidation       Kind = "ValidationFailure"
	KindInjection        Kind = "InjectionDetected"
	KindMethodNotAllowed Kind = "MethodNotAllowed"
)

// Common pipeline errors
var (
	// ErrConfiguration is returned for setup problems: unsupported algorithm,
	// missing key material, unknown stage names
	ErrConfiguration = errors.New("configuration error")

	// ErrAuthentication is returned when a token is missing or fails verification
	ErrAuthentication = errors.New("authentication failure")

	// ErrValidation is returned when a request section violates its schema
	ErrValidation = errors.New("validation failure")

	// ErrInjection is returned when the scanner runs in fail mode and a value matches
	ErrInjection = errors.New("injection detected")

	// ErrMethodNotAllowed is returned when no handler is bound to the request method
	ErrMethodNotAllowed = errors.New("method not allowed")
)

// Error is the structured failure raised by pipeline stages. The response
// formatter reads Status, Kind, Headers and Body off it.
type Error struct {
	Kind     Kind           // Error category
	Status   int            // HTTP status to render
	Message  string         // Human-readable message
	Field    string         // Offending field, when one is known
	Category string         // Attack category for injection failures
	Headers  map[string]any // Extra response headers (string or []string values)
	Body     any            // Replaces the {type, message} envelope when set
	Err      error          // Underlying error
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return string(e.Kind)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Err
}

// StatusCode returns the HTTP status for this error, defaulting per kind.
func (e *Error) StatusCode() int {
	if e.Status != 0 {
		return e.Status
	}
	return DefaultStatus(e.Kind)
}

// ErrorType returns the kind rendered into the response body.
func (e *Error) ErrorType() string {
	return string(e.Kind)
}

// ResponseHeaders returns headers carried by the error.
func (e *Error) ResponseHeaders() map[string]any {
	return e.Headers
}

// ResponseBody returns the extension body, if any.
func (e *Error) ResponseBody() any {
	return e.Body
}

// DefaultStatus maps an error kind onto its HTTP status.
func DefaultStatus(kind Kind) int {
	switch kind {
	case KindAuthentication:
		return http.StatusForbidden
	case KindValidation, KindInjection:
		return http.StatusBadRequest
	case KindMethodNotAllowed:
		return http.StatusMethodNotAllowed
	default:
		return http.StatusInternalServerError
	}
}

// Configuration creates a setup-time configuration error
func Configuration(format string, args ...any) *Error {
	return &Error{
		Kind:    KindConfiguration,
		Message: fmt.Sprintf(format, args...),
		Err:     ErrConfiguration,
	}
}

// Authentication creates an authentication failure. cause may be nil.
func Authentication(message string, cause error) *Error {
	err := ErrAuthentication
	if cause != nil {
		err = fmt.Errorf("%w: %w", ErrAuthentication, cause)
	}
	return &Error{
		Kind:    KindAuthentication,
		Message: message,
		Err:     err,
	}
}

// Validation creates a validation failure for field
func Validation(field, message string) *Error {
	return &Error{
		Kind:    KindValidation,
		Message: message,
		Field:   field,
		Err:     ErrValidation,
	}
}

// Injection creates an injection failure for field matched by category
func Injection(field, category string, status int) *Error {
	return &Error{
		Kind:     KindInjection,
		Status:   status,
		Message:  fmt.Sprintf("%s: %s", category, field),
		Field:    field,
		Category: category,
		Err:      ErrInjection,
	}
}

// MethodNotAllowed creates the error raised when no handler is bound to method
func MethodNotAllowed(method string) *Error {
	return &Error{
		Kind:    KindMethodNotAllowed,
		Message: fmt.Sprintf("handler not defined for http method: %s", method),
		Err:     ErrMethodNotAllowed,
	}
}

// StatusError attaches an HTTP status to an arbitrary handler error.
type StatusError struct {
	Status int
	Err    error
}

func (e *StatusError) Error() string {
	return e.Err.Error()
}

func (e *StatusError) Unwrap() error {
	return e.Err
}

// StatusCode returns the attached status
func (e *StatusError) StatusCode() int {
	return e.Status
}

// WithStatus wraps err so that it renders with status
func WithStatus(err error, status int) error {
	if err == nil {
		return nil
	}
	return &StatusError{Status: status, Err: err}
}

// IsConfiguration reports whether err is a configuration error
func IsConfiguration(err error) bool {
	return errors.Is(err, ErrConfiguration)
}

// IsAuthentication reports whether err is an authentication failure
func IsAuthentication(err error) bool {
	return errors.Is(err, ErrAuthentication)
}

// IsValidation reports whether err is a validation failure
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsInjection reports whether err is an injection failure
func IsInjection(err error) bool {
	return errors.Is(err, ErrInjection)
}
