// Package apperror defines the error taxonomy shared by every layer of the API.
//
// Services and repositories return these errors; the GraphQL layer reads
// Code/Extensions to report them per field, and the HTTP layer maps them
// to status codes for the few plain REST routes.
package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrValidation          = errors.New("validation error")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrProvider            = errors.New("identity provider error")
	ErrQueryTooDeep        = errors.New("query too deep")
	ErrQueryTooComplex     = errors.New("query too complex")
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
)

// Machine-readable codes surfaced in GraphQL error extensions.
const (
	CodeNotFound            = "NOT_FOUND"
	CodeValidation          = "BAD_USER_INPUT"
	CodeUnauthorized        = "UNAUTHORIZED"
	CodeProvider            = "PROVIDER_ERROR"
	CodeQueryTooDeep        = "QUERY_TOO_DEEP"
	CodeQueryTooComplex     = "QUERY_TOO_COMPLEX"
	CodeUpstreamUnavailable = "UPSTREAM_UNAVAILABLE"
)

type AppError struct {
	Err     error  // actual error
	Message string // Human-readable error message
	Field   string // Optional: field causing the error
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Code returns the machine-readable code for the wrapped sentinel.
func (e *AppError) Code() string {
	switch {
	case errors.Is(e.Err, ErrNotFound):
		return CodeNotFound
	case errors.Is(e.Err, ErrValidation):
		return CodeValidation
	case errors.Is(e.Err, ErrUnauthorized):
		return CodeUnauthorized
	case errors.Is(e.Err, ErrProvider):
		return CodeProvider
	case errors.Is(e.Err, ErrQueryTooDeep):
		return CodeQueryTooDeep
	case errors.Is(e.Err, ErrQueryTooComplex):
		return CodeQueryTooComplex
	default:
		return CodeUpstreamUnavailable
	}
}

// Extensions satisfies graphql-go's gqlerrors.ExtendedError, so the code
// travels with every field error in the response.
func (e *AppError) Extensions() map[string]interface{} {
	ext := map[string]interface{}{"code": e.Code()}
	if e.Field != "" {
		ext["field"] = e.Field
	}
	return ext
}

func NotFound(resource, id string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("%s not found with id %s", resource, id),
	}
}

func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}

// Unauthorized reports an operation that needs an authenticated caller.
func Unauthorized(message string) *AppError {
	return &AppError{
		Err:     ErrUnauthorized,
		Message: message,
	}
}

// Provider carries the identity provider's own message verbatim.
func Provider(message string) *AppError {
	return &AppError{
		Err:     ErrProvider,
		Message: message,
	}
}

func QueryTooDeep(depth, max int) *AppError {
	return &AppError{
		Err:     ErrQueryTooDeep,
		Message: fmt.Sprintf("query depth %d exceeds maximum depth %d", depth, max),
	}
}

// QueryTooComplex reports only the bound: the gate stops counting once it is
// passed, so the exact cost is unknown.
func QueryTooComplex(max int) *AppError {
	return &AppError{
		Err:     ErrQueryTooComplex,
		Message: fmt.Sprintf("query complexity exceeds maximum complexity %d", max),
	}
}

// UpstreamUnavailable hides the cause from the client message but keeps it
// in the chain for logging.
func UpstreamUnavailable(upstream string, cause error) *AppError {
	return &AppError{
		Err:     fmt.Errorf("%w: %w", ErrUpstreamUnavailable, cause),
		Message: fmt.Sprintf("%s is unavailable", upstream),
	}
}

// From returns the *AppError in err's chain, classifying anything else as an
// unavailable upstream.
func From(err error) *AppError {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return UpstreamUnavailable("upstream service", err)
}
