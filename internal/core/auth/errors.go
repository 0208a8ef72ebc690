package auth

import (
	"fmt"
	"net/http"
	"time"
)

// ErrorKind classifies an authentication failure.
type ErrorKind string

const (
	KindMissingToken  ErrorKind = "missing_token"
	KindInvalidToken  ErrorKind = "invalid_token"
	KindTokenExpired  ErrorKind = "token_expired"
	KindInvalidClaims ErrorKind = "invalid_claims"
	KindConfig        ErrorKind = "config"
)

// Error is an authentication failure with its HTTP mapping.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Status returns the HTTP status code for the failure.
func (e *Error) Status() int {
	switch e.Kind {
	case KindInvalidClaims:
		return http.StatusUnprocessableEntity
	case KindConfig:
		return http.StatusInternalServerError
	default:
		return http.StatusUnauthorized
	}
}

// Code returns the machine-readable error code used in response bodies.
func (e *Error) Code() string {
	switch e.Kind {
	case KindTokenExpired:
		return "token_expired"
	case KindInvalidClaims:
		return "invalid_claims"
	case KindMissingToken:
		return "authentication_required"
	case KindConfig:
		return "authentication_error"
	default:
		return "authentication_failed"
	}
}

// Body builds the JSON error payload returned to clients.
func (e *Error) Body(now time.Time) ErrorBody {
	return ErrorBody{
		Error:   e.Code(),
		Message: e.Message,
		Details: ErrorDetails{
			ErrorType: string(e.Kind),
			Timestamp: now.UTC().Format(time.RFC3339),
		},
	}
}

// ErrorBody is the wire shape of authentication errors.
type ErrorBody struct {
	Error   string       `json:"error"`
	Message string       `json:"message"`
	Details ErrorDetails `json:"details"`
}

// ErrorDetails carries the failure class and time.
type ErrorDetails struct {
	ErrorType string `json:"error_type"`
	Timestamp string `json:"timestamp"`
}

// =============================================================================
// Constructors
// =============================================================================

func ErrMissingToken() *Error {
	return &Error{Kind: KindMissingToken, Message: "Authentication required"}
}

func ErrTokenExpired(err error) *Error {
	return &Error{Kind: KindTokenExpired, Message: "Token has expired", Err: err}
}

func ErrInvalidToken(msg string, err error) *Error {
	return &Error{Kind: KindInvalidToken, Message: msg, Err: err}
}

func ErrInvalidClaims(msg string) *Error {
	return &Error{Kind: KindInvalidClaims, Message: msg}
}

func ErrConfig(msg string, err error) *Error {
	return &Error{Kind: KindConfig, Message: msg, Err: err}
}
