package proxy

import (
	"fmt"
	"net/http"
)

// ErrorType classifies a proxy failure in the OpenAI-style error body.
type ErrorType string

const (
	ErrorInvalidRequest ErrorType = "invalid_request"
	ErrorNoServers      ErrorType = "no_servers"
	ErrorEndpoint       ErrorType = "endpoint_error"
)

// ErrorResponse is the JSON error body returned by the completions proxy.
type ErrorResponse struct {
	Object  string    `json:"object"`
	Message string    `json:"message"`
	Type    ErrorType `json:"type"`
	Code    int       `json:"code"`
}

// Error implements the error interface.
func (e ErrorResponse) Error() string {
	return e.Message
}

// StatusCode returns the HTTP status to send with the body.
func (e ErrorResponse) StatusCode() int {
	if e.Code == 0 {
		return http.StatusInternalServerError
	}
	return e.Code
}

func newError(t ErrorType, code int, message string) ErrorResponse {
	return ErrorResponse{Object: "error", Message: message, Type: t, Code: code}
}

// NewInvalidJSONError reports an unparsable request body.
func NewInvalidJSONError(err error) ErrorResponse {
	return newError(ErrorInvalidRequest, http.StatusBadRequest, fmt.Sprintf("Invalid JSON: %v", err))
}

// NewNoServersError reports that no running pod can take the request.
func NewNoServersError() ErrorResponse {
	return newError(ErrorNoServers, http.StatusNotFound, "No servers available")
}

// NewEndpointError reports a non-200 answer from the upstream server.
// The upstream status is passed through.
func NewEndpointError(status int, body string) ErrorResponse {
	return newError(ErrorEndpoint, status, fmt.Sprintf("Error from endpoint: %d %s", status, body))
}

// NewUnreachableError reports a transport failure reaching the upstream.
func NewUnreachableError(err error) ErrorResponse {
	return newError(ErrorEndpoint, http.StatusBadGateway, fmt.Sprintf("Error contacting endpoint: %v", err))
}

// StreamErrorText is the plain text sent in place of an event stream when the
// upstream rejects a streaming request.
func StreamErrorText(status int, body string) string {
	return fmt.Sprintf("Error from endpoint: %d %s", status, body)
}
