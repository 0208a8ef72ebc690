package proxy

import (
	"encoding/json"
	"net/http"
)

// ForwardedHeaders are the only client headers passed to the upstream server.
var ForwardedHeaders = []string{"Authorization", "Content-Type", "OpenAI-Organization"}

// CompletionRequest is the subset of a completions body the proxy inspects.
// The body itself is forwarded untouched.
type CompletionRequest struct {
	Model  string `json:"model,omitempty"`
	Stream bool   `json:"stream,omitempty"`
}

// ParseCompletion checks that body is a JSON object and reports whether the
// client asked for a streamed response.
func ParseCompletion(body []byte) (CompletionRequest, error) {
	var req CompletionRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return CompletionRequest{}, NewInvalidJSONError(err)
	}
	return req, nil
}

// FilterHeaders builds the upstream header set from the client headers.
// Content-Type defaults to application/json.
func FilterHeaders(in http.Header) http.Header {
	out := make(http.Header, len(ForwardedHeaders))
	for _, name := range ForwardedHeaders {
		if v := in.Get(name); v != "" {
			out.Set(name, v)
		}
	}
	if out.Get("Content-Type") == "" {
		out.Set("Content-Type", "application/json")
	}
	return out
}
