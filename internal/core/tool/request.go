package tool

import (
	"encoding/json"
	"fmt"
	"time"
)

// Request is the body of POST /tool.
type Request struct {
	Tool      Name            `json:"tool"`
	RequestID string          `json:"request_id,omitempty"`
	Timeout   *int            `json:"timeout,omitempty"`
	ToolInput json.RawMessage `json:"tool_input"`
}

// ParseRequest decodes and checks the envelope. The tool input itself is
// decoded later by the tool's own decoder.
func ParseRequest(body []byte) (Request, error) {
	var req Request
	if err := json.Unmarshal(body, &req); err != nil {
		return Request{}, &ValidationErrors{{Field: "body", Message: fmt.Sprintf("invalid JSON: %v", err)}}
	}

	var errs ValidationErrors
	if req.Tool == "" {
		errs.Add("tool", "field required")
	}
	if len(req.ToolInput) == 0 || string(req.ToolInput) == "null" {
		errs.Add("tool_input", "field required")
	}
	if req.Timeout != nil && *req.Timeout <= 0 {
		errs.Add("timeout", "must be greater than 0")
	}
	if err := errs.Err(); err != nil {
		return Request{}, err
	}
	return req, nil
}

// Deadline returns the per-request timeout, or fallback when none was given.
func (r Request) Deadline(fallback time.Duration) time.Duration {
	if r.Timeout != nil && *r.Timeout > 0 {
		return time.Duration(*r.Timeout) * time.Second
	}
	return fallback
}

// Response is the envelope every tool call returns.
type Response struct {
	DurationMS   int64  `json:"duration_ms"`
	Success      bool   `json:"success"`
	ErrorMessage string `json:"error_message,omitempty"`
	ToolOutput   any    `json:"tool_output"`
}

// Success builds a successful response.
func Success(output any, durationMS int64) Response {
	return Response{DurationMS: durationMS, Success: true, ToolOutput: output}
}

// Failure builds a failed response with no output.
func Failure(message string, durationMS int64) Response {
	return Response{DurationMS: durationMS, Success: false, ErrorMessage: message}
}

// WithDuration fills in the duration when the handler left it unset.
func (r Response) WithDuration(d time.Duration) Response {
	if r.DurationMS == 0 {
		r.DurationMS = d.Milliseconds()
	}
	return r
}
