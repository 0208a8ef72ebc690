package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// loopService maps Loop HTTP answers to the messages callers see.
type loopService struct {
	client       *Client
	header       http.Header
	unauthorized string
	notFound     string
}

// loopReply is the common part of every Loop response body.
type loopReply struct {
	Success *bool           `json:"success"`
	Code    json.RawMessage `json:"code"`
	Message string          `json:"message"`
}

// call sends the request and decodes a 200 body into out.
func (s loopService) call(ctx context.Context, method, path string, body any, out any) error {
	var c Call
	if body != nil {
		var err error
		c, err = JSONCall(method, path, body)
		if err != nil {
			return err
		}
	} else {
		c = Call{Method: method, Path: path, ContentType: "application/json"}
	}
	c.Header = s.header

	resp, err := s.client.Do(ctx, c)
	if err != nil {
		return s.transportError(err)
	}
	if err := s.statusError(resp); err != nil {
		return err
	}
	if err := resp.DecodeJSON(out); err != nil {
		return &UpstreamError{
			Service:    s.client.Service(),
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("Invalid JSON response from %s service", s.client.Service()),
			Err:        err,
		}
	}
	return nil
}

func (s loopService) statusError(resp *Response) error {
	var msg string
	switch resp.StatusCode {
	case http.StatusOK:
		return nil
	case http.StatusBadRequest:
		var body struct {
			Message string `json:"message"`
		}
		_ = resp.DecodeJSON(&body)
		if body.Message == "" {
			body.Message = "Invalid request"
		}
		msg = "Bad Request: " + body.Message
	case http.StatusUnauthorized:
		msg = "Unauthorized: " + s.unauthorized
	case http.StatusPaymentRequired:
		msg = "Payment Required: No available requests/credits"
	case http.StatusNotFound:
		msg = "Not Found: " + s.notFound
	case http.StatusInternalServerError:
		msg = fmt.Sprintf("Server Error: %s service unavailable", s.client.Service())
	default:
		msg = fmt.Sprintf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(resp.Body)))
	}
	return &UpstreamError{Service: s.client.Service(), StatusCode: resp.StatusCode, Message: msg}
}

func (s loopService) transportError(err error) error {
	var msg string
	switch {
	case IsTimeout(err):
		msg = fmt.Sprintf("Request timeout - %s service did not respond in time", s.client.Service())
	case errors.Is(err, context.Canceled):
		msg = "Request canceled"
	default:
		msg = fmt.Sprintf("Connection error - Unable to reach %s service", s.client.Service())
	}
	return &UpstreamError{Service: s.client.Service(), Message: msg, Err: err}
}

// check turns a success:false body into an error. describe maps the
// numeric code when the body carries no message.
func (r loopReply) check(describe func(int) string) error {
	if r.Success != nil && *r.Success {
		return nil
	}
	code := strings.Trim(string(r.Code), `"`)
	if code == "" || code == "null" {
		code = "Unknown"
	}
	msg := r.Message
	if msg == "" {
		var n int
		if _, err := fmt.Sscan(code, &n); err == nil {
			msg = describe(n)
		} else {
			msg = "Unknown error"
		}
	}
	return fmt.Errorf("API Error %s: %s", code, msg)
}
