// Package tools implements the tool handlers that call external services.
// Each tool owns a Client bound to its upstream base URL; inputs arrive
// already validated by the core tool package.
package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
)

// =============================================================================
// Tool Configuration
// =============================================================================

// Config is one entry of the tools config list.
type Config struct {
	ToolID   string            `mapstructure:"tool_id" yaml:"tool_id"`
	APIKey   string            `mapstructure:"api_key" yaml:"api_key"`
	Settings map[string]string `mapstructure:"settings" yaml:"settings,omitempty"`
}

// Setting returns a settings value, or "" when unset.
func (c Config) Setting(key string) string {
	if c.Settings == nil {
		return ""
	}
	return strings.TrimSpace(c.Settings[key])
}

// BaseURL returns the base_url override or def.
func (c Config) BaseURL(def string) string {
	if u := c.Setting("base_url"); u != "" {
		return strings.TrimRight(u, "/")
	}
	return def
}

// Find returns the entry for id. A missing entry is the zero Config.
func Find(cfgs []Config, id string) Config {
	for _, c := range cfgs {
		if c.ToolID == id {
			return c
		}
	}
	return Config{ToolID: id}
}

// =============================================================================
// Errors
// =============================================================================

// UpstreamError reports a failed call to an external service.
type UpstreamError struct {
	Service    string
	StatusCode int
	Message    string
	Err        error
}

func (e *UpstreamError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s returned HTTP %d", e.Service, e.StatusCode)
	}
	return fmt.Sprintf("%s request failed: %v", e.Service, e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// IsTimeout reports whether err is a deadline or network timeout.
func IsTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// StripURL replaces a *url.Error in err with its operation and cause. The
// request URL may carry an API key in its query string.
func StripURL(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return fmt.Errorf("%s request: %w", urlErr.Op, urlErr.Err)
	}
	return err
}

// errRetryableStatus marks a 5xx answer to an idempotent request.
var errRetryableStatus = errors.New("retryable upstream status")

// =============================================================================
// Client
// =============================================================================

const (
	DefaultTimeout       = 30 * time.Second
	DefaultRetryAttempts = 3
	DefaultRetryDelay    = 200 * time.Millisecond
)

// Client performs HTTP calls against one upstream service.
type Client struct {
	service    string
	baseURL    string
	httpClient *http.Client
	attempts   uint
	delay      time.Duration
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithRetry sets the attempt count and the base backoff delay for GETs.
func WithRetry(attempts uint, delay time.Duration) ClientOption {
	return func(c *Client) {
		if attempts > 0 {
			c.attempts = attempts
		}
		c.delay = delay
	}
}

// NewClient creates a client for service rooted at baseURL.
func NewClient(service, baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		service:    service,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: DefaultTimeout},
		attempts:   DefaultRetryAttempts,
		delay:      DefaultRetryDelay,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Service returns the display name used in error messages.
func (c *Client) Service() string {
	return c.service
}

// Call describes one request. Path is appended to the client's base URL.
type Call struct {
	Method      string
	Path        string
	Query       url.Values
	Header      http.Header
	Body        []byte
	ContentType string
	BasicAuth   *[2]string
}

// JSONCall builds a call whose body is v encoded as JSON.
func JSONCall(method, path string, v any) (Call, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return Call{}, fmt.Errorf("failed to marshal request: %w", err)
	}
	return Call{Method: method, Path: path, Body: body, ContentType: "application/json"}, nil
}

// Response is a fully read upstream response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// OK reports a 2xx status.
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// DecodeJSON unmarshals the body into v.
func (r *Response) DecodeJSON(v any) error {
	return json.Unmarshal(r.Body, v)
}

// Do sends the call. GET requests are retried on transport errors and 5xx
// answers. Any HTTP status is returned as a Response; only transport failures
// produce an UpstreamError.
func (c *Client) Do(ctx context.Context, call Call) (*Response, error) {
	if call.Method == "" {
		call.Method = http.MethodGet
	}
	idempotent := call.Method == http.MethodGet

	attempts := c.attempts
	if !idempotent {
		attempts = 1
	}

	var resp *Response
	err := retry.Do(
		func() error {
			r, err := c.send(ctx, call)
			if err != nil {
				return err
			}
			resp = r
			if idempotent && r.StatusCode >= http.StatusInternalServerError {
				return errRetryableStatus
			}
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(attempts),
		retry.Delay(c.delay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return !errors.Is(err, context.Canceled)
		}),
	)
	if errors.Is(err, errRetryableStatus) && resp != nil {
		return resp, nil
	}
	if err != nil {
		return nil, &UpstreamError{Service: c.service, Err: StripURL(err)}
	}
	return resp, nil
}

func (c *Client) send(ctx context.Context, call Call) (*Response, error) {
	u := c.baseURL + call.Path
	if len(call.Query) > 0 {
		u += "?" + call.Query.Encode()
	}

	var body io.Reader
	if call.Body != nil {
		body = bytes.NewReader(call.Body)
	}
	req, err := http.NewRequestWithContext(ctx, call.Method, u, body)
	if err != nil {
		return nil, retry.Unrecoverable(fmt.Errorf("failed to create request: %w", err))
	}
	for k, vs := range call.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if call.ContentType != "" {
		req.Header.Set("Content-Type", call.ContentType)
	}
	req.Header.Set("Accept", "application/json")
	if call.BasicAuth != nil {
		req.SetBasicAuth(call.BasicAuth[0], call.BasicAuth[1])
	}

	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	data, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	return &Response{StatusCode: res.StatusCode, Header: res.Header, Body: data}, nil
}

// queryOf converts a parameter map to url.Values.
func queryOf(params map[string]string) url.Values {
	q := make(url.Values, len(params))
	for k, v := range params {
		q.Set(k, v)
	}
	return q
}
