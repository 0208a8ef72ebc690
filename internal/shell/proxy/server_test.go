package proxy

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/artpar/agentresourcerest/internal/core/auth"
	"github.com/artpar/agentresourcerest/internal/core/domain"
	"github.com/artpar/agentresourcerest/internal/core/proxy"
	"github.com/artpar/agentresourcerest/internal/shell/metrics"
)

// =============================================================================
// Test Helpers
// =============================================================================

type staticPods []proxy.Pod

func (p staticPods) RunningPods() []proxy.Pod { return p }

type recordingMeter struct {
	mu     sync.Mutex
	events []domain.MeterEvent
}

func (m *recordingMeter) CreateMeterEvent(_ context.Context, e *domain.MeterEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, *e)
	return nil
}

type outcomes struct {
	mu   sync.Mutex
	seen []string
}

func (o *outcomes) ObserveProxy(stream bool, outcome string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.seen = append(o.seen, outcome)
}

var running = staticPods{{ID: "pod-a", Name: "llm", DesiredStatus: proxy.StatusRunning}}

func newTestServer(t *testing.T, upstream http.HandlerFunc, pods PodSource) (*Server, *recordingMeter, *outcomes) {
	t.Helper()
	srv := httptest.NewServer(upstream)
	t.Cleanup(srv.Close)

	meter := &recordingMeter{}
	obs := &outcomes{}
	s := NewServer(Config{URLTemplate: srv.URL + "/pods/{pod_id}"}, pods, meter, obs, nil)
	return s, meter, obs
}

func completionRequest(body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, CompletionsPath, strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer client-token")
	req.Header.Set("OpenAI-Organization", "org-1")
	req.Header.Set("X-Internal", "must-not-leak")
	return req.WithContext(auth.WithUser(req.Context(), auth.User{UserID: "user-1"}))
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) proxy.ErrorResponse {
	t.Helper()
	var out proxy.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

// =============================================================================
// Request Validation
// =============================================================================

func TestServer_InvalidJSON(t *testing.T) {
	s, _, obs := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("upstream must not be called")
	}, running)

	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, completionRequest(`{not json`))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeError(t, rec)
	assert.Equal(t, "error", resp.Object)
	assert.Equal(t, proxy.ErrorInvalidRequest, resp.Type)
	assert.True(t, strings.HasPrefix(resp.Message, "Invalid JSON: "))
	assert.Equal(t, []string{metrics.OutcomeInvalid}, obs.seen)
}

func TestServer_NoServers(t *testing.T) {
	for name, pods := range map[string]staticPods{
		"empty": nil,
		"no id": {{ID: "", DesiredStatus: proxy.StatusRunning}},
	} {
		t.Run(name, func(t *testing.T) {
			s, meter, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
				t.Error("upstream must not be called")
			}, pods)

			rec := httptest.NewRecorder()
			s.ServeHTTP(rec, completionRequest(`{"model":"m","prompt":"hi"}`))

			assert.Equal(t, http.StatusNotFound, rec.Code)
			resp := decodeError(t, rec)
			assert.Equal(t, proxy.ErrorNoServers, resp.Type)
			assert.Equal(t, "No servers available", resp.Message)
			assert.Equal(t, 404, resp.Code)
			assert.Empty(t, meter.events)
		})
	}
}

// =============================================================================
// Forwarding
// =============================================================================

func TestServer_ForwardsToFirstPod(t *testing.T) {
	s, meter, obs := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/pods/pod-a/v1/completions", r.URL.Path)
		assert.Equal(t, "Bearer client-token", r.Header.Get("Authorization"))
		assert.Equal(t, "org-1", r.Header.Get("OpenAI-Organization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Empty(t, r.Header.Get("X-Internal"))

		body, _ := io.ReadAll(r.Body)
		assert.JSONEq(t, `{"model":"m","prompt":"hi"}`, string(body))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"cmpl-1","choices":[{"text":"hello"}]}`))
	}, append(staticPods{}, running[0], proxy.Pod{ID: "pod-b", DesiredStatus: proxy.StatusRunning}))

	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, completionRequest(`{"model":"m","prompt":"hi"}`))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"id":"cmpl-1","choices":[{"text":"hello"}]}`, rec.Body.String())
	assert.Equal(t, []string{metrics.OutcomeOK}, obs.seen)

	require.Len(t, meter.events, 1)
	e := meter.events[0]
	assert.Equal(t, domain.EventCompletionProxied, e.EventType)
	assert.Equal(t, "user-1", e.UserID)
	assert.Equal(t, "pod-a", e.ResourceID)
	assert.Equal(t, domain.ResourcePod, e.ResourceType)
	assert.Equal(t, "m", e.Metadata["model"])
	assert.Equal(t, "false", e.Metadata["stream"])
}

func TestServer_Streaming(t *testing.T) {
	s, _, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		for _, chunk := range []string{"data: a\n\n", "data: b\n\n", "data: [DONE]\n\n"} {
			_, _ = w.Write([]byte(chunk))
			flusher.Flush()
		}
	}, running)

	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, completionRequest(`{"model":"m","prompt":"hi","stream":true}`))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Equal(t, "data: a\n\ndata: b\n\ndata: [DONE]\n\n", rec.Body.String())
	assert.True(t, rec.Flushed)
}

func TestServer_UpstreamErrorNonStream(t *testing.T) {
	s, meter, obs := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("model loading"))
	}, running)

	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, completionRequest(`{"model":"m"}`))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	resp := decodeError(t, rec)
	assert.Equal(t, proxy.ErrorEndpoint, resp.Type)
	assert.Equal(t, 503, resp.Code)
	assert.Equal(t, "Error from endpoint: 503 model loading", resp.Message)
	assert.Equal(t, []string{metrics.OutcomeUpstream}, obs.seen)
	assert.Empty(t, meter.events)
}

func TestServer_UpstreamErrorStream(t *testing.T) {
	s, _, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte("bad prompt"))
	}, running)

	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, completionRequest(`{"model":"m","stream":true}`))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Equal(t, "Error from endpoint: 400 bad prompt", rec.Body.String())
}

func TestServer_Unreachable(t *testing.T) {
	upstream := httptest.NewServer(http.NotFoundHandler())
	upstream.Close()

	obs := &outcomes{}
	s := NewServer(Config{URLTemplate: upstream.URL}, running, nil, obs, nil)

	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, completionRequest(`{"model":"m"}`))

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	resp := decodeError(t, rec)
	assert.Equal(t, proxy.ErrorEndpoint, resp.Type)
	assert.Contains(t, resp.Message, "Error contacting endpoint")
	assert.Equal(t, []string{metrics.OutcomeUnreachable}, obs.seen)
}

func TestServer_BodyTooLarge(t *testing.T) {
	s, _, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {}, running)

	req := completionRequest(`{"model":"m","prompt":"` + strings.Repeat("x", 100) + `"}`)
	rec := httptest.NewRecorder()
	req.Body = http.MaxBytesReader(rec, req.Body, 10)
	s.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

// =============================================================================
// Pod Listing
// =============================================================================

func TestServer_ServePods(t *testing.T) {
	s := NewServer(DefaultConfig(), running, nil, nil, nil)

	rec := httptest.NewRecorder()
	s.ServePods(rec, httptest.NewRequest(http.MethodGet, "/v1/pods", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp PodsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Count)
	assert.Equal(t, "pod-a", resp.Pods[0].ID)
}
