// Package proxy forwards OpenAI-style completion requests to the running
// model pods, streaming responses back unchanged.
package proxy

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/artpar/agentresourcerest/internal/core/auth"
	"github.com/artpar/agentresourcerest/internal/core/domain"
	"github.com/artpar/agentresourcerest/internal/core/proxy"
	"github.com/artpar/agentresourcerest/internal/shell/metrics"
)

// CompletionsPath is the upstream and downstream completions route.
const CompletionsPath = "/v1/completions"

// Config holds proxy configuration.
type Config struct {
	// URLTemplate addresses a pod; {pod_id} is replaced with the pod id.
	URLTemplate string

	// Transport is used for upstream requests. Nil means a clone of
	// http.DefaultTransport.
	Transport http.RoundTripper
}

// DefaultConfig returns sensible default configuration.
func DefaultConfig() Config {
	return Config{URLTemplate: proxy.DefaultURLTemplate}
}

// PodSource lists the pods that can take traffic. cluster.Manager implements it.
type PodSource interface {
	RunningPods() []proxy.Pod
}

// Observer counts proxied requests by outcome. metrics.Metrics implements it.
type Observer interface {
	ObserveProxy(stream bool, outcome string)
}

// MeterRecorder persists usage events. store.Store implements it.
type MeterRecorder interface {
	CreateMeterEvent(ctx context.Context, event *domain.MeterEvent) error
}

// Server handles the completions and pod listing endpoints.
type Server struct {
	config   Config
	pods     PodSource
	meter    MeterRecorder
	observer Observer
	logger   *slog.Logger
}

// NewServer creates a new completions proxy. meter and observer may be nil.
func NewServer(cfg Config, pods PodSource, meter MeterRecorder, observer Observer, logger *slog.Logger) *Server {
	if cfg.URLTemplate == "" {
		cfg.URLTemplate = proxy.DefaultURLTemplate
	}
	if cfg.Transport == nil {
		cfg.Transport = http.DefaultTransport.(*http.Transport).Clone()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		config:   cfg,
		pods:     pods,
		meter:    meter,
		observer: observer,
		logger:   logger.With("component", "llm_proxy"),
	}
}

// ServeHTTP implements http.Handler for POST /v1/completions.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.serveError(w, false, metrics.OutcomeInvalid, proxy.ErrorResponse{
				Object:  "error",
				Message: fmt.Sprintf("Request body exceeds %d bytes", tooLarge.Limit),
				Type:    proxy.ErrorInvalidRequest,
				Code:    http.StatusRequestEntityTooLarge,
			})
			return
		}
		s.serveError(w, false, metrics.OutcomeInvalid, proxy.NewInvalidJSONError(err))
		return
	}

	req, err := proxy.ParseCompletion(body)
	if err != nil {
		s.serveError(w, false, metrics.OutcomeInvalid, asErrorResponse(err))
		return
	}

	// 1. Pick the target pod
	pod, err := proxy.SelectTarget(s.pods.RunningPods())
	if err != nil {
		s.serveError(w, req.Stream, metrics.OutcomeNoServers, asErrorResponse(err))
		return
	}

	upstream, err := proxy.TargetURL(s.config.URLTemplate, pod.ID, CompletionsPath)
	if err != nil {
		s.logger.Error("invalid pod url", "pod_id", pod.ID, "error", err)
		s.serveError(w, req.Stream, metrics.OutcomeUnreachable, proxy.NewUnreachableError(err))
		return
	}

	s.logger.Info("proxying completion", "pod_id", pod.ID, "model", req.Model, "stream", req.Stream)

	// 2. Proxy the request
	outcome := metrics.OutcomeOK
	reverseProxy := &httputil.ReverseProxy{
		Transport:     s.config.Transport,
		FlushInterval: -1,
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.Out.URL = upstream
			pr.Out.Host = upstream.Host
			pr.Out.Header = proxy.FilterHeaders(pr.In.Header)
		},
		ModifyResponse: func(resp *http.Response) error {
			if resp.StatusCode == http.StatusOK {
				return nil
			}
			outcome = metrics.OutcomeUpstream
			return rewriteUpstreamError(resp, req.Stream)
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			outcome = metrics.OutcomeUnreachable
			if errors.Is(err, context.Canceled) {
				s.logger.Debug("client went away", "pod_id", pod.ID)
				return
			}
			s.logger.Error("proxy error", "pod_id", pod.ID, "error", err)
			writeJSON(w, http.StatusBadGateway, proxy.NewUnreachableError(err))
		},
	}

	out := r.Clone(r.Context())
	out.Body = io.NopCloser(bytes.NewReader(body))
	out.ContentLength = int64(len(body))
	reverseProxy.ServeHTTP(w, out)

	s.observe(req.Stream, outcome)
	if outcome == metrics.OutcomeOK {
		s.recordUsage(r.Context(), pod, req)
	}
}

// rewriteUpstreamError replaces a non-200 upstream body. Streaming clients
// get a plain text line in the event stream; others get a JSON error with
// the upstream status.
func rewriteUpstreamError(resp *http.Response, stream bool) error {
	text, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		text = []byte(err.Error())
	}
	msg := strings.TrimSpace(string(text))

	var replacement []byte
	if stream {
		replacement = []byte(proxy.StreamErrorText(resp.StatusCode, msg))
		resp.StatusCode = http.StatusOK
		resp.Header.Set("Content-Type", "text/event-stream")
	} else {
		replacement, err = json.Marshal(proxy.NewEndpointError(resp.StatusCode, msg))
		if err != nil {
			return err
		}
		resp.Header.Set("Content-Type", "application/json")
	}

	resp.Header.Del("Content-Encoding")
	resp.Header.Set("Content-Length", strconv.Itoa(len(replacement)))
	resp.ContentLength = int64(len(replacement))
	resp.Body = io.NopCloser(bytes.NewReader(replacement))
	return nil
}

func (s *Server) recordUsage(ctx context.Context, pod proxy.Pod, req proxy.CompletionRequest) {
	if s.meter == nil {
		return
	}
	user, ok := auth.UserFromContext(ctx)
	if !ok {
		return
	}

	event := domain.NewMeterEvent(uuid.NewString(), user.UserID, domain.EventCompletionProxied, pod.ID, domain.ResourcePod).
		WithMetadata("model", req.Model).
		WithMetadata("stream", strconv.FormatBool(req.Stream))

	// The response is already written; use a context the client cannot cancel.
	if err := s.meter.CreateMeterEvent(context.WithoutCancel(ctx), &event); err != nil {
		s.logger.Error("failed to record completion usage", "pod_id", pod.ID, "error", err)
	}
}

func (s *Server) observe(stream bool, outcome string) {
	if s.observer != nil {
		s.observer.ObserveProxy(stream, outcome)
	}
}

func (s *Server) serveError(w http.ResponseWriter, stream bool, outcome string, err proxy.ErrorResponse) {
	s.logger.Warn("completion rejected",
		"type", err.Type,
		"status", err.StatusCode(),
		"message", err.Message,
	)
	s.observe(stream, outcome)
	writeJSON(w, err.StatusCode(), err)
}

func asErrorResponse(err error) proxy.ErrorResponse {
	var resp proxy.ErrorResponse
	if errors.As(err, &resp) {
		return resp
	}
	return proxy.NewUnreachableError(err)
}

// =============================================================================
// Pod Listing
// =============================================================================

// PodsResponse is the body of GET /v1/pods.
type PodsResponse struct {
	Pods  []proxy.Pod `json:"pods"`
	Count int         `json:"count"`
}

// ServePods handles GET /v1/pods.
func (s *Server) ServePods(w http.ResponseWriter, r *http.Request) {
	pods := s.pods.RunningPods()
	writeJSON(w, http.StatusOK, PodsResponse{Pods: pods, Count: len(pods)})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
