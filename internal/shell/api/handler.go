// Package api wires the HTTP surface of the agent resource service.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/artpar/agentresourcerest/internal/core/auth"
	"github.com/artpar/agentresourcerest/internal/core/domain"
	"github.com/artpar/agentresourcerest/internal/core/tool"
	"github.com/artpar/agentresourcerest/internal/shell/api/middleware"
	"github.com/artpar/agentresourcerest/internal/shell/api/openapi"
	"github.com/artpar/agentresourcerest/internal/shell/metrics"
	"github.com/artpar/agentresourcerest/internal/shell/store"
)

// =============================================================================
// Configuration
// =============================================================================

// DefaultToolTimeout applies when a tool request carries no timeout.
const DefaultToolTimeout = 30 * time.Second

// DefaultMaxBodyBytes caps request bodies.
const DefaultMaxBodyBytes = 1 << 20

// CompletionProxy serves the LLM endpoints. proxy.Server implements it.
type CompletionProxy interface {
	ServeHTTP(w http.ResponseWriter, r *http.Request)
	ServePods(w http.ResponseWriter, r *http.Request)
}

// Config holds the dependencies of the API.
type Config struct {
	Store    store.Store
	Registry *tool.Registry
	Proxy    CompletionProxy  // nil disables /v1 routes
	Metrics  *metrics.Metrics // nil disables /metrics
	Auth     middleware.AuthConfig
	Limiter  *middleware.KeyedLimiter

	ToolTimeout  time.Duration
	MaxBodyBytes int64
	Version      string
	Logger       *slog.Logger

	// TrustProxyHeaders takes the client address from X-Forwarded-For and
	// X-Real-IP. Enable only behind a proxy that sets them.
	TrustProxyHeaders bool
}

// =============================================================================
// Handler
// =============================================================================

// Handler provides HTTP handlers for the API.
type Handler struct {
	config  Config
	openapi *openapi.Generator
	logger  *slog.Logger
}

// NewHandler creates a new API handler.
func NewHandler(cfg Config) *Handler {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Registry == nil {
		cfg.Registry = tool.NewRegistry()
	}
	if cfg.ToolTimeout <= 0 {
		cfg.ToolTimeout = DefaultToolTimeout
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if cfg.Auth.Logger == nil {
		cfg.Auth.Logger = cfg.Logger
	}

	h := &Handler{
		config: cfg,
		logger: cfg.Logger.With("component", "api"),
	}
	h.openapi = h.buildOpenAPI()
	return h
}

// Routes returns the router with all routes configured.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()

	var observer middleware.HTTPObserver
	if h.config.Metrics != nil {
		observer = h.config.Metrics
	}

	// Middleware
	r.Use(chimw.RequestID)
	if h.config.TrustProxyHeaders {
		r.Use(chimw.RealIP)
	}
	r.Use(requestIDHeader)
	r.Use(chimw.Recoverer)
	r.Use(middleware.NewAuthMiddleware(h.config.Auth).Handler)
	r.Use(middleware.RequestLogger(h.config.Logger, observer))
	r.Use(chimw.RequestSize(h.config.MaxBodyBytes))

	// Public endpoints
	r.Get("/health", h.handleHealth)
	r.Get("/ready", h.handleReady)
	r.Get("/openapi.json", h.openapi.Handler())
	if h.config.Metrics != nil {
		r.Handle("/metrics", h.config.Metrics.Handler())
	}

	// Authenticated endpoints
	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireUser(h.config.Logger))
		r.Use(middleware.RateLimit(h.config.Limiter))

		r.Post("/tool", h.handleTool)
		r.Get("/tools", h.handleListTools)
		r.Get("/tools/invocations", h.handleListInvocations)

		if h.config.Proxy != nil {
			r.Post("/v1/completions", h.config.Proxy.ServeHTTP)
			r.Get("/v1/pods", h.config.Proxy.ServePods)
		}
	})

	return r
}

// requestIDHeader copies the request ID to the response header.
func requestIDHeader(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if reqID := chimw.GetReqID(r.Context()); reqID != "" {
			w.Header().Set("X-Request-ID", reqID)
		}
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) buildOpenAPI() *openapi.Generator {
	g := openapi.NewGenerator(openapi.WithVersion(h.version()))
	g.RegisterTools(h.config.Registry.Definitions()...)

	g.RegisterRoute(openapi.Route{Method: http.MethodGet, Path: "/health", Summary: "Liveness check", Tag: "Health", Response: HealthResponse{}})
	g.RegisterRoute(openapi.Route{Method: http.MethodGet, Path: "/ready", Summary: "Readiness check", Tag: "Health", Response: ReadyResponse{}})
	g.RegisterRoute(openapi.Route{Method: http.MethodGet, Path: "/tools", Summary: "List tools", Tag: "Tools", Secured: true, Response: ToolsResponse{}})
	g.RegisterRoute(openapi.Route{Method: http.MethodGet, Path: "/tools/invocations", Summary: "List tool invocations", Tag: "Tools", Secured: true, Response: InvocationsResponse{}})
	if h.config.Proxy != nil {
		g.RegisterRoute(openapi.Route{Method: http.MethodPost, Path: "/v1/completions", Summary: "Proxy a completion to a model pod", Tag: "LLM", Secured: true})
		g.RegisterRoute(openapi.Route{Method: http.MethodGet, Path: "/v1/pods", Summary: "List running model pods", Tag: "LLM", Secured: true})
	}
	return g
}

func (h *Handler) version() string {
	if h.config.Version == "" {
		return "dev"
	}
	return h.config.Version
}

// =============================================================================
// Health Handlers
// =============================================================================

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

func (h *Handler) handleReady(w http.ResponseWriter, r *http.Request) {
	checks := map[string]string{}

	if h.config.Store != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.config.Store.Ping(ctx); err != nil {
			h.logger.Error("readiness check failed", "check", "database", "error", err)
			checks["database"] = "failed"
			h.writeJSON(w, http.StatusServiceUnavailable, ReadyResponse{
				Status: "not_ready",
				Checks: checks,
			})
			return
		}
		checks["database"] = "ok"
	}
	checks["tools"] = strconv.Itoa(len(h.config.Registry.Names()))

	h.writeJSON(w, http.StatusOK, ReadyResponse{
		Status: "ready",
		Checks: checks,
	})
}

// =============================================================================
// Tool Handlers
// =============================================================================

func (h *Handler) handleTool(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	body, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.writeError(w, http.StatusRequestEntityTooLarge, "request_too_large",
				fmt.Sprintf("Request body exceeds %d bytes", tooLarge.Limit), nil)
			return
		}
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Failed to read request body", nil)
		return
	}

	req, err := tool.ParseRequest(body)
	if err != nil {
		h.writeValidationError(w, err)
		return
	}

	def, ok := h.config.Registry.Get(req.Tool)
	if !ok {
		h.writeError(w, http.StatusNotFound, "tool_not_found", fmt.Sprintf("Tool '%s' not found", req.Tool), nil)
		return
	}

	user, _ := auth.UserFromContext(r.Context())
	if !auth.CanUseTool(user, string(req.Tool)) {
		h.writeError(w, http.StatusForbidden, "forbidden", fmt.Sprintf("Not permitted to use %s", req.Tool), nil)
		return
	}

	input, err := def.Decode(req.ToolInput)
	if err != nil {
		h.writeValidationError(w, err)
		return
	}

	requestID := req.RequestID
	if requestID == "" {
		requestID = chimw.GetReqID(r.Context())
	}

	ctx, cancel := context.WithTimeout(r.Context(), req.Deadline(h.config.ToolTimeout))
	defer cancel()

	resp, status := h.runTool(ctx, def, input)
	resp = resp.WithDuration(time.Since(start))

	h.logger.Info("tool executed",
		"tool", req.Tool,
		"request_id", requestID,
		"user", user.UserID,
		"success", resp.Success,
		"duration_ms", resp.DurationMS,
	)
	h.recordInvocation(r.Context(), user, requestID, req.Tool, resp)
	h.writeJSON(w, status, resp)
}

// runTool executes the handler. Handler errors become failed responses with
// status 200; a panic becomes a failed response with status 500.
func (h *Handler) runTool(ctx context.Context, def tool.Definition, input any) (resp tool.Response, status int) {
	defer func() {
		if rec := recover(); rec != nil {
			h.logger.Error("tool panicked",
				"tool", def.Name,
				"panic", rec,
				"stack", string(debug.Stack()),
			)
			resp = tool.Failure(fmt.Sprintf("Internal error while running %s", def.Name), 0)
			status = http.StatusInternalServerError
		}
	}()

	out, err := def.Handler(ctx, input)
	if err != nil {
		return tool.Failure(err.Error(), 0), http.StatusOK
	}
	return tool.Success(out, 0), http.StatusOK
}

// recordInvocation writes the audit row and its meter event in one
// transaction. Failures are logged; the caller already has its result.
func (h *Handler) recordInvocation(ctx context.Context, user auth.User, requestID string, name tool.Name, resp tool.Response) {
	if h.config.Metrics != nil {
		h.config.Metrics.ObserveTool(string(name), resp.Success, time.Duration(resp.DurationMS)*time.Millisecond)
	}
	if h.config.Store == nil {
		return
	}

	inv := domain.NewToolInvocation(uuid.NewString(), requestID, user.UserID, string(name), resp.Success, resp.ErrorMessage, resp.DurationMS)
	event := inv.MeterEvent(uuid.NewString())

	// The response is not written yet but the client may already be gone.
	ctx = context.WithoutCancel(ctx)
	err := h.config.Store.WithTx(ctx, func(s store.Store) error {
		if err := s.RecordInvocation(ctx, &inv); err != nil {
			return err
		}
		return s.CreateMeterEvent(ctx, &event)
	})
	if err != nil {
		h.logger.Error("failed to record tool invocation",
			"tool", name,
			"request_id", requestID,
			"error", err,
		)
	}
}

func (h *Handler) handleListTools(w http.ResponseWriter, r *http.Request) {
	defs := h.config.Registry.Definitions()
	tools := make([]ToolInfo, 0, len(defs))
	for _, def := range defs {
		examples := def.Examples
		if examples == nil {
			examples = []tool.Example{}
		}
		tools = append(tools, ToolInfo{
			Name:        def.Name,
			Description: def.Description,
			Examples:    examples,
		})
	}
	h.writeJSON(w, http.StatusOK, ToolsResponse{Tools: tools, Count: len(tools)})
}

func (h *Handler) handleListInvocations(w http.ResponseWriter, r *http.Request) {
	if h.config.Store == nil {
		h.writeError(w, http.StatusServiceUnavailable, "unavailable", "Invocation history is not configured", nil)
		return
	}

	opts, err := parseListOptions(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_parameter", err.Error(), nil)
		return
	}

	user, _ := auth.UserFromContext(r.Context())
	owner := r.URL.Query().Get("user_id")
	switch {
	case owner != "":
		if !auth.CanViewInvocations(user, owner) {
			h.writeError(w, http.StatusForbidden, "forbidden", "Not permitted to view other users' invocations", nil)
			return
		}
	case user.IsAdmin():
		owner = store.AllUsers
	default:
		owner = user.UserID
	}

	invocations, err := h.config.Store.ListInvocations(r.Context(), owner, opts)
	if err != nil {
		h.logger.Error("failed to list invocations", "error", err)
		h.writeError(w, http.StatusInternalServerError, "internal_error", "Failed to list invocations", nil)
		return
	}
	total, err := h.config.Store.CountInvocations(r.Context(), owner)
	if err != nil {
		h.logger.Error("failed to count invocations", "error", err)
		h.writeError(w, http.StatusInternalServerError, "internal_error", "Failed to count invocations", nil)
		return
	}

	h.writeJSON(w, http.StatusOK, InvocationsResponse{
		Invocations: invocations,
		Total:       total,
		Limit:       opts.Limit,
		Offset:      opts.Offset,
	})
}

// parseListOptions reads limit and offset. Values outside the allowed range
// are rejected rather than clamped.
func parseListOptions(r *http.Request) (store.ListOptions, error) {
	opts := store.DefaultListOptions()
	q := r.URL.Query()

	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > store.MaxListLimit {
			return opts, fmt.Errorf("limit must be between 1 and %d", store.MaxListLimit)
		}
		opts.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return opts, errors.New("offset must be a non-negative integer")
		}
		opts.Offset = n
	}
	return opts, nil
}

// =============================================================================
// Helpers
// =============================================================================

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to encode JSON", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, code, message string, details any) {
	h.writeJSON(w, status, ErrorResponse{
		Error:   code,
		Message: message,
		Details: details,
	})
}

func (h *Handler) writeValidationError(w http.ResponseWriter, err error) {
	var verrs *tool.ValidationErrors
	if errors.As(err, &verrs) {
		h.writeError(w, http.StatusUnprocessableEntity, "validation_error", err.Error(), []tool.ValidationError(*verrs))
		return
	}
	h.writeError(w, http.StatusUnprocessableEntity, "validation_error", err.Error(), nil)
}
