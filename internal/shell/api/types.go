package api

import (
	"github.com/artpar/agentresourcerest/internal/core/domain"
	"github.com/artpar/agentresourcerest/internal/core/tool"
)

// =============================================================================
// Response Types
// =============================================================================

// ErrorResponse is the body of every non-tool error.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Details any    `json:"details,omitempty"`
}

// HealthResponse is the response for health check.
type HealthResponse struct {
	Status string `json:"status"`
}

// ReadyResponse is the response for readiness check.
type ReadyResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// ToolInfo describes one registered tool.
type ToolInfo struct {
	Name        tool.Name      `json:"name"`
	Description string         `json:"description"`
	Examples    []tool.Example `json:"examples"`
}

// ToolsResponse is the response for GET /tools.
type ToolsResponse struct {
	Tools []ToolInfo `json:"tools"`
	Count int        `json:"count"`
}

// InvocationsResponse is the response for GET /tools/invocations.
type InvocationsResponse struct {
	Invocations []domain.ToolInvocation `json:"invocations"`
	Total       int                     `json:"total"`
	Limit       int                     `json:"limit"`
	Offset      int                     `json:"offset"`
}
