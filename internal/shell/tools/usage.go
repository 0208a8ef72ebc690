package tools

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/artpar/agentresourcerest/internal/core/auth"
	"github.com/artpar/agentresourcerest/internal/core/domain"
	"github.com/artpar/agentresourcerest/internal/core/tool"
)

// MeterRecorder persists meter events. store.Store implements this interface.
type MeterRecorder interface {
	CreateMeterEvent(ctx context.Context, event *domain.MeterEvent) error
}

// UsageLogging records agent activity that happens outside tool calls, such
// as code executed inside a model server.
type UsageLogging struct {
	recorder MeterRecorder
}

// NewUsageLogging creates the usage_logging_tool handler.
func NewUsageLogging(recorder MeterRecorder) *UsageLogging {
	return &UsageLogging{recorder: recorder}
}

// Definition registers the tool.
func (t *UsageLogging) Definition() tool.Definition {
	return tool.Definition{
		Name:        tool.UsageLogging,
		Description: "Record billable agent activity for the calling user.",
		Inputs:      []any{tool.UsageInput{}},
		Outputs:     []any{tool.UsageOutput{}},
		Examples: []tool.Example{
			{Tool: tool.UsageLogging, ToolInput: map[string]any{
				"event_type":  "code_execution",
				"quantity":    1,
				"resource_id": "pod-abc123",
				"metadata":    map[string]string{"language": "python"},
			}},
		},
		Decode: tool.DecoderFor[tool.UsageInput](),
		Handler: func(ctx context.Context, input any) (any, error) {
			return t.Run(ctx, *input.(*tool.UsageInput))
		},
	}
}

// Run stores one meter event attributed to the context user.
func (t *UsageLogging) Run(ctx context.Context, in tool.UsageInput) (tool.UsageOutput, error) {
	if t.recorder == nil {
		return tool.UsageOutput{}, errors.New("usage recording is not available")
	}
	user, ok := auth.UserFromContext(ctx)
	if !ok {
		return tool.UsageOutput{}, errors.New("usage logging requires an authenticated user")
	}

	event := domain.NewMeterEvent(uuid.NewString(), user.UserID, domain.EventAgentUsage, in.ResourceID, domain.ResourceAgentUsage).
		WithQuantity(in.Quantity)
	for k, v := range in.Metadata {
		event = event.WithMetadata(k, v)
	}
	event = event.WithMetadata("event_type", in.EventType)

	if err := t.recorder.CreateMeterEvent(ctx, &event); err != nil {
		return tool.UsageOutput{}, fmt.Errorf("failed to record usage: %w", err)
	}
	return tool.UsageOutput{Tool: tool.UsageLogging, EventID: event.ID, Recorded: true}, nil
}
