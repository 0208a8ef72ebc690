package tools

import (
	"fmt"
	"log/slog"

	"github.com/artpar/agentresourcerest/internal/core/tool"
)

// definer is implemented by every tool handler in this package.
type definer interface {
	Definition() tool.Definition
}

// NewRegistry builds the registry of every tool, configured from cfgs.
// Tools without a config entry are still registered and fail at call time
// with a "not configured" message when they need credentials.
func NewRegistry(cfgs []Config, recorder MeterRecorder, logger *slog.Logger, opts ...ClientOption) (*tool.Registry, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "tools")

	find := func(n tool.Name) Config { return Find(cfgs, n.String()) }

	handlers := []definer{
		NewWeather(find(tool.Weather), opts...),
		NewPlaceSearch(find(tool.PlaceSearch), opts...),
		NewAddressValidation(find(tool.GoogleAddressValidation), logger, opts...),
		NewWebSearch(find(tool.GoogleWebSearch), opts...),
		NewSendEmail(find(tool.SendEmail), logger, opts...),
		NewLoopLookup(find(tool.LoopLookup), opts...),
		NewLoopMessage(find(tool.LoopMessage), opts...),
		NewUsageLogging(recorder),
	}

	reg := tool.NewRegistry()
	for _, h := range handlers {
		if err := reg.Register(h.Definition()); err != nil {
			return nil, fmt.Errorf("failed to register tool: %w", err)
		}
	}

	for _, c := range cfgs {
		if !tool.Name(c.ToolID).Valid() {
			logger.Warn("ignoring config for unknown tool", "tool_id", c.ToolID)
		}
	}
	logger.Info("tools registered", "count", len(reg.Names()))
	return reg, nil
}
