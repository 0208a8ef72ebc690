package tools

import (
	"context"
	"fmt"

	"github.com/artpar/agentresourcerest/internal/core/tool"
)

// Open-Meteo endpoints.
const (
	WeatherForecastURL = "https://api.open-meteo.com/v1"
	WeatherArchiveURL  = "https://archive-api.open-meteo.com/v1"
)

// Weather fetches forecasts and historical observations from Open-Meteo.
type Weather struct {
	forecast *Client
	archive  *Client
}

// NewWeather creates the weather_tool handler. Open-Meteo needs no key; the
// base_url and archive_url settings override the endpoints.
func NewWeather(cfg Config, opts ...ClientOption) *Weather {
	archiveURL := WeatherArchiveURL
	if u := cfg.Setting("archive_url"); u != "" {
		archiveURL = u
	}
	return &Weather{
		forecast: NewClient("Open-Meteo", cfg.BaseURL(WeatherForecastURL), opts...),
		archive:  NewClient("Open-Meteo archive", archiveURL, opts...),
	}
}

// Definition registers the tool.
func (t *Weather) Definition() tool.Definition {
	return tool.Definition{
		Name:        tool.Weather,
		Description: "Current conditions and daily forecast for a coordinate, or a single archived day.",
		Inputs:      []any{tool.WeatherInput{}},
		Outputs:     []any{tool.WeatherOutput{}},
		Examples: []tool.Example{
			{Tool: tool.Weather, ToolInput: map[string]any{"latitude": 40.7128, "longitude": -74.0060}},
			{Tool: tool.Weather, ToolInput: map[string]any{"latitude": 39.9526, "longitude": -75.1652, "include_previous": true}},
			{Tool: tool.Weather, ToolInput: map[string]any{
				"latitude":     40.7128,
				"longitude":    -74.0060,
				"use_archive":  true,
				"archive_date": "2024-01-15",
			}},
		},
		Decode: tool.DecoderFor[tool.WeatherInput](),
		Handler: func(ctx context.Context, input any) (any, error) {
			return t.Run(ctx, *input.(*tool.WeatherInput))
		},
	}
}

// Run queries the forecast or archive endpoint for in.
func (t *Weather) Run(ctx context.Context, in tool.WeatherInput) (tool.WeatherOutput, error) {
	client, path := t.forecast, "/forecast"
	if in.Archive() {
		client, path = t.archive, "/era5"
	}

	resp, err := client.Do(ctx, Call{Path: path, Query: queryOf(tool.WeatherQuery(in))})
	if err != nil {
		return tool.WeatherOutput{}, err
	}
	if resp.StatusCode != 200 {
		return tool.WeatherOutput{}, &UpstreamError{
			Service:    client.Service(),
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("Weather API error: %d", resp.StatusCode),
		}
	}

	var data tool.WeatherData
	if err := resp.DecodeJSON(&data); err != nil {
		return tool.WeatherOutput{}, fmt.Errorf("failed to decode weather response: %w", err)
	}
	return tool.WeatherOutput{Tool: tool.Weather, WeatherData: data}, nil
}
