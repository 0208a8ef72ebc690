// Package billing reports usage events to the billing gateway.
package billing

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/avast/retry-go/v4"

	"github.com/artpar/agentresourcerest/internal/core/domain"
)

// =============================================================================
// Client Interface
// =============================================================================

// Client defines the interface for reporting usage events.
type Client interface {
	// MeterUsage reports a single usage event.
	MeterUsage(ctx context.Context, event domain.MeterEvent) error

	// MeterUsageBatch reports multiple usage events at once.
	MeterUsageBatch(ctx context.Context, events []domain.MeterEvent) error
}

// =============================================================================
// Gateway Client Implementation
// =============================================================================

// MeterPath is the gateway's metering endpoint.
const MeterPath = "/api/v1/meter"

// Config holds configuration for the gateway client.
type Config struct {
	BaseURL       string
	ServiceKey    string
	Timeout       time.Duration
	RetryAttempts uint
	RetryDelay    time.Duration
}

// DefaultConfig returns default gateway client configuration.
func DefaultConfig() Config {
	return Config{
		BaseURL:       "http://localhost:8080",
		Timeout:       30 * time.Second,
		RetryAttempts: 3,
		RetryDelay:    time.Second,
	}
}

// GatewayClient implements Client for the billing gateway API.
type GatewayClient struct {
	baseURL    string
	serviceKey string
	attempts   uint
	delay      time.Duration
	httpClient *http.Client
	logger     *slog.Logger
}

// NewGatewayClient creates a new billing gateway client.
func NewGatewayClient(cfg Config, logger *slog.Logger) *GatewayClient {
	defaults := DefaultConfig()
	if cfg.Timeout == 0 {
		cfg.Timeout = defaults.Timeout
	}
	if cfg.RetryAttempts == 0 {
		cfg.RetryAttempts = defaults.RetryAttempts
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = defaults.RetryDelay
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &GatewayClient{
		baseURL:    cfg.BaseURL,
		serviceKey: cfg.ServiceKey,
		attempts:   cfg.RetryAttempts,
		delay:      cfg.RetryDelay,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		logger: logger.With("component", "billing_client"),
	}
}

// meterRequest represents the request body for metering usage.
type meterRequest struct {
	Events []meterEventPayload `json:"events"`
}

// meterEventPayload represents a single event in the meter request.
type meterEventPayload struct {
	EventID      string            `json:"event_id"`
	UserID       string            `json:"user_id"`
	EventType    string            `json:"event_type"`
	ResourceID   string            `json:"resource_id"`
	ResourceType string            `json:"resource_type"`
	Quantity     int64             `json:"quantity"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	Timestamp    string            `json:"timestamp"`
}

// MeterUsage reports a single usage event.
func (c *GatewayClient) MeterUsage(ctx context.Context, event domain.MeterEvent) error {
	return c.MeterUsageBatch(ctx, []domain.MeterEvent{event})
}

// MeterUsageBatch reports multiple usage events. Server errors and network
// failures are retried; 4xx responses are not.
func (c *GatewayClient) MeterUsageBatch(ctx context.Context, events []domain.MeterEvent) error {
	if len(events) == 0 {
		return nil
	}

	payload := meterRequest{
		Events: make([]meterEventPayload, len(events)),
	}
	for i, event := range events {
		payload.Events[i] = meterEventPayload{
			EventID:      event.ID,
			UserID:       event.UserID,
			EventType:    string(event.EventType),
			ResourceID:   event.ResourceID,
			ResourceType: event.ResourceType,
			Quantity:     event.Quantity,
			Metadata:     event.Metadata,
			Timestamp:    event.Timestamp.UTC().Format(time.RFC3339),
		}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal meter request: %w", err)
	}

	return retry.Do(
		func() error { return c.post(ctx, body) },
		retry.Context(ctx),
		retry.Attempts(c.attempts),
		retry.Delay(c.delay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			c.logger.Warn("meter request failed, retrying", "attempt", n+1, "error", err)
		}),
	)
}

func (c *GatewayClient) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+MeterPath, bytes.NewReader(body))
	if err != nil {
		return retry.Unrecoverable(fmt.Errorf("failed to create request: %w", err))
	}

	req.Header.Set("Content-Type", "application/json")
	if c.serviceKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.serviceKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send meter request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		err := fmt.Errorf("billing gateway returned error %d: %s", resp.StatusCode, string(respBody))
		if resp.StatusCode < 500 {
			return retry.Unrecoverable(err)
		}
		return err
	}

	return nil
}

// =============================================================================
// No-Op Client (for development/testing)
// =============================================================================

// NoOpClient is a billing client that only logs (billing disabled).
type NoOpClient struct {
	logger *slog.Logger
}

// NewNoOpClient creates a no-op billing client.
func NewNoOpClient(logger *slog.Logger) *NoOpClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &NoOpClient{logger: logger.With("component", "billing_client")}
}

// MeterUsage does nothing.
func (c *NoOpClient) MeterUsage(ctx context.Context, event domain.MeterEvent) error {
	return c.MeterUsageBatch(ctx, []domain.MeterEvent{event})
}

// MeterUsageBatch logs the batch and reports success.
func (c *NoOpClient) MeterUsageBatch(ctx context.Context, events []domain.MeterEvent) error {
	c.logger.Debug("billing disabled, dropping usage events", "count", len(events))
	return nil
}
