// Package cluster tracks the RunPod pods that serve completions.
package cluster

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/avast/retry-go/v4"

	"github.com/artpar/agentresourcerest/internal/core/proxy"
	"github.com/artpar/agentresourcerest/internal/shell/tools"
)

// podsQuery lists the account's pods.
const podsQuery = `query { myself { pods { id name desiredStatus runtime { uptimeInSeconds } } } }`

// DefaultAPIURL is the RunPod GraphQL endpoint.
const DefaultAPIURL = "https://api.runpod.io/graphql"

// Config configures the manager.
type Config struct {
	// APIKey authenticates against RunPod. Empty disables polling.
	APIKey string

	// APIURL is the GraphQL endpoint.
	// Default: DefaultAPIURL.
	APIURL string

	// RefreshInterval is the time between pod list refreshes.
	// Default: 30 seconds.
	RefreshInterval time.Duration

	// RetryAttempts bounds the attempts of one refresh.
	// Default: 3.
	RetryAttempts uint

	// RetryDelay is the base backoff between attempts.
	// Default: 1 second.
	RetryDelay time.Duration
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		APIURL:          DefaultAPIURL,
		RefreshInterval: 30 * time.Second,
		RetryAttempts:   3,
		RetryDelay:      time.Second,
	}
}

// PodGauge receives the running pod count after every refresh.
// metrics.Metrics implements this interface.
type PodGauge interface {
	SetRunningPods(n int)
}

// Manager polls RunPod and caches the pods that can take traffic.
type Manager struct {
	config     Config
	httpClient *http.Client
	gauge      PodGauge
	logger     *slog.Logger

	mu        sync.RWMutex
	pods      []proxy.Pod
	refreshed time.Time

	// Lifecycle management
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewManager creates a new pod manager.
func NewManager(config Config, httpClient *http.Client, gauge PodGauge, logger *slog.Logger) *Manager {
	defaults := DefaultConfig()
	if config.APIURL == "" {
		config.APIURL = defaults.APIURL
	}
	if config.RefreshInterval == 0 {
		config.RefreshInterval = defaults.RefreshInterval
	}
	if config.RetryAttempts == 0 {
		config.RetryAttempts = defaults.RetryAttempts
	}
	if config.RetryDelay == 0 {
		config.RetryDelay = defaults.RetryDelay
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Manager{
		config:     config,
		httpClient: httpClient,
		gauge:      gauge,
		logger:     logger.With("component", "cluster_manager"),
	}
}

// Start begins polling in the background. Without an API key the manager
// stays empty and only logs a warning.
func (m *Manager) Start(ctx context.Context) {
	if m.config.APIKey == "" {
		m.logger.Warn("runpod api key not configured; completions will report no servers")
		return
	}

	m.ctx, m.cancel = context.WithCancel(ctx)

	m.wg.Add(1)
	go m.run()

	m.logger.Info("cluster manager started", "refresh_interval", m.config.RefreshInterval)
}

// Stop stops polling and waits for an in-flight refresh to finish.
func (m *Manager) Stop() {
	if m.cancel != nil {
		m.cancel()
	}
	m.wg.Wait()
	m.logger.Info("cluster manager stopped")
}

// RunningPods returns a copy of the cached running pods.
func (m *Manager) RunningPods() []proxy.Pod {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]proxy.Pod, len(m.pods))
	copy(out, m.pods)
	return out
}

// LastRefresh returns when the cache was last replaced.
func (m *Manager) LastRefresh() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.refreshed
}

func (m *Manager) run() {
	defer m.wg.Done()

	// Run immediately on start
	m.refreshLogged()

	ticker := time.NewTicker(m.config.RefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			m.refreshLogged()
		}
	}
}

func (m *Manager) refreshLogged() {
	ctx, cancel := context.WithTimeout(m.ctx, m.config.RefreshInterval)
	defer cancel()

	if err := m.Refresh(ctx); err != nil && !errors.Is(err, context.Canceled) {
		// The previous pod list stays in place.
		m.logger.Error("failed to refresh pods", "error", err)
	}
}

// Refresh fetches the pod list once and replaces the cache on success.
func (m *Manager) Refresh(ctx context.Context) error {
	var pods []proxy.Pod
	err := retry.Do(
		func() error {
			var err error
			pods, err = m.fetch(ctx)
			return err
		},
		retry.Context(ctx),
		retry.Attempts(m.config.RetryAttempts),
		retry.Delay(m.config.RetryDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return err
	}

	running := proxy.RunningPods(pods)

	m.mu.Lock()
	m.pods = running
	m.refreshed = time.Now()
	m.mu.Unlock()

	if m.gauge != nil {
		m.gauge.SetRunningPods(len(running))
	}
	m.logger.Debug("pods refreshed", "total", len(pods), "running", len(running))
	return nil
}

type graphQLResponse struct {
	Data struct {
		Myself struct {
			Pods []struct {
				ID            string `json:"id"`
				Name          string `json:"name"`
				DesiredStatus string `json:"desiredStatus"`
				Runtime       *struct {
					UptimeInSeconds int64 `json:"uptimeInSeconds"`
				} `json:"runtime"`
			} `json:"pods"`
		} `json:"myself"`
	} `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

func (m *Manager) fetch(ctx context.Context) ([]proxy.Pod, error) {
	body, err := json.Marshal(map[string]string{"query": podsQuery})
	if err != nil {
		return nil, retry.Unrecoverable(err)
	}

	u, err := url.Parse(m.config.APIURL)
	if err != nil {
		return nil, retry.Unrecoverable(fmt.Errorf("invalid runpod api url: %w", err))
	}
	q := u.Query()
	q.Set("api_key", m.config.APIKey)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(body))
	if err != nil {
		return nil, retry.Unrecoverable(fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to query runpod: %w", tools.StripURL(err))
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read runpod response: %w", err)
	}
	if resp.StatusCode >= 400 {
		err := fmt.Errorf("runpod returned error %d: %s", resp.StatusCode, string(data))
		if resp.StatusCode < 500 {
			return nil, retry.Unrecoverable(err)
		}
		return nil, err
	}

	var gql graphQLResponse
	if err := json.Unmarshal(data, &gql); err != nil {
		return nil, fmt.Errorf("failed to decode runpod response: %w", err)
	}
	if len(gql.Errors) > 0 {
		return nil, retry.Unrecoverable(fmt.Errorf("runpod query failed: %s", gql.Errors[0].Message))
	}

	pods := make([]proxy.Pod, 0, len(gql.Data.Myself.Pods))
	for _, p := range gql.Data.Myself.Pods {
		pod := proxy.Pod{ID: p.ID, Name: p.Name, DesiredStatus: p.DesiredStatus}
		if p.Runtime != nil {
			pod.UptimeSeconds = p.Runtime.UptimeInSeconds
		}
		pods = append(pods, pod)
	}
	return pods, nil
}
