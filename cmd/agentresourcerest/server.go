package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/artpar/agentresourcerest/internal/shell/api"
	"github.com/artpar/agentresourcerest/internal/shell/api/middleware"
	"github.com/artpar/agentresourcerest/internal/shell/billing"
	"github.com/artpar/agentresourcerest/internal/shell/cluster"
	"github.com/artpar/agentresourcerest/internal/shell/jwtauth"
	"github.com/artpar/agentresourcerest/internal/shell/metrics"
	"github.com/artpar/agentresourcerest/internal/shell/proxy"
	"github.com/artpar/agentresourcerest/internal/shell/store"
	"github.com/artpar/agentresourcerest/internal/shell/tools"
)

// =============================================================================
// Exit Codes
// =============================================================================

const (
	ExitSuccess       = 0
	ExitConfigError   = 1
	ExitDatabaseError = 2
	ExitServerError   = 3
	ExitLogError      = 4
)

// =============================================================================
// Server
// =============================================================================

// Server represents the agentresourcerest application server.
type Server struct {
	config          *Config
	httpServer      *http.Server
	store           store.Store
	pods            *cluster.Manager
	billingReporter *billing.Reporter
	logger          *slog.Logger
}

// NewServer creates a new server with the given config.
func NewServer(cfg *Config, logger *slog.Logger) (*Server, error) {
	if err := ensureDataDir(cfg.Database.DSN); err != nil {
		return nil, &ServerError{Op: "NewServer", Err: err, ExitCode: ExitDatabaseError}
	}

	// Connect to database
	s, err := store.NewSQLiteStore(cfg.Database.DSN)
	if err != nil {
		return nil, &ServerError{
			Op:       "NewServer",
			Err:      err,
			ExitCode: ExitDatabaseError,
		}
	}

	m := metrics.New()
	upstream := &http.Client{Timeout: 30 * time.Second}

	// JWT verification
	authCfg := middleware.AuthConfig{JWT: cfg.Auth, Logger: logger}
	if cfg.Auth.Enabled {
		validator, err := jwtauth.NewValidator(cfg.Auth, upstream, logger)
		if err != nil {
			s.Close()
			return nil, &ServerError{
				Op:       "NewServer",
				Err:      err,
				ExitCode: ExitConfigError,
			}
		}
		authCfg.Validator = validator
		logger.Info("JWT authentication enabled",
			"algorithm", cfg.Auth.Algorithm,
			"enforcement_mode", cfg.Auth.EnforcementMode,
		)
	} else {
		logger.Warn("JWT authentication disabled; requests run as the development user")
	}

	registry, err := tools.NewRegistry(cfg.Tools, s, logger)
	if err != nil {
		s.Close()
		return nil, &ServerError{
			Op:       "NewServer",
			Err:      err,
			ExitCode: ExitConfigError,
		}
	}

	// Completions proxy over the RunPod pod list
	pods := cluster.NewManager(cluster.Config{
		APIKey:          cfg.RunPod.APIKey,
		APIURL:          cfg.RunPod.APIURL,
		RefreshInterval: cfg.RunPod.RefreshInterval,
	}, upstream, m, logger)
	completions := proxy.NewServer(proxy.Config{URLTemplate: cfg.RunPod.ProxyURLTemplate}, pods, s, m, logger)

	// Usage reporting
	var billingClient billing.Client
	if cfg.Billing.Enabled {
		bc := billing.DefaultConfig()
		bc.BaseURL = cfg.Billing.GatewayURL
		bc.ServiceKey = cfg.Billing.ServiceKey
		billingClient = billing.NewGatewayClient(bc, logger)
		logger.Info("billing enabled", "gateway_url", cfg.Billing.GatewayURL)
	} else {
		billingClient = billing.NewNoOpClient(logger)
		logger.Info("billing disabled")
	}
	billingReporter := billing.NewReporter(billing.ReporterConfig{
		Store:     s,
		Client:    billingClient,
		Interval:  cfg.Billing.ReportInterval,
		BatchSize: cfg.Billing.BatchSize,
		Logger:    logger,
	})

	handler := api.NewHandler(api.Config{
		Store:        s,
		Registry:     registry,
		Proxy:        completions,
		Metrics:      m,
		Auth:         authCfg,
		Limiter:      middleware.NewKeyedLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst, cfg.RateLimit.IdleTTL),
		MaxBodyBytes: cfg.Server.MaxBodyBytes,
		Version:      Version,
		Logger:       logger,

		TrustProxyHeaders: cfg.Server.TrustProxyHeaders,
	})

	// Create HTTP server
	httpServer := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      handler.Routes(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	return &Server{
		config:          cfg,
		httpServer:      httpServer,
		store:           s,
		pods:            pods,
		billingReporter: billingReporter,
		logger:          logger,
	}, nil
}

// ensureDataDir creates the parent directory of a file database.
func ensureDataDir(dsn string) error {
	if strings.Contains(dsn, ":memory:") {
		return nil
	}
	path := strings.TrimPrefix(dsn, "file:")
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create database directory: %w", err)
	}
	return nil
}

// Start starts the server and blocks until shutdown.
func (s *Server) Start(ctx context.Context) error {
	// Setup signal handling
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	s.pods.Start(ctx)
	go s.billingReporter.Start(ctx)

	// Start HTTP server in goroutine
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server",
			"address", s.config.Server.Address())
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Wait for shutdown signal or error
	select {
	case sig := <-sigCh:
		s.logger.Info("received shutdown signal", "signal", sig)
	case err := <-errCh:
		s.Shutdown(context.Background())
		return &ServerError{
			Op:       "Start",
			Err:      err,
			ExitCode: ExitServerError,
		}
	case <-ctx.Done():
		s.logger.Info("context cancelled")
	}

	return s.Shutdown(context.Background())
}

// Shutdown gracefully shuts down the server. In-flight streams get up to
// shutdown_timeout to finish; pending usage events are flushed afterwards.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("initiating graceful shutdown")

	// Create shutdown context with timeout
	shutdownCtx, cancel := context.WithTimeout(ctx, s.config.Server.ShutdownTimeout)
	defer cancel()

	// Shutdown HTTP server
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("HTTP server shutdown error", "error", err)
	}

	s.pods.Stop()
	s.billingReporter.Stop()

	// Close database
	if err := s.store.Close(); err != nil {
		s.logger.Error("database close error", "error", err)
	}

	s.logger.Info("shutdown complete")
	return nil
}

// =============================================================================
// Server Error
// =============================================================================

// ServerError represents an error during server operation.
type ServerError struct {
	Op       string
	Err      error
	ExitCode int
}

func (e *ServerError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *ServerError) Unwrap() error {
	return e.Err
}
