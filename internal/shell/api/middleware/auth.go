// Package middleware provides HTTP middleware for the agent resource API.
package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/artpar/agentresourcerest/internal/core/auth"
)

// =============================================================================
// Token Validator Interface
// =============================================================================

// TokenValidator verifies a bearer token and returns the user it identifies.
// jwtauth.Validator implements this interface.
type TokenValidator interface {
	Validate(ctx context.Context, token string) (auth.User, error)
}

// =============================================================================
// Auth Configuration
// =============================================================================

// AuthConfig holds configuration for the auth middleware.
type AuthConfig struct {
	// JWT is the verification config. When disabled every request runs as auth.DevUser.
	JWT auth.Config

	// Validator verifies tokens. Required when JWT.Enabled is true.
	Validator TokenValidator

	// Logger for auth middleware logging.
	Logger *slog.Logger
}

// =============================================================================
// Auth Middleware
// =============================================================================

// AuthMiddleware resolves the caller from the Authorization header and stores
// it in the request context. It never rejects a request; RequireUser does.
type AuthMiddleware struct {
	config AuthConfig
}

// NewAuthMiddleware creates a new auth middleware with the given config.
func NewAuthMiddleware(cfg AuthConfig) *AuthMiddleware {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &AuthMiddleware{config: cfg}
}

// Handler returns the middleware handler function.
func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.config.JWT.Skips(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		if !m.config.JWT.Enabled || m.config.JWT.EnforcementMode == auth.EnforcementNone {
			next.ServeHTTP(w, r.WithContext(auth.WithUser(r.Context(), auth.DevUser())))
			return
		}

		token := auth.FromRequest(r)
		if token == "" {
			next.ServeHTTP(w, r)
			return
		}

		if m.config.Validator == nil {
			m.config.Logger.Error("JWT enabled but no validator configured")
			ctx := auth.WithError(r.Context(), auth.ErrConfig("Authentication is misconfigured", nil))
			next.ServeHTTP(w, r.WithContext(ctx))
			return
		}

		user, err := m.config.Validator.Validate(r.Context(), token)
		if err != nil {
			var aerr *auth.Error
			if !errors.As(err, &aerr) {
				aerr = auth.ErrInvalidToken("JWT validation failed", err)
			}
			m.config.Logger.Warn("token rejected",
				"path", r.URL.Path,
				"error_type", aerr.Kind,
				"error", aerr.Error(),
			)
			next.ServeHTTP(w, r.WithContext(auth.WithError(r.Context(), aerr)))
			return
		}

		next.ServeHTTP(w, r.WithContext(auth.WithUser(r.Context(), user)))
	})
}

// =============================================================================
// Require User Middleware
// =============================================================================

// RequireUser rejects requests that carry no authenticated user.
// Must be used AFTER AuthMiddleware.
func RequireUser(logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := auth.UserFromContext(r.Context()); ok {
				next.ServeHTTP(w, r)
				return
			}

			aerr := auth.ErrorFromContext(r.Context())
			if aerr == nil {
				aerr = auth.ErrMissingToken()
			}
			logger.Debug("unauthenticated request to protected endpoint",
				"remote_addr", r.RemoteAddr,
				"path", r.URL.Path,
				"method", r.Method,
				"error_type", aerr.Kind,
			)
			WriteAuthError(w, aerr)
		})
	}
}

// WriteAuthError writes an authentication failure. 401 responses carry a
// Bearer challenge.
func WriteAuthError(w http.ResponseWriter, err *auth.Error) {
	status := err.Status()
	if status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", "Bearer")
	}
	writeJSON(w, status, err.Body(time.Now()))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
