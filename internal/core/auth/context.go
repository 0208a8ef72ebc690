// Package auth provides the authenticated user model, claim mapping and
// authentication error types. This is part of the Functional Core - nothing
// here performs I/O; token signature checks live in internal/shell/jwtauth.
package auth

import (
	"context"
	"net/http"
	"strings"
	"time"
)

// =============================================================================
// Context Key
// =============================================================================

type contextKey string

const (
	userContextKey  contextKey = "auth_user"
	errorContextKey contextKey = "auth_error"
)

// =============================================================================
// Types
// =============================================================================

// User is the caller identity derived from a validated JWT.
type User struct {
	// UserID comes from sub, user_id or uid (first non-empty wins).
	UserID string `json:"user_id"`

	Email    string `json:"email,omitempty"`
	Username string `json:"username,omitempty"`

	// Permissions granted to the caller. "*" grants everything.
	Permissions []string `json:"permissions"`

	Roles []string `json:"roles"`

	// Claims holds the full decoded token payload.
	Claims map[string]any `json:"-"`

	TokenExpiresAt *time.Time `json:"token_expires_at,omitempty"`
	TokenIssuedAt  *time.Time `json:"token_issued_at,omitempty"`
}

// DevUser returns the identity used when JWT authentication is disabled.
func DevUser() User {
	return User{
		UserID:      "dev_user",
		Email:       "dev@example.com",
		Username:    "dev_user",
		Permissions: []string{"*"},
		Roles:       []string{"admin"},
		Claims:      map[string]any{},
	}
}

// =============================================================================
// Bearer Extraction
// =============================================================================

// HeaderGetter is an interface for getting header values.
// This allows testing without requiring an http.Request.
type HeaderGetter interface {
	Get(key string) string
}

// BearerToken returns the raw token from an Authorization header value,
// stripping the "Bearer " scheme if present.
func BearerToken(headers HeaderGetter) string {
	raw := strings.TrimSpace(headers.Get("Authorization"))
	if raw == "" {
		return ""
	}
	return StripBearer(raw)
}

// StripBearer removes a case-insensitive "Bearer " prefix.
func StripBearer(token string) string {
	token = strings.TrimSpace(token)
	if len(token) >= 7 && strings.EqualFold(token[:7], "bearer ") {
		return strings.TrimSpace(token[7:])
	}
	return token
}

// FromRequest returns the bearer token carried by r.
func FromRequest(r *http.Request) string {
	return BearerToken(r.Header)
}

// =============================================================================
// Context Storage
// =============================================================================

// WithUser stores the authenticated user in the request context.
func WithUser(ctx context.Context, user User) context.Context {
	return context.WithValue(ctx, userContextKey, user)
}

// UserFromContext retrieves the authenticated user from the request context.
func UserFromContext(ctx context.Context) (User, bool) {
	user, ok := ctx.Value(userContextKey).(User)
	return user, ok
}

// WithError records why authentication failed, so a later guard can report it.
func WithError(ctx context.Context, err *Error) context.Context {
	return context.WithValue(ctx, errorContextKey, err)
}

// ErrorFromContext returns the recorded authentication failure, if any.
func ErrorFromContext(ctx context.Context) *Error {
	if err, ok := ctx.Value(errorContextKey).(*Error); ok {
		return err
	}
	return nil
}

// =============================================================================
// Helper Types for Testing
// =============================================================================

// MapHeaderGetter wraps a map to implement HeaderGetter interface.
type MapHeaderGetter map[string]string

func (m MapHeaderGetter) Get(key string) string {
	return m[key]
}
