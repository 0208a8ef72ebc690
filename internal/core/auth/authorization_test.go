package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// =============================================================================
// Permission Tests
// =============================================================================

func TestHasPermission(t *testing.T) {
	tests := []struct {
		name        string
		permissions []string
		check       string
		want        bool
	}{
		{"exact match", []string{"read", "write"}, "write", true},
		{"no match", []string{"read"}, "write", false},
		{"wildcard", []string{"*"}, "write", true},
		{"empty", nil, "read", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := User{UserID: "u", Permissions: tt.permissions}
			assert.Equal(t, tt.want, u.HasPermission(tt.check))
		})
	}
}

func TestHasRole(t *testing.T) {
	u := User{UserID: "u", Roles: []string{"agent"}}

	assert.True(t, u.HasRole("agent"))
	assert.False(t, u.HasRole("admin"))
}

func TestHasAnyPermission(t *testing.T) {
	u := User{UserID: "u", Permissions: []string{"read"}}

	assert.True(t, u.HasAnyPermission("write", "read"))
	assert.False(t, u.HasAnyPermission("write", "delete"))
	assert.False(t, u.HasAnyPermission())
}

func TestHasAllPermissions(t *testing.T) {
	u := User{UserID: "u", Permissions: []string{"read", "write"}}

	assert.True(t, u.HasAllPermissions("read", "write"))
	assert.False(t, u.HasAllPermissions("read", "delete"))
	assert.True(t, u.HasAllPermissions())
}

// =============================================================================
// Invocation Visibility Tests
// =============================================================================

func TestCanViewInvocations_Owner(t *testing.T) {
	u := User{UserID: "user-1"}
	assert.True(t, CanViewInvocations(u, "user-1"))
	assert.False(t, CanViewInvocations(u, "user-2"))
}

func TestCanViewInvocations_Admin(t *testing.T) {
	assert.True(t, CanViewInvocations(User{UserID: "a", Roles: []string{"admin"}}, "user-2"))
	assert.True(t, CanViewInvocations(User{UserID: "a", Permissions: []string{"*"}}, "user-2"))
}

func TestCanViewInvocations_Anonymous(t *testing.T) {
	assert.False(t, CanViewInvocations(User{}, ""))
}

// =============================================================================
// Tool Access Tests
// =============================================================================

func TestCanUseTool(t *testing.T) {
	tests := []struct {
		name        string
		permissions []string
		tool        string
		want        bool
	}{
		{"no tool scopes", []string{"read"}, "weather_tool", true},
		{"scoped allowed", []string{"tools:weather_tool"}, "weather_tool", true},
		{"scoped denied", []string{"tools:weather_tool"}, "send_email_tool", false},
		{"tools wildcard", []string{"tools:*"}, "send_email_tool", true},
		{"global wildcard", []string{"*", "tools:weather_tool"}, "send_email_tool", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := User{UserID: "u", Permissions: tt.permissions}
			assert.Equal(t, tt.want, CanUseTool(u, tt.tool))
		})
	}
}

func TestCanUseTool_Anonymous(t *testing.T) {
	assert.False(t, CanUseTool(User{}, "weather_tool"))
}
