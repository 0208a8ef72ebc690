package auth

import "slices"

// Wildcard grants every permission.
const Wildcard = "*"

// =============================================================================
// Permission Checks
// =============================================================================

// HasPermission reports whether the user holds permission p.
// The wildcard permission grants everything.
func (u User) HasPermission(p string) bool {
	return slices.Contains(u.Permissions, Wildcard) || slices.Contains(u.Permissions, p)
}

// HasRole reports whether the user has role r.
func (u User) HasRole(r string) bool {
	return slices.Contains(u.Roles, r)
}

// HasAnyPermission reports whether the user holds at least one of ps.
func (u User) HasAnyPermission(ps ...string) bool {
	for _, p := range ps {
		if u.HasPermission(p) {
			return true
		}
	}
	return false
}

// HasAllPermissions reports whether the user holds every one of ps.
func (u User) HasAllPermissions(ps ...string) bool {
	for _, p := range ps {
		if !u.HasPermission(p) {
			return false
		}
	}
	return true
}

// IsAdmin reports whether the user can see data belonging to other users.
func (u User) IsAdmin() bool {
	return slices.Contains(u.Permissions, Wildcard) || u.HasRole("admin")
}

// CanViewInvocations checks whether the user may list invocations owned by ownerID.
// Admins see everything; everyone else sees only their own.
func CanViewInvocations(u User, ownerID string) bool {
	if u.UserID == "" {
		return false
	}
	return u.IsAdmin() || u.UserID == ownerID
}

// CanUseTool checks whether the user may execute the named tool.
// A user passes with the wildcard, "tools:*", "tools:<name>", or when the
// token carries no tool-scoped permissions at all.
func CanUseTool(u User, tool string) bool {
	if u.UserID == "" {
		return false
	}
	scoped := false
	for _, p := range u.Permissions {
		if len(p) > 6 && p[:6] == "tools:" {
			scoped = true
			break
		}
	}
	if !scoped {
		return true
	}
	return u.HasAnyPermission("tools:*", "tools:"+tool)
}
