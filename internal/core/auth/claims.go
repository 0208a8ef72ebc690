package auth

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// UserFromClaims maps a decoded token payload onto a User.
func UserFromClaims(claims map[string]any) (User, error) {
	userID := firstString(claims, "sub", "user_id", "uid")
	if userID == "" {
		return User{}, ErrInvalidClaims("Token does not identify a user (sub, user_id or uid)")
	}

	user := User{
		UserID:      userID,
		Email:       firstString(claims, "email"),
		Username:    firstString(claims, "preferred_username", "username"),
		Permissions: firstList(claims, "permissions", "perms", "roles"),
		Roles:       firstList(claims, "roles"),
		Claims:      claims,
	}

	if len(user.Roles) == 0 {
		if realm, ok := claims["realm_access"].(map[string]any); ok {
			user.Roles = toStrings(realm["roles"])
		}
	}
	if user.Permissions == nil {
		user.Permissions = []string{}
	}
	if user.Roles == nil {
		user.Roles = []string{}
	}

	if t, ok := NumericTime(claims["exp"]); ok {
		user.TokenExpiresAt = &t
	}
	if t, ok := NumericTime(claims["iat"]); ok {
		user.TokenIssuedAt = &t
	}

	return user, nil
}

// MissingClaims returns the names in required that are absent from claims.
func MissingClaims(claims map[string]any, required []string) []string {
	var missing []string
	for _, name := range required {
		if v, ok := claims[name]; !ok || v == nil {
			missing = append(missing, name)
		}
	}
	return missing
}

// CheckRequiredClaims fails with an invalid-claims error when any required
// claim is absent.
func CheckRequiredClaims(claims map[string]any, required []string) error {
	missing := MissingClaims(claims, required)
	if len(missing) == 0 {
		return nil
	}
	return ErrInvalidClaims(fmt.Sprintf("Missing required claims: %s", strings.Join(missing, ", ")))
}

// NumericTime converts a JWT NumericDate value to a time.
func NumericTime(v any) (time.Time, bool) {
	var secs float64
	switch n := v.(type) {
	case float64:
		secs = n
	case int64:
		secs = float64(n)
	case int:
		secs = float64(n)
	default:
		return time.Time{}, false
	}
	whole, frac := math.Modf(secs)
	return time.Unix(int64(whole), int64(frac*1e9)).UTC(), true
}

func firstString(claims map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := claims[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

func firstList(claims map[string]any, keys ...string) []string {
	for _, k := range keys {
		if list := toStrings(claims[k]); len(list) > 0 {
			return list
		}
	}
	return nil
}

// toStrings accepts a list of strings or a single space/comma separated string.
func toStrings(v any) []string {
	switch val := v.(type) {
	case []string:
		return val
	case []any:
		out := make([]string, 0, len(val))
		for _, item := range val {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	case string:
		return strings.FieldsFunc(val, func(r rune) bool { return r == ',' || r == ' ' })
	}
	return nil
}
