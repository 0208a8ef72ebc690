package auth

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// Enforcement modes describe where the caller identity is taken from.
const (
	EnforcementHeader  = "header"
	EnforcementPayload = "payload"
	EnforcementHybrid  = "hybrid"
	EnforcementNone    = "none"
)

// DefaultSkipPaths are served without authentication.
var DefaultSkipPaths = []string{"/health", "/ready", "/metrics", "/docs", "/redoc", "/openapi.json"}

// Config holds JWT verification settings.
type Config struct {
	Enabled            bool     `mapstructure:"enabled" yaml:"enabled"`
	Algorithm          string   `mapstructure:"algorithm" yaml:"algorithm"`
	SecretKey          string   `mapstructure:"secret_key" yaml:"secret_key"`
	PublicKeyPath      string   `mapstructure:"public_key_path" yaml:"public_key_path"`
	JWKSURL            string   `mapstructure:"jwks_url" yaml:"jwks_url"`
	RequiredClaims     []string `mapstructure:"required_claims" yaml:"required_claims"`
	TokenExpirySeconds int      `mapstructure:"token_expiry_seconds" yaml:"token_expiry_seconds"`
	Issuer             string   `mapstructure:"issuer" yaml:"issuer"`
	Audience           string   `mapstructure:"audience" yaml:"audience"`
	EnforcementMode    string   `mapstructure:"enforcement_mode" yaml:"enforcement_mode"`
	SkipPaths          []string `mapstructure:"skip_paths" yaml:"skip_paths"`
}

// DefaultConfig returns the settings used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		Enabled:            false,
		Algorithm:          "RS256",
		RequiredClaims:     []string{"sub", "exp", "iat"},
		TokenExpirySeconds: 3600,
		EnforcementMode:    EnforcementHeader,
		SkipPaths:          slices.Clone(DefaultSkipPaths),
	}
}

// IsHMAC reports whether the configured algorithm uses a shared secret.
func (c Config) IsHMAC() bool {
	return strings.HasPrefix(strings.ToUpper(c.Algorithm), "HS")
}

// Skips reports whether path bypasses authentication.
func (c Config) Skips(path string) bool {
	return slices.Contains(c.SkipPaths, path)
}

// Validate checks the configuration for consistency.
func (c Config) Validate() error {
	var errs []error

	switch c.EnforcementMode {
	case EnforcementHeader, EnforcementPayload, EnforcementHybrid, EnforcementNone:
	default:
		errs = append(errs, fmt.Errorf("enforcement_mode must be one of header, payload, hybrid, none (got %q)", c.EnforcementMode))
	}

	if !c.Enabled {
		return errors.Join(errs...)
	}

	alg := strings.ToUpper(c.Algorithm)
	switch {
	case alg == "":
		errs = append(errs, errors.New("algorithm is required when JWT is enabled"))
	case c.IsHMAC():
		if c.SecretKey == "" {
			errs = append(errs, fmt.Errorf("secret_key is required for %s", alg))
		}
	default:
		if c.JWKSURL == "" && c.PublicKeyPath == "" {
			errs = append(errs, fmt.Errorf("jwks_url or public_key_path is required for %s", alg))
		}
	}

	if c.TokenExpirySeconds < 0 {
		errs = append(errs, errors.New("token_expiry_seconds must not be negative"))
	}

	return errors.Join(errs...)
}

// ParseClaimList splits a comma separated claim list.
func ParseClaimList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
