package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/artpar/agentresourcerest/internal/core/auth"
	"github.com/artpar/agentresourcerest/internal/core/crypto"
	"github.com/artpar/agentresourcerest/internal/shell/tools"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "AGENTRES"

// DefaultConfigFile is read from the working directory when -config is empty.
const DefaultConfigFile = "app_config.yaml"

// =============================================================================
// Config Types
// =============================================================================

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server" yaml:"server"`
	Log       LogConfig       `mapstructure:"log" yaml:"log"`
	Database  DatabaseConfig  `mapstructure:"database" yaml:"database"`
	Auth      auth.Config     `mapstructure:"auth" yaml:"auth"`
	Tools     []tools.Config  `mapstructure:"tools" yaml:"tools"`
	RunPod    RunPodConfig    `mapstructure:"runpod" yaml:"runpod"`
	Billing   BillingConfig   `mapstructure:"billing" yaml:"billing"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit" yaml:"rate_limit"`
	Secrets   SecretsConfig   `mapstructure:"secrets" yaml:"secrets"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string        `mapstructure:"host" yaml:"host"`
	Port            int           `mapstructure:"port" yaml:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	MaxBodyBytes    int64         `mapstructure:"max_body_bytes" yaml:"max_body_bytes"`

	// TrustProxyHeaders keys anonymous rate limits on forwarded client
	// addresses instead of the peer address.
	TrustProxyHeaders bool `mapstructure:"trust_proxy_headers" yaml:"trust_proxy_headers"`
}

// Address returns the server address in host:port format.
func (c ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`

	// Dir is created with mode 0755 at startup.
	Dir string `mapstructure:"dir" yaml:"dir"`

	// File inside Dir that receives a copy of stdout. Empty logs to stdout only.
	File string `mapstructure:"file" yaml:"file"`
}

// Path returns the log file path, or "" when file logging is off.
func (c LogConfig) Path() string {
	if c.File == "" {
		return ""
	}
	return filepath.Join(c.Dir, c.File)
}

// DatabaseConfig holds database configuration.
type DatabaseConfig struct {
	DSN string `mapstructure:"dsn" yaml:"dsn"`
}

// RunPodConfig configures pod discovery for the completions proxy.
type RunPodConfig struct {
	APIKey           string        `mapstructure:"api_key" yaml:"api_key"`
	APIURL           string        `mapstructure:"api_url" yaml:"api_url"`
	RefreshInterval  time.Duration `mapstructure:"refresh_interval" yaml:"refresh_interval"`
	ProxyURLTemplate string        `mapstructure:"proxy_url_template" yaml:"proxy_url_template"`
}

// BillingConfig holds usage reporting configuration.
type BillingConfig struct {
	// Enabled sends meter events to the gateway. When false they are only
	// acknowledged locally.
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	GatewayURL string `mapstructure:"gateway_url" yaml:"gateway_url"`
	ServiceKey string `mapstructure:"service_key" yaml:"service_key"`

	// ReportInterval is how often to batch and report usage events.
	ReportInterval time.Duration `mapstructure:"report_interval" yaml:"report_interval"`

	// BatchSize is the maximum number of events to report in a single batch.
	BatchSize int `mapstructure:"batch_size" yaml:"batch_size"`
}

// RateLimitConfig holds per-caller rate limits. Zero requests_per_second disables limiting.
type RateLimitConfig struct {
	RequestsPerSecond float64       `mapstructure:"requests_per_second" yaml:"requests_per_second"`
	Burst             int           `mapstructure:"burst" yaml:"burst"`
	IdleTTL           time.Duration `mapstructure:"idle_ttl" yaml:"idle_ttl"`
}

// SecretsConfig holds the key that opens sealed config values.
type SecretsConfig struct {
	MasterKey string `mapstructure:"master_key" yaml:"master_key"`
}

// =============================================================================
// Config Loading
// =============================================================================

// jwtEnvAliases maps auth keys to the bare JWT_* names used by existing deployments.
var jwtEnvAliases = map[string]string{
	"auth.enabled":              "JWT_ENABLED",
	"auth.algorithm":            "JWT_ALGORITHM",
	"auth.secret_key":           "JWT_SECRET_KEY",
	"auth.public_key_path":      "JWT_PUBLIC_KEY_PATH",
	"auth.jwks_url":             "JWT_JWKS_URL",
	"auth.required_claims":      "JWT_REQUIRED_CLAIMS",
	"auth.token_expiry_seconds": "JWT_TOKEN_EXPIRY_SECONDS",
	"auth.issuer":               "JWT_ISSUER",
	"auth.audience":             "JWT_AUDIENCE",
}

// LoadConfig loads configuration from file and environment, then opens sealed values.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigFile(DefaultConfigFile)
	}
	if err := v.ReadInConfig(); err != nil {
		var parseErr viper.ConfigParseError
		if errors.As(err, &parseErr) {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
		// A missing file leaves the defaults in place.
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, alias := range jwtEnvAliases {
		primary := EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, primary, alias); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", alias, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.Auth.RequiredClaims = auth.ParseClaimList(strings.Join(cfg.Auth.RequiredClaims, ","))

	if err := cfg.openSecrets(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8008)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "0s") // completions stream
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("server.max_body_bytes", 1<<20)
	v.SetDefault("server.trust_proxy_headers", false)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.dir", "/var/log/agentresourcerest")
	v.SetDefault("log.file", "agentresourcerest.log")

	v.SetDefault("database.dsn", "./data/agentresourcerest.db")

	jwt := auth.DefaultConfig()
	v.SetDefault("auth.enabled", jwt.Enabled)
	v.SetDefault("auth.algorithm", jwt.Algorithm)
	v.SetDefault("auth.secret_key", "")
	v.SetDefault("auth.public_key_path", "")
	v.SetDefault("auth.jwks_url", "")
	v.SetDefault("auth.required_claims", jwt.RequiredClaims)
	v.SetDefault("auth.token_expiry_seconds", jwt.TokenExpirySeconds)
	v.SetDefault("auth.issuer", "")
	v.SetDefault("auth.audience", "")
	v.SetDefault("auth.enforcement_mode", jwt.EnforcementMode)
	v.SetDefault("auth.skip_paths", jwt.SkipPaths)

	v.SetDefault("runpod.api_key", "")
	v.SetDefault("runpod.api_url", "https://api.runpod.io/graphql")
	v.SetDefault("runpod.refresh_interval", "30s")
	v.SetDefault("runpod.proxy_url_template", "https://{pod_id}-8000.proxy.runpod.net")

	v.SetDefault("billing.enabled", false)
	v.SetDefault("billing.gateway_url", "")
	v.SetDefault("billing.service_key", "")
	v.SetDefault("billing.report_interval", "60s")
	v.SetDefault("billing.batch_size", 100)

	v.SetDefault("rate_limit.requests_per_second", 0)
	v.SetDefault("rate_limit.burst", 0)
	v.SetDefault("rate_limit.idle_ttl", "10m")

	v.SetDefault("secrets.master_key", "")
}

// openSecrets decrypts every sealed credential in place.
func (c *Config) openSecrets() error {
	key := c.Secrets.MasterKey
	open := func(name string, value *string) error {
		plain, err := crypto.Open(*value, key)
		if err != nil {
			return fmt.Errorf("failed to open %s: %w", name, err)
		}
		*value = plain
		return nil
	}

	if err := open("auth.secret_key", &c.Auth.SecretKey); err != nil {
		return err
	}
	if err := open("runpod.api_key", &c.RunPod.APIKey); err != nil {
		return err
	}
	if err := open("billing.service_key", &c.Billing.ServiceKey); err != nil {
		return err
	}
	for i := range c.Tools {
		t := &c.Tools[i]
		if err := open("tools."+t.ToolID+".api_key", &t.APIKey); err != nil {
			return err
		}
		for k, val := range t.Settings {
			if err := open("tools."+t.ToolID+".settings."+k, &val); err != nil {
				return err
			}
			t.Settings[k] = val
		}
	}
	return nil
}

// =============================================================================
// Validation
// =============================================================================

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Host == "" {
		errs = append(errs, errors.New("server.host is required"))
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port must be between 1 and 65535 (got %d)", c.Server.Port))
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	switch strings.ToLower(c.Log.Format) {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("log.format must be json or text (got %q)", c.Log.Format))
	}
	if c.Database.DSN == "" {
		errs = append(errs, errors.New("database.dsn is required"))
	}
	if err := c.Auth.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("auth: %w", err))
	}
	if c.Billing.Enabled && c.Billing.GatewayURL == "" {
		errs = append(errs, errors.New("billing.gateway_url is required when billing is enabled"))
	}
	if c.RateLimit.RequestsPerSecond < 0 {
		errs = append(errs, errors.New("rate_limit.requests_per_second must not be negative"))
	}

	return errors.Join(errs...)
}

// =============================================================================
// Logger Setup
// =============================================================================

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("log.level must be debug, info, warn or error (got %q)", s)
	}
}

// SetupLogger creates a logger with the configured level and format. It
// writes to stdout, and also to the log file when one is configured. The
// returned closer releases the file.
func SetupLogger(cfg *Config, stdout io.Writer) (*slog.Logger, io.Closer, error) {
	level, err := parseLevel(cfg.Log.Level)
	if err != nil {
		return nil, nil, err
	}

	out := stdout
	var closer io.Closer = nopCloser{}

	if cfg.Log.Dir != "" {
		if err := ensureLogDir(cfg.Log.Dir); err != nil && cfg.Log.File != "" {
			return nil, nil, err
		}
	}
	if path := cfg.Log.Path(); path != "" {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open log file: %w", err)
		}
		out = io.MultiWriter(stdout, f)
		closer = f
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if strings.ToLower(cfg.Log.Format) == "text" {
		handler = slog.NewTextHandler(out, opts)
	} else {
		handler = slog.NewJSONHandler(out, opts)
	}

	return slog.New(handler), closer, nil
}

// ensureLogDir creates dir with mode 0755 when it is missing.
func ensureLogDir(dir string) error {
	if _, err := os.Stat(dir); err == nil {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	// MkdirAll is subject to the umask.
	if err := os.Chmod(dir, 0o755); err != nil {
		return fmt.Errorf("failed to set log directory mode: %w", err)
	}
	return nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// =============================================================================
// Config Dump
// =============================================================================

const redacted = "[redacted]"

// Redacted returns a copy of c with credentials replaced.
func (c Config) Redacted() Config {
	hide := func(s string) string {
		if s == "" {
			return ""
		}
		return redacted
	}

	out := c
	out.Auth.SecretKey = hide(c.Auth.SecretKey)
	out.RunPod.APIKey = hide(c.RunPod.APIKey)
	out.Billing.ServiceKey = hide(c.Billing.ServiceKey)
	out.Secrets.MasterKey = hide(c.Secrets.MasterKey)

	out.Tools = make([]tools.Config, len(c.Tools))
	for i, t := range c.Tools {
		t.APIKey = hide(t.APIKey)
		if t.Settings != nil {
			settings := make(map[string]string, len(t.Settings))
			for k, v := range t.Settings {
				if isSecretSetting(k) {
					v = hide(v)
				}
				settings[k] = v
			}
			t.Settings = settings
		}
		out.Tools[i] = t
	}
	return out
}

func isSecretSetting(key string) bool {
	k := strings.ToLower(key)
	for _, marker := range []string{"key", "secret", "token", "password"} {
		if strings.Contains(k, marker) {
			return true
		}
	}
	return false
}

// PrintConfig writes the redacted configuration as YAML.
func PrintConfig(w io.Writer, cfg *Config) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(cfg.Redacted()); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return enc.Close()
}
