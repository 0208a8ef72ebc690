package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/artpar/agentresourcerest/internal/core/auth"
	"github.com/artpar/agentresourcerest/internal/core/crypto"
	"github.com/artpar/agentresourcerest/internal/shell/tools"
)

// =============================================================================
// Config Loading Tests
// =============================================================================

func TestLoadConfig_DefaultValues(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 8008, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0:8008", cfg.Server.Address())
	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
	assert.Zero(t, cfg.Server.WriteTimeout)
	assert.Equal(t, 30*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, int64(1<<20), cfg.Server.MaxBodyBytes)
	assert.Equal(t, "./data/agentresourcerest.db", cfg.Database.DSN)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "/var/log/agentresourcerest", cfg.Log.Dir)
	assert.Equal(t, "/var/log/agentresourcerest/agentresourcerest.log", cfg.Log.Path())

	assert.False(t, cfg.Auth.Enabled)
	assert.Equal(t, "RS256", cfg.Auth.Algorithm)
	assert.Equal(t, []string{"sub", "exp", "iat"}, cfg.Auth.RequiredClaims)
	assert.Equal(t, auth.EnforcementHeader, cfg.Auth.EnforcementMode)
	assert.Contains(t, cfg.Auth.SkipPaths, "/health")

	assert.Equal(t, "https://api.runpod.io/graphql", cfg.RunPod.APIURL)
	assert.Equal(t, 30*time.Second, cfg.RunPod.RefreshInterval)
	assert.Equal(t, "https://{pod_id}-8000.proxy.runpod.net", cfg.RunPod.ProxyURLTemplate)

	assert.False(t, cfg.Billing.Enabled)
	assert.Equal(t, 60*time.Second, cfg.Billing.ReportInterval)
	assert.Equal(t, 100, cfg.Billing.BatchSize)

	assert.Zero(t, cfg.RateLimit.RequestsPerSecond)
	assert.Empty(t, cfg.Tools)
	assert.NoError(t, cfg.Validate())
}

func TestLoadConfig_FromFile(t *testing.T) {
	clearEnv(t)

	configContent := `
server:
  host: "127.0.0.1"
  port: 9000
  read_timeout: 60s
  shutdown_timeout: 15s

database:
  dsn: "/tmp/test.db"

log:
  level: "debug"
  format: "text"
  file: ""

tools:
  - tool_id: weather_tool
    api_key: weather-key
  - tool_id: send_email_tool
    api_key: mailgun-key
    settings:
      domain: mg.example.com
      from_email: bot@example.com

rate_limit:
  requests_per_second: 5
  burst: 10
`
	tmpFile := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(tmpFile, []byte(configContent), 0644))

	cfg, err := LoadConfig(tmpFile)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, 60*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 15*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, "/tmp/test.db", cfg.Database.DSN)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.Empty(t, cfg.Log.Path())
	assert.Equal(t, 5.0, cfg.RateLimit.RequestsPerSecond)
	assert.Equal(t, 10, cfg.RateLimit.Burst)

	require.Len(t, cfg.Tools, 2)
	email := tools.Find(cfg.Tools, "send_email_tool")
	assert.Equal(t, "mailgun-key", email.APIKey)
	assert.Equal(t, "mg.example.com", email.Setting("domain"))
	assert.Equal(t, "bot@example.com", email.Setting("from_email"))
	assert.Equal(t, "weather-key", tools.Find(cfg.Tools, "weather_tool").APIKey)
}

func TestLoadConfig_EnvironmentOverride(t *testing.T) {
	clearEnv(t)

	t.Setenv("AGENTRES_SERVER_HOST", "192.168.1.1")
	t.Setenv("AGENTRES_SERVER_PORT", "3000")
	t.Setenv("AGENTRES_DATABASE_DSN", "/custom/path.db")
	t.Setenv("AGENTRES_LOG_LEVEL", "warn")
	t.Setenv("AGENTRES_BILLING_ENABLED", "true")
	t.Setenv("AGENTRES_BILLING_GATEWAY_URL", "http://gateway:8080")

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, "192.168.1.1", cfg.Server.Host)
	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, "/custom/path.db", cfg.Database.DSN)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.True(t, cfg.Billing.Enabled)
	assert.Equal(t, "http://gateway:8080", cfg.Billing.GatewayURL)
}

func TestLoadConfig_JWTEnvAliases(t *testing.T) {
	clearEnv(t)

	t.Setenv("JWT_ENABLED", "true")
	t.Setenv("JWT_ALGORITHM", "HS256")
	t.Setenv("JWT_SECRET_KEY", "shared")
	t.Setenv("JWT_REQUIRED_CLAIMS", "sub, exp")
	t.Setenv("JWT_ISSUER", "https://issuer.example.com")

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.True(t, cfg.Auth.Enabled)
	assert.Equal(t, "HS256", cfg.Auth.Algorithm)
	assert.Equal(t, "shared", cfg.Auth.SecretKey)
	assert.Equal(t, []string{"sub", "exp"}, cfg.Auth.RequiredClaims)
	assert.Equal(t, "https://issuer.example.com", cfg.Auth.Issuer)
	assert.NoError(t, cfg.Validate())
}

func TestLoadConfig_PrefixedEnvWinsOverAlias(t *testing.T) {
	clearEnv(t)

	t.Setenv("JWT_ALGORITHM", "HS256")
	t.Setenv("AGENTRES_AUTH_ALGORITHM", "RS256")

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, "RS256", cfg.Auth.Algorithm)
}

func TestLoadConfig_OpensSealedValues(t *testing.T) {
	clearEnv(t)

	sealed, err := crypto.Seal("runpod-secret", "master")
	require.NoError(t, err)

	t.Setenv("AGENTRES_SECRETS_MASTER_KEY", "master")
	t.Setenv("AGENTRES_RUNPOD_API_KEY", sealed)

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, "runpod-secret", cfg.RunPod.APIKey)
}

func TestLoadConfig_SealedToolSettings(t *testing.T) {
	clearEnv(t)

	sealedKey, err := crypto.Seal("loop-auth", "master")
	require.NoError(t, err)
	sealedSecret, err := crypto.Seal("loop-secret", "master")
	require.NoError(t, err)

	configContent := `
secrets:
  master_key: master
tools:
  - tool_id: loop_message_tool
    api_key: "` + sealedKey + `"
    settings:
      secret_key: "` + sealedSecret + `"
`
	tmpFile := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(tmpFile, []byte(configContent), 0644))

	cfg, err := LoadConfig(tmpFile)
	require.NoError(t, err)

	loop := tools.Find(cfg.Tools, "loop_message_tool")
	assert.Equal(t, "loop-auth", loop.APIKey)
	assert.Equal(t, "loop-secret", loop.Setting("secret_key"))
}

func TestLoadConfig_SealedWithoutMasterKey(t *testing.T) {
	clearEnv(t)

	sealed, err := crypto.Seal("x", "master")
	require.NoError(t, err)
	t.Setenv("AGENTRES_BILLING_SERVICE_KEY", sealed)

	_, err = LoadConfig("")
	assert.ErrorIs(t, err, crypto.ErrNoMasterKey)
}

func TestLoadConfig_FileNotFound_UsesDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadConfig("/nonexistent/path/config.yaml")
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 8008, cfg.Server.Port)
}

func TestLoadConfig_InvalidFile(t *testing.T) {
	clearEnv(t)

	tmpFile := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(tmpFile, []byte("invalid: yaml: content: [[["), 0644))

	_, err := LoadConfig(tmpFile)
	assert.Error(t, err)
}

// =============================================================================
// Config Validation Tests
// =============================================================================

func validConfig(t *testing.T) *Config {
	t.Helper()
	clearEnv(t)
	cfg, err := LoadConfig("")
	require.NoError(t, err)
	return cfg
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"empty host", func(c *Config) { c.Server.Host = "" }, "server.host"},
		{"port zero", func(c *Config) { c.Server.Port = 0 }, "server.port"},
		{"port too high", func(c *Config) { c.Server.Port = 70000 }, "server.port"},
		{"bad level", func(c *Config) { c.Log.Level = "verbose" }, "log.level"},
		{"bad format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
		{"empty dsn", func(c *Config) { c.Database.DSN = "" }, "database.dsn"},
		{"hmac without secret", func(c *Config) {
			c.Auth.Enabled = true
			c.Auth.Algorithm = "HS256"
		}, "secret_key"},
		{"rsa without key source", func(c *Config) {
			c.Auth.Enabled = true
			c.Auth.Algorithm = "RS256"
		}, "jwks_url"},
		{"billing without gateway", func(c *Config) { c.Billing.Enabled = true }, "billing.gateway_url"},
		{"negative rate", func(c *Config) { c.RateLimit.RequestsPerSecond = -1 }, "rate_limit"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig(t)
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestConfig_Address(t *testing.T) {
	cfg := &Config{
		Server: ServerConfig{
			Host: "localhost",
			Port: 8008,
		},
	}

	assert.Equal(t, "localhost:8008", cfg.Server.Address())
}

// =============================================================================
// Logger Setup Tests
// =============================================================================

func TestSetupLogger_Formats(t *testing.T) {
	for _, format := range []string{"json", "text"} {
		t.Run(format, func(t *testing.T) {
			var buf bytes.Buffer
			cfg := &Config{Log: LogConfig{Level: "info", Format: format}}

			logger, closer, err := SetupLogger(cfg, &buf)
			require.NoError(t, err)
			defer closer.Close()

			logger.Info("hello", "k", "v")
			logger.Debug("hidden")

			assert.Contains(t, buf.String(), "hello")
			assert.NotContains(t, buf.String(), "hidden")
		})
	}
}

func TestSetupLogger_InvalidLevel(t *testing.T) {
	cfg := &Config{Log: LogConfig{Level: "invalid", Format: "json"}}

	_, _, err := SetupLogger(cfg, &bytes.Buffer{})
	assert.Error(t, err)
}

func TestSetupLogger_WritesFileAndCreatesDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs", "agentresourcerest")
	cfg := &Config{Log: LogConfig{Level: "debug", Format: "json", Dir: dir, File: "app.log"}}

	var stdout bytes.Buffer
	logger, closer, err := SetupLogger(cfg, &stdout)
	require.NoError(t, err)

	logger.Debug("to both", "component", "test")
	require.NoError(t, closer.Close())

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	assert.Equal(t, os.FileMode(0o755), info.Mode().Perm())

	data, err := os.ReadFile(filepath.Join(dir, "app.log"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "to both")
	assert.Contains(t, stdout.String(), "to both")
}

func TestSetupLogger_DirFailure(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0o644))
	dir := filepath.Join(blocker, "logs")

	// Without a log file the directory is best effort.
	_, _, err := SetupLogger(&Config{Log: LogConfig{Level: "info", Format: "json", Dir: dir}}, &bytes.Buffer{})
	assert.NoError(t, err)

	_, _, err = SetupLogger(&Config{Log: LogConfig{Level: "info", Format: "json", Dir: dir, File: "app.log"}}, &bytes.Buffer{})
	assert.Error(t, err)
}

// =============================================================================
// Config Dump Tests
// =============================================================================

func TestPrintConfig_RedactsSecrets(t *testing.T) {
	cfg := validConfig(t)
	cfg.Auth.SecretKey = "jwt-secret"
	cfg.RunPod.APIKey = "runpod-secret"
	cfg.Billing.ServiceKey = "billing-secret"
	cfg.Secrets.MasterKey = "master-secret"
	cfg.Tools = []tools.Config{{
		ToolID: "loop_message_tool",
		APIKey: "loop-secret",
		Settings: map[string]string{
			"secret_key": "loop-settings-secret",
			"base_url":   "https://loop.example.com",
		},
	}}

	var buf bytes.Buffer
	require.NoError(t, PrintConfig(&buf, cfg))
	out := buf.String()

	for _, secret := range []string{"jwt-secret", "runpod-secret", "billing-secret", "master-secret", "loop-secret", "loop-settings-secret"} {
		assert.NotContains(t, out, secret)
	}
	assert.Contains(t, out, redacted)
	assert.Contains(t, out, "https://loop.example.com")
	assert.Contains(t, out, "port: 8008")

	// The original is untouched.
	assert.Equal(t, "loop-settings-secret", cfg.Tools[0].Settings["secret_key"])
}

// =============================================================================
// Entry Point Tests
// =============================================================================

func TestRun_Flags(t *testing.T) {
	clearEnv(t)

	assert.Equal(t, ExitConfigError, run([]string{"-no-such-flag"}))
	assert.Equal(t, ExitSuccess, run([]string{"-version"}))
	assert.Equal(t, ExitSuccess, run([]string{"-print-config"}))
}

func TestRun_InvalidConfig(t *testing.T) {
	clearEnv(t)
	t.Setenv("AGENTRES_SERVER_PORT", "0")

	assert.Equal(t, ExitConfigError, run(nil))
}

func TestEnsureDataDir(t *testing.T) {
	base := t.TempDir()

	require.NoError(t, ensureDataDir("file:"+filepath.Join(base, "nested", "db.sqlite")+"?cache=shared"))
	info, err := os.Stat(filepath.Join(base, "nested"))
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	assert.NoError(t, ensureDataDir(":memory:"))
	assert.NoError(t, ensureDataDir("local.db"))
}

func TestServerError(t *testing.T) {
	err := &ServerError{Op: "NewServer", Err: assert.AnError, ExitCode: ExitDatabaseError}

	assert.Equal(t, "NewServer: "+assert.AnError.Error(), err.Error())
	assert.ErrorIs(t, err, assert.AnError)
}

// =============================================================================
// Test Helpers
// =============================================================================

// clearEnv blanks every variable LoadConfig reads. Empty values are ignored by viper.
func clearEnv(t *testing.T) {
	t.Helper()
	envVars := []string{
		"AGENTRES_SERVER_HOST",
		"AGENTRES_SERVER_PORT",
		"AGENTRES_DATABASE_DSN",
		"AGENTRES_LOG_LEVEL",
		"AGENTRES_LOG_FORMAT",
		"AGENTRES_BILLING_ENABLED",
		"AGENTRES_BILLING_GATEWAY_URL",
		"AGENTRES_BILLING_SERVICE_KEY",
		"AGENTRES_RUNPOD_API_KEY",
		"AGENTRES_SECRETS_MASTER_KEY",
		"AGENTRES_AUTH_ALGORITHM",
	}
	for _, alias := range jwtEnvAliases {
		envVars = append(envVars, alias)
	}
	for _, v := range envVars {
		t.Setenv(v, "")
	}
}
