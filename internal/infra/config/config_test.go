package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()
	assert.Equal(t, ":8090", cfg.Server.Addr)
	assert.Equal(t, "info", cfg.Logger.Level)
	assert.Equal(t, "https://api.nango.dev", cfg.Credentials.Nango.Host)
	assert.False(t, cfg.Credentials.KeychainEnabled)
	assert.NoError(t, Validate(cfg))
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, ":8090", cfg.Server.Addr)
}

func TestLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := `
server:
  addr: ":9000"
  auth:
    type: static
    tokens:
      - token: secret-1
        name: dashboard
        tenant_id: t1
logger:
  level: debug
  format: json
credentials:
  keychain_enabled: true
  keychain_path: /tmp/vault.enc
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.Server.Addr)
	assert.Equal(t, "debug", cfg.Logger.Level)
	assert.Equal(t, "json", cfg.Logger.Format)
	require.Len(t, cfg.Server.Auth.Tokens, 1)
	assert.Equal(t, "t1", cfg.Server.Auth.Tokens[0].TenantID)
	assert.True(t, cfg.Credentials.KeychainEnabled)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("AGENTMESH_ADDR", ":7070")
	t.Setenv("NANGO_SECRET_KEY", "nk-123")
	t.Setenv("NANGO_HOST", "https://nango.internal")
	t.Setenv("ENABLE_KEYCHAIN_STORE", "true")
	t.Setenv("SIGNOZ_URL", "https://signoz.example.com")

	cfg := Defaults()
	ApplyEnvOverrides(cfg)

	assert.Equal(t, ":7070", cfg.Server.Addr)
	assert.Equal(t, "nk-123", cfg.Credentials.Nango.SecretKey)
	assert.Equal(t, "https://nango.internal", cfg.Credentials.Nango.Host)
	assert.True(t, cfg.Credentials.KeychainEnabled)
	assert.Equal(t, "https://signoz.example.com", cfg.SigNoz.URL)
}

func TestNangoServerURLFallback(t *testing.T) {
	t.Setenv("NANGO_SERVER_URL", "https://nango.fallback")

	cfg := Defaults()
	ApplyEnvOverrides(cfg)
	assert.Equal(t, "https://nango.fallback", cfg.Credentials.Nango.Host)
}

func TestValidateRejectsBadConfig(t *testing.T) {
	cfg := Defaults()
	cfg.Server.Addr = ""
	cfg.Logger.Level = "verbose"
	cfg.Server.Auth.Type = "oidc"

	err := Validate(cfg)
	require.Error(t, err)
	ve, ok := err.(*ValidationError)
	require.True(t, ok)
	assert.Len(t, ve.Errors, 3)
}

func TestValidateTokenTenant(t *testing.T) {
	cfg := Defaults()
	cfg.Server.Auth.Type = "static"
	cfg.Server.Auth.Tokens = []TokenConfig{{Token: "tok", Name: "cli"}}

	err := Validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tenant_id")
}
