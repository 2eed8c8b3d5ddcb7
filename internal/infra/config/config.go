package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Database    DatabaseConfig    `yaml:"database"`
	Logger      LoggerConfig      `yaml:"logger"`
	Tracer      TracerConfig      `yaml:"tracer"`
	Credentials CredentialsConfig `yaml:"credentials"`
	SigNoz      SigNozConfig      `yaml:"signoz"`
	MCP         MCPConfig         `yaml:"mcp"`
}

// ServerConfig holds HTTP gateway settings.
type ServerConfig struct {
	Addr           string        `yaml:"addr"`
	Auth           AuthConfig    `yaml:"auth"`
	RequestsPerMin int           `yaml:"requests_per_min"`
	BurstSize      int           `yaml:"burst_size"`
	ShutdownGrace  time.Duration `yaml:"shutdown_grace"`
}

// AuthConfig holds gateway authentication settings.
type AuthConfig struct {
	Type   string        `yaml:"type"` // "static" or "" (open, dev only)
	Tokens []TokenConfig `yaml:"tokens,omitempty"`
}

// TokenConfig maps a bearer token to a tenant scope.
type TokenConfig struct {
	Token    string `yaml:"token"`
	Name     string `yaml:"name"`
	TenantID string `yaml:"tenant_id"`
}

// DatabaseConfig holds SQLite settings.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// LoggerConfig holds logging settings.
type LoggerConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// TracerConfig holds tracing settings.
type TracerConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Exporter string `yaml:"exporter"`
	Endpoint string `yaml:"endpoint"`
}

// CredentialsConfig holds credential store settings.
type CredentialsConfig struct {
	KeychainEnabled bool   `yaml:"keychain_enabled"`
	KeychainPath    string `yaml:"keychain_path"`
	// KeychainPassphrase is normally supplied via AGENTMESH_KEYCHAIN_KEY.
	KeychainPassphrase string      `yaml:"keychain_passphrase,omitempty"`
	Nango              NangoConfig `yaml:"nango"`
}

// NangoConfig holds the Nango OAuth broker connection settings.
type NangoConfig struct {
	SecretKey string        `yaml:"secret_key,omitempty"` // normally via NANGO_SECRET_KEY
	Host      string        `yaml:"host"`
	Timeout   time.Duration `yaml:"timeout"`
}

// SigNozConfig holds the tracing backend read settings.
type SigNozConfig struct {
	URL     string        `yaml:"url"`      // SigNoz UI base URL for deep links
	APIURL  string        `yaml:"api_url"`  // query-service API base, defaults to URL
	APIKey  string        `yaml:"api_key,omitempty"`
	Timeout time.Duration `yaml:"timeout"`
}

// MCPConfig holds tool-discovery settings.
type MCPConfig struct {
	CallTimeout     time.Duration `yaml:"call_timeout"`
	RefreshSchedule string        `yaml:"refresh_schedule"` // cron expression for the health refresher
}

// defaultDataDir returns the persistent data directory under $HOME/.agentmesh/data.
// Falls back to "./data" if $HOME cannot be determined.
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./data"
	}
	return filepath.Join(home, ".agentmesh", "data")
}

// Defaults returns a Config with sensible defaults.
func Defaults() *Config {
	dataDir := defaultDataDir()
	return &Config{
		Server: ServerConfig{
			Addr:           ":8090",
			RequestsPerMin: 300,
			BurstSize:      60,
			ShutdownGrace:  5 * time.Second,
		},
		Database: DatabaseConfig{
			Path: filepath.Join(dataDir, "agentmesh.db"),
		},
		Logger: LoggerConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		Tracer: TracerConfig{
			Enabled:  false,
			Exporter: "noop",
		},
		Credentials: CredentialsConfig{
			KeychainEnabled: false,
			KeychainPath:    filepath.Join(dataDir, "vault.enc"),
			Nango: NangoConfig{
				Host:    "https://api.nango.dev",
				Timeout: 10 * time.Second,
			},
		},
		SigNoz: SigNozConfig{
			Timeout: 15 * time.Second,
		},
		MCP: MCPConfig{
			CallTimeout:     30 * time.Second,
			RefreshSchedule: "@every 5m",
		},
	}
}

// Load reads a YAML config file and applies env var overrides.
// A missing file is not an error: defaults plus env overrides are used.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			ApplyEnvOverrides(cfg)
			if err := Validate(cfg); err != nil {
				return nil, err
			}
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	ApplyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// ApplyEnvOverrides maps environment variables to config fields. The
// NANGO_* and SIGNOZ names match what the hosted integrations expect.
func ApplyEnvOverrides(cfg *Config) {
	if v := os.Getenv("AGENTMESH_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("AGENTMESH_DB_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("AGENTMESH_LOGGER_LEVEL"); v != "" {
		cfg.Logger.Level = v
	}
	if v := os.Getenv("AGENTMESH_LOGGER_FORMAT"); v != "" {
		cfg.Logger.Format = v
	}
	if v := os.Getenv("AGENTMESH_TRACER_ENABLED"); v == "true" {
		cfg.Tracer.Enabled = true
	}
	if v := os.Getenv("AGENTMESH_TRACER_EXPORTER"); v != "" {
		cfg.Tracer.Exporter = v
	}
	if v := os.Getenv("AGENTMESH_REQUESTS_PER_MIN"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Server.RequestsPerMin = n
		}
	}
	if v := os.Getenv("ENABLE_KEYCHAIN_STORE"); v == "true" {
		cfg.Credentials.KeychainEnabled = true
	}
	if v := os.Getenv("AGENTMESH_KEYCHAIN_KEY"); v != "" {
		cfg.Credentials.KeychainPassphrase = v
	}
	if v := os.Getenv("NANGO_SECRET_KEY"); v != "" {
		cfg.Credentials.Nango.SecretKey = v
	}
	// NANGO_HOST is preferred; NANGO_SERVER_URL kept for compatibility.
	if v := os.Getenv("NANGO_HOST"); v != "" {
		cfg.Credentials.Nango.Host = v
	} else if v := os.Getenv("NANGO_SERVER_URL"); v != "" {
		cfg.Credentials.Nango.Host = v
	}
	if v := os.Getenv("SIGNOZ_URL"); v != "" {
		cfg.SigNoz.URL = v
	}
	if v := os.Getenv("SIGNOZ_API_URL"); v != "" {
		cfg.SigNoz.APIURL = v
	}
	if v := os.Getenv("SIGNOZ_API_KEY"); v != "" {
		cfg.SigNoz.APIKey = v
	}
}
